package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/nikolayk812/sneakercart/internal/cart"
	"github.com/nikolayk812/sneakercart/internal/domain"
	"github.com/spf13/cobra"
)

var addQuantity int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cart lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printItems(cmd.OutOrStdout(), shop.ctrl.Items())
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add [sneaker-id] [size-id]",
	Short: "Add a sneaker in the given size",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args)
		if err != nil {
			return err
		}

		items, err := shop.ctrl.Add(cmd.Context(), domain.LineItem{
			SneakerID: key.SneakerID,
			SizeID:    key.SizeID,
			Quantity:  addQuantity,
		})
		if err != nil {
			return err
		}

		printItems(cmd.OutOrStdout(), items)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set [sneaker-id] [size-id] [quantity]",
	Short: "Set the quantity of a line",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[:2])
		if err != nil {
			return err
		}
		quantity, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("quantity[%s] is not a number", args[2])
		}

		items, err := shop.ctrl.SetQuantity(cmd.Context(), key, quantity)
		if err != nil {
			return err
		}

		printItems(cmd.OutOrStdout(), items)
		return nil
	},
}

var incCmd = keyCommand("inc", "Increase the quantity of a line by one", (*cart.Controller).Increment)

var decCmd = keyCommand("dec", "Decrease the quantity of a line by one, never below one", (*cart.Controller).Decrement)

var removeCmd = keyCommand("remove", "Remove a line", (*cart.Controller).Remove)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every line",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := shop.ctrl.Clear(cmd.Context())
		if err != nil {
			return err
		}

		printItems(cmd.OutOrStdout(), items)
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the number of lines and items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := shop.ctrl.Summary()
		fmt.Fprintf(cmd.OutOrStdout(), "lines: %d\nitems: %d\n", s.Lines, s.Quantity)
		return nil
	},
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show lines with product names and prices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		view := shop.ctrl.View(cmd.Context())

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SNEAKER\tNAME\tSIZE\tQTY\tPRICE\tSUBTOTAL")
		for _, line := range view.Lines {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
				line.Item.SneakerID, line.Name, line.SizeValue.String(),
				line.Item.Quantity, line.UnitPrice, line.Subtotal)
		}
		for _, item := range view.Pending {
			fmt.Fprintf(w, "%d\t(loading)\t#%d\t%d\t\t\n", item.SneakerID, item.SizeID, item.Quantity)
		}
		_ = w.Flush()

		fmt.Fprintf(cmd.OutOrStdout(), "total: %s\n", view.Total)
		return nil
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Move the guest cart of this device into your account cart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := shop.ctrl.MergeGuestCart(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "added: %d\nupdated: %d\nfailed: %d\nkept: %d\n",
			report.Added, report.Updated, len(report.Failed), len(report.Kept))
		return err
	},
}

var checkoutReq domain.CheckoutRequest

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Place an order for the account cart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := shop.ctrl.Checkout(cmd.Context(), checkoutReq)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "order #%d %s\n", order.ID, order.Status)
		return nil
	},
}

func init() {
	addCmd.Flags().IntVarP(&addQuantity, "qty", "q", 1, "quantity to add")

	checkoutCmd.Flags().StringVar(&checkoutReq.FullName, "name", "", "full name")
	checkoutCmd.Flags().StringVar(&checkoutReq.Phone, "phone", "", "phone number")
	checkoutCmd.Flags().StringVar(&checkoutReq.Address, "address", "", "delivery address")
	checkoutCmd.Flags().StringVar((*string)(&checkoutReq.PaymentMethod), "payment", string(domain.PaymentCard), "payment method (card or cash)")
}

type keyOp func(c *cart.Controller, ctx context.Context, key domain.ItemKey) ([]domain.LineItem, error)

func keyCommand(use, short string, op keyOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [sneaker-id] [size-id]",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args)
			if err != nil {
				return err
			}

			items, err := op(shop.ctrl, cmd.Context(), key)
			if err != nil {
				return err
			}

			printItems(cmd.OutOrStdout(), items)
			return nil
		},
	}
}

func parseKey(args []string) (domain.ItemKey, error) {
	sneakerID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return domain.ItemKey{}, fmt.Errorf("sneaker-id[%s] is not a number", args[0])
	}
	sizeID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return domain.ItemKey{}, fmt.Errorf("size-id[%s] is not a number", args[1])
	}

	return domain.ItemKey{SneakerID: sneakerID, SizeID: sizeID}, nil
}

func printItems(out io.Writer, items []domain.LineItem) {
	if len(items) == 0 {
		fmt.Fprintln(out, "cart is empty")
		return
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSNEAKER\tSIZE\tQTY")
	for _, item := range items {
		id := "-"
		if item.ID != nil {
			id = strconv.FormatInt(*item.ID, 10)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", id, item.SneakerID, item.SizeID, item.Quantity)
	}
	_ = w.Flush()
}
