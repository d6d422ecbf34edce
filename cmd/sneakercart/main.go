package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	token      string
	verbose    bool

	logger *zap.Logger
	shop   *app
)

var rootCmd = &cobra.Command{
	Use:   "sneakercart",
	Short: "Sneaker storefront cart from the command line",
	Long: `sneakercart keeps a guest cart on this device and switches to the
storefront cart of your account whenever a token is configured.

Signing in does not move guest lines into the account cart; run
"sneakercart merge" for that.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		shop, err = newApp(cmd.Context(), configPath, token, logger, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("newApp: %w", err)
		}

		// the mirror starts empty in a fresh process
		shop.ctrl.Load(cmd.Context())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "sneakercart.yaml", "path to the config file")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "storefront API token (overrides config and SNEAKERCART_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		listCmd, addCmd, setCmd, incCmd, decCmd,
		removeCmd, clearCmd, summaryCmd, viewCmd,
		mergeCmd, checkoutCmd,
	)
}

func main() {
	if err := execute(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// execute runs one command and releases what PersistentPreRunE opened,
// also when the command fails.
func execute(args []string) error {
	defer cleanup()

	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func cleanup() {
	if shop != nil {
		shop.Close()
		shop = nil
	}
	if logger != nil {
		_ = logger.Sync()
		logger = nil
	}
}
