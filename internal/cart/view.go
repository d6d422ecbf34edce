package cart

import (
	"context"
	"sync"

	"github.com/nikolayk812/sneakercart/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Line is a cart line with the product data needed to show it.
type Line struct {
	Item      domain.LineItem
	Name      string
	Image     string
	SizeValue decimal.Decimal
	UnitPrice domain.Money
	Subtotal  domain.Money
}

type View struct {
	Lines []Line
	// Pending lines reference products that could not be loaded yet.
	// They are not part of Total.
	Pending []domain.LineItem
	Total   domain.Money
	Summary domain.Summary
}

// View enriches the current lines with catalog data. Product lookups run
// concurrently; a failed lookup defers its lines instead of failing the view.
func (c *Controller) View(ctx context.Context) View {
	items := c.Items()

	view := View{
		Lines:   make([]Line, 0, len(items)),
		Total:   domain.Zero(c.currency),
		Summary: domain.Summarize(items),
	}

	sneakers := c.fetchSneakers(ctx, items)

	for _, item := range items {
		sneaker, ok := sneakers[item.SneakerID]
		if !ok {
			view.Pending = append(view.Pending, item)
			continue
		}

		unit := domain.Money{Amount: sneaker.Price, Currency: c.currency}
		line := Line{
			Item:      item,
			Name:      sneaker.Name,
			Image:     sneaker.MainImage(),
			UnitPrice: unit,
			Subtotal:  unit.Mul(item.Quantity),
		}
		if size, ok := sneaker.SizeValue(item.SizeID); ok {
			line.SizeValue = size
		}

		total, err := view.Total.Add(line.Subtotal)
		if err != nil {
			c.logger.Warn("line left out of total", zap.Int64("sneaker_id", item.SneakerID), zap.Error(err))
			view.Pending = append(view.Pending, item)
			continue
		}
		view.Total = total
		view.Lines = append(view.Lines, line)
	}

	return view
}

func (c *Controller) fetchSneakers(ctx context.Context, items []domain.LineItem) map[int64]domain.Sneaker {
	found := make(map[int64]domain.Sneaker)
	if c.catalog == nil {
		return found
	}

	var (
		mu   sync.Mutex
		g    errgroup.Group
		seen = make(map[int64]struct{})
	)
	g.SetLimit(c.viewConcurrency)

	for _, item := range items {
		id := item.SneakerID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		g.Go(func() error {
			sneaker, err := c.catalog.GetSneaker(ctx, id)
			if err != nil {
				c.logger.Debug("sneaker not loaded", zap.Int64("sneaker_id", id), zap.Error(err))
				return nil
			}

			mu.Lock()
			found[id] = sneaker
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	return found
}
