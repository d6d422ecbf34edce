package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikolayk812/sneakercart/internal/domain"
	"github.com/nikolayk812/sneakercart/internal/shopapi"
	"go.uber.org/zap"
)

// Checkout places an order for the signed-in user. The server empties the
// cart; the mirror follows by reloading afterwards.
func (c *Controller) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Order, error) {
	backend := c.backend(ctx)
	if !backend.IsRemote() {
		c.notify(LevelError, opCheckout, "sign in to place an order", domain.ErrNotAuthenticated)
		return domain.Order{}, domain.ErrNotAuthenticated
	}

	if err := req.Validate(); err != nil {
		c.notify(LevelError, opCheckout, "please fill in all fields", err)
		return domain.Order{}, err
	}

	if c.checkout == nil {
		return domain.Order{}, fmt.Errorf("checkout api is not configured")
	}

	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCard
	}

	order, err := c.checkout.Checkout(ctx, backend.Credential(), req)
	if err != nil {
		c.logger.Warn("checkout failed", zap.Error(err))

		message := fallbackMessages[opCheckout]
		var apiErr *shopapi.APIError
		if errors.As(err, &apiErr) {
			message = shopapi.CheckoutMessage(err, message)
		}
		c.notify(LevelError, opCheckout, message, err)

		return domain.Order{}, fmt.Errorf("checkout.Checkout: %w", err)
	}

	c.logger.Info("order placed", zap.Int64("order_id", order.ID))
	c.notify(LevelInfo, opCheckout, "order placed", nil)

	c.reloadAfterOrder(ctx, backend)
	c.events.publish()

	return order, nil
}

// reloadAfterOrder reads the remote cart only. The server has emptied it, so
// an unreadable cart becomes empty rather than the guest cart.
func (c *Controller) reloadAfterOrder(ctx context.Context, backend domain.Backend) {
	items, err := c.remote(backend.Credential()).Load(ctx)
	if err != nil {
		c.logger.Warn("cart not reloaded after order", zap.Error(err))
		items = []domain.LineItem{}
	}

	c.replace(backend, items)
}
