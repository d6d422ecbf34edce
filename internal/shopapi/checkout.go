package shopapi

import (
	"context"
	"net/http"

	"github.com/nikolayk812/sneakercart/internal/domain"
)

func (c *Client) Checkout(ctx context.Context, credential string, req domain.CheckoutRequest) (domain.Order, error) {
	var order domain.Order

	err := c.do(ctx, request{method: http.MethodPost, path: "/api/checkout/", credential: credential, body: req}, &order)
	if err != nil {
		return domain.Order{}, err
	}

	return order, nil
}
