package shopapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nikolayk812/sneakercart/internal/domain"
	"github.com/nikolayk812/sneakercart/internal/port"
)

var (
	_ port.CartAPI     = (*Client)(nil)
	_ port.CatalogAPI  = (*Client)(nil)
	_ port.CheckoutAPI = (*Client)(nil)
)

func (c *Client) ListCart(ctx context.Context, credential string) ([]domain.RemoteLineItem, error) {
	var rows []domain.RemoteLineItem

	err := c.do(ctx, request{method: http.MethodGet, path: "/api/cart/", credential: credential}, &rows)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.RemoteLineItem{}
	}

	return rows, nil
}

func (c *Client) AddCartItem(ctx context.Context, credential string, req domain.AddCartItemRequest) (domain.RemoteLineItem, error) {
	var row domain.RemoteLineItem

	err := c.do(ctx, request{method: http.MethodPost, path: "/api/cart/", credential: credential, body: req}, &row)
	if err != nil {
		return domain.RemoteLineItem{}, err
	}

	return row, nil
}

func (c *Client) UpdateCartItem(ctx context.Context, credential string, id int64, quantity int) (domain.RemoteLineItem, error) {
	var row domain.RemoteLineItem

	body := map[string]int{"quantity": quantity}
	err := c.do(ctx, request{method: http.MethodPatch, path: cartItemPath(id), credential: credential, body: body}, &row)
	if err != nil {
		return domain.RemoteLineItem{}, err
	}

	return row, nil
}

func (c *Client) DeleteCartItem(ctx context.Context, credential string, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: cartItemPath(id), credential: credential}, nil)
}

func cartItemPath(id int64) string {
	return fmt.Sprintf("/api/cart/%d/", id)
}
