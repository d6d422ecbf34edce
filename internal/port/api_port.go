package port

import (
	"context"

	"github.com/nikolayk812/sneakercart/internal/domain"
)

type CartAPI interface {
	ListCart(ctx context.Context, credential string) ([]domain.RemoteLineItem, error)
	AddCartItem(ctx context.Context, credential string, req domain.AddCartItemRequest) (domain.RemoteLineItem, error)
	UpdateCartItem(ctx context.Context, credential string, id int64, quantity int) (domain.RemoteLineItem, error)
	DeleteCartItem(ctx context.Context, credential string, id int64) error
}

type CatalogAPI interface {
	GetSneaker(ctx context.Context, id int64) (domain.Sneaker, error)
}

type CheckoutAPI interface {
	Checkout(ctx context.Context, credential string, req domain.CheckoutRequest) (domain.Order, error)
}
