package cartstore

import (
	"context"
	"fmt"

	"github.com/nikolayk812/sneakercart/internal/domain"
	"github.com/nikolayk812/sneakercart/internal/port"
	"go.uber.org/zap"
)

// Remote is the storefront cart of one authenticated user.
// Duplicate handling on add is left to the server.
type Remote struct {
	api        port.CartAPI
	credential string
	logger     *zap.Logger
}

var _ port.CartStore = (*Remote)(nil)

func NewRemote(api port.CartAPI, credential string, logger *zap.Logger) *Remote {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Remote{
		api:        api,
		credential: credential,
		logger:     logger.With(zap.String("component", "cartstore.remote")),
	}
}

func (s *Remote) Load(ctx context.Context) ([]domain.LineItem, error) {
	rows, err := s.api.ListCart(ctx, s.credential)
	if err != nil {
		return nil, fmt.Errorf("api.ListCart: %w", err)
	}

	return domain.RemoteToLineItems(rows), nil
}

func (s *Remote) Add(ctx context.Context, item domain.LineItem) (domain.Result, error) {
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	if item.Quantity < 1 {
		return domain.Result{}, domain.ErrInvalidQuantity
	}

	row, err := s.api.AddCartItem(ctx, s.credential, domain.NewAddCartItemRequest(item))
	if err != nil {
		return domain.Result{}, fmt.Errorf("api.AddCartItem: %w", err)
	}

	s.logger.Debug("item added",
		zap.Int64("id", row.ID),
		zap.Int64("sneaker_id", row.Sneaker),
		zap.Int64("size_id", row.Size.ID),
		zap.Int("quantity", row.Quantity))

	return domain.UpsertResult(row.ToLineItem()), nil
}

func (s *Remote) Update(ctx context.Context, item domain.LineItem, quantity int) (domain.Result, error) {
	if quantity < 1 {
		return domain.Result{}, domain.ErrInvalidQuantity
	}

	id, err := s.resolveID(ctx, item)
	if err != nil {
		return domain.Result{}, err
	}

	row, err := s.api.UpdateCartItem(ctx, s.credential, id, quantity)
	if err != nil {
		return domain.Result{}, fmt.Errorf("api.UpdateCartItem: %w", err)
	}

	return domain.UpsertResult(row.ToLineItem()), nil
}

func (s *Remote) Remove(ctx context.Context, item domain.LineItem) (domain.Result, error) {
	id, err := s.resolveID(ctx, item)
	if err != nil {
		return domain.Result{}, err
	}

	if err := s.api.DeleteCartItem(ctx, s.credential, id); err != nil {
		return domain.Result{}, fmt.Errorf("api.DeleteCartItem: %w", err)
	}

	return domain.RemovedResult(item.Key()), nil
}

// resolveID looks the row up by key when the caller only knows the guest shape.
func (s *Remote) resolveID(ctx context.Context, item domain.LineItem) (int64, error) {
	if item.ID != nil {
		return *item.ID, nil
	}

	rows, err := s.api.ListCart(ctx, s.credential)
	if err != nil {
		return 0, fmt.Errorf("api.ListCart: %w", err)
	}

	for _, row := range rows {
		if row.Sneaker == item.SneakerID && row.Size.ID == item.SizeID {
			return row.ID, nil
		}
	}

	return 0, fmt.Errorf("item[%s]: %w", item.Key(), domain.ErrItemNotFound)
}
