package port

import (
	"context"

	"github.com/nikolayk812/sneakercart/internal/domain"
)

type CartStore interface {
	Load(ctx context.Context) ([]domain.LineItem, error)
	Add(ctx context.Context, item domain.LineItem) (domain.Result, error)
	Update(ctx context.Context, item domain.LineItem, quantity int) (domain.Result, error)
	Remove(ctx context.Context, item domain.LineItem) (domain.Result, error)
}

// SlotStore is a named key/value area holding one opaque value per slot.
// ReadSlot returns nil for a slot that was never written.
// UpdateSlot replaces the whole value with the one fn returns; fn sees the
// current value and the write is atomic with respect to other updates.
type SlotStore interface {
	ReadSlot(ctx context.Context, slot string) ([]byte, error)
	UpdateSlot(ctx context.Context, slot string, fn func(current []byte) ([]byte, error)) error
}
