// Package cartstore implements the two cart backends: a guest cart kept in
// one device-local slot and the per-user cart of the storefront API.
package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nikolayk812/sneakercart/internal/domain"
	"github.com/nikolayk812/sneakercart/internal/port"
	"go.uber.org/zap"
)

const DefaultSlot = "cart"

// Local keeps the whole cart as one JSON array in a single slot.
// Every mutation is one read-modify-write of that slot.
type Local struct {
	slots  port.SlotStore
	slot   string
	logger *zap.Logger
}

var _ port.CartStore = (*Local)(nil)

func NewLocal(slots port.SlotStore, slot string, logger *zap.Logger) *Local {
	if slot == "" {
		slot = DefaultSlot
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Local{
		slots:  slots,
		slot:   slot,
		logger: logger.With(zap.String("component", "cartstore.local"), zap.String("slot", slot)),
	}
}

func (s *Local) Load(ctx context.Context) ([]domain.LineItem, error) {
	payload, err := s.slots.ReadSlot(ctx, s.slot)
	if err != nil {
		return nil, fmt.Errorf("slots.ReadSlot: %w", err)
	}

	items, err := decodeItems(payload)
	if err != nil {
		return nil, fmt.Errorf("decodeItems: %w", err)
	}

	return items, nil
}

func (s *Local) Add(ctx context.Context, item domain.LineItem) (domain.Result, error) {
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	if item.Quantity < 1 {
		return domain.Result{}, domain.ErrInvalidQuantity
	}

	items, err := s.mutate(ctx, func(items []domain.LineItem) ([]domain.LineItem, error) {
		if idx := domain.IndexOf(items, item.Key()); idx >= 0 {
			items[idx].Quantity += item.Quantity
			return items, nil
		}
		return append(items, item), nil
	})
	if err != nil {
		return domain.Result{}, err
	}

	s.logger.Debug("item added",
		zap.Int64("sneaker_id", item.SneakerID),
		zap.Int64("size_id", item.SizeID),
		zap.Int("quantity", item.Quantity))

	return domain.SnapshotResult(items), nil
}

func (s *Local) Update(ctx context.Context, item domain.LineItem, quantity int) (domain.Result, error) {
	if quantity < 1 {
		return domain.Result{}, domain.ErrInvalidQuantity
	}

	items, err := s.mutate(ctx, func(items []domain.LineItem) ([]domain.LineItem, error) {
		idx := indexOfItem(items, item)
		if idx < 0 {
			return nil, domain.ErrItemNotFound
		}
		items[idx].Quantity = quantity
		return items, nil
	})
	if err != nil {
		return domain.Result{}, err
	}

	return domain.SnapshotResult(items), nil
}

// Adjust sets the quantity of the line with key to next(current) within one
// slot update, so a change made by another writer is not lost. A result below
// one or equal to the current quantity leaves the slot untouched and reports
// changed as false.
func (s *Local) Adjust(ctx context.Context, key domain.ItemKey, next func(int) int) (_ domain.Result, changed bool, _ error) {
	var current []domain.LineItem

	items, err := s.mutate(ctx, func(items []domain.LineItem) ([]domain.LineItem, error) {
		idx := domain.IndexOf(items, key)
		if idx < 0 {
			return nil, domain.ErrItemNotFound
		}

		quantity := next(items[idx].Quantity)
		if quantity < 1 || quantity == items[idx].Quantity {
			current = items
			return nil, errUnchanged
		}

		items[idx].Quantity = quantity
		return items, nil
	})
	if errors.Is(err, errUnchanged) {
		return domain.SnapshotResult(current), false, nil
	}
	if err != nil {
		return domain.Result{}, false, err
	}

	return domain.SnapshotResult(items), true, nil
}

var errUnchanged = errors.New("slot unchanged")

func (s *Local) Remove(ctx context.Context, item domain.LineItem) (domain.Result, error) {
	items, err := s.mutate(ctx, func(items []domain.LineItem) ([]domain.LineItem, error) {
		idx := indexOfItem(items, item)
		if idx < 0 {
			return nil, domain.ErrItemNotFound
		}
		return append(items[:idx], items[idx+1:]...), nil
	})
	if err != nil {
		return domain.Result{}, err
	}

	return domain.SnapshotResult(items), nil
}

// Clear empties the slot. A corrupt slot is overwritten as well.
func (s *Local) Clear(ctx context.Context) error {
	err := s.slots.UpdateSlot(ctx, s.slot, func([]byte) ([]byte, error) {
		return encodeItems(nil)
	})
	if err != nil {
		return fmt.Errorf("slots.UpdateSlot: %w", err)
	}

	return nil
}

func (s *Local) mutate(ctx context.Context, fn func([]domain.LineItem) ([]domain.LineItem, error)) ([]domain.LineItem, error) {
	var result []domain.LineItem

	err := s.slots.UpdateSlot(ctx, s.slot, func(current []byte) ([]byte, error) {
		items, err := decodeItems(current)
		if err != nil {
			return nil, fmt.Errorf("decodeItems: %w", err)
		}

		items, err = fn(items)
		if err != nil {
			return nil, err
		}

		result = items
		return encodeItems(items)
	})
	if err != nil {
		return nil, fmt.Errorf("slots.UpdateSlot: %w", err)
	}

	return result, nil
}

// indexOfItem prefers the server id when the caller knows it.
func indexOfItem(items []domain.LineItem, item domain.LineItem) int {
	if item.ID != nil {
		for i, candidate := range items {
			if candidate.ID != nil && *candidate.ID == *item.ID {
				return i
			}
		}
	}
	return domain.IndexOf(items, item.Key())
}

func decodeItems(payload []byte) ([]domain.LineItem, error) {
	items := []domain.LineItem{}
	if len(payload) == 0 {
		return items, nil
	}

	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}
	if items == nil {
		items = []domain.LineItem{}
	}

	return items, nil
}

func encodeItems(items []domain.LineItem) ([]byte, error) {
	if items == nil {
		items = []domain.LineItem{}
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}

	return payload, nil
}
