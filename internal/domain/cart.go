package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrItemNotFound       = errors.New("cart item not found")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrIncompleteCheckout = errors.New("full name, phone and address are required")
)

// LineItem is one row of the cart as the controller sees it.
// ID is set only once the row is known to the remote cart.
type LineItem struct {
	ID        *int64 `json:"id,omitempty"`
	SneakerID int64  `json:"sneakerId"`
	SizeID    int64  `json:"sizeId"`
	Quantity  int    `json:"quantity"`
}

// ItemKey identifies a line within one cart.
type ItemKey struct {
	SneakerID int64
	SizeID    int64
}

func (k ItemKey) String() string {
	return fmt.Sprintf("%d:%d", k.SneakerID, k.SizeID)
}

func (i LineItem) Key() ItemKey {
	return ItemKey{SneakerID: i.SneakerID, SizeID: i.SizeID}
}

// Summary is the derived view shown by the cart badge.
type Summary struct {
	Lines    int
	Quantity int
}

func Summarize(items []LineItem) Summary {
	s := Summary{Lines: len(items)}
	for _, item := range items {
		s.Quantity += item.Quantity
	}
	return s
}

// Result is the effect of one store mutation.
// A complete result carries the whole cart in Snapshot; otherwise
// Upserted or Removed describe a delta against the caller's mirror.
type Result struct {
	Snapshot []LineItem
	Complete bool

	Upserted *LineItem
	Removed  *ItemKey
}

func SnapshotResult(items []LineItem) Result {
	return Result{Snapshot: items, Complete: true}
}

func UpsertResult(item LineItem) Result {
	return Result{Upserted: &item}
}

func RemovedResult(key ItemKey) Result {
	return Result{Removed: &key}
}

// Apply returns the cart that results from applying r to items.
// items is never modified.
func (r Result) Apply(items []LineItem) []LineItem {
	if r.Complete {
		return CloneItems(r.Snapshot)
	}

	out := CloneItems(items)

	if r.Removed != nil {
		kept := out[:0]
		for _, item := range out {
			if item.Key() != *r.Removed {
				kept = append(kept, item)
			}
		}
		out = kept
	}

	if r.Upserted != nil {
		up := *r.Upserted
		if idx := indexForUpsert(out, up); idx >= 0 {
			out[idx] = up
		} else {
			out = append(out, up)
		}
	}

	return out
}

// indexForUpsert matches by server id first, then by key among rows
// that have no server id yet.
func indexForUpsert(items []LineItem, up LineItem) int {
	if up.ID != nil {
		for i, item := range items {
			if item.ID != nil && *item.ID == *up.ID {
				return i
			}
		}
		for i, item := range items {
			if item.ID == nil && item.Key() == up.Key() {
				return i
			}
		}
		return -1
	}

	return IndexOf(items, up.Key())
}

func IndexOf(items []LineItem, key ItemKey) int {
	for i, item := range items {
		if item.Key() == key {
			return i
		}
	}
	return -1
}

func CloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.ID != nil {
			id := *item.ID
			item.ID = &id
		}
		out = append(out, item)
	}
	return out
}
