package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/nikolayk812/sneakercart/internal/port"
)

type memorySlots struct {
	mu    sync.Mutex
	slots map[string][]byte
}

func NewMemorySlots() port.SlotStore {
	return &memorySlots{slots: make(map[string][]byte)}
}

func (r *memorySlots) ReadSlot(_ context.Context, slot string) ([]byte, error) {
	if slot == "" {
		return nil, fmt.Errorf("slot is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.slots[slot]), nil
}

func (r *memorySlots) UpdateSlot(_ context.Context, slot string, fn func([]byte) ([]byte, error)) error {
	if slot == "" {
		return fmt.Errorf("slot is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := fn(slices.Clone(r.slots[slot]))
	if err != nil {
		return err
	}

	r.slots[slot] = slices.Clone(next)
	return nil
}
