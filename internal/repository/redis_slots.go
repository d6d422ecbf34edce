package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/nikolayk812/sneakercart/internal/port"
)

const (
	DefaultRedisNamespace = "sneakercart:slots"

	redisMaxTxAttempts = 10
)

type redisSlots struct {
	client    *redis.Client
	namespace string
}

func NewRedisSlots(client *redis.Client, namespace string) port.SlotStore {
	if namespace == "" {
		namespace = DefaultRedisNamespace
	}

	return &redisSlots{
		client:    client,
		namespace: namespace,
	}
}

func (r *redisSlots) key(slot string) string {
	return r.namespace + ":" + slot
}

func (r *redisSlots) ReadSlot(ctx context.Context, slot string) ([]byte, error) {
	if slot == "" {
		return nil, fmt.Errorf("slot is empty")
	}

	payload, err := r.client.Get(ctx, r.key(slot)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("client.Get: %w", err)
	}

	return payload, nil
}

// UpdateSlot retries the optimistic WATCH/MULTI transaction when another
// writer touched the key in between.
func (r *redisSlots) UpdateSlot(ctx context.Context, slot string, fn func([]byte) ([]byte, error)) error {
	if slot == "" {
		return fmt.Errorf("slot is empty")
	}

	key := r.key(slot)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("tx.Get: %w", err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisMaxTxAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("client.Watch: %w", err)
		}
		return nil
	}

	return fmt.Errorf("slot[%s]: gave up after %d conflicting updates", slot, redisMaxTxAttempts)
}
