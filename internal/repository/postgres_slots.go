package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/sneakercart/internal/migrations"
	"github.com/nikolayk812/sneakercart/internal/port"
)

const (
	readSlotSQL   = `SELECT payload FROM cart_slots WHERE slot = $1`
	lockSlotSQL   = `SELECT pg_advisory_xact_lock(hashtext($1))`
	upsertSlotSQL = `INSERT INTO cart_slots (slot, payload, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (slot) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
)

type querier interface {
	beginner
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresSlots struct {
	db querier
}

// MigratePostgres creates the slot table when it does not exist yet.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, migrations.CartSlots); err != nil {
		return fmt.Errorf("pool.Exec: %w", err)
	}
	return nil
}

func NewPostgresSlots(pool *pgxpool.Pool) port.SlotStore {
	return &postgresSlots{db: pool}
}

// NewPostgresSlotsWithTx runs every update inside a savepoint of tx.
func NewPostgresSlotsWithTx(tx pgx.Tx) port.SlotStore {
	return &postgresSlots{db: tx}
}

func (r *postgresSlots) ReadSlot(ctx context.Context, slot string) ([]byte, error) {
	if slot == "" {
		return nil, fmt.Errorf("slot is empty")
	}

	payload, err := readPayload(ctx, r.db, slot)
	if err != nil {
		return nil, fmt.Errorf("readPayload: %w", err)
	}

	return payload, nil
}

func (r *postgresSlots) UpdateSlot(ctx context.Context, slot string, fn func([]byte) ([]byte, error)) error {
	if slot == "" {
		return fmt.Errorf("slot is empty")
	}

	_, err := withTx(ctx, r.db, func(tx pgx.Tx) (struct{}, error) {
		// a row lock cannot cover a slot that does not exist yet
		if _, err := tx.Exec(ctx, lockSlotSQL, slot); err != nil {
			return struct{}{}, fmt.Errorf("tx.Exec lock: %w", err)
		}

		current, err := readPayload(ctx, tx, slot)
		if err != nil {
			return struct{}{}, fmt.Errorf("readPayload: %w", err)
		}

		next, err := fn(current)
		if err != nil {
			return struct{}{}, err
		}

		if _, err := tx.Exec(ctx, upsertSlotSQL, slot, next); err != nil {
			return struct{}{}, fmt.Errorf("tx.Exec upsert: %w", err)
		}

		return struct{}{}, nil
	})

	return err
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readPayload(ctx context.Context, q rowQuerier, slot string) ([]byte, error) {
	var payload []byte

	err := q.QueryRow(ctx, readSlotSQL, slot).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return payload, nil
}
