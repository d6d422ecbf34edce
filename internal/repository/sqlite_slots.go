package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nikolayk812/sneakercart/internal/port"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS cart_slots (
	slot       TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

type sqliteSlots struct {
	db *sql.DB
}

// OpenSQLite opens the file at path, taking write locks at BEGIN so that
// concurrent processes queue behind each other instead of failing.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(1)

	return db, nil
}

func NewSQLiteSlots(ctx context.Context, db *sql.DB) (port.SlotStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("db.ExecContext schema: %w", err)
	}

	return &sqliteSlots{db: db}, nil
}

func (r *sqliteSlots) ReadSlot(ctx context.Context, slot string) ([]byte, error) {
	if slot == "" {
		return nil, fmt.Errorf("slot is empty")
	}

	payload, err := sqliteReadPayload(ctx, r.db.QueryRowContext, slot)
	if err != nil {
		return nil, fmt.Errorf("sqliteReadPayload: %w", err)
	}

	return payload, nil
}

func (r *sqliteSlots) UpdateSlot(ctx context.Context, slot string, fn func([]byte) ([]byte, error)) (txErr error) {
	if slot == "" {
		return fmt.Errorf("slot is empty")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db.BeginTx: %w", err)
	}

	defer func() {
		if txErr != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				txErr = errors.Join(txErr, fmt.Errorf("tx.Rollback: %w", rollbackErr))
			}
		}
	}()

	current, err := sqliteReadPayload(ctx, tx.QueryRowContext, slot)
	if err != nil {
		return fmt.Errorf("sqliteReadPayload: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cart_slots (slot, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (slot) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		slot, next, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("tx.ExecContext upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx.Commit: %w", err)
	}

	return nil
}

type queryRowFunc func(ctx context.Context, query string, args ...any) *sql.Row

func sqliteReadPayload(ctx context.Context, queryRow queryRowFunc, slot string) ([]byte, error) {
	var payload []byte

	err := queryRow(ctx, `SELECT payload FROM cart_slots WHERE slot = ?`, slot).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return payload, nil
}
