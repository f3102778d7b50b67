package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/go-mixpoint/internal/store"
)

// StateRepository handles session document operations.
type StateRepository struct {
	pool *pgxpool.Pool
}

// GetState retrieves a document by key.
func (r *StateRepository) GetState(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT doc FROM state WHERE key = $1`
	var doc []byte
	err := r.pool.QueryRow(ctx, query, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying state %q: %w", key, err)
	}
	return doc, nil
}

// PutState replaces a document.
func (r *StateRepository) PutState(ctx context.Context, key string, doc []byte) error {
	query := `
		INSERT INTO state (key, doc) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc
	`
	if _, err := r.pool.Exec(ctx, query, key, doc); err != nil {
		return fmt.Errorf("writing state %q: %w", key, err)
	}
	return nil
}

// UpdateState reads, transforms and writes a document in one transaction.
// A transaction-scoped advisory lock on the key serializes concurrent
// updates, including the first one when no row exists yet.
func (r *StateRepository) UpdateState(ctx context.Context, key string, fn store.UpdateFunc) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("locking state %q: %w", key, err)
	}

	var current []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM state WHERE key = $1`, key).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("querying state %q: %w", key, err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO state (key, doc) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc
	`
	if _, err := tx.Exec(ctx, query, key, next); err != nil {
		return fmt.Errorf("writing state %q: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// SeedState stores doc only if key has no document yet.
func (r *StateRepository) SeedState(ctx context.Context, key string, doc []byte) (bool, error) {
	query := `INSERT INTO state (key, doc) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`
	result, err := r.pool.Exec(ctx, query, key, doc)
	if err != nil {
		return false, fmt.Errorf("seeding state %q: %w", key, err)
	}
	return result.RowsAffected() > 0, nil
}
