package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/justestif/go-mixpoint/internal/store"
)

// StateRepository handles session document operations.
type StateRepository struct {
	db *sql.DB
}

// GetState retrieves a document by key.
func (r *StateRepository) GetState(ctx context.Context, key string) ([]byte, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM state WHERE key = ?`, key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying state %q: %w", key, err)
	}
	return []byte(doc), nil
}

// PutState replaces a document.
func (r *StateRepository) PutState(ctx context.Context, key string, doc []byte) error {
	return putState(ctx, r.db, key, doc)
}

// UpdateState reads, transforms and writes a document in one transaction.
func (r *StateRepository) UpdateState(ctx context.Context, key string, fn store.UpdateFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current []byte
	var doc string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM state WHERE key = ?`, key).Scan(&doc)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("querying state %q: %w", key, err)
	default:
		current = []byte(doc)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if err := putState(ctx, tx, key, next); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// SeedState stores doc only if key has no document yet.
func (r *StateRepository) SeedState(ctx context.Context, key string, doc []byte) (bool, error) {
	query := `INSERT INTO state (key, doc) VALUES (?, ?) ON CONFLICT (key) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, key, string(doc))
	if err != nil {
		return false, fmt.Errorf("seeding state %q: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("seeding state %q: %w", key, err)
	}
	return n > 0, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putState(ctx context.Context, db execer, key string, doc []byte) error {
	query := `
		INSERT INTO state (key, doc) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET doc = excluded.doc
	`
	if _, err := db.ExecContext(ctx, query, key, string(doc)); err != nil {
		return fmt.Errorf("writing state %q: %w", key, err)
	}
	return nil
}
