// Package db provides PostgreSQL database access for mix sessions.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/go-mixpoint/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	id             UUID PRIMARY KEY,
	name           TEXT NOT NULL,
	size           BIGINT NOT NULL,
	type           TEXT NOT NULL DEFAULT '',
	last_modified  TIMESTAMPTZ NOT NULL,
	duration       DOUBLE PRECISION NOT NULL DEFAULT 0,
	bpm            DOUBLE PRECISION,
	sample_rate    INTEGER NOT NULL DEFAULT 0,
	offset_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	file_handle    TEXT NOT NULL DEFAULT '',
	dir_handle     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tracks_fingerprint ON tracks (name, size);
CREATE INDEX IF NOT EXISTS idx_tracks_bpm ON tracks (bpm);

CREATE TABLE IF NOT EXISTS mixes (
	id         UUID PRIMARY KEY,
	tracks     JSONB NOT NULL,
	mix_points JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS sets (
	id    UUID PRIMARY KEY,
	mixes JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS state (
	key TEXT PRIMARY KEY,
	doc JSONB NOT NULL
);
`

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool

	*TrackRepository
	*MixRepository
	*StateRepository
}

// New creates a new database connection pool and applies the schema.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{
		pool:            pool,
		TrackRepository: &TrackRepository{pool: pool},
		MixRepository:   &MixRepository{pool: pool},
		StateRepository: &StateRepository{pool: pool},
	}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// Pool returns the underlying connection pool for advanced operations.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Tracks returns the TrackRepository.
func (db *DB) Tracks() *TrackRepository {
	return db.TrackRepository
}

// Mixes returns the MixRepository.
func (db *DB) Mixes() *MixRepository {
	return db.MixRepository
}

// State returns the StateRepository.
func (db *DB) State() *StateRepository {
	return db.StateRepository
}

var _ store.Store = (*DB)(nil)
