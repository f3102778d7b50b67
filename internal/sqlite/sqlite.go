// Package sqlite provides the embedded SQLite storage backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/justestif/go-mixpoint/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	size           INTEGER NOT NULL,
	type           TEXT NOT NULL DEFAULT '',
	last_modified  INTEGER NOT NULL,
	duration       REAL NOT NULL DEFAULT 0,
	bpm            REAL,
	sample_rate    INTEGER NOT NULL DEFAULT 0,
	offset_seconds REAL NOT NULL DEFAULT 0,
	file_handle    TEXT NOT NULL DEFAULT '',
	dir_handle     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tracks_fingerprint ON tracks(name, size);
CREATE INDEX IF NOT EXISTS idx_tracks_bpm ON tracks(bpm);

CREATE TABLE IF NOT EXISTS mixes (
	id         TEXT PRIMARY KEY,
	tracks     TEXT NOT NULL,
	mix_points TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sets (
	id    TEXT PRIMARY KEY,
	mixes TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS state (
	key TEXT PRIMARY KEY,
	doc TEXT NOT NULL
);
`

// DB wraps an SQLite database file.
type DB struct {
	db *sql.DB

	*TrackRepository
	*MixRepository
	*StateRepository
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(FULL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: every transaction, including state read-modify-write,
	// runs strictly after the previous one.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{
		db:              sqlDB,
		TrackRepository: &TrackRepository{db: sqlDB},
		MixRepository:   &MixRepository{db: sqlDB},
		StateRepository: &StateRepository{db: sqlDB},
	}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Tracks returns the TrackRepository.
func (d *DB) Tracks() *TrackRepository {
	return d.TrackRepository
}

// Mixes returns the MixRepository.
func (d *DB) Mixes() *MixRepository {
	return d.MixRepository
}

// State returns the StateRepository.
func (d *DB) State() *StateRepository {
	return d.StateRepository
}

var _ store.Store = (*DB)(nil)
