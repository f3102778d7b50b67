package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/store"
)

const trackColumns = `id, name, size, type, last_modified, duration, bpm, sample_rate, offset_seconds, file_handle, dir_handle`

// TrackRepository handles track database operations.
type TrackRepository struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (*model.Track, error) {
	var (
		t            model.Track
		lastModified int64
		bpm          sql.NullFloat64
	)
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Size,
		&t.Type,
		&lastModified,
		&t.Duration,
		&bpm,
		&t.SampleRate,
		&t.Offset,
		&t.FileHandle,
		&t.DirHandle,
	)
	if err != nil {
		return nil, err
	}
	t.LastModified = time.UnixMilli(lastModified)
	if bpm.Valid {
		v := bpm.Float64
		t.BPM = &v
	}
	return &t, nil
}

// GetTrack retrieves a track by ID.
func (r *TrackRepository) GetTrack(ctx context.Context, id uuid.UUID) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	t, err := scanTrack(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return t, nil
}

// FindTrack retrieves a track by fingerprint, preferring one with a tempo.
func (r *TrackRepository) FindTrack(ctx context.Context, fp model.Fingerprint) (*model.Track, error) {
	query := `
		SELECT ` + trackColumns + `
		FROM tracks
		WHERE name = ? AND size = ?
		ORDER BY bpm IS NULL, last_modified DESC
		LIMIT 1
	`
	t, err := scanTrack(r.db.QueryRowContext(ctx, query, fp.Name, fp.Size))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track by fingerprint: %w", err)
	}
	return t, nil
}

// PutTrack inserts or updates a track.
func (r *TrackRepository) PutTrack(ctx context.Context, t *model.Track) error {
	query := `
		INSERT INTO tracks (` + trackColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			size = excluded.size,
			type = excluded.type,
			last_modified = excluded.last_modified,
			duration = excluded.duration,
			bpm = excluded.bpm,
			sample_rate = excluded.sample_rate,
			offset_seconds = excluded.offset_seconds,
			file_handle = excluded.file_handle,
			dir_handle = excluded.dir_handle
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID.String(),
		t.Name,
		t.Size,
		t.Type,
		t.LastModified.UnixMilli(),
		t.Duration,
		t.BPM,
		t.SampleRate,
		t.Offset,
		t.FileHandle,
		t.DirHandle,
	)
	if err != nil {
		return fmt.Errorf("upserting track: %w", err)
	}
	return nil
}

// DeleteTrack removes a track by ID.
func (r *TrackRepository) DeleteTrack(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("deleting track: %w", err)
	}
	return nil
}

// ListTracks returns all tracks, most recently modified first.
func (r *TrackRepository) ListTracks(ctx context.Context) ([]model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks ORDER BY last_modified DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying tracks: %w", err)
	}
	defer rows.Close()

	var tracks []model.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		tracks = append(tracks, *t)
	}
	return tracks, rows.Err()
}
