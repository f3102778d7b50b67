package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/store"
)

const trackColumns = `id, name, size, type, last_modified, duration, bpm, sample_rate, offset_seconds, file_handle, dir_handle`

// TrackRepository handles track database operations.
type TrackRepository struct {
	pool *pgxpool.Pool
}

func scanTrack(row pgx.Row) (*model.Track, error) {
	var track model.Track
	err := row.Scan(
		&track.ID,
		&track.Name,
		&track.Size,
		&track.Type,
		&track.LastModified,
		&track.Duration,
		&track.BPM,
		&track.SampleRate,
		&track.Offset,
		&track.FileHandle,
		&track.DirHandle,
	)
	if err != nil {
		return nil, err
	}
	return &track, nil
}

// GetTrack retrieves a track by ID.
func (r *TrackRepository) GetTrack(ctx context.Context, id uuid.UUID) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = $1`
	track, err := scanTrack(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return track, nil
}

// FindTrack retrieves a track by fingerprint, preferring one with a tempo.
func (r *TrackRepository) FindTrack(ctx context.Context, fp model.Fingerprint) (*model.Track, error) {
	query := `
		SELECT ` + trackColumns + `
		FROM tracks
		WHERE name = $1 AND size = $2
		ORDER BY bpm IS NULL, last_modified DESC
		LIMIT 1
	`
	track, err := scanTrack(r.pool.QueryRow(ctx, query, fp.Name, fp.Size))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track by fingerprint: %w", err)
	}
	return track, nil
}

// PutTrack creates or updates a track.
func (r *TrackRepository) PutTrack(ctx context.Context, track *model.Track) error {
	query := `
		INSERT INTO tracks (` + trackColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			size = EXCLUDED.size,
			type = EXCLUDED.type,
			last_modified = EXCLUDED.last_modified,
			duration = EXCLUDED.duration,
			bpm = EXCLUDED.bpm,
			sample_rate = EXCLUDED.sample_rate,
			offset_seconds = EXCLUDED.offset_seconds,
			file_handle = EXCLUDED.file_handle,
			dir_handle = EXCLUDED.dir_handle
	`
	_, err := r.pool.Exec(ctx, query,
		track.ID,
		track.Name,
		track.Size,
		track.Type,
		track.LastModified,
		track.Duration,
		track.BPM,
		track.SampleRate,
		track.Offset,
		track.FileHandle,
		track.DirHandle,
	)
	if err != nil {
		return fmt.Errorf("upserting track: %w", err)
	}
	return nil
}

// DeleteTrack removes a track by ID.
func (r *TrackRepository) DeleteTrack(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM tracks WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("deleting track: %w", err)
	}
	return nil
}

// ListTracks retrieves all tracks, most recently modified first.
func (r *TrackRepository) ListTracks(ctx context.Context) ([]model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks ORDER BY last_modified DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying tracks: %w", err)
	}
	defer rows.Close()

	var tracks []model.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		tracks = append(tracks, *track)
	}
	return tracks, rows.Err()
}
