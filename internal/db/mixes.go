package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/store"
)

// MixRepository handles mix and set database operations.
type MixRepository struct {
	pool *pgxpool.Pool
}

// AddMix inserts a new mix, assigning an ID if unset.
func (r *MixRepository) AddMix(ctx context.Context, mix *model.Mix) error {
	if mix.ID == uuid.Nil {
		mix.ID = uuid.New()
	}
	tracks, points, err := encodeMix(mix)
	if err != nil {
		return err
	}
	query := `INSERT INTO mixes (id, tracks, mix_points) VALUES ($1, $2, $3)`
	if _, err := r.pool.Exec(ctx, query, mix.ID, tracks, points); err != nil {
		return fmt.Errorf("inserting mix: %w", err)
	}
	return nil
}

// GetMix retrieves a mix by ID.
func (r *MixRepository) GetMix(ctx context.Context, id uuid.UUID) (*model.Mix, error) {
	query := `SELECT tracks, mix_points FROM mixes WHERE id = $1`
	var tracks, points []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(&tracks, &points)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying mix: %w", err)
	}

	mix := model.Mix{ID: id}
	if err := json.Unmarshal(tracks, &mix.Tracks); err != nil {
		return nil, fmt.Errorf("decoding mix tracks: %w", err)
	}
	if err := json.Unmarshal(points, &mix.MixPoints); err != nil {
		return nil, fmt.Errorf("decoding mix points: %w", err)
	}
	return &mix, nil
}

// ReplaceMix overwrites an existing mix.
func (r *MixRepository) ReplaceMix(ctx context.Context, mix *model.Mix) error {
	tracks, points, err := encodeMix(mix)
	if err != nil {
		return err
	}
	query := `UPDATE mixes SET tracks = $2, mix_points = $3 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, mix.ID, tracks, points)
	if err != nil {
		return fmt.Errorf("replacing mix: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteMix removes a mix by ID.
func (r *MixRepository) DeleteMix(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM mixes WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("deleting mix: %w", err)
	}
	return nil
}

// AddSet inserts a new set, assigning an ID if unset.
func (r *MixRepository) AddSet(ctx context.Context, set *model.Set) error {
	if set.ID == uuid.Nil {
		set.ID = uuid.New()
	}
	mixes := set.Mixes
	if mixes == nil {
		mixes = []uuid.UUID{}
	}
	encoded, err := json.Marshal(mixes)
	if err != nil {
		return fmt.Errorf("encoding set mixes: %w", err)
	}
	query := `INSERT INTO sets (id, mixes) VALUES ($1, $2)`
	if _, err := r.pool.Exec(ctx, query, set.ID, encoded); err != nil {
		return fmt.Errorf("inserting set: %w", err)
	}
	return nil
}

// GetSet retrieves a set by ID.
func (r *MixRepository) GetSet(ctx context.Context, id uuid.UUID) (*model.Set, error) {
	query := `SELECT mixes FROM sets WHERE id = $1`
	var mixes []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(&mixes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying set: %w", err)
	}

	set := model.Set{ID: id}
	if err := json.Unmarshal(mixes, &set.Mixes); err != nil {
		return nil, fmt.Errorf("decoding set mixes: %w", err)
	}
	return &set, nil
}

// DeleteSet removes a set by ID.
func (r *MixRepository) DeleteSet(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM sets WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("deleting set: %w", err)
	}
	return nil
}

func encodeMix(mix *model.Mix) ([]byte, []byte, error) {
	trackIDs := mix.Tracks
	if trackIDs == nil {
		trackIDs = []uuid.UUID{}
	}
	tracks, err := json.Marshal(trackIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding mix tracks: %w", err)
	}
	mixPoints := mix.MixPoints
	if mixPoints == nil {
		mixPoints = []model.MixPoint{}
	}
	points, err := json.Marshal(mixPoints)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding mix points: %w", err)
	}
	return tracks, points, nil
}
