package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/store"
)

// MixRepository handles mix and set database operations.
type MixRepository struct {
	db *sql.DB
}

// AddMix inserts a new mix, assigning an ID if unset.
func (r *MixRepository) AddMix(ctx context.Context, m *model.Mix) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	tracks, points, err := encodeMix(m)
	if err != nil {
		return err
	}
	query := `INSERT INTO mixes (id, tracks, mix_points) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, m.ID.String(), tracks, points); err != nil {
		return fmt.Errorf("inserting mix: %w", err)
	}
	return nil
}

// GetMix retrieves a mix by ID.
func (r *MixRepository) GetMix(ctx context.Context, id uuid.UUID) (*model.Mix, error) {
	var tracks, points string
	query := `SELECT tracks, mix_points FROM mixes WHERE id = ?`
	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(&tracks, &points)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying mix: %w", err)
	}

	m := model.Mix{ID: id}
	if err := json.Unmarshal([]byte(tracks), &m.Tracks); err != nil {
		return nil, fmt.Errorf("decoding mix tracks: %w", err)
	}
	if err := json.Unmarshal([]byte(points), &m.MixPoints); err != nil {
		return nil, fmt.Errorf("decoding mix points: %w", err)
	}
	return &m, nil
}

// ReplaceMix overwrites an existing mix.
func (r *MixRepository) ReplaceMix(ctx context.Context, m *model.Mix) error {
	tracks, points, err := encodeMix(m)
	if err != nil {
		return err
	}
	query := `UPDATE mixes SET tracks = ?, mix_points = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, tracks, points, m.ID.String())
	if err != nil {
		return fmt.Errorf("replacing mix: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replacing mix: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteMix removes a mix by ID.
func (r *MixRepository) DeleteMix(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM mixes WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("deleting mix: %w", err)
	}
	return nil
}

// AddSet inserts a new set, assigning an ID if unset.
func (r *MixRepository) AddSet(ctx context.Context, s *model.Set) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	mixes, err := json.Marshal(nonNil(s.Mixes))
	if err != nil {
		return fmt.Errorf("encoding set mixes: %w", err)
	}
	query := `INSERT INTO sets (id, mixes) VALUES (?, ?)`
	if _, err := r.db.ExecContext(ctx, query, s.ID.String(), string(mixes)); err != nil {
		return fmt.Errorf("inserting set: %w", err)
	}
	return nil
}

// GetSet retrieves a set by ID.
func (r *MixRepository) GetSet(ctx context.Context, id uuid.UUID) (*model.Set, error) {
	var mixes string
	err := r.db.QueryRowContext(ctx, `SELECT mixes FROM sets WHERE id = ?`, id.String()).Scan(&mixes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying set: %w", err)
	}

	s := model.Set{ID: id}
	if err := json.Unmarshal([]byte(mixes), &s.Mixes); err != nil {
		return nil, fmt.Errorf("decoding set mixes: %w", err)
	}
	return &s, nil
}

// DeleteSet removes a set by ID.
func (r *MixRepository) DeleteSet(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sets WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("deleting set: %w", err)
	}
	return nil
}

func encodeMix(m *model.Mix) (string, string, error) {
	tracks, err := json.Marshal(nonNil(m.Tracks))
	if err != nil {
		return "", "", fmt.Errorf("encoding mix tracks: %w", err)
	}
	points := m.MixPoints
	if points == nil {
		points = []model.MixPoint{}
	}
	encoded, err := json.Marshal(points)
	if err != nil {
		return "", "", fmt.Errorf("encoding mix points: %w", err)
	}
	return string(tracks), string(encoded), nil
}

func nonNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
