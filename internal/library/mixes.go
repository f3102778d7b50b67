package library

import (
	"context"

	"github.com/google/uuid"

	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/store"
)

// Mixes is the mix aggregate store.
type Mixes struct {
	store store.MixStore
	opts  options
}

// NewMixes creates a mix store over s.
func NewMixes(s store.MixStore, opts ...Option) *Mixes {
	return &Mixes{store: s, opts: newOptions(opts)}
}

// AddMix stores a new mix and returns its ID.
func (m *Mixes) AddMix(ctx context.Context, trackIDs []uuid.UUID, points []model.MixPoint) (uuid.UUID, error) {
	mix := model.Mix{Tracks: trackIDs, MixPoints: points}
	if err := mix.Validate(); err != nil {
		return uuid.Nil, err
	}
	if err := m.store.AddMix(ctx, &mix); err != nil {
		return uuid.Nil, m.opts.fail(ctx, "add mix", err)
	}
	return mix.ID, nil
}

// GetMix returns the mix with id, or store.ErrNotFound.
func (m *Mixes) GetMix(ctx context.Context, id uuid.UUID) (*model.Mix, error) {
	mix, err := m.store.GetMix(ctx, id)
	if err != nil {
		return nil, m.opts.fail(ctx, "get mix", err)
	}
	return mix, nil
}

// ReplaceMix overwrites a stored mix as a whole.
func (m *Mixes) ReplaceMix(ctx context.Context, mix model.Mix) error {
	if err := mix.Validate(); err != nil {
		return err
	}
	if err := m.store.ReplaceMix(ctx, &mix); err != nil {
		return m.opts.fail(ctx, "replace mix", err)
	}
	return nil
}

// RemoveMix deletes a mix. Removing a missing mix succeeds.
func (m *Mixes) RemoveMix(ctx context.Context, id uuid.UUID) error {
	if err := m.store.DeleteMix(ctx, id); err != nil {
		return m.opts.fail(ctx, "remove mix", err)
	}
	return nil
}

// Sets stores ordered sequences of mixes.
type Sets struct {
	store store.MixStore
	opts  options
}

// NewSets creates a set store over s.
func NewSets(s store.MixStore, opts ...Option) *Sets {
	return &Sets{store: s, opts: newOptions(opts)}
}

// AddSet stores a new set and returns its ID.
func (s *Sets) AddSet(ctx context.Context, mixIDs []uuid.UUID) (uuid.UUID, error) {
	set := model.Set{Mixes: mixIDs}
	if err := s.store.AddSet(ctx, &set); err != nil {
		return uuid.Nil, s.opts.fail(ctx, "add set", err)
	}
	return set.ID, nil
}

// GetSet returns the set with id, or store.ErrNotFound.
func (s *Sets) GetSet(ctx context.Context, id uuid.UUID) (*model.Set, error) {
	set, err := s.store.GetSet(ctx, id)
	if err != nil {
		return nil, s.opts.fail(ctx, "get set", err)
	}
	return set, nil
}

// RemoveSet deletes a set. Removing a missing set succeeds.
func (s *Sets) RemoveSet(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteSet(ctx, id); err != nil {
		return s.opts.fail(ctx, "remove set", err)
	}
	return nil
}
