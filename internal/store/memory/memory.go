// Package memory is an in-process store.Store used for ephemeral sessions
// and tests. Records are copied on the way in and out.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/store"
)

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu     sync.Mutex
	tracks map[uuid.UUID]model.Track
	mixes  map[uuid.UUID]model.Mix
	sets   map[uuid.UUID]model.Set
	state  map[string][]byte
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		tracks: make(map[uuid.UUID]model.Track),
		mixes:  make(map[uuid.UUID]model.Mix),
		sets:   make(map[uuid.UUID]model.Set),
		state:  make(map[string][]byte),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func copyTrack(t model.Track) *model.Track {
	if t.BPM != nil {
		v := *t.BPM
		t.BPM = &v
	}
	return &t
}

// GetTrack returns a copy of the track with id.
func (s *Store) GetTrack(_ context.Context, id uuid.UUID) (*model.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyTrack(t), nil
}

// FindTrack returns the track matching fp, preferring one with a tempo,
// then the most recently modified.
func (s *Store) FindTrack(_ context.Context, fp model.Fingerprint) (*model.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *model.Track
	for _, t := range s.tracks {
		if t.Fingerprint() != fp {
			continue
		}
		switch {
		case best == nil:
		case t.HasTempo() && !best.HasTempo():
		case t.HasTempo() == best.HasTempo() && t.LastModified.After(best.LastModified):
		default:
			continue
		}
		best = copyTrack(t)
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

// PutTrack inserts or replaces t.
func (s *Store) PutTrack(_ context.Context, t *model.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[t.ID] = *copyTrack(*t)
	return nil
}

// DeleteTrack removes the track with id. A missing track is not an error.
func (s *Store) DeleteTrack(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracks, id)
	return nil
}

// ListTracks returns every track, most recently modified first.
func (s *Store) ListTracks(_ context.Context) ([]model.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, *copyTrack(t))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

func copyMix(m model.Mix) *model.Mix {
	m.Tracks = append([]uuid.UUID(nil), m.Tracks...)
	m.MixPoints = append([]model.MixPoint(nil), m.MixPoints...)
	return &m
}

// AddMix stores m, assigning an ID if it has none.
func (s *Store) AddMix(_ context.Context, m *model.Mix) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixes[m.ID] = *copyMix(*m)
	return nil
}

// GetMix returns a copy of the mix with id.
func (s *Store) GetMix(_ context.Context, id uuid.UUID) (*model.Mix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mixes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyMix(m), nil
}

// ReplaceMix overwrites an existing mix.
func (s *Store) ReplaceMix(_ context.Context, m *model.Mix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mixes[m.ID]; !ok {
		return store.ErrNotFound
	}
	s.mixes[m.ID] = *copyMix(*m)
	return nil
}

// DeleteMix removes the mix with id.
func (s *Store) DeleteMix(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mixes, id)
	return nil
}

// AddSet stores set, assigning an ID if it has none.
func (s *Store) AddSet(_ context.Context, set *model.Set) error {
	if set.ID == uuid.Nil {
		set.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[set.ID] = model.Set{ID: set.ID, Mixes: append([]uuid.UUID(nil), set.Mixes...)}
	return nil
}

// GetSet returns a copy of the set with id.
func (s *Store) GetSet(_ context.Context, id uuid.UUID) (*model.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &model.Set{ID: set.ID, Mixes: append([]uuid.UUID(nil), set.Mixes...)}, nil
}

// DeleteSet removes the set with id.
func (s *Store) DeleteSet(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, id)
	return nil
}

// GetState returns a copy of the document stored under key.
func (s *Store) GetState(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.state[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return bytes.Clone(doc), nil
}

// PutState overwrites the document under key.
func (s *Store) PutState(_ context.Context, key string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = bytes.Clone(doc)
	return nil
}

// UpdateState holds the store mutex while fn runs.
func (s *Store) UpdateState(_ context.Context, key string, fn store.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(bytes.Clone(s.state[key]))
	if err != nil {
		return err
	}
	s.state[key] = bytes.Clone(next)
	return nil
}

// SeedState writes doc only if key is unset and reports whether it did.
func (s *Store) SeedState(_ context.Context, key string, doc []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state[key]; ok {
		return false, nil
	}
	s.state[key] = bytes.Clone(doc)
	return true, nil
}

var _ store.Store = (*Store)(nil)
