// Package session holds the live mix and set documents shared by the
// track panels. Every update is a read-modify-write that runs under a
// per-document lock and inside the backend's own transaction.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/justestif/go-mixpoint/internal/keylock"
	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/notify"
	"github.com/justestif/go-mixpoint/internal/store"
)

// ErrNoTrack is returned when an empty slot state is written by track.
var ErrNoTrack = errors.New("slot state has no track")

// Snapshot is a document as it stands after a successful update.
type Snapshot struct {
	Key string          `json:"key"`
	Doc json.RawMessage `json:"doc"`
}

// Store is the session state store.
type Store struct {
	backend  store.StateStore
	slots    int
	notifier notify.Notifier
	logger   *zap.Logger
	locks    keylock.Map

	subMu  sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
}

// Option configures a Store.
type Option func(*Store)

// WithSlots sets the number of track slots. Values below two are ignored.
func WithSlots(n int) Option {
	return func(s *Store) {
		if n >= model.DefaultSlots {
			s.slots = n
		}
	}
}

// WithNotifier sets where storage failures are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a session store over backend.
func New(backend store.StateStore, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		slots:   model.DefaultSlots,
		logger:  zap.NewNop(),
		subs:    make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Slots returns the number of track slots.
func (s *Store) Slots() int {
	return s.slots
}

func (s *Store) fail(ctx context.Context, op string, err error) error {
	err = store.Wrap(op, err)
	var se *store.StorageError
	if errors.As(err, &se) {
		s.logger.Error("storage failure", zap.String("op", op), zap.Error(se.Err))
		notify.Error(ctx, s.notifier, err)
	}
	return err
}

// Init seeds both documents if they do not exist yet. Existing documents
// are never overwritten, but analysis flags left behind by a previous run
// are cleared since no analysis survives a restart.
func (s *Store) Init(ctx context.Context) error {
	seeds := []struct {
		key string
		doc any
	}{
		{model.MixStateKey, model.NewMixState()},
		{model.SetStateKey, model.SetState{}},
	}
	for _, seed := range seeds {
		doc, err := json.Marshal(seed.doc)
		if err != nil {
			return fmt.Errorf("encoding %s seed: %w", seed.key, err)
		}
		wrote, err := s.backend.SeedState(ctx, seed.key, doc)
		if err != nil {
			return s.fail(ctx, "seed "+seed.key, err)
		}
		if wrote {
			s.logger.Info("seeded session document", zap.String("key", seed.key))
		}
	}
	return s.clearAnalyzing(ctx)
}

// clearAnalyzing resets every slot stuck mid-analysis. A slot that held no
// track before the interrupted load is removed.
func (s *Store) clearAnalyzing(ctx context.Context) error {
	current, err := s.MixState(ctx)
	if err != nil {
		return err
	}
	if !current.AnyAnalyzing() {
		return nil
	}
	var cleared []model.Slot
	_, err = s.ModifyMixState(ctx, func(m model.MixState) (model.MixStatePatch, error) {
		off := false
		patch := model.MixStatePatch{Tracks: map[model.Slot]model.SlotPatch{}}
		for slot, st := range m.Tracks {
			if st.Analyzing {
				patch.Tracks[slot] = model.SlotPatch{Analyzing: &off}
				cleared = append(cleared, slot)
			}
		}
		return patch, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("cleared interrupted analysis", zap.Int("slots", len(cleared)))
	return nil
}

// GetState returns the raw document for key, or {} if it was never written.
func (s *Store) GetState(ctx context.Context, key string) (json.RawMessage, error) {
	if !model.ValidStateKey(key) {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownStateKey, key)
	}
	doc, err := s.backend.GetState(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return json.RawMessage("{}"), nil
	}
	if err != nil {
		return nil, s.fail(ctx, "get "+key, err)
	}
	return doc, nil
}

// MixState returns the current mix document.
func (s *Store) MixState(ctx context.Context) (*model.MixState, error) {
	doc, err := s.GetState(ctx, model.MixStateKey)
	if err != nil {
		return nil, err
	}
	m, err := model.DecodeMixState(doc)
	if err != nil {
		return nil, s.fail(ctx, "decode "+model.MixStateKey, err)
	}
	return &m, nil
}

// SetState returns the current set document.
func (s *Store) SetState(ctx context.Context) (*model.SetState, error) {
	doc, err := s.GetState(ctx, model.SetStateKey)
	if err != nil {
		return nil, err
	}
	st, err := model.DecodeSetState(doc)
	if err != nil {
		return nil, s.fail(ctx, "decode "+model.SetStateKey, err)
	}
	return &st, nil
}

// canonical validates a full document for key and re-encodes it.
func (s *Store) canonical(key string, doc []byte) ([]byte, error) {
	switch key {
	case model.MixStateKey:
		m, err := model.DecodeMixState(doc)
		if err != nil {
			return nil, err
		}
		if err := m.Validate(s.slots); err != nil {
			return nil, err
		}
		return json.Marshal(m)
	case model.SetStateKey:
		st, err := model.DecodeSetState(doc)
		if err != nil {
			return nil, err
		}
		return json.Marshal(st)
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownStateKey, key)
	}
}

// UpdateState replaces the whole document for key.
func (s *Store) UpdateState(ctx context.Context, key string, doc json.RawMessage) (json.RawMessage, error) {
	next, err := s.canonical(key, doc)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	if err := s.backend.PutState(ctx, key, next); err != nil {
		return nil, s.fail(ctx, "put "+key, err)
	}
	s.publish(key, next)
	return next, nil
}

// update runs fn as a locked read-modify-write of key. Errors returned by
// fn are passed through unwrapped; everything else is a storage failure.
func (s *Store) update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) ([]byte, error) {
	unlock := s.locks.Lock(key)
	defer unlock()

	var next []byte
	var fnErr error
	err := s.backend.UpdateState(ctx, key, func(current []byte) ([]byte, error) {
		next, fnErr = fn(current)
		return next, fnErr
	})
	if fnErr != nil {
		var se *store.StorageError
		if errors.As(fnErr, &se) {
			return nil, s.fail(ctx, "update "+key, fnErr)
		}
		return nil, fnErr
	}
	if err != nil {
		return nil, s.fail(ctx, "update "+key, err)
	}
	s.publish(key, next)
	return next, nil
}

func (s *Store) updateMix(ctx context.Context, fn func(model.MixState) (model.MixState, error)) (*model.MixState, error) {
	var out model.MixState
	_, err := s.update(ctx, model.MixStateKey, func(current []byte) ([]byte, error) {
		m := model.NewMixState()
		if current != nil {
			decoded, err := model.DecodeMixState(current)
			if err != nil {
				return nil, store.Wrap("decode "+model.MixStateKey, err)
			}
			m = decoded
		}
		next, err := fn(m)
		if err != nil {
			return nil, err
		}
		out = next
		return json.Marshal(next)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMixState merges patch into the mix document and returns the result.
func (s *Store) UpdateMixState(ctx context.Context, patch model.MixStatePatch) (*model.MixState, error) {
	if err := patch.Validate(s.slots); err != nil {
		return nil, err
	}
	return s.updateMix(ctx, func(m model.MixState) (model.MixState, error) {
		return m.Apply(patch), nil
	})
}

// ModifyMixState computes a patch from the current mix document and merges
// it, all within one locked read-modify-write.
func (s *Store) ModifyMixState(ctx context.Context, fn func(model.MixState) (model.MixStatePatch, error)) (*model.MixState, error) {
	return s.updateMix(ctx, func(m model.MixState) (model.MixState, error) {
		patch, err := fn(m)
		if err != nil {
			return model.MixState{}, err
		}
		if err := patch.Validate(s.slots); err != nil {
			return model.MixState{}, err
		}
		return m.Apply(patch), nil
	})
}

// UpdateSlot merges patch into one slot.
func (s *Store) UpdateSlot(ctx context.Context, slot model.Slot, patch model.SlotPatch) (*model.MixState, error) {
	return s.UpdateMixState(ctx, model.MixStatePatch{
		Tracks: map[model.Slot]model.SlotPatch{slot: patch},
	})
}

// UpdateTrackState writes a slot state into the mix document. It replaces
// the slot already holding the same track, or else fills the first empty
// slot. It returns model.ErrNoFreeSlot when every slot holds another track.
func (s *Store) UpdateTrackState(ctx context.Context, state model.TrackSlotState) (*model.MixState, model.Slot, error) {
	if state.IsEmpty() {
		return nil, "", ErrNoTrack
	}
	var placed model.Slot
	m, err := s.updateMix(ctx, func(m model.MixState) (model.MixState, error) {
		slot, ok := findSlot(m, state, s.slots)
		if !ok {
			return model.MixState{}, model.ErrNoFreeSlot
		}
		placed = slot
		out := m.Clone()
		out.Tracks[slot] = state
		return out, nil
	})
	if err != nil {
		return nil, "", err
	}
	return m, placed, nil
}

func findSlot(m model.MixState, state model.TrackSlotState, n int) (model.Slot, bool) {
	slots := model.Slots(n)
	for _, slot := range slots {
		cur := m.SlotState(slot)
		if cur.ID != uuid.Nil && cur.ID == state.ID {
			return slot, true
		}
	}
	for _, slot := range slots {
		if m.SlotState(slot).IsEmpty() {
			return slot, true
		}
	}
	return "", false
}

// UpdateSetState merges patch into the set document.
func (s *Store) UpdateSetState(ctx context.Context, patch model.SetStatePatch) (*model.SetState, error) {
	var out model.SetState
	_, err := s.update(ctx, model.SetStateKey, func(current []byte) ([]byte, error) {
		var st model.SetState
		if current != nil {
			decoded, err := model.DecodeSetState(current)
			if err != nil {
				return nil, store.Wrap("decode "+model.SetStateKey, err)
			}
			st = decoded
		}
		out = st.Apply(patch)
		return json.Marshal(out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Subscribe returns a channel receiving every snapshot written after the
// call, and a func that ends the subscription. Slow subscribers miss
// intermediate snapshots rather than blocking writers.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(key string, doc []byte) {
	snap := Snapshot{Key: key, Doc: json.RawMessage(doc)}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			s.logger.Debug("dropping snapshot for slow subscriber", zap.String("key", key))
		}
	}
}
