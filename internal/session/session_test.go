package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/notify"
	"github.com/justestif/go-mixpoint/internal/sqlite"
	"github.com/justestif/go-mixpoint/internal/store"
	"github.com/justestif/go-mixpoint/internal/store/memory"
)

func ptr[T any](v T) *T { return &v }

// brokenBackend fails every write.
type brokenBackend struct {
	*memory.Store
	err error
}

func (b *brokenBackend) UpdateState(context.Context, string, store.UpdateFunc) error {
	return b.err
}

func (b *brokenBackend) PutState(context.Context, string, []byte) error {
	return b.err
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(memory.New(), opts...)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	return s
}

func track(name string, bpm float64) *model.Track {
	return &model.Track{ID: uuid.New(), Name: name, Size: 1000, BPM: ptr(bpm)}
}

func TestInit_SeedsOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.UpdateMixState(ctx, model.MixStatePatch{BPMSync: ptr(true)}); err != nil {
		t.Fatalf("UpdateMixState() error: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init() error: %v", err)
	}

	m, err := s.MixState(ctx)
	if err != nil {
		t.Fatalf("MixState() error: %v", err)
	}
	if !m.BPMSync {
		t.Error("second Init() overwrote the mix document")
	}
}

func TestInit_ClearsInterruptedAnalysis(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	db, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	s := New(db)
	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	a := track("a.mp3", 120)
	if _, err := s.UpdateMixState(ctx, model.MixStatePatch{Tracks: map[model.Slot]model.SlotPatch{
		"track0": {Track: a, Analyzing: ptr(true)},
		"track1": {Analyzing: ptr(true)},
	}}); err != nil {
		t.Fatalf("UpdateMixState() error: %v", err)
	}
	// The process dies mid-load: nothing resets the flags before the close.
	db.Close()

	db, err = sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s = New(db)
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init() after restart error: %v", err)
	}

	m, err := s.MixState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m.AnyAnalyzing() {
		t.Errorf("slots still analyzing after restart: %+v", m.Tracks)
	}
	if st := m.SlotState("track0"); st.ID != a.ID || st.Phase() != model.PhaseReady {
		t.Errorf("track0 = %+v, want a.mp3 ready", st)
	}
	if _, ok := m.Tracks["track1"]; ok {
		t.Errorf("track1 = %+v, want removed", m.Tracks["track1"])
	}
}

func TestInit_NoAnalysisNoWrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	events, cancel := s.Subscribe()
	defer cancel()

	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		t.Errorf("Init() published %+v with nothing to clear", ev)
	default:
	}
}

func TestGetState(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())

	doc, err := s.GetState(ctx, model.SetStateKey)
	if err != nil {
		t.Fatalf("GetState() error: %v", err)
	}
	if string(doc) != "{}" {
		t.Errorf("GetState() of absent doc = %s, want {}", doc)
	}

	if _, err := s.GetState(ctx, "playlist"); !errors.Is(err, model.ErrUnknownStateKey) {
		t.Errorf("GetState(unknown) error = %v, want ErrUnknownStateKey", err)
	}

	m, err := s.MixState(ctx)
	if err != nil {
		t.Fatalf("MixState() of absent doc error: %v", err)
	}
	if len(m.Tracks) != 0 {
		t.Errorf("MixState() = %+v, want empty", m)
	}
}

func TestUpdateMixState_RetainsOtherSlots(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := track("a.mp3", 120)
	b := track("b.mp3", 128)
	if _, err := s.UpdateSlot(ctx, "track0", model.SlotPatch{Track: a}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateSlot(ctx, "track1", model.SlotPatch{Track: b}); err != nil {
		t.Fatal(err)
	}

	m, err := s.UpdateSlot(ctx, "track0", model.SlotPatch{AdjustedBPM: ptr(124.04)})
	if err != nil {
		t.Fatalf("UpdateSlot() error: %v", err)
	}

	if got := m.SlotState("track1"); got.ID != b.ID {
		t.Errorf("track1 = %v, want %v", got.ID, b.ID)
	}
	got := m.SlotState("track0")
	if got.ID != a.ID || got.AdjustedBPM == nil || *got.AdjustedBPM != 124.0 {
		t.Errorf("track0 = %+v", got)
	}
}

func TestUpdateMixState_UnknownSlot(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpdateSlot(context.Background(), "track2", model.SlotPatch{Track: track("x.mp3", 1)})
	if !errors.Is(err, model.ErrUnknownSlot) {
		t.Errorf("error = %v, want ErrUnknownSlot", err)
	}

	wide := newTestStore(t, WithSlots(3))
	if _, err := wide.UpdateSlot(context.Background(), "track2", model.SlotPatch{Track: track("x.mp3", 1)}); err != nil {
		t.Errorf("three-slot store rejected track2: %v", err)
	}
}

func TestUpdateMixState_ConcurrentDisjointSlots(t *testing.T) {
	backends := map[string]func(t *testing.T) store.StateStore{
		"memory": func(*testing.T) store.StateStore { return memory.New() },
		"sqlite": func(t *testing.T) store.StateStore {
			db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
			if err != nil {
				t.Fatalf("sqlite.Open() error: %v", err)
			}
			t.Cleanup(func() { db.Close() })
			return db
		},
	}

	for name, newBackend := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(newBackend(t))
			if err := s.Init(ctx); err != nil {
				t.Fatal(err)
			}

			a, b := track("a.mp3", 100), track("b.mp3", 140)
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					if _, err := s.UpdateSlot(ctx, "track0", model.SlotPatch{Track: a, FileRef: ptr(fmt.Sprintf("a-%d", i))}); err != nil {
						t.Errorf("track0 update: %v", err)
					}
				}(i)
				go func(i int) {
					defer wg.Done()
					if _, err := s.UpdateSlot(ctx, "track1", model.SlotPatch{Track: b, FileRef: ptr(fmt.Sprintf("b-%d", i))}); err != nil {
						t.Errorf("track1 update: %v", err)
					}
				}(i)
			}
			wg.Wait()

			m, err := s.MixState(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if m.SlotState("track0").ID != a.ID || m.SlotState("track1").ID != b.ID {
				t.Errorf("lost an update: %+v", m.Tracks)
			}
		})
	}
}

func TestUpdateTrackState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := model.TrackSlotState{Track: *track("a.mp3", 120)}
	b := model.TrackSlotState{Track: *track("b.mp3", 125)}
	c := model.TrackSlotState{Track: *track("c.mp3", 130)}

	_, slot, err := s.UpdateTrackState(ctx, a)
	if err != nil || slot != "track0" {
		t.Fatalf("first UpdateTrackState() = %q, %v; want track0", slot, err)
	}
	_, slot, err = s.UpdateTrackState(ctx, b)
	if err != nil || slot != "track1" {
		t.Fatalf("second UpdateTrackState() = %q, %v; want track1", slot, err)
	}

	a.AdjustedBPM = ptr(118.0)
	m, slot, err := s.UpdateTrackState(ctx, a)
	if err != nil || slot != "track0" {
		t.Fatalf("matching UpdateTrackState() = %q, %v; want track0", slot, err)
	}
	if got := m.SlotState("track0").AdjustedBPM; got == nil || *got != 118 {
		t.Errorf("track0 adjusted = %v, want 118", got)
	}

	if _, _, err := s.UpdateTrackState(ctx, c); !errors.Is(err, model.ErrNoFreeSlot) {
		t.Errorf("full UpdateTrackState() error = %v, want ErrNoFreeSlot", err)
	}
	if _, _, err := s.UpdateTrackState(ctx, model.TrackSlotState{}); !errors.Is(err, ErrNoTrack) {
		t.Errorf("empty UpdateTrackState() error = %v, want ErrNoTrack", err)
	}
}

func TestUpdateState_FullReplace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.UpdateSlot(ctx, "track1", model.SlotPatch{Track: track("old.mp3", 90)}); err != nil {
		t.Fatal(err)
	}

	next, _ := json.Marshal(model.MixState{
		Tracks:  map[model.Slot]model.TrackSlotState{"track0": {Track: *track("new.mp3", 100)}},
		BPMSync: true,
	})
	if _, err := s.UpdateState(ctx, model.MixStateKey, next); err != nil {
		t.Fatalf("UpdateState() error: %v", err)
	}

	m, err := s.MixState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Tracks["track1"]; ok {
		t.Error("full replace kept track1")
	}
	if m.SlotState("track0").Name != "new.mp3" || !m.BPMSync {
		t.Errorf("MixState() = %+v", m)
	}
}

func TestUpdateState_Rejects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		key  string
		doc  string
	}{
		{"unknown field", model.MixStateKey, `{"tracks":{},"volume":3}`},
		{"unknown slot", model.MixStateKey, `{"tracks":{"track7":{"name":"a"}}}`},
		{"unknown key", "other", `{}`},
		{"set unknown field", model.SetStateKey, `{"mixId":"x"}`},
		{"not json", model.SetStateKey, `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.UpdateState(ctx, tt.key, json.RawMessage(tt.doc)); err == nil {
				t.Errorf("UpdateState(%s) succeeded, want error", tt.doc)
			}
		})
	}
}

func TestUpdateSetState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := uuid.New()

	st, err := s.UpdateSetState(ctx, model.SetStatePatch{SetID: &id})
	if err != nil {
		t.Fatalf("UpdateSetState() error: %v", err)
	}
	if st.SetID == nil || *st.SetID != id {
		t.Errorf("SetID = %v, want %v", st.SetID, id)
	}

	st, err = s.UpdateSetState(ctx, model.SetStatePatch{})
	if err != nil {
		t.Fatal(err)
	}
	if st.SetID == nil || *st.SetID != id {
		t.Error("empty patch dropped SetID")
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ch, cancel := s.Subscribe()
	defer cancel()

	if _, err := s.UpdateMixState(ctx, model.MixStatePatch{BPMSync: ptr(true)}); err != nil {
		t.Fatal(err)
	}

	select {
	case snap := <-ch:
		if snap.Key != model.MixStateKey {
			t.Errorf("Key = %q", snap.Key)
		}
		m, err := model.DecodeMixState(snap.Doc)
		if err != nil || !m.BPMSync {
			t.Errorf("snapshot = %s, %v", snap.Doc, err)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
}

func TestStorageFailure_NotifiedOnce(t *testing.T) {
	ctx := context.Background()
	buf := notify.NewBuffer(10)
	s := New(&brokenBackend{Store: memory.New(), err: errors.New("database is locked")}, WithNotifier(buf))

	m, err := s.UpdateMixState(ctx, model.MixStatePatch{BPMSync: ptr(true)})
	if m != nil {
		t.Errorf("result = %+v, want nil", m)
	}
	var se *store.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StorageError", err)
	}

	if _, err := s.UpdateState(ctx, model.SetStateKey, json.RawMessage(`{}`)); !errors.As(err, &se) {
		t.Fatalf("UpdateState() error = %v, want *StorageError", err)
	}

	if n := len(buf.Recent()); n != 2 {
		t.Errorf("notifications = %d, want 2 (one per failed call)", n)
	}
}

func TestCorruptDocument_IsStorageFailure(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	if err := backend.PutState(ctx, model.MixStateKey, []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	buf := notify.NewBuffer(10)
	s := New(backend, WithNotifier(buf))

	_, err := s.UpdateMixState(ctx, model.MixStatePatch{BPMSync: ptr(true)})
	var se *store.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StorageError", err)
	}
	if n := len(buf.Recent()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}

	doc, _ := backend.GetState(ctx, model.MixStateKey)
	if string(doc) != "not json" {
		t.Errorf("failed update modified the document: %s", doc)
	}
}
