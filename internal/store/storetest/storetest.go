// Package storetest provides a conformance suite that every storage backend
// runs against its own implementation.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/store"
)

func ptr[T any](v T) *T { return &v }

// RunTrackStore exercises a TrackStore.
func RunTrackStore(t *testing.T, s store.TrackStore) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := s.GetTrack(ctx, uuid.New())
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetTrack() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("put and get", func(t *testing.T) {
		track := &model.Track{
			ID:           uuid.New(),
			Name:         "roundtrip.mp3",
			Size:         4096,
			Type:         "audio/mpeg",
			LastModified: time.UnixMilli(1700000000123),
			Duration:     215.5,
			BPM:          ptr(122.0),
			SampleRate:   44100,
			Offset:       1.25,
			FileHandle:   "music/roundtrip.mp3",
			DirHandle:    "music",
		}
		if err := s.PutTrack(ctx, track); err != nil {
			t.Fatalf("PutTrack() error: %v", err)
		}

		got, err := s.GetTrack(ctx, track.ID)
		if err != nil {
			t.Fatalf("GetTrack() error: %v", err)
		}
		if got.Name != track.Name || got.Size != track.Size || got.Type != track.Type {
			t.Errorf("GetTrack() = %+v, want %+v", got, track)
		}
		if got.LastModified.UnixMilli() != track.LastModified.UnixMilli() {
			t.Errorf("LastModified = %v, want %v", got.LastModified, track.LastModified)
		}
		if got.BPM == nil || *got.BPM != 122.0 {
			t.Errorf("BPM = %v, want 122", got.BPM)
		}
		if got.SampleRate != 44100 || got.Offset != 1.25 || got.Duration != 215.5 {
			t.Errorf("decoded attributes = %+v", got)
		}
		if got.FileHandle != track.FileHandle || got.DirHandle != track.DirHandle {
			t.Errorf("handles = %q %q", got.FileHandle, got.DirHandle)
		}
	})

	t.Run("put updates in place", func(t *testing.T) {
		track := &model.Track{ID: uuid.New(), Name: "update.mp3", Size: 10, LastModified: time.Now()}
		if err := s.PutTrack(ctx, track); err != nil {
			t.Fatalf("PutTrack() error: %v", err)
		}
		track.BPM = ptr(99.5)
		if err := s.PutTrack(ctx, track); err != nil {
			t.Fatalf("PutTrack() second error: %v", err)
		}
		got, err := s.GetTrack(ctx, track.ID)
		if err != nil {
			t.Fatalf("GetTrack() error: %v", err)
		}
		if got.BPM == nil || *got.BPM != 99.5 {
			t.Errorf("BPM = %v, want 99.5", got.BPM)
		}
	})

	t.Run("find by fingerprint", func(t *testing.T) {
		fp := model.Fingerprint{Name: uuid.NewString() + ".mp3", Size: 777}
		_, err := s.FindTrack(ctx, fp)
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("FindTrack() before insert error = %v, want ErrNotFound", err)
		}

		withoutTempo := &model.Track{ID: uuid.New(), Name: fp.Name, Size: fp.Size, LastModified: time.Now()}
		withTempo := &model.Track{ID: uuid.New(), Name: fp.Name, Size: fp.Size, BPM: ptr(128.0), LastModified: time.Now().Add(-time.Hour)}
		for _, tr := range []*model.Track{withoutTempo, withTempo} {
			if err := s.PutTrack(ctx, tr); err != nil {
				t.Fatalf("PutTrack() error: %v", err)
			}
		}

		got, err := s.FindTrack(ctx, fp)
		if err != nil {
			t.Fatalf("FindTrack() error: %v", err)
		}
		if got.ID != withTempo.ID {
			t.Errorf("FindTrack() = %v, want the record with a tempo (%v)", got.ID, withTempo.ID)
		}

		_, err = s.FindTrack(ctx, model.Fingerprint{Name: fp.Name, Size: fp.Size + 1})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("FindTrack() with different size error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		track := &model.Track{ID: uuid.New(), Name: "gone.mp3", Size: 1, LastModified: time.Now()}
		if err := s.PutTrack(ctx, track); err != nil {
			t.Fatalf("PutTrack() error: %v", err)
		}
		if err := s.DeleteTrack(ctx, track.ID); err != nil {
			t.Fatalf("DeleteTrack() error: %v", err)
		}
		if err := s.DeleteTrack(ctx, track.ID); err != nil {
			t.Errorf("DeleteTrack() of missing track error: %v", err)
		}
		if _, err := s.GetTrack(ctx, track.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetTrack() after delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list", func(t *testing.T) {
		tracks, err := s.ListTracks(ctx)
		if err != nil {
			t.Fatalf("ListTracks() error: %v", err)
		}
		if len(tracks) == 0 {
			t.Error("ListTracks() returned no tracks")
		}
		for i := 1; i < len(tracks); i++ {
			if tracks[i].LastModified.After(tracks[i-1].LastModified) {
				t.Errorf("ListTracks() not ordered by LastModified desc at %d", i)
			}
		}
	})
}

// RunMixStore exercises a MixStore.
func RunMixStore(t *testing.T, s store.MixStore) {
	ctx := context.Background()

	t.Run("mix lifecycle", func(t *testing.T) {
		a, b := uuid.New(), uuid.New()
		mix := &model.Mix{
			Tracks: []uuid.UUID{a, b},
			MixPoints: []model.MixPoint{
				{Times: []float64{60.5, 12}, Effects: map[string]any{"fade": "linear"}},
			},
		}
		if err := s.AddMix(ctx, mix); err != nil {
			t.Fatalf("AddMix() error: %v", err)
		}
		if mix.ID == uuid.Nil {
			t.Fatal("AddMix() did not assign an ID")
		}

		got, err := s.GetMix(ctx, mix.ID)
		if err != nil {
			t.Fatalf("GetMix() error: %v", err)
		}
		if len(got.Tracks) != 2 || got.Tracks[0] != a || got.Tracks[1] != b {
			t.Errorf("Tracks = %v, want [%v %v]", got.Tracks, a, b)
		}
		if len(got.MixPoints) != 1 || got.MixPoints[0].Times[0] != 60.5 {
			t.Errorf("MixPoints = %+v", got.MixPoints)
		}
		if got.MixPoints[0].Effects["fade"] != "linear" {
			t.Errorf("Effects = %v", got.MixPoints[0].Effects)
		}

		mix.MixPoints = nil
		mix.Tracks = []uuid.UUID{b}
		if err := s.ReplaceMix(ctx, mix); err != nil {
			t.Fatalf("ReplaceMix() error: %v", err)
		}
		got, err = s.GetMix(ctx, mix.ID)
		if err != nil {
			t.Fatalf("GetMix() after replace error: %v", err)
		}
		if len(got.Tracks) != 1 || len(got.MixPoints) != 0 {
			t.Errorf("GetMix() after replace = %+v", got)
		}

		if err := s.DeleteMix(ctx, mix.ID); err != nil {
			t.Fatalf("DeleteMix() error: %v", err)
		}
		if err := s.DeleteMix(ctx, mix.ID); err != nil {
			t.Errorf("DeleteMix() of missing mix error: %v", err)
		}
		if _, err := s.GetMix(ctx, mix.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetMix() after delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("replace missing", func(t *testing.T) {
		err := s.ReplaceMix(ctx, &model.Mix{ID: uuid.New(), Tracks: []uuid.UUID{uuid.New()}})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("ReplaceMix() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("set lifecycle", func(t *testing.T) {
		m1, m2 := uuid.New(), uuid.New()
		set := &model.Set{Mixes: []uuid.UUID{m1, m2}}
		if err := s.AddSet(ctx, set); err != nil {
			t.Fatalf("AddSet() error: %v", err)
		}

		got, err := s.GetSet(ctx, set.ID)
		if err != nil {
			t.Fatalf("GetSet() error: %v", err)
		}
		if len(got.Mixes) != 2 || got.Mixes[0] != m1 || got.Mixes[1] != m2 {
			t.Errorf("Mixes = %v", got.Mixes)
		}

		if err := s.DeleteSet(ctx, set.ID); err != nil {
			t.Fatalf("DeleteSet() error: %v", err)
		}
		if _, err := s.GetSet(ctx, set.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetSet() after delete error = %v, want ErrNotFound", err)
		}
	})
}

// RunStateStore exercises a StateStore. Keys are prefixed with the test name
// so the suite can share a database with other tests.
func RunStateStore(t *testing.T, s store.StateStore) {
	ctx := context.Background()
	prefix := uuid.NewString() + ":"

	t.Run("get missing", func(t *testing.T) {
		_, err := s.GetState(ctx, prefix+"missing")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetState() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("seed once", func(t *testing.T) {
		key := prefix + "seed"
		wrote, err := s.SeedState(ctx, key, []byte(`{"v":1}`))
		if err != nil || !wrote {
			t.Fatalf("SeedState() = %v, %v; want true, nil", wrote, err)
		}
		wrote, err = s.SeedState(ctx, key, []byte(`{"v":2}`))
		if err != nil || wrote {
			t.Fatalf("second SeedState() = %v, %v; want false, nil", wrote, err)
		}
		got, err := s.GetState(ctx, key)
		if err != nil {
			t.Fatalf("GetState() error: %v", err)
		}
		assertJSONField(t, got, "v", 1)
	})

	t.Run("put replaces", func(t *testing.T) {
		key := prefix + "put"
		if err := s.PutState(ctx, key, []byte(`{"v":1}`)); err != nil {
			t.Fatalf("PutState() error: %v", err)
		}
		if err := s.PutState(ctx, key, []byte(`{"v":3}`)); err != nil {
			t.Fatalf("PutState() error: %v", err)
		}
		got, err := s.GetState(ctx, key)
		if err != nil {
			t.Fatalf("GetState() error: %v", err)
		}
		assertJSONField(t, got, "v", 3)
	})

	t.Run("update callback error aborts", func(t *testing.T) {
		key := prefix + "abort"
		if err := s.PutState(ctx, key, []byte(`{"v":1}`)); err != nil {
			t.Fatalf("PutState() error: %v", err)
		}
		boom := errors.New("boom")
		err := s.UpdateState(ctx, key, func([]byte) ([]byte, error) { return nil, boom })
		if !errors.Is(err, boom) {
			t.Errorf("UpdateState() error = %v, want boom", err)
		}
		got, err := s.GetState(ctx, key)
		if err != nil {
			t.Fatalf("GetState() error: %v", err)
		}
		assertJSONField(t, got, "v", 1)
	})

	t.Run("concurrent updates are serialized", func(t *testing.T) {
		key := prefix + "counter"
		const workers = 20

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.UpdateState(ctx, key, func(current []byte) ([]byte, error) {
					doc := map[string]int{}
					if current != nil {
						if err := json.Unmarshal(current, &doc); err != nil {
							return nil, err
						}
					}
					doc["v"]++
					return json.Marshal(doc)
				})
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Fatalf("UpdateState() error: %v", err)
			}
		}

		got, err := s.GetState(ctx, key)
		if err != nil {
			t.Fatalf("GetState() error: %v", err)
		}
		assertJSONField(t, got, "v", workers)
	})
}

func assertJSONField(t *testing.T, data []byte, field string, want int) {
	t.Helper()
	doc := map[string]int{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decoding %s: %v", data, err)
	}
	if doc[field] != want {
		t.Errorf("%s = %d, want %d (doc %s)", field, doc[field], want, data)
	}
}
