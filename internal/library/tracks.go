package library

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/justestif/go-mixpoint/internal/keylock"
	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/store"
)

// Tracks is the track repository.
type Tracks struct {
	store store.TrackStore
	opts  options
	locks keylock.Map
}

// NewTracks creates a track repository over s.
func NewTracks(s store.TrackStore, opts ...Option) *Tracks {
	return &Tracks{store: s, opts: newOptions(opts)}
}

// PutTrack stores a candidate track, deduplicating by fingerprint.
//
// If a record with the same name and size already has a tempo it is
// returned unchanged and nothing is written. Otherwise the candidate is
// stamped with the current time and written, reusing the matched record's
// ID when there is one.
func (t *Tracks) PutTrack(ctx context.Context, candidate model.Track) (*model.Track, error) {
	fp := candidate.Fingerprint()
	unlock := t.locks.Lock(fp.Name + "\x00" + strconv.FormatInt(fp.Size, 10))
	defer unlock()

	existing, err := t.store.FindTrack(ctx, fp)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, t.opts.fail(ctx, "find track", err)
	}
	if existing != nil && existing.HasTempo() {
		return existing, nil
	}

	track := candidate
	track.LastModified = t.opts.now()
	switch {
	case existing != nil:
		track.ID = existing.ID
	case track.ID == uuid.Nil:
		track.ID = uuid.New()
	}

	if err := t.store.PutTrack(ctx, &track); err != nil {
		return nil, t.opts.fail(ctx, "put track", err)
	}
	t.opts.logger.Debug("track stored",
		zap.String("id", track.ID.String()),
		zap.String("name", track.Name),
		zap.Bool("hasTempo", track.HasTempo()),
	)
	return &track, nil
}

// RemoveTrack deletes a track. Removing a missing track succeeds.
func (t *Tracks) RemoveTrack(ctx context.Context, id uuid.UUID) error {
	if err := t.store.DeleteTrack(ctx, id); err != nil {
		return t.opts.fail(ctx, "remove track", err)
	}
	return nil
}

// GetTrack returns the track with id, or store.ErrNotFound.
func (t *Tracks) GetTrack(ctx context.Context, id uuid.UUID) (*model.Track, error) {
	track, err := t.store.GetTrack(ctx, id)
	if err != nil {
		return nil, t.opts.fail(ctx, "get track", err)
	}
	return track, nil
}

// FindTrack returns the stored track with fingerprint fp, or store.ErrNotFound.
func (t *Tracks) FindTrack(ctx context.Context, fp model.Fingerprint) (*model.Track, error) {
	track, err := t.store.FindTrack(ctx, fp)
	if err != nil {
		return nil, t.opts.fail(ctx, "find track", err)
	}
	return track, nil
}

// ListTracks returns every stored track, most recently modified first.
func (t *Tracks) ListTracks(ctx context.Context) ([]model.Track, error) {
	tracks, err := t.store.ListTracks(ctx)
	if err != nil {
		return nil, t.opts.fail(ctx, "list tracks", err)
	}
	return tracks, nil
}
