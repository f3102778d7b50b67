// Package deck implements the track panel operations: loading a file into
// a slot, adjusting and resetting its tempo, and saving the loaded tracks
// as a mix.
package deck

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/justestif/go-mixpoint/internal/library"
	"github.com/justestif/go-mixpoint/internal/media"
	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/notify"
	"github.com/justestif/go-mixpoint/internal/session"
	"github.com/justestif/go-mixpoint/internal/store"
)

// Common errors.
var (
	ErrEmptySlot = errors.New("no track loaded in slot")
	ErrNoTempo   = errors.New("track has no tempo")
)

// Deck coordinates the session store, the track library and the media
// collaborators on behalf of the track panels.
type Deck struct {
	session  *session.Store
	tracks   *library.Tracks
	mixes    *library.Mixes
	source   media.FileSource
	analyzer media.Analyzer
	notifier notify.Notifier
	logger   *zap.Logger

	analyses singleflight.Group
}

// Option configures a Deck.
type Option func(*Deck)

// WithNotifier sets where analysis failures are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Deck) {
		d.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Deck) {
		d.logger = l
	}
}

// New creates a Deck.
func New(sess *session.Store, tracks *library.Tracks, mixes *library.Mixes, source media.FileSource, analyzer media.Analyzer, opts ...Option) *Deck {
	d := &Deck{
		session:  sess,
		tracks:   tracks,
		mixes:    mixes,
		source:   source,
		analyzer: analyzer,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Source returns the file source used to resolve picked handles.
func (d *Deck) Source() media.FileSource {
	return d.source
}

func (d *Deck) parseSlot(name model.Slot) (model.Slot, error) {
	return model.ParseSlot(string(name), d.session.Slots())
}

// LoadTrack asks picker for a file and loads it into slot.
//
// A cancelled pick writes nothing and returns media.ErrCancelled. Otherwise
// the slot is flagged as analyzing, the track is looked up by fingerprint
// and analyzed only if no stored record has a tempo, and the slot is
// replaced with the new track at its native tempo. If anything fails after
// the analyzing flag was set, the flag is cleared and the previous track
// stays in place.
func (d *Deck) LoadTrack(ctx context.Context, slot model.Slot, picker media.Picker) (*model.MixState, error) {
	slot, err := d.parseSlot(slot)
	if err != nil {
		return nil, err
	}

	h, err := picker.Pick(ctx)
	if errors.Is(err, media.ErrCancelled) {
		d.logger.Debug("file pick cancelled", zap.String("slot", string(slot)))
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("picking file: %w", err)
	}

	if _, err := d.session.UpdateSlot(ctx, slot, model.SlotPatch{Analyzing: ptr(true)}); err != nil {
		return nil, err
	}

	track, err := d.resolveTrack(ctx, h)
	if err != nil {
		// Use a detached context so a cancelled request still clears the flag.
		if _, revertErr := d.session.UpdateSlot(context.WithoutCancel(ctx), slot, model.SlotPatch{Analyzing: ptr(false)}); revertErr != nil {
			d.logger.Error("clearing analyzing flag", zap.String("slot", string(slot)), zap.Error(revertErr))
		}
		return nil, err
	}

	patch := model.SlotPatch{
		Track:     track,
		FileRef:   &h.FileHandle,
		Analyzing: ptr(false),
	}
	if track.HasTempo() {
		patch.AdjustedBPM = track.BPM
	}
	m, err := d.session.UpdateSlot(ctx, slot, patch)
	if err != nil {
		return nil, err
	}

	d.logger.Info("track loaded",
		zap.String("slot", string(slot)),
		zap.String("track", track.Name),
		zap.Float64("bpm", track.NativeBPM()),
	)
	return m, nil
}

// resolveTrack returns the stored track for h, analyzing and storing it if
// needed. Concurrent loads of one fingerprint share a single analysis.
func (d *Deck) resolveTrack(ctx context.Context, h media.Handle) (*model.Track, error) {
	fp := h.Fingerprint()
	key := fp.Name + "\x00" + strconv.FormatInt(fp.Size, 10)

	v, err, shared := d.analyses.Do(key, func() (any, error) {
		existing, err := d.tracks.FindTrack(ctx, fp)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if existing != nil && existing.HasTempo() {
			return existing, nil
		}

		candidate := h.Track()
		analysis, err := d.analyze(ctx, h)
		if err != nil {
			return nil, err
		}
		candidate.BPM = analysis.BPM
		candidate.Duration = analysis.Duration
		candidate.SampleRate = analysis.SampleRate
		candidate.Offset = analysis.Offset
		return d.tracks.PutTrack(ctx, candidate)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		d.logger.Debug("shared analysis", zap.String("track", fp.Name))
	}

	track := *v.(*model.Track)
	if track.BPM != nil {
		bpm := *track.BPM
		track.BPM = &bpm
	}
	return &track, nil
}

// analyze reads tempo and duration from the file. A file whose tempo cannot
// be read yields an empty Analysis so the track is stored without a tempo.
// Any other failure is reported to the user unless the caller gave up.
func (d *Deck) analyze(ctx context.Context, h media.Handle) (media.Analysis, error) {
	rc, err := d.source.Open(ctx, h.FileHandle)
	if err != nil {
		err = fmt.Errorf("opening %q: %w", h.Name, err)
		notify.Error(ctx, d.notifier, err)
		return media.Analysis{}, err
	}
	defer rc.Close()

	analysis, err := d.analyzer.Analyze(ctx, rc)
	if errors.Is(err, media.ErrAnalysisUnavailable) {
		d.logger.Warn("tempo unavailable", zap.String("track", h.Name), zap.Error(err))
		return media.Analysis{}, nil
	}
	if err != nil {
		err = fmt.Errorf("analyzing %q: %w", h.Name, err)
		if ctx.Err() == nil {
			notify.Error(ctx, d.notifier, err)
		}
		return media.Analysis{}, err
	}
	return analysis, nil
}

// AdjustBPM sets the slot's adjusted tempo and returns the resulting
// playback rate. A raw value of zero or less falls back to the native
// tempo. With tempo sync enabled every other slot with a tempo follows.
func (d *Deck) AdjustBPM(ctx context.Context, slot model.Slot, raw float64) (float64, *model.MixState, error) {
	slot, err := d.parseSlot(slot)
	if err != nil {
		return 0, nil, err
	}

	m, err := d.session.ModifyMixState(ctx, func(m model.MixState) (model.MixStatePatch, error) {
		st := m.SlotState(slot)
		if err := requireTempo(st); err != nil {
			return model.MixStatePatch{}, err
		}
		target := raw
		if target <= 0 {
			target = st.NativeBPM()
		}
		return tempoPatch(m, slot, target, d.session.Slots(), m.BPMSync), nil
	})
	if err != nil {
		return 0, nil, err
	}
	return m.SlotState(slot).PlaybackRate(), m, nil
}

// ResetBPM restores the slot's adjusted tempo to its native tempo.
func (d *Deck) ResetBPM(ctx context.Context, slot model.Slot) (*model.MixState, error) {
	_, m, err := d.AdjustBPM(ctx, slot, 0)
	return m, err
}

// PlaybackRate returns the playback rate the slot should play at.
func (d *Deck) PlaybackRate(ctx context.Context, slot model.Slot) (float64, error) {
	slot, err := d.parseSlot(slot)
	if err != nil {
		return 0, err
	}
	m, err := d.session.MixState(ctx)
	if err != nil {
		return 0, err
	}
	return m.SlotState(slot).PlaybackRate(), nil
}

// SetBPMSync turns tempo sync on or off. Turning it on aligns every slot
// to the tempo of the first slot that has one.
func (d *Deck) SetBPMSync(ctx context.Context, enabled bool) (*model.MixState, error) {
	return d.session.ModifyMixState(ctx, func(m model.MixState) (model.MixStatePatch, error) {
		patch := model.MixStatePatch{BPMSync: &enabled}
		if !enabled {
			return patch, nil
		}
		for _, slot := range model.Slots(d.session.Slots()) {
			st := m.SlotState(slot)
			if st.HasTempo() {
				synced := tempoPatch(m, slot, st.EffectiveBPM(), d.session.Slots(), true)
				synced.BPMSync = &enabled
				return synced, nil
			}
		}
		return patch, nil
	})
}

// SaveMix stores the tracks currently loaded, in slot order, as a new mix.
func (d *Deck) SaveMix(ctx context.Context, points []model.MixPoint) (uuid.UUID, error) {
	m, err := d.session.MixState(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var ids []uuid.UUID
	for _, slot := range model.Slots(d.session.Slots()) {
		if st := m.SlotState(slot); st.ID != uuid.Nil {
			ids = append(ids, st.ID)
		}
	}
	for i, p := range points {
		if len(p.Times) > len(ids) {
			return uuid.Nil, fmt.Errorf("mix point %d has %d times for %d tracks", i, len(p.Times), len(ids))
		}
	}
	return d.mixes.AddMix(ctx, ids, points)
}

// EjectTrack empties the slot.
func (d *Deck) EjectTrack(ctx context.Context, slot model.Slot) (*model.MixState, error) {
	slot, err := d.parseSlot(slot)
	if err != nil {
		return nil, err
	}
	return d.session.UpdateSlot(ctx, slot, model.SlotPatch{Clear: true})
}

func requireTempo(st model.TrackSlotState) error {
	if st.IsEmpty() || st.ID == uuid.Nil {
		return ErrEmptySlot
	}
	if !st.HasTempo() {
		return ErrNoTempo
	}
	return nil
}

// tempoPatch sets slot to target and, when sync is set, every other slot
// that has a tempo as well.
func tempoPatch(m model.MixState, slot model.Slot, target float64, n int, sync bool) model.MixStatePatch {
	patch := model.MixStatePatch{Tracks: map[model.Slot]model.SlotPatch{
		slot: {AdjustedBPM: &target},
	}}
	if !sync {
		return patch
	}
	for _, other := range model.Slots(n) {
		if other != slot && m.SlotState(other).HasTempo() {
			patch.Tracks[other] = model.SlotPatch{AdjustedBPM: &target}
		}
	}
	return patch
}

func ptr[T any](v T) *T { return &v }
