package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/justestif/go-mixpoint/internal/clustering"
	"github.com/justestif/go-mixpoint/internal/deck"
	"github.com/justestif/go-mixpoint/internal/library"
	"github.com/justestif/go-mixpoint/internal/media"
	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/notify"
	"github.com/justestif/go-mixpoint/internal/session"
	"github.com/justestif/go-mixpoint/internal/store"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// Handlers contains the HTTP handlers of the session API.
type Handlers struct {
	session       *session.Store
	deck          *deck.Deck
	tracks        *library.Tracks
	mixes         *library.Mixes
	sets          *library.Sets
	notifications *notify.Buffer
	logger        *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg ServerConfig) *Handlers {
	return &Handlers{
		session:       cfg.Session,
		deck:          cfg.Deck,
		tracks:        cfg.Tracks,
		mixes:         cfg.Mixes,
		sets:          cfg.Sets,
		notifications: cfg.Notifications,
		logger:        cfg.Logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, doc []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var se *store.StorageError
	switch {
	case errors.As(err, &se):
		return http.StatusInternalServerError
	case errors.Is(err, errBadRequest),
		errors.Is(err, model.ErrUnknownSlot),
		errors.Is(err, model.ErrEmptyMix),
		errors.Is(err, media.ErrInvalidHandle),
		errors.Is(err, session.ErrNoTrack):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, media.ErrNotFound),
		errors.Is(err, model.ErrUnknownStateKey):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNoFreeSlot),
		errors.Is(err, deck.ErrEmptySlot),
		errors.Is(err, deck.ErrNoTempo):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", errBadRequest, err)
	}
	return body, nil
}

// decodeBody decodes a JSON body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func idParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id", errBadRequest)
	}
	return id, nil
}

func slotParam(r *http.Request) model.Slot {
	return model.Slot(chi.URLParam(r, "slot"))
}

// GetState returns a session document (GET /api/state/{key}).
func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	doc, err := h.session.GetState(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeRaw(w, doc)
}

// PutState replaces a session document (PUT /api/state/{key}).
func (h *Handlers) PutState(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !model.ValidStateKey(key) {
		h.writeError(w, r, fmt.Errorf("%w: %q", model.ErrUnknownStateKey, key))
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.session.UpdateState(r.Context(), key, body)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError && !isStorage(err) {
			err = fmt.Errorf("%w: %v", errBadRequest, err)
		}
		h.writeError(w, r, err)
		return
	}
	writeRaw(w, doc)
}

func isStorage(err error) bool {
	var se *store.StorageError
	return errors.As(err, &se)
}

// PatchMixState merges a partial update into the mix document
// (PATCH /api/state/mixState).
func (h *Handlers) PatchMixState(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	patch, err := model.DecodeMixStatePatch(body)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	m, err := h.session.UpdateMixState(r.Context(), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// PatchSetState merges a partial update into the set document
// (PATCH /api/state/setState).
func (h *Handlers) PatchSetState(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	patch, err := model.DecodeSetStatePatch(body)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	st, err := h.session.UpdateSetState(r.Context(), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type trackStateResponse struct {
	Slot  model.Slot      `json:"slot"`
	State *model.MixState `json:"state"`
}

// PutTrackState places a slot state by track (POST /api/state/mixState/tracks).
func (h *Handlers) PutTrackState(w http.ResponseWriter, r *http.Request) {
	var st model.TrackSlotState
	if err := decodeBody(w, r, &st); err != nil {
		h.writeError(w, r, err)
		return
	}
	m, slot, err := h.session.UpdateTrackState(r.Context(), st)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trackStateResponse{Slot: slot, State: m})
}

// Events streams session snapshots as server-sent events (GET /api/events).
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.writeError(w, r, err)
		return
	}

	snaps, cancel := h.session.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", snap.Key, compact(snap.Doc)); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func compact(doc []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return doc
	}
	return buf.Bytes()
}

type loadRequest struct {
	FileHandle string `json:"fileHandle"`
}

// LoadTrack loads a file into a slot (POST /api/slots/{slot}/load). An
// empty fileHandle means the user dismissed the picker.
func (h *Handlers) LoadTrack(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	picker := media.PathPicker{Source: h.deck.Source(), FileHandle: req.FileHandle}
	m, err := h.deck.LoadTrack(r.Context(), slotParam(r), picker)
	if errors.Is(err, media.ErrCancelled) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type bpmRequest struct {
	BPM float64 `json:"bpm"`
}

type rateResponse struct {
	Rate  float64         `json:"rate"`
	State *model.MixState `json:"state,omitempty"`
}

// AdjustBPM sets a slot's tempo (POST /api/slots/{slot}/bpm).
func (h *Handlers) AdjustBPM(w http.ResponseWriter, r *http.Request) {
	var req bpmRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	rate, m, err := h.deck.AdjustBPM(r.Context(), slotParam(r), req.BPM)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rateResponse{Rate: rate, State: m})
}

// ResetBPM restores a slot's native tempo (POST /api/slots/{slot}/bpm/reset).
func (h *Handlers) ResetBPM(w http.ResponseWriter, r *http.Request) {
	m, err := h.deck.ResetBPM(r.Context(), slotParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// PlaybackRate returns a slot's playback rate (GET /api/slots/{slot}/rate).
func (h *Handlers) PlaybackRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.deck.PlaybackRate(r.Context(), slotParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rateResponse{Rate: rate})
}

// EjectTrack empties a slot (DELETE /api/slots/{slot}).
func (h *Handlers) EjectTrack(w http.ResponseWriter, r *http.Request) {
	m, err := h.deck.EjectTrack(r.Context(), slotParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type syncRequest struct {
	Enabled bool `json:"enabled"`
}

// SetBPMSync toggles tempo sync (PUT /api/sync).
func (h *Handlers) SetBPMSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	m, err := h.deck.SetBPMSync(r.Context(), req.Enabled)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListTracks returns every stored track (GET /api/tracks).
func (h *Handlers) ListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.tracks.ListTracks(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if tracks == nil {
		tracks = []model.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

type groupsResponse struct {
	Groups    []clustering.TempoGroup `json:"groups"`
	Ungrouped []model.Track           `json:"ungrouped"`
}

// TempoGroups clusters stored tracks by tempo (GET /api/tracks/groups).
// The optional query parameter n sets the number of groups.
func (h *Handlers) TempoGroups(w http.ResponseWriter, r *http.Request) {
	cfg := clustering.DefaultGroupConfig()
	if v := r.URL.Query().Get("n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, r, fmt.Errorf("%w: invalid group count %q", errBadRequest, v))
			return
		}
		cfg.NumGroups = n
	}

	tracks, err := h.tracks.ListTracks(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	groups, outliers, err := clustering.DetectTempoGroups(tracks, cfg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []clustering.TempoGroup{}
	}
	if outliers == nil {
		outliers = []model.Track{}
	}
	writeJSON(w, http.StatusOK, groupsResponse{Groups: groups, Ungrouped: outliers})
}

// GetTrack returns one track (GET /api/tracks/{id}).
func (h *Handlers) GetTrack(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	track, err := h.tracks.GetTrack(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// RemoveTrack deletes a track (DELETE /api/tracks/{id}).
func (h *Handlers) RemoveTrack(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.tracks.RemoveTrack(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mixRequest struct {
	Tracks    []uuid.UUID      `json:"tracks"`
	MixPoints []model.MixPoint `json:"mixPoints"`
}

type idResponse struct {
	ID uuid.UUID `json:"id"`
}

// AddMix stores a new mix (POST /api/mixes).
func (h *Handlers) AddMix(w http.ResponseWriter, r *http.Request) {
	var req mixRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := h.mixes.AddMix(r.Context(), req.Tracks, req.MixPoints)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

type saveMixRequest struct {
	MixPoints []model.MixPoint `json:"mixPoints"`
}

// SaveMix stores the loaded tracks as a new mix (POST /api/mixes/current).
func (h *Handlers) SaveMix(w http.ResponseWriter, r *http.Request) {
	var req saveMixRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := h.deck.SaveMix(r.Context(), req.MixPoints)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// GetMix returns one mix (GET /api/mixes/{id}).
func (h *Handlers) GetMix(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mix, err := h.mixes.GetMix(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mix)
}

// ReplaceMix overwrites a mix (PUT /api/mixes/{id}).
func (h *Handlers) ReplaceMix(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req mixRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	mix := model.Mix{ID: id, Tracks: req.Tracks, MixPoints: req.MixPoints}
	if err := h.mixes.ReplaceMix(r.Context(), mix); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mix)
}

// RemoveMix deletes a mix (DELETE /api/mixes/{id}).
func (h *Handlers) RemoveMix(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.mixes.RemoveMix(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setRequest struct {
	Mixes []uuid.UUID `json:"mixes"`
}

// AddSet stores a new set (POST /api/sets).
func (h *Handlers) AddSet(w http.ResponseWriter, r *http.Request) {
	var req setRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := h.sets.AddSet(r.Context(), req.Mixes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// GetSet returns one set (GET /api/sets/{id}).
func (h *Handlers) GetSet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	set, err := h.sets.GetSet(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// RemoveSet deletes a set (DELETE /api/sets/{id}).
func (h *Handlers) RemoveSet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.sets.RemoveSet(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Notifications returns recent user-facing error messages
// (GET /api/notifications).
func (h *Handlers) Notifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.notifications.Recent())
}
