package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bogem/id3v2"
	"github.com/google/uuid"

	"github.com/justestif/go-mixpoint/internal/deck"
	"github.com/justestif/go-mixpoint/internal/library"
	"github.com/justestif/go-mixpoint/internal/media"
	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/notify"
	"github.com/justestif/go-mixpoint/internal/session"
	"github.com/justestif/go-mixpoint/internal/store/memory"
)

type testServer struct {
	handler http.Handler
	session *session.Store
	root    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	backend := memory.New()
	notes := notify.NewBuffer(8)

	sess := session.New(backend, session.WithNotifier(notes))
	if err := sess.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	tracks := library.NewTracks(backend, library.WithNotifier(notes))
	mixes := library.NewMixes(backend, library.WithNotifier(notes))
	sets := library.NewSets(backend, library.WithNotifier(notes))
	root := t.TempDir()
	d := deck.New(sess, tracks, mixes, media.NewLocalFiles(root), media.TagAnalyzer{}, deck.WithNotifier(notes))

	srv, err := NewServer(ServerConfig{
		Session:       sess,
		Deck:          d,
		Tracks:        tracks,
		Mixes:         mixes,
		Sets:          sets,
		Notifications: notes,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &testServer{handler: srv.Handler(), session: sess, root: root}
}

func (s *testServer) addFile(t *testing.T, name, bpm string) {
	t.Helper()
	tag := id3v2.NewEmptyTag()
	tag.AddTextFrame("TBPM", id3v2.EncodingUTF8, bpm)
	var buf bytes.Buffer
	if _, err := tag.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	buf.WriteString("audio")
	if err := os.WriteFile(filepath.Join(s.root, name), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNewServer_RequiresCollaborators(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("NewServer() with no collaborators should fail")
	}
}

func TestGetState(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"mix state", "mixState", http.StatusOK},
		{"set state", "setState", http.StatusOK},
		{"unknown key", "playlist", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/state/"+tt.key, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestPatchMixState(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPatch, "/api/state/mixState", `{"bpmSync":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	m := decode[model.MixState](t, rec)
	if !m.BPMSync {
		t.Error("bpmSync not applied")
	}

	rec = s.do(t, http.MethodPatch, "/api/state/mixState", `{"tracks":{"track9":{"analyzing":true}}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown slot status = %d, want 400", rec.Code)
	}
}

func TestPutState_RejectsInvalidDocuments(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		key        string
		body       string
		wantStatus int
	}{
		{"valid", "mixState", `{"tracks":{},"bpmSync":false}`, http.StatusOK},
		{"not json", "mixState", `{`, http.StatusBadRequest},
		{"unknown slot", "mixState", `{"tracks":{"track7":{}}}`, http.StatusBadRequest},
		{"unknown key", "other", `{}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPut, "/api/state/"+tt.key, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestLoadAndAdjustTempo(t *testing.T) {
	s := newTestServer(t)
	s.addFile(t, "a.mp3", "120")

	rec := s.do(t, http.MethodPost, "/api/slots/track0/load", `{"fileHandle":"a.mp3"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("load status = %d, body %s", rec.Code, rec.Body)
	}
	m := decode[model.MixState](t, rec)
	if got := m.SlotState("track0").NativeBPM(); got != 120 {
		t.Fatalf("native bpm = %v, want 120", got)
	}

	rec = s.do(t, http.MethodPost, "/api/slots/track0/bpm", `{"bpm":132}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("bpm status = %d, body %s", rec.Code, rec.Body)
	}
	resp := decode[rateResponse](t, rec)
	if resp.Rate != 1.1 {
		t.Errorf("rate = %v, want 1.1", resp.Rate)
	}

	rec = s.do(t, http.MethodGet, "/api/slots/track0/rate", "")
	if got := decode[rateResponse](t, rec).Rate; got != 1.1 {
		t.Errorf("GET rate = %v, want 1.1", got)
	}

	rec = s.do(t, http.MethodPost, "/api/slots/track0/bpm/reset", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if got := decode[model.MixState](t, rec).SlotState("track0").PlaybackRate(); got != 1 {
		t.Errorf("rate after reset = %v, want 1", got)
	}

	rec = s.do(t, http.MethodGet, "/api/tracks", "")
	if got := decode[[]model.Track](t, rec); len(got) != 1 {
		t.Errorf("stored tracks = %d, want 1", len(got))
	}
}

func TestLoadTrack_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"cancelled pick", "/api/slots/track0/load", `{"fileHandle":""}`, http.StatusNoContent},
		{"unknown slot", "/api/slots/track5/load", `{"fileHandle":"a.mp3"}`, http.StatusBadRequest},
		{"missing file", "/api/slots/track0/load", `{"fileHandle":"missing.mp3"}`, http.StatusNotFound},
		{"escaping handle", "/api/slots/track0/load", `{"fileHandle":"../x.mp3"}`, http.StatusBadRequest},
		{"unknown field", "/api/slots/track0/load", `{"path":"a.mp3"}`, http.StatusBadRequest},
		{"bpm on empty slot", "/api/slots/track1/bpm", `{"bpm":100}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}

	m, err := s.session.MixState(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st := m.SlotState("track0"); !st.IsEmpty() {
		t.Errorf("track0 = %+v, want empty after failed loads", st)
	}
}

func TestMixesAndSets(t *testing.T) {
	s := newTestServer(t)
	trackID := uuid.New()

	rec := s.do(t, http.MethodPost, "/api/mixes", `{"tracks":["`+trackID.String()+`"],"mixPoints":[]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add mix status = %d, body %s", rec.Code, rec.Body)
	}
	mixID := decode[idResponse](t, rec).ID

	rec = s.do(t, http.MethodGet, "/api/mixes/"+mixID.String(), "")
	if got := decode[model.Mix](t, rec); len(got.Tracks) != 1 || got.Tracks[0] != trackID {
		t.Errorf("GET mix = %+v", got)
	}

	rec = s.do(t, http.MethodPost, "/api/sets", `{"mixes":["`+mixID.String()+`"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add set status = %d, body %s", rec.Code, rec.Body)
	}
	setID := decode[idResponse](t, rec).ID

	if rec = s.do(t, http.MethodDelete, "/api/sets/"+setID.String(), ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete set status = %d", rec.Code)
	}
	if rec = s.do(t, http.MethodDelete, "/api/mixes/"+mixID.String(), ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete mix status = %d", rec.Code)
	}
	if rec = s.do(t, http.MethodGet, "/api/mixes/"+mixID.String(), ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET deleted mix status = %d, want 404", rec.Code)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"empty mix", http.MethodPost, "/api/mixes", `{"tracks":[]}`, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/mixes/not-a-uuid", "", http.StatusBadRequest},
		{"save with nothing loaded", http.MethodPost, "/api/mixes/current", `{"mixPoints":[]}`, http.StatusBadRequest},
		{"missing set", http.MethodGet, "/api/sets/" + uuid.NewString(), "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestNotifications_Empty(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/notifications", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[[]notify.Entry](t, rec); len(got) != 0 {
		t.Errorf("notifications = %v, want none", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrNoFreeSlot, http.StatusConflict},
		{deck.ErrNoTempo, http.StatusConflict},
		{media.ErrNotFound, http.StatusNotFound},
		{errBadRequest, http.StatusBadRequest},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestTempoGroups(t *testing.T) {
	s := newTestServer(t)
	s.addFile(t, "a.mp3", "120")
	s.addFile(t, "b.mp3", "122")
	for _, name := range []string{"a.mp3", "b.mp3"} {
		if rec := s.do(t, http.MethodPost, "/api/slots/track0/load", `{"fileHandle":"`+name+`"}`); rec.Code != http.StatusOK {
			t.Fatalf("load %s status = %d", name, rec.Code)
		}
	}

	rec := s.do(t, http.MethodGet, "/api/tracks/groups?n=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	resp := decode[groupsResponse](t, rec)
	if len(resp.Groups) != 1 || len(resp.Groups[0].Tracks) != 2 {
		t.Errorf("groups = %+v", resp.Groups)
	}

	if rec := s.do(t, http.MethodGet, "/api/tracks/groups?n=zero", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid n status = %d, want 400", rec.Code)
	}
}
