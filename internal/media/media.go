// Package media provides the collaborators around the session store that
// deal with audio files: where they come from, how a user picks one, and
// how their tempo is read.
package media

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/justestif/go-mixpoint/internal/model"
)

var (
	// ErrCancelled is returned when the user dismisses a file picker.
	ErrCancelled = errors.New("operation cancelled")
	// ErrAnalysisUnavailable is returned when a file's tempo cannot be read.
	ErrAnalysisUnavailable = errors.New("analysis unavailable")
	// ErrNotFound is returned when a file handle does not resolve.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidHandle is returned for handles that escape the source root.
	ErrInvalidHandle = errors.New("invalid file handle")
)

// Handle describes a picked audio file.
type Handle struct {
	Name         string
	Size         int64
	Type         string
	LastModified time.Time
	FileHandle   string
	DirHandle    string
}

// Fingerprint returns the identity used for track dedup.
func (h Handle) Fingerprint() model.Fingerprint {
	return model.Fingerprint{Name: h.Name, Size: h.Size}
}

// Track builds an unsaved track from the handle.
func (h Handle) Track() model.Track {
	return model.Track{
		Name:         h.Name,
		Size:         h.Size,
		Type:         h.Type,
		LastModified: h.LastModified,
		FileHandle:   h.FileHandle,
		DirHandle:    h.DirHandle,
	}
}

// FileSource resolves opaque file handles.
type FileSource interface {
	Stat(ctx context.Context, fileHandle string) (Handle, error)
	Open(ctx context.Context, fileHandle string) (io.ReadCloser, error)
}

// Picker asks the user for a file.
type Picker interface {
	Pick(ctx context.Context) (Handle, error)
}

// PickerFunc adapts a function to a Picker.
type PickerFunc func(ctx context.Context) (Handle, error)

// Pick calls f.
func (f PickerFunc) Pick(ctx context.Context) (Handle, error) {
	return f(ctx)
}

// PathPicker picks a file already chosen by the client. An empty
// FileHandle means the user dismissed the picker.
type PathPicker struct {
	Source     FileSource
	FileHandle string
}

// Pick stats the chosen file.
func (p PathPicker) Pick(ctx context.Context) (Handle, error) {
	if p.FileHandle == "" {
		return Handle{}, ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return Handle{}, ErrCancelled
	}
	return p.Source.Stat(ctx, p.FileHandle)
}

// Analysis is what an Analyzer learned about a file.
type Analysis struct {
	Duration   float64
	BPM        *float64
	SampleRate int
	Offset     float64
}

// Analyzer extracts tempo and duration from audio data.
type Analyzer interface {
	Analyze(ctx context.Context, r io.Reader) (Analysis, error)
}

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
}

// contentType guesses a MIME type from a file name.
func contentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}
