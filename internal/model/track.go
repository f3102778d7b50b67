// Package model defines the persisted records and session documents of a
// mixing session.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Track represents one decoded audio file.
type Track struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	Type         string    `json:"type,omitempty"` // MIME type
	LastModified time.Time `json:"lastModified"`
	Duration     float64   `json:"duration,omitempty"` // seconds
	BPM          *float64  `json:"bpm,omitempty"`      // nil until analysis completes
	SampleRate   int       `json:"sampleRate,omitempty"`
	Offset       float64   `json:"offset,omitempty"` // user-set start offset, seconds

	// FileHandle and DirHandle reopen the file without asking the user again.
	FileHandle string `json:"fileHandle,omitempty"`
	DirHandle  string `json:"dirHandle,omitempty"`
}

// Fingerprint identifies a physical file without hashing its contents.
// Two files with the same name and size are treated as the same file.
type Fingerprint struct {
	Name string
	Size int64
}

// Fingerprint returns the track's (name, size) fingerprint.
func (t Track) Fingerprint() Fingerprint {
	return Fingerprint{Name: t.Name, Size: t.Size}
}

// HasTempo reports whether analysis produced a usable tempo.
func (t Track) HasTempo() bool {
	return t.BPM != nil && *t.BPM > 0
}

// NativeBPM returns the detected tempo, or 0 if it is unset.
func (t Track) NativeBPM() float64 {
	if t.BPM == nil {
		return 0
	}
	return *t.BPM
}
