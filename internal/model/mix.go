package model

import (
	"errors"

	"github.com/google/uuid"
)

// ErrEmptyMix is returned when a mix is saved without any tracks.
var ErrEmptyMix = errors.New("mix has no tracks")

// MixPoint marks where tracks should be blended: one timestamp per track
// (seconds, in mix track order) plus an effects descriptor.
type MixPoint struct {
	Times   []float64      `json:"times"`
	Effects map[string]any `json:"effects,omitempty"`
}

// Mix is an ordered list of tracks and the points at which they are mixed.
type Mix struct {
	ID        uuid.UUID   `json:"id"`
	Tracks    []uuid.UUID `json:"tracks"`
	MixPoints []MixPoint  `json:"mixPoints"`
}

// Validate checks that the mix references at least one track.
func (m Mix) Validate() error {
	if len(m.Tracks) == 0 {
		return ErrEmptyMix
	}
	return nil
}

// Set is an ordered list of mixes.
type Set struct {
	ID    uuid.UUID   `json:"id"`
	Mixes []uuid.UUID `json:"mixes"`
}
