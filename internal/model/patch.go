package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/justestif/go-mixpoint/internal/bpm"
)

// SlotPatch is a partial update of one slot. Nil fields are left untouched.
//
// Fields are applied in this order: Clear empties the slot, Track replaces
// the working copy and drops the previous adjusted tempo and file reference,
// then AdjustedBPM, FileRef and Analyzing override.
type SlotPatch struct {
	Clear       bool     `json:"clear,omitempty"`
	Track       *Track   `json:"track,omitempty"`
	AdjustedBPM *float64 `json:"adjustedBpm,omitempty"`
	FileRef     *string  `json:"fileRef,omitempty"`
	Analyzing   *bool    `json:"analyzing,omitempty"`
}

// Apply returns s with the patch merged over it.
func (s TrackSlotState) Apply(p SlotPatch) TrackSlotState {
	if p.Clear {
		s = TrackSlotState{}
	}
	if p.Track != nil {
		s.Track = *p.Track
		s.AdjustedBPM = nil
		s.FileRef = ""
	}
	if p.AdjustedBPM != nil {
		v := bpm.Normalize(*p.AdjustedBPM)
		s.AdjustedBPM = &v
	}
	if p.FileRef != nil {
		s.FileRef = *p.FileRef
	}
	if p.Analyzing != nil {
		s.Analyzing = *p.Analyzing
	}
	return s
}

// MixStatePatch is a partial update of the mix document. Slots absent from
// Tracks and a nil BPMSync are retained as they are.
type MixStatePatch struct {
	Tracks  map[Slot]SlotPatch `json:"tracks,omitempty"`
	BPMSync *bool              `json:"bpmSync,omitempty"`
}

// Validate checks every slot key against a session with n slots.
func (p MixStatePatch) Validate(n int) error {
	for s := range p.Tracks {
		if _, err := ParseSlot(string(s), n); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of m with the patch merged over it. Slots left empty
// by the patch are removed from the document.
func (m MixState) Apply(p MixStatePatch) MixState {
	out := m.Clone()
	for slot, sp := range p.Tracks {
		next := out.Tracks[slot].Apply(sp)
		if next.IsEmpty() {
			delete(out.Tracks, slot)
			continue
		}
		out.Tracks[slot] = next
	}
	if p.BPMSync != nil {
		out.BPMSync = *p.BPMSync
	}
	return out
}

// SetStatePatch is a partial update of the set document.
type SetStatePatch struct {
	SetID *uuid.UUID `json:"setId,omitempty"`
}

// Apply returns s with the patch merged over it.
func (s SetState) Apply(p SetStatePatch) SetState {
	if p.SetID != nil {
		id := *p.SetID
		s.SetID = &id
	}
	return s
}

// DecodeMixStatePatch parses a mix patch, rejecting unknown keys.
func DecodeMixStatePatch(data []byte) (MixStatePatch, error) {
	var p MixStatePatch
	if err := decodeStrict(data, &p); err != nil {
		return MixStatePatch{}, fmt.Errorf("decoding mix state patch: %w", err)
	}
	return p, nil
}

// DecodeSetStatePatch parses a set patch, rejecting unknown keys.
func DecodeSetStatePatch(data []byte) (SetStatePatch, error) {
	var p SetStatePatch
	if err := decodeStrict(data, &p); err != nil {
		return SetStatePatch{}, fmt.Errorf("decoding set state patch: %w", err)
	}
	return p, nil
}

// DecodeMixState parses a full mix document, rejecting unknown keys.
func DecodeMixState(data []byte) (MixState, error) {
	m := NewMixState()
	if err := decodeStrict(data, &m); err != nil {
		return MixState{}, fmt.Errorf("decoding mix state: %w", err)
	}
	if m.Tracks == nil {
		m.Tracks = map[Slot]TrackSlotState{}
	}
	return m, nil
}

// DecodeSetState parses a full set document, rejecting unknown keys.
func DecodeSetState(data []byte) (SetState, error) {
	var s SetState
	if err := decodeStrict(data, &s); err != nil {
		return SetState{}, fmt.Errorf("decoding set state: %w", err)
	}
	return s, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after document")
	}
	return nil
}
