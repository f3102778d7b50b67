package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/justestif/go-mixpoint/internal/bpm"
)

// Keys of the two session documents.
const (
	MixStateKey = "mixState"
	SetStateKey = "setState"
)

// DefaultSlots is the number of track panels in a mix session.
const DefaultSlots = 2

// Common errors.
var (
	ErrUnknownSlot     = errors.New("unknown slot")
	ErrNoFreeSlot      = errors.New("no free slot")
	ErrUnknownStateKey = errors.New("unknown state key")
)

// Slot names one track-editing position, e.g. "track0".
type Slot string

// SlotKey returns the slot name for panel index i.
func SlotKey(i int) Slot {
	return Slot("track" + strconv.Itoa(i))
}

// Index returns the panel index of the slot, or -1 if the name is malformed.
func (s Slot) Index() int {
	rest, ok := strings.CutPrefix(string(s), "track")
	if !ok || rest == "" {
		return -1
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 || strconv.Itoa(i) != rest {
		return -1
	}
	return i
}

// ParseSlot validates a slot name against a session with n slots.
func ParseSlot(name string, n int) (Slot, error) {
	s := Slot(name)
	if i := s.Index(); i < 0 || i >= n {
		return "", fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}
	return s, nil
}

// Slots returns the slot names of a session with n slots, in panel order.
func Slots(n int) []Slot {
	slots := make([]Slot, n)
	for i := range slots {
		slots[i] = SlotKey(i)
	}
	return slots
}

// ValidStateKey reports whether key names one of the session documents.
func ValidStateKey(key string) bool {
	return key == MixStateKey || key == SetStateKey
}

// TrackSlotState is the working copy of a track loaded into a slot, plus the
// slot's editing state. The embedded Track is a copy, not the stored record.
type TrackSlotState struct {
	Track

	// AdjustedBPM is the user tempo override, normalized to one decimal place.
	AdjustedBPM *float64 `json:"adjustedBpm,omitempty"`
	// FileRef is a transient reference to the decoded file for this session.
	FileRef   string `json:"fileRef,omitempty"`
	Analyzing bool   `json:"analyzing,omitempty"`
}

// IsEmpty reports whether no track is loaded and none is being analyzed.
func (s TrackSlotState) IsEmpty() bool {
	return s.ID == uuid.Nil && s.Name == "" && !s.Analyzing
}

// EffectiveBPM returns the tempo the slot should play at: the adjusted tempo
// if set, otherwise the native tempo, otherwise 0.
func (s TrackSlotState) EffectiveBPM() float64 {
	if s.AdjustedBPM != nil && *s.AdjustedBPM > 0 {
		return *s.AdjustedBPM
	}
	return s.NativeBPM()
}

// PlaybackRate returns the playback-rate factor for the slot's audio.
func (s TrackSlotState) PlaybackRate() float64 {
	return bpm.PlaybackRate(s.EffectiveBPM(), s.NativeBPM())
}

// ResetAvailable reports whether the adjusted tempo differs from the native
// tempo, in which case a reset should be offered.
func (s TrackSlotState) ResetAvailable() bool {
	if !s.HasTempo() || s.AdjustedBPM == nil {
		return false
	}
	return bpm.Differs(*s.AdjustedBPM, *s.BPM)
}

// Phase is the tempo editing state of a slot.
type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseAnalyzing
	PhaseReady
	PhaseAdjusted
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseAnalyzing:
		return "analyzing"
	case PhaseReady:
		return "ready"
	case PhaseAdjusted:
		return "adjusted"
	default:
		return "unknown"
	}
}

// Phase derives the slot's position in the Empty → Analyzing → Ready → Adjusted
// state machine.
func (s TrackSlotState) Phase() Phase {
	switch {
	case s.Analyzing:
		return PhaseAnalyzing
	case s.IsEmpty():
		return PhaseEmpty
	case s.ResetAvailable():
		return PhaseAdjusted
	default:
		return PhaseReady
	}
}

// MixState is the live document shared by the track panels.
type MixState struct {
	Tracks  map[Slot]TrackSlotState `json:"tracks"`
	BPMSync bool                    `json:"bpmSync"`
}

// NewMixState returns the seed document: no tracks loaded.
func NewMixState() MixState {
	return MixState{Tracks: map[Slot]TrackSlotState{}}
}

// SlotState returns the state of a slot; an unloaded slot yields the zero value.
func (m MixState) SlotState(s Slot) TrackSlotState {
	return m.Tracks[s]
}

// AnyAnalyzing reports whether some slot is mid-analysis.
func (m MixState) AnyAnalyzing() bool {
	for _, st := range m.Tracks {
		if st.Analyzing {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no map with m.
func (m MixState) Clone() MixState {
	out := MixState{BPMSync: m.BPMSync, Tracks: make(map[Slot]TrackSlotState, len(m.Tracks))}
	for k, v := range m.Tracks {
		out.Tracks[k] = v
	}
	return out
}

// Validate checks every slot key against a session with n slots.
func (m MixState) Validate(n int) error {
	for s := range m.Tracks {
		if _, err := ParseSlot(string(s), n); err != nil {
			return err
		}
	}
	return nil
}

// SetState is reserved for set-level editing state.
type SetState struct {
	// SetID is the set currently being edited, if any.
	SetID *uuid.UUID `json:"setId,omitempty"`
}
