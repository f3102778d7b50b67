// Package store defines the persistence contracts shared by the storage
// backends.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/justestif/go-mixpoint/internal/model"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")
)

// StorageError reports a read or write failure from the persistence layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *StorageError for op. Nil and ErrNotFound pass
// through unchanged, as does an error that already is a *StorageError.
func Wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// TrackStore persists track records.
type TrackStore interface {
	// GetTrack retrieves a track by ID. Returns ErrNotFound if absent.
	GetTrack(ctx context.Context, id uuid.UUID) (*model.Track, error)
	// FindTrack retrieves a track by its (name, size) fingerprint.
	// Returns ErrNotFound if absent.
	FindTrack(ctx context.Context, fp model.Fingerprint) (*model.Track, error)
	// PutTrack inserts or updates a track by ID.
	PutTrack(ctx context.Context, t *model.Track) error
	// DeleteTrack removes a track. Deleting a missing track is not an error.
	DeleteTrack(ctx context.Context, id uuid.UUID) error
	// ListTracks returns all tracks, most recently modified first.
	ListTracks(ctx context.Context) ([]model.Track, error)
}

// MixStore persists mixes and sets. Records are written and replaced whole.
type MixStore interface {
	AddMix(ctx context.Context, m *model.Mix) error
	GetMix(ctx context.Context, id uuid.UUID) (*model.Mix, error)
	// ReplaceMix overwrites an existing mix. Returns ErrNotFound if absent.
	ReplaceMix(ctx context.Context, m *model.Mix) error
	DeleteMix(ctx context.Context, id uuid.UUID) error

	AddSet(ctx context.Context, s *model.Set) error
	GetSet(ctx context.Context, id uuid.UUID) (*model.Set, error)
	DeleteSet(ctx context.Context, id uuid.UUID) error
}

// UpdateFunc receives the current document (nil if absent) and returns the
// document to store.
type UpdateFunc func(current []byte) ([]byte, error)

// StateStore persists the session documents as opaque JSON keyed by name.
type StateStore interface {
	// GetState returns the stored document. Returns ErrNotFound if absent.
	GetState(ctx context.Context, key string) ([]byte, error)
	// PutState replaces the document.
	PutState(ctx context.Context, key string, doc []byte) error
	// UpdateState runs fn and stores its result in a single transaction,
	// so no other update of key can interleave between the read and the write.
	UpdateState(ctx context.Context, key string, fn UpdateFunc) error
	// SeedState stores doc only if key is absent. It reports whether it wrote.
	SeedState(ctx context.Context, key string, doc []byte) (bool, error)
}

// Store combines all storage interfaces.
type Store interface {
	TrackStore
	MixStore
	StateStore
	// Close releases any resources held by the store.
	Close() error
}
