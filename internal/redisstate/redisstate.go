// Package redisstate keeps session state documents in Redis so several
// server processes can share one mix session.
package redisstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/justestif/go-mixpoint/internal/store"
)

const (
	defaultPrefix     = "mixpoint:state:"
	defaultMaxRetries = 64
	retryBackoff      = 2 * time.Millisecond
)

// ErrConflict is returned when an update keeps losing WATCH races.
var ErrConflict = errors.New("state update conflicted too many times")

// Store implements store.StateStore on top of a Redis client.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix for state documents.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithMaxRetries sets how many times a conflicting update is retried.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// New wraps an existing client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:     client,
		prefix:     defaultPrefix,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return New(client, opts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

// GetState returns the document stored under key.
func (s *Store) GetState(ctx context.Context, key string) ([]byte, error) {
	doc, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting state %q: %w", key, err)
	}
	return doc, nil
}

// PutState replaces the document stored under key.
func (s *Store) PutState(ctx context.Context, key string, doc []byte) error {
	if err := s.client.Set(ctx, s.key(key), doc, 0).Err(); err != nil {
		return fmt.Errorf("setting state %q: %w", key, err)
	}
	return nil
}

// UpdateState runs fn under WATCH and writes its result in a MULTI block,
// retrying when another client modified the key in between.
func (s *Store) UpdateState(ctx context.Context, key string, fn store.UpdateFunc) error {
	rkey := s.key(key)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, rkey).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return fmt.Errorf("getting state %q: %w", key, err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, rkey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff):
		}
	}
	return fmt.Errorf("updating state %q: %w", key, ErrConflict)
}

// SeedState stores doc only if key has no document yet.
func (s *Store) SeedState(ctx context.Context, key string, doc []byte) (bool, error) {
	wrote, err := s.client.SetNX(ctx, s.key(key), doc, 0).Result()
	if err != nil {
		return false, fmt.Errorf("seeding state %q: %w", key, err)
	}
	return wrote, nil
}

var _ store.StateStore = (*Store)(nil)
