// Package library manages the persisted catalog: tracks deduplicated by
// fingerprint, and the mixes and sets built from them.
package library

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/go-mixpoint/internal/notify"
	"github.com/justestif/go-mixpoint/internal/store"
)

type options struct {
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures Tracks, Mixes and Sets.
type Option func(*options)

// WithNotifier sets where storage failures are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock overrides time.Now for LastModified stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// fail wraps a persistence error and reports storage failures once.
// ErrNotFound is returned as is and not reported.
func (o options) fail(ctx context.Context, op string, err error) error {
	err = store.Wrap(op, err)
	var se *store.StorageError
	if errors.As(err, &se) {
		o.logger.Error("storage failure", zap.String("op", op), zap.Error(se.Err))
		notify.Error(ctx, o.notifier, err)
	}
	return err
}
