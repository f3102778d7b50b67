// Package notify delivers user-facing error messages.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notifier shows a message to the user.
type Notifier interface {
	Notify(ctx context.Context, msg string)
}

// Message formats an error the way the UI shows it.
func Message(err error) string {
	return "Oops, there was a problem: " + err.Error()
}

// Error reports err through n. A nil notifier or error is ignored.
func Error(ctx context.Context, n Notifier, err error) {
	if n == nil || err == nil {
		return
	}
	n.Notify(ctx, Message(err))
}

// Func adapts a function to a Notifier.
type Func func(ctx context.Context, msg string)

// Notify calls f.
func (f Func) Notify(ctx context.Context, msg string) {
	f(ctx, msg)
}

// Log writes notifications to a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

// Notify logs msg at warn level.
func (l *Log) Notify(_ context.Context, msg string) {
	l.logger.Warn("notification", zap.String("message", msg))
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

// Notify calls every notifier in order.
func (m Multi) Notify(ctx context.Context, msg string) {
	for _, n := range m {
		n.Notify(ctx, msg)
	}
}

// Entry is a buffered notification.
type Entry struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Buffer keeps the most recent notifications for clients to poll.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	now     func() time.Time
}

// NewBuffer creates a Buffer holding up to size entries.
func NewBuffer(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{
		entries: make([]Entry, size),
		now:     time.Now,
	}
}

// Notify records msg, evicting the oldest entry when full.
func (b *Buffer) Notify(_ context.Context, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = Entry{Message: msg, Time: b.now()}
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Recent returns buffered entries, oldest first.
func (b *Buffer) Recent() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		out := make([]Entry, b.next)
		copy(out, b.entries[:b.next])
		return out
	}
	out := make([]Entry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	out = append(out, b.entries[:b.next]...)
	return out
}
