package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMessage(t *testing.T) {
	got := Message(errors.New("disk full"))
	if got != "Oops, there was a problem: disk full" {
		t.Errorf("Message() = %q", got)
	}
}

func TestError(t *testing.T) {
	var got []string
	n := Func(func(_ context.Context, msg string) { got = append(got, msg) })

	Error(context.Background(), n, nil)
	Error(context.Background(), nil, errors.New("ignored"))
	Error(context.Background(), n, errors.New("boom"))

	if len(got) != 1 || got[0] != "Oops, there was a problem: boom" {
		t.Errorf("notifications = %v", got)
	}
}

func TestBuffer_Recent(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		count int
		want  []string
	}{
		{"empty", 3, 0, []string{}},
		{"partial", 3, 2, []string{"m0", "m1"}},
		{"exactly full", 3, 3, []string{"m0", "m1", "m2"}},
		{"wrapped", 3, 5, []string{"m2", "m3", "m4"}},
		{"size floor", 0, 2, []string{"m1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(tt.size)
			for i := 0; i < tt.count; i++ {
				b.Notify(context.Background(), fmt.Sprintf("m%d", i))
			}

			got := b.Recent()
			if len(got) != len(tt.want) {
				t.Fatalf("Recent() returned %d entries, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.Message != tt.want[i] {
					t.Errorf("Recent()[%d] = %q, want %q", i, e.Message, tt.want[i])
				}
			}
		})
	}
}

func TestMulti(t *testing.T) {
	a, b := NewBuffer(2), NewBuffer(2)
	Multi{a, b}.Notify(context.Background(), "hello")

	if len(a.Recent()) != 1 || len(b.Recent()) != 1 {
		t.Errorf("fan-out failed: a=%v b=%v", a.Recent(), b.Recent())
	}
}

func TestLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	NewLog(zap.New(core)).Notify(context.Background(), "Oops, there was a problem: x")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("level = %v, want warn", entries[0].Level)
	}
	if entries[0].ContextMap()["message"] != "Oops, there was a problem: x" {
		t.Errorf("fields = %v", entries[0].ContextMap())
	}
}
