package redisstate

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/justestif/go-mixpoint/internal/store/storetest"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	addr := os.Getenv("MIXPOINT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MIXPOINT_TEST_REDIS_ADDR not set")
	}
	opts = append([]Option{WithPrefix("mixpoint-test:" + uuid.NewString() + ":")}, opts...)
	s, err := Connect(context.Background(), addr, "", 0, opts...)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.RunStateStore(t, openTestStore(t))
}

func TestStore_PrefixIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutState(ctx, "mixState", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("PutState() error: %v", err)
	}

	raw, err := s.client.Get(ctx, s.prefix+"mixState").Bytes()
	if err != nil {
		t.Fatalf("raw Get() error: %v", err)
	}
	if string(raw) != `{"v":1}` {
		t.Errorf("raw value = %s", raw)
	}

	if _, err := s.client.Get(ctx, "mixState").Bytes(); !errors.Is(err, redis.Nil) {
		t.Errorf("unprefixed key should be absent, got err = %v", err)
	}
}

func TestWithMaxRetries(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"positive", 5, 5},
		{"zero keeps default", 0, defaultMaxRetries},
		{"negative keeps default", -1, defaultMaxRetries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil, WithMaxRetries(tt.in))
			if s.maxRetries != tt.want {
				t.Errorf("maxRetries = %d, want %d", s.maxRetries, tt.want)
			}
		})
	}
}
