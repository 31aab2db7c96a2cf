package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// redisClient connects to DEEPLEELA_TEST_REDIS (host:port) or skips.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("DEEPLEELA_TEST_REDIS")
	if addr == "" {
		t.Skip("DEEPLEELA_TEST_REDIS not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis at %s unavailable: %v", addr, err)
	}
	return rdb
}

func TestRedisStore(t *testing.T) {
	rdb := redisClient(t)
	s := NewRedisStore(rdb, time.Minute)
	s.prefix = "deepleela:test:" + t.Name() + ":"
	ctx := context.Background()

	if err := s.Save(ctx, "g1", "(;B[aa])"); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx, "g1")
	if err != nil || got != "(;B[aa])" {
		t.Fatalf("load: %q %v", got, err)
	}
	if _, err := s.Load(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ttl := rdb.TTL(ctx, s.prefix+"g1").Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestHubRunRedis(t *testing.T) {
	rdb := redisClient(t)
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	channel := "deepleela-test-" + t.Name()
	errCh := make(chan error, 1)
	go func() { errCh <- h.RunRedis(ctx, rdb, channel) }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if err := rdb.Publish(ctx, channel, "game 42 update").Err(); err != nil {
			t.Fatalf("publish: %v", err)
		}
		h.mu.Lock()
		n := len(h.history)
		h.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message never reached the hub")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("RunRedis: %v", err)
	}
}

func TestNewRedisStoreDefaultTTL(t *testing.T) {
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), 0)
	if s.ttl != defaultReviewTTL {
		t.Fatalf("ttl=%v", s.ttl)
	}
}
