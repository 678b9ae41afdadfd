package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping integration test")
	}
	client, err := Connect(context.Background(), url)
	if err != nil {
		t.Skipf("Redis connection failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Minute)
}

func TestRedisStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	id := uuid.NewString()
	t.Cleanup(func() { _ = s.Destroy(ctx, id) })

	if err := s.Create(ctx, id, "ann"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	st, err := s.Get(ctx, id)
	if err != nil || st == nil || st.Username != "ann" || st.Attempts != 0 {
		t.Fatalf("Get = %+v, %v", st, err)
	}
	if n, err := s.IncrementAttempts(ctx, id); err != nil || n != 1 {
		t.Errorf("IncrementAttempts = %d, %v", n, err)
	}
	username, ok, err := s.Consume(ctx, id)
	if err != nil || !ok || username != "ann" {
		t.Errorf("Consume = %q, %v, %v", username, ok, err)
	}
	if _, ok, _ := s.Consume(ctx, id); ok {
		t.Error("second Consume should find nothing")
	}
	if err := s.Destroy(ctx, id); err != nil {
		t.Errorf("Destroy on missing key = %v", err)
	}
}

func TestRedisStore_CounterOnlyHasShortTTL(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	s.ttl, s.counterTTL = time.Hour, CounterTTL
	id := uuid.NewString()
	t.Cleanup(func() { _ = s.Destroy(ctx, id) })

	if _, err := s.IncrementAttempts(ctx, id); err != nil {
		t.Fatal(err)
	}
	ttl, err := s.client.TTL(ctx, keyPrefix+id).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > CounterTTL {
		t.Errorf("TTL = %v, want within (0, %v]", ttl, CounterTTL)
	}
	st, _ := s.Get(ctx, id)
	if st == nil || st.Pending() {
		t.Errorf("state = %+v, want counter-only session", st)
	}
}

func TestRedisStore_IncrementKeepsSessionTTL(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	s.ttl, s.counterTTL = time.Hour, CounterTTL
	id := uuid.NewString()
	t.Cleanup(func() { _ = s.Destroy(ctx, id) })

	if err := s.Create(ctx, id, "ann"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.IncrementAttempts(ctx, id); err != nil {
		t.Fatal(err)
	}
	if ttl, _ := s.client.TTL(ctx, keyPrefix+id).Result(); ttl <= CounterTTL {
		t.Errorf("TTL = %v, a real session must keep its own expiry", ttl)
	}
}
