package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisReceiptCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisReceiptCache(rdb, ttl), mr
}

func TestRedisReceiptCache_StoreReceipt_Success(t *testing.T) {
	t.Parallel()

	cache, mr := newTestCache(t, 10*time.Second)

	ctx := context.Background()
	calledAt := time.Date(2026, 2, 2, 18, 0, 0, 0, time.FixedZone("CET", 3600))

	err := cache.StoreReceipt(ctx, Receipt{
		ReminderID:     42,
		CallID:         "call-123",
		IdempotencyKey: "42-0-0123456789abcdef",
		Attempt:        1,
		CalledAt:       calledAt,
	})
	if err != nil {
		t.Fatalf("StoreReceipt() error: %v", err)
	}

	key := "reminder:42:call"

	if !mr.Exists(key) {
		t.Fatalf("expected key %q to exist", key)
	}

	if ttlRemaining := mr.TTL(key); ttlRemaining <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttlRemaining)
	}

	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("failed to get key %q: %v", key, err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		t.Fatalf("failed to unmarshal value: %v", err)
	}
	for _, name := range []string{"callId", "idempotencyKey", "attempt", "calledAt"} {
		if _, ok := fields[name]; !ok {
			t.Fatalf("expected field %q in %s", name, raw)
		}
	}
	if fields["calledAt"] != "2026-02-02T17:00:00Z" {
		t.Fatalf("expected calledAt stored in UTC, got %v", fields["calledAt"])
	}
}

func TestRedisReceiptCache_LookupReceipt_RoundTrip(t *testing.T) {
	t.Parallel()

	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := cache.StoreReceipt(ctx, Receipt{ReminderID: 1, CallID: "first", Attempt: 1, CalledAt: time.Now()}); err != nil {
		t.Fatalf("first StoreReceipt() error: %v", err)
	}
	if err := cache.StoreReceipt(ctx, Receipt{ReminderID: 1, CallID: "second", Attempt: 2, CalledAt: time.Now()}); err != nil {
		t.Fatalf("second StoreReceipt() error: %v", err)
	}

	got, err := cache.LookupReceipt(ctx, 1)
	if err != nil {
		t.Fatalf("LookupReceipt() error: %v", err)
	}
	if got.ReminderID != 1 || got.CallID != "second" || got.Attempt != 2 {
		t.Fatalf("expected overwritten receipt, got %+v", got)
	}
}

func TestRedisReceiptCache_LookupReceipt_Missing(t *testing.T) {
	t.Parallel()

	cache, _ := newTestCache(t, time.Minute)

	_, err := cache.LookupReceipt(context.Background(), 99)
	if !errors.Is(err, ErrReceiptNotFound) {
		t.Fatalf("expected ErrReceiptNotFound, got %v", err)
	}
}

func TestRedisReceiptCache_Expires(t *testing.T) {
	t.Parallel()

	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := cache.StoreReceipt(ctx, Receipt{ReminderID: 5, CallID: "c", CalledAt: time.Now()}); err != nil {
		t.Fatalf("StoreReceipt() error: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := cache.LookupReceipt(ctx, 5); !errors.Is(err, ErrReceiptNotFound) {
		t.Fatalf("expected expired receipt, got %v", err)
	}
}

func TestRedisReceiptCache_ContextCanceled(t *testing.T) {
	t.Parallel()

	cache, _ := newTestCache(t, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cache.StoreReceipt(ctx, Receipt{ReminderID: 1, CallID: "x", CalledAt: time.Now()}); err == nil {
		t.Fatalf("expected error due to canceled context, got nil")
	}
}
