package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisReceiptCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ ReceiptCache = (*RedisReceiptCache)(nil)

func NewRedisReceiptCache(rdb *redis.Client, ttl time.Duration) *RedisReceiptCache {
	return &RedisReceiptCache{rdb: rdb, ttl: ttl}
}

func receiptKey(reminderID int64) string {
	return fmt.Sprintf("reminder:%d:call", reminderID)
}

func (c *RedisReceiptCache) StoreReceipt(ctx context.Context, r Receipt) error {
	r.CalledAt = r.CalledAt.UTC()

	b, err := json.Marshal(r)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, receiptKey(r.ReminderID), b, c.ttl).Err()
}

func (c *RedisReceiptCache) LookupReceipt(ctx context.Context, reminderID int64) (Receipt, error) {
	raw, err := c.rdb.Get(ctx, receiptKey(reminderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Receipt{}, ErrReceiptNotFound
	}
	if err != nil {
		return Receipt{}, err
	}

	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt %d: %w", reminderID, err)
	}
	r.ReminderID = reminderID
	return r, nil
}

func (c *RedisReceiptCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
