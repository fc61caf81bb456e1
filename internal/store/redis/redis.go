// Package redis implements store.Log on Redis lists, the canonical hot
// storage for the event log.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alfredjeanlab/hotstore/internal/store"
)

// RedisLog implements store.Log with LPUSH / LTRIM / LRANGE / LREM / LSET.
type RedisLog struct {
	client goredis.UniversalClient
}

// Compile-time check that RedisLog implements store.Log.
var _ store.Log = (*RedisLog)(nil)

// New parses a redis:// URL, connects, and verifies the connection with a
// PING bounded by dialTimeout.
func New(ctx context.Context, url string, dialTimeout time.Duration) (*RedisLog, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if dialTimeout > 0 {
		opts.DialTimeout = dialTimeout
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, max(dialTimeout, time.Second))
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, store.Unavailable("ping", err)
	}
	return &RedisLog{client: client}, nil
}

// NewFromClient wraps an existing client. The caller keeps ownership of
// options; Close closes the client.
func NewFromClient(client goredis.UniversalClient) *RedisLog {
	return &RedisLog{client: client}
}

func (r *RedisLog) PushHead(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := r.client.LPush(ctx, key, args...).Err(); err != nil {
		return store.Unavailable("lpush", err)
	}
	return nil
}

func (r *RedisLog) Trim(ctx context.Context, key string, start, stop int64) error {
	if err := r.client.LTrim(ctx, key, start, stop).Err(); err != nil {
		return store.Unavailable("ltrim", err)
	}
	return nil
}

func (r *RedisLog) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := r.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, store.Unavailable("lrange", err)
	}
	return vals, nil
}

func (r *RedisLog) RemoveFirst(ctx context.Context, key, value string) (bool, error) {
	n, err := r.client.LRem(ctx, key, 1, value).Result()
	if err != nil {
		return false, store.Unavailable("lrem", err)
	}
	return n > 0, nil
}

func (r *RedisLog) SetAt(ctx context.Context, key string, index int64, value string) error {
	err := r.client.LSet(ctx, key, index, value).Err()
	if err == nil {
		return nil
	}
	// Index errors come back as server replies, not transport failures.
	var rerr goredis.Error
	if errors.As(err, &rerr) {
		return fmt.Errorf("lset %s[%d]: %w", key, index, err)
	}
	return store.Unavailable("lset", err)
}

func (r *RedisLog) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return store.Unavailable("ping", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisLog) Close() error {
	return r.client.Close()
}
