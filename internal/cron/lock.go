package cron

import (
	"context"
	"time"
)

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(parts ...string) string
}

// RedisLocker implements Locker on top of redis SETNX with a TTL.
type RedisLocker struct {
	store redisStore
}

func NewRedisLocker(store redisStore) *RedisLocker {
	return &RedisLocker{store: store}
}

func (l *RedisLocker) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	return l.store.SetNX(ctx, l.store.LockKey("cron", job), time.Now().UTC().Format(time.RFC3339), ttl)
}

func (l *RedisLocker) Release(ctx context.Context, job string) error {
	return l.store.Del(ctx, l.store.LockKey("cron", job))
}
