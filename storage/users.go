package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskflow/domain"
	"taskflow/userdir"
)

const (
	allUsersKey        = "users:all"
	assignableUsersKey = "users:assignable"
)

// UserCache wraps a user loader with a Redis copy of its lists shared by every session.
// Redis errors fall back to the loader without failing.
type UserCache struct {
	base  userdir.Loader
	redis *redis.Client
	ttl   time.Duration
}

// NewUserCache creates a caching loader using the provided Redis client and TTL.
func NewUserCache(base userdir.Loader, client *redis.Client, ttl time.Duration) *UserCache {
	if base == nil {
		panic("storage.NewUserCache: base loader is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &UserCache{base: base, redis: client, ttl: ttl}
}

func (c *UserCache) ListUsers(ctx context.Context) ([]domain.User, error) {
	return c.list(ctx, allUsersKey, c.base.ListUsers)
}

func (c *UserCache) ListAssignableUsers(ctx context.Context) ([]domain.User, error) {
	return c.list(ctx, assignableUsersKey, c.base.ListAssignableUsers)
}

// Evict drops the shared lists so the next load reaches the API.
func (c *UserCache) Evict(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, allUsersKey, assignableUsersKey).Err()
}

func (c *UserCache) list(ctx context.Context, key string, fetch func(context.Context) ([]domain.User, error)) ([]domain.User, error) {
	if users, ok := c.load(ctx, key); ok {
		return users, nil
	}
	users, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, users)
	return users, nil
}

func (c *UserCache) load(ctx context.Context, key string) ([]domain.User, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var users []domain.User
	if err := sonic.Unmarshal(data, &users); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return users, true
}

func (c *UserCache) store(ctx context.Context, key string, users []domain.User) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(users)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}
