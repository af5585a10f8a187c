// Package storage persists sessions and caches user lists.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskflow/session"
)

// RedisSessionStore keeps sessions in Redis until their token expires.
type RedisSessionStore struct {
	redis  *redis.Client
	maxTTL time.Duration
	now    func() time.Time
}

// NewRedisSessionStore creates a store. maxTTL bounds the key lifetime; zero means the
// token expiry alone decides.
func NewRedisSessionStore(client *redis.Client, maxTTL time.Duration) *RedisSessionStore {
	if client == nil {
		panic("storage.NewRedisSessionStore: redis client is nil")
	}
	if maxTTL < 0 {
		maxTTL = 0
	}
	return &RedisSessionStore{redis: client, maxTTL: maxTTL, now: time.Now}
}

func (s *RedisSessionStore) Save(ctx context.Context, sess session.Session) error {
	ttl := s.maxTTL
	if !sess.ExpiresAt.IsZero() {
		left := sess.ExpiresAt.Sub(s.now())
		if left <= 0 {
			return session.ErrExpired
		}
		if ttl == 0 || left < ttl {
			ttl = left
		}
	}
	data, err := sonic.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.redis.Set(ctx, sessionKey(sess.ID), data, ttl).Err()
}

func (s *RedisSessionStore) Load(ctx context.Context, id string) (session.Session, error) {
	data, err := s.redis.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, err
	}
	var sess session.Session
	if err := sonic.Unmarshal(data, &sess); err != nil {
		_ = s.redis.Del(ctx, sessionKey(id)).Err()
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	n, err := s.redis.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func sessionKey(id string) string {
	return "session:" + id
}
