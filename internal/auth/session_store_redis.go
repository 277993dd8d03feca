package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "tt"

// RedisSessionStore keeps each session under its own key with a Redis TTL
// matching the session expiry, plus a per-user set of session ids used to
// sign a user out everywhere.
type RedisSessionStore struct {
	rdb    redis.UniversalClient
	prefix string

	nowFunc func() time.Time
}

type redisSession struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewRedisSessionStore(rdb redis.UniversalClient, prefix string) (*RedisSessionStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisSessionStore{rdb: rdb, prefix: prefix, nowFunc: time.Now}, nil
}

func (s *RedisSessionStore) sessionKey(id string) string { return s.prefix + ":s:" + id }

func (s *RedisSessionStore) userKey(userID string) string { return s.prefix + ":u:" + userID }

func (s *RedisSessionStore) Find(ctx context.Context, id string) (Session, error) {
	raw, err := s.rdb.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}

	var rs redisSession
	if err := json.Unmarshal(raw, &rs); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return Session{ID: id, UserID: rs.UserID, ExpiresAt: rs.ExpiresAt}, nil
}

func (s *RedisSessionStore) Insert(ctx context.Context, session Session) error {
	ttl := session.ExpiresAt.Sub(s.nowFunc())
	if ttl <= 0 {
		return fmt.Errorf("insert session: already expired")
	}
	b, err := json.Marshal(redisSession{UserID: session.UserID, ExpiresAt: session.ExpiresAt})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(session.ID), b, ttl)
		pipe.SAdd(ctx, s.userKey(session.UserID), session.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	sess, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	ttl := expiresAt.Sub(s.nowFunc())
	if ttl <= 0 {
		return s.Delete(ctx, id)
	}
	b, err := json.Marshal(redisSession{UserID: sess.UserID, ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ok, err := s.rdb.SetXX(ctx, s.sessionKey(id), b, ttl).Result()
	if err != nil {
		return fmt.Errorf("update session expiry: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(id))
		pipe.SRem(ctx, s.userKey(sess.UserID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.rdb.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list user sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	dels := make([]*redis.IntCmd, 0, len(ids))
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			dels = append(dels, pipe.Del(ctx, s.sessionKey(id)))
		}
		pipe.Del(ctx, s.userKey(userID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}

	n := 0
	for _, cmd := range dels {
		n += int(cmd.Val())
	}
	return n, nil
}

// DeleteExpired is a no-op: Redis expires session keys on its own. Stale ids
// left in the per-user sets are dropped by DeleteByUser.
func (s *RedisSessionStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
