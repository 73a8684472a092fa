package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

type StoreOption func(*RedisStore)

// WithClock sets the clock used for expiry checks and key TTLs. It should be
// the same clock the session service stamps sessions with.
func WithClock(now func() time.Time) StoreOption {
	return func(r *RedisStore) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRedisStore creates a Redis-backed session store. Key expiry doubles as
// the expired-session sweep.
func NewRedisStore(client redis.UniversalClient, opts ...StoreOption) *RedisStore {
	r := &RedisStore{
		client: client,
		prefix: "session:",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) key(token string) string {
	return r.prefix + token
}

func (r *RedisStore) Create(ctx context.Context, s Session) error {
	if s.Token == "" || s.UserID == "" {
		return fmt.Errorf("%w: missing token or user_id", ErrInvalid)
	}
	return r.write(ctx, s, "create")
}

func (r *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	val, err := r.client.Get(ctx, r.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}

	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}

	if !s.Valid(r.now()) {
		return nil, ErrNotFound
	}

	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

func (r *RedisStore) Update(ctx context.Context, s Session) error {
	if s.Token == "" {
		return fmt.Errorf("%w: missing token", ErrInvalid)
	}

	if !s.ExpiresAt.After(r.now()) {
		// If expired, delete session instead of extending
		return r.Delete(ctx, s.Token)
	}

	return r.write(ctx, s, "update")
}

func (r *RedisStore) write(ctx context.Context, s Session, op string) error {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("%w: expires_at must be in the future", ErrInvalid)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	if err := r.client.Set(ctx, r.key(s.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("session: %s: %w", op, err)
	}
	return nil
}
