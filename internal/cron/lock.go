package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 10 * time.Minute

// Lock coordinates exclusive cron cycles across instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	// Refresh pushes the expiry out by one TTL. False means ownership is gone.
	Refresh(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	TTL() time.Duration
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is one key holding a per-acquire token. Refresh and Release only
// act while the key still carries that token.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

func (l *RedisLock) TTL() time.Duration { return l.ttl }

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.setToken(token)
	}
	return ok, nil
}

func (l *RedisLock) Refresh(ctx context.Context) (bool, error) {
	token := l.currentToken()
	if token == "" {
		return false, nil
	}
	ok, err := l.client.ExpireIfValue(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("refresh %s: %w", l.key, err)
	}
	if !ok {
		l.setToken("")
	}
	return ok, nil
}

// Release drops the key if this instance still owns it. Releasing an expired
// or foreign lock is a no-op.
func (l *RedisLock) Release(ctx context.Context) error {
	token := l.currentToken()
	if token == "" {
		return nil
	}
	l.setToken("")
	if _, err := l.client.DelIfValue(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

func (l *RedisLock) currentToken() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token
}

func (l *RedisLock) setToken(token string) {
	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
}
