package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Store is a best-effort key-value cache with per-key TTL. The portal
// token revocation list lives behind this interface so whether entries
// are shared across processes is an explicit wiring choice.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New returns a redis-backed store when addr is set and reachable,
// otherwise a process-local store.
func New(ctx context.Context, log *logrus.Logger, addr string) Store {
	if addr == "" {
		log.Warn("REDIS_ADDR not set, falling back to in-process cache")
		return NewMemory()
	}
	r, err := NewRedis(ctx, addr)
	if err != nil {
		log.Warnf("redis unreachable, falling back to in-process cache: %v", err)
		return NewMemory()
	}
	return r
}

type item struct {
	value     string
	expiresAt time.Time
}

type Memory struct {
	mu    sync.Mutex
	items map[string]item
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]item)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return "", false, nil
	}
	if !it.expiresAt.IsZero() && time.Now().After(it.expiresAt) {
		delete(m.items, key)
		return "", false, nil
	}
	return it.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := item{value: value}
	if ttl > 0 {
		it.expiresAt = time.Now().Add(ttl)
	}
	m.items[key] = it
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
