package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/archofall1/ai-ap/internal/config"
	"github.com/archofall1/ai-ap/internal/redis"
)

var ErrKeyNotFound = errors.New("key not found")

// KV is the whole-value key-value backend behind the Store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key; a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// OpenKV builds the backend named by kind: sqlite3, mysql, redis or memory.
func OpenKV(kind string, cfg *config.Config) (KV, error) {
	switch strings.ToLower(kind) {
	case "memory":
		return NewMemoryKV(), nil
	case "redis":
		client, err := redis.NewRedisClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return NewRedisKV(client), nil
	case "sqlite", "sqlite3", "mysql":
		db, err := Open(kind, cfg)
		if err != nil {
			return nil, err
		}
		if err := Migrate(db, kind); err != nil {
			db.Close()
			return nil, err
		}
		kv, err := NewSQLKV(db, kind)
		if err != nil {
			db.Close()
			return nil, err
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unsupported store kind: %s", kind)
	}
}

// MemoryKV is an in-process backend. Values are copied on the way in and out.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryKV) Close() error { return nil }

// RedisKV stores values as plain redis strings.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key)
	if errors.Is(err, redis.ErrCacheMiss) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (r *RedisKV) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}
