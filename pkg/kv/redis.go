package kv

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient implements Client on top of Redis hashes.
type RedisClient struct {
	client *redis.Client
	mu     sync.RWMutex
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
//
// Parameters:
//   - addr: Redis server address (e.g., "redis:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - timeout: per-call read/write timeout (0 uses 3s)
//   - tlsConfig: optional client TLS configuration (nil for plaintext)
func NewRedisClient(addr, password string, db int, timeout time.Duration, tlsConfig *tls.Config) (*RedisClient, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolSize:     4,
		TLSConfig:    tlsConfig,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisClient{client: client}, nil
}

// HGetAll returns every field of the hash stored at key.
func (r *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if key == "" {
		return nil, errors.New("key required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, redis.ErrClosed
	}

	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("hgetall %q: %w", key, err)
	}
	return fields, nil
}

// HSet writes fields into the hash stored at key, creating it if needed.
func (r *RedisClient) HSet(ctx context.Context, key string, fields map[string]string) error {
	if key == "" {
		return errors.New("key required")
	}
	if len(fields) == 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return redis.ErrClosed
	}

	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("hset %q: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection health.
func (r *RedisClient) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return redis.ErrClosed
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
// It is safe to call multiple times.
func (r *RedisClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
