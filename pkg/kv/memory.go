package kv

import (
	"context"
	"errors"
	"maps"
	"sync"
)

// MemoryClient is an in-process Client backed by a map of hashes.
// It is safe for concurrent use by multiple goroutines.
type MemoryClient struct {
	mu     sync.RWMutex
	hashes map[string]map[string]string
	err    error
}

// NewMemoryClient creates an empty in-memory store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		hashes: make(map[string]map[string]string),
	}
}

// FailWith makes every subsequent call return err. Passing nil clears it.
// Used to simulate an unreachable store.
func (m *MemoryClient) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// HGetAll returns a copy of the hash stored at key.
func (m *MemoryClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if key == "" {
		return nil, errors.New("key required")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}

	out := make(map[string]string, len(m.hashes[key]))
	maps.Copy(out, m.hashes[key])
	return out, nil
}

// HSet merges fields into the hash stored at key.
func (m *MemoryClient) HSet(ctx context.Context, key string, fields map[string]string) error {
	if key == "" {
		return errors.New("key required")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		m.hashes[key] = h
	}
	maps.Copy(h, fields)
	return nil
}

// Ping reports the simulated failure, if any.
func (m *MemoryClient) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Len returns the number of keys currently stored.
func (m *MemoryClient) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hashes)
}
