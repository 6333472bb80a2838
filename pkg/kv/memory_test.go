package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestNewMemoryClient(t *testing.T) {
	c := NewMemoryClient()
	if c == nil {
		t.Fatal("NewMemoryClient() returned nil")
	}
	if c.Len() != 0 {
		t.Errorf("new client should be empty, got %d keys", c.Len())
	}
}

func TestMemoryClient_HGetAll_Missing(t *testing.T) {
	c := NewMemoryClient()

	got, err := c.HGetAll(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("HGetAll() unexpected error = %v", err)
	}
	if got == nil {
		t.Fatal("HGetAll() returned nil map for missing key, want empty map")
	}
	if len(got) != 0 {
		t.Errorf("HGetAll() returned %d fields for missing key, want 0", len(got))
	}
}

func TestMemoryClient_HSet_Merge(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	if err := c.HSet(ctx, "k", map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("HSet() error = %v", err)
	}
	if err := c.HSet(ctx, "k", map[string]string{"b": "3", "c": "4"}); err != nil {
		t.Fatalf("HSet() error = %v", err)
	}

	got, err := c.HGetAll(ctx, "k")
	if err != nil {
		t.Fatalf("HGetAll() error = %v", err)
	}

	want := map[string]string{"a": "1", "b": "3", "c": "4"}
	if len(got) != len(want) {
		t.Fatalf("HGetAll() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %q = %q, want %q", k, got[k], v)
		}
	}
}

func TestMemoryClient_HGetAll_ReturnsCopy(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	if err := c.HSet(ctx, "k", map[string]string{"a": "1"}); err != nil {
		t.Fatalf("HSet() error = %v", err)
	}

	got, _ := c.HGetAll(ctx, "k")
	got["a"] = "mutated"

	again, _ := c.HGetAll(ctx, "k")
	if again["a"] != "1" {
		t.Errorf("stored value changed through returned map: %q", again["a"])
	}
}

func TestMemoryClient_EmptyKey(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	if _, err := c.HGetAll(ctx, ""); err == nil {
		t.Error("HGetAll(\"\") expected error, got nil")
	}
	if err := c.HSet(ctx, "", map[string]string{"a": "1"}); err == nil {
		t.Error("HSet(\"\") expected error, got nil")
	}
}

func TestMemoryClient_FailWith(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()
	boom := errors.New("connection refused")

	c.FailWith(boom)

	if _, err := c.HGetAll(ctx, "k"); !errors.Is(err, boom) {
		t.Errorf("HGetAll() error = %v, want %v", err, boom)
	}
	if err := c.Ping(ctx); !errors.Is(err, boom) {
		t.Errorf("Ping() error = %v, want %v", err, boom)
	}

	c.FailWith(nil)
	if _, err := c.HGetAll(ctx, "k"); err != nil {
		t.Errorf("HGetAll() after clearing failure error = %v", err)
	}
}

func TestMemoryClient_ContextCanceled(t *testing.T) {
	c := NewMemoryClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.HGetAll(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("HGetAll() error = %v, want context.Canceled", err)
	}
	if err := c.HSet(ctx, "k", map[string]string{"a": "1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("HSet() error = %v, want context.Canceled", err)
	}
}

func TestMemoryClient_Concurrency(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				key := fmt.Sprintf("10.0.0.%d_%d", id, j)
				if err := c.HSet(ctx, key, map[string]string{"labels": "[]"}); err != nil {
					t.Errorf("HSet() error = %v", err)
				}
				if _, err := c.HGetAll(ctx, key); err != nil {
					t.Errorf("HGetAll() error = %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	if c.Len() != 200 {
		t.Errorf("Len() = %d, want 200", c.Len())
	}
}
