// Package kv provides typed access to the associative store that holds
// per-address history. Every key maps to a flat field→value hash.
package kv

import "context"

// Client reads and writes field hashes.
//
// A key that does not exist is not an error: HGetAll returns an empty map.
type Client interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
}
