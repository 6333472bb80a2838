package history

import (
	"context"
	"fmt"

	"github.com/alexoch/PoseidonML/pkg/kv"
)

// Resolver maps an endpoint key to the address recorded in its metadata.
type Resolver struct {
	client kv.Client
}

// NewResolver creates a Resolver over client.
func NewResolver(client kv.Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve reads the "endpoint" metadata of key. Any failure leaves the key
// unresolved with Cause set.
func (r *Resolver) Resolve(ctx context.Context, key string) Resolution {
	if key == "" {
		return Resolution{Cause: fmt.Errorf("empty endpoint key")}
	}

	fields, err := r.client.HGetAll(ctx, key)
	if err != nil {
		return Resolution{Cause: fmt.Errorf("read metadata of %s: %w", key, err)}
	}

	raw, ok := fields[FieldEndpoint]
	if !ok {
		return Resolution{Cause: &FieldError{Key: key, Field: FieldEndpoint, Err: ErrFieldMissing}}
	}

	addr, err := decodeEndpointAddress(raw)
	if err != nil {
		return Resolution{Cause: &FieldError{Key: key, Field: FieldEndpoint, Err: err}}
	}

	return Resolution{Address: addr, Resolved: true}
}
