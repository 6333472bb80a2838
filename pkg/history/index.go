package history

import (
	"context"
	"fmt"

	"github.com/alexoch/PoseidonML/pkg/kv"
)

// Index answers "when was this address last observed before t".
type Index struct {
	client kv.Client
	cfg    Config
}

// NewIndex creates an Index over client.
func NewIndex(client kv.Client, cfg Config) *Index {
	return &Index{client: client, cfg: cfg}
}

// Timestamps returns the full historical timestamp set of address.
// A missing hash or field yields an empty set and no error.
func (x *Index) Timestamps(ctx context.Context, address string) ([]Timestamp, error) {
	fields, err := x.client.HGetAll(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("read history of %s: %w", address, err)
	}

	raw, ok := fields[FieldTimestamps]
	if !ok {
		return nil, nil
	}

	ts, err := decodeTimestamps(raw)
	if err != nil {
		return nil, &FieldError{Key: address, Field: FieldTimestamps, Err: err}
	}
	return ts, nil
}

// LatestBefore returns the latest stored timestamp of address strictly
// before ref. Store errors and malformed history are reported as absence
// with Cause set.
func (x *Index) LatestBefore(ctx context.Context, address string, ref Timestamp) Lookup {
	all, err := x.Timestamps(ctx, address)
	if err != nil {
		return Lookup{Cause: err}
	}

	var (
		latest Timestamp
		found  bool
	)
	for _, ts := range all {
		if !ts.Before(ref) {
			continue
		}
		if !found || latest.Before(ts) {
			latest = ts
			found = true
		}
	}

	return Lookup{Timestamp: latest, Found: found}
}
