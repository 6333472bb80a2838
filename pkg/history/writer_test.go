package history

import (
	"context"
	"slices"
	"testing"

	"github.com/alexoch/PoseidonML/pkg/kv"
)

func TestWriter_Append_RoundTrip(t *testing.T) {
	c := kv.NewMemoryClient()
	ctx := context.Background()
	cfg := Config{StateSize: 2}
	w := NewWriter(c, cfg)

	rec := StateRecord{
		CurrentRepresentation: []float64{0.1, 0.9},
		Representation:        []float64{0.3, 0.7},
		Labels:                []string{"workstation", "server"},
		Confidences:           []float64{0.8, 0.2},
		OtherIPs:              []string{"10.0.0.5"},
	}

	for _, ts := range []float64{100, 200, 100} {
		if err := w.Append(ctx, "10.0.0.1", NewTimestamp(ts), rec); err != nil {
			t.Fatalf("Append(%v) error = %v", ts, err)
		}
	}

	all, err := NewIndex(c, cfg).Timestamps(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Timestamps() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("timestamp set has %d entries, want 2 (duplicates are not appended)", len(all))
	}

	lookup := NewIndex(c, cfg).LatestBefore(ctx, "10.0.0.1", NewTimestamp(250))
	if !lookup.Found || lookup.Timestamp.Value != 200 {
		t.Fatalf("LatestBefore() = %+v, want 200", lookup)
	}

	got, err := NewLoader(c, cfg).Load(ctx, "10.0.0.1", lookup.Timestamp)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !slices.Equal(got.Representation, rec.Representation) {
		t.Errorf("Representation = %v, want %v", got.Representation, rec.Representation)
	}
	if !slices.Equal(got.Labels, rec.Labels) {
		t.Errorf("Labels = %v, want %v", got.Labels, rec.Labels)
	}
}

func TestWriter_Append_Validation(t *testing.T) {
	w := NewWriter(kv.NewMemoryClient(), Config{StateSize: 2})
	ctx := context.Background()

	tests := []struct {
		name    string
		address string
		rec     StateRecord
	}{
		{"empty address", "", StateRecord{CurrentRepresentation: []float64{0, 0}, Representation: []float64{0, 0}}},
		{"wrong dimension", "10.0.0.1", StateRecord{CurrentRepresentation: []float64{0}, Representation: []float64{0, 0}}},
		{"label mismatch", "10.0.0.1", StateRecord{
			CurrentRepresentation: []float64{0, 0},
			Representation:        []float64{0, 0},
			Labels:                []string{"a"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.Append(ctx, tt.address, NewTimestamp(1), tt.rec); err == nil {
				t.Error("Append() expected error, got nil")
			}
		})
	}
}
