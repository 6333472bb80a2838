package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexoch/PoseidonML/pkg/kv"
)

// Loader reads state records.
type Loader struct {
	client kv.Client
	cfg    Config
}

// NewLoader creates a Loader over client.
func NewLoader(client kv.Client, cfg Config) *Loader {
	return &Loader{client: client, cfg: cfg}
}

// Load reads the state record of address at ts.
//
// The returned record is always usable. Each field is decoded on its own:
// representation vectors that are missing or not of the configured
// dimension become zero vectors, and labels/confidences/other_ips that do
// not decode (or whose label and confidence lists disagree in length)
// become nil. The returned error joins a FieldError per degraded field, or
// carries the store failure when nothing could be read.
func (l *Loader) Load(ctx context.Context, address string, ts Timestamp) (StateRecord, error) {
	key := l.cfg.RecordKey(address, ts)

	rec := StateRecord{
		CurrentRepresentation: make([]float64, l.cfg.StateSize),
		Representation:        make([]float64, l.cfg.StateSize),
	}

	fields, err := l.client.HGetAll(ctx, key)
	if err != nil {
		return rec, fmt.Errorf("read state record %s: %w", key, err)
	}

	var errs []error
	fail := func(field string, err error) {
		errs = append(errs, &FieldError{Key: key, Field: field, Err: err})
	}

	if v, err := l.vector(fields, FieldCurrentRepresentation); err != nil {
		fail(FieldCurrentRepresentation, err)
	} else {
		rec.CurrentRepresentation = v
	}

	if v, err := l.vector(fields, FieldRepresentation); err != nil {
		fail(FieldRepresentation, err)
	} else {
		rec.Representation = v
	}

	labels, labelsErr := optional(fields, FieldLabels, decodeStrings)
	confs, confsErr := optional(fields, FieldConfidences, decodeFloats)
	switch {
	case labelsErr != nil:
		fail(FieldLabels, labelsErr)
	case confsErr != nil:
		fail(FieldConfidences, confsErr)
	case len(labels) != len(confs):
		fail(FieldConfidences, fmt.Errorf("%d confidences for %d labels", len(confs), len(labels)))
	case len(labels) > 0:
		rec.Labels = labels
		rec.Confidences = confs
	}

	if ips, err := optional(fields, FieldOtherIPs, decodeStrings); err != nil {
		fail(FieldOtherIPs, err)
	} else {
		rec.OtherIPs = ips
	}

	return rec, errors.Join(errs...)
}

func (l *Loader) vector(fields map[string]string, field string) ([]float64, error) {
	raw, ok := fields[field]
	if !ok {
		return nil, ErrFieldMissing
	}
	return decodeVector(raw, l.cfg.StateSize)
}

// optional decodes fields[field] if present; a missing field is not an error.
func optional[T any](fields map[string]string, field string, decode func(string) ([]T, error)) ([]T, error) {
	raw, ok := fields[field]
	if !ok {
		return nil, nil
	}
	return decode(raw)
}
