package history

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/alexoch/PoseidonML/pkg/kv"
)

// Writer persists state records in the layout the index and loader read.
//
// Append is not atomic across the record and the timestamp set; concurrent
// writers for the same address must be serialized by the caller.
type Writer struct {
	client kv.Client
	index  *Index
	cfg    Config
}

// NewWriter creates a Writer over client.
func NewWriter(client kv.Client, cfg Config) *Writer {
	return &Writer{client: client, index: NewIndex(client, cfg), cfg: cfg}
}

// Append stores rec as the state of address at ts and adds ts to the
// address's timestamp set.
func (w *Writer) Append(ctx context.Context, address string, ts Timestamp, rec StateRecord) error {
	if address == "" {
		return fmt.Errorf("address required")
	}
	if len(rec.CurrentRepresentation) != w.cfg.StateSize || len(rec.Representation) != w.cfg.StateSize {
		return fmt.Errorf("representation vectors must have %d elements", w.cfg.StateSize)
	}
	if len(rec.Labels) != len(rec.Confidences) {
		return fmt.Errorf("%d confidences for %d labels", len(rec.Confidences), len(rec.Labels))
	}

	fields := map[string]string{}
	put := func(field string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", field, err)
		}
		fields[field] = string(b)
		return nil
	}

	if err := put(FieldCurrentRepresentation, rec.CurrentRepresentation); err != nil {
		return err
	}
	if err := put(FieldRepresentation, rec.Representation); err != nil {
		return err
	}
	if rec.Labels != nil {
		if err := put(FieldLabels, rec.Labels); err != nil {
			return err
		}
		if err := put(FieldConfidences, rec.Confidences); err != nil {
			return err
		}
	}
	if rec.OtherIPs != nil {
		if err := put(FieldOtherIPs, rec.OtherIPs); err != nil {
			return err
		}
	}

	if err := w.client.HSet(ctx, w.cfg.RecordKey(address, ts), fields); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}

	existing, err := w.index.Timestamps(ctx, address)
	if err != nil {
		return fmt.Errorf("read timestamp set: %w", err)
	}
	if slices.ContainsFunc(existing, func(t Timestamp) bool { return t.String() == ts.String() }) {
		return nil
	}

	texts := make([]string, 0, len(existing)+1)
	for _, t := range existing {
		texts = append(texts, t.String())
	}
	texts = append(texts, ts.String())

	set := map[string]string{FieldTimestamps: "[" + strings.Join(texts, ", ") + "]"}
	if err := w.client.HSet(ctx, address, set); err != nil {
		return fmt.Errorf("write timestamp set: %w", err)
	}
	return nil
}
