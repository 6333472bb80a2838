// Package pipeline runs one decider invocation: resolve the capture's
// endpoint key, check it against the capture's source address, look up the
// address's latest prior observation, decide and publish.
//
// Soft failures along the way (unresolved key, no history, malformed store
// fields, store errors) are logged and counted, and degrade the record to
// valid=false. An address mismatch aborts the run before anything is
// published. A publish failure is returned to the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alexoch/PoseidonML/cmd/decider/metrics"
	"github.com/alexoch/PoseidonML/pkg/capture"
	"github.com/alexoch/PoseidonML/pkg/decision"
	"github.com/alexoch/PoseidonML/pkg/history"
	"github.com/alexoch/PoseidonML/pkg/kv"
	"github.com/alexoch/PoseidonML/pkg/publish"
)

var (
	// ErrAddressMismatch is returned when the key's resolved address and the
	// capture's source address disagree. No record is produced.
	ErrAddressMismatch = errors.New("resolved address does not match capture source")
	// ErrNoAddress is returned when neither the capture name nor its
	// sessions name a source address.
	ErrNoAddress = errors.New("no source address for capture")
)

// Request is the input of one invocation.
type Request struct {
	// Capture is the capture file name. Empty uses Summary.Capture.
	Capture string
	Summary capture.Summary
}

// Result is the outcome of one invocation. Record is only meaningful when
// Decide returned a nil error or an error wrapping publish.ErrPublish.
type Result struct {
	RunID  string
	Record decision.Record
}

// Decider wires the history lookups, the engine and the publisher.
type Decider struct {
	resolver  *history.Resolver
	index     *history.Index
	loader    *history.Loader
	engine    *decision.Engine
	publisher publish.Publisher
	stateSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
	newID     func() string
}

// New creates a Decider reading history from client.
func New(client kv.Client, hcfg history.Config, engine *decision.Engine, publisher publish.Publisher, m *metrics.Metrics, logger *slog.Logger) *Decider {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}

	return &Decider{
		resolver:  history.NewResolver(client),
		index:     history.NewIndex(client, hcfg),
		loader:    history.NewLoader(client, hcfg),
		engine:    engine,
		publisher: publisher,
		stateSize: hcfg.StateSize,
		metrics:   m,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// Decide runs one invocation for req.
func (d *Decider) Decide(ctx context.Context, req Request) (Result, error) {
	res := Result{RunID: d.newID()}
	logger := d.logger.With("run_id", res.RunID)

	captureName := req.Capture
	if captureName == "" {
		captureName = req.Summary.Capture
	}
	name, err := capture.ParseName(captureName)
	if err != nil {
		d.metrics.RecordError("capture", "malformed_name")
		return res, err
	}

	resolution := d.resolver.Resolve(ctx, name.Key)
	if !resolution.Resolved {
		logger.Info("endpoint key not resolved", "key", name.Key, "reason", resolution.Cause)
		d.metrics.RecordDegradation(metrics.ReasonUnresolvedKey)
	}

	// Both sides are optional: an unresolved key matches a name without an
	// address, and the address then comes from the sessions.
	if resolution.Address != name.SourceIP {
		logger.Warn("skipping capture, key address does not match source",
			"key", name.Key,
			"key_address", resolution.Address,
			"source_ip", name.SourceIP,
		)
		d.metrics.RecordPreconditionFailure()
		return res, fmt.Errorf("%w: key %s resolves to %q, capture source is %q",
			ErrAddressMismatch, name.Key, resolution.Address, name.SourceIP)
	}

	key := ""
	if resolution.Resolved {
		key = name.Key
	}

	last, hasSession := req.Summary.Last()
	address := name.SourceIP
	if address == "" {
		address = last.SourceIP
	}
	if address == "" {
		d.metrics.RecordError("capture", "no_address")
		return res, fmt.Errorf("%w %q", ErrNoAddress, captureName)
	}
	logger = logger.With("address", address)

	now := req.Summary.Timestamp
	in := decision.Input{
		Key:     key,
		Address: address,
		Mean:    make([]float64, d.stateSize),
		Now:     now,
	}
	var storedCurrent []float64

	// The history lookup counts at most one degradation: its first cause.
	historyReason := ""
	lookup := d.index.LatestBefore(ctx, address, now)
	if lookup.Cause != nil {
		logger.Info("history unavailable", "reason", lookup.Cause)
		historyReason = degradationReason(lookup.Cause)
	}

	if lookup.Found {
		rec, err := d.loader.Load(ctx, address, lookup.Timestamp)
		if err != nil {
			logger.Info("state record degraded", "timestamp", lookup.Timestamp.String(), "reason", err)
			historyReason = degradationReason(err)
		}
		in.Previous = lookup.Timestamp
		in.HasPrevious = true
		in.Mean = rec.Representation
		in.Labels = rec.Labels
		in.Confidences = rec.Confidences
		storedCurrent = rec.CurrentRepresentation

		d.metrics.RecordHistoryGap(now.Sub(lookup.Timestamp))
		logger.Debug("previous observation", "timestamp", lookup.Timestamp.String())
	} else {
		logger.Info("no prior observation")
		if historyReason == "" {
			historyReason = metrics.ReasonNoHistory
		}
	}
	if historyReason == "" && len(in.Labels) == 0 {
		historyReason = metrics.ReasonNoLabels
	}
	if historyReason != "" {
		d.metrics.RecordDegradation(historyReason)
	}

	in.Current = d.currentVector(last, hasSession, storedCurrent)

	res.Record = d.engine.Decide(in)
	d.metrics.RecordDecision(string(res.Record.Behavior), res.Record.Investigate, res.Record.Valid)

	start := time.Now()
	err = d.publisher.Publish(ctx, res.RunID, res.Record)
	d.metrics.RecordPublish(d.publisher.Name(), time.Since(start).Seconds())
	if err != nil {
		logger.Error("failed to publish decision", "sink", d.publisher.Name(), "error", err)
		d.metrics.RecordError("publish", d.publisher.Name())
		return res, err
	}

	logger.Info("decision published",
		"key", res.Record.Key,
		"behavior", res.Record.Behavior,
		"investigate", res.Record.Investigate,
		"valid", res.Record.Valid,
		"sink", d.publisher.Name(),
	)
	return res, nil
}

// currentVector picks the representation of the current observation: the
// last session's, when it has the configured dimension, else the stored
// current representation of the previous observation, else zeros.
func (d *Decider) currentVector(last capture.Session, ok bool, stored []float64) []float64 {
	if ok && len(last.Representation) == d.stateSize {
		return last.Representation
	}
	if len(stored) == d.stateSize {
		return stored
	}
	return make([]float64, d.stateSize)
}

func degradationReason(err error) string {
	var fe *history.FieldError
	if errors.As(err, &fe) {
		return metrics.ReasonFieldDecode
	}
	return metrics.ReasonStoreError
}
