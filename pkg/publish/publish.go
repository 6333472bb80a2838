// Package publish delivers Decision Records to their destination: a topic
// exchange on the message bus, or a local writer when the bus is disabled.
// The destination never changes the encoded record.
package publish

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alexoch/PoseidonML/pkg/decision"
)

// ErrPublish wraps every delivery failure.
var ErrPublish = errors.New("publish failed")

// Publisher delivers one record. id identifies the message for tracing.
type Publisher interface {
	Publish(ctx context.Context, id string, rec decision.Record) error
	Name() string
}

// Encode returns the canonical wire form of rec.
func Encode(rec decision.Record) ([]byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode decision: %w", err)
	}
	return body, nil
}

// Config selects and configures a Publisher.
type Config struct {
	// SkipBus writes records to Out instead of the bus.
	SkipBus    bool
	Out        io.Writer
	URL        string
	Exchange   string
	RoutingKey string
	Timeout    time.Duration
	TLS        *tls.Config
}

// New returns the Publisher described by cfg.
func New(cfg Config, logger *slog.Logger) Publisher {
	if cfg.SkipBus {
		return NewWriterPublisher(cfg.Out, logger)
	}
	return NewAMQPPublisher(cfg.URL, cfg.Exchange, cfg.RoutingKey, cfg.Timeout, cfg.TLS, logger)
}

// WriterPublisher writes one encoded record per line.
// It is safe for concurrent use.
type WriterPublisher struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

// NewWriterPublisher creates a WriterPublisher on w.
func NewWriterPublisher(w io.Writer, logger *slog.Logger) *WriterPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if w == nil {
		w = io.Discard
	}
	return &WriterPublisher{w: w, logger: logger}
}

func (p *WriterPublisher) Name() string { return "writer" }

// Publish writes rec followed by a newline.
func (p *WriterPublisher) Publish(ctx context.Context, id string, rec decision.Record) error {
	body, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.w.Write(append(body, '\n')); err != nil {
		return fmt.Errorf("%w: write: %w", ErrPublish, err)
	}

	p.logger.Debug("bus disabled, wrote decision locally", "message_id", id, "bytes", len(body))
	return nil
}
