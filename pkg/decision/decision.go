// Package decision turns an endpoint's current observation and its latest
// prior observation into a Decision Record.
//
// The engine is a pure function of its inputs: no I/O, no clock, no state.
// Every degraded input (no history, no labels, unresolved key) has a
// default and marks the record invalid instead of failing.
package decision

import (
	"encoding/json"
	"time"

	"github.com/alexoch/PoseidonML/pkg/history"
)

// Behavior is the similarity verdict of a decision.
type Behavior string

const (
	Normal   Behavior = "normal"
	Abnormal Behavior = "abnormal"
)

// UnknownLabel is the label of an endpoint that was never classified.
const UnknownLabel = "Unknown"

// TopK is the number of classification pairs a record carries.
const TopK = 3

// Config holds the decision thresholds.
type Config struct {
	// LookTime is the longest gap since the previous observation that does
	// not trigger an investigation.
	LookTime time.Duration
	// Threshold is the dot-product cutoff below which behavior is abnormal.
	Threshold float64
}

// Input is everything one decision needs.
type Input struct {
	// Key is the resolved endpoint key. Empty when resolution failed.
	Key     string
	Address string

	Current []float64
	// Mean is the running-average representation of the previous observation.
	Mean []float64

	Previous    history.Timestamp
	HasPrevious bool
	Now         history.Timestamp

	// Labels and Confidences come from the previous observation, nil when
	// it carried none.
	Labels      []string
	Confidences []float64
}

// Record is a Decision Record.
type Record struct {
	Key         string
	Behavior    Behavior
	Investigate bool
	Labels      []string
	Confidences []float64
	Timestamp   history.Timestamp
	Valid       bool
}

type recordBody struct {
	Decisions      decisionsBody      `json:"decisions"`
	Classification classificationBody `json:"classification"`
	Timestamp      history.Timestamp  `json:"timestamp"`
	Valid          bool               `json:"valid"`
}

type decisionsBody struct {
	Behavior    Behavior `json:"behavior"`
	Investigate bool     `json:"investigate"`
}

type classificationBody struct {
	Labels      []string  `json:"labels"`
	Confidences []float64 `json:"confidences"`
}

// MarshalJSON encodes the record keyed by its endpoint key:
//
//	{"<key>": {"decisions": {"behavior": ..., "investigate": ...},
//	           "classification": {"labels": [...], "confidences": [...]},
//	           "timestamp": ..., "valid": ...}}
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]recordBody{
		r.Key: {
			Decisions: decisionsBody{
				Behavior:    r.Behavior,
				Investigate: r.Investigate,
			},
			Classification: classificationBody{
				Labels:      nonNil(r.Labels),
				Confidences: nonNil(r.Confidences),
			},
			Timestamp: r.Timestamp,
			Valid:     r.Valid,
		},
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Engine applies a Config to decision inputs.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the given thresholds.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine's thresholds.
func (e *Engine) Config() Config {
	return e.cfg
}

// Decide builds the Decision Record for in.
func (e *Engine) Decide(in Input) Record {
	valid := true

	labels, confs := in.Labels, in.Confidences
	if len(labels) == 0 || len(labels) != len(confs) {
		labels = []string{UnknownLabel, UnknownLabel, UnknownLabel}
		confs = []float64{1, 0, 0}
		valid = false
	}

	key := in.Key
	if key == "" {
		key = in.Address
		valid = false
	}

	investigate := !in.HasPrevious ||
		in.Now.Sub(in.Previous) > e.cfg.LookTime.Seconds() ||
		labels[0] == UnknownLabel

	behavior := Normal
	if Dot(in.Current, in.Mean) < e.cfg.Threshold {
		behavior = Abnormal
	}

	n := min(TopK, len(labels))
	return Record{
		Key:         key,
		Behavior:    behavior,
		Investigate: investigate,
		Labels:      append([]string(nil), labels[:n]...),
		Confidences: append([]float64(nil), confs[:n]...),
		Timestamp:   in.Now,
		Valid:       valid,
	}
}

// Dot returns the dot product of a and b over their common length.
func Dot(a, b []float64) float64 {
	var sum float64
	for i := 0; i < min(len(a), len(b)); i++ {
		sum += a[i] * b[i]
	}
	return sum
}
