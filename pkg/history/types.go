// Package history reads the per-address observation history kept in the
// key-value store: the set of timestamps at which an address was observed,
// the state record persisted at each of them, and the endpoint metadata used
// to resolve a capture key to an address.
//
// Store layout:
//
//	<address>               hash, field "timestamps" = JSON list of numbers
//	<address>_<timestamp>   hash, one State Record (see StateRecord)
//	<key>                   hash, field "endpoint" = dict literal with "ip-address"
//
// Lookups never fail hard on missing or malformed data. Absence is reported
// through Lookup and Resolution so that callers apply their defaults.
package history

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Store field names.
const (
	FieldTimestamps            = "timestamps"
	FieldCurrentRepresentation = "current_representation"
	FieldRepresentation        = "representation"
	FieldLabels                = "labels"
	FieldConfidences           = "confidences"
	FieldOtherIPs              = "other_ips"
	FieldEndpoint              = "endpoint"
)

// DefaultSeparator joins an address and a timestamp into a state record key.
const DefaultSeparator = "_"

// Config holds the parameters shared by the index, loader and writer.
type Config struct {
	// StateSize is the dimension of every representation vector.
	StateSize int
	// Separator joins address and timestamp into a record key. Empty means DefaultSeparator.
	Separator string
}

func (c Config) separator() string {
	if c.Separator == "" {
		return DefaultSeparator
	}
	return c.Separator
}

// RecordKey returns the key of the state record for address at ts.
func (c Config) RecordKey(address string, ts Timestamp) string {
	return address + c.separator() + ts.String()
}

// Timestamp is an observation time in epoch seconds.
//
// It remembers the exact text it was decoded from, so a timestamp read from
// the store rebuilds the same record key the writer used ("100" and "100.0"
// name different records).
type Timestamp struct {
	Value float64
	text  string
}

// NewTimestamp returns a Timestamp for v with canonical text.
func NewTimestamp(v float64) Timestamp {
	return Timestamp{Value: v}
}

// ParseTimestamp parses a JSON number, keeping its text.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	res := gjson.Parse(s)
	if s == "" || res.Type != gjson.Number || res.Raw != s {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return timestampFromResult(res)
}

func timestampFromResult(res gjson.Result) (Timestamp, error) {
	if res.Type != gjson.Number {
		return Timestamp{}, fmt.Errorf("timestamp %s is not a number", res.Raw)
	}
	v, err := strconv.ParseFloat(res.Raw, 64)
	if err != nil {
		return Timestamp{}, fmt.Errorf("timestamp %s: %w", res.Raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Timestamp{}, fmt.Errorf("timestamp %s is not finite", res.Raw)
	}
	return Timestamp{Value: v, text: res.Raw}, nil
}

// String returns the text the timestamp was parsed from, or a canonical form.
func (t Timestamp) String() string {
	if t.text != "" {
		return t.text
	}
	return strconv.FormatFloat(t.Value, 'f', -1, 64)
}

// Before reports whether t is strictly earlier than u.
func (t Timestamp) Before(u Timestamp) bool {
	return t.Value < u.Value
}

// Sub returns t - u in seconds.
func (t Timestamp) Sub(u Timestamp) float64 {
	return t.Value - u.Value
}

// MarshalJSON emits the timestamp as a bare JSON number.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalJSON accepts a JSON number.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	ts, err := ParseTimestamp(string(b))
	if err != nil {
		return err
	}
	*t = ts
	return nil
}

// StateRecord is one persisted snapshot of an address.
//
// Labels and Confidences are parallel, ordered most-confident first, and are
// either both set with equal length or both nil.
type StateRecord struct {
	CurrentRepresentation []float64
	Representation        []float64
	Labels                []string
	Confidences           []float64
	OtherIPs              []string
}

// HasLabels reports whether the record carries a classification.
func (r StateRecord) HasLabels() bool {
	return len(r.Labels) > 0 && len(r.Labels) == len(r.Confidences)
}

// Lookup is the outcome of Index.LatestBefore.
type Lookup struct {
	Timestamp Timestamp
	Found     bool
	// Cause is set when the lookup degraded to absence because of a store
	// or decode failure rather than a plain miss.
	Cause error
}

// Resolution is the outcome of Resolver.Resolve.
type Resolution struct {
	Address  string
	Resolved bool
	// Cause explains why the key could not be resolved.
	Cause error
}

// FieldError reports a state record field that could not be decoded.
type FieldError struct {
	Key   string
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %q: %v", e.Key, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ErrFieldMissing is wrapped by FieldError when a field is absent.
var ErrFieldMissing = errors.New("field missing")
