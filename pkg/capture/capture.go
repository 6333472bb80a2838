// Package capture describes the inputs of one decider invocation: the
// capture file name, which carries the endpoint key and usually the source
// address, and the session summary handed over by the external sessionizer
// and model.
package capture

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/alexoch/PoseidonML/pkg/history"
)

// ErrMalformedName is returned for capture names without a key segment.
var ErrMalformedName = errors.New("capture name has no endpoint key")

// Name is the information encoded in a capture file name.
type Name struct {
	Key string
	// SourceIP is empty when the name does not carry an address.
	SourceIP string
}

// ParseName decodes a capture path such as
//
//	/pcaps/trace_ab12cd_2018-06-20_14_12_45-client-ip-10-0-0-1.pcap
//
// The base name is cut at its first dot and split on dashes. The key is the
// second underscore-separated token of the first part. When there are at
// least seven parts, the last four form the dotted source address.
func ParseName(path string) (Name, error) {
	base := filepath.Base(path)
	stem, _, _ := strings.Cut(base, ".")
	parts := strings.Split(stem, "-")

	tokens := strings.Split(parts[0], "_")
	if len(tokens) < 2 || tokens[1] == "" {
		return Name{}, fmt.Errorf("%w: %q", ErrMalformedName, base)
	}

	n := Name{Key: tokens[1]}
	if len(parts) >= 7 {
		n.SourceIP = strings.Join(parts[len(parts)-4:], ".")
	}
	return n, nil
}

// Session is one cleaned session of a capture.
type Session struct {
	// SourceIP is the address the cleaner inferred for the session, if any.
	SourceIP string
	// Representation is the model's representation vector, nil if absent.
	Representation []float64
}

// Summary is the session summary of one capture.
type Summary struct {
	// Capture is the capture file name, when the summary carries it.
	Capture   string
	Timestamp history.Timestamp
	Sessions  []Session
}

// Last returns the last session of the capture.
func (s Summary) Last() (Session, bool) {
	if len(s.Sessions) == 0 {
		return Session{}, false
	}
	return s.Sessions[len(s.Sessions)-1], true
}

// ParseSummary decodes a summary document:
//
//	{"capture": "...", "timestamp": 1529503965.2,
//	 "sessions": [{"source_ip": "10.0.0.1", "representation": [0.1, 0.9]}]}
//
// Only "timestamp" is required.
func ParseSummary(data []byte) (Summary, error) {
	if !gjson.ValidBytes(data) {
		return Summary{}, errors.New("summary is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return Summary{}, errors.New("summary is not an object")
	}

	tsField := doc.Get("timestamp")
	if !tsField.Exists() {
		return Summary{}, errors.New(`summary has no "timestamp"`)
	}
	ts, err := history.ParseTimestamp(tsField.Raw)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}

	s := Summary{
		Capture:   doc.Get("capture").String(),
		Timestamp: ts,
	}

	sessions := doc.Get("sessions")
	if sessions.Exists() && !sessions.IsArray() {
		return Summary{}, errors.New(`summary "sessions" is not a list`)
	}

	for i, raw := range sessions.Array() {
		sess, err := parseSession(raw)
		if err != nil {
			return Summary{}, fmt.Errorf("session %d: %w", i, err)
		}
		s.Sessions = append(s.Sessions, sess)
	}

	return s, nil
}

func parseSession(raw gjson.Result) (Session, error) {
	if !raw.IsObject() {
		return Session{}, errors.New("not an object")
	}

	sess := Session{SourceIP: raw.Get("source_ip").String()}

	rep := raw.Get("representation")
	if !rep.Exists() || rep.Type == gjson.Null {
		return sess, nil
	}
	if !rep.IsArray() {
		return Session{}, errors.New(`"representation" is not a list`)
	}

	elems := rep.Array()
	sess.Representation = make([]float64, 0, len(elems))
	for i, e := range elems {
		if e.Type != gjson.Number {
			return Session{}, fmt.Errorf("representation element %d is not a number", i)
		}
		sess.Representation = append(sess.Representation, e.Float())
	}
	return sess, nil
}
