package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/tidwall/gjson"
)

// Config file keys.
const (
	keyStateSize = "state size"
	keyDuration  = "duration"
	keyLookTime  = "look time"
	keyThreshold = "threshold"
)

// FileConfig holds the decision parameters read from a config file.
// Nil fields were absent.
type FileConfig struct {
	StateSize *int
	Duration  *time.Duration
	LookTime  *time.Duration
	Threshold *float64
}

// LoadFile reads the JSON config file at path.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	fc, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return fc, nil
}

// ParseFile decodes a config file document. Unknown keys are ignored.
func ParseFile(data []byte) (*FileConfig, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("not an object")
	}

	fc := &FileConfig{}

	if v := doc.Get(keyStateSize); v.Exists() {
		if v.Type != gjson.Number || v.Float() != math.Trunc(v.Float()) {
			return nil, fmt.Errorf("%q must be an integer", keyStateSize)
		}
		n := int(v.Int())
		fc.StateSize = &n
	}

	for key, dst := range map[string]**time.Duration{
		keyDuration: &fc.Duration,
		keyLookTime: &fc.LookTime,
	} {
		v := doc.Get(key)
		if !v.Exists() {
			continue
		}
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", key, err)
		}
		*dst = &d
	}

	if v := doc.Get(keyThreshold); v.Exists() {
		if v.Type != gjson.Number {
			return nil, fmt.Errorf("%q must be a number", keyThreshold)
		}
		f := v.Float()
		fc.Threshold = &f
	}

	return fc, nil
}

// parseSeconds accepts a number of seconds or a duration string.
func parseSeconds(v gjson.Result) (time.Duration, error) {
	switch v.Type {
	case gjson.Number:
		return time.Duration(v.Float() * float64(time.Second)), nil
	case gjson.String:
		return time.ParseDuration(v.Str)
	default:
		return 0, fmt.Errorf("must be seconds or a duration string")
	}
}

// apply copies file values into cfg for every setting that was not given
// explicitly as a flag or environment variable.
func (fc *FileConfig) apply(cfg *Config, explicit func(flagName, envName string) bool) {
	if fc.StateSize != nil && !explicit("state-size", "STATE_SIZE") {
		cfg.StateSize = *fc.StateSize
	}
	if fc.Duration != nil && !explicit("duration", "DURATION") {
		cfg.Duration = *fc.Duration
	}
	if fc.LookTime != nil && !explicit("look-time", "LOOK_TIME") {
		cfg.LookTime = *fc.LookTime
	}
	if fc.Threshold != nil && !explicit("threshold", "THRESHOLD") {
		cfg.Threshold = *fc.Threshold
	}
}
