// Package config provides configuration parsing and validation for the decider.
//
// Every setting is a command-line flag with an environment variable fallback.
// The decision parameters may also come from a JSON config file (-config or
// CONFIG_FILE) using the keys of the model pipeline's config.json:
//
//	{"state size": 32, "duration": 300, "look time": 86400, "threshold": 0.5}
//
// "duration" and "look time" are seconds, or Go duration strings.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Config file
//  4. Default values
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alexoch/PoseidonML/pkg/decision"
	"github.com/alexoch/PoseidonML/pkg/history"
	"github.com/alexoch/PoseidonML/pkg/publish"
	"github.com/alexoch/PoseidonML/pkg/tls"
)

// Subcommands.
const (
	CommandRun   = "run"
	CommandServe = "serve"
	CommandSeed  = "seed"
)

// Config holds all decider configuration.
type Config struct {
	Command string

	ConfigFile string
	LogFormat  string
	LogLevel   string

	StateSize int
	Duration  time.Duration
	LookTime  time.Duration
	Threshold float64

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StoreTimeout  time.Duration

	SkipRabbit bool
	AMQPURL    string
	Exchange   string
	RoutingKey string

	PushgatewayURL string
	Listen         string
	TLS            tls.Config

	// run
	Capture     string
	SummaryFile string

	// seed
	Address    string
	Timestamp  string
	RecordFile string
}

// History returns the store layout parameters.
func (c *Config) History() history.Config {
	return history.Config{StateSize: c.StateSize}
}

// Decision returns the engine thresholds.
func (c *Config) Decision() decision.Config {
	return decision.Config{LookTime: c.LookTime, Threshold: c.Threshold}
}

// Parse parses the flags of command from args. Environment variables are
// read through getenv; a set variable that does not parse is an error.
func Parse(command string, args []string, getenv func(string) string, stderr io.Writer) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := &envReader{get: getenv}

	cfg := &Config{Command: command}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.ConfigFile, "config", env.str("CONFIG_FILE", ""), "JSON config file with state size, duration, look time and threshold")
	fs.StringVar(&cfg.LogFormat, "log-format", env.str("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", env.str("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fs.IntVar(&cfg.StateSize, "state-size", env.integer("STATE_SIZE", 0), "Dimension of representation vectors")
	fs.DurationVar(&cfg.Duration, "duration", env.duration("DURATION", 5*time.Minute), "Session window length")
	fs.DurationVar(&cfg.LookTime, "look-time", env.duration("LOOK_TIME", 24*time.Hour), "Gap since the previous observation that triggers investigation")
	fs.Float64Var(&cfg.Threshold, "threshold", env.float("THRESHOLD", 0.5), "Dot product below which behavior is abnormal")

	fs.StringVar(&cfg.RedisAddr, "redis-addr", env.str("REDIS_ADDR", "redis:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", env.str("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", env.integer("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.StoreTimeout, "store-timeout", env.duration("STORE_TIMEOUT", 3*time.Second), "Per-call store timeout")

	fs.BoolVar(&cfg.SkipRabbit, "skip-rabbit", env.boolean("SKIP_RABBIT", false), "Write decisions to stdout instead of the message bus")
	fs.StringVar(&cfg.AMQPURL, "amqp-url", env.str("AMQP_URL", publish.DefaultURL), "RabbitMQ URL")
	fs.StringVar(&cfg.Exchange, "exchange", env.str("EXCHANGE", publish.DefaultExchange), "Topic exchange for decisions")
	fs.StringVar(&cfg.RoutingKey, "routing-key", env.str("ROUTING_KEY", publish.DefaultRoutingKey), "Routing key for decisions")

	fs.StringVar(&cfg.PushgatewayURL, "pushgateway-url", env.str("PUSHGATEWAY_URL", ""), "Prometheus Pushgateway URL (run only)")
	fs.StringVar(&cfg.Listen, "listen", env.str("LISTEN", ":8080"), "HTTP listen address (serve only)")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", env.boolean("TLS_ENABLED", false), "Enable mutual TLS for the HTTP server and the store and bus clients")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", env.str("TLS_CERT_FILE", ""), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", env.str("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", env.str("TLS_CA_FILE", ""), "TLS CA certificate file")

	switch command {
	case CommandRun:
		fs.StringVar(&cfg.SummaryFile, "summary", env.str("SUMMARY_FILE", ""), "Session summary JSON file (- for stdin)")
	case CommandSeed:
		fs.StringVar(&cfg.Address, "address", "", "Address the state record belongs to")
		fs.StringVar(&cfg.Timestamp, "timestamp", "", "Observation timestamp, as it will appear in the key")
		fs.StringVar(&cfg.RecordFile, "record", "", "State record JSON file")
	case CommandServe:
	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := errors.Join(env.errs...); err != nil {
		return nil, err
	}

	if command == CommandRun && fs.NArg() > 0 {
		cfg.Capture = fs.Arg(0)
	}

	if cfg.ConfigFile != "" {
		fc, err := LoadFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		explicit := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		fc.apply(cfg, func(flagName, envName string) bool {
			return explicit[flagName] || getenv(envName) != ""
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration of the selected command.
func (c *Config) Validate() error {
	var errs []error

	if c.StateSize <= 0 {
		errs = append(errs, fmt.Errorf("state size must be > 0, got %d", c.StateSize))
	}
	if c.Duration < 0 {
		errs = append(errs, fmt.Errorf("duration cannot be negative, got %v", c.Duration))
	}
	if c.LookTime < 0 {
		errs = append(errs, fmt.Errorf("look time cannot be negative, got %v", c.LookTime))
	}
	if c.RedisAddr == "" {
		errs = append(errs, errors.New("redis address cannot be empty"))
	}
	if c.RedisDB < 0 {
		errs = append(errs, errors.New("redis database number must be >= 0"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("store timeout must be > 0, got %v", c.StoreTimeout))
	}
	if !c.SkipRabbit && !strings.HasPrefix(c.AMQPURL, "amqp://") && !strings.HasPrefix(c.AMQPURL, "amqps://") {
		errs = append(errs, fmt.Errorf("amqp url %q must use amqp:// or amqps://", c.AMQPURL))
	}
	if err := c.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Command {
	case CommandRun:
		if c.Capture == "" {
			errs = append(errs, errors.New("run requires a capture file name argument"))
		}
		if c.SummaryFile == "" {
			errs = append(errs, errors.New("run requires -summary"))
		}
	case CommandSeed:
		if c.Address == "" {
			errs = append(errs, errors.New("seed requires -address"))
		}
		if _, err := history.ParseTimestamp(c.Timestamp); err != nil {
			errs = append(errs, fmt.Errorf("seed -timestamp: %w", err))
		}
		if c.RecordFile == "" {
			errs = append(errs, errors.New("seed requires -record"))
		}
	}

	return errors.Join(errs...)
}

// envReader reads typed environment variables. A set but unparseable
// variable is recorded in errs and yields the default.
type envReader struct {
	get  func(string) string
	errs []error
}

func (e *envReader) invalid(key, value, want string) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s %q: want %s", key, value, want))
}

func (e *envReader) str(key, defaultValue string) string {
	if value := e.get(key); value != "" {
		return value
	}
	return defaultValue
}

func (e *envReader) integer(key string, defaultValue int) int {
	value := e.get(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		e.invalid(key, value, "an integer")
		return defaultValue
	}
	return i
}

func (e *envReader) float(key string, defaultValue float64) float64 {
	value := e.get(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		e.invalid(key, value, "a number")
		return defaultValue
	}
	return f
}

// duration accepts a Go duration string or a bare number of seconds, the
// same forms the config file takes.
func (e *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := e.get(key)
	if value == "" {
		return defaultValue
	}
	value = strings.TrimSpace(value)
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.invalid(key, value, "seconds or a duration string")
		return defaultValue
	}
	return d
}

// boolean accepts true, t, y and 1 (case-insensitive) as true.
func (e *envReader) boolean(key string, defaultValue bool) bool {
	if value := e.get(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "t", "y", "yes", "1":
			return true
		default:
			return false
		}
	}
	return defaultValue
}
