package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/tonkeeper/analytics/internal/buffer"
)

// DropPolicy chooses which events a bounded buffer discards when full.
type DropPolicy string

const (
	DropNewest DropPolicy = "newest"
	DropOldest DropPolicy = "oldest"
)

const (
	DefaultBatchSize       = 10
	DefaultFlushInterval   = 5 * time.Second
	DefaultDeliveryTimeout = 10 * time.Second
	DefaultRetryBackoff    = 200 * time.Millisecond
)

// Config is fixed at construction. Zero values fall back to the defaults.
type Config struct {
	APIURL string `env:"ANALYTICS_API_URL"`
	APIKey string `env:"ANALYTICS_API_KEY"`

	BatchSize       int           `env:"ANALYTICS_BATCH_SIZE" envDefault:"10"`
	FlushInterval   time.Duration `env:"ANALYTICS_FLUSH_INTERVAL" envDefault:"5s"`
	DeliveryTimeout time.Duration `env:"ANALYTICS_DELIVERY_TIMEOUT" envDefault:"10s"`

	// MaxBufferSize of 0 keeps the buffer unbounded. Otherwise it must be at
	// least BatchSize so the size trigger fires before the buffer is full.
	MaxBufferSize int        `env:"ANALYTICS_MAX_BUFFER_SIZE" envDefault:"0"`
	DropPolicy    DropPolicy `env:"ANALYTICS_DROP_POLICY" envDefault:"newest"`

	// Extra tries inside a single HTTP delivery attempt.
	MaxRetries   uint64        `env:"ANALYTICS_MAX_RETRIES" envDefault:"0"`
	RetryBackoff time.Duration `env:"ANALYTICS_RETRY_BACKOFF" envDefault:"200ms"`

	NTPEnabled bool     `env:"ANALYTICS_NTP_ENABLED" envDefault:"false"`
	NTPServers []string `env:"ANALYTICS_NTP_SERVERS" envSeparator:","`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

// ConfigFromEnv reads ANALYTICS_* variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config parsing failed: %w", err)
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.DeliveryTimeout == 0 {
		c.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.DropPolicy == "" {
		c.DropPolicy = DropNewest
	}
	c.DropPolicy = DropPolicy(strings.ToLower(string(c.DropPolicy)))
	return c
}

// validate checks c after defaults were applied. The endpoint credentials
// are only required when the client builds its own HTTP channel.
func (c Config) validate(needEndpoint bool) error {
	if needEndpoint {
		if strings.TrimSpace(c.APIURL) == "" {
			return &ConfigurationError{Field: "APIURL", Reason: "is required"}
		}
		if strings.TrimSpace(c.APIKey) == "" {
			return &ConfigurationError{Field: "APIKey", Reason: "is required"}
		}
	}
	if c.BatchSize < 1 {
		return &ConfigurationError{Field: "BatchSize", Reason: "must be at least 1"}
	}
	if c.FlushInterval < 0 {
		return &ConfigurationError{Field: "FlushInterval", Reason: "must be positive"}
	}
	if c.DeliveryTimeout < 0 {
		return &ConfigurationError{Field: "DeliveryTimeout", Reason: "must be positive"}
	}
	if c.RetryBackoff < 0 {
		return &ConfigurationError{Field: "RetryBackoff", Reason: "must be positive"}
	}
	if c.MaxBufferSize < 0 {
		return &ConfigurationError{Field: "MaxBufferSize", Reason: "must not be negative"}
	}
	if c.MaxBufferSize > 0 && c.MaxBufferSize < c.BatchSize {
		return &ConfigurationError{Field: "MaxBufferSize", Reason: fmt.Sprintf("must be 0 or at least BatchSize (%d)", c.BatchSize)}
	}
	switch c.DropPolicy {
	case DropNewest, DropOldest:
	default:
		return &ConfigurationError{Field: "DropPolicy", Reason: fmt.Sprintf("unknown policy %q", c.DropPolicy)}
	}
	return nil
}

func (p DropPolicy) bufferPolicy() buffer.Policy {
	if p == DropOldest {
		return buffer.DropOldest
	}
	return buffer.DropNewest
}
