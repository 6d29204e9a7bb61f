package config

import (
	"strings"
	"time"
)

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// NormalizeRetryBackoff converts arbitrary user input (case-insensitive) into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RetryBackoffFixed):
		return RetryBackoffFixed
	case string(RetryBackoffLinear):
		return RetryBackoffLinear
	case string(RetryBackoffExponential):
		return RetryBackoffExponential
	default:
		return ""
	}
}

// RetryConfig governs retries of transient git and object-storage failures.
type RetryConfig struct {
	Backoff    RetryBackoffMode `yaml:"backoff" validate:"oneof=fixed linear exponential"`
	Initial    string           `yaml:"initial" validate:"omitempty,duration"`
	Max        string           `yaml:"max" validate:"omitempty,duration"`
	MaxRetries int              `yaml:"max_retries" validate:"gte=0,lte=20"`
}

// InitialDuration is Initial parsed.
func (r RetryConfig) InitialDuration() time.Duration { return parseDuration(r.Initial) }

// MaxDuration is Max parsed.
func (r RetryConfig) MaxDuration() time.Duration { return parseDuration(r.Max) }

// RetryDefaultApplier handles Retry defaults.
type RetryDefaultApplier struct{}

func (r *RetryDefaultApplier) Domain() string { return "retry" }

func (r *RetryDefaultApplier) ApplyDefaults(cfg *Config) error {
	if mode := NormalizeRetryBackoff(string(cfg.Retry.Backoff)); mode != "" {
		cfg.Retry.Backoff = mode
	} else if cfg.Retry.Backoff == "" {
		cfg.Retry.Backoff = RetryBackoffLinear
	}
	if cfg.Retry.Initial == "" {
		cfg.Retry.Initial = "1s"
	}
	if cfg.Retry.Max == "" {
		cfg.Retry.Max = "30s"
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 2
	}
	return nil
}
