package connection

import (
	"time"

	"github.com/cenkalti/backoff"
)

// Backoff defaults.
const (
	// InitialBackoff is the first retry delay.
	InitialBackoff = 500 * time.Millisecond

	// MaxBackoff caps the retry delay.
	MaxBackoff = 30 * time.Second

	// BackoffMultiplier is the factor by which the delay increases.
	BackoffMultiplier = 2.0

	// JitterFactor randomizes each delay by +/- this fraction.
	JitterFactor = 0.25
)

// BackoffConfig configures the retry delay policy of dialing and
// reconnection.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64

	// MaxElapsed stops retrying after this much time. Zero retries forever.
	MaxElapsed time.Duration
}

// DefaultBackoffConfig returns the default policy.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    InitialBackoff,
		Max:        MaxBackoff,
		Multiplier: BackoffMultiplier,
		Jitter:     JitterFactor,
	}
}

// NewBackOff builds an exponential backoff from cfg. Unset fields take the
// defaults; a negative Jitter disables randomization.
func NewBackOff(cfg BackoffConfig) backoff.BackOff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.Initial,
		RandomizationFactor: cfg.Jitter,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.Max,
		MaxElapsedTime:      cfg.MaxElapsed,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}
