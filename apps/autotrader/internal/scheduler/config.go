package scheduler

import (
	"time"
)

const (
	DefaultTickInterval   = 60 * time.Second
	DefaultBatchSize      = 100
	DefaultWorkers        = 8
	DefaultDrainTimeout   = 30 * time.Second
	DefaultStaleThreshold = 5 * time.Minute
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = 5 * time.Second
	DefaultRetryMaxDelay  = 2 * time.Minute
	DefaultMaxStaleness   = 2 * time.Minute
)

type Config struct {
	TickInterval   time.Duration
	BatchSize      int
	Workers        int
	DrainTimeout   time.Duration
	StaleThreshold time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// MaxStaleness is the oldest observation the evaluator may act on. Zero disables the check.
	MaxStaleness time.Duration
}

func DefaultConfig() Config {
	return Config{
		TickInterval:   DefaultTickInterval,
		BatchSize:      DefaultBatchSize,
		Workers:        DefaultWorkers,
		DrainTimeout:   DefaultDrainTimeout,
		StaleThreshold: DefaultStaleThreshold,
		MaxAttempts:    DefaultMaxAttempts,
		RetryBaseDelay: DefaultRetryBaseDelay,
		RetryMaxDelay:  DefaultRetryMaxDelay,
		MaxStaleness:   DefaultMaxStaleness,
	}
}

// withDefaults fills zero fields so a partially populated Config is usable.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = d.StaleThreshold
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	return c
}

// Backoff returns the delay before the given retry attempt (1-based): the base
// delay doubled per previous attempt, capped at RetryMaxDelay.
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := c.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= c.RetryMaxDelay {
			return c.RetryMaxDelay
		}
	}
	if backoff > c.RetryMaxDelay {
		return c.RetryMaxDelay
	}
	return backoff
}
