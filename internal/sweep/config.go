package sweep

import (
	"errors"
	"time"
)

var ErrInvalidConfig = errors.New("invalid_sweep_config")

// Config controls the expiry sweep cadence and batch sizing.
type Config struct {
	// RunInterval is the pause between sweep ticks.
	RunInterval time.Duration
	// BatchSize bounds how many lapsed subscriptions one pass claims.
	BatchSize int
	// LockTTL bounds how long a distributed sweep lock is held.
	LockTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = 24 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Minute
	}
	return c
}
