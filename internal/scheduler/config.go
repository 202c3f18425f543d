package scheduler

import (
	"time"

	"github.com/smallbiznis/lms/internal/config"
)

// Config controls job schedules and per-run timeouts.
type Config struct {
	ReconciliationSweep string
	RevokedTokenPurge   string
	RunTimeout          time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReconciliationSweep: "*/15 * * * *",
		RevokedTokenPurge:   "0 * * * *",
		RunTimeout:          2 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{ReconciliationSweep: cfg.Reconciliation.SweepSchedule}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.ReconciliationSweep == "" {
		c.ReconciliationSweep = defaults.ReconciliationSweep
	}
	if c.RevokedTokenPurge == "" {
		c.RevokedTokenPurge = defaults.RevokedTokenPurge
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	return c
}
