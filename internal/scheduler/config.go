package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/opsledger/internal/config"
)

const (
	JobOverdueSweep = "overdue_sweep"
	JobEventRelay   = "event_relay"
)

// Config controls the scheduler tick and which jobs this process runs.
// Job intervals come from the hot-reloaded policy.
type Config struct {
	TickInterval time.Duration
	JobTimeout   time.Duration
	LockTTL      time.Duration
	EnabledJobs  []string
}

func DefaultConfig() Config {
	return Config{
		TickInterval: time.Second,
		JobTimeout:   30 * time.Second,
		LockTTL:      time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	for _, job := range strings.Split(cfg.SchedulerJobs, ",") {
		if job = strings.TrimSpace(job); job != "" {
			c.EnabledJobs = append(c.EnabledJobs, job)
		}
	}
	return c
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = defaults.TickInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
