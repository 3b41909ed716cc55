package scheduler

import (
	"strings"
	"time"

	"github.com/digiurban/billing/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval    time.Duration
	JobTimeout     time.Duration
	EventBatchSize int
	EnabledJobs    []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Minute,
		JobTimeout:     30 * time.Second,
		EventBatchSize: 100,
	}
}

// ProvideConfig reads the scheduler settings out of the application config.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:    cfg.SchedulerInterval,
		JobTimeout:     cfg.SchedulerJobTimeout,
		EventBatchSize: cfg.SchedulerEventBatch,
		EnabledJobs:    cfg.SchedulerJobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.EventBatchSize <= 0 {
		c.EventBatchSize = defaults.EventBatchSize
	}
	return c
}

func (c Config) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(c.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range c.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

func (c Config) enabledJobs() []string {
	var jobs []string
	for _, name := range []string{JobGenerateInvoices, JobReconcileOverdue, JobPublishEvents} {
		if c.isJobEnabled(name) {
			jobs = append(jobs, name)
		}
	}
	return jobs
}
