package am

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teranos/rota/errors"
)

// CronParser parses the five-field expressions accepted in config and definitions.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Pulse workers: 0 = enqueue-only process, negative = invalid
	if c.Pulse.Workers < 0 {
		return errors.Newf("pulse.workers must be >= 0, got %d", c.Pulse.Workers)
	}
	if c.Pulse.PollIntervalMS <= 0 {
		return errors.Newf("pulse.poll_interval_ms must be > 0, got %d", c.Pulse.PollIntervalMS)
	}
	if c.Pulse.MaxRunMinutes <= 0 {
		return errors.Newf("pulse.max_run_minutes must be > 0, got %d", c.Pulse.MaxRunMinutes)
	}
	if c.Pulse.MaintenanceIntervalSeconds <= 0 {
		return errors.Newf("pulse.maintenance_interval_seconds must be > 0, got %d", c.Pulse.MaintenanceIntervalSeconds)
	}

	// The solver has to finish inside the lease or every run times out
	if c.Solver.TimeBudget() >= c.Pulse.MaxRunDuration() {
		return errors.Newf("solver.time_budget_seconds (%s) must be shorter than pulse.max_run_minutes (%s)",
			c.Solver.TimeBudget(), c.Pulse.MaxRunDuration())
	}
	if c.Solver.NodeLimit < 0 {
		return errors.Newf("solver.node_limit must be >= 0, got %d", c.Solver.NodeLimit)
	}
	if c.Solver.MinRestHours < 0 || c.Solver.MinRestHours > 24 {
		return errors.Newf("solver.min_rest_hours must be within 0..24, got %d", c.Solver.MinRestHours)
	}
	if c.Solver.MaxConsecutiveDays < 0 {
		return errors.Newf("solver.max_consecutive_days must be >= 0, got %d", c.Solver.MaxConsecutiveDays)
	}
	if c.Solver.PreferenceWeight < 0 || c.Solver.FairnessWeight < 0 {
		return errors.New("solver weights must be >= 0")
	}

	if c.Source.Retry.MaxAttempts < 1 {
		return errors.Newf("source.retry.max_attempts must be >= 1, got %d", c.Source.Retry.MaxAttempts)
	}
	if c.Source.Retry.InitialBackoffMS < 0 || c.Source.Retry.MaxBackoffMS < c.Source.Retry.InitialBackoffMS {
		return errors.Newf("source.retry backoff range invalid: initial %dms, max %dms",
			c.Source.Retry.InitialBackoffMS, c.Source.Retry.MaxBackoffMS)
	}
	if c.Source.Retry.Multiplier < 1 {
		return errors.Newf("source.retry.multiplier must be >= 1, got %f", c.Source.Retry.Multiplier)
	}
	if c.Source.FetchTimeoutSeconds <= 0 || c.Source.PublishTimeoutSeconds <= 0 {
		return errors.New("source fetch and publish timeouts must be > 0")
	}
	if c.Source.RequestsPerSecond <= 0 {
		return errors.Newf("source.requests_per_second must be > 0, got %f", c.Source.RequestsPerSecond)
	}

	if c.Trigger.CheckIntervalSeconds <= 0 {
		return errors.Newf("trigger.check_interval_seconds must be > 0, got %d", c.Trigger.CheckIntervalSeconds)
	}
	if c.Trigger.DefaultCron != "" {
		if _, err := CronParser.Parse(c.Trigger.DefaultCron); err != nil {
			return errors.Wrapf(err, "trigger.default_cron %q", c.Trigger.DefaultCron)
		}
	}
	if c.Trigger.Timezone != "" {
		if _, err := time.LoadLocation(c.Trigger.Timezone); err != nil {
			return errors.Wrapf(err, "trigger.timezone %q", c.Trigger.Timezone)
		}
	}

	if (c.Archive.AccessKeyID != "") != (c.Archive.SecretAccessKey != "") {
		return errors.New("archive.access_key_id and archive.secret_access_key must be set together")
	}

	return nil
}
