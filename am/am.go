// Package am loads rota's configuration ("am" as in "as configured").
//
// Values come from defaults, then ~/.rota/am.toml, then the nearest am.toml
// walking up from the working directory, then ROTA_* environment variables.
package am

import "time"

// Config represents the complete rota configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database"`
	Log      LogConfig      `mapstructure:"log" toml:"log"`
	Pulse    PulseConfig    `mapstructure:"pulse" toml:"pulse"`
	Solver   SolverConfig   `mapstructure:"solver" toml:"solver"`
	Source   SourceConfig   `mapstructure:"source" toml:"source"`
	Trigger  TriggerConfig  `mapstructure:"trigger" toml:"trigger"`
	Archive  ArchiveConfig  `mapstructure:"archive" toml:"archive"`
}

// DatabaseConfig configures the shared SQLite store
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// LogConfig configures the global logger
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json"`
}

// PulseConfig configures the worker pool and job lifecycle
type PulseConfig struct {
	Workers                    int `mapstructure:"workers" toml:"workers"`                                           // concurrent job workers; 0 = enqueue only
	PollIntervalMS             int `mapstructure:"poll_interval_ms" toml:"poll_interval_ms"`                         // queue poll period
	MaxRunMinutes              int `mapstructure:"max_run_minutes" toml:"max_run_minutes"`                           // lease TTL and per-job deadline
	MaintenanceIntervalSeconds int `mapstructure:"maintenance_interval_seconds" toml:"maintenance_interval_seconds"` // lease reaper period
	SyncLogRetentionDays       int `mapstructure:"sync_log_retention_days" toml:"sync_log_retention_days"`
}

// SolverConfig configures the optimizer and the rules it enforces
type SolverConfig struct {
	TimeBudgetSeconds  int   `mapstructure:"time_budget_seconds" toml:"time_budget_seconds"`
	NodeLimit          int   `mapstructure:"node_limit" toml:"node_limit"`
	Seed               int64 `mapstructure:"seed" toml:"seed"`
	MinRestHours       int   `mapstructure:"min_rest_hours" toml:"min_rest_hours"`
	MaxConsecutiveDays int   `mapstructure:"max_consecutive_days" toml:"max_consecutive_days"`
	PreferenceWeight   int   `mapstructure:"preference_weight" toml:"preference_weight"`
	FairnessWeight     int   `mapstructure:"fairness_weight" toml:"fairness_weight"`
}

// SourceConfig configures the spreadsheet adapter
type SourceConfig struct {
	CredentialsFile       string      `mapstructure:"credentials_file" toml:"credentials_file"` // Google service account JSON
	FetchTimeoutSeconds   int         `mapstructure:"fetch_timeout_seconds" toml:"fetch_timeout_seconds"`
	PublishTimeoutSeconds int         `mapstructure:"publish_timeout_seconds" toml:"publish_timeout_seconds"`
	SnapshotMaxAgeMinutes int         `mapstructure:"snapshot_max_age_minutes" toml:"snapshot_max_age_minutes"`
	RequestsPerSecond     float64     `mapstructure:"requests_per_second" toml:"requests_per_second"`
	RequestBurst          int         `mapstructure:"request_burst" toml:"request_burst"`
	Retry                 RetryConfig `mapstructure:"retry" toml:"retry"`
}

// RetryConfig bounds retries of transient source failures
type RetryConfig struct {
	MaxAttempts      int     `mapstructure:"max_attempts" toml:"max_attempts"`
	InitialBackoffMS int     `mapstructure:"initial_backoff_ms" toml:"initial_backoff_ms"`
	MaxBackoffMS     int     `mapstructure:"max_backoff_ms" toml:"max_backoff_ms"`
	Multiplier       float64 `mapstructure:"multiplier" toml:"multiplier"`
}

// TriggerConfig configures periodic runs and auto-regeneration
type TriggerConfig struct {
	CheckIntervalSeconds   int    `mapstructure:"check_interval_seconds" toml:"check_interval_seconds"`
	MinSyncIntervalMinutes int    `mapstructure:"min_sync_interval_minutes" toml:"min_sync_interval_minutes"`
	DefaultCron            string `mapstructure:"default_cron" toml:"default_cron"` // empty disables periodic runs
	ReloadIntervalSeconds  int    `mapstructure:"reload_interval_seconds" toml:"reload_interval_seconds"`
	Timezone               string `mapstructure:"timezone" toml:"timezone"`
	WatchFiles             bool   `mapstructure:"watch_files" toml:"watch_files"`
}

// ArchiveConfig configures the optional S3 result archive
type ArchiveConfig struct {
	Bucket         string `mapstructure:"bucket" toml:"bucket"` // empty disables archiving
	Prefix         string `mapstructure:"prefix" toml:"prefix"`
	Region         string `mapstructure:"region" toml:"region"`
	Endpoint       string `mapstructure:"endpoint" toml:"endpoint"`
	Profile        string `mapstructure:"profile" toml:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style" toml:"force_path_style"`

	// Static credentials; both empty uses the AWS default chain.
	AccessKeyID     string `mapstructure:"access_key_id" toml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" toml:"-" json:"-" yaml:"-"`
}

// MaxRunDuration is the lease TTL and the hard deadline of one job.
func (p PulseConfig) MaxRunDuration() time.Duration {
	return time.Duration(p.MaxRunMinutes) * time.Minute
}

// PollInterval is how often idle workers look for queued jobs.
func (p PulseConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMS) * time.Millisecond
}

// MaintenanceInterval is how often expired leases are reaped.
func (p PulseConfig) MaintenanceInterval() time.Duration {
	return time.Duration(p.MaintenanceIntervalSeconds) * time.Second
}

// TimeBudget returns the solver budget, clamped to the supported range.
func (s SolverConfig) TimeBudget() time.Duration {
	return ClampTimeBudget(s.TimeBudgetSeconds)
}

// Solver time budget bounds in seconds.
const (
	MinTimeBudgetSeconds     = 30
	DefaultTimeBudgetSeconds = 90
	MaxTimeBudgetSeconds     = 600
)

// ClampTimeBudget converts seconds to a budget within [30s, 600s]; 0 means the default.
func ClampTimeBudget(seconds int) time.Duration {
	switch {
	case seconds <= 0:
		seconds = DefaultTimeBudgetSeconds
	case seconds < MinTimeBudgetSeconds:
		seconds = MinTimeBudgetSeconds
	case seconds > MaxTimeBudgetSeconds:
		seconds = MaxTimeBudgetSeconds
	}
	return time.Duration(seconds) * time.Second
}

// FetchTimeout bounds a single read of the data source.
func (s SourceConfig) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutSeconds) * time.Second
}

// PublishTimeout bounds a single write to the data source.
func (s SourceConfig) PublishTimeout() time.Duration {
	return time.Duration(s.PublishTimeoutSeconds) * time.Second
}

// SnapshotMaxAge is how long a cached fetch may stand in for a fresh one.
func (s SourceConfig) SnapshotMaxAge() time.Duration {
	return time.Duration(s.SnapshotMaxAgeMinutes) * time.Minute
}

// CheckInterval is the auto-regeneration polling period.
func (t TriggerConfig) CheckInterval() time.Duration {
	return time.Duration(t.CheckIntervalSeconds) * time.Second
}

// MinSyncInterval suppresses polled staleness checks after a recent fetch.
func (t TriggerConfig) MinSyncInterval() time.Duration {
	return time.Duration(t.MinSyncIntervalMinutes) * time.Minute
}

// ReloadInterval is how often the periodic scheduler re-reads definitions.
func (t TriggerConfig) ReloadInterval() time.Duration {
	return time.Duration(t.ReloadIntervalSeconds) * time.Second
}

// Location resolves the configured timezone, falling back to UTC.
func (t TriggerConfig) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Enabled reports whether result archiving is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}
