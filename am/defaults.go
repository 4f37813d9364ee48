package am

import "github.com/spf13/viper"

// DefaultDirPermissions is used for ~/.rota
const DefaultDirPermissions = 0750

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "rota.db")
	v.SetDefault("log.json", false)

	v.SetDefault("pulse.workers", 2)
	v.SetDefault("pulse.poll_interval_ms", 1000)
	v.SetDefault("pulse.max_run_minutes", 15)
	v.SetDefault("pulse.maintenance_interval_seconds", 60)
	v.SetDefault("pulse.sync_log_retention_days", 30)

	v.SetDefault("solver.time_budget_seconds", DefaultTimeBudgetSeconds)
	v.SetDefault("solver.node_limit", 2_000_000)
	v.SetDefault("solver.seed", 1)
	v.SetDefault("solver.min_rest_hours", 11)
	v.SetDefault("solver.max_consecutive_days", 6)
	v.SetDefault("solver.preference_weight", 10)
	v.SetDefault("solver.fairness_weight", 5)

	v.SetDefault("source.credentials_file", "")
	v.SetDefault("source.fetch_timeout_seconds", 60)
	v.SetDefault("source.publish_timeout_seconds", 60)
	v.SetDefault("source.snapshot_max_age_minutes", 30)
	v.SetDefault("source.requests_per_second", 1.0) // Sheets API quota is per minute; stay well under it
	v.SetDefault("source.request_burst", 5)
	v.SetDefault("source.retry.max_attempts", 3)
	v.SetDefault("source.retry.initial_backoff_ms", 2000)
	v.SetDefault("source.retry.max_backoff_ms", 30000)
	v.SetDefault("source.retry.multiplier", 2.0)

	v.SetDefault("trigger.check_interval_seconds", 600)
	v.SetDefault("trigger.min_sync_interval_minutes", 5)
	v.SetDefault("trigger.default_cron", "0 */4 * * *")
	v.SetDefault("trigger.reload_interval_seconds", 300)
	v.SetDefault("trigger.timezone", "UTC")
	v.SetDefault("trigger.watch_files", true)

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "rota")
	v.SetDefault("archive.region", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.profile", "")
	v.SetDefault("archive.force_path_style", false)
	v.SetDefault("archive.access_key_id", "")
	v.SetDefault("archive.secret_access_key", "")
}
