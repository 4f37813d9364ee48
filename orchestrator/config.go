package orchestrator

import (
	"time"

	"github.com/teranos/rota/am"
	"github.com/teranos/rota/rota"
	"github.com/teranos/rota/solver"
)

// Config bounds one pipeline run.
type Config struct {
	MaxRun           time.Duration // lease TTL and per-job deadline
	FetchTimeout     time.Duration // per fetch attempt; 0 = bounded by MaxRun only
	PublishTimeout   time.Duration // per publish attempt
	Retry            RetryPolicy
	Solver           solver.Options // TimeBudget is overridden by a definition's own budget
	SyncLogRetention time.Duration  // 0 keeps sync logs forever
}

// ConfigFrom derives the orchestrator settings from configuration.
func ConfigFrom(cfg *am.Config) Config {
	return Config{
		MaxRun:         cfg.Pulse.MaxRunDuration(),
		FetchTimeout:   cfg.Source.FetchTimeout(),
		PublishTimeout: cfg.Source.PublishTimeout(),
		Retry: RetryPolicy{
			MaxAttempts: cfg.Source.Retry.MaxAttempts,
			Initial:     time.Duration(cfg.Source.Retry.InitialBackoffMS) * time.Millisecond,
			Max:         time.Duration(cfg.Source.Retry.MaxBackoffMS) * time.Millisecond,
			Multiplier:  cfg.Source.Retry.Multiplier,
		},
		Solver: solver.Options{
			TimeBudget: cfg.Solver.TimeBudget(),
			Seed:       cfg.Solver.Seed,
			NodeLimit:  int64(cfg.Solver.NodeLimit),
		},
		SyncLogRetention: time.Duration(cfg.Pulse.SyncLogRetentionDays) * 24 * time.Hour,
	}
}

// RulesFrom returns the scheduling rules configured for every schedule.
func RulesFrom(cfg am.SolverConfig) rota.Rules {
	return rota.Rules{
		MinRestHours:       cfg.MinRestHours,
		MaxConsecutiveDays: cfg.MaxConsecutiveDays,
		PreferenceWeight:   cfg.PreferenceWeight,
		FairnessWeight:     cfg.FairnessWeight,
	}
}

// solverOptions applies a definition's own time budget, if it has one.
func (c Config) solverOptions(def *rota.Definition) solver.Options {
	opts := c.Solver
	if def.TimeBudgetSeconds > 0 {
		opts.TimeBudget = am.ClampTimeBudget(def.TimeBudgetSeconds)
	}
	return opts
}
