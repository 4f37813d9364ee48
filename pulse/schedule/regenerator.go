package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/rota/am"
	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
	"github.com/teranos/rota/pulse/async"
	"github.com/teranos/rota/pulse/guard"
	"github.com/teranos/rota/rota"
)

// DefaultDebounce collapses bursts of change notifications for a schedule.
const DefaultDebounce = 500 * time.Millisecond

// LeaseChecker reports whether a run currently holds a schedule.
type LeaseChecker interface {
	Held(ctx context.Context, tenantID, scheduleDefID string) (bool, error)
}

// SyncHistory returns the most recent data source access of a schedule.
type SyncHistory interface {
	Latest(ctx context.Context, scheduleDefID string) (*guard.SyncLog, error)
}

// StaleCheck compares a schedule's source with its cached result.
type StaleCheck interface {
	IsStale(ctx context.Context, def *rota.Definition) (guard.Staleness, error)
}

// RegeneratorDeps are the collaborators of a Regenerator.
type RegeneratorDeps struct {
	Definitions Definitions
	Leases      LeaseChecker
	Jobs        ActiveJobs
	SyncLogs    SyncHistory
	Stale       StaleCheck
	Dispatcher  Dispatcher
}

// RegeneratorConfig tunes the regeneration loop.
type RegeneratorConfig struct {
	CheckInterval   time.Duration // 0 disables the polling loop; notifications still work
	MinSyncInterval time.Duration // polled checks skip schedules synced more recently
	Debounce        time.Duration
}

// RegeneratorConfigFrom derives the regenerator settings from configuration.
func RegeneratorConfigFrom(cfg am.TriggerConfig) RegeneratorConfig {
	return RegeneratorConfig{
		CheckInterval:   cfg.CheckInterval(),
		MinSyncInterval: cfg.MinSyncInterval(),
		Debounce:        DefaultDebounce,
	}
}

// Outcome records what one check decided for a schedule.
type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeLeaseHeld  Outcome = "lease_held"
	OutcomeJobActive  Outcome = "job_active"
	OutcomeRecentSync Outcome = "recent_sync"
	OutcomeFresh      Outcome = "fresh"
)

// Regenerator enqueues auto runs for schedules whose source changed since
// their last published result.
type Regenerator struct {
	deps   RegeneratorDeps
	config RegeneratorConfig
	now    func() time.Time
	logger *zap.SugaredLogger

	mu      sync.Mutex
	pending map[string]*time.Timer // debounced notifications by schedule id
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRegenerator creates a regenerator. Call Start to begin polling.
func NewRegenerator(deps RegeneratorDeps, cfg RegeneratorConfig, log *zap.SugaredLogger) *Regenerator {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Regenerator{
		deps:    deps,
		config:  cfg,
		now:     time.Now,
		logger:  logger.OrNop(log).Named("regenerator"),
		pending: make(map[string]*time.Timer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins the polling loop. It stops when ctx is cancelled or Stop is called.
func (r *Regenerator) Start(ctx context.Context) {
	r.mu.Lock()
	r.cancel()
	r.ctx, r.cancel = context.WithCancel(ctx)
	runCtx := r.ctx
	r.mu.Unlock()

	if r.config.CheckInterval > 0 {
		r.wg.Add(1)
		go r.run(runCtx)
	}
	r.logger.Infow("Auto-regeneration started",
		"check_interval", r.config.CheckInterval,
		"min_sync_interval", r.config.MinSyncInterval)
}

// Stop ends polling, drops pending notifications and waits for running checks.
func (r *Regenerator) Stop() {
	r.mu.Lock()
	r.cancel()
	for id, timer := range r.pending {
		if timer.Stop() {
			r.wg.Done()
		}
		delete(r.pending, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
	r.logger.Infow("Auto-regeneration stopped")
}

func (r *Regenerator) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.CheckAll(ctx); err != nil && ctx.Err() == nil {
				// Don't spam logs - the next tick tries again
				r.logger.Warnw("Regeneration check failed", logger.FieldError, err)
			}
		}
	}
}

// Notify asks for a check of one schedule soon. Notifications arriving
// within the debounce window of each other collapse into one check, which
// ignores the minimum sync interval.
func (r *Regenerator) Notify(scheduleDefID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		return
	}
	if timer, ok := r.pending[scheduleDefID]; ok && timer.Stop() {
		timer.Reset(r.config.Debounce)
		return
	}
	r.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(r.config.Debounce, func() {
		defer r.wg.Done()
		r.mu.Lock()
		if r.pending[scheduleDefID] == timer {
			delete(r.pending, scheduleDefID)
		}
		ctx := r.ctx
		r.mu.Unlock()
		r.checkNotified(ctx, scheduleDefID)
	})
	r.pending[scheduleDefID] = timer
}

func (r *Regenerator) checkNotified(ctx context.Context, scheduleDefID string) {
	if ctx.Err() != nil {
		return
	}
	defs, err := r.deps.Definitions.ListActive(ctx)
	if err != nil {
		r.logger.Warnw("Failed to list schedule definitions", logger.FieldError, err)
		return
	}
	for _, def := range defs {
		if def.ID != scheduleDefID {
			continue
		}
		if _, err := r.Check(ctx, def, true); err != nil && ctx.Err() == nil {
			r.logger.Warnw("Regeneration check failed",
				logger.FieldScheduleDefID, def.ID,
				logger.FieldError, err)
		}
		return
	}
	r.logger.Debugw("Change notification for inactive or unknown schedule",
		logger.FieldScheduleDefID, scheduleDefID)
}

// CheckAll checks every active definition and returns the outcome per
// schedule. A failing schedule does not stop the others; the first error
// is returned after all were checked.
func (r *Regenerator) CheckAll(ctx context.Context) (map[string]Outcome, error) {
	defs, err := r.deps.Definitions.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schedule definitions")
	}

	outcomes := make(map[string]Outcome, len(defs))
	var firstErr error
	for _, def := range defs {
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}
		outcome, err := r.Check(ctx, def, false)
		if err != nil {
			r.logger.Warnw("Regeneration check failed",
				logger.FieldScheduleDefID, def.ID,
				logger.FieldError, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		outcomes[def.ID] = outcome
	}
	return outcomes, firstErr
}

// Check decides whether def needs an auto run and enqueues one if so.
// notified checks skip the minimum sync interval.
func (r *Regenerator) Check(ctx context.Context, def *rota.Definition, notified bool) (Outcome, error) {
	held, err := r.deps.Leases.Held(ctx, def.TenantID, def.ID)
	if err != nil {
		return "", err
	}
	if held {
		return OutcomeLeaseHeld, nil
	}

	active, err := hasActiveJob(ctx, r.deps.Jobs, def.ID)
	if err != nil {
		return "", err
	}
	if active {
		return OutcomeJobActive, nil
	}

	if !notified && r.config.MinSyncInterval > 0 {
		last, err := r.deps.SyncLogs.Latest(ctx, def.ID)
		if err != nil {
			return "", err
		}
		if last != nil && r.now().Sub(last.CreatedAt) < r.config.MinSyncInterval {
			return OutcomeRecentSync, nil
		}
	}

	st, err := r.deps.Stale.IsStale(ctx, def)
	if err != nil {
		return "", err
	}
	if !st.Stale {
		return OutcomeFresh, nil
	}

	jobID, err := r.deps.Dispatcher.RunSchedule(ctx, def.ID, async.TriggerAuto)
	if err != nil {
		return "", err
	}
	r.logger.Infow("Source changed, regeneration enqueued",
		logger.FieldScheduleDefID, def.ID,
		logger.FieldJobID, jobID,
		logger.FieldReason, st.Reason,
		"notified", notified)
	return OutcomeDispatched, nil
}
