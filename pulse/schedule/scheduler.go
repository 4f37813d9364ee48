package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teranos/rota/am"
	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
	"github.com/teranos/rota/pulse/async"
	"github.com/teranos/rota/rota"
)

// SchedulerConfig configures periodic runs.
type SchedulerConfig struct {
	DefaultCron    string         // used by definitions without run_cron; empty disables them
	Location       *time.Location // cron evaluation timezone
	ReloadInterval time.Duration  // 0 disables periodic reloads
}

// SchedulerConfigFrom derives the scheduler settings from configuration.
func SchedulerConfigFrom(cfg am.TriggerConfig) SchedulerConfig {
	return SchedulerConfig{
		DefaultCron:    cfg.DefaultCron,
		Location:       cfg.Location(),
		ReloadInterval: cfg.ReloadInterval(),
	}
}

type cronEntry struct {
	spec string
	id   cron.EntryID
}

// Scheduler enqueues periodic runs on each definition's cron expression.
type Scheduler struct {
	defs     Definitions
	jobs     ActiveJobs
	dispatch Dispatcher
	config   SchedulerConfig
	cron     *cron.Cron
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	entries map[string]cronEntry // by schedule definition id
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. Call Start to load definitions.
func NewScheduler(defs Definitions, jobs ActiveJobs, dispatch Dispatcher, cfg SchedulerConfig, log *zap.SugaredLogger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	l := logger.OrNop(log).Named("scheduler")
	return &Scheduler{
		defs:     defs,
		jobs:     jobs,
		dispatch: dispatch,
		config:   cfg,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithParser(am.CronParser),
			cron.WithChain(cron.Recover(cronLogger{l})),
			cron.WithLogger(cronLogger{l}),
		),
		logger:  l,
		entries: make(map[string]cronEntry),
		ctx:     context.Background(),
	}
}

// Start loads definitions, starts the cron runner and, when configured,
// reloads definitions periodically until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	if err := s.Reload(runCtx); err != nil {
		s.cancel()
		return err
	}
	s.cron.Start()

	if s.config.ReloadInterval > 0 {
		s.wg.Add(1)
		go s.reloadLoop(runCtx)
	}
	s.logger.Infow("Periodic scheduler started",
		"default_cron", s.config.DefaultCron,
		"timezone", s.config.Location.String(),
		logger.FieldCount, s.Len())
	return nil
}

// Stop halts the cron runner and waits for in-flight dispatches.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Infow("Periodic scheduler stopped")
}

func (s *Scheduler) reloadLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.ReloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warnw("Failed to reload schedule definitions", logger.FieldError, err)
			}
		}
	}
}

// Reload brings cron entries in line with the active definitions: new
// schedules are added, changed expressions replaced and inactive ones removed.
func (s *Scheduler) Reload(ctx context.Context) error {
	defs, err := s.defs.ListActive(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list schedule definitions")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]string, len(defs))
	for _, def := range defs {
		if spec := s.specFor(def); spec != "" {
			want[def.ID] = spec
		}
	}

	for id, entry := range s.entries {
		if spec, ok := want[id]; !ok || spec != entry.spec {
			s.cron.Remove(entry.id)
			delete(s.entries, id)
		}
	}
	for id, spec := range want {
		if _, ok := s.entries[id]; ok {
			continue
		}
		defID := id
		entryID, err := s.cron.AddFunc(spec, func() { s.fire(defID) })
		if err != nil {
			// One bad expression must not stop the other schedules
			s.logger.Errorw("Invalid cron expression",
				logger.FieldScheduleDefID, id,
				"cron", spec,
				logger.FieldError, err)
			continue
		}
		s.entries[id] = cronEntry{spec: spec, id: entryID}
	}
	return nil
}

func (s *Scheduler) specFor(def *rota.Definition) string {
	if def.RunCron != "" {
		return def.RunCron
	}
	return s.config.DefaultCron
}

// fire is the cron callback for one schedule.
func (s *Scheduler) fire(scheduleDefID string) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunNow(ctx, scheduleDefID); err != nil {
		s.logger.Warnw("Periodic run not enqueued",
			logger.FieldScheduleDefID, scheduleDefID,
			logger.FieldError, err)
	}
}

// RunNow enqueues a periodic run. When the schedule already has a queued or
// running job, the trigger is recorded as a job failed with reason conflict
// so the job log shows it. It returns the new job id either way.
func (s *Scheduler) RunNow(ctx context.Context, scheduleDefID string) (string, error) {
	active, err := s.jobs.FindActiveJob(ctx, scheduleDefID)
	if err != nil {
		return "", err
	}
	if active != nil {
		jobID, err := s.dispatch.RejectBusy(ctx, scheduleDefID, async.TriggerPeriodic, active.ID)
		if err != nil {
			return "", err
		}
		s.logger.Infow("Periodic run rejected, job already active",
			logger.FieldScheduleDefID, scheduleDefID,
			logger.FieldJobID, jobID,
			"active_job_id", active.ID)
		return jobID, nil
	}
	jobID, err := s.dispatch.RunSchedule(ctx, scheduleDefID, async.TriggerPeriodic)
	if err != nil {
		return "", err
	}
	s.logger.Infow("Periodic run enqueued",
		logger.FieldScheduleDefID, scheduleDefID,
		logger.FieldJobID, jobID)
	return jobID, nil
}

// Len is the number of schedules with a cron entry.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Next returns when the schedule's entry fires next, or the zero time when
// it has none or the runner is not started.
func (s *Scheduler) Next(scheduleDefID string) time.Time {
	s.mu.Lock()
	entry, ok := s.entries[scheduleDefID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(entry.id).Next
}

// Spec returns the cron expression in effect for a schedule.
func (s *Scheduler) Spec(scheduleDefID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[scheduleDefID]
	return entry.spec, ok
}

// cronLogger routes robfig/cron's logging into zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, logger.FieldError, err)...)
}
