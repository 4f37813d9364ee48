// Package orchestrator runs the schedule pipeline: it accepts run requests,
// and for each job takes the schedule's lease, fetches input, solves,
// publishes, caches and releases, persisting every transition on the job.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/rota/archive"
	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
	"github.com/teranos/rota/pulse/async"
	"github.com/teranos/rota/pulse/guard"
	"github.com/teranos/rota/result"
	"github.com/teranos/rota/rota"
	"github.com/teranos/rota/source"
)

// DefinitionReader looks up schedule definitions.
type DefinitionReader interface {
	Get(ctx context.Context, id string) (*rota.Definition, error)
}

// Archiver stores a copy of each published result. Optional.
type Archiver interface {
	Upload(ctx context.Context, e archive.Entry) (string, error)
}

// Deps are the collaborators of an Orchestrator. Archive, Outcomes,
// Snapshots and SyncLogs may be nil.
type Deps struct {
	Definitions DefinitionReader
	Queue       *async.Queue
	Guard       *guard.Guard
	Adapter     source.Adapter
	Snapshots   *source.SnapshotStore
	Cache       *source.CachedStore
	Outcomes    *source.OutcomeStore
	SyncLogs    *guard.SyncLogs
	Archive     Archiver
}

// Orchestrator is the job executor and the trigger API.
type Orchestrator struct {
	Deps
	config Config
	holder string // lease holder for runs outside the worker pool
	logger *zap.SugaredLogger
}

// New creates an orchestrator.
func New(deps Deps, cfg Config, log *zap.SugaredLogger) *Orchestrator {
	if cfg.MaxRun <= 0 {
		cfg.MaxRun = guard.DefaultTTL
	}
	host, _ := os.Hostname()
	return &Orchestrator{
		Deps:   deps,
		config: cfg,
		holder: fmt.Sprintf("%s-%d/inline", host, os.Getpid()),
		logger: logger.OrNop(log).Named("orchestrator"),
	}
}

// Holder is the lease holder used by ExecuteByID.
func (o *Orchestrator) Holder() string {
	return o.holder
}

// RunSchedule enqueues a run of an active schedule and returns the job id.
func (o *Orchestrator) RunSchedule(ctx context.Context, scheduleDefID string, trigger async.TriggerKind) (string, error) {
	def, err := o.Definitions.Get(ctx, scheduleDefID)
	if err != nil {
		return "", err
	}
	if !def.Active {
		return "", errors.NewInvalidRequestError("schedule %s is inactive", scheduleDefID)
	}

	job, err := async.NewJob(def.ID, def.TenantID, trigger)
	if err != nil {
		return "", errors.Wrap(err, "invalid run request")
	}
	if err := o.Queue.Enqueue(ctx, job); err != nil {
		return "", err
	}
	o.logger.Infow("Schedule run enqueued",
		logger.FieldJobID, job.ID,
		logger.FieldScheduleDefID, def.ID,
		logger.FieldTenantID, def.TenantID,
		logger.FieldTrigger, trigger)
	return job.ID, nil
}

// RejectBusy records a run that was not started because activeJobID already
// holds the schedule. The job is written failed with reason conflict and is
// never claimed.
func (o *Orchestrator) RejectBusy(ctx context.Context, scheduleDefID string, trigger async.TriggerKind, activeJobID string) (string, error) {
	def, err := o.Definitions.Get(ctx, scheduleDefID)
	if err != nil {
		return "", err
	}
	job, err := async.NewJob(def.ID, def.TenantID, trigger)
	if err != nil {
		return "", errors.Wrap(err, "invalid run request")
	}
	job.Fail(async.ReasonConflict, errors.Mark(
		errors.Newf("schedule %s already has active job %s", def.ID, activeJobID), errors.ErrConflict))
	if err := o.Queue.Enqueue(ctx, job); err != nil {
		return "", err
	}
	o.logger.Infow("Schedule run rejected, schedule busy",
		logger.FieldJobID, job.ID,
		logger.FieldScheduleDefID, def.ID,
		logger.FieldTrigger, trigger,
		"active_job_id", activeJobID)
	return job.ID, nil
}

// JobStatus is the caller-facing view of a job.
type JobStatus struct {
	JobID         string            `json:"job_id"`
	ScheduleDefID string            `json:"schedule_def_id"`
	Trigger       async.TriggerKind `json:"trigger"`
	Status        async.JobStatus   `json:"status"`
	Reason        async.Reason      `json:"reason,omitempty"`
	Error         string            `json:"error,omitempty"`
	ResultRef     string            `json:"result_ref,omitempty"`
	Summary       *result.Summary   `json:"summary,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// Terminal reports whether the job will not change any more.
func (s *JobStatus) Terminal() bool {
	return s.Status.Terminal()
}

// Feasible reports whether the job completed with a schedule.
func (s *JobStatus) Feasible() bool {
	return s.Status == async.JobStatusCompleted && s.Summary != nil &&
		(result.Result{Summary: *s.Summary}).Feasible()
}

// GetJobStatus returns the job's status or errors.ErrNotFound.
func (o *Orchestrator) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	job, err := o.Queue.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return statusOf(job), nil
}

func statusOf(job *async.Job) *JobStatus {
	st := &JobStatus{
		JobID:         job.ID,
		ScheduleDefID: job.ScheduleDefID,
		Trigger:       job.Trigger,
		Status:        job.Status,
		Reason:        job.Reason,
		Error:         job.Error,
		ResultRef:     job.ResultRef,
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
	}
	if len(job.Summary) > 0 {
		var sum result.Summary
		if err := json.Unmarshal(job.Summary, &sum); err == nil {
			st.Summary = &sum
		}
	}
	return st
}

// Wait blocks until the job is terminal or ctx ends. Updates made in this
// process arrive immediately; others are picked up every poll.
func (o *Orchestrator) Wait(ctx context.Context, jobID string, poll time.Duration) (*JobStatus, error) {
	if poll <= 0 {
		poll = time.Second
	}
	updates := o.Queue.Subscribe()
	defer o.Queue.Unsubscribe(updates)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		st, err := o.GetJobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if st.Terminal() {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return st, errors.Wrapf(ctx.Err(), "waiting for job %s", jobID)
		case <-ticker.C:
		case job := <-updates:
			if job.ID == jobID && job.Status.Terminal() {
				return statusOf(job), nil
			}
		}
	}
}

// RecoverExpired force-expires leases past their deadline and fails the
// jobs that held them. Running jobs without any lease (a crash between
// acquiring and starting, or a lost release) are failed too, and claims of
// dead workers are returned to the queue. It returns the number of jobs failed.
func (o *Orchestrator) RecoverExpired(ctx context.Context) (int, error) {
	expired, err := o.Guard.ExpireStale(ctx)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, l := range expired {
		job, err := o.Queue.GetJob(ctx, l.JobID)
		if errors.IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return failed, err
		}
		if job.Status != async.JobStatusRunning || job.LeaseID != l.ID {
			continue
		}
		msg := fmt.Sprintf("lease expired at %s while job was running on %s",
			l.ExpiresAt.Format(time.RFC3339), l.Holder)
		ok, err := o.failRecovered(ctx, job, msg)
		if err != nil {
			return failed, err
		}
		if ok {
			failed++
		}
	}

	running, err := o.Queue.ListJobs(ctx, async.ListFilter{Status: async.JobStatusRunning})
	if err != nil {
		return failed, err
	}
	for _, job := range running {
		held, err := o.Guard.Held(ctx, job.TenantID, job.ScheduleDefID)
		if err != nil {
			return failed, err
		}
		if held {
			continue
		}
		ok, err := o.failRecovered(ctx, job, "job was running without a lease")
		if err != nil {
			return failed, err
		}
		if ok {
			failed++
		}
	}

	released, err := o.Queue.ReleaseStaleClaims(ctx, time.Now().Add(-o.config.MaxRun))
	if err != nil {
		return failed, err
	}
	if released > 0 {
		o.logger.Infow("Returned abandoned claims to the queue", logger.FieldCount, released)
	}
	return failed, nil
}

// failRecovered fails an abandoned job. It reports false when the job
// reached a terminal state after it was listed.
func (o *Orchestrator) failRecovered(ctx context.Context, job *async.Job, msg string) (bool, error) {
	job.Fail(async.ReasonTimeout, errors.New(msg))
	if err := o.Queue.UpdateJob(ctx, job); err != nil {
		if errors.Is(err, async.ErrJobFinished) {
			o.logger.Debugw("Abandoned job finished before recovery",
				logger.FieldJobID, job.ID,
				logger.FieldError, err)
			return false, nil
		}
		return false, err
	}
	o.logger.Warnw("Failed abandoned job",
		logger.FieldJobID, job.ID,
		logger.FieldScheduleDefID, job.ScheduleDefID,
		logger.FieldReason, job.Reason,
		logger.FieldError, msg)
	return true, nil
}

// Maintenance is the worker pool's periodic housekeeping.
func (o *Orchestrator) Maintenance(ctx context.Context) error {
	if _, err := o.RecoverExpired(ctx); err != nil {
		return errors.Wrap(err, "recover expired leases")
	}
	if o.SyncLogs != nil && o.config.SyncLogRetention > 0 {
		n, err := o.SyncLogs.Prune(ctx, o.config.SyncLogRetention)
		if err != nil {
			return errors.Wrap(err, "prune sync logs")
		}
		if n > 0 {
			o.logger.Debugw("Pruned sync logs", logger.FieldCount, n)
		}
	}
	return nil
}
