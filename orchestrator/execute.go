package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/rota/archive"
	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
	"github.com/teranos/rota/pulse/async"
	"github.com/teranos/rota/pulse/guard"
	"github.com/teranos/rota/result"
	"github.com/teranos/rota/rota"
	"github.com/teranos/rota/solver"
	"github.com/teranos/rota/source"
)

// persistTimeout bounds status writes that must happen even after the run's
// context has ended.
const persistTimeout = 10 * time.Second

// Execute runs the pipeline for a claimed job. Every outcome, including
// panics, ends with the job in a terminal state, except shutdown, which
// returns the job to the queue. The returned error is informational.
func (o *Orchestrator) Execute(ctx context.Context, job *async.Job) (err error) {
	ctx = logger.WithJobID(ctx, job.ID)
	ctx = logger.WithScheduleDefID(ctx, job.ScheduleDefID)
	ctx = logger.WithComponent(ctx, "orchestrator")
	log := logger.FromContext(ctx, o.logger)
	start := time.Now()

	def, err := o.Definitions.Get(ctx, job.ScheduleDefID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			err = errors.Mark(err, errors.ErrInvalidInput)
		}
		return o.finishFailed(ctx, log, job, err)
	}

	holder := job.ClaimedBy
	if holder == "" {
		holder = o.holder
	}
	lease, err := o.Guard.TryAcquire(ctx, def.TenantID, def.ID, holder, job.ID)
	if err != nil {
		if errors.Is(err, guard.ErrBusy) {
			return o.finishConflict(ctx, log, job, err)
		}
		return o.finishFailed(ctx, log, job, err)
	}
	defer o.release(ctx, log, lease)

	job.Start(lease.ID)
	if err := o.Queue.UpdateJob(ctx, job); err != nil {
		if errors.Is(err, async.ErrJobFinished) {
			log.Infow("Job already finished, not starting", logger.FieldError, err)
			return nil
		}
		if errors.Is(err, errors.ErrConflict) {
			return o.finishConflict(ctx, log, job, err)
		}
		return o.finishFailed(ctx, log, job, err)
	}
	log.Infow("Schedule run started",
		logger.FieldTrigger, job.Trigger,
		logger.FieldLeaseID, lease.ID,
		logger.FieldHolder, holder)

	defer func() {
		if r := recover(); r != nil {
			err = o.finishFailed(ctx, log, job, errors.Newf("panic during schedule run: %v", r))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, o.config.MaxRun)
	defer cancel()

	res, snap, err := o.run(runCtx, job, def)
	if err != nil {
		if ctx.Err() != nil {
			return o.requeue(ctx, log, job, err)
		}
		if runCtx.Err() == context.DeadlineExceeded && !errors.IsTimeout(err) {
			err = errors.Mark(errors.Wrapf(err, "run exceeded %s", o.config.MaxRun), errors.ErrTimeout)
		}
		return o.finishFailed(ctx, log, job, err)
	}

	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return o.finishFailed(ctx, log, job, errors.Wrap(err, "encode summary"))
	}
	ref := ""
	if res.Feasible() {
		ref = (&source.CachedSchedule{ScheduleDefID: def.ID, Fingerprint: snap.Fingerprint}).Ref()
	}
	job.Complete(ref, summary)
	if err := o.persist(ctx, job); err != nil {
		return err
	}
	log.Infow("Schedule run completed",
		logger.FieldVerdict, res.Summary.Verdict,
		logger.FieldObjective, res.Summary.Objective,
		logger.FieldCount, len(res.Records),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return nil
}

// run is the fetch, build, solve, publish and cache sequence.
func (o *Orchestrator) run(ctx context.Context, job *async.Job, def *rota.Definition) (result.Result, *source.Snapshot, error) {
	log := logger.FromContext(ctx, o.logger)

	var snap *source.Snapshot
	err := o.withRetry(ctx, "fetch", o.config.FetchTimeout, func(ctx context.Context, attempt int) error {
		job.FetchAttempts = attempt
		var err error
		snap, err = o.Adapter.Fetch(ctx, def)
		o.recordSync(ctx, job, def, guard.SyncFetch, attempt, snap, err)
		return err
	})
	if err != nil {
		return result.Result{}, nil, err
	}
	if o.Snapshots != nil {
		if err := o.Snapshots.Put(ctx, def.ID, snap); err != nil {
			log.Warnw("Failed to store source snapshot", logger.FieldError, err)
		}
	}

	model, err := solver.Build(snap.Input)
	if err != nil {
		return result.Result{}, nil, err
	}
	opts := o.config.solverOptions(def)
	sol := solver.Solve(model, opts)
	res := result.Materialize(snap.Input, model, sol)
	log.Infow("Solved schedule",
		logger.FieldVerdict, sol.Status,
		logger.FieldObjective, sol.Objective,
		"nodes", sol.Nodes,
		"budget", opts.TimeBudget)

	if !res.Feasible() {
		// An infeasible verdict is a valid outcome: nothing is published and
		// the previous cached schedule stays in place.
		if res.Summary.Verdict == solver.StatusTimeout {
			res.Summary.Verdict = solver.StatusInfeasible
			if res.Summary.Reason == "" {
				res.Summary.Reason = "no valid schedule found within the search budget"
			}
		}
		o.recordOutcome(ctx, log, def, job, snap, res)
		return res, snap, nil
	}

	err = o.withRetry(ctx, "publish", o.config.PublishTimeout, func(ctx context.Context, attempt int) error {
		err := o.Adapter.Publish(ctx, def, res)
		o.recordSync(ctx, job, def, guard.SyncPublish, attempt, snap, err)
		return err
	})
	if err != nil {
		return result.Result{}, nil, err
	}

	cached := &source.CachedSchedule{
		ScheduleDefID: def.ID,
		Fingerprint:   snap.Fingerprint,
		Verdict:       string(res.Summary.Verdict),
		Result:        res,
		JobID:         job.ID,
		GeneratedAt:   time.Now().UTC(),
	}
	if err := o.Cache.Put(ctx, cached); err != nil {
		return result.Result{}, nil, err
	}
	o.recordOutcome(ctx, log, def, job, snap, res)
	o.archive(ctx, log, def, job, cached)
	return res, snap, nil
}

// recordOutcome remembers the verdict for this input so the regenerator
// does not solve an unchanged infeasible input again.
func (o *Orchestrator) recordOutcome(ctx context.Context, log *zap.SugaredLogger, def *rota.Definition, job *async.Job, snap *source.Snapshot, res result.Result) {
	if o.Outcomes == nil {
		return
	}
	err := o.Outcomes.Put(context.WithoutCancel(ctx), &source.Outcome{
		ScheduleDefID: def.ID,
		Fingerprint:   snap.Fingerprint,
		Verdict:       string(res.Summary.Verdict),
		Reason:        res.Summary.Reason,
		JobID:         job.ID,
		SolvedAt:      time.Now().UTC(),
	})
	if err != nil {
		log.Warnw("Failed to record solve outcome", logger.FieldError, err)
	}
}

// archive uploads a copy of the result. Failures only log: the schedule is
// already published and cached.
func (o *Orchestrator) archive(ctx context.Context, log *zap.SugaredLogger, def *rota.Definition, job *async.Job, c *source.CachedSchedule) {
	if o.Archive == nil {
		return
	}
	key, err := o.Archive.Upload(ctx, archive.Entry{
		TenantID:      def.TenantID,
		ScheduleDefID: def.ID,
		JobID:         job.ID,
		Fingerprint:   c.Fingerprint,
		GeneratedAt:   c.GeneratedAt,
		Result:        c.Result,
	})
	if err != nil {
		log.Warnw("Failed to archive schedule", logger.FieldError, err)
		return
	}
	log.Debugw("Archived schedule", "key", key)
}

func (o *Orchestrator) recordSync(ctx context.Context, job *async.Job, def *rota.Definition, typ guard.SyncType, attempt int, snap *source.Snapshot, err error) {
	if o.SyncLogs == nil {
		return
	}
	entry := &guard.SyncLog{
		ScheduleDefID: def.ID,
		TenantID:      def.TenantID,
		JobID:         job.ID,
		Type:          typ,
		TriggeredBy:   string(job.Trigger),
		Attempt:       attempt,
		Success:       err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	} else if snap != nil {
		entry.Fingerprint = snap.Fingerprint
		entry.RowsSynced = snap.Rows
		entry.EmployeesSynced = snap.Employees()
	}
	if rerr := o.SyncLogs.Record(context.WithoutCancel(ctx), entry); rerr != nil {
		o.logger.Warnw("Failed to record sync log",
			logger.FieldJobID, job.ID,
			logger.FieldError, rerr)
	}
}

// finishFailed records err on the job. The stored message is the raw error.
func (o *Orchestrator) finishFailed(ctx context.Context, log *zap.SugaredLogger, job *async.Job, err error) error {
	reason := async.ClassifyError(err)
	job.Fail(reason, err)
	if perr := o.persist(ctx, job); perr != nil {
		return perr
	}
	log.Warnw("Schedule run failed",
		logger.FieldReason, reason,
		logger.FieldError, err)
	return err
}

// finishConflict handles a schedule that is already being run. Automatic
// runs are dropped silently; requested runs fail so the caller finds out.
func (o *Orchestrator) finishConflict(ctx context.Context, log *zap.SugaredLogger, job *async.Job, err error) error {
	if job.Trigger == async.TriggerAuto {
		job.Cancel(async.ReasonConflict, err.Error())
		if perr := o.persist(ctx, job); perr != nil {
			return perr
		}
		log.Infow("Auto run dropped, schedule already running")
		return nil
	}
	return o.finishFailed(ctx, log, job, errors.Mark(err, errors.ErrConflict))
}

// requeue returns an interrupted job to the queue for another worker.
func (o *Orchestrator) requeue(ctx context.Context, log *zap.SugaredLogger, job *async.Job, cause error) error {
	leaseID, startedAt := job.LeaseID, job.StartedAt
	job.Requeue(cause)
	if err := o.persist(ctx, job); err != nil {
		return err
	}
	log.Infow("Schedule run interrupted, job re-queued",
		logger.FieldLeaseID, leaseID,
		"started_at", startedAt,
		logger.FieldError, cause)
	return cause
}

// persist writes the job even when ctx is already done. A job that recovery
// finished in the meantime keeps its recorded outcome.
func (o *Orchestrator) persist(ctx context.Context, job *async.Job) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := o.Queue.UpdateJob(pctx, job); err != nil {
		return errors.Wrapf(err, "failed to record %s status", job.Status)
	}
	return nil
}

func (o *Orchestrator) release(ctx context.Context, log *zap.SugaredLogger, lease *guard.Lease) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := o.Guard.Release(rctx, lease); err != nil {
		log.Warnw("Failed to release lease",
			logger.FieldLeaseID, lease.ID,
			logger.FieldError, err)
	}
}

// ExecuteByID claims and runs one job in the calling goroutine, for runs
// without a worker pool. It returns errors.ErrConflict when another worker
// already claimed the job.
func (o *Orchestrator) ExecuteByID(ctx context.Context, jobID string) (*JobStatus, error) {
	job, err := o.Queue.ClaimJob(ctx, jobID, o.holder)
	if err != nil {
		return nil, err
	}
	if job == nil {
		if _, err := o.Queue.GetJob(ctx, jobID); err != nil {
			return nil, err
		}
		return nil, errors.Mark(errors.Newf("job %s was claimed by another worker", jobID), errors.ErrConflict)
	}
	if err := o.Execute(ctx, job); err != nil && ctx.Err() != nil {
		return nil, err
	}
	return o.GetJobStatus(context.WithoutCancel(ctx), jobID)
}
