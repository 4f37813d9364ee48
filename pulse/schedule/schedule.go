// Package schedule decides when schedules run without being asked: the
// Scheduler fires cron entries per definition and the Regenerator enqueues
// a run whenever a schedule's source no longer matches its cached result.
//
// Both only enqueue. Execution, leasing and retries belong to the worker
// pool and the orchestrator.
package schedule

import (
	"context"

	"github.com/teranos/rota/pulse/async"
	"github.com/teranos/rota/rota"
)

// Definitions lists the schedules eligible for automatic runs.
type Definitions interface {
	ListActive(ctx context.Context) ([]*rota.Definition, error)
}

// ActiveJobs finds a queued or running job of a schedule.
type ActiveJobs interface {
	FindActiveJob(ctx context.Context, scheduleDefID string) (*async.Job, error)
}

// Dispatcher enqueues a run of a schedule, or records one that was
// rejected because the schedule already has work.
type Dispatcher interface {
	RunSchedule(ctx context.Context, scheduleDefID string, trigger async.TriggerKind) (string, error)
	RejectBusy(ctx context.Context, scheduleDefID string, trigger async.TriggerKind, activeJobID string) (string, error)
}

// hasActiveJob reports whether def already has work queued or running.
func hasActiveJob(ctx context.Context, jobs ActiveJobs, scheduleDefID string) (bool, error) {
	job, err := jobs.FindActiveJob(ctx, scheduleDefID)
	if err != nil {
		return false, err
	}
	return job != nil, nil
}
