// Package async provides the persistent schedule job queue and the worker
// pool that drains it. Jobs live in the shared SQLite store so workers in
// several processes can cooperate through it.
package async

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/rota/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusRunning,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions happen from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// TriggerKind records what asked for a run.
type TriggerKind string

const (
	TriggerManual   TriggerKind = "manual"
	TriggerPeriodic TriggerKind = "periodic"
	TriggerAuto     TriggerKind = "auto"
)

// IsValidTrigger returns true if s names a TriggerKind
func IsValidTrigger(s string) bool {
	switch TriggerKind(s) {
	case TriggerManual, TriggerPeriodic, TriggerAuto:
		return true
	}
	return false
}

// Job is one requested generation of one schedule (the JobLog row).
// Rows are never deleted; the history is the audit trail.
type Job struct {
	ID            string          `json:"id"`
	ScheduleDefID string          `json:"schedule_def_id"`
	TenantID      string          `json:"tenant_id"`
	Trigger       TriggerKind     `json:"trigger"`
	Status        JobStatus       `json:"status"`
	Reason        Reason          `json:"reason,omitempty"`
	Error         string          `json:"error,omitempty"` // raw message, unscrubbed; on a requeued job, the interrupted attempt
	ResultRef     string          `json:"result_ref,omitempty"`
	Summary       json.RawMessage `json:"summary,omitempty"`
	FetchAttempts int             `json:"fetch_attempts,omitempty"`
	LeaseID       string          `json:"lease_id,omitempty"`
	ClaimedBy     string          `json:"claimed_by,omitempty"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewJob creates a queued job for a schedule.
func NewJob(scheduleDefID, tenantID string, trigger TriggerKind) (*Job, error) {
	if scheduleDefID == "" {
		return nil, errors.New("scheduleDefID cannot be empty")
	}
	if !IsValidTrigger(string(trigger)) {
		return nil, errors.Newf("invalid trigger %q", trigger)
	}

	now := time.Now().UTC()
	return &Job{
		ID:            uuid.NewString(),
		ScheduleDefID: scheduleDefID,
		TenantID:      tenantID,
		Trigger:       trigger,
		Status:        JobStatusQueued,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Start marks the job as running under leaseID
func (j *Job) Start(leaseID string) {
	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.LeaseID = leaseID
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as completed
func (j *Job) Complete(resultRef string, summary json.RawMessage) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ResultRef = resultRef
	j.Summary = summary
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed with a classified reason and the raw error
func (j *Job) Fail(reason Reason, err error) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.Reason = reason
	if err != nil {
		j.Error = err.Error()
	}
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Cancel marks the job as cancelled with a reason
func (j *Job) Cancel(reason Reason, msg string) {
	now := time.Now().UTC()
	j.Status = JobStatusCancelled
	j.Reason = reason
	j.Error = msg
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Requeue returns an interrupted job to the queue, dropping its claim and
// lease. The interrupted attempt is noted in Error so the history survives
// the next Start.
func (j *Job) Requeue(cause error) {
	note := "attempt"
	if j.StartedAt != nil {
		note += " started " + j.StartedAt.UTC().Format(time.RFC3339)
	}
	if j.ClaimedBy != "" {
		note += " on " + j.ClaimedBy
	}
	if j.LeaseID != "" {
		note += " under lease " + j.LeaseID
	}
	note += " was interrupted"
	if cause != nil {
		note += ": " + cause.Error()
	}
	j.Error = note
	j.Status = JobStatusQueued
	j.LeaseID = ""
	j.ClaimedBy = ""
	j.ClaimedAt = nil
	j.StartedAt = nil
	j.UpdatedAt = time.Now().UTC()
}

// Duration is the time from start to completion, or zero.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}
