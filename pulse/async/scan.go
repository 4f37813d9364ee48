package async

import (
	"database/sql"
	"encoding/json"
	"strings"
)

// JobScanArgs holds the nullable columns of a job row while scanning.
type JobScanArgs struct {
	Trigger     string
	Status      string
	Reason      string
	ErrorMsg    sql.NullString
	ResultRef   sql.NullString
	Summary     sql.NullString
	LeaseID     sql.NullString
	ClaimedBy   sql.NullString
	ClaimedAt   sql.NullTime
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
}

// GetJobScanTargets returns scan destinations in StandardJobSelectColumns order.
func GetJobScanTargets(job *Job, args *JobScanArgs) []interface{} {
	return []interface{}{
		&job.ID,
		&job.ScheduleDefID,
		&job.TenantID,
		&args.Trigger,
		&args.Status,
		&args.Reason,
		&args.ErrorMsg,
		&args.ResultRef,
		&args.Summary,
		&job.FetchAttempts,
		&args.LeaseID,
		&args.ClaimedBy,
		&args.ClaimedAt,
		&job.CreatedAt,
		&args.StartedAt,
		&args.CompletedAt,
		&job.UpdatedAt,
	}
}

// ProcessJobScanArgs copies the scanned nullable values onto job.
func ProcessJobScanArgs(job *Job, args *JobScanArgs) {
	job.Trigger = TriggerKind(args.Trigger)
	job.Status = JobStatus(args.Status)
	job.Reason = Reason(args.Reason)
	job.Error = args.ErrorMsg.String
	job.ResultRef = args.ResultRef.String
	if args.Summary.Valid && args.Summary.String != "" {
		job.Summary = json.RawMessage(args.Summary.String)
	}
	job.LeaseID = args.LeaseID.String
	job.ClaimedBy = args.ClaimedBy.String
	if args.ClaimedAt.Valid {
		job.ClaimedAt = &args.ClaimedAt.Time
	}
	if args.StartedAt.Valid {
		job.StartedAt = &args.StartedAt.Time
	}
	if args.CompletedAt.Valid {
		job.CompletedAt = &args.CompletedAt.Time
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanJob scans one job from a *sql.Row or *sql.Rows.
func scanJob(row scanner) (*Job, error) {
	var job Job
	var args JobScanArgs
	if err := row.Scan(GetJobScanTargets(&job, &args)...); err != nil {
		return nil, err
	}
	ProcessJobScanArgs(&job, &args)
	return &job, nil
}

var jobColumns = []string{
	"id", "schedule_def_id", "tenant_id", "trigger", "status", "reason",
	"error", "result_ref", "summary", "fetch_attempts",
	"lease_id", "claimed_by", "claimed_at",
	"created_at", "started_at", "completed_at", "updated_at",
}

// StandardJobSelectColumns returns the standard column list for job SELECT queries
func StandardJobSelectColumns() string {
	return strings.Join(jobColumns, ", ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
