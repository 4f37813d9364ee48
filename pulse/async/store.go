package async

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/rota/db"
	"github.com/teranos/rota/errors"
)

// Store handles persistence of schedule jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

// CreateJob inserts a new job into the database. A job rejected before it
// could run is inserted already terminal.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_jobs (
			id, schedule_def_id, tenant_id, trigger, status, reason, error,
			fetch_attempts, created_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ScheduleDefID, job.TenantID, job.Trigger, job.Status, job.Reason, nullString(job.Error),
		job.FetchAttempts, job.CreatedAt.UTC(), utcPtr(job.CompletedAt), job.UpdatedAt.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+StandardJobSelectColumns()+` FROM schedule_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, db.NotFound(err, "job %s", id)
	}
	return job, nil
}

// UpdateJob writes every mutable column of job. Moving a second job of the
// same schedule to running violates idx_schedule_jobs_one_running and is
// reported as errors.ErrConflict. Rows that are already terminal are left
// untouched and ErrJobFinished is returned.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	var summary sql.NullString
	if len(job.Summary) > 0 {
		summary = sql.NullString{String: string(job.Summary), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE schedule_jobs
		SET status = ?,
		    reason = ?,
		    error = ?,
		    result_ref = ?,
		    summary = ?,
		    fetch_attempts = ?,
		    lease_id = ?,
		    claimed_by = ?,
		    claimed_at = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
		  AND status NOT IN ('completed', 'failed', 'cancelled')`,
		job.Status,
		job.Reason,
		nullString(job.Error),
		nullString(job.ResultRef),
		summary,
		job.FetchAttempts,
		nullString(job.LeaseID),
		nullString(job.ClaimedBy),
		utcPtr(job.ClaimedAt),
		utcPtr(job.StartedAt),
		utcPtr(job.CompletedAt),
		job.UpdatedAt.UTC(),
		job.ID,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return errors.Mark(errors.Wrapf(err, "job %s: schedule %s already has a running job", job.ID, job.ScheduleDefID),
				errors.ErrConflict)
		}
		return errors.Wrap(err, "failed to update job")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.unchanged(ctx, job.ID)
	}
	return nil
}

// unchanged explains an UPDATE that matched no row.
func (s *Store) unchanged(ctx context.Context, id string) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM schedule_jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError("job %s", id)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read job %s", id)
	}
	return errors.Wrapf(ErrJobFinished, "job %s is %s", id, status)
}

// ClaimNext marks the oldest unclaimed queued job as claimed by workerID and
// returns it, or nil when the queue is empty. The claim is one UPDATE, so
// two workers never claim the same job. Status stays queued until the
// executor holds the schedule's lease.
func (s *Store) ClaimNext(ctx context.Context, workerID string) (*Job, error) {
	now := time.Now().UTC()
	var id string
	err := s.db.QueryRowContext(ctx, `
		UPDATE schedule_jobs
		SET claimed_by = ?, claimed_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM schedule_jobs
			WHERE status = 'queued' AND claimed_by IS NULL
			ORDER BY created_at, id
			LIMIT 1
		)
		RETURNING id`,
		workerID, now, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim job")
	}
	return s.GetJob(ctx, id)
}

// ClaimJob claims one specific queued job. It returns nil when the job is
// already claimed or no longer queued.
func (s *Store) ClaimJob(ctx context.Context, id, workerID string) (*Job, error) {
	now := time.Now().UTC()
	var claimed string
	err := s.db.QueryRowContext(ctx, `
		UPDATE schedule_jobs
		SET claimed_by = ?, claimed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'queued' AND claimed_by IS NULL
		RETURNING id`,
		workerID, now, now, id).Scan(&claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to claim job %s", id)
	}
	return s.GetJob(ctx, claimed)
}

// ReleaseStaleClaims returns claimed-but-never-started jobs to the queue
// when their claim is older than cutoff (the claiming worker died).
func (s *Store) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedule_jobs
		SET claimed_by = NULL, claimed_at = NULL, updated_at = ?
		WHERE status = 'queued' AND claimed_by IS NOT NULL AND claimed_at < ?`,
		time.Now().UTC(), cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "failed to release stale claims")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(n), nil
}

// ListFilter narrows ListJobs. Zero values match everything.
type ListFilter struct {
	ScheduleDefID string
	Status        JobStatus
	Limit         int
}

// ListJobs returns jobs newest first
func (s *Store) ListJobs(ctx context.Context, f ListFilter) ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + ` FROM schedule_jobs WHERE 1 = 1`
	var args []interface{}
	if f.ScheduleDefID != "" {
		query += ` AND schedule_def_id = ?`
		args = append(args, f.ScheduleDefID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()
	return scanJobs(rows, "jobs")
}

// scanJobs is a helper that scans multiple jobs from query rows
func scanJobs(rows *sql.Rows, what string) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", what)
	}
	return jobs, nil
}

// FindActiveJob returns the queued or running job of a schedule, or nil.
func (s *Store) FindActiveJob(ctx context.Context, scheduleDefID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+StandardJobSelectColumns()+`
		FROM schedule_jobs
		WHERE schedule_def_id = ?
		  AND status IN ('queued', 'running')
		ORDER BY created_at DESC
		LIMIT 1`, scheduleDefID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No active job found - this is not an error
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active job")
	}
	return job, nil
}

// QueueStats counts jobs by status
type QueueStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// GetStats returns queue statistics
func (s *Store) GetStats(ctx context.Context) (*QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM schedule_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	stats := &QueueStats{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		switch JobStatus(status) {
		case JobStatusQueued:
			stats.Queued = n
		case JobStatusRunning:
			stats.Running = n
		case JobStatusCompleted:
			stats.Completed = n
		case JobStatusFailed:
			stats.Failed = n
		case JobStatusCancelled:
			stats.Cancelled = n
		}
		stats.Total += n
	}
	return stats, rows.Err()
}

func utcPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
