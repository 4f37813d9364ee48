package guard

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/rota/errors"
)

// SyncType distinguishes reads of the data source from writes to it.
type SyncType string

const (
	SyncFetch   SyncType = "fetch"
	SyncPublish SyncType = "publish"
)

// SyncLog is one attempt to talk to a schedule's data source.
type SyncLog struct {
	ID              int64     `json:"id"`
	ScheduleDefID   string    `json:"schedule_def_id"`
	TenantID        string    `json:"tenant_id"`
	JobID           string    `json:"job_id,omitempty"` // empty for staleness checks
	Type            SyncType  `json:"sync_type"`
	TriggeredBy     string    `json:"triggered_by"`
	Attempt         int       `json:"attempt"`
	Fingerprint     string    `json:"fingerprint,omitempty"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	RowsSynced      int       `json:"rows_synced"`
	EmployeesSynced int       `json:"employees_synced"`
	CreatedAt       time.Time `json:"created_at"`
}

// SyncLogs owns sync_logs.
type SyncLogs struct {
	db  *sql.DB
	now func() time.Time
}

// NewSyncLogs creates a sync log store
func NewSyncLogs(database *sql.DB) *SyncLogs {
	return &SyncLogs{db: database, now: time.Now}
}

// Record appends entry, stamping CreatedAt when unset.
func (s *SyncLogs) Record(ctx context.Context, entry *SyncLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if entry.Attempt == 0 {
		entry.Attempt = 1
	}
	var errText sql.NullString
	if entry.Error != "" {
		errText = sql.NullString{String: entry.Error, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_logs (
			schedule_def_id, tenant_id, job_id, sync_type, triggered_by, attempt,
			fingerprint, success, error, rows_synced, employees_synced, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ScheduleDefID, entry.TenantID, entry.JobID, entry.Type, entry.TriggeredBy, entry.Attempt,
		entry.Fingerprint, entry.Success, errText, entry.RowsSynced, entry.EmployeesSynced, entry.CreatedAt.UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to record %s sync for %s", entry.Type, entry.ScheduleDefID)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// Latest returns the newest entry for the schedule, or nil when there is none.
func (s *SyncLogs) Latest(ctx context.Context, scheduleDefID string) (*SyncLog, error) {
	logs, err := s.ListRecent(ctx, scheduleDefID, 1)
	if err != nil || len(logs) == 0 {
		return nil, err
	}
	return logs[0], nil
}

// ListRecent returns up to limit entries for the schedule, newest first.
// An empty scheduleDefID lists across schedules.
func (s *SyncLogs) ListRecent(ctx context.Context, scheduleDefID string, limit int) ([]*SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, schedule_def_id, tenant_id, job_id, sync_type, triggered_by, attempt,
		fingerprint, success, error, rows_synced, employees_synced, created_at
		FROM sync_logs`
	args := []interface{}{}
	if scheduleDefID != "" {
		query += ` WHERE schedule_def_id = ?`
		args = append(args, scheduleDefID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sync logs")
	}
	defer rows.Close()

	var out []*SyncLog
	for rows.Next() {
		var l SyncLog
		var errText sql.NullString
		if err := rows.Scan(&l.ID, &l.ScheduleDefID, &l.TenantID, &l.JobID, &l.Type, &l.TriggeredBy, &l.Attempt,
			&l.Fingerprint, &l.Success, &errText, &l.RowsSynced, &l.EmployeesSynced, &l.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan sync log")
		}
		l.Error = errText.String
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating sync logs")
	}
	return out, nil
}

// Prune deletes entries older than retention and returns how many went.
func (s *SyncLogs) Prune(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-retention).UTC()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune sync logs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(n), nil
}
