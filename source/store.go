package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/rota/db"
	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/result"
)

// SnapshotStore keeps the last fetched input per schedule.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore creates a snapshot store
func NewSnapshotStore(database *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: database}
}

// Put replaces the schedule's snapshot.
func (s *SnapshotStore) Put(ctx context.Context, scheduleDefID string, snap *Snapshot) error {
	payload, err := json.Marshal(snap.Input)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO source_snapshots (schedule_def_id, fingerprint, payload, rows, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(schedule_def_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			payload = excluded.payload,
			rows = excluded.rows,
			fetched_at = excluded.fetched_at`,
		scheduleDefID, snap.Fingerprint, string(payload), snap.Rows, snap.FetchedAt.UTC())
	if err != nil {
		return errors.Wrapf(err, "store snapshot for %s", scheduleDefID)
	}
	return nil
}

// Get returns the schedule's snapshot or errors.ErrNotFound.
func (s *SnapshotStore) Get(ctx context.Context, scheduleDefID string) (*Snapshot, error) {
	var snap Snapshot
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, payload, rows, fetched_at FROM source_snapshots WHERE schedule_def_id = ?`,
		scheduleDefID).Scan(&snap.Fingerprint, &payload, &snap.Rows, &snap.FetchedAt)
	if err != nil {
		return nil, db.NotFound(err, "snapshot for %s", scheduleDefID)
	}
	if err := json.Unmarshal([]byte(payload), &snap.Input); err != nil {
		return nil, errors.Wrapf(err, "decode snapshot for %s", scheduleDefID)
	}
	return &snap, nil
}

// CachedSchedule is the last successfully published result of a schedule.
type CachedSchedule struct {
	ScheduleDefID string        `json:"schedule_def_id"`
	Fingerprint   string        `json:"fingerprint"`
	Verdict       string        `json:"verdict"`
	Result        result.Result `json:"result"`
	JobID         string        `json:"job_id"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

// Ref is the result_ref recorded on the job that produced the cache entry.
func (c *CachedSchedule) Ref() string {
	fp := c.Fingerprint
	if len(fp) > 12 {
		fp = fp[:12]
	}
	return "cached:" + c.ScheduleDefID + "@" + fp
}

// CachedStore owns cached_schedules.
type CachedStore struct {
	db *sql.DB
}

// NewCachedStore creates a cache store
func NewCachedStore(database *sql.DB) *CachedStore {
	return &CachedStore{db: database}
}

// Put overwrites the cache entry in one statement.
func (s *CachedStore) Put(ctx context.Context, c *CachedSchedule) error {
	payload, err := json.Marshal(c.Result)
	if err != nil {
		return errors.Wrap(err, "encode cached schedule")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cached_schedules (schedule_def_id, fingerprint, verdict, payload, job_id, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(schedule_def_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			verdict = excluded.verdict,
			payload = excluded.payload,
			job_id = excluded.job_id,
			generated_at = excluded.generated_at`,
		c.ScheduleDefID, c.Fingerprint, c.Verdict, string(payload), c.JobID, c.GeneratedAt.UTC())
	if err != nil {
		return errors.Wrapf(err, "store cached schedule for %s", c.ScheduleDefID)
	}
	return nil
}

// Get returns the cache entry or errors.ErrNotFound.
func (s *CachedStore) Get(ctx context.Context, scheduleDefID string) (*CachedSchedule, error) {
	c := CachedSchedule{ScheduleDefID: scheduleDefID}
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, verdict, payload, job_id, generated_at FROM cached_schedules WHERE schedule_def_id = ?`,
		scheduleDefID).Scan(&c.Fingerprint, &c.Verdict, &payload, &c.JobID, &c.GeneratedAt)
	if err != nil {
		return nil, db.NotFound(err, "cached schedule for %s", scheduleDefID)
	}
	if err := json.Unmarshal([]byte(payload), &c.Result); err != nil {
		return nil, errors.Wrapf(err, "decode cached schedule for %s", scheduleDefID)
	}
	return &c, nil
}

// Outcome is the verdict of the last completed solve of a schedule,
// feasible or not. Infeasible verdicts never reach the cache, so this is
// what tells an unchanged infeasible input apart from a new one.
type Outcome struct {
	ScheduleDefID string    `json:"schedule_def_id"`
	Fingerprint   string    `json:"fingerprint"`
	Verdict       string    `json:"verdict"`
	Reason        string    `json:"reason,omitempty"`
	JobID         string    `json:"job_id"`
	SolvedAt      time.Time `json:"solved_at"`
}

// OutcomeStore owns solve_outcomes.
type OutcomeStore struct {
	db *sql.DB
}

// NewOutcomeStore creates an outcome store
func NewOutcomeStore(database *sql.DB) *OutcomeStore {
	return &OutcomeStore{db: database}
}

// Put replaces the schedule's last outcome.
func (s *OutcomeStore) Put(ctx context.Context, o *Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO solve_outcomes (schedule_def_id, fingerprint, verdict, reason, job_id, solved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(schedule_def_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			verdict = excluded.verdict,
			reason = excluded.reason,
			job_id = excluded.job_id,
			solved_at = excluded.solved_at`,
		o.ScheduleDefID, o.Fingerprint, o.Verdict, o.Reason, o.JobID, o.SolvedAt.UTC())
	if err != nil {
		return errors.Wrapf(err, "store solve outcome for %s", o.ScheduleDefID)
	}
	return nil
}

// Get returns the schedule's last outcome or errors.ErrNotFound.
func (s *OutcomeStore) Get(ctx context.Context, scheduleDefID string) (*Outcome, error) {
	o := Outcome{ScheduleDefID: scheduleDefID}
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, verdict, reason, job_id, solved_at FROM solve_outcomes WHERE schedule_def_id = ?`,
		scheduleDefID).Scan(&o.Fingerprint, &o.Verdict, &o.Reason, &o.JobID, &o.SolvedAt)
	if err != nil {
		return nil, db.NotFound(err, "solve outcome for %s", scheduleDefID)
	}
	return &o, nil
}
