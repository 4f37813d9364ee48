// Package guard keeps at most one pipeline run per schedule and decides
// whether a schedule's cached result still matches its source.
//
// Leases live in SQLite so every worker process sees the same view. A lease
// past its expiry belongs to a crashed or stuck run; the next acquirer
// force-expires it and records an anomaly instead of waiting.
package guard

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/rota/db"
	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
)

var (
	// ErrBusy is returned by TryAcquire when another run holds the schedule.
	ErrBusy = errors.Mark(errors.New("schedule is busy"), errors.ErrConflict)

	// ErrLeaseLost is returned by Release when the lease was force-expired
	// (and possibly re-acquired by someone else) before the holder let go.
	ErrLeaseLost = errors.New("lease lost")
)

// DefaultTTL matches the default maximum run duration of a job.
const DefaultTTL = 15 * time.Minute

// Lease is a held claim on one schedule.
type Lease struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	ScheduleDefID string    `json:"schedule_def_id"`
	Holder        string    `json:"holder"`
	JobID         string    `json:"job_id"`
	AcquiredAt    time.Time `json:"acquired_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ExpiredLease is a lease that was force-expired. JobID names the run that
// never released it.
type ExpiredLease struct {
	Lease
	DetectedAt time.Time `json:"detected_at"`
}

// Guard owns sync_leases and lease_anomalies.
type Guard struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	logger *zap.SugaredLogger
}

// New creates a guard whose leases expire after ttl (DefaultTTL when zero).
func New(database *sql.DB, ttl time.Duration, log *zap.SugaredLogger) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{
		db:     database,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.OrNop(log).Named("guard"),
	}
}

// TTL is the lifetime of a newly acquired lease.
func (g *Guard) TTL() time.Duration {
	return g.ttl
}

// TryAcquire takes the schedule's lease for holder without blocking. It
// returns ErrBusy when an unexpired lease exists.
func (g *Guard) TryAcquire(ctx context.Context, tenantID, scheduleDefID, holder, jobID string) (*Lease, error) {
	now := g.now().UTC()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() // Rollback if not committed

	current, err := scanLease(tx.QueryRowContext(ctx, `SELECT `+leaseColumns+`
		FROM sync_leases WHERE tenant_id = ? AND schedule_def_id = ?`,
		tenantID, scheduleDefID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, errors.Wrapf(err, "failed to read lease for %s", scheduleDefID)
	case current.ExpiresAt.After(now):
		return nil, errors.WithDetail(ErrBusy, "held by "+current.Holder+" for job "+current.JobID)
	default:
		if err := expire(ctx, tx, current, now); err != nil {
			return nil, err
		}
		g.logAnomaly(current, now)
	}

	lease := &Lease{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		ScheduleDefID: scheduleDefID,
		Holder:        holder,
		JobID:         jobID,
		AcquiredAt:    now,
		ExpiresAt:     now.Add(g.ttl),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_leases (tenant_id, schedule_def_id, lease_id, holder, job_id, acquired_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lease.TenantID, lease.ScheduleDefID, lease.ID, lease.Holder, lease.JobID, lease.AcquiredAt, lease.ExpiresAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrBusy
		}
		return nil, errors.Wrapf(err, "failed to insert lease for %s", scheduleDefID)
	}
	if err := tx.Commit(); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrBusy
		}
		return nil, errors.Wrap(err, "failed to commit lease")
	}

	g.logger.Debugw("Lease acquired",
		logger.FieldScheduleDefID, scheduleDefID,
		logger.FieldLeaseID, lease.ID,
		logger.FieldHolder, holder,
		logger.FieldJobID, jobID)
	return lease, nil
}

// Release gives the lease back. Releasing a lease that was force-expired
// returns ErrLeaseLost; the row of whoever took over is left alone.
func (g *Guard) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	res, err := g.db.ExecContext(ctx, `DELETE FROM sync_leases WHERE lease_id = ?`, lease.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to release lease %s", lease.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if n == 0 {
		return errors.Wrapf(ErrLeaseLost, "lease %s on %s", lease.ID, lease.ScheduleDefID)
	}
	return nil
}

// Held reports whether an unexpired lease exists for the schedule.
func (g *Guard) Held(ctx context.Context, tenantID, scheduleDefID string) (bool, error) {
	var n int
	err := g.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sync_leases
		WHERE tenant_id = ? AND schedule_def_id = ? AND expires_at > ?`,
		tenantID, scheduleDefID, g.now().UTC()).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check lease for %s", scheduleDefID)
	}
	return n > 0, nil
}

// ExpireStale force-expires every lease past its expiry and returns them.
func (g *Guard) ExpireStale(ctx context.Context) ([]ExpiredLease, error) {
	now := g.now().UTC()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+leaseColumns+` FROM sync_leases WHERE expires_at <= ?`, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list expired leases")
	}
	var stale []*Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "failed to scan lease")
		}
		stale = append(stale, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "error iterating leases")
	}
	rows.Close()

	expired := make([]ExpiredLease, 0, len(stale))
	for _, l := range stale {
		if err := expire(ctx, tx, l, now); err != nil {
			return nil, err
		}
		expired = append(expired, ExpiredLease{Lease: *l, DetectedAt: now})
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit expired leases")
	}

	for _, l := range stale {
		g.logAnomaly(l, now)
	}
	return expired, nil
}

// Anomalies lists recorded force-expiries for a schedule, newest first.
func (g *Guard) Anomalies(ctx context.Context, scheduleDefID string) ([]ExpiredLease, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT lease_id, tenant_id, schedule_def_id, job_id, holder, acquired_at, expired_at, detected_at
		FROM lease_anomalies WHERE schedule_def_id = ?
		ORDER BY detected_at DESC, id DESC`, scheduleDefID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list lease anomalies for %s", scheduleDefID)
	}
	defer rows.Close()

	var out []ExpiredLease
	for rows.Next() {
		var a ExpiredLease
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ScheduleDefID, &a.JobID, &a.Holder,
			&a.AcquiredAt, &a.ExpiresAt, &a.DetectedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan lease anomaly")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (g *Guard) logAnomaly(l *Lease, now time.Time) {
	g.logger.Warnw("Force-expired lease past its deadline",
		logger.FieldScheduleDefID, l.ScheduleDefID,
		logger.FieldLeaseID, l.ID,
		logger.FieldHolder, l.Holder,
		logger.FieldJobID, l.JobID,
		"overdue", now.Sub(l.ExpiresAt).Round(time.Second))
}

// expire records the anomaly and deletes the lease inside tx.
func expire(ctx context.Context, tx *sql.Tx, l *Lease, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO lease_anomalies (lease_id, tenant_id, schedule_def_id, job_id, holder, acquired_at, expired_at, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.TenantID, l.ScheduleDefID, l.JobID, l.Holder, l.AcquiredAt.UTC(), l.ExpiresAt.UTC(), now)
	if err != nil {
		return errors.Wrapf(err, "failed to record anomaly for lease %s", l.ID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_leases WHERE lease_id = ?`, l.ID); err != nil {
		return errors.Wrapf(err, "failed to expire lease %s", l.ID)
	}
	return nil
}

const leaseColumns = `lease_id, tenant_id, schedule_def_id, holder, job_id, acquired_at, expires_at`

func scanLease(row interface{ Scan(...interface{}) error }) (*Lease, error) {
	var l Lease
	if err := row.Scan(&l.ID, &l.TenantID, &l.ScheduleDefID, &l.Holder, &l.JobID, &l.AcquiredAt, &l.ExpiresAt); err != nil {
		return nil, err
	}
	return &l, nil
}
