package guard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
	"github.com/teranos/rota/rota"
	"github.com/teranos/rota/solver"
	"github.com/teranos/rota/source"
)

// StaleReason explains a Staleness verdict.
type StaleReason string

const (
	StaleNoCache            StaleReason = "no_cache"
	StaleFingerprintChanged StaleReason = "fingerprint_changed"
	StaleFresh              StaleReason = "fresh"
	// StaleInfeasibleUnchanged: the last solve of exactly this input found
	// no valid schedule. Solving it again would give the same verdict.
	StaleInfeasibleUnchanged StaleReason = "infeasible_unchanged"
	// StaleRunning: a run holds the schedule's lease, so the source was not
	// fetched. That run will refresh the cache itself.
	StaleRunning StaleReason = "running"
)

// releaseTimeout bounds the lease release after the check's context ended.
const releaseTimeout = 10 * time.Second

// staleHolder is the lease holder recorded while a staleness fetch runs.
const staleHolder = "staleness-check"

// Staleness compares a schedule's source with its cached result.
type Staleness struct {
	Stale   bool        `json:"stale"`
	Reason  StaleReason `json:"reason"`
	Current string      `json:"current"`
	Cached  string      `json:"cached,omitempty"`
	// FromSnapshot is true when Current came from the stored snapshot
	// instead of a fetch.
	FromSnapshot bool `json:"from_snapshot"`
}

// StaleChecker decides whether a schedule needs regenerating.
type StaleChecker struct {
	guard     *Guard
	adapter   source.Adapter
	snapshots *source.SnapshotStore
	cache     *source.CachedStore
	outcomes  *source.OutcomeStore
	syncLogs  *SyncLogs
	maxAge    time.Duration
	now       func() time.Time
	logger    *zap.SugaredLogger
}

// NewStaleChecker creates a checker. Snapshots younger than maxAge stand in
// for a fetch; maxAge 0 always fetches. A fetch holds the schedule's lease
// from g while it writes the snapshot and sync log. outcomes may be nil.
func NewStaleChecker(g *Guard, adapter source.Adapter, snapshots *source.SnapshotStore, cache *source.CachedStore,
	outcomes *source.OutcomeStore, syncLogs *SyncLogs, maxAge time.Duration, log *zap.SugaredLogger) *StaleChecker {
	return &StaleChecker{
		guard:     g,
		adapter:   adapter,
		snapshots: snapshots,
		cache:     cache,
		outcomes:  outcomes,
		syncLogs:  syncLogs,
		maxAge:    maxAge,
		now:       time.Now,
		logger:    logger.OrNop(log).Named("stale"),
	}
}

// IsStale reports whether def's current source fingerprint differs from the
// fingerprint of its cached result. An input whose last solve was
// infeasible is not stale until it changes.
func (c *StaleChecker) IsStale(ctx context.Context, def *rota.Definition) (Staleness, error) {
	current, fromSnapshot, err := c.currentFingerprint(ctx, def)
	if errors.Is(err, ErrBusy) {
		c.logger.Debugw("Staleness check skipped, schedule is running",
			logger.FieldScheduleDefID, def.ID,
			logger.FieldError, err)
		return Staleness{Reason: StaleRunning}, nil
	}
	if err != nil {
		return Staleness{}, err
	}
	st := Staleness{Current: current, FromSnapshot: fromSnapshot}

	cached, err := c.cache.Get(ctx, def.ID)
	switch {
	case errors.IsNotFoundError(err):
		st.Stale, st.Reason = true, StaleNoCache
	case err != nil:
		return Staleness{}, err
	case cached.Fingerprint != current:
		st.Stale, st.Reason, st.Cached = true, StaleFingerprintChanged, cached.Fingerprint
	default:
		st.Reason, st.Cached = StaleFresh, cached.Fingerprint
	}

	if st.Stale && c.outcomes != nil {
		last, err := c.outcomes.Get(ctx, def.ID)
		switch {
		case errors.IsNotFoundError(err):
		case err != nil:
			return Staleness{}, err
		case last.Fingerprint == current && last.Verdict == string(solver.StatusInfeasible):
			st.Stale, st.Reason = false, StaleInfeasibleUnchanged
		}
	}

	c.logger.Debugw("Staleness checked",
		logger.FieldScheduleDefID, def.ID,
		logger.FieldReason, st.Reason,
		logger.FieldFingerprint, current,
		"from_snapshot", fromSnapshot)
	return st, nil
}

func (c *StaleChecker) currentFingerprint(ctx context.Context, def *rota.Definition) (string, bool, error) {
	if c.maxAge > 0 {
		snap, err := c.snapshots.Get(ctx, def.ID)
		switch {
		case err == nil && c.now().Sub(snap.FetchedAt) < c.maxAge:
			return snap.Fingerprint, true, nil
		case err != nil && !errors.IsNotFoundError(err):
			return "", false, err
		}
	}

	lease, err := c.guard.TryAcquire(ctx, def.TenantID, def.ID, staleHolder, "")
	if err != nil {
		return "", false, err
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := c.guard.Release(rctx, lease); err != nil {
			c.logger.Warnw("Failed to release lease",
				logger.FieldScheduleDefID, def.ID,
				logger.FieldLeaseID, lease.ID,
				logger.FieldError, err)
		}
	}()

	snap, err := c.adapter.Fetch(ctx, def)
	entry := &SyncLog{
		ScheduleDefID: def.ID,
		TenantID:      def.TenantID,
		Type:          SyncFetch,
		TriggeredBy:   "staleness_check",
	}
	if err != nil {
		entry.Error = err.Error()
		c.recordSync(ctx, entry)
		return "", false, errors.Wrapf(err, "staleness check for %s", def.ID)
	}
	entry.Success = true
	entry.Fingerprint = snap.Fingerprint
	entry.RowsSynced = snap.Rows
	entry.EmployeesSynced = snap.Employees()
	c.recordSync(ctx, entry)

	if err := c.snapshots.Put(ctx, def.ID, snap); err != nil {
		return "", false, err
	}
	return snap.Fingerprint, false, nil
}

func (c *StaleChecker) recordSync(ctx context.Context, entry *SyncLog) {
	if c.syncLogs == nil {
		return
	}
	if err := c.syncLogs.Record(ctx, entry); err != nil {
		c.logger.Warnw("Failed to record sync log",
			logger.FieldScheduleDefID, entry.ScheduleDefID,
			logger.FieldError, err)
	}
}
