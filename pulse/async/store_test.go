package async

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/rota/errors"
	rotatest "github.com/teranos/rota/internal/testing"
)

// ============================================================================
// Night Ward Store Test Universe
// ============================================================================
//
// Characters:
//   - Matron: files the requests for new rotas
//   - Porter: carries jobs between the queue and the workers
//   - Owl: the night watch, only shows up for time-based checks
// ============================================================================

func mustJob(t *testing.T, def string, trigger TriggerKind) *Job {
	t.Helper()
	job, err := NewJob(def, "t1", trigger)
	require.NoError(t, err)
	return job
}

func TestStore_CreateAndGetJob(t *testing.T) {
	db := rotatest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	job := mustJob(t, "ward-a", TriggerManual)
	require.NoError(t, store.CreateJob(ctx, job))
	t.Logf("Matron filed request %s", job.ID)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "ward-a", got.ScheduleDefID)
	assert.Equal(t, TriggerManual, got.Trigger)
	assert.Equal(t, JobStatusQueued, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.Empty(t, got.ClaimedBy)
	assert.WithinDuration(t, job.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = store.GetJob(ctx, "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStore_UpdateJob(t *testing.T) {
	db := rotatest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	job := mustJob(t, "ward-a", TriggerManual)
	require.NoError(t, store.CreateJob(ctx, job))

	job.Start("lease-1")
	job.FetchAttempts = 3
	require.NoError(t, store.UpdateJob(ctx, job))
	job.Complete("cached:ward-a@0123", json.RawMessage(`{"verdict":"OPTIMAL"}`))
	require.NoError(t, store.UpdateJob(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, got.Status)
	assert.Equal(t, 3, got.FetchAttempts)
	assert.Equal(t, "lease-1", got.LeaseID)
	assert.Equal(t, "cached:ward-a@0123", got.ResultRef)
	assert.JSONEq(t, `{"verdict":"OPTIMAL"}`, string(got.Summary))
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)

	ghost := mustJob(t, "ward-a", TriggerManual)
	assert.True(t, errors.IsNotFoundError(store.UpdateJob(ctx, ghost)))
}

func TestStore_TerminalJobIsNotRewritten(t *testing.T) {
	db := rotatest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	job := mustJob(t, "ward-a", TriggerManual)
	require.NoError(t, store.CreateJob(ctx, job))
	job.Start("lease-1")
	require.NoError(t, store.UpdateJob(ctx, job))

	stale := *job
	job.Complete("cached:ward-a@0123", nil)
	require.NoError(t, store.UpdateJob(ctx, job))

	stale.Fail(ReasonTimeout, errors.New("lease expired"))
	err := store.UpdateJob(ctx, &stale)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobFinished), "got %v", err)
	assert.False(t, errors.IsNotFoundError(err))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, got.Status)
	assert.Equal(t, "cached:ward-a@0123", got.ResultRef)
	assert.Empty(t, got.Reason)
	assert.Empty(t, got.Error)
}

func TestStore_OneRunningJobPerSchedule(t *testing.T) {
	db := rotatest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	first := mustJob(t, "ward-a", TriggerManual)
	second := mustJob(t, "ward-a", TriggerPeriodic)
	otherWard := mustJob(t, "ward-b", TriggerManual)
	for _, j := range []*Job{first, second, otherWard} {
		require.NoError(t, store.CreateJob(ctx, j))
	}

	first.Start("lease-1")
	require.NoError(t, store.UpdateJob(ctx, first))

	second.Start("lease-2")
	err := store.UpdateJob(ctx, second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict), "got %v", err)

	otherWard.Start("lease-3")
	assert.NoError(t, store.UpdateJob(ctx, otherWard))
}

func TestStore_ClaimNextOldestFirst(t *testing.T) {
	db := rotatest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	older := mustJob(t, "ward-a", TriggerManual)
	older.CreatedAt = older.CreatedAt.Add(-time.Minute)
	newer := mustJob(t, "ward-b", TriggerManual)
	require.NoError(t, store.CreateJob(ctx, newer))
	require.NoError(t, store.CreateJob(ctx, older))

	t.Log("Porter takes the oldest request first")
	got, err := store.ClaimNext(ctx, "porter-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, older.ID, got.ID)
	assert.Equal(t, "porter-1", got.ClaimedBy)
	assert.Equal(t, JobStatusQueued, got.Status, "claim keeps the job queued")

	got, err = store.ClaimNext(ctx, "porter-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)

	got, err = store.ClaimNext(ctx, "porter-3")
	require.NoError(t, err)
	assert.Nil(t, got, "nothing left to claim")

	again, err := store.ClaimJob(ctx, older.ID, "porter-3")
	require.NoError(t, err)
	assert.Nil(t, again, "already claimed")
}

func TestStore_ReleaseStaleClaims(t *testing.T) {
	db := rotatest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	job := mustJob(t, "ward-a", TriggerManual)
	require.NoError(t, store.CreateJob(ctx, job))
	_, err := store.ClaimNext(ctx, "porter-1")
	require.NoError(t, err)

	t.Log("Owl checks the night's claims")
	n, err := store.ReleaseStaleClaims(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "fresh claims are kept")

	n, err = store.ReleaseStaleClaims(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.ClaimNext(ctx, "porter-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "porter-2", got.ClaimedBy)
}

func TestStore_ListAndFindActive(t *testing.T) {
	db := rotatest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	done := mustJob(t, "ward-a", TriggerManual)
	done.CreatedAt = done.CreatedAt.Add(-time.Hour)
	require.NoError(t, store.CreateJob(ctx, done))
	done.Complete("", nil)
	require.NoError(t, store.UpdateJob(ctx, done))

	active, err := store.FindActiveJob(ctx, "ward-a")
	require.NoError(t, err)
	assert.Nil(t, active)

	queued := mustJob(t, "ward-a", TriggerAuto)
	require.NoError(t, store.CreateJob(ctx, queued))
	require.NoError(t, store.CreateJob(ctx, mustJob(t, "ward-b", TriggerManual)))

	active, err = store.FindActiveJob(ctx, "ward-a")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, queued.ID, active.ID)

	jobs, err := store.ListJobs(ctx, ListFilter{ScheduleDefID: "ward-a"})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, queued.ID, jobs[0].ID, "newest first")

	jobs, err = store.ListJobs(ctx, ListFilter{Status: JobStatusQueued, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Queued)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 3, stats.Total)
}

func TestStore_SurfacesDatabaseErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)
	ctx := context.Background()

	mock.ExpectQuery("UPDATE schedule_jobs").WillReturnError(errors.New("disk I/O error"))
	_, err = store.ClaimNext(ctx, "porter-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to claim job")

	mock.ExpectExec("INSERT INTO schedule_jobs").WillReturnError(errors.New("database is locked"))
	err = store.CreateJob(ctx, mustJob(t, "ward-a", TriggerManual))
	assert.Contains(t, err.Error(), "failed to create job")

	require.NoError(t, mock.ExpectationsWereMet())
}
