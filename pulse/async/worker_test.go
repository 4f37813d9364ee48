package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/rota/errors"
	rotatest "github.com/teranos/rota/internal/testing"
)

// ============================================================================
// Night Ward Worker Test Universe
// ============================================================================
//
// Characters:
//   - Nightingale: executor that finishes every rota it is handed
//   - Sisyphus: executor that fails every rota
//   - Owl: maintenance, wakes up once per interval
// ============================================================================

type nightingale struct {
	queue *Queue
	mu    sync.Mutex
	seen  []string
	fail  bool
}

func (n *nightingale) Execute(ctx context.Context, job *Job) error {
	n.mu.Lock()
	n.seen = append(n.seen, job.ID)
	n.mu.Unlock()

	job.Start("lease-" + job.ID[:8])
	if err := n.queue.UpdateJob(ctx, job); err != nil {
		return err
	}
	if n.fail {
		err := errors.NewSourceFormat("tab %q is empty", "Roster")
		job.Fail(ClassifyError(err), err)
		if uerr := n.queue.UpdateJob(ctx, job); uerr != nil {
			return uerr
		}
		return err
	}
	job.Complete("cached:"+job.ScheduleDefID, nil)
	return n.queue.UpdateJob(ctx, job)
}

func (n *nightingale) executed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.seen...)
}

func testPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      2,
		PollInterval: 10 * time.Millisecond,
		StopTimeout:  time.Second,
	}
}

func TestWorkerPool_ProcessNextRunsOneJob(t *testing.T) {
	db := rotatest.CreateTestDB(t)
	queue := NewQueue(db)
	ctx := context.Background()
	exec := &nightingale{queue: queue}
	pool := NewWorkerPool(ctx, queue, exec, testPoolConfig(), nil)

	processed, err := pool.ProcessNext(ctx, pool.WorkerID(0))
	require.NoError(t, err)
	assert.False(t, processed, "empty queue")

	job := mustJob(t, "ward-a", TriggerManual)
	require.NoError(t, queue.Enqueue(ctx, job))

	processed, err = pool.ProcessNext(ctx, pool.WorkerID(0))
	require.NoError(t, err)
	assert.True(t, processed)

	got, err := queue.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, got.Status)
	assert.Equal(t, pool.WorkerID(0), got.ClaimedBy)
	assert.Contains(t, got.ClaimedBy, "/w0")

	n, active := pool.Stats()
	assert.Equal(t, 1, n)
	assert.Zero(t, active)
}

func TestWorkerPool_FailuresStayOnTheJob(t *testing.T) {
	db := rotatest.CreateTestDB(t)
	queue := NewQueue(db)
	ctx := context.Background()
	exec := &nightingale{queue: queue, fail: true}
	pool := NewWorkerPool(ctx, queue, exec, testPoolConfig(), nil)

	job := mustJob(t, "ward-a", TriggerPeriodic)
	require.NoError(t, queue.Enqueue(ctx, job))

	processed, err := pool.ProcessNext(ctx, pool.WorkerID(1))
	require.NoError(t, err, "executor errors are not pool errors")
	assert.True(t, processed)

	got, err := queue.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Equal(t, ReasonSourceFormat, got.Reason)
	t.Logf("Sisyphus left the job as %s (%s): %s", got.Status, got.Reason, got.Error)
}

func TestWorkerPool_DrainsQueue(t *testing.T) {
	db := rotatest.CreateTestDB(t)
	queue := NewQueue(db)
	ctx := context.Background()
	exec := &nightingale{queue: queue}

	var ids []string
	for _, def := range []string{"ward-a", "ward-b", "ward-c", "ward-d"} {
		job := mustJob(t, def, TriggerManual)
		require.NoError(t, queue.Enqueue(ctx, job))
		ids = append(ids, job.ID)
	}

	pool := NewWorkerPool(ctx, queue, exec, testPoolConfig(), nil)
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		stats, err := queue.GetStats(ctx)
		return err == nil && stats.Completed == len(ids)
	}, 5*time.Second, 20*time.Millisecond)

	assert.ElementsMatch(t, ids, exec.executed(), "each job executed exactly once")
}

func TestWorkerPool_MaintenanceRunsOnStart(t *testing.T) {
	db := rotatest.CreateTestDB(t)
	queue := NewQueue(db)
	ctx := context.Background()

	var rounds atomic.Int32
	cfg := testPoolConfig()
	cfg.MaintenanceInterval = 20 * time.Millisecond
	pool := NewWorkerPool(ctx, queue, &nightingale{queue: queue}, cfg, nil)
	pool.SetMaintenance(func(ctx context.Context) error {
		rounds.Add(1)
		return nil
	})

	pool.Start()
	t.Log("Owl does a round before the first worker starts")
	assert.GreaterOrEqual(t, rounds.Load(), int32(1), "maintenance runs before workers start")
	require.Eventually(t, func() bool { return rounds.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	pool.Stop()

	after := rounds.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, rounds.Load(), "stopped pool runs no maintenance")
}

func TestWorkerPool_Restart(t *testing.T) {
	db := rotatest.CreateTestDB(t)
	queue := NewQueue(db)
	ctx := context.Background()
	exec := &nightingale{queue: queue}
	pool := NewWorkerPool(ctx, queue, exec, testPoolConfig(), nil)

	pool.Start()
	pool.Stop()

	job := mustJob(t, "ward-a", TriggerManual)
	require.NoError(t, queue.Enqueue(ctx, job))

	pool.Start()
	defer pool.Stop()
	require.Eventually(t, func() bool {
		got, err := queue.GetJob(ctx, job.ID)
		return err == nil && got.Status == JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}
