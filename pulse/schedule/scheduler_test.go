package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/rota/pulse/async"
	"github.com/teranos/rota/rota"
)

func TestReloadBuildsEntries(t *testing.T) {
	w := newWard(
		def("ward-a", "0 6 * * *"),
		def("ward-b", ""),
		def("ward-c", "not a cron"),
	)
	s := NewScheduler(w, w, w, SchedulerConfig{DefaultCron: "0 */4 * * *"}, nil)
	ctx := context.Background()

	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, 2, s.Len(), "invalid expression is skipped")

	spec, ok := s.Spec("ward-a")
	require.True(t, ok)
	assert.Equal(t, "0 6 * * *", spec)
	spec, ok = s.Spec("ward-b")
	require.True(t, ok)
	assert.Equal(t, "0 */4 * * *", spec, "falls back to the default")
	_, ok = s.Spec("ward-c")
	assert.False(t, ok)

	// ward-a changes its expression, ward-b goes inactive
	w.set(func(w *ward) { w.defs = []*rota.Definition{def("ward-a", "30 6 * * *")} })
	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, 1, s.Len())
	spec, _ = s.Spec("ward-a")
	assert.Equal(t, "30 6 * * *", spec)
}

func TestEmptyDefaultDisablesPeriodicRuns(t *testing.T) {
	w := newWard(def("ward-a", ""), def("ward-b", "@daily"))
	s := NewScheduler(w, w, w, SchedulerConfig{}, nil)

	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Next("ward-a").IsZero())
}

func TestRunNowRecordsBusySchedulesAsConflicts(t *testing.T) {
	w := newWard(def("ward-a", ""))
	s := NewScheduler(w, w, w, SchedulerConfig{}, nil)
	ctx := context.Background()

	jobID, err := s.RunNow(ctx, "ward-a")
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	w.set(func(w *ward) { w.active["ward-a"] = true })
	jobID, err = s.RunNow(ctx, "ward-a")
	require.NoError(t, err)
	assert.Equal(t, "job-2", jobID)

	calls := w.dispatched()
	require.Len(t, calls, 2)
	assert.Equal(t, async.TriggerPeriodic, calls[0].trigger)
	assert.Empty(t, calls[0].rejected)
	assert.Equal(t, async.TriggerPeriodic, calls[1].trigger)
	assert.Equal(t, "busy", calls[1].rejected)
}

func TestCronEntryFires(t *testing.T) {
	w := newWard(def("ward-a", "@every 1s"))
	s := NewScheduler(w, w, w, SchedulerConfig{Location: time.UTC}, nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.False(t, s.Next("ward-a").IsZero())
	require.Eventually(t, func() bool { return len(w.dispatched()) > 0 }, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, "ward-a", w.dispatched()[0].def)
}
