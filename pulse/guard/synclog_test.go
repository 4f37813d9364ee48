package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rotatest "github.com/teranos/rota/internal/testing"
)

func TestSyncLogs(t *testing.T) {
	logs := NewSyncLogs(rotatest.CreateTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	latest, err := logs.Latest(ctx, "ward-a")
	require.NoError(t, err)
	assert.Nil(t, latest)

	for i, ok := range []bool{false, false, true} {
		entry := &SyncLog{
			ScheduleDefID: "ward-a",
			TenantID:      "t1",
			JobID:         "job-1",
			Type:          SyncFetch,
			TriggeredBy:   "manual",
			Attempt:       i + 1,
			Success:       ok,
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}
		if !ok {
			entry.Error = "source unavailable: 503"
		}
		require.NoError(t, logs.Record(ctx, entry))
		assert.NotZero(t, entry.ID)
	}
	require.NoError(t, logs.Record(ctx, &SyncLog{
		ScheduleDefID: "ward-b", TenantID: "t1", Type: SyncPublish, Success: true,
		CreatedAt: base.Add(-48 * time.Hour),
	}))

	latest, err = logs.Latest(ctx, "ward-a")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 3, latest.Attempt)
	assert.True(t, latest.Success)
	assert.Empty(t, latest.Error)

	recent, err := logs.ListRecent(ctx, "ward-a", 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "source unavailable: 503", recent[2].Error)

	all, err := logs.ListRecent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	logs.now = func() time.Time { return base }
	pruned, err := logs.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	pruned, err = logs.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, pruned, "zero retention keeps everything")
}
