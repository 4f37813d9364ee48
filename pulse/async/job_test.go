package async

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/rota/errors"
)

func TestNewJob(t *testing.T) {
	job, err := NewJob("ward-a", "t1", TriggerManual)
	require.NoError(t, err)
	assert.Len(t, job.ID, 36)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, TriggerManual, job.Trigger)
	assert.False(t, job.CreatedAt.IsZero())

	other, err := NewJob("ward-a", "t1", TriggerManual)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, other.ID)

	_, err = NewJob("", "t1", TriggerManual)
	assert.Error(t, err)
	_, err = NewJob("ward-a", "t1", "cron")
	assert.Error(t, err)
}

func TestJobStateTransitions(t *testing.T) {
	job, err := NewJob("ward-a", "t1", TriggerAuto)
	require.NoError(t, err)

	job.Start("lease-1")
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.Equal(t, "lease-1", job.LeaseID)
	require.NotNil(t, job.StartedAt)
	assert.False(t, job.Status.Terminal())

	job.Complete("cached:ward-a@abc", json.RawMessage(`{"verdict":"OPTIMAL"}`))
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.True(t, job.Status.Terminal())
	require.NotNil(t, job.CompletedAt)
	assert.GreaterOrEqual(t, job.Duration().Nanoseconds(), int64(0))

	failed, _ := NewJob("ward-a", "t1", TriggerManual)
	failed.Fail(ReasonSourceFormat, errors.New("tab \"Shifts\": missing required column \"headcount\""))
	assert.Equal(t, JobStatusFailed, failed.Status)
	assert.Equal(t, ReasonSourceFormat, failed.Reason)
	assert.Contains(t, failed.Error, "headcount")

	cancelled, _ := NewJob("ward-a", "t1", TriggerAuto)
	cancelled.Cancel(ReasonConflict, "schedule busy")
	assert.Equal(t, JobStatusCancelled, cancelled.Status)
	assert.Equal(t, ReasonConflict, cancelled.Reason)

	requeued, _ := NewJob("ward-a", "t1", TriggerManual)
	requeued.ClaimedBy = "w1"
	requeued.Start("lease-2")
	startedAt := requeued.StartedAt.Format(time.RFC3339)
	requeued.Requeue(context.Canceled)
	assert.Equal(t, JobStatusQueued, requeued.Status)
	assert.Empty(t, requeued.LeaseID)
	assert.Empty(t, requeued.ClaimedBy)
	assert.Nil(t, requeued.StartedAt)
	assert.Contains(t, requeued.Error, "started "+startedAt)
	assert.Contains(t, requeued.Error, "on w1")
	assert.Contains(t, requeued.Error, "lease-2")
	assert.Contains(t, requeued.Error, "context canceled")
	assert.Empty(t, requeued.Reason)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"nil", nil, ""},
		{"invalid input", errors.NewInvalidInput("roster is empty"), ReasonInvalidInput},
		{"source format", errors.NewSourceFormat("bad header"), ReasonSourceFormat},
		{"source unavailable", errors.SourceUnavailable(errors.New("503"), "read"), ReasonSourceUnavailable},
		{"conflict", errors.Mark(errors.New("busy"), errors.ErrConflict), ReasonConflict},
		{"deadline", errors.Wrap(context.DeadlineExceeded, "fetch"), ReasonTimeout},
		{"timeout beats source class", errors.SourceUnavailable(context.DeadlineExceeded, "read"), ReasonTimeout},
		{"wrapped twice", errors.Wrap(errors.Wrap(errors.NewSourceFormat("x"), "a"), "b"), ReasonSourceFormat},
		{"anything else", errors.New("nil pointer"), ReasonInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}

	assert.True(t, ReasonSourceUnavailable.Retryable())
	assert.False(t, ReasonSourceFormat.Retryable())
	assert.False(t, ReasonInvalidInput.Retryable())
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValidStatus("cancelled"))
	assert.False(t, IsValidStatus("paused"))
	assert.True(t, IsValidTrigger("periodic"))
	assert.False(t, IsValidTrigger(""))
}
