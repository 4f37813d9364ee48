package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(-1))
}

func TestInitialize(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev })

	require.NoError(t, Initialize(true, VerbosityInfo))
	assert.True(t, JSONOutput)
	assert.NotNil(t, Logger)

	require.NoError(t, Initialize(false, VerbosityDebug))
	assert.False(t, JSONOutput)
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, FieldsFromContext(ctx))

	ctx = WithJobID(ctx, "job-1")
	ctx = WithScheduleDefID(ctx, "ward-a")
	ctx = WithComponent(ctx, "orchestrator")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{
		FieldJobID, "job-1",
		FieldScheduleDefID, "ward-a",
		FieldComponent, "orchestrator",
	}, fields)
}

func TestFromContextAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := WithJobID(context.Background(), "job-7")
	FromContext(ctx, base).Infow("Job running", FieldStatus, "running")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Job running", entry.Message)
	assert.Equal(t, "job-7", entry.ContextMap()[FieldJobID])
	assert.Equal(t, "running", entry.ContextMap()[FieldStatus])
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewNop().Sugar()
	assert.Same(t, l, OrNop(l))
}
