package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return NewFromCore(core), logs
}

func TestFromContext_StampsTraceAndActor(t *testing.T) {
	log, logs := observed()
	actor := id.New()

	ctx := WithLogger(context.Background(), log)
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", RequestID: "r-1"})
	ctx = appctx.WithActor(ctx, actor)

	Warn(ctx, "stock out rejected", "item_id", "i-1")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "stock out rejected", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, actor.String(), fields["actor_id"])
	assert.Equal(t, "i-1", fields["item_id"])
	assert.NotContains(t, fields, "span_id", "empty ids are skipped")
}

func TestFromContext_Plain(t *testing.T) {
	log, logs := observed()
	ctx := WithLogger(context.Background(), log.WithComponent("worker"))

	Info(ctx, "reconcile sweep finished")
	Error(ctx, "incident not recorded")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, map[string]any{"component": "worker"}, logs.All()[0].ContextMap())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	log, err := New(Config{Level: "loud", Service: "stockledger-test", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.True(t, log.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))
}
