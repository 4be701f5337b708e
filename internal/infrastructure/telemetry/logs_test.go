package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerProvider_Disabled(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), LogsConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.Shutdown(context.Background()))

	log := zap.NewNop()
	assert.Same(t, log, lp.Bridge(log, zapcore.InfoLevel))
}

func TestLoggerProvider_BridgeTeesToOriginalCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	lp := &LoggerProvider{
		provider: sdklog.NewLoggerProvider(),
		logger:   zap.NewNop(),
		config:   LogsConfig{Enabled: true, ServiceName: "ledger-test"},
	}
	defer func() {
		_ = lp.Shutdown(context.Background())
	}()

	bridged := lp.Bridge(zap.New(core), zapcore.WarnLevel)
	bridged.Info("posted", zap.String("journal", "J-1"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "posted", logs.All()[0].Message)
}

func TestLevelFilterCore(t *testing.T) {
	inner, _ := observer.New(zapcore.DebugLevel)
	core := &levelFilterCore{Core: inner, minLevel: zapcore.WarnLevel}

	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))
	assert.Nil(t, core.Check(zapcore.Entry{Level: zapcore.DebugLevel}, nil))

	with := core.With([]zapcore.Field{zap.String("k", "v")})
	assert.False(t, with.Enabled(zapcore.InfoLevel))
}
