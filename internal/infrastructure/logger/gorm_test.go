package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

var _ gormlogger.Interface = (*GormLogger)(nil)

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_LogMode(t *testing.T) {
	gormLog := NewGormLogger(zap.NewNop(), gormlogger.Info, WithSlowThreshold(time.Second))
	clone, ok := gormLog.LogMode(gormlogger.Silent).(*GormLogger)
	require.True(t, ok)

	assert.Equal(t, gormlogger.Info, gormLog.logLevel)
	assert.Equal(t, gormlogger.Silent, clone.logLevel)
	assert.Equal(t, time.Second, clone.slowThreshold)
}

func TestGormLogger_Trace(t *testing.T) {
	tests := []struct {
		name      string
		level     gormlogger.LogLevel
		opts      []GormLoggerOption
		begin     time.Time
		err       error
		wantMsg   string
		wantLevel zapcore.Level
	}{
		{name: "query at info", level: gormlogger.Info, begin: time.Now(), wantMsg: "sql", wantLevel: zapcore.DebugLevel},
		{name: "query below info is dropped", level: gormlogger.Warn, begin: time.Now()},
		{name: "silent drops errors", level: gormlogger.Silent, begin: time.Now(), err: errors.New("boom")},
		{name: "error", level: gormlogger.Error, begin: time.Now(), err: errors.New("boom"), wantMsg: "sql error", wantLevel: zapcore.ErrorLevel},
		{name: "not found ignored by default", level: gormlogger.Error, begin: time.Now(), err: gormlogger.ErrRecordNotFound},
		{
			name:      "not found logged on request",
			level:     gormlogger.Error,
			opts:      []GormLoggerOption{WithIgnoreRecordNotFoundError(false)},
			begin:     time.Now(),
			err:       gormlogger.ErrRecordNotFound,
			wantMsg:   "sql error",
			wantLevel: zapcore.ErrorLevel,
		},
		{
			name:      "slow",
			level:     gormlogger.Warn,
			opts:      []GormLoggerOption{WithSlowThreshold(10 * time.Millisecond)},
			begin:     time.Now().Add(-time.Second),
			wantMsg:   "slow sql",
			wantLevel: zapcore.WarnLevel,
		},
		{
			name:  "zero threshold disables slow logging",
			level: gormlogger.Warn,
			opts:  []GormLoggerOption{WithSlowThreshold(0)},
			begin: time.Now().Add(-time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			gormLog := NewGormLogger(zap.New(core), tt.level, tt.opts...)

			gormLog.Trace(context.Background(), tt.begin, statement("SELECT * FROM ledger_events", 3), tt.err)

			if tt.wantMsg == "" {
				assert.Zero(t, recorded.Len())
				return
			}
			require.Equal(t, 1, recorded.Len())
			entry := recorded.All()[0]
			assert.Equal(t, tt.wantMsg, entry.Message)
			assert.Equal(t, tt.wantLevel, entry.Level)
			assert.Equal(t, "gorm", entry.LoggerName)
			assert.Equal(t, "SELECT * FROM ledger_events", entry.ContextMap()["sql"])
			assert.Equal(t, int64(3), entry.ContextMap()["rows"])
		})
	}
}

func TestGormLogger_UsesEventLoggerFromContext(t *testing.T) {
	base, baseLogs := observer.New(zapcore.DebugLevel)
	scoped, scopedLogs := observer.New(zapcore.DebugLevel)
	gormLog := NewGormLogger(zap.New(base), gormlogger.Info)

	event := testEvent()
	ctx, _ := ForEvent(context.Background(), zap.New(scoped), event)
	gormLog.Trace(ctx, time.Now(), statement("UPDATE invoice_views SET status = 'APPROVED'", 1), nil)

	assert.Zero(t, baseLogs.Len())
	require.Equal(t, 1, scopedLogs.Len())
	assert.Equal(t, event.ID.String(), scopedLogs.All()[0].ContextMap()["event_id"])
}

func TestGormLogger_Messages(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gormLog := NewGormLogger(zap.New(core), gormlogger.Warn)
	ctx := context.Background()

	gormLog.Info(ctx, "hidden %d", 1)
	gormLog.Warn(ctx, "retrying %s", "migration")
	gormLog.Error(ctx, "failed %s", "insert")

	require.Equal(t, 2, recorded.Len())
	assert.Equal(t, "retrying migration", recorded.All()[0].Message)
	assert.Equal(t, "failed insert", recorded.All()[1].Message)
}

func TestMapGormLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"debug", gormlogger.Info},
		{"unknown", gormlogger.Warn},
		{"", gormlogger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapGormLogLevel(tt.level))
		})
	}
}
