package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEventRow struct {
	ID       uint   `gorm:"primaryKey"`
	StreamID string `gorm:"size:100"`
	Version  int64
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&testEventRow{}))
	return db
}

func setupSpanRecorder(t *testing.T) (*trace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, sr
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestDBTracingPlugin_RegisterOtelGorm(t *testing.T) {
	tests := []struct {
		name string
		cfg  DBTracingConfig
	}{
		{"disabled", DefaultDBTracingConfig()},
		{"enabled", DBTracingConfig{Enabled: true, DBSystem: "sqlite"}},
		{"enabled with full sql", DBTracingConfig{Enabled: true, LogFullSQL: true, DBSystem: "sqlite"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			plugin := NewDBTracingPlugin(tt.cfg, zap.NewNop())

			require.NoError(t, plugin.RegisterOtelGorm(db))

			var rows []testEventRow
			assert.NoError(t, db.Find(&rows).Error)
		})
	}
}

func TestDBTracingPlugin_DoubleRegistration(t *testing.T) {
	db := setupTestDB(t)
	plugin := NewDBTracingPlugin(DBTracingConfig{Enabled: true, DBSystem: "sqlite"}, zap.NewNop())

	require.NoError(t, plugin.RegisterOtelGorm(db))
	assert.Error(t, plugin.RegisterOtelGorm(db))
}

func TestDBTracingPlugin_AfterQuery(t *testing.T) {
	t.Run("annotates table and rows affected", func(t *testing.T) {
		db := setupTestDB(t)
		tp, sr := setupSpanRecorder(t)
		plugin := NewDBTracingPlugin(DBTracingConfig{SlowQueryThresh: time.Hour}, zap.NewNop())
		require.NoError(t, plugin.registerCallbacks(db))

		ctx, span := tp.Tracer("test").Start(context.Background(), "append")
		require.NoError(t, db.WithContext(ctx).Create(&testEventRow{StreamID: "s-1", Version: 1}).Error)
		span.End()

		spans := sr.Ended()
		require.Len(t, spans, 1)
		attrs := make(map[string]interface{})
		for _, attr := range spans[0].Attributes() {
			attrs[string(attr.Key)] = attr.Value.AsInterface()
		}
		assert.Equal(t, int64(1), attrs["db.rows_affected"])
		assert.Equal(t, "test_event_rows", attrs["db.sql.table"])
		assert.NotContains(t, attrs, "db.slow_query")
	})

	t.Run("flags slow queries", func(t *testing.T) {
		db := setupTestDB(t)
		tp, sr := setupSpanRecorder(t)
		core, logs := observer.New(zap.WarnLevel)
		plugin := NewDBTracingPlugin(DBTracingConfig{SlowQueryThresh: time.Nanosecond}, zap.New(core))
		require.NoError(t, plugin.registerCallbacks(db))

		ctx, span := tp.Tracer("test").Start(context.Background(), "load")
		var rows []testEventRow
		require.NoError(t, db.WithContext(ctx).Find(&rows).Error)
		span.End()

		spans := sr.Ended()
		require.Len(t, spans, 1)
		found := false
		for _, attr := range spans[0].Attributes() {
			if attr.Key == "db.slow_query" && attr.Value.AsBool() {
				found = true
			}
		}
		assert.True(t, found)
		require.NotEmpty(t, spans[0].Events())
		assert.Equal(t, "slow_query_warning", spans[0].Events()[0].Name)

		slow := logs.FilterMessage("Slow query").All()
		require.NotEmpty(t, slow)
		assert.Equal(t, span.SpanContext().TraceID().String(), slow[0].ContextMap()["trace_id"])
		assert.Equal(t, "test_event_rows", slow[0].ContextMap()["table"])
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		db := setupTestDB(t)
		tp, sr := setupSpanRecorder(t)
		plugin := NewDBTracingPlugin(DBTracingConfig{SlowQueryThresh: time.Hour}, zap.NewNop())
		require.NoError(t, plugin.registerCallbacks(db))

		ctx, span := tp.Tracer("test").Start(context.Background(), "find")
		var row testEventRow
		err := db.WithContext(ctx).First(&row, 99999).Error
		span.End()

		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
		spans := sr.Ended()
		require.Len(t, spans, 1)
		assert.NotEqual(t, codes.Error, spans[0].Status().Code)
	})

	t.Run("no span in context", func(t *testing.T) {
		db := setupTestDB(t)
		plugin := NewDBTracingPlugin(DBTracingConfig{SlowQueryThresh: time.Nanosecond}, zap.NewNop())
		require.NoError(t, plugin.registerCallbacks(db))

		var rows []testEventRow
		assert.NoError(t, db.WithContext(context.Background()).Find(&rows).Error)
	})
}
