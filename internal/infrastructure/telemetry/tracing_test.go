package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs an in-memory span recorder as the global provider.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})

	return sr
}

func attrMap(span sdktrace.ReadOnlySpan) map[string]interface{} {
	m := make(map[string]interface{})
	for _, attr := range span.Attributes() {
		m[string(attr.Key)] = attr.Value.AsInterface()
	}
	return m
}

func TestStartSpan(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, span := telemetry.StartSpan(context.Background(), "journal.post",
		telemetry.WithAttribute("journal_type", "GJ"),
	)
	require.NotNil(t, span)
	assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "journal.post", spans[0].Name())
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())
	assert.Equal(t, "GJ", attrMap(spans[0])["journal_type"])
}

func TestStartStreamSpan(t *testing.T) {
	sr := setupTestTracer(t)

	tenantID, invoiceID := uuid.New().String(), uuid.New().String()
	_, span := telemetry.StartStreamSpan(context.Background(), "save", tenantID, "Invoice", invoiceID,
		telemetry.WithAttribute("event_count", 2),
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "eventstore.save", spans[0].Name())
	attrs := attrMap(spans[0])
	assert.Equal(t, tenantID, attrs["tenant_id"])
	assert.Equal(t, "Invoice", attrs["aggregate_type"])
	assert.Equal(t, invoiceID, attrs["aggregate_id"])
	assert.Equal(t, int64(2), attrs["event_count"])
}

func TestStartHandlerSpan(t *testing.T) {
	sr := setupTestTracer(t)

	aggregateID := uuid.New().String()
	_, span := telemetry.StartHandlerSpan(context.Background(), "account_view", "AccountOpened", aggregateID)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "handle.AccountOpened", spans[0].Name())
	assert.Equal(t, trace.SpanKindConsumer, spans[0].SpanKind())

	attrs := attrMap(spans[0])
	assert.Equal(t, "account_view", attrs["handler"])
	assert.Equal(t, "AccountOpened", attrs["event_type"])
	assert.Equal(t, aggregateID, attrs["aggregate_id"])
}

func TestSetAttributes(t *testing.T) {
	tests := []struct {
		name      string
		keyValues []interface{}
		wantLen   int
	}{
		{"pairs", []interface{}{"invoice_id", "INV-1", "line_count", 3}, 2},
		{"orphan key ignored", []interface{}{"k1", "v1", "orphan"}, 1},
		{"non string key skipped", []interface{}{"valid", "v", 123, "skipped"}, 1},
		{"mixed types", []interface{}{
			"string", "value",
			"int64", int64(100),
			"float64", 3.14,
			"bool", true,
			"string_slice", []string{"a", "b"},
		}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := setupTestTracer(t)

			_, span := telemetry.StartSpan(context.Background(), "test.operation")
			telemetry.SetAttributes(span, tt.keyValues...)
			span.End()

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Len(t, spans[0].Attributes(), tt.wantLen)
		})
	}
}

func TestSetAttributes_Stringer(t *testing.T) {
	sr := setupTestTracer(t)

	tenantID := uuid.New()
	_, span := telemetry.StartSpan(context.Background(), "test.operation")
	telemetry.SetAttributes(span, "tenant_id", tenantID)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, tenantID.String(), attrMap(spans[0])["tenant_id"])
}

func TestRecordError(t *testing.T) {
	t.Run("sets error status", func(t *testing.T) {
		sr := setupTestTracer(t)

		_, span := telemetry.StartSpan(context.Background(), "test.operation")
		telemetry.RecordError(span, errors.New("concurrency conflict"))
		span.End()

		spans := sr.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		assert.Equal(t, "concurrency conflict", spans[0].Status().Description)
		require.NotEmpty(t, spans[0].Events())
		assert.Equal(t, "exception", spans[0].Events()[0].Name)
	})

	t.Run("nil error is ignored", func(t *testing.T) {
		sr := setupTestTracer(t)

		_, span := telemetry.StartSpan(context.Background(), "test.operation")
		telemetry.RecordError(span, nil)
		span.End()

		spans := sr.Ended()
		require.Len(t, spans, 1)
		assert.NotEqual(t, codes.Error, spans[0].Status().Code)
	})
}

func TestAddEvent(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "test.operation")
	telemetry.AddEvent(span, "concurrency_retry",
		"aggregate_id", "inv-123",
		"attempt", 2,
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "concurrency_retry", events[0].Name)

	attrs := make(map[string]interface{})
	for _, attr := range events[0].Attributes {
		attrs[string(attr.Key)] = attr.Value.AsInterface()
	}
	assert.Equal(t, "inv-123", attrs["aggregate_id"])
	assert.Equal(t, int64(2), attrs["attempt"])
}

func TestNestedSpans(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, parent := telemetry.StartSpan(context.Background(), "payment.complete")
	_, child := telemetry.StartSpan(ctx, "invoice.record_payment")
	child.End()
	parent.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)

	byName := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range spans {
		byName[s.Name()] = s
	}
	p, c := byName["payment.complete"], byName["invoice.record_payment"]
	require.NotNil(t, p)
	require.NotNil(t, c)
	assert.Equal(t, p.SpanContext().TraceID(), c.SpanContext().TraceID())
	assert.Equal(t, p.SpanContext().SpanID(), c.Parent().SpanID())
}

func TestNilSpanHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		telemetry.RecordError(nil, errors.New("boom"))
		telemetry.SetAttributes(nil, "key", "value")
		telemetry.AddEvent(nil, "event_name", "key", "value")
	})
}
