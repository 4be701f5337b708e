package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// LedgerMetrics counts event store, dispatch and projection activity.
// A nil *LedgerMetrics records nothing.
type LedgerMetrics struct {
	eventsAppended     *Counter
	conflicts          *Counter
	eventsDispatched   *Counter
	projectionFailures *Counter
	sagaFailures       *Counter

	projectionLatency    *Histogram
	trialBalanceDuration *Histogram
}

// NewLedgerMetrics creates the ledger instruments on the given meter.
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &LedgerMetrics{}
	var err error

	if m.eventsAppended, err = NewCounter(meter,
		"ledger_events_appended_total",
		"Total number of events appended to the event store",
		"{events}",
	); err != nil {
		return nil, err
	}
	if m.conflicts, err = NewCounter(meter,
		"ledger_concurrency_conflicts_total",
		"Total number of optimistic concurrency conflicts",
		"{conflicts}",
	); err != nil {
		return nil, err
	}
	if m.eventsDispatched, err = NewCounter(meter,
		"ledger_events_dispatched_total",
		"Total number of events delivered to handlers",
		"{events}",
	); err != nil {
		return nil, err
	}
	if m.projectionFailures, err = NewCounter(meter,
		"ledger_projection_failures_total",
		"Total number of failed projection handler invocations",
		"{failures}",
	); err != nil {
		return nil, err
	}
	if m.sagaFailures, err = NewCounter(meter,
		"ledger_saga_failures_total",
		"Total number of failed secondary saga steps",
		"{failures}",
	); err != nil {
		return nil, err
	}
	if m.projectionLatency, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_projection_duration_seconds",
		Description: "Time spent by one projection handler on one event",
		Unit:        "s",
		Boundaries:  SmallDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.trialBalanceDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_trial_balance_duration_seconds",
		Description: "Time spent building a trial balance on a cache miss",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// NewNopLedgerMetrics returns metrics backed by the no-op meter
func NewNopLedgerMetrics() *LedgerMetrics {
	m, _ := NewLedgerMetrics(noop.NewMeterProvider().Meter("ledger"))
	return m
}

// RecordAppend counts events appended to one stream
func (m *LedgerMetrics) RecordAppend(ctx context.Context, aggregateType string, count int) {
	if m == nil {
		return
	}
	m.eventsAppended.Add(ctx, int64(count), AttrAggregateType.String(aggregateType))
}

// RecordConflict counts an optimistic concurrency conflict
func (m *LedgerMetrics) RecordConflict(ctx context.Context, aggregateType string) {
	if m == nil {
		return
	}
	m.conflicts.Inc(ctx, AttrAggregateType.String(aggregateType))
}

// RecordDispatched counts an event handed to the bus
func (m *LedgerMetrics) RecordDispatched(ctx context.Context, eventType, transport string) {
	if m == nil {
		return
	}
	m.eventsDispatched.Inc(ctx, AttrEventType.String(eventType), AttrTransport.String(transport))
}

// RecordProjectionFailure counts a handler failure
func (m *LedgerMetrics) RecordProjectionFailure(ctx context.Context, handler, eventType string) {
	if m == nil {
		return
	}
	m.projectionFailures.Inc(ctx, AttrHandler.String(handler), AttrEventType.String(eventType))
}

// RecordProjectionLatency records how long a handler took
func (m *LedgerMetrics) RecordProjectionLatency(ctx context.Context, handler string, d time.Duration) {
	if m == nil {
		return
	}
	m.projectionLatency.RecordDuration(ctx, d, AttrHandler.String(handler))
}

// RecordSagaFailure counts a failed secondary saga step
func (m *LedgerMetrics) RecordSagaFailure(ctx context.Context, saga string) {
	if m == nil {
		return
	}
	m.sagaFailures.Inc(ctx, AttrSaga.String(saga))
}

// RecordTrialBalanceDuration records the build time of a trial balance
func (m *LedgerMetrics) RecordTrialBalanceDuration(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.trialBalanceDuration.RecordDuration(ctx, d)
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
