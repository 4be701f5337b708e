// Package finance implements the ledger's command services, its
// cross-aggregate sagas and the cached read queries.
package finance

import (
	"context"

	"github.com/erp/ledger/internal/application"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/eventstore"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ServiceOption configures the command services
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	validator *application.Validator
	clock     shared.Clock
	retry     eventstore.RetryPolicy
	metrics   *telemetry.LedgerMetrics
	logger    *zap.Logger
	currency  valueobject.Currency
}

func newServiceOptions(opts []ServiceOption) serviceOptions {
	o := serviceOptions{
		validator: application.DefaultValidator(),
		clock:     shared.SystemClock{},
		retry:     eventstore.DefaultRetryPolicy(),
		metrics:   telemetry.NewNopLedgerMetrics(),
		logger:    zap.NewNop(),
		currency:  valueobject.DefaultCurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithValidator sets the command validator
func WithValidator(v *application.Validator) ServiceOption {
	return func(o *serviceOptions) {
		o.validator = v
	}
}

// WithClock sets the clock used for command timestamps
func WithClock(clock shared.Clock) ServiceOption {
	return func(o *serviceOptions) {
		o.clock = clock
	}
}

// WithRetryPolicy sets how often conflicting commands are retried
func WithRetryPolicy(policy eventstore.RetryPolicy) ServiceOption {
	return func(o *serviceOptions) {
		o.retry = policy
	}
}

// WithMetrics sets the metrics sink for saga failures
func WithMetrics(metrics *telemetry.LedgerMetrics) ServiceOption {
	return func(o *serviceOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithDefaultCurrency sets the currency used when a command names none
func WithDefaultCurrency(currency valueobject.Currency) ServiceOption {
	return func(o *serviceOptions) {
		o.currency = currency
	}
}

// currencyOr parses code, falling back to the configured default when empty
func (o serviceOptions) currencyOr(code string) (valueobject.Currency, error) {
	if code == "" {
		return o.currency, nil
	}
	c, err := valueobject.ParseCurrency(code)
	if err != nil {
		return "", finance.ErrInvalidCurrency.WithDetail("currency", code)
	}
	return c, nil
}

// money builds a Money from a command amount
func money(amount decimal.Decimal, currency valueobject.Currency) (valueobject.Money, error) {
	m, err := valueobject.NewMoney(amount, currency)
	if err != nil {
		return valueobject.Money{}, finance.ErrInvalidAmount.WithDetail("amount", amount.String())
	}
	return m, nil
}

// optionalMoney builds a Money from an optional command amount
func optionalMoney(amount *decimal.Decimal, currency valueobject.Currency) (*valueobject.Money, error) {
	if amount == nil {
		return nil, nil
	}
	m, err := money(*amount, currency)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// execute loads an aggregate, applies fn and saves the new events. The whole
// cycle is retried on concurrency conflicts with a fresh load each time. A
// command that raises no event is not saved.
func execute[T shared.AggregateRoot](
	ctx context.Context,
	policy eventstore.RetryPolicy,
	load func(ctx context.Context) (T, error),
	save func(ctx context.Context, agg T) error,
	fn func(agg T) error,
) (application.CommandResult, error) {
	var result application.CommandResult
	err := eventstore.RetryOnConflict(ctx, policy, func(ctx context.Context) error {
		agg, err := load(ctx)
		if err != nil {
			return err
		}
		if err := fn(agg); err != nil {
			return err
		}
		count := len(agg.UncommittedEvents())
		if count > 0 {
			if err := save(ctx, agg); err != nil {
				return err
			}
		}
		result = application.ResultOf(agg, count)
		return nil
	})
	return result, err
}

// create saves a freshly created aggregate
func create[T shared.AggregateRoot](ctx context.Context, save func(ctx context.Context, agg T) error, agg T) (application.CommandResult, error) {
	count := len(agg.UncommittedEvents())
	if err := save(ctx, agg); err != nil {
		return application.CommandResult{}, err
	}
	return application.ResultOf(agg, count), nil
}
