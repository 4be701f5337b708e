package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/ledger/internal/application"
	financeapp "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/application/numbering"
	"github.com/erp/ledger/internal/application/projection"
	reportapp "github.com/erp/ledger/internal/application/report"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/eventstore"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/scheduler"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting ledger worker",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("transport", cfg.Event.Transport),
		zap.String("database", cfg.Database.Driver),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log = loggerProvider.Bridge(log, log.Level())
	metrics, err := telemetry.NewLedgerMetrics(meterProvider.Meter("github.com/erp/ledger"))
	if err != nil {
		log.Warn("Failed to create ledger metrics, continuing without", zap.Error(err))
		metrics = telemetry.NewNopLedgerMetrics()
	}

	// Ledger settings
	calendar, err := finance.NewFiscalCalendar(cfg.Ledger.FiscalYearStartMonth)
	if err != nil {
		log.Fatal("Invalid fiscal calendar", zap.Error(err))
	}
	currency, err := valueobject.ParseCurrency(cfg.Ledger.DefaultCurrency)
	if err != nil {
		log.Fatal("Invalid default currency", zap.Error(err))
	}

	// Database
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithDatabaseLogger(log),
		persistence.WithDBTracing(telemetry.DBTracingConfig{
			Enabled:         cfg.Telemetry.DBTraceEnabled,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.Driver == config.DriverSQLite {
		if err := persistence.AutoMigrate(db.DB); err != nil {
			log.Fatal("Failed to migrate sqlite schema", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	// Cache and idempotency
	cacheFactory := cache.NewFactory(cfg.Redis, cfg.Cache,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.App.IsProduction()),
	)
	defer func() {
		if err := cacheFactory.Close(); err != nil {
			log.Error("Error closing Redis client", zap.Error(err))
		}
	}()
	readCache, err := cacheFactory.CreateCache(ctx)
	if err != nil {
		log.Fatal("Failed to create read cache", zap.Error(err))
	}
	defer func() {
		_ = readCache.Close()
	}()
	idempotencyStore, err := cacheFactory.CreateIdempotencyStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	keys := cache.NewKeys(cfg.Cache.KeyPrefix)

	// Event store and repositories
	serializer := event.NewLedgerSerializer()
	store := eventstore.NewGormEventStore(db.DB, serializer, log, eventstore.WithStoreMetrics(metrics))
	retry := eventstore.RetryPolicy{
		MaxAttempts:    cfg.Ledger.MaxConflictRetries,
		InitialBackoff: eventstore.DefaultRetryPolicy().InitialBackoff,
	}
	repoOpts := []eventstore.RepositoryOption{
		eventstore.WithSnapshots(eventstore.NewGormSnapshotStore(db.DB),
			eventstore.NewIntervalSnapshotStrategy(cfg.Ledger.SnapshotInterval)),
		eventstore.WithRetryPolicy(retry),
		eventstore.WithRepositoryLogger(log),
	}
	accountRepo := eventstore.NewAccountRepository(store, repoOpts...)
	invoiceRepo := eventstore.NewInvoiceRepository(store, repoOpts...)
	paymentRepo := eventstore.NewPaymentRepository(store, repoOpts...)
	journalRepo := eventstore.NewJournalRepository(store, repoOpts...)
	periodsRepo := eventstore.NewAccountingPeriodsRepository(store, calendar, repoOpts...)

	// Read model
	failureRepo := persistence.NewGormProjectionFailureRepository(db.DB)
	paymentViews := persistence.NewGormPaymentViewRepository(db.DB)
	readStores := financeapp.ReadStores{
		Accounts:      persistence.NewGormAccountViewRepository(db.DB),
		Invoices:      persistence.NewGormInvoiceViewRepository(db.DB),
		Payments:      paymentViews,
		Journals:      persistence.NewGormJournalViewRepository(db.DB),
		Balances:      persistence.NewGormAccountBalanceRepository(db.DB),
		Summaries:     persistence.NewGormPeriodSummaryRepository(db.DB),
		ClosedPeriods: persistence.NewGormClosedPeriodRepository(db.DB),
	}

	// Application services
	numbers := numbering.New()
	serviceOpts := []financeapp.ServiceOption{
		financeapp.WithValidator(application.DefaultValidator()),
		financeapp.WithRetryPolicy(retry),
		financeapp.WithMetrics(metrics),
		financeapp.WithLogger(log),
		financeapp.WithDefaultCurrency(currency),
	}
	ledger := &ledgerServices{
		Accounts: financeapp.NewAccountService(accountRepo, serviceOpts...),
		Invoices: financeapp.NewInvoiceService(invoiceRepo, calendar, numbers, serviceOpts...),
		Payments: financeapp.NewPaymentService(paymentRepo, invoiceRepo, numbers, failureRepo, serviceOpts...),
		Journals: financeapp.NewJournalService(journalRepo, accountRepo, periodsRepo, calendar, numbers, serviceOpts...),
		Periods:  financeapp.NewPeriodService(periodsRepo, serviceOpts...),
		Queries: financeapp.NewQueryService(readStores, readCache, keys, financeapp.CacheTTL{
			Entity: cfg.Cache.EntityTTL,
			List:   cfg.Cache.ListTTL,
		}),
		Reports: reportapp.NewTrialBalanceService(readStores.Balances, calendar,
			reportapp.WithReportCache(readCache, keys, cfg.Cache.ReportTTL),
			reportapp.WithReportCurrency(currency),
			reportapp.WithReportTolerance(cfg.Ledger.BalanceTolerance),
			reportapp.WithReportMetrics(metrics),
			reportapp.WithReportLogger(log),
		),
	}
	postingSaga := financeapp.NewPostingSaga(accountRepo, journalRepo, failureRepo, serviceOpts...)
	ledger.Reconciliation = reportapp.NewReconciliationService(paymentViews, failureRepo, ledger.Payments, postingSaga, log)

	// Event bus
	busOpts := []event.BusOption{
		event.WithFailureRecorder(failureRepo),
		event.WithDispatchMetrics(metrics),
	}
	var (
		bus      shared.EventBus
		embedded *event.EmbeddedNATSServer
	)
	switch cfg.Event.Transport {
	case config.TransportNATS:
		natsURL := cfg.NATS.URL
		if cfg.NATS.Embedded {
			embedded, err = event.StartEmbeddedNATSServer(cfg.NATS.StoreDir)
			if err != nil {
				log.Fatal("Failed to start embedded NATS server", zap.Error(err))
			}
			natsURL = embedded.URL()
			log.Info("Embedded NATS server started", zap.String("url", natsURL))
		}
		natsBus, err := event.NewNATSEventBus(event.NATSConfig{
			URL:           natsURL,
			StreamName:    cfg.NATS.Stream,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Durable:       cfg.NATS.Durable,
			MaxAge:        cfg.NATS.MaxAge,
		}, serializer, log, busOpts...)
		if err != nil {
			log.Fatal("Failed to create NATS event bus", zap.Error(err))
		}
		bus = natsBus
	default:
		bus = event.NewInMemoryEventBus(log, busOpts...)
	}

	// Handlers see each event once per name even when the transport redelivers
	idempotency := event.WithIdempotencyConfig(shared.IdempotencyConfig{
		Enabled: cfg.Idempotency.Enabled,
		TTL:     cfg.Idempotency.TTL,
	})
	invalidator := projection.NewInvalidator(readCache, keys, log)
	handlers := append(
		[]shared.NamedHandler{postingSaga},
		projection.All(projection.Repositories(readStores), calendar, invalidator, log)...,
	)
	for _, h := range handlers {
		bus.Subscribe(event.NewIdempotentHandler(h, idempotencyStore, log, idempotency))
	}
	log.Info("Event handlers registered", zap.Int("count", len(handlers)))

	// Dispatch from the event log
	catchUp := event.NewCatchUpProcessor(store, bus, eventstore.NewGormCheckpointStore(db.DB), event.CatchUpProcessorConfig{
		Name:         cfg.Event.WorkerName,
		BatchSize:    cfg.Event.BatchSize,
		PollInterval: cfg.Event.PollInterval,
		GapTimeout:   cfg.Event.GapTimeout,
	}, log)
	store.AddNotifier(catchUp)

	sweeper := scheduler.NewReconciliationSweeper(scheduler.SweeperConfig{
		Interval:  cfg.Reconcile.Interval,
		BatchSize: cfg.Reconcile.BatchSize,
	}, ledger.Reconciliation, paymentViews, failureRepo, log)

	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	if err := catchUp.Start(ctx); err != nil {
		log.Fatal("Failed to start catch-up processor", zap.Error(err))
	}
	if cfg.Reconcile.Enabled {
		if err := sweeper.Start(ctx); err != nil {
			log.Fatal("Failed to start reconciliation sweeper", zap.Error(err))
		}
	}
	ledger.logReady(ctx, store, log)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down ledger worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sweeper.Stop(shutdownCtx); err != nil {
		log.Error("Reconciliation sweeper did not stop cleanly", zap.Error(err))
	}
	if err := catchUp.Stop(shutdownCtx); err != nil {
		log.Error("Catch-up processor did not stop cleanly", zap.Error(err))
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus did not stop cleanly", zap.Error(err))
	}
	if embedded != nil {
		embedded.Shutdown()
	}
	stop()
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}

	log.Info("Ledger worker exited gracefully")
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error shutting down logger provider: %v\n", err)
	}
}
