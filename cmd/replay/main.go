// Command replay rebuilds read-model projections from the event log.
//
//	replay                                  rebuild every projection
//	replay -projection account_balances     rebuild one projection (repeatable)
//	replay -stream <tenant>::Invoice-<id>   re-dispatch one stream without a reset
//	replay -list                            print the projection names
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/erp/ledger/internal/application/projection"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/eventstore"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

// projectionFlag collects repeated or comma separated -projection values
type projectionFlag []string

func (p *projectionFlag) String() string {
	return strings.Join(*p, ",")
}

func (p *projectionFlag) Set(value string) error {
	for _, name := range strings.Split(value, ",") {
		if name = strings.TrimSpace(name); name != "" {
			*p = append(*p, name)
		}
	}
	return nil
}

func main() {
	var (
		names    projectionFlag
		streamID string
		list     bool
		logLevel string
	)
	flag.Var(&names, "projection", "Projection to rebuild, repeatable (default: all)")
	flag.StringVar(&streamID, "stream", "", "Re-dispatch a single stream, e.g. <tenant>::Invoice-<id>")
	flag.BoolVar(&list, "list", false, "List projection names and exit")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	if list {
		for _, name := range projection.Names() {
			fmt.Println(name)
		}
		return
	}

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	calendar, err := finance.NewFiscalCalendar(cfg.Ledger.FiscalYearStartMonth)
	if err != nil {
		log.Fatal("Invalid fiscal calendar", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithDatabaseLogger(log))
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

	// Rebuilt rows must not be shadowed by cached reads
	cacheFactory := cache.NewFactory(cfg.Redis, cfg.Cache, cache.WithLogger(log))
	defer func() {
		_ = cacheFactory.Close()
	}()
	readCache, err := cacheFactory.CreateCache(ctx)
	if err != nil {
		log.Fatal("Failed to create read cache", zap.Error(err))
	}
	defer func() {
		_ = readCache.Close()
	}()

	serializer := event.NewLedgerSerializer()
	store := eventstore.NewGormEventStore(db.DB, serializer, log)
	failures := persistence.NewGormProjectionFailureRepository(db.DB)

	all := projection.All(projection.Repositories{
		Accounts:      persistence.NewGormAccountViewRepository(db.DB),
		Invoices:      persistence.NewGormInvoiceViewRepository(db.DB),
		Payments:      persistence.NewGormPaymentViewRepository(db.DB),
		Journals:      persistence.NewGormJournalViewRepository(db.DB),
		Balances:      persistence.NewGormAccountBalanceRepository(db.DB),
		Summaries:     persistence.NewGormPeriodSummaryRepository(db.DB),
		ClosedPeriods: persistence.NewGormClosedPeriodRepository(db.DB),
	}, calendar, projection.NewInvalidator(readCache, cache.NewKeys(cfg.Cache.KeyPrefix), log), log)

	handlers, err := projection.Select(all, names...)
	if err != nil {
		log.Fatal("Invalid projection", zap.Error(err), zap.Strings("known", projection.Names()))
	}

	replayer := event.NewReplayer(store, persistence.NewGormProjectionResetter(db.DB), log,
		event.WithFailureRecorder(failures))

	started := time.Now()
	var n int
	if streamID != "" {
		stream, err := event.ParseStream(streamID)
		if err != nil {
			log.Fatal("Invalid stream id", zap.Error(err))
		}
		n, err = replayer.RebuildStream(ctx, stream, handlers...)
		if err != nil {
			log.Fatal("Stream replay failed", zap.Error(err))
		}
	} else {
		n, err = replayer.Rebuild(ctx, handlers...)
		if err != nil {
			log.Fatal("Rebuild failed", zap.Error(err))
		}
	}

	log.Info("Replay finished",
		zap.Int("events", n),
		zap.Int("projections", len(handlers)),
		zap.Duration("elapsed", time.Since(started)),
	)
}
