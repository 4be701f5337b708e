package main

import (
	"context"

	financeapp "github.com/erp/ledger/internal/application/finance"
	reportapp "github.com/erp/ledger/internal/application/report"
	"github.com/erp/ledger/internal/infrastructure/eventstore"
	"go.uber.org/zap"
)

// ledgerServices is the application layer assembled by main. The worker
// itself only drives the saga and repair paths; the services are the
// entry points an embedding transport calls.
type ledgerServices struct {
	Accounts       *financeapp.AccountService
	Invoices       *financeapp.InvoiceService
	Payments       *financeapp.PaymentService
	Journals       *financeapp.JournalService
	Periods        *financeapp.PeriodService
	Queries        *financeapp.QueryService
	Reports        *reportapp.TrialBalanceService
	Reconciliation *reportapp.ReconciliationService
}

// logReady reports the log head the catch-up processor is working towards
func (l *ledgerServices) logReady(ctx context.Context, store *eventstore.GormEventStore, log *zap.Logger) {
	head, err := store.HeadPosition(ctx)
	if err != nil {
		log.Warn("Failed to read event log head", zap.Error(err))
		return
	}
	log.Info("Ledger worker ready",
		zap.Int64("log_head", head),
		zap.Bool("reconcile", l.Reconciliation != nil),
	)
}
