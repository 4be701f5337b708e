package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// markApplied records that projection applied eventID. It returns false when
// the marker already existed, i.e. the event is a redelivery.
func markApplied(tx *gorm.DB, tenantID uuid.UUID, projection string, eventID uuid.UUID) (bool, error) {
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.AppliedEventModel{
		Projection: projection,
		EventID:    eventID,
		TenantID:   tenantID,
		AppliedAt:  time.Now().UTC(),
	})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark event %s applied: %w", eventID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GormAccountBalanceRepository implements report.AccountBalanceRepository using GORM
type GormAccountBalanceRepository struct {
	db *gorm.DB
}

// NewGormAccountBalanceRepository creates a new GormAccountBalanceRepository
func NewGormAccountBalanceRepository(db *gorm.DB) *GormAccountBalanceRepository {
	return &GormAccountBalanceRepository{db: db}
}

// ApplyDeltas adds each delta to its account's yearly totals in one
// transaction, once per (projection, event)
func (r *GormAccountBalanceRepository) ApplyDeltas(
	ctx context.Context,
	tenantID valueobject.TenantID,
	projection string,
	eventID uuid.UUID,
	deltas []report.AccountBalanceDelta,
) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := markApplied(tx, tenantID.UUID(), projection, eventID)
		if err != nil || !ok {
			return err
		}
		now := time.Now().UTC()
		for _, d := range deltas {
			if err := r.addDelta(tx, tenantID.UUID(), d, now); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// addDelta creates the row when missing, then locks and increments it
func (r *GormAccountBalanceRepository) addDelta(tx *gorm.DB, tenantID uuid.UUID, d report.AccountBalanceDelta, now time.Time) error {
	seed := models.AccountBalanceModel{
		TenantID:        tenantID,
		AccountID:       d.AccountID.UUID(),
		FiscalYear:      d.FiscalYear,
		FiscalYearStart: d.FiscalYearStart,
		DebitTotal:      decimal.Zero,
		CreditTotal:     decimal.Zero,
		UpdatedAt:       now,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return fmt.Errorf("failed to seed account balance: %w", err)
	}

	var current models.AccountBalanceModel
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND account_id = ? AND fiscal_year = ?", tenantID, d.AccountID.UUID(), d.FiscalYear).
		First(&current).Error; err != nil {
		return fmt.Errorf("failed to lock account balance: %w", err)
	}

	return tx.Model(&models.AccountBalanceModel{}).
		Where("tenant_id = ? AND account_id = ? AND fiscal_year = ?", tenantID, d.AccountID.UUID(), d.FiscalYear).
		Updates(map[string]any{
			"debit_total":   current.DebitTotal.Add(d.Debit),
			"credit_total":  current.CreditTotal.Add(d.Credit),
			"posting_count": current.PostingCount + d.Postings,
			"updated_at":    now,
		}).Error
}

// FindByAccount returns one account's totals for a fiscal year
func (r *GormAccountBalanceRepository) FindByAccount(ctx context.Context, tenantID valueobject.TenantID, accountID valueobject.AccountID, fiscalYear string) (*report.AccountBalanceView, error) {
	var model models.AccountBalanceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND account_id = ? AND fiscal_year = ?", tenantID.UUID(), accountID.UUID(), fiscalYear).
		First(&model).Error; err != nil {
		return nil, notFoundOr(err, "account balance")
	}
	return model.ToView(), nil
}

// CumulativeBalances sums every account's activity for all fiscal years
// starting on or before throughStartYear and joins the account's code, name
// and type from account_views. Activity for an account whose view has not
// been projected yet is skipped.
func (r *GormAccountBalanceRepository) CumulativeBalances(ctx context.Context, tenantID valueobject.TenantID, throughStartYear int) ([]finance.AccountBalanceInput, error) {
	var balances []models.AccountBalanceModel
	if err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID.UUID())).
		Where("fiscal_year_start <= ?", throughStartYear).
		Find(&balances).Error; err != nil {
		return nil, fmt.Errorf("failed to load account balances: %w", err)
	}
	if len(balances) == 0 {
		return []finance.AccountBalanceInput{}, nil
	}

	totals := make(map[uuid.UUID]*finance.AccountBalanceInput)
	order := make([]uuid.UUID, 0)
	for _, b := range balances {
		in, ok := totals[b.AccountID]
		if !ok {
			in = &finance.AccountBalanceInput{
				AccountID:   valueobject.AccountID(b.AccountID),
				DebitTotal:  decimal.Zero,
				CreditTotal: decimal.Zero,
			}
			totals[b.AccountID] = in
			order = append(order, b.AccountID)
		}
		in.DebitTotal = in.DebitTotal.Add(b.DebitTotal)
		in.CreditTotal = in.CreditTotal.Add(b.CreditTotal)
	}

	var accounts []models.AccountViewModel
	if err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID.UUID())).
		Where("id IN ?", order).
		Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to load account views: %w", err)
	}
	for i := range accounts {
		in := totals[accounts[i].ID]
		code, err := valueobject.NewAccountCode(accounts[i].Code)
		if err != nil {
			return nil, fmt.Errorf("account view %s: %w", accounts[i].ID, err)
		}
		in.Code = code
		in.Name = accounts[i].Name
		in.Type = finance.AccountType(accounts[i].Type)
	}

	result := make([]finance.AccountBalanceInput, 0, len(order))
	for _, id := range order {
		if in := totals[id]; !in.Code.IsZero() {
			result = append(result, *in)
		}
	}
	return result, nil
}

// GormPeriodSummaryRepository implements report.PeriodSummaryRepository using GORM
type GormPeriodSummaryRepository struct {
	db *gorm.DB
}

// NewGormPeriodSummaryRepository creates a new GormPeriodSummaryRepository
func NewGormPeriodSummaryRepository(db *gorm.DB) *GormPeriodSummaryRepository {
	return &GormPeriodSummaryRepository{db: db}
}

// ApplyDelta adds the delta to the period's summary once per (projection, event)
func (r *GormPeriodSummaryRepository) ApplyDelta(
	ctx context.Context,
	tenantID valueobject.TenantID,
	projection string,
	eventID uuid.UUID,
	delta report.PeriodSummaryDelta,
) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := markApplied(tx, tenantID.UUID(), projection, eventID)
		if err != nil || !ok {
			return err
		}

		now := time.Now().UTC()
		seed := models.NewPeriodSummaryModel(tenantID.UUID(), delta.FiscalPeriod, delta.FiscalYear)
		seed.UpdatedAt = now
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
			return fmt.Errorf("failed to seed period summary: %w", err)
		}

		var current models.PeriodSummaryModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND fiscal_period = ?", tenantID.UUID(), delta.FiscalPeriod).
			First(&current).Error; err != nil {
			return fmt.Errorf("failed to lock period summary: %w", err)
		}
		current.Add(delta)

		if err := tx.Model(&models.PeriodSummaryModel{}).
			Where("tenant_id = ? AND fiscal_period = ?", tenantID.UUID(), delta.FiscalPeriod).
			Updates(map[string]any{
				"invoiced_amount":   current.InvoicedAmount,
				"subtotal":          current.Subtotal,
				"vat_amount":        current.VATAmount,
				"zero_rated_amount": current.ZeroRatedAmount,
				"exempt_amount":     current.ExemptAmount,
				"duty_amount":       current.DutyAmount,
				"advance_tax":       current.AdvanceTax,
				"paid_amount":       current.PaidAmount,
				"invoice_count":     current.InvoiceCount,
				"payment_count":     current.PaymentCount,
				"cancelled_count":   current.CancelledCount,
				"updated_at":        now,
			}).Error; err != nil {
			return fmt.Errorf("failed to update period summary: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// FindByPeriod returns the summary of one fiscal period
func (r *GormPeriodSummaryRepository) FindByPeriod(ctx context.Context, tenantID valueobject.TenantID, fiscalPeriod string) (*report.PeriodSummaryView, error) {
	var model models.PeriodSummaryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND fiscal_period = ?", tenantID.UUID(), fiscalPeriod).
		First(&model).Error; err != nil {
		return nil, notFoundOr(err, "period summary")
	}
	return model.ToView(), nil
}

// FindByYear returns every period summary of a fiscal year in period order
func (r *GormPeriodSummaryRepository) FindByYear(ctx context.Context, tenantID valueobject.TenantID, fiscalYear string) ([]report.PeriodSummaryView, error) {
	var rows []models.PeriodSummaryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND fiscal_year = ?", tenantID.UUID(), fiscalYear).
		Order("fiscal_period ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list period summaries: %w", err)
	}
	views := make([]report.PeriodSummaryView, len(rows))
	for i := range rows {
		views[i] = *rows[i].ToView()
	}
	return views, nil
}

// GormClosedPeriodRepository implements report.ClosedPeriodRepository using GORM
type GormClosedPeriodRepository struct {
	db *gorm.DB
}

// NewGormClosedPeriodRepository creates a new GormClosedPeriodRepository
func NewGormClosedPeriodRepository(db *gorm.DB) *GormClosedPeriodRepository {
	return &GormClosedPeriodRepository{db: db}
}

// Save upserts a closed period
func (r *GormClosedPeriodRepository) Save(ctx context.Context, view *report.ClosedPeriodView) error {
	model := models.ClosedPeriodModel{
		TenantID: view.TenantID.UUID(),
		Label:    view.Label,
		Start:    view.Start,
		End:      view.End,
		ClosedAt: view.ClosedAt,
		ClosedBy: view.ClosedBy,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "label"}},
		UpdateAll: true,
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to save closed period %s: %w", view.Label, err)
	}
	return nil
}

// Delete removes a closed period, e.g. after it was reopened
func (r *GormClosedPeriodRepository) Delete(ctx context.Context, tenantID valueobject.TenantID, label string) error {
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND label = ?", tenantID.UUID(), label).
		Delete(&models.ClosedPeriodModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete closed period %s: %w", label, err)
	}
	return nil
}

// FindAll returns the tenant's closed periods, oldest first
func (r *GormClosedPeriodRepository) FindAll(ctx context.Context, tenantID valueobject.TenantID) ([]report.ClosedPeriodView, error) {
	var rows []models.ClosedPeriodModel
	if err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID.UUID())).
		Order("period_start ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list closed periods: %w", err)
	}
	views := make([]report.ClosedPeriodView, len(rows))
	for i := range rows {
		views[i] = *rows[i].ToView()
	}
	return views, nil
}

var (
	_ report.AccountBalanceRepository = (*GormAccountBalanceRepository)(nil)
	_ report.PeriodSummaryRepository  = (*GormPeriodSummaryRepository)(nil)
	_ report.ClosedPeriodRepository   = (*GormClosedPeriodRepository)(nil)
)
