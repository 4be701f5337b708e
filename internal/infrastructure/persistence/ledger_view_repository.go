package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertIfNewer inserts a view row or overwrites the stored one when the
// stored last_sequence is older. Returns false when the write was skipped.
func upsertIfNewer(ctx context.Context, db *gorm.DB, table string, model any) (bool, error) {
	result := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "id"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: table + ".last_sequence < excluded.last_sequence"},
		}},
		UpdateAll: true,
	}).Create(model)
	if result.Error != nil {
		return false, fmt.Errorf("failed to upsert %s: %w", table, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// GormAccountViewRepository implements report.AccountViewRepository using GORM
type GormAccountViewRepository struct {
	db *gorm.DB
}

// NewGormAccountViewRepository creates a new GormAccountViewRepository
func NewGormAccountViewRepository(db *gorm.DB) *GormAccountViewRepository {
	return &GormAccountViewRepository{db: db}
}

// FindByID finds an account view for a tenant
func (r *GormAccountViewRepository) FindByID(ctx context.Context, tenantID valueobject.TenantID, id valueobject.AccountID) (*report.AccountView, error) {
	var model models.AccountViewModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID.UUID(), id.UUID()).
		First(&model).Error; err != nil {
		return nil, notFoundOr(err, "account view")
	}
	return model.ToView()
}

// FindAll returns one page of account views and the total count
func (r *GormAccountViewRepository) FindAll(ctx context.Context, tenantID valueobject.TenantID, filter report.AccountViewFilter) ([]report.AccountView, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AccountViewModel{}).
		Scopes(tenant.Scope(tenantID.UUID()))
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("(code LIKE ? OR name LIKE ?)", like, like)
	}

	// reusable for both the count and the page
	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count account views: %w", err)
	}

	var rows []models.AccountViewModel
	if err := paginate(query, filter.Filter, accountSort).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list account views: %w", err)
	}
	views := make([]report.AccountView, 0, len(rows))
	for i := range rows {
		v, err := rows[i].ToView()
		if err != nil {
			return nil, 0, err
		}
		views = append(views, *v)
	}
	return views, total, nil
}

// Upsert writes the view unless the stored row is at the same or a later sequence
func (r *GormAccountViewRepository) Upsert(ctx context.Context, view *report.AccountView) (bool, error) {
	return upsertIfNewer(ctx, r.db, models.TableAccountViews, models.AccountViewModelFromView(view))
}

// GormInvoiceViewRepository implements report.InvoiceViewRepository using GORM
type GormInvoiceViewRepository struct {
	db *gorm.DB
}

// NewGormInvoiceViewRepository creates a new GormInvoiceViewRepository
func NewGormInvoiceViewRepository(db *gorm.DB) *GormInvoiceViewRepository {
	return &GormInvoiceViewRepository{db: db}
}

// FindByID finds an invoice view for a tenant
func (r *GormInvoiceViewRepository) FindByID(ctx context.Context, tenantID valueobject.TenantID, id valueobject.InvoiceID) (*report.InvoiceView, error) {
	var model models.InvoiceViewModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID.UUID(), id.UUID()).
		First(&model).Error; err != nil {
		return nil, notFoundOr(err, "invoice view")
	}
	return model.ToView()
}

// FindAll returns one page of invoice views and the total count
func (r *GormInvoiceViewRepository) FindAll(ctx context.Context, tenantID valueobject.TenantID, filter report.InvoiceViewFilter) ([]report.InvoiceView, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceViewModel{}).
		Scopes(tenant.Scope(tenantID.UUID()))
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", filter.CustomerID.UUID())
	}
	if filter.FiscalYear != "" {
		query = query.Where("fiscal_year = ?", filter.FiscalYear)
	}
	if filter.Search != "" {
		query = query.Where("number LIKE ?", "%"+filter.Search+"%")
	}

	// reusable for both the count and the page
	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count invoice views: %w", err)
	}

	var rows []models.InvoiceViewModel
	if err := paginate(query, filter.Filter, invoiceSort).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list invoice views: %w", err)
	}
	views := make([]report.InvoiceView, 0, len(rows))
	for i := range rows {
		v, err := rows[i].ToView()
		if err != nil {
			return nil, 0, err
		}
		views = append(views, *v)
	}
	return views, total, nil
}

// Upsert writes the view unless the stored row is at the same or a later sequence
func (r *GormInvoiceViewRepository) Upsert(ctx context.Context, view *report.InvoiceView) (bool, error) {
	model, err := models.InvoiceViewModelFromView(view)
	if err != nil {
		return false, err
	}
	return upsertIfNewer(ctx, r.db, models.TableInvoiceViews, model)
}

// GormPaymentViewRepository implements report.PaymentViewRepository using GORM
type GormPaymentViewRepository struct {
	db *gorm.DB
}

// NewGormPaymentViewRepository creates a new GormPaymentViewRepository
func NewGormPaymentViewRepository(db *gorm.DB) *GormPaymentViewRepository {
	return &GormPaymentViewRepository{db: db}
}

// FindByID finds a payment view for a tenant
func (r *GormPaymentViewRepository) FindByID(ctx context.Context, tenantID valueobject.TenantID, id valueobject.PaymentID) (*report.PaymentView, error) {
	var model models.PaymentViewModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID.UUID(), id.UUID()).
		First(&model).Error; err != nil {
		return nil, notFoundOr(err, "payment view")
	}
	return model.ToView(), nil
}

// FindAll returns one page of payment views and the total count
func (r *GormPaymentViewRepository) FindAll(ctx context.Context, tenantID valueobject.TenantID, filter report.PaymentViewFilter) ([]report.PaymentView, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentViewModel{}).
		Scopes(tenant.Scope(tenantID.UUID()))
	if filter.InvoiceID != nil {
		query = query.Where("invoice_id = ?", filter.InvoiceID.UUID())
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return r.page(query, filter.Filter)
}

// FindUnapplied returns completed or reconciled payments whose invoice update
// never succeeded
func (r *GormPaymentViewRepository) FindUnapplied(ctx context.Context, tenantID valueobject.TenantID, filter shared.Filter) ([]report.PaymentView, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentViewModel{}).
		Scopes(tenant.Scope(tenantID.UUID())).
		Where("invoice_applied = ? AND status IN ?", false, unappliedPaymentStatuses())
	return r.page(query, filter)
}

// UnappliedTenants returns every tenant with at least one settled payment
// whose invoice update never succeeded. It is the entry point of the repair
// sweep and deliberately reads across tenants.
func (r *GormPaymentViewRepository) UnappliedTenants(ctx context.Context) ([]valueobject.TenantID, error) {
	var ids []uuid.UUID
	if err := tenant.Bypass(r.db.WithContext(ctx)).
		Model(&models.PaymentViewModel{}).
		Where("invoice_applied = ? AND status IN ?", false, unappliedPaymentStatuses()).
		Distinct().
		Pluck("tenant_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list tenants with unapplied payments: %w", err)
	}
	tenants := make([]valueobject.TenantID, len(ids))
	for i, id := range ids {
		tenants[i] = valueobject.TenantID(id)
	}
	return tenants, nil
}

// settled payments are the ones an invoice update is owed for
func unappliedPaymentStatuses() []string {
	return []string{string(finance.PaymentStatusCompleted), string(finance.PaymentStatusReconciled)}
}

func (r *GormPaymentViewRepository) page(query *gorm.DB, filter shared.Filter) ([]report.PaymentView, int64, error) {
	// reusable for both the count and the page
	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payment views: %w", err)
	}

	var rows []models.PaymentViewModel
	if err := paginate(query, filter, paymentSort).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payment views: %w", err)
	}
	views := make([]report.PaymentView, len(rows))
	for i := range rows {
		views[i] = *rows[i].ToView()
	}
	return views, total, nil
}

// Upsert writes the view unless the stored row is at the same or a later sequence
func (r *GormPaymentViewRepository) Upsert(ctx context.Context, view *report.PaymentView) (bool, error) {
	return upsertIfNewer(ctx, r.db, models.TablePaymentViews, models.PaymentViewModelFromView(view))
}

// GormJournalViewRepository implements report.JournalViewRepository using GORM
type GormJournalViewRepository struct {
	db *gorm.DB
}

// NewGormJournalViewRepository creates a new GormJournalViewRepository
func NewGormJournalViewRepository(db *gorm.DB) *GormJournalViewRepository {
	return &GormJournalViewRepository{db: db}
}

// FindByID finds a journal view for a tenant
func (r *GormJournalViewRepository) FindByID(ctx context.Context, tenantID valueobject.TenantID, id valueobject.JournalID) (*report.JournalView, error) {
	var model models.JournalViewModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID.UUID(), id.UUID()).
		First(&model).Error; err != nil {
		return nil, notFoundOr(err, "journal view")
	}
	return model.ToView()
}

// FindAll returns one page of journal views and the total count
func (r *GormJournalViewRepository) FindAll(ctx context.Context, tenantID valueobject.TenantID, filter report.JournalViewFilter) ([]report.JournalView, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.JournalViewModel{}).
		Scopes(tenant.Scope(tenantID.UUID()))
	if filter.FiscalPeriod != "" {
		query = query.Where("fiscal_period = ?", filter.FiscalPeriod)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("(number LIKE ? OR description LIKE ?)", like, like)
	}

	// reusable for both the count and the page
	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count journal views: %w", err)
	}

	var rows []models.JournalViewModel
	if err := paginate(query, filter.Filter, journalSort).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list journal views: %w", err)
	}
	views := make([]report.JournalView, 0, len(rows))
	for i := range rows {
		v, err := rows[i].ToView()
		if err != nil {
			return nil, 0, err
		}
		views = append(views, *v)
	}
	return views, total, nil
}

// Upsert writes the view unless the stored row is at the same or a later sequence
func (r *GormJournalViewRepository) Upsert(ctx context.Context, view *report.JournalView) (bool, error) {
	model, err := models.JournalViewModelFromView(view)
	if err != nil {
		return false, err
	}
	return upsertIfNewer(ctx, r.db, models.TableJournalViews, model)
}

var (
	_ report.AccountViewRepository = (*GormAccountViewRepository)(nil)
	_ report.InvoiceViewRepository = (*GormInvoiceViewRepository)(nil)
	_ report.PaymentViewRepository = (*GormPaymentViewRepository)(nil)
	_ report.JournalViewRepository = (*GormJournalViewRepository)(nil)
)
