package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProjectionFailureRepository implements shared.FailureRepository using GORM
type GormProjectionFailureRepository struct {
	db *gorm.DB
}

// NewGormProjectionFailureRepository creates a new GormProjectionFailureRepository
func NewGormProjectionFailureRepository(db *gorm.DB) *GormProjectionFailureRepository {
	return &GormProjectionFailureRepository{db: db}
}

// Record stores a failure. A repeated failure of the same handler on the same
// event bumps the attempt count and reopens the record.
func (r *GormProjectionFailureRepository) Record(ctx context.Context, failure *shared.ProcessingFailure) error {
	model := models.ProjectionFailureModelFromDomain(failure)
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "handler"}, {Name: "event_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"attempts":    gorm.Expr(models.TableProjectionFailures + ".attempts + 1"),
			"last_error":  model.LastError,
			"status":      string(shared.FailureStatusOpen),
			"resolved_at": nil,
			"updated_at":  now,
		}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to record failure of %s on event %s: %w", failure.Handler, failure.EventID, err)
	}
	return nil
}

// FindOpen returns open failures for a tenant, newest first
func (r *GormProjectionFailureRepository) FindOpen(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]*shared.ProcessingFailure, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ProjectionFailureModel{}).
		Scopes(tenant.Scope(tenantID)).
		Where("status = ?", string(shared.FailureStatusOpen))
	if filter.Search != "" {
		query = query.Where("handler = ?", filter.Search)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count failures: %w", err)
	}

	filter = filter.Normalize()
	var rows []models.ProjectionFailureModel
	if err := query.
		Order("updated_at DESC").
		Limit(filter.PageSize).
		Offset(filter.Offset()).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list failures: %w", err)
	}

	failures := make([]*shared.ProcessingFailure, len(rows))
	for i := range rows {
		failures[i] = rows[i].ToDomain()
	}
	return failures, total, nil
}

// OpenTenants returns every tenant with an open failure of one of the
// handlers, or of any handler when none is given. It reads across tenants.
func (r *GormProjectionFailureRepository) OpenTenants(ctx context.Context, handlers ...string) ([]uuid.UUID, error) {
	query := tenant.Bypass(r.db.WithContext(ctx)).
		Model(&models.ProjectionFailureModel{}).
		Where("status = ?", string(shared.FailureStatusOpen))
	if len(handlers) > 0 {
		query = query.Where("handler IN ?", handlers)
	}
	var ids []uuid.UUID
	if err := query.Distinct().Pluck("tenant_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list tenants with open failures: %w", err)
	}
	return ids, nil
}

// FindByID retrieves a single failure scoped to the tenant
func (r *GormProjectionFailureRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*shared.ProcessingFailure, error) {
	var model models.ProjectionFailureModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		return nil, notFoundOr(err, "failure")
	}
	return model.ToDomain(), nil
}

// Update persists status changes
func (r *GormProjectionFailureRepository) Update(ctx context.Context, failure *shared.ProcessingFailure) error {
	result := r.db.WithContext(ctx).
		Model(&models.ProjectionFailureModel{}).
		Where("tenant_id = ? AND id = ?", failure.TenantID, failure.ID).
		Updates(map[string]any{
			"status":      string(failure.Status),
			"attempts":    failure.Attempts,
			"last_error":  failure.LastError,
			"resolved_at": failure.ResolvedAt,
			"updated_at":  failure.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update failure %s: %w", failure.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ shared.FailureRepository = (*GormProjectionFailureRepository)(nil)
