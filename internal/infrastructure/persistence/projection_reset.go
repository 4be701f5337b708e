package persistence

import (
	"context"
	"fmt"

	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
)

// resettable maps a projection name to the model of the table it owns
var resettable = map[string]any{
	models.TableAccountViews:    &models.AccountViewModel{},
	models.TableInvoiceViews:    &models.InvoiceViewModel{},
	models.TablePaymentViews:    &models.PaymentViewModel{},
	models.TableJournalViews:    &models.JournalViewModel{},
	models.TableAccountBalances: &models.AccountBalanceModel{},
	models.TablePeriodSummaries: &models.PeriodSummaryModel{},
	models.TableClosedPeriods:   &models.ClosedPeriodModel{},
}

// GormProjectionResetter truncates read tables ahead of a replay
type GormProjectionResetter struct {
	db *gorm.DB
}

// NewGormProjectionResetter creates a new GormProjectionResetter
func NewGormProjectionResetter(db *gorm.DB) *GormProjectionResetter {
	return &GormProjectionResetter{db: db}
}

// ResetProjection deletes every row of the projection's table for all
// tenants, together with its applied-event markers, so that a replay from
// position zero rebuilds it.
func (r *GormProjectionResetter) ResetProjection(ctx context.Context, projection string) error {
	model, ok := resettable[projection]
	if !ok {
		return fmt.Errorf("unknown projection %q", projection)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tenant.Bypass(tx).Where("1 = 1").Delete(model).Error; err != nil {
			return fmt.Errorf("failed to reset %s: %w", projection, err)
		}
		if err := tenant.Bypass(tx).
			Where("projection = ?", projection).
			Delete(&models.AppliedEventModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear applied events of %s: %w", projection, err)
		}
		return nil
	})
}

// Projections lists every resettable projection name
func Projections() []string {
	return []string{
		models.TableAccountViews,
		models.TableInvoiceViews,
		models.TablePaymentViews,
		models.TableJournalViews,
		models.TableAccountBalances,
		models.TablePeriodSummaries,
		models.TableClosedPeriods,
	}
}
