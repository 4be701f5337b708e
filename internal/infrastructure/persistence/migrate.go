package persistence

import (
	"fmt"

	"github.com/erp/ledger/internal/infrastructure/eventstore"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// ReadModels returns the models of every read and support table
func ReadModels() []any {
	return []any{
		&models.AccountViewModel{},
		&models.InvoiceViewModel{},
		&models.PaymentViewModel{},
		&models.JournalViewModel{},
		&models.AccountBalanceModel{},
		&models.PeriodSummaryModel{},
		&models.ClosedPeriodModel{},
		&models.AppliedEventModel{},
		&models.ProjectionFailureModel{},
	}
}

// TenantTables lists the tables whose statements must carry a tenant predicate
func TenantTables() []string {
	return append(Projections(), models.TableAppliedEvents, models.TableProjectionFailures)
}

// AutoMigrate creates the event store and read tables through GORM.
// It is used for sqlite; postgres deployments run the SQL migrations.
func AutoMigrate(db *gorm.DB) error {
	all := append(eventstore.Models(), ReadModels()...)
	if err := db.AutoMigrate(all...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
