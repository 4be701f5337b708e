// Package tenant provides multi-tenant database scoping for GORM.
//
// Tenant ids are always explicit. Repositories scope each statement with
// Scope, and the Guard callbacks reject statements on tenant-owned tables
// that forgot to:
//
//	tenant.NewGuard("account_views").Register(db)
//	db.Scopes(tenant.Scope(tenantID)).Find(&views) // WHERE tenant_id = ?
//	db.Find(&views)                                 // MissingTenantPredicateError
package tenant

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrTenantIDRequired is returned when a nil tenant id is used as a scope
var ErrTenantIDRequired = errors.New("tenant_id is required")

// MissingTenantPredicateError is returned when a statement on a tenant-owned
// table has no tenant_id condition
type MissingTenantPredicateError struct {
	Table string
}

func (e *MissingTenantPredicateError) Error() string {
	return fmt.Sprintf("query on tenant table %s has no tenant_id predicate", e.Table)
}

// IsMissingTenantPredicate reports whether err was raised by the guard
func IsMissingTenantPredicate(err error) bool {
	var target *MissingTenantPredicateError
	return errors.As(err, &target)
}

// Scope applies tenant filtering to GORM queries. A nil tenant id fails the
// statement instead of matching nothing.
func Scope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID == uuid.Nil {
			_ = db.AddError(ErrTenantIDRequired)
			return db
		}
		return db.Where("tenant_id = ?", tenantID)
	}
}
