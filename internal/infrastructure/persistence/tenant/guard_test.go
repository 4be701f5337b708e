package tenant

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type guardedView struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
}

func (guardedView) TableName() string { return "guarded_views" }

type openRecord struct {
	ID   uint
	Name string
}

func (openRecord) TableName() string { return "open_records" }

func setupGuardedDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, NewGuard("guarded_views").Register(gormDB))

	return gormDB, mock, mockDB
}

func TestGuard_RejectsUnscopedStatements(t *testing.T) {
	db, mock, mockDB := setupGuardedDB(t)
	defer mockDB.Close()

	t.Run("select", func(t *testing.T) {
		var views []guardedView
		err := db.Find(&views).Error
		require.Error(t, err)
		assert.True(t, IsMissingTenantPredicate(err))
	})

	t.Run("select by id only", func(t *testing.T) {
		var view guardedView
		err := db.Where("id = ?", uuid.New()).First(&view).Error
		assert.True(t, IsMissingTenantPredicate(err))
	})

	t.Run("update", func(t *testing.T) {
		err := db.Model(&guardedView{}).Where("name = ?", "a").Update("name", "b").Error
		assert.True(t, IsMissingTenantPredicate(err))
	})

	t.Run("delete", func(t *testing.T) {
		err := db.Where("name = ?", "a").Delete(&guardedView{}).Error
		assert.True(t, IsMissingTenantPredicate(err))
	})

	t.Run("count", func(t *testing.T) {
		var n int64
		err := db.Model(&guardedView{}).Count(&n).Error
		assert.True(t, IsMissingTenantPredicate(err))
	})

	t.Run("tenant_id lookalike column", func(t *testing.T) {
		var views []guardedView
		err := db.Where("parent_tenant_id_hint = ?", "x").Find(&views).Error
		assert.True(t, IsMissingTenantPredicate(err))
	})

	// nothing reached the driver
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuard_AllowsScopedStatements(t *testing.T) {
	tenantID := uuid.New()

	t.Run("Scope", func(t *testing.T) {
		db, mock, mockDB := setupGuardedDB(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "guarded_views" WHERE tenant_id = \$1`).
			WithArgs(tenantID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name"}))

		var views []guardedView
		require.NoError(t, db.Scopes(Scope(tenantID)).Find(&views).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("combined string condition", func(t *testing.T) {
		db, mock, mockDB := setupGuardedDB(t)
		defer mockDB.Close()

		id := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "guarded_views" WHERE tenant_id = \$1 AND id = \$2`).
			WithArgs(tenantID, id, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name"}).AddRow(id.String(), tenantID.String(), "a"))

		var view guardedView
		require.NoError(t, db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&view).Error)
		assert.Equal(t, "a", view.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("struct condition", func(t *testing.T) {
		db, mock, mockDB := setupGuardedDB(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "guarded_views" WHERE "guarded_views"."tenant_id" = \$1`).
			WithArgs(tenantID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name"}))

		var views []guardedView
		require.NoError(t, db.Where(&guardedView{TenantID: tenantID}).Find(&views).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("map condition", func(t *testing.T) {
		db, mock, mockDB := setupGuardedDB(t)
		defer mockDB.Close()

		mock.ExpectExec(`DELETE FROM "guarded_views" WHERE "tenant_id" = \$1`).
			WithArgs(tenantID).
			WillReturnResult(sqlmock.NewResult(0, 2))

		require.NoError(t, db.Where(map[string]any{"tenant_id": tenantID}).Delete(&guardedView{}).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bypass", func(t *testing.T) {
		db, mock, mockDB := setupGuardedDB(t)
		defer mockDB.Close()

		mock.ExpectExec(`DELETE FROM "guarded_views" WHERE 1 = 1`).
			WillReturnResult(sqlmock.NewResult(0, 5))

		require.NoError(t, Bypass(db).Where("1 = 1").Delete(&guardedView{}).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unguarded table", func(t *testing.T) {
		db, mock, mockDB := setupGuardedDB(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "open_records"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

		var records []openRecord
		require.NoError(t, db.Find(&records).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestScope_NilTenant(t *testing.T) {
	db, mock, mockDB := setupGuardedDB(t)
	defer mockDB.Close()

	var views []guardedView
	err := db.Scopes(Scope(uuid.Nil)).Find(&views).Error
	assert.ErrorIs(t, err, ErrTenantIDRequired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuard_Unregister(t *testing.T) {
	db, mock, mockDB := setupGuardedDB(t)
	defer mockDB.Close()

	Unregister(db)

	mock.ExpectQuery(`SELECT \* FROM "guarded_views"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name"}))

	var views []guardedView
	require.NoError(t, db.Find(&views).Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContainsIdentifier(t *testing.T) {
	tests := []struct {
		sql  string
		want bool
	}{
		{"tenant_id = ?", true},
		{"a.tenant_id = ? AND id = ?", true},
		{"id = ? AND tenant_id IN (?)", true},
		{"(tenant_id=?)", true},
		{"parent_tenant_id = ?", false},
		{"tenant_ids = ?", false},
		{"id = ?", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, containsIdentifier(tt.sql, "tenant_id"))
		})
	}
}
