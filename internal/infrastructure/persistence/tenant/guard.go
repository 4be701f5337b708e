package tenant

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultTenantColumn = "tenant_id"
	bypassSetting       = "tenant:bypass"
)

// Guard is a set of GORM callbacks that reject reads, updates and deletes on
// tenant-owned tables when the statement carries no tenant predicate. It never
// adds a predicate itself: callers always pass the tenant explicitly.
type Guard struct {
	tenantColumn string
	tables       map[string]struct{}
}

// NewGuard creates a guard for the given tables
func NewGuard(tables ...string) *Guard {
	g := &Guard{
		tenantColumn: defaultTenantColumn,
		tables:       make(map[string]struct{}, len(tables)),
	}
	for _, t := range tables {
		g.tables[t] = struct{}{}
	}
	return g
}

// WithColumn overrides the tenant column name
func (g *Guard) WithColumn(column string) *Guard {
	if column != "" {
		g.tenantColumn = column
	}
	return g
}

// Register installs the guard callbacks on db.
// Creates are not guarded: every row carries its own tenant id.
func (g *Guard) Register(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant:guard_query", g.check); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant:guard_update", g.check); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant:guard_delete", g.check); err != nil {
		return err
	}
	return db.Callback().Row().Before("gorm:row").Register("tenant:guard_row", g.check)
}

// Unregister removes the guard callbacks
func Unregister(db *gorm.DB) {
	_ = db.Callback().Query().Remove("tenant:guard_query")
	_ = db.Callback().Update().Remove("tenant:guard_update")
	_ = db.Callback().Delete().Remove("tenant:guard_delete")
	_ = db.Callback().Row().Remove("tenant:guard_row")
}

// Bypass marks a statement as deliberately cross-tenant, e.g. a projection
// reset during replay.
func Bypass(db *gorm.DB) *gorm.DB {
	return db.Set(bypassSetting, true)
}

func (g *Guard) check(db *gorm.DB) {
	if db.Error != nil || !g.guarded(db.Statement.Table) {
		return
	}
	if bypass, ok := db.Get(bypassSetting); ok && bypass == true {
		return
	}
	if g.hasTenantCondition(db.Statement) {
		return
	}
	_ = db.AddError(&MissingTenantPredicateError{Table: db.Statement.Table})
}

func (g *Guard) guarded(table string) bool {
	if table == "" {
		return false
	}
	_, ok := g.tables[table]
	return ok
}

// hasTenantCondition checks the WHERE clause, or the SQL text for raw statements
func (g *Guard) hasTenantCondition(stmt *gorm.Statement) bool {
	if whereClause, ok := stmt.Clauses["WHERE"]; ok {
		if where, ok := whereClause.Expression.(clause.Where); ok {
			for _, expr := range where.Exprs {
				if g.exprContainsTenant(expr) {
					return true
				}
			}
		}
	}

	if sql := stmt.SQL.String(); sql != "" {
		return containsIdentifier(sql, g.tenantColumn)
	}
	return false
}

// exprContainsTenant checks if an expression constrains the tenant column
func (g *Guard) exprContainsTenant(expr clause.Expression) bool {
	switch e := expr.(type) {
	case clause.Eq:
		return g.isTenantColumn(e.Column)
	case clause.IN:
		return g.isTenantColumn(e.Column)
	case clause.Expr:
		return containsIdentifier(e.SQL, g.tenantColumn)
	case clause.NamedExpr:
		return containsIdentifier(e.SQL, g.tenantColumn)
	case clause.AndConditions:
		for _, cond := range e.Exprs {
			if g.exprContainsTenant(cond) {
				return true
			}
		}
	case clause.OrConditions:
		// every branch must be tenant scoped
		if len(e.Exprs) == 0 {
			return false
		}
		for _, cond := range e.Exprs {
			if !g.exprContainsTenant(cond) {
				return false
			}
		}
		return true
	}
	return false
}

func (g *Guard) isTenantColumn(column any) bool {
	switch c := column.(type) {
	case clause.Column:
		return c.Name == g.tenantColumn
	case string:
		return c == g.tenantColumn || strings.HasSuffix(c, "."+g.tenantColumn)
	}
	return false
}

// containsIdentifier reports whether ident appears in sql as a whole word
func containsIdentifier(sql, ident string) bool {
	for i := 0; ; {
		j := strings.Index(sql[i:], ident)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(ident)
		if (start == 0 || !isIdentByte(sql[start-1])) && (end == len(sql) || !isIdentByte(sql[end])) {
			return true
		}
		i = end
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
