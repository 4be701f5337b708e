package persistence

import (
	"strings"

	"github.com/erp/ledger/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sortSpec whitelists the columns a list query may order by. Anything else
// falls back to the default, so caller input never reaches the SQL text.
type sortSpec struct {
	columns    map[string]bool
	defaultBy  string
	defaultAsc bool
}

func newSortSpec(defaultBy string, defaultAsc bool, columns ...string) sortSpec {
	allowed := map[string]bool{"id": true, "created_at": true, "updated_at": true}
	for _, c := range columns {
		allowed[c] = true
	}
	return sortSpec{columns: allowed, defaultBy: defaultBy, defaultAsc: defaultAsc}
}

var (
	accountSort = newSortSpec("code", true, "code", "name", "type", "balance")
	invoiceSort = newSortSpec("issue_date", false, "number", "issue_date", "due_date", "status", "grand_total", "remaining_balance")
	paymentSort = newSortSpec("created_at", false, "number", "amount", "status", "completed_at")
	journalSort = newSortSpec("journal_date", false, "number", "journal_date", "status", "total_debit")
)

// column returns the requested column when whitelisted, else the default
func (s sortSpec) column(requested string) string {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if s.columns[requested] {
		return requested
	}
	return s.defaultBy
}

// descending resolves the direction; an unknown value keeps the default
func (s sortSpec) descending(dir string) bool {
	switch strings.ToUpper(strings.TrimSpace(dir)) {
	case "ASC":
		return false
	case "DESC":
		return true
	default:
		return !s.defaultAsc
	}
}

// orderBy orders by the resolved column, then by id so pages are stable
func (s sortSpec) orderBy(filter shared.Filter) clause.OrderBy {
	column := s.column(filter.OrderBy)
	columns := []clause.OrderByColumn{{
		Column: clause.Column{Name: column},
		Desc:   s.descending(filter.OrderDir),
	}}
	if column != "id" {
		columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: "id"}})
	}
	return clause.OrderBy{Columns: columns}
}

// paginate applies the filter's order and page window
func paginate(query *gorm.DB, filter shared.Filter, sort sortSpec) *gorm.DB {
	filter = filter.Normalize()
	return query.Clauses(sort.orderBy(filter)).
		Limit(filter.PageSize).
		Offset(filter.Offset())
}
