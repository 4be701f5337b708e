package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/erp/ledger/internal/domain/shared/valueobject"
)

// DefaultKeyPrefix is the namespace of every ledger cache key
const DefaultKeyPrefix = "ledger"

// Cached entity kinds
const (
	KindAccount       = "account"
	KindInvoice       = "invoice"
	KindPayment       = "payment"
	KindJournal       = "journal"
	KindBalance       = "balance"
	KindPeriodSummary = "period_summary"
)

// Keys builds cache keys. Every key starts with <prefix>:<tenant>: so a
// tenant's entries can never be read under another tenant's key.
type Keys struct {
	prefix string
}

// NewKeys creates a key builder for the given namespace
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Keys{prefix: prefix}
}

// Idempotency returns the key remembering a processed handler/event pair.
// It is not tenant scoped: the handler key embeds a globally unique event id.
func (k Keys) Idempotency(handlerKey string) string {
	return k.prefix + ":idempotency:" + handlerKey
}

// Tenant returns the prefix shared by all keys of a tenant
func (k Keys) Tenant(tenantID valueobject.TenantID) string {
	return fmt.Sprintf("%s:%s:", k.prefix, tenantID)
}

// Entity returns the key of a single read entity
func (k Keys) Entity(tenantID valueobject.TenantID, kind string, id fmt.Stringer) string {
	return k.Tenant(tenantID) + kind + ":" + id.String()
}

// ListPrefix returns the prefix of every cached list of a kind
func (k Keys) ListPrefix(tenantID valueobject.TenantID, kind string) string {
	return k.Tenant(tenantID) + "list:" + kind + ":"
}

// List returns the key of a filtered list. params is hashed so that equal
// filters share an entry.
func (k Keys) List(tenantID valueobject.TenantID, kind string, params any) string {
	return k.ListPrefix(tenantID, kind) + digest(params)
}

// ReportPrefix returns the prefix of every cached report of a tenant
func (k Keys) ReportPrefix(tenantID valueobject.TenantID) string {
	return k.Tenant(tenantID) + "report:"
}

// TrialBalance returns the key of a tenant's trial balance for a fiscal year
func (k Keys) TrialBalance(tenantID valueobject.TenantID, fiscalYear string) string {
	return k.ReportPrefix(tenantID) + "trial_balance:" + fiscalYear
}

func digest(params any) string {
	data, err := json.Marshal(params)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", params))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:12])
}
