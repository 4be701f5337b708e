package projection

import (
	"context"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// Invalidator drops cache entries made stale by a read-model write. Cache
// errors are logged and swallowed: the entry expires with its TTL anyway.
type Invalidator struct {
	cache  shared.Cache
	keys   cache.Keys
	logger *zap.Logger
}

// NewInvalidator creates an Invalidator. A nil cache disables invalidation.
func NewInvalidator(c shared.Cache, keys cache.Keys, logger *zap.Logger) *Invalidator {
	if c == nil {
		c = cache.NoopStore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invalidator{cache: c, keys: keys, logger: logger}
}

// Entity drops one entity and every cached list of its kind
func (i *Invalidator) Entity(ctx context.Context, tenantID valueobject.TenantID, kind string, id interface{ String() string }) {
	if err := i.cache.Delete(ctx, i.keys.Entity(tenantID, kind, id)); err != nil {
		i.logger.Warn("failed to invalidate cached entity",
			zap.String("tenant_id", tenantID.String()),
			zap.String("kind", kind),
			zap.String("id", id.String()),
			zap.Error(err),
		)
	}
	i.Lists(ctx, tenantID, kind)
}

// Lists drops every cached list of the given kinds
func (i *Invalidator) Lists(ctx context.Context, tenantID valueobject.TenantID, kinds ...string) {
	for _, kind := range kinds {
		if err := i.cache.DeletePrefix(ctx, i.keys.ListPrefix(tenantID, kind)); err != nil {
			i.logger.Warn("failed to invalidate cached lists",
				zap.String("tenant_id", tenantID.String()),
				zap.String("kind", kind),
				zap.Error(err),
			)
		}
	}
}

// Key drops a single key
func (i *Invalidator) Key(ctx context.Context, key string) {
	if err := i.cache.Delete(ctx, key); err != nil {
		i.logger.Warn("failed to invalidate cache key", zap.String("key", key), zap.Error(err))
	}
}

// Reports drops every cached report of a tenant
func (i *Invalidator) Reports(ctx context.Context, tenantID valueobject.TenantID) {
	if err := i.cache.DeletePrefix(ctx, i.keys.ReportPrefix(tenantID)); err != nil {
		i.logger.Warn("failed to invalidate cached reports",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	}
}
