package catalog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/discovery-console/internal/discovery"
	"github.com/sells-group/discovery-console/internal/model"
)

// CachedProvider memoizes another provider's entries for a fixed TTL. When a
// refresh fails and a previous snapshot exists, the stale snapshot is served.
type CachedProvider struct {
	next discovery.CatalogProvider
	ttl  time.Duration

	nowFunc func() time.Time

	mu        sync.Mutex
	entries   []model.CatalogEntry
	fetchedAt time.Time
}

var _ discovery.CatalogProvider = (*CachedProvider)(nil)

// NewCachedProvider wraps next. A non-positive ttl disables caching.
func NewCachedProvider(next discovery.CatalogProvider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		next:    next,
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// ListCatalogEntries returns the cached entries, refreshing after the TTL.
func (c *CachedProvider) ListCatalogEntries(ctx context.Context) ([]model.CatalogEntry, error) {
	if c.ttl <= 0 {
		return c.next.ListCatalogEntries(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	if c.entries != nil && now.Sub(c.fetchedAt) < c.ttl {
		return c.snapshot(), nil
	}

	entries, err := c.next.ListCatalogEntries(ctx)
	if err != nil {
		if c.entries != nil {
			zap.L().Warn("catalog: refresh failed, serving stale entries",
				zap.Duration("age", now.Sub(c.fetchedAt)),
				zap.Error(err),
			)
			return c.snapshot(), nil
		}
		return nil, err
	}

	c.entries = entries
	c.fetchedAt = now
	return c.snapshot(), nil
}

// Invalidate drops the cached snapshot.
func (c *CachedProvider) Invalidate() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
}

func (c *CachedProvider) snapshot() []model.CatalogEntry {
	out := make([]model.CatalogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
