package notify

import (
	"context"

	"github.com/baswilson/navsite/internal/cache"
)

// Cache keys of the cached public endpoints
const (
	CacheKeyMenus   = "menus"
	CacheKeyConfigs = "configs"
)

// cacheKeys lists the cached responses that depend on each entity. Menus
// embed sub-menus, so card writes leave them valid.
var cacheKeys = map[string][]string{
	EntityMenus:   {CacheKeyMenus},
	EntityConfigs: {CacheKeyConfigs},
}

// CacheNotifier drops cached responses built from a changed entity
type CacheNotifier struct {
	cache cache.Cache
}

// NewCacheNotifier creates a cache invalidating notifier
func NewCacheNotifier(c cache.Cache) *CacheNotifier {
	return &CacheNotifier{cache: c}
}

// Changed invalidates the responses that depend on entity
func (n *CacheNotifier) Changed(ctx context.Context, entity string) error {
	return n.cache.Invalidate(ctx, cacheKeys[entity]...)
}

// Type returns the notifier type
func (n *CacheNotifier) Type() string {
	return "cache"
}
