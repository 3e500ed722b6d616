package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bookline-app/bookline-core/platform/go/tenant"
)

// Resolver defines the minimal lookup capability required to populate a
// tenant Space. Implemented by the tenant registry service.
type Resolver interface {
	ResolveSpace(ctx context.Context, slug string) (tenant.Space, error)
}

// Config controls middleware behavior.
type Config struct {
	// URLParam names the chi route parameter carrying the tenant slug.
	// Defaults to "slug".
	URLParam string
	// Optional small in-memory TTL cache to avoid store hits; zero disables caching.
	CacheTTL time.Duration
}

// WithTenantSpace resolves the tenant from the route's slug segment and
// attaches tenant.Space to the request context. Requests for unknown slugs
// stop here with 404.
func WithTenantSpace(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	param := cfg.URLParam
	if param == "" {
		param = "slug"
	}

	var cache *tenantCache
	if cfg.CacheTTL > 0 {
		cache = newTenantCache(cfg.CacheTTL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := chi.URLParam(r, param)
			if slug == "" {
				http.Error(w, "tenant slug required", http.StatusBadRequest)
				return
			}

			if cached := cacheGet(cache, slug); cached != nil {
				ctx := tenant.WithSpace(r.Context(), *cached)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			space, err := resolver.ResolveSpace(r.Context(), slug)
			if err != nil {
				http.Error(w, "tenant not found", http.StatusNotFound)
				return
			}

			cachePut(cache, space)

			ctx := tenant.WithSpace(r.Context(), space)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type tenantCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]cacheItem
}

type cacheItem struct {
	space     tenant.Space
	expiresAt time.Time
}

func newTenantCache(ttl time.Duration) *tenantCache {
	return &tenantCache{ttl: ttl, items: make(map[string]cacheItem)}
}

func cacheGet(c *tenantCache, slug string) *tenant.Space {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[slug]
	if !ok || time.Now().After(item.expiresAt) {
		return nil
	}
	return &item.space
}

func cachePut(c *tenantCache, space tenant.Space) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[space.Slug] = cacheItem{space: space, expiresAt: time.Now().Add(c.ttl)}
}
