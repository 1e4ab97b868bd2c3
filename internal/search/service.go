package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gamedex/searchservice/internal/domain"
	"gamedex/searchservice/internal/policy"
)

var (
	ErrInvalidQuery     = errors.New("query is required")
	ErrInvalidPage      = errors.New("page must be >= 1")
	ErrStoreUnavailable = errors.New("local store unavailable")
)

// LocalStore is the capability interface over the local relational store.
// The engine only reads and appends; it never deletes.
type LocalStore interface {
	FindByText(ctx context.Context, text string, filters domain.SearchFilters, limit int) ([]domain.CatalogEntry, error)
	FindByExternalID(ctx context.Context, ids []int64) (map[int64]domain.CatalogEntry, error)
	UpsertBatch(ctx context.Context, entries []domain.CatalogEntry) error
}

// ExternalCatalog is the rate-limited third-party metadata service. It may
// return partial metadata; absent fields arrive as nil pointers, never zeros.
type ExternalCatalog interface {
	Search(ctx context.Context, query string, limit int) ([]domain.CatalogEntry, error)
}

// Coordinator orchestrates the search pipeline: expansion, local lookup,
// conditional external consultation, dedup, classification, scoring and the
// detached persistence of fresh external data.
type Coordinator struct {
	store         LocalStore
	catalog       ExternalCatalog
	policies      *policy.Provider
	limiter       *rate.Limiter
	timeout       time.Duration
	persistWait   time.Duration
	cacheDisabled bool
	cacheTTL      time.Duration

	cacheMu    sync.RWMutex
	cache      map[string]*cachedResponse
	redisCache *RedisCacheBackend

	healthMu sync.Mutex
	health   externalHealth

	// persistWG lets tests wait for detached persistence to finish.
	persistWG sync.WaitGroup
}

type CoordinatorOption func(*Coordinator)

func WithExternalCatalog(catalog ExternalCatalog) CoordinatorOption {
	return func(c *Coordinator) {
		c.catalog = catalog
	}
}

// WithRateLimiter installs the process-wide token bucket shared by every
// request that consults the external catalog.
func WithRateLimiter(limiter *rate.Limiter) CoordinatorOption {
	return func(c *Coordinator) {
		c.limiter = limiter
	}
}

func WithCacheTTL(ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

func WithCacheDisabled(disabled bool) CoordinatorOption {
	return func(c *Coordinator) {
		c.cacheDisabled = disabled
	}
}

func WithRedisCache(backend *RedisCacheBackend) CoordinatorOption {
	return func(c *Coordinator) {
		c.redisCache = backend
	}
}

func NewCoordinator(store LocalStore, policies *policy.Provider, timeout time.Duration, opts ...CoordinatorOption) *Coordinator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	coordinator := &Coordinator{
		store:       store,
		policies:    policies,
		limiter:     rate.NewLimiter(rate.Limit(4), 4),
		timeout:     timeout,
		persistWait: 30 * time.Second,
		cacheTTL:    defaultCacheTTL,
		cache:       make(map[string]*cachedResponse),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(coordinator)
		}
	}
	return coordinator
}

// WaitPersistence blocks until all in-flight background persistence tasks
// finish. Used by the tests and by graceful shutdown.
func (c *Coordinator) WaitPersistence() {
	c.persistWG.Wait()
}
