package search

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"gamedex/searchservice/internal/domain"
	"gamedex/searchservice/internal/metrics"
)

const (
	defaultCacheTTL        = 5 * time.Minute
	defaultCacheMaxEntries = 512
)

// cachedResponse entries are immutable once stored; readers get a clone so
// concurrent requests never alias the same result slices.
type cachedResponse struct {
	response  domain.SearchResponse
	storedAt  time.Time
	expiresAt time.Time
}

func (c *Coordinator) cacheLookup(key string, now time.Time) (domain.SearchResponse, bool) {
	if c.redisCache != nil {
		response, found, err := c.redisCache.Get(context.Background(), key)
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			return response, true
		}
	}

	c.cacheMu.RLock()
	entry, ok := c.cache[key]
	c.cacheMu.RUnlock()

	if !ok || now.After(entry.expiresAt) {
		metrics.CacheMissesTotal.Inc()
		return domain.SearchResponse{}, false
	}
	metrics.CacheHitsTotal.Inc()
	return cloneResponse(entry.response), true
}

func (c *Coordinator) cacheStore(key string, response domain.SearchResponse, now time.Time) {
	if c.redisCache != nil {
		_ = c.redisCache.Set(context.Background(), key, response, c.cacheTTL)
	}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	c.cache[key] = &cachedResponse{
		response:  cloneResponse(response),
		storedAt:  now,
		expiresAt: now.Add(c.cacheTTL),
	}
	c.trimCacheLocked(now)
}

// trimCacheLocked drops expired entries, then evicts oldest-stored entries
// until the cache fits the size bound. Caller holds cacheMu.
func (c *Coordinator) trimCacheLocked(now time.Time) {
	for key, entry := range c.cache {
		if now.After(entry.expiresAt) {
			delete(c.cache, key)
		}
	}
	if len(c.cache) <= defaultCacheMaxEntries {
		return
	}

	type pair struct {
		key   string
		entry *cachedResponse
	}
	items := make([]pair, 0, len(c.cache))
	for key, entry := range c.cache {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.storedAt.Before(items[j].entry.storedAt)
	})
	for i := 0; i < len(items)-defaultCacheMaxEntries; i++ {
		delete(c.cache, items[i].key)
	}
}

func cloneResponse(response domain.SearchResponse) domain.SearchResponse {
	cloned := response
	if response.Results != nil {
		cloned.Results = make([]domain.ScoredCandidate, len(response.Results))
		for i, result := range response.Results {
			copied := result
			copied.Entry = result.Entry.Clone()
			if result.Factors != nil {
				factors := *result.Factors
				copied.Factors = &factors
			}
			cloned.Results[i] = copied
		}
	}
	if response.Trace != nil {
		cloned.Trace = append([]domain.FilterDecision(nil), response.Trace...)
	}
	return cloned
}

// buildCacheKey folds the query and canonicalizes the filter set so that
// requests differing only in whitespace, case or filter order share a key.
func buildCacheKey(request domain.SearchRequest) string {
	filters := request.Filters
	return strings.Join([]string{
		"q=" + NormalizeQuery(request.Text),
		"c=" + joinCategories(filters.Categories),
		"dc=" + joinCategories(filters.DenyCategories),
		"mr=" + strconv.FormatFloat(filters.MinRating, 'f', 1, 64),
		"mf=" + strconv.Itoa(filters.MinFollows),
		"t=" + string(filters.Tier),
		"ob=" + strconv.FormatBool(filters.IncludeObscure),
		"p=" + strconv.Itoa(request.Page),
		"ps=" + strconv.Itoa(request.PageSize),
	}, "|")
}

func joinCategories(categories []domain.Category) string {
	if len(categories) == 0 {
		return ""
	}
	values := make([]int, len(categories))
	for i, category := range categories {
		values[i] = int(category)
	}
	sort.Ints(values)
	parts := make([]string, len(values))
	for i, value := range values {
		parts[i] = strconv.Itoa(value)
	}
	return strings.Join(parts, ",")
}
