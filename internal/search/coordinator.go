package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"gamedex/searchservice/internal/domain"
	"gamedex/searchservice/internal/metrics"
	"gamedex/searchservice/internal/policy"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	localFetchLimit = 50

	// ErrorCodeSourceUnavailable annotates an empty response when neither
	// the local store nor the external catalog produced candidates.
	ErrorCodeSourceUnavailable = "source_unavailable"
)

type externalOutcome struct {
	entries []domain.CatalogEntry
	err     error
	skipped string
}

// Search runs the full merge pipeline for one request: variant expansion,
// concurrent local lookups, conditional external consultation, dedup,
// classification, scoring, strict filtering, deterministic ordering and
// paging. External data fetched along the way is persisted by a detached
// background task that outlives the request.
func (c *Coordinator) Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	request.Text = strings.TrimSpace(request.Text)
	if request.Text == "" {
		return domain.SearchResponse{}, ErrInvalidQuery
	}
	if request.Page == 0 {
		request.Page = 1
	}
	if request.Page < 1 {
		return domain.SearchResponse{}, ErrInvalidPage
	}
	if request.PageSize <= 0 {
		request.PageSize = defaultPageSize
	}
	if request.PageSize > maxPageSize {
		request.PageSize = maxPageSize
	}

	started := time.Now()
	useCache := !c.cacheDisabled && !request.NoCache && !request.Diagnostic
	cacheKey := buildCacheKey(request)
	if useCache {
		if response, ok := c.cacheLookup(cacheKey, started); ok {
			return response, nil
		}
	}

	snapshot := c.policies.Current()
	tracer := newTracer(request.Diagnostic)
	response, err := c.search(ctx, request, snapshot, tracer, started)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return domain.SearchResponse{}, err
	}

	response.ElapsedMS = time.Since(started).Milliseconds()
	metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()
	metrics.SearchDuration.Observe(time.Since(started).Seconds())
	if useCache {
		c.cacheStore(cacheKey, response, started)
	}
	return response, nil
}

func (c *Coordinator) search(ctx context.Context, request domain.SearchRequest, snapshot *policy.Snapshot, tracer Tracer, started time.Time) (domain.SearchResponse, error) {
	thresholds := snapshot.Thresholds()
	expander := NewExpander(c.policies)
	classifier := NewClassifier(c.policies)
	scorer := NewScorer(snapshot)

	variants := expander.Expand(domain.Query{Text: request.Text, Filters: request.Filters})
	franchise := snapshot.FranchiseFor(request.Text)

	// Franchise queries almost always end up consulting the external
	// catalog, so the fetch starts concurrently with the local lookups
	// instead of after them.
	var externalCh chan externalOutcome
	if c.catalog != nil && franchise != nil {
		externalCh = make(chan externalOutcome, 1)
		go func() {
			externalCh <- c.fetchExternal(ctx, request.Text, thresholds.ExternalLimitWide)
		}()
	}

	localByVariant, err := c.lookupLocal(ctx, variants)
	if err != nil {
		return domain.SearchResponse{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	type candidate struct {
		entry   domain.CatalogEntry
		variant domain.Query
	}
	var candidates []candidate
	seenExternal := make(map[int64]int)
	seenLocal := make(map[int64]struct{})
	for i, entries := range localByVariant {
		for _, entry := range entries {
			if entry.ExternalID != 0 {
				if _, dup := seenExternal[entry.ExternalID]; dup {
					tracer.Trace("dedup", &entry, false, "duplicate external id")
					continue
				}
				seenExternal[entry.ExternalID] = len(candidates)
			} else {
				if _, dup := seenLocal[entry.LocalID]; dup {
					continue
				}
				seenLocal[entry.LocalID] = struct{}{}
			}
			tracer.Trace("local", &entry, true, "local store match")
			candidates = append(candidates, candidate{entry: entry, variant: variants[i]})
		}
	}

	// External consultation decision, in rule order: thin aggregate
	// results, thin original-variant results for a franchise query, or
	// stale local coverage of a franchise query.
	outcome := externalOutcome{skipped: "fresh local coverage"}
	if c.catalog != nil {
		originalCount := len(localByVariant[0])
		consult := ""
		switch {
		case len(candidates) < thresholds.LowResult:
			consult = "below low-result threshold"
		case franchise != nil && originalCount < thresholds.FranchiseResult:
			consult = "franchise query below result threshold"
		case franchise != nil && c.anyStale(localByVariant, started, thresholds.Staleness):
			consult = "stale franchise coverage"
		}

		switch {
		case externalCh != nil:
			// The speculative fetch result is only merged when a consult
			// rule fired; otherwise it is discarded unread (the channel is
			// buffered, so the fetch goroutine never leaks).
			if consult != "" {
				outcome = <-externalCh
			}
		case consult != "":
			limit := thresholds.ExternalLimitBase
			if franchise != nil {
				limit = thresholds.ExternalLimitWide
			}
			outcome = c.fetchExternal(ctx, request.Text, limit)
		}
		if consult != "" && outcome.skipped == "" && outcome.err == nil {
			tracer.Trace("external", nil, true, consult)
		}
	} else {
		outcome.skipped = "no external catalog configured"
	}

	switch {
	case outcome.err != nil:
		tracer.Trace("external", nil, false, "external catalog failed: "+outcome.err.Error())
		slog.Warn("external catalog failed, serving local-only",
			slog.String("query", request.Text),
			slog.String("error", outcome.err.Error()))
	case outcome.skipped != "":
		tracer.Trace("external", nil, false, outcome.skipped)
	}

	var fresh []domain.CatalogEntry
	for _, entry := range outcome.entries {
		if !matchesFilters(&entry, request.Filters) {
			tracer.Trace("filter", &entry, false, "external entry outside filter set")
			continue
		}
		if entry.ExternalID != 0 {
			if i, dup := seenExternal[entry.ExternalID]; dup {
				// Already known locally: the fresh fetch wins the
				// display fields, the local row keeps its identity.
				refreshed := entry.Clone()
				refreshed.LocalID = candidates[i].entry.LocalID
				candidates[i].entry = refreshed
				fresh = append(fresh, refreshed)
				tracer.Trace("dedup", &entry, true, "refreshed local entry from external data")
				continue
			}
			seenExternal[entry.ExternalID] = len(candidates)
		}
		tracer.Trace("external", &entry, true, "external catalog match")
		candidates = append(candidates, candidate{
			entry:   entry,
			variant: domain.Query{Text: request.Text, Filters: request.Filters},
		})
		fresh = append(fresh, entry.Clone())
	}
	if len(fresh) > 0 {
		c.persistDetached(fresh)
	}

	// Classification and scoring are pure, so they run across candidates
	// in parallel. The strict filter drops candidates only when the score
	// is 0 and the verdict is Unofficial; Unknown entries always survive.
	scored := make([]domain.ScoredCandidate, len(candidates))
	var scoreWG sync.WaitGroup
	for i := range candidates {
		scoreWG.Add(1)
		go func(i int) {
			defer scoreWG.Done()
			verdict := classifier.Classify(&candidates[i].entry)
			scored[i] = scorer.Score(&candidates[i].entry, candidates[i].variant, verdict)
		}(i)
	}
	scoreWG.Wait()

	results := make([]domain.ScoredCandidate, 0, len(scored))
	for i := range scored {
		if scored[i].Score == 0 && scored[i].Verdict == domain.VerdictUnofficial {
			tracer.Trace("strict", &scored[i].Entry, false, "zero score and unofficial")
			continue
		}
		tracer.Trace("strict", &scored[i].Entry, true, "retained")
		results = append(results, scored[i])
	}

	sort.SliceStable(results, func(i, j int) bool {
		return compareCandidates(results[i], results[j]) < 0
	})

	response := domain.SearchResponse{
		Query:         NormalizeQuery(request.Text),
		TotalEstimate: len(results),
		Page:          request.Page,
		PageSize:      request.PageSize,
		Trace:         tracer.Decisions(),
	}
	offset := (request.Page - 1) * request.PageSize
	if offset < len(results) {
		end := offset + request.PageSize
		if end > len(results) {
			end = len(results)
		}
		response.Results = results[offset:end]
		response.HasMore = end < len(results)
	} else {
		response.Results = []domain.ScoredCandidate{}
	}
	if !request.Diagnostic {
		for i := range response.Results {
			response.Results[i].Factors = nil
		}
	}
	if len(results) == 0 && outcome.err != nil {
		response.ErrorCode = ErrorCodeSourceUnavailable
	}
	return response, nil
}

// lookupLocal fans the variant queries out over the local store with bounded
// concurrency. The result slice is indexed like variants so the caller can
// tell original-variant counts from expansion counts.
func (c *Coordinator) lookupLocal(ctx context.Context, variants []domain.Query) ([][]domain.CatalogEntry, error) {
	results := make([][]domain.CatalogEntry, len(variants))
	sem := semaphore.NewWeighted(int64(len(variants)))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, variant := range variants {
		wg.Add(1)
		go func(i int, variant domain.Query) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			entries, err := c.store.FindByText(ctx, variant.Text, variant.Filters, localFetchLimit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results[i] = entries
		}(i, variant)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// fetchExternal gates the catalog call behind the breaker and the shared
// token bucket. A request that cannot acquire a token inside its timeout
// window degrades to local-only, same as a network failure.
func (c *Coordinator) fetchExternal(ctx context.Context, query string, limit int) externalOutcome {
	now := time.Now()
	if blocked, lastErr := c.externalBlocked(now); blocked {
		return externalOutcome{skipped: "external catalog blocked: " + lastErr}
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.limiter.Wait(waitCtx); err != nil {
		metrics.RateLimiterSkipsTotal.Inc()
		return externalOutcome{skipped: "rate limiter saturated"}
	}

	callCtx, cancelCall := context.WithTimeout(ctx, c.timeout)
	defer cancelCall()
	callStart := time.Now()
	entries, err := c.catalog.Search(callCtx, query, limit)
	c.recordExternalResult(query, err, time.Since(callStart), time.Now())
	if err != nil {
		return externalOutcome{err: err}
	}
	return externalOutcome{entries: entries}
}

func (c *Coordinator) anyStale(localByVariant [][]domain.CatalogEntry, now time.Time, staleness time.Duration) bool {
	for _, entries := range localByVariant {
		for i := range entries {
			if entries[i].LastSyncedAt == nil || now.Sub(*entries[i].LastSyncedAt) > staleness {
				return true
			}
		}
	}
	return false
}

// persistDetached upserts fresh external data on a background task that is
// deliberately not tied to the request context: partially fetched results are
// still worth keeping when the caller goes away.
func (c *Coordinator) persistDetached(entries []domain.CatalogEntry) {
	c.persistWG.Add(1)
	go func() {
		defer c.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.persistWait)
		defer cancel()

		err := RetryWithBackoff(ctx, DefaultRetryConfig(), func() error {
			return c.store.UpsertBatch(ctx, entries)
		})
		if err != nil {
			metrics.PersistBatchesTotal.WithLabelValues("error").Inc()
			slog.Warn("background persistence failed",
				slog.Int("entries", len(entries)),
				slog.String("error", err.Error()))
			return
		}
		metrics.PersistBatchesTotal.WithLabelValues("ok").Inc()
		metrics.PersistedEntriesTotal.Add(float64(len(entries)))
	}()
}

// matchesFilters applies the request filter predicate to entries that did not
// come through the local store's SQL predicates.
func matchesFilters(entry *domain.CatalogEntry, filters domain.SearchFilters) bool {
	if len(filters.Categories) > 0 && !containsCategory(filters.Categories, entry.Category) {
		return false
	}
	if containsCategory(filters.DenyCategories, entry.Category) {
		return false
	}
	if filters.MinRating > 0 && (entry.Rating == nil || *entry.Rating < filters.MinRating) {
		return false
	}
	minFollows := filters.MinFollows
	if floor := filters.Tier.FollowFloor(); floor > minFollows {
		minFollows = floor
	}
	if minFollows > 0 && !filters.IncludeObscure {
		if entry.Follows == nil || *entry.Follows < minFollows {
			return false
		}
	}
	return true
}

func containsCategory(categories []domain.Category, category domain.Category) bool {
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}
