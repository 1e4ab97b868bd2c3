// Package apihttp exposes the search pipeline over HTTP: the search and
// diagnostics endpoints, policy reload, health and Prometheus metrics.
package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gamedex/searchservice/internal/domain"
	"gamedex/searchservice/internal/search"
)

const maxQueryLength = 500

// SearchService is the pipeline surface the server needs.
type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error)
	ExternalStatus(now time.Time) search.ExternalStatus
}

// PolicyReloader re-reads the policy file and swaps the active snapshot.
type PolicyReloader interface {
	Reload() error
}

// StoreStats reports local catalog size for the health endpoint.
type StoreStats interface {
	Count(ctx context.Context) (int64, error)
}

type Server struct {
	search   SearchService
	policies PolicyReloader
	stats    StoreStats
	logger   *slog.Logger
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithPolicyReloader(policies PolicyReloader) ServerOption {
	return func(s *Server) {
		s.policies = policies
	}
}

func WithStoreStats(stats StoreStats) ServerOption {
	return func(s *Server) {
		s.stats = stats
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search: searchService,
		logger: slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/policy/reload", s.handlePolicyReload)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "catalog-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}
	if s.stats != nil {
		if count, err := s.stats.Count(r.Context()); err == nil {
			payload["entries"] = count
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	s.serveSearch(w, r, parseOptionalBool(r.URL.Query().Get("diagnostic")))
}

// handleDiagnostics runs the same pipeline with tracing on: the response
// keeps per-candidate filter decisions and score factor breakdowns, plus the
// external catalog breaker state.
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/diagnostics" {
		http.NotFound(w, r)
		return
	}
	s.serveSearch(w, r, true)
}

func (s *Server) serveSearch(w http.ResponseWriter, r *http.Request, diagnostic bool) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}
	page, err := parsePositiveInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid page")
		return
	}
	pageSize, err := parsePositiveInt(r, "pageSize", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid pageSize")
		return
	}
	filters, err := parseSearchFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	request := domain.SearchRequest{
		Text:       query,
		Filters:    filters,
		Page:       page,
		PageSize:   pageSize,
		Diagnostic: diagnostic,
		NoCache:    parseOptionalBool(r.URL.Query().Get("nocache")) || parseOptionalBool(r.URL.Query().Get("noCache")),
	}

	response, err := s.search.Search(r.Context(), request)
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(query, 80)),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, search.ErrInvalidQuery), errors.Is(err, search.ErrInvalidPage):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, search.ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		}
		return
	}

	s.logger.Info("search completed",
		slog.String("query", truncate(query, 80)),
		slog.Int("results", len(response.Results)),
		slog.Int("totalEstimate", response.TotalEstimate),
		slog.Int64("elapsedMs", response.ElapsedMS),
	)

	if !diagnostic {
		writeJSON(w, http.StatusOK, response)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"response": response,
		"external": s.search.ExternalStatus(time.Now()),
	})
}

func (s *Server) handlePolicyReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.policies == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "policy reload is not configured")
		return
	}
	if err := s.policies.Reload(); err != nil {
		s.logger.Error("policy reload failed", slog.String("error", err.Error()))
		writeError(w, http.StatusUnprocessableEntity, "invalid_policy", err.Error())
		return
	}
	s.logger.Info("policy reloaded")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "reloaded",
		"timestamp": time.Now().UTC(),
	})
}

func parseSearchFilters(r *http.Request) (domain.SearchFilters, error) {
	values := r.URL.Query()
	var filters domain.SearchFilters

	var err error
	if filters.Categories, err = parseCategories(values.Get("categories")); err != nil {
		return filters, err
	}
	if filters.DenyCategories, err = parseCategories(values.Get("denyCategories")); err != nil {
		return filters, err
	}
	if raw := strings.TrimSpace(values.Get("minRating")); raw != "" {
		rating, err := strconv.ParseFloat(raw, 64)
		if err != nil || rating < 0 || rating > 100 {
			return filters, errors.New("minRating must be a number between 0 and 100")
		}
		filters.MinRating = rating
	}
	if raw := strings.TrimSpace(values.Get("minFollows")); raw != "" {
		follows, err := strconv.Atoi(raw)
		if err != nil || follows < 0 {
			return filters, errors.New("minFollows must be a non-negative integer")
		}
		filters.MinFollows = follows
	}
	switch tier := domain.PopularityTier(strings.ToLower(strings.TrimSpace(values.Get("tier")))); tier {
	case domain.TierAny, domain.TierNiche, domain.TierKnown, domain.TierHit:
		filters.Tier = tier
	default:
		return filters, errors.New("tier must be one of niche, known, hit")
	}
	filters.IncludeObscure = parseOptionalBool(values.Get("includeObscure"))
	return filters, nil
}

func parseCategories(raw string) ([]domain.Category, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	categories := make([]domain.Category, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		category, ok := domain.ParseCategory(part)
		if !ok {
			return nil, errors.New("unknown category: " + strings.TrimSpace(part))
		}
		categories = append(categories, category)
	}
	return categories, nil
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, errors.New("invalid " + key)
	}
	return value, nil
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
