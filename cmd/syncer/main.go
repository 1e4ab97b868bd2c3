// The syncer backfills stale catalog entries from the external catalog in
// batches. It is meant to run as a cron job or one-shot container next to the
// search service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"gamedex/searchservice/internal/app"
	"gamedex/searchservice/internal/domain"
	"gamedex/searchservice/internal/metrics"
	"gamedex/searchservice/internal/policy"
	"gamedex/searchservice/internal/providers/igdb"
	"gamedex/searchservice/internal/store/sqlite"
)

const (
	batchSize  = 100
	maxBatches = 1000
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	policies, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		logger.Error("policy load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("store open failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	client := igdb.NewClient(igdb.Config{
		ClientID:     cfg.IGDBClientID,
		ClientSecret: cfg.IGDBSecret,
		BaseURL:      cfg.IGDBBaseURL,
		Client:       &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	})
	if !client.Enabled() {
		logger.Error("igdb credentials not configured, nothing to sync against")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	staleness := policies.Current().Thresholds().Staleness
	cutoff := time.Now().Add(-staleness)
	limiter := rate.NewLimiter(rate.Limit(cfg.ExternalRPS), cfg.ExternalBurst)

	total, err := store.Count(ctx)
	if err != nil {
		logger.Error("store count failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("sync started",
		slog.Int64("entries", total),
		slog.Duration("staleness", staleness),
		slog.Time("cutoff", cutoff),
	)

	started := time.Now()
	updated, missing := 0, 0
	attempted := make(map[int64]struct{})

	for batch := 0; batch < maxBatches; batch++ {
		stale, err := store.ListStale(ctx, cutoff, batchSize)
		if err != nil {
			logger.Error("list stale failed", slog.String("error", err.Error()))
			os.Exit(1)
		}

		byID := make(map[int64]domain.CatalogEntry, len(stale))
		ids := make([]int64, 0, len(stale))
		for _, entry := range stale {
			if _, seen := attempted[entry.ExternalID]; seen {
				continue
			}
			attempted[entry.ExternalID] = struct{}{}
			byID[entry.ExternalID] = entry
			ids = append(ids, entry.ExternalID)
		}
		if len(ids) == 0 {
			break
		}

		if err := limiter.Wait(ctx); err != nil {
			logger.Warn("sync interrupted", slog.String("error", err.Error()))
			break
		}
		fetched, err := client.FetchByIDs(ctx, ids)
		if err != nil {
			metrics.SyncedEntriesTotal.WithLabelValues("failed").Add(float64(len(ids)))
			logger.Warn("fetch batch failed",
				slog.Int("ids", len(ids)),
				slog.String("error", err.Error()))
			continue
		}

		now := time.Now().UTC()
		refreshed := make([]domain.CatalogEntry, 0, len(ids))
		for i := range fetched {
			fetched[i].LastSyncedAt = &now
			delete(byID, fetched[i].ExternalID)
			refreshed = append(refreshed, fetched[i])
		}
		// IDs the upstream no longer knows still get their sync stamp
		// bumped, otherwise they would be re-fetched every run.
		for _, leftover := range byID {
			stamped := leftover.Clone()
			stamped.LastSyncedAt = &now
			refreshed = append(refreshed, stamped)
			missing++
		}

		if err := store.UpsertBatch(ctx, refreshed); err != nil {
			metrics.SyncedEntriesTotal.WithLabelValues("failed").Add(float64(len(refreshed)))
			logger.Warn("upsert batch failed",
				slog.Int("entries", len(refreshed)),
				slog.String("error", err.Error()))
			continue
		}
		updated += len(fetched)
		metrics.SyncedEntriesTotal.WithLabelValues("updated").Add(float64(len(fetched)))
		metrics.SyncedEntriesTotal.WithLabelValues("missing").Add(float64(len(byID)))

		logger.Info("batch synced",
			slog.Int("batch", batch+1),
			slog.Int("updated", updated),
			slog.Int("missing", missing),
			slog.Int64("elapsedMs", time.Since(started).Milliseconds()),
		)
	}

	logger.Info("sync complete",
		slog.Int("updated", updated),
		slog.Int("missing", missing),
		slog.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
