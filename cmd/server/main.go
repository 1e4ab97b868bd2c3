package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	apihttp "gamedex/searchservice/internal/api/http"
	"gamedex/searchservice/internal/app"
	"gamedex/searchservice/internal/metrics"
	"gamedex/searchservice/internal/policy"
	"gamedex/searchservice/internal/providers/igdb"
	"gamedex/searchservice/internal/search"
	"gamedex/searchservice/internal/store/sqlite"
	"gamedex/searchservice/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "catalog-search")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "catalog-search"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("dbPath", cfg.DatabasePath),
		slog.String("policyPath", cfg.PolicyPath),
		slog.String("logLevel", cfg.LogLevel),
		slog.Duration("externalTimeout", cfg.ExternalTimeout),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasIGDBCredentials", cfg.IGDBClientID != "" && cfg.IGDBSecret != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
	)

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

	redisClient := buildRedisClient(cfg, logger)

	coordinatorOpts := []search.CoordinatorOption{
		search.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.ExternalRPS), cfg.ExternalBurst)),
		search.WithCacheTTL(cfg.CacheTTL),
		search.WithCacheDisabled(cfg.CacheDisabled),
	}
	if redisClient != nil {
		coordinatorOpts = append(coordinatorOpts, search.WithRedisCache(search.NewRedisCacheBackend(redisClient)))
	}

	igdbClient := igdb.NewClient(igdb.Config{
		ClientID:     cfg.IGDBClientID,
		ClientSecret: cfg.IGDBSecret,
		BaseURL:      cfg.IGDBBaseURL,
		Client:       &http.Client{Timeout: cfg.ExternalTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Redis:        redisClient,
		CacheTTL:     cfg.IGDBCacheTTL,
	})
	if igdbClient.Enabled() {
		coordinatorOpts = append(coordinatorOpts, search.WithExternalCatalog(igdbClient))
	} else {
		logger.Warn("igdb credentials not configured, searches run local-only")
	}

	coordinator := search.NewCoordinator(store, policies, cfg.ExternalTimeout, coordinatorOpts...)

	handler := apihttp.NewServer(coordinator,
		apihttp.WithLogger(logger),
		apihttp.WithPolicyReloader(policies),
		apihttp.WithStoreStats(store),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGHUP reloads the policy file in place; an invalid file keeps the
	// current snapshot active.
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			if err := policies.Reload(); err != nil {
				logger.Error("policy reload failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("policy reloaded on SIGHUP")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("catalog search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("externalTimeout", cfg.ExternalTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	coordinator.WaitPersistence()
	logger.Info("catalog search service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
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

func buildRedisClient(cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}
