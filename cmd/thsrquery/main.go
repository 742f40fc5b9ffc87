package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"thsrquery/internal/aggregator"
	"thsrquery/internal/auth"
	"thsrquery/internal/cache"
	"thsrquery/internal/config"
	"thsrquery/internal/fixtures"
	"thsrquery/internal/handler"
	"thsrquery/internal/middleware"
	"thsrquery/pkg/tdx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	_, live := config.LookupCredentials()
	logger.Info("starting thsrquery server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"tdx_api_url", cfg.TDXAPIBaseURL,
		"live", live,
		"redis_enabled", cfg.RedisEnabled,
	)

	fx, err := fixtures.Load()
	if err != nil {
		logger.Error("failed to load fixtures", "error", err)
		os.Exit(1)
	}

	taipei, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		taipei = time.FixedZone("CST", 8*60*60)
	}

	stationCache, closeCache := newStationCache(cfg, logger)
	defer closeCache()

	apiClient := tdx.New(cfg.TDXAPIBaseURL, tdx.WithTimeout(cfg.UpstreamTimeout))
	tokens := auth.NewManager(cfg.TDXAuthURL, logger,
		auth.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout}),
		auth.WithRefreshMargin(cfg.TokenRefreshMargin),
	)

	svc := aggregator.New(apiClient, tokens, stationCache, fx, aggregator.Options{
		StationTTL:         cfg.StationCacheTTL,
		TimetableCacheSize: cfg.TimetableCacheSize,
		TimetableTTL:       cfg.TimetableCacheTTL,
	}, logger)

	warmer := cache.NewWarmer(svc.StationRefresher(config.LookupCredentials), taipei, logger)

	stats := handler.NewStats()
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	rateLimiter.OnLimited(stats.IncRateLimitBlocked)

	tdxHandler := handler.NewTDXHandler(svc, config.LookupCredentials, logger)
	healthHandler := handler.NewHealthHandler(config.LookupCredentials, stationCache.Backend())
	statsHandler := handler.NewStatsHandler(stats, svc.Stats, tokens.Stats, rateLimiter.Stats)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, tdxHandler, healthHandler, statsHandler)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.Logging(logger),
			middleware.Recovery(logger),
			stats.Count,
			handler.CORSMiddleware(cfg.CORSAllowedOrigins),
			rateLimiter.Middleware,
			handler.GzipMiddleware,
		),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go rateLimiter.Run(ctx)

	if cfg.CacheWarmOnStart && live {
		go func() {
			if err := warmer.WarmAll(ctx); err != nil {
				logger.Warn("initial station warm failed", "error", err)
			}
		}()
	}
	go warmer.ScheduleMidnightRefresh(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// newStationCache returns Redis when it is enabled and reachable and the
// in-process cache otherwise.
func newStationCache(cfg *config.Config, logger *slog.Logger) (cache.Store, func()) {
	if cfg.RedisEnabled {
		rc, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err == nil {
			logger.Info("redis cache connected", "addr", cfg.RedisAddr)
			return rc, func() {
				if err := rc.Close(); err != nil {
					logger.Warn("redis close failed", "error", err)
				}
			}
		}
		logger.Warn("redis unavailable, using memory cache", "addr", cfg.RedisAddr, "error", err)
	}
	return cache.NewMemoryCache(cfg.StationCacheTTL, logger), func() {}
}
