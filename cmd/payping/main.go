package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/appdata"
	"github.com/boddenberg/payping-sync-go/internal/config"
	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/boddenberg/payping-sync-go/internal/handler"
	"github.com/boddenberg/payping-sync-go/internal/identity"
	"github.com/boddenberg/payping-sync-go/internal/infra/cache"
	"github.com/boddenberg/payping-sync-go/internal/infra/localstate"
	"github.com/boddenberg/payping-sync-go/internal/infra/memstore"
	"github.com/boddenberg/payping-sync-go/internal/infra/observability"
	"github.com/boddenberg/payping-sync-go/internal/infra/realtime"
	"github.com/boddenberg/payping-sync-go/internal/infra/resilience"
	"github.com/boddenberg/payping-sync-go/internal/infra/supabase"
	"github.com/boddenberg/payping-sync-go/internal/port"
	"github.com/boddenberg/payping-sync-go/internal/service"
	"github.com/boddenberg/payping-sync-go/internal/subscription"

	"go.uber.org/zap"
)

// devSessionTTL is the access token lifetime of the in-memory backend.
const devSessionTTL = time.Hour

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_supabase", cfg.UseSupabase),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("realtime_heartbeat", cfg.RealtimeHeartbeat),
		zap.String("local_state_path", cfg.LocalStatePath),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "payping-sync")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	settingsCache := cache.New[domain.Settings](cfg.CacheTTL)
	defer settingsCache.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
	}

	// --- Backend & identity ---
	var (
		remote port.DataStore
		feed   port.ChangeFeed
		gate   *identity.Gate
	)

	if cfg.UseSupabase && cfg.SupabaseURL != "" {
		logger.Info("using Supabase as data backend",
			zap.String("supabase_url", cfg.SupabaseURL),
		)
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		cb := resilience.NewCircuitBreaker("supabase", logger)
		bh := resilience.NewBulkhead(cfg.MaxConcurrency)

		remote = supabase.NewClient(httpClient, cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseServiceKey, cb, bh, logger)
		gate = identity.NewGate(supabase.NewAuth(httpClient, cfg.SupabaseURL, cfg.SupabaseAnonKey, logger), cfg.SupabaseJWTSecret, logger)
		rt, err := realtime.NewFeed(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.RealtimeHeartbeat, resilienceCfg, logger)
		if err != nil {
			logger.Fatal("failed to init realtime feed", zap.Error(err))
		}
		feed = rt.WithTokens(gate)
	} else {
		logger.Warn("Supabase not configured, using in-memory backend",
			zap.Int("dev_users", len(cfg.DevUsers)),
		)
		mem := memstore.New()
		devAuth, err := memstore.NewAuthenticator(cfg.SupabaseJWTSecret, devSessionTTL, cfg.DevUsers)
		if err != nil {
			logger.Fatal("invalid DEV_USERS", zap.Error(err))
		}
		remote, feed = mem, mem
		gate = identity.NewGate(devAuth, cfg.SupabaseJWTSecret, logger)
	}
	defer gate.Close()

	// --- Services ---
	gateway := service.NewGateway(remote, gate, settingsCache, metrics, logger)
	defer gateway.Close()

	store := appdata.New(gateway, gate, metrics, logger)
	store.LoadTimeout = cfg.HTTPTimeout
	store.Start()
	defer store.Close()

	push := subscription.NewManager(feed, gateway, gate, resilienceCfg, metrics, logger)
	unbind := push.Bind(store)
	defer unbind()

	onboarding := service.NewOnboarding(localstate.NewFileStore(cfg.LocalStatePath), logger)

	// --- Router ---
	router := handler.NewRouter(store, gate, onboarding, push, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// /v1/stream holds its connection open; writes carry their own deadlines.
		IdleTimeout: 60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
