package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/crm-api-go/internal/config"
	"github.com/boddenberg/crm-api-go/internal/handler"
	"github.com/boddenberg/crm-api-go/internal/infra/cache"
	"github.com/boddenberg/crm-api-go/internal/infra/memory"
	"github.com/boddenberg/crm-api-go/internal/infra/observability"
	"github.com/boddenberg/crm-api-go/internal/infra/postgres"
	"github.com/boddenberg/crm-api-go/internal/infra/resilience"
	"github.com/boddenberg/crm-api-go/internal/infra/supabase"
	"github.com/boddenberg/crm-api-go/internal/port"
	"github.com/boddenberg/crm-api-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("jwt_refresh_ttl", cfg.JWTRefreshTTL),
		zap.Bool("strict_lead_transitions", cfg.StrictLeadTransitions),
	)

	// --- Tracing ---
	otlpEndpoint := ""
	if cfg.TracingEnabled {
		otlpEndpoint = cfg.OTLPEndpoint
	}
	shutdown, err := observability.InitTracer(otlpEndpoint, "crm-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	hashing := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- Store ---
	store, closeStore, err := openStore(cfg, resilienceCfg, metrics, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	checks := []handler.HealthCheck{{Name: cfg.StoreBackend, Ping: store.Ping}}

	// --- Ownership cache ---
	var owners port.Cache[string]
	switch cfg.CacheBackend {
	case "redis":
		rdb, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("failed to create redis client", zap.Error(err))
		}
		redisCache := cache.NewRedis[string](rdb, "crm:owner:", cfg.CacheTTL, logger)
		defer redisCache.Close()
		owners = redisCache
		checks = append(checks, handler.HealthCheck{Name: "redis", Ping: redisCache.Ping})
		logger.Info("ownership cache backed by redis", zap.String("addr", cfg.RedisAddr))
	default:
		memCache := cache.New[string](cfg.CacheTTL)
		defer memCache.Close()
		owners = memCache
	}

	// --- Services ---
	tokens := service.NewTokenService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	authSvc := service.NewAuthService(store, tokens, hashing, cfg.BcryptCost, metrics, logger)
	customerSvc := service.NewCustomerService(store, store, owners, metrics, logger)
	leadSvc := service.NewLeadService(store, store, owners, cfg.StrictLeadTransitions, metrics, logger)

	if cfg.AdminEmail != "" {
		seedCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := authSvc.EnsureAdmin(seedCtx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword)
		cancel()
		if err != nil {
			logger.Fatal("failed to seed admin", zap.Error(err))
		}
	}

	// --- Router ---
	router := handler.NewRouter(authSvc, customerSvc, leadSvc, handler.NewAccessGuard(tokens), checks, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
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
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openStore builds the configured persistence backend. The returned func
// releases its resources.
func openStore(cfg *config.Config, resilienceCfg resilience.Config, metrics *observability.Metrics, logger *zap.Logger) (port.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if cfg.MigrationsEnabled {
			if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
				return nil, nil, fmt.Errorf("run migrations: %w", err)
			}
			logger.Info("database migrations applied")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := postgres.NewStore(ctx, cfg.DatabaseURL, resilience.NewCircuitBreaker("postgres"), resilienceCfg, logger, metrics)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using PostgreSQL store")
		return store, store.Close, nil

	case config.BackendSupabase:
		client := supabase.NewClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilienceCfg,
			logger,
			metrics,
		)
		logger.Info("using Supabase store", zap.String("supabase_url", cfg.SupabaseURL))
		return supabase.NewStore(client), func() {}, nil

	default:
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}
}
