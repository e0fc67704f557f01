package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/ideoscope/internal/api"
	"github.com/ZanzyTHEbar/ideoscope/internal/cache"
	"github.com/ZanzyTHEbar/ideoscope/internal/catalog"
	"github.com/ZanzyTHEbar/ideoscope/internal/config"
	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	"github.com/ZanzyTHEbar/ideoscope/internal/i18n"
	"github.com/ZanzyTHEbar/ideoscope/internal/insights"
	"github.com/ZanzyTHEbar/ideoscope/internal/leaderboard"
	"github.com/ZanzyTHEbar/ideoscope/internal/monitoring"
	"github.com/ZanzyTHEbar/ideoscope/internal/narrative"
	"github.com/ZanzyTHEbar/ideoscope/internal/payments"
	"github.com/ZanzyTHEbar/ideoscope/internal/privacy"
	"github.com/ZanzyTHEbar/ideoscope/internal/ratelimit"
	"github.com/ZanzyTHEbar/ideoscope/internal/resilience"
	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
	"github.com/ZanzyTHEbar/ideoscope/internal/security"
)

// heapWarnBytes is the heap size above which the runtime sampler warns.
const heapWarnBytes = 512 << 20

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./ideoscope.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := monitoring.NewLoggerWithOptions(monitoring.LogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	slog.SetDefault(logger.Logger)
	gin.SetMode(cfg.Server.GinMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}

	go srv.degradation.StartHealthChecks(ctx)
	go srv.privacy.ScheduleDataCleanup(ctx, cfg.Privacy.CleanupInterval)
	srv.leaderboard.WarmCache(ctx)
	go srv.leaderboard.StartAutoRefresh(ctx, cfg.Cache.LeaderboardRefresh)
	srv.sampler.Start(ctx)
	if cfg.Alerting.Enabled {
		go srv.alerts.Start(ctx)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting server",
			"port", cfg.Server.Port,
			"narrative_enabled", srv.narrative.Enabled(),
			"payments_enabled", cfg.PaymentsEnabled(),
			"redis_enabled", srv.redis.IsEnabled(),
			"tracing_enabled", cfg.Telemetry.Enabled,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	cancel()
	srv.sampler.Stop()
	srv.Close(shutdownCtx)

	slog.Info("Server exited")
}

// server is the wired application. Close releases everything newServer
// opened, in reverse order.
type server struct {
	router      *gin.Engine
	handlers    *api.Handlers
	degradation *resilience.DegradationManager
	sampler     *monitoring.RuntimeSampler
	narrative   *narrative.Client
	redis       *ratelimit.RedisClient
	privacy     *privacy.Service
	leaderboard *leaderboard.Service
	alerts      *monitoring.AlertManager

	closers []func(context.Context)
}

func (s *server) onClose(fn func(context.Context)) {
	s.closers = append(s.closers, fn)
}

// Close runs the registered cleanups, newest first.
func (s *server) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i](ctx)
	}
	s.closers = nil
}

func newServer(ctx context.Context, cfg *config.Config, logger *monitoring.Logger) (_ *server, err error) {
	srv := &server{}
	defer func() {
		if err != nil {
			srv.Close(context.Background())
		}
	}()

	metrics := monitoring.NewMetrics()

	shutdownTracing, err := monitoring.InitTracing(ctx, monitoring.TracingConfig{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     api.Version,
		Environment: cfg.Telemetry.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		SampleRatio: cfg.Telemetry.SampleRatio,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	srv.onClose(func(ctx context.Context) {
		if err := shutdownTracing(ctx); err != nil {
			slog.Warn("Tracer shutdown failed", "error", err)
		}
	})

	db, err := database.NewDB(database.Config{
		DataDir:         cfg.Database.DataDir,
		File:            cfg.Database.File,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	srv.onClose(func(context.Context) { _ = db.Close() })

	repo := database.NewRepository(db)
	seeded, err := repo.SeedIfEmpty(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed catalog: %w", err)
	}
	if seeded {
		logger.SystemLogger("catalog_seeded", "loaded default catalog into empty database")
	}
	users := database.NewUserService(repo, cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)

	store := catalog.NewStore(repo, cfg.Cache.CatalogTTL)
	srv.onClose(func(context.Context) { store.Close() })

	localizer, err := i18n.NewLocalizer(repo, cfg.Scoring.DefaultLanguage, cfg.Cache.CatalogTTL)
	if err != nil {
		return nil, fmt.Errorf("load translations: %w", err)
	}
	srv.onClose(func(context.Context) { localizer.Close() })

	engine := scoring.NewEngine(scoring.Config{
		MissingAnswerPolicy: cfg.MissingAnswerPolicy(),
		Seed:                cfg.Scoring.Seed,
	})

	redisClient, err := ratelimit.NewRedisClient(ctx, ratelimit.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		slog.Warn("Redis unavailable, using in-memory rate limiting", "error", err)
	}
	srv.redis = redisClient
	srv.onClose(func(context.Context) { _ = redisClient.Close() })

	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
		IPLimit:         cfg.RateLimit.IPPerMin,
		NarrativeLimit:  cfg.RateLimit.NarrativePerWeek,
		BurstMultiplier: cfg.RateLimit.BurstMultiplier,
	}, metrics)
	srv.onClose(func(context.Context) { limiter.Close() })

	degradation := resilience.NewDegradationManager(resilience.DefaultDegradationConfig())
	degradation.RegisterService("database", db.HealthCheck, false)
	if redisClient.IsEnabled() {
		degradation.RegisterService("redis", redisClient.HealthCheck, true)
	}
	srv.degradation = degradation

	breakers := resilience.NewCircuitBreakerRegistry()
	breaker := breakers.GetOrCreate(narrative.APIName(), resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
		OnStateChange: func(from, to resilience.CircuitBreakerState) {
			switch to {
			case resilience.StateOpen:
				metrics.IncrementCircuitBreakerOpen()
			case resilience.StateClosed:
				metrics.IncrementCircuitBreakerClose()
			}
			slog.Warn("Narrative circuit breaker state changed", "from", from, "to", to)
		},
	})
	pool := resilience.NewConnectionPool(resilience.PoolConfig{
		MaxIdle:        5,
		MaxActive:      10,
		IdleTimeout:    90 * time.Second,
		RequestTimeout: cfg.Narrative.Timeout,
		Retry:          resilience.DefaultRetryConfig(),
	}, breaker)
	srv.onClose(func(context.Context) { _ = pool.Close() })

	narrativeClient := narrative.NewClient(narrative.Config{
		APIKey:   cfg.Narrative.APIKey,
		Model:    cfg.Narrative.Model,
		Endpoint: cfg.Narrative.Endpoint,
		Timeout:  cfg.Narrative.Timeout,
	}, pool, localizer, logger, metrics, degradation)
	if narrativeClient.Enabled() {
		degradation.RegisterService(narrative.APIName(), narrativeClient.HealthCheck, true)
	} else {
		slog.Warn("Narrative API key not configured, narrative analysis disabled")
	}
	srv.narrative = narrativeClient

	paymentService := payments.NewService(payments.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		ProPriceID:    cfg.Stripe.ProPriceID,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	}, users, limiter, nil)
	if !paymentService.Enabled() {
		slog.Warn("Stripe secret key not configured, payment features disabled")
	}

	responseCache := cache.NewCache[[]byte](cfg.Cache.ResponseTTL)
	srv.onClose(func(context.Context) { responseCache.Close() })

	srv.privacy = privacy.NewService(db, repo, cfg.Privacy.RetentionDays)
	srv.leaderboard = leaderboard.NewService(db, repo, cfg.Cache.LeaderboardTTL)
	srv.onClose(func(context.Context) { srv.leaderboard.Close() })

	srv.alerts = monitoring.NewAlertManager(logger, cfg.Alerting.Interval)
	for _, rule := range monitoring.DefaultAlertRules(metrics) {
		srv.alerts.AddRule(rule)
	}
	srv.alerts.AddRule(monitoring.AlertRule{
		Name:        "NarrativeBreakerOpen",
		Description: "Narrative provider circuit breaker is open",
		Severity:    monitoring.SeverityError,
		Operator:    "gt",
		Threshold:   0,
		Value: func() float64 {
			if breaker.State() == resilience.StateOpen {
				return 1
			}
			return 0
		},
	})
	if cfg.Alerting.WebhookURL != "" {
		srv.alerts.AddNotifier(monitoring.NewWebhookNotifier(cfg.Alerting.WebhookURL, 5*time.Second))
	}

	opts := api.Options{
		Security: security.Config{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
			MaxBodyBytes:   security.DefaultConfig().MaxBodyBytes,
			EnableHSTS:     cfg.Server.EnableHSTS,
		},
		CookieName:    cfg.Auth.CookieName,
		SecureCookie:  cfg.Server.EnableHSTS,
		SessionPerMin: cfg.RateLimit.SessionPerMin,
		ServiceName:   cfg.Telemetry.ServiceName,
		Tracing:       cfg.Telemetry.Enabled,
		Profiling:     cfg.Server.EnableProfiling,
		Compression:   cfg.Server.EnableCompression,
	}

	srv.handlers = api.NewHandlers(api.Deps{
		DB:            db,
		Repo:          repo,
		Users:         users,
		Insights:      insights.NewService(repo, store, engine, logger, metrics),
		Catalog:       store,
		Localizer:     localizer,
		Narrative:     narrativeClient,
		Payments:      paymentService,
		Privacy:       srv.privacy,
		Alerts:        srv.alerts,
		Leaderboard:   srv.leaderboard,
		Limiter:       limiter,
		Redis:         redisClient,
		Degradation:   degradation,
		Breakers:      breakers,
		Metrics:       metrics,
		Logger:        logger,
		ResponseCache: responseCache,
	}, opts)
	srv.router = api.NewRouter(srv.handlers, opts)

	// Started and stopped by the caller.
	srv.sampler = monitoring.NewRuntimeSampler(metrics, logger, 30*time.Second, heapWarnBytes)

	return srv, nil
}
