package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/noah-isme/voter-support-api/api/swagger"
	"github.com/noah-isme/voter-support-api/internal/handler"
	"github.com/noah-isme/voter-support-api/internal/repository"
	"github.com/noah-isme/voter-support-api/internal/router"
	"github.com/noah-isme/voter-support-api/internal/service"
	"github.com/noah-isme/voter-support-api/pkg/cache"
	"github.com/noah-isme/voter-support-api/pkg/config"
	"github.com/noah-isme/voter-support-api/pkg/database"
	"github.com/noah-isme/voter-support-api/pkg/events"
	"github.com/noah-isme/voter-support-api/pkg/faq"
	"github.com/noah-isme/voter-support-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	rateLimitStore, err := newRateLimitStore(cfg.ChatSupport.RateLimitBackend, db, redisClient)
	if err != nil {
		return err
	}

	catalog, err := faq.Load(cfg.ChatSupport.FAQFile)
	if err != nil {
		return fmt.Errorf("load faqs: %w", err)
	}

	producer := events.NewProducer(cfg.Kafka, logr)
	defer producer.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.ChatSupport.StatsCacheTTL, logr, redisClient != nil)

	supportRepo := repository.NewSupportRequestRepository(db)
	limiter := service.NewRateLimiter(rateLimitStore, service.RateLimiterConfig{
		Cooldown:    cfg.ChatSupport.Cooldown,
		KeyStrategy: cfg.ChatSupport.RateLimitKey,
	}, logr)

	lifecycle := service.NewSupportRequestService(
		supportRepo,
		repository.NewDepartmentRepository(db),
		service.NewSupportRequestValidator(time.Now),
		limiter,
		repository.NewAuditRepository(db),
		producer,
		cacheSvc,
		metricsSvc,
		validator.New(),
		logr,
		service.SupportRequestServiceConfig{
			StoreTimeout:      cfg.ChatSupport.StoreTimeout,
			StrictTransitions: cfg.ChatSupport.StrictTransitions,
			BulkMaxItems:      cfg.ChatSupport.BulkMaxItems,
		},
	)
	query := service.NewSupportQueryService(supportRepo, cacheSvc, metricsSvc, logr, service.SupportQueryServiceConfig{
		StoreTimeout:  cfg.ChatSupport.StoreTimeout,
		ExportTimeout: cfg.ChatSupport.ExportTimeout,
		StatsCacheTTL: cfg.ChatSupport.StatsCacheTTL,
	})

	engine := router.New(router.Options{
		Logger:         logr,
		Tokens:         service.NewTokenVerifier(cfg.JWT),
		Metrics:        metricsSvc,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		APIPrefix:      cfg.APIPrefix,
		EnableMetrics:  cfg.Metrics.Enabled,
		EnableSwagger:  cfg.Swagger.Enabled && cfg.Env != config.EnvProduction,
	},
		handler.NewChatSupportHandler(lifecycle, query, catalog),
		handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient)),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env,
			"rate_limit_backend", cfg.ChatSupport.RateLimitBackend, "rate_limit_key", cfg.ChatSupport.RateLimitKey)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newRateLimitStore(backend string, db *sqlx.DB, client *redis.Client) (service.RateLimitStore, error) {
	switch backend {
	case config.RateLimitBackendRedis:
		if client == nil {
			return nil, errors.New("rate limit backend redis requires REDIS_ENABLED with a reachable server")
		}
		return repository.NewRedisRateLimitRepository(client), nil
	case config.RateLimitBackendMemory:
		return service.NewMemoryRateLimitStore(), nil
	default:
		return repository.NewRateLimitRepository(db), nil
	}
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}
