package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wwfm-inc/wwfm-engine/pkg/cache"
	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
	"github.com/wwfm-inc/wwfm-engine/pkg/config"
	"github.com/wwfm-inc/wwfm-engine/pkg/database"
	"github.com/wwfm-inc/wwfm-engine/pkg/handlers"
	"github.com/wwfm-inc/wwfm-engine/pkg/logging"
	"github.com/wwfm-inc/wwfm-engine/pkg/middleware"
	"github.com/wwfm-inc/wwfm-engine/pkg/repositories"
	"github.com/wwfm-inc/wwfm-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Bool("redis_enabled", cfg.Redis.Enabled()),
		zap.Int("transition_threshold", cfg.Aggregation.TransitionThreshold),
		zap.Int("categories", len(categories.All())))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, database.ConfigFrom(&cfg.Database))
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := migrate(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.String("error", logging.SanitizeError(err)))
	}

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.String("error", logging.SanitizeError(err)))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	summaryCache := cache.NewSummaryCache(redisClient, cfg.Redis.KeyPrefix, cfg.Aggregation.SummaryCacheTTL, logger)

	goalRepo := repositories.NewGoalRepository()
	solutionRepo := repositories.NewSolutionRepository()
	ratingRepo := repositories.NewRatingRepository()
	linkRepo := repositories.NewGoalLinkRepository()

	aggregationService := services.NewAggregationService(solutionRepo, ratingRepo, linkRepo, summaryCache, cfg.Aggregation, logger)
	ratingService := services.NewRatingService(goalRepo, solutionRepo, ratingRepo, linkRepo, aggregationService, summaryCache, cfg.Aggregation, logger)

	mux := http.NewServeMux()
	scope := handlers.ScopeMiddleware(database.WithScope(db, logger))

	handlers.NewHealthHandler(cfg, healthChecks(db, redisClient), logger).RegisterRoutes(mux)
	handlers.NewCategoriesHandler(categories.Default(), logger).RegisterRoutes(mux)
	handlers.NewRatingsHandler(ratingService, logger).RegisterRoutes(mux, scope)
	handlers.NewAggregatesHandler(ratingService, aggregationService, logger).RegisterRoutes(mux, scope)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting wwfm-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""))

		var err error
		if cfg.TLSCertPath != "" {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsLocal() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// migrate runs the embedded migrations over a short-lived database/sql
// handle; golang-migrate does not speak pgxpool.
func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return database.RunMigrations(sqlDB, logger)
}

func healthChecks(db *database.DB, redisClient *redis.Client) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{
		"postgres": db.Ping,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
