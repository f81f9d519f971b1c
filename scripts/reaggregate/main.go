// reaggregate rebuilds goal implementation link aggregates from ratings.
//
// It runs the same recompute the live rating path runs, so it doubles as
// the repair tool for aggregates left stale by a failed recompute and as a
// backfill after field definitions change.
//
// Usage:
//
//	go run ./scripts/reaggregate pair <goal-id> <variant-id>
//	go run ./scripts/reaggregate all [--dry-run] [--workers 4]
//	go run ./scripts/reaggregate audit [--batch-size 500]
//
// Configuration comes from config.yaml (or --config) with the usual
// environment overrides; PGPASSWORD must be set.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wwfm-inc/wwfm-engine/pkg/cache"
	"github.com/wwfm-inc/wwfm-engine/pkg/config"
	"github.com/wwfm-inc/wwfm-engine/pkg/database"
	"github.com/wwfm-inc/wwfm-engine/pkg/logging"
	"github.com/wwfm-inc/wwfm-engine/pkg/repositories"
	"github.com/wwfm-inc/wwfm-engine/pkg/services"
)

var (
	configPath string
	verbose    bool
)

// env holds everything a subcommand needs. ctx carries a system database
// scope, so repository calls bypass the per-user write policy.
type env struct {
	ctx          context.Context
	db           *database.DB
	logger       *zap.Logger
	solutionRepo repositories.SolutionRepository
	ratingRepo   repositories.RatingRepository
	linkRepo     repositories.GoalLinkRepository
	aggregation  services.AggregationService
	close        func()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reaggregate",
		Short:         "Rebuild solution field aggregates from ratings",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newPairCmd(), newAllCmd(), newAuditCmd())
	return root
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.LoadFile(configPath, "reaggregate")
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	zcfg := zap.NewDevelopmentConfig()
	if !verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	db, err := database.NewConnection(ctx, database.ConfigFrom(&cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("connect: %s", logging.SanitizeError(err))
	}

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, cached summaries will expire on their own",
			zap.String("error", logging.SanitizeError(err)))
		redisClient = nil
	}
	summaryCache := cache.NewSummaryCache(redisClient, cfg.Redis.KeyPrefix, cfg.Aggregation.SummaryCacheTTL, logger)

	scoped, release, err := db.SystemContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	solutionRepo := repositories.NewSolutionRepository()
	ratingRepo := repositories.NewRatingRepository()
	linkRepo := repositories.NewGoalLinkRepository()

	return &env{
		ctx:          scoped,
		db:           db,
		logger:       logger,
		solutionRepo: solutionRepo,
		ratingRepo:   ratingRepo,
		linkRepo:     linkRepo,
		aggregation:  services.NewAggregationService(solutionRepo, ratingRepo, linkRepo, summaryCache, cfg.Aggregation, logger),
		close: func() {
			release()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			db.Close()
			_ = logger.Sync()
		},
	}, nil
}
