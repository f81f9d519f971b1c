package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wwfm-inc/wwfm-engine/pkg/apperrors"
	"github.com/wwfm-inc/wwfm-engine/pkg/cache"
	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
	"github.com/wwfm-inc/wwfm-engine/pkg/config"
	"github.com/wwfm-inc/wwfm-engine/pkg/database"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
	"github.com/wwfm-inc/wwfm-engine/pkg/repositories"
	"github.com/wwfm-inc/wwfm-engine/pkg/retry"
)

// RecomputeTrigger records why a pair was recomputed. It only affects logging.
type RecomputeTrigger string

const (
	TriggerRatingCreated RecomputeTrigger = "rating_created"
	TriggerRatingUpdated RecomputeTrigger = "rating_updated"
	TriggerRatingDeleted RecomputeTrigger = "rating_deleted"
	TriggerManual        RecomputeTrigger = "manual"
	TriggerBackfill      RecomputeTrigger = "backfill"
)

// RecomputeResult describes one recompute of a pair.
type RecomputeResult struct {
	Link         *models.GoalImplementationLink `json:"link"`
	Previous     *models.GoalImplementationLink `json:"-"`
	Transitioned bool                           `json:"transitioned"`
	FieldErrors  map[string]string              `json:"field_errors,omitempty"`
	DryRun       bool                           `json:"dry_run,omitempty"`
}

// Changed reports whether the recompute altered the stored aggregate.
func (r *RecomputeResult) Changed() bool {
	if r.Previous == nil {
		return true
	}
	p, n := r.Previous, r.Link
	return p.DisplayMode != n.DisplayMode ||
		p.RatingCount != n.RatingCount ||
		p.HumanRatingCount != n.HumanRatingCount ||
		p.AvgEffectiveness != n.AvgEffectiveness ||
		!reflect.DeepEqual(p.AggregatedFields, n.AggregatedFields)
}

// AggregationService keeps goal implementation links in step with their
// ratings. Every rating write path and the reaggregate tool go through it.
type AggregationService interface {
	// Recompute rebuilds a pair's aggregate from all of its ratings and
	// writes it atomically, transitioning the pair to human mode when the
	// human rating threshold is reached.
	Recompute(ctx context.Context, goalID, variantID uuid.UUID, trigger RecomputeTrigger) (*RecomputeResult, error)

	// Preview computes what Recompute would write without writing it.
	Preview(ctx context.Context, goalID, variantID uuid.UUID) (*RecomputeResult, error)
}

type aggregationService struct {
	solutionRepo repositories.SolutionRepository
	ratingRepo   repositories.RatingRepository
	linkRepo     repositories.GoalLinkRepository
	summaryCache cache.SummaryCache
	registry     *categories.Registry
	inTx         database.TxFunc
	threshold    int
	retryConfig  *retry.Config
	now          func() time.Time
	logger       *zap.Logger
}

// NewAggregationService creates an AggregationService.
func NewAggregationService(
	solutionRepo repositories.SolutionRepository,
	ratingRepo repositories.RatingRepository,
	linkRepo repositories.GoalLinkRepository,
	summaryCache cache.SummaryCache,
	cfg config.AggregationConfig,
	logger *zap.Logger,
) AggregationService {
	if summaryCache == nil {
		summaryCache = cache.NoopSummaryCache{}
	}
	return &aggregationService{
		solutionRepo: solutionRepo,
		ratingRepo:   ratingRepo,
		linkRepo:     linkRepo,
		summaryCache: summaryCache,
		registry:     categories.Default(),
		inTx:         database.InTx,
		threshold:    cfg.TransitionThreshold,
		retryConfig:  retry.WithMaxRetries(cfg.RetryAttempts),
		now:          time.Now,
		logger:       logger.Named("aggregation-service"),
	}
}

var _ AggregationService = (*aggregationService)(nil)

// errPreviewRollback aborts the preview transaction after planning.
var errPreviewRollback = errors.New("preview rollback")

func (s *aggregationService) Recompute(ctx context.Context, goalID, variantID uuid.UUID, trigger RecomputeTrigger) (*RecomputeResult, error) {
	var result *RecomputeResult
	attempts := 0

	err := retry.DoIfRetryable(ctx, s.retryConfig, func() error {
		attempts++
		var err error
		result, err = s.recompute(ctx, goalID, variantID, false)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to recompute aggregate",
			zap.String("goal_id", goalID.String()),
			zap.String("variant_id", variantID.String()),
			zap.String("trigger", string(trigger)),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return nil, err
	}

	if err := s.summaryCache.Invalidate(ctx, result.Link.Key()); err != nil {
		s.logger.Warn("Failed to invalidate cached summary",
			zap.String("goal_id", goalID.String()),
			zap.String("variant_id", variantID.String()),
			zap.Error(err))
	}

	for field, msg := range result.FieldErrors {
		s.logger.Warn("Field kept previous distribution",
			zap.String("goal_id", goalID.String()),
			zap.String("variant_id", variantID.String()),
			zap.String("field", field),
			zap.String("error", msg))
	}

	if result.Transitioned {
		s.logger.Info("Pair transitioned to human ratings",
			zap.String("goal_id", goalID.String()),
			zap.String("variant_id", variantID.String()),
			zap.Int("human_rating_count", result.Link.HumanRatingCount))
	}

	s.logger.Debug("Recomputed aggregate",
		zap.String("goal_id", goalID.String()),
		zap.String("variant_id", variantID.String()),
		zap.String("trigger", string(trigger)),
		zap.String("display_mode", string(result.Link.DisplayMode)),
		zap.Int("rating_count", result.Link.RatingCount),
		zap.Int("attempts", attempts))

	return result, nil
}

func (s *aggregationService) Preview(ctx context.Context, goalID, variantID uuid.UUID) (*RecomputeResult, error) {
	return s.recompute(ctx, goalID, variantID, true)
}

// recompute runs one locked read-plan-write cycle. A lost display-mode
// compare-and-swap surfaces as a retryable ErrTransitionConflict.
func (s *aggregationService) recompute(ctx context.Context, goalID, variantID uuid.UUID, dryRun bool) (*RecomputeResult, error) {
	var result *RecomputeResult

	err := s.inTx(ctx, func(ctx context.Context) error {
		category, err := s.solutionRepo.GetCategoryForVariant(ctx, variantID)
		if err != nil {
			return fmt.Errorf("failed to resolve category: %w", err)
		}
		schema, ok := s.registry.Lookup(category)
		if !ok {
			return fmt.Errorf("%w: %q", apperrors.ErrUnknownCategory, category)
		}

		current, err := s.linkRepo.GetForUpdate(ctx, goalID, variantID)
		if err != nil {
			return fmt.Errorf("failed to lock goal link: %w", err)
		}

		ratings, err := s.ratingRepo.ListForPair(ctx, goalID, variantID)
		if err != nil {
			return fmt.Errorf("failed to load ratings: %w", err)
		}

		plan := planAggregate(current, schema, ratings, s.threshold, s.now())
		result = &RecomputeResult{
			Link:         plan.next,
			Previous:     current,
			Transitioned: plan.transitioned,
			DryRun:       dryRun,
		}
		if len(plan.fieldErrors) > 0 {
			result.FieldErrors = make(map[string]string, len(plan.fieldErrors))
			for field, ferr := range plan.fieldErrors {
				result.FieldErrors[field] = ferr.Error()
			}
		}

		if dryRun {
			return errPreviewRollback
		}
		return s.linkRepo.SaveAggregate(ctx, plan.next, current.DisplayMode)
	})
	if dryRun && errors.Is(err, errPreviewRollback) {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
