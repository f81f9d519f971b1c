package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/wwfm-inc/wwfm-engine/pkg/apperrors"
	"github.com/wwfm-inc/wwfm-engine/pkg/cache"
	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
	"github.com/wwfm-inc/wwfm-engine/pkg/config"
	"github.com/wwfm-inc/wwfm-engine/pkg/database"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
	"github.com/wwfm-inc/wwfm-engine/pkg/normalizer"
	"github.com/wwfm-inc/wwfm-engine/pkg/repositories"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SubmitRatingRequest is a new rating with its raw, unvalidated fields.
type SubmitRatingRequest struct {
	UserID             uuid.UUID         `json:"user_id" validate:"required"`
	GoalID             uuid.UUID         `json:"goal_id" validate:"required"`
	VariantID          uuid.UUID         `json:"variant_id" validate:"required"`
	EffectivenessScore int               `json:"effectiveness_score" validate:"min=1,max=5"`
	SolutionFields     map[string]any    `json:"solution_fields"`
	DataSource         models.DataSource `json:"data_source" validate:"omitempty,oneof=human ai test"`
}

// RatingWriteResult is returned by every rating write. The rating write
// itself succeeded; Warnings lists aggregate problems that did not block it.
type RatingWriteResult struct {
	Rating    *models.Rating   `json:"rating"`
	Aggregate *RecomputeResult `json:"aggregate,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
}

// RatingService handles rating submission, supplementary field updates,
// moderation deletes and the pair summary read model.
type RatingService interface {
	Submit(ctx context.Context, req *SubmitRatingRequest) (*RatingWriteResult, error)
	UpdateFields(ctx context.Context, ratingID uuid.UUID, raw map[string]any) (*RatingWriteResult, error)
	Delete(ctx context.Context, ratingID uuid.UUID) (*RatingWriteResult, error)
	GetSummary(ctx context.Context, goalID, variantID uuid.UUID, limit int) (*models.PairSummary, error)
}

type ratingService struct {
	goalRepo     repositories.GoalRepository
	solutionRepo repositories.SolutionRepository
	ratingRepo   repositories.RatingRepository
	linkRepo     repositories.GoalLinkRepository
	aggregation  AggregationService
	summaryCache cache.SummaryCache
	normalizer   *normalizer.Normalizer
	registry     *categories.Registry
	defaultTopN  int
	logger       *zap.Logger
}

// NewRatingService creates a RatingService.
func NewRatingService(
	goalRepo repositories.GoalRepository,
	solutionRepo repositories.SolutionRepository,
	ratingRepo repositories.RatingRepository,
	linkRepo repositories.GoalLinkRepository,
	aggregation AggregationService,
	summaryCache cache.SummaryCache,
	cfg config.AggregationConfig,
	logger *zap.Logger,
) RatingService {
	if summaryCache == nil {
		summaryCache = cache.NoopSummaryCache{}
	}
	registry := categories.Default()
	return &ratingService{
		goalRepo:     goalRepo,
		solutionRepo: solutionRepo,
		ratingRepo:   ratingRepo,
		linkRepo:     linkRepo,
		aggregation:  aggregation,
		summaryCache: summaryCache,
		normalizer:   normalizer.New(registry),
		registry:     registry,
		defaultTopN:  cfg.SummaryTopN,
		logger:       logger.Named("rating-service"),
	}
}

var _ RatingService = (*ratingService)(nil)

func (s *ratingService) Submit(ctx context.Context, req *SubmitRatingRequest) (*RatingWriteResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	source := req.DataSource
	if source == "" {
		source = models.DataSourceHuman
	}
	if scope, ok := database.GetScope(ctx); ok && scope.HasUser() && source != models.DataSourceHuman {
		return nil, fmt.Errorf("%s ratings require a system scope: %w", source, apperrors.ErrForbidden)
	}

	if _, err := s.goalRepo.GetByID(ctx, req.GoalID); err != nil {
		return nil, fmt.Errorf("goal %s: %w", req.GoalID, err)
	}
	category, err := s.solutionRepo.GetCategoryForVariant(ctx, req.VariantID)
	if err != nil {
		return nil, fmt.Errorf("solution variant %s: %w", req.VariantID, err)
	}

	normalized := s.normalizer.Normalize(category, req.SolutionFields, normalizer.Options{})
	if err := normalized.Err(); err != nil {
		s.logger.Debug("Rejected rating fields",
			zap.String("category", category.String()),
			zap.Int("error_count", len(normalized.Errors)))
		return nil, err
	}

	rating := &models.Rating{
		UserID:             req.UserID,
		GoalID:             req.GoalID,
		VariantID:          req.VariantID,
		EffectivenessScore: req.EffectivenessScore,
		SolutionFields:     normalized.Fields,
		DataSource:         source,
	}
	if err := s.ratingRepo.Create(ctx, rating); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, fmt.Errorf("user has already rated this solution for this goal: %w", apperrors.ErrConflict)
		}
		return nil, err
	}

	s.logger.Info("Rating submitted",
		zap.String("rating_id", rating.ID.String()),
		zap.String("goal_id", rating.GoalID.String()),
		zap.String("variant_id", rating.VariantID.String()),
		zap.String("data_source", string(rating.DataSource)))

	return s.afterWrite(ctx, rating, TriggerRatingCreated), nil
}

func (s *ratingService) UpdateFields(ctx context.Context, ratingID uuid.UUID, raw map[string]any) (*RatingWriteResult, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", apperrors.ErrInvalidInput)
	}

	rating, err := s.ratingRepo.GetByID(ctx, ratingID)
	if err != nil {
		return nil, err
	}
	category, err := s.solutionRepo.GetCategoryForVariant(ctx, rating.VariantID)
	if err != nil {
		return nil, fmt.Errorf("solution variant %s: %w", rating.VariantID, err)
	}

	normalized := s.normalizer.Normalize(category, raw, normalizer.Options{AllowPartial: true})
	if err := normalized.Err(); err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(rating.SolutionFields)+len(normalized.Fields))
	for k, v := range rating.SolutionFields {
		merged[k] = v
	}
	for k, v := range normalized.Fields {
		merged[k] = v
	}

	if err := s.ratingRepo.UpdateFields(ctx, ratingID, merged); err != nil {
		return nil, err
	}
	rating.SolutionFields = merged

	return s.afterWrite(ctx, rating, TriggerRatingUpdated), nil
}

func (s *ratingService) Delete(ctx context.Context, ratingID uuid.UUID) (*RatingWriteResult, error) {
	rating, err := s.ratingRepo.Delete(ctx, ratingID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Rating deleted",
		zap.String("rating_id", rating.ID.String()),
		zap.String("goal_id", rating.GoalID.String()),
		zap.String("variant_id", rating.VariantID.String()))

	return s.afterWrite(ctx, rating, TriggerRatingDeleted), nil
}

// afterWrite recomputes the rating's pair. The rating is already stored, so
// recompute failures become warnings; the next successful recompute or the
// reaggregate tool repairs the aggregate.
func (s *ratingService) afterWrite(ctx context.Context, rating *models.Rating, trigger RecomputeTrigger) *RatingWriteResult {
	result := &RatingWriteResult{Rating: rating}

	agg, err := s.aggregation.Recompute(ctx, rating.GoalID, rating.VariantID, trigger)
	if err != nil {
		s.logger.Warn("Rating stored but aggregate not updated",
			zap.String("rating_id", rating.ID.String()),
			zap.String("trigger", string(trigger)),
			zap.Error(err))
		result.Warnings = append(result.Warnings, "aggregate not updated: "+err.Error())
		return result
	}

	result.Aggregate = agg
	fields := make([]string, 0, len(agg.FieldErrors))
	for field := range agg.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("aggregate for %s not updated: %s", field, agg.FieldErrors[field]))
	}
	return result
}

func (s *ratingService) GetSummary(ctx context.Context, goalID, variantID uuid.UUID, limit int) (*models.PairSummary, error) {
	if limit <= 0 {
		limit = s.defaultTopN
	}
	pair := models.PairKey{GoalID: goalID, VariantID: variantID}

	cached, gen, cacheErr := s.summaryCache.Get(ctx, pair, limit)
	if cacheErr != nil {
		s.logger.Warn("Summary cache read failed", zap.Error(cacheErr))
	} else if cached != nil {
		return cached, nil
	}

	link, err := s.linkRepo.Get(ctx, goalID, variantID)
	if err != nil {
		return nil, err
	}
	category, err := s.solutionRepo.GetCategoryForVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	schema, ok := s.registry.Lookup(category)
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownCategory, category)
	}

	summary := buildSummary(link, schema, limit)

	// Without a generation from a successful read there is nothing to guard
	// the write with.
	if cacheErr == nil {
		stored, err := s.summaryCache.Set(ctx, pair, limit, gen, summary)
		if err != nil {
			s.logger.Warn("Summary cache write failed", zap.Error(err))
		} else if !stored {
			s.logger.Debug("Skipped caching summary invalidated during read",
				zap.String("goal_id", goalID.String()),
				zap.String("variant_id", variantID.String()))
		}
	}
	return summary, nil
}

// buildSummary lists the link's fields in form order, each trimmed to limit
// values. Fields nobody reported are left out.
func buildSummary(link *models.GoalImplementationLink, schema *categories.CategorySchema, limit int) *models.PairSummary {
	summary := &models.PairSummary{
		GoalID:           link.GoalID,
		VariantID:        link.VariantID,
		DisplayMode:      link.DisplayMode,
		AvgEffectiveness: link.AvgEffectiveness,
		RatingCount:      link.RatingCount,
		HumanRatingCount: link.HumanRatingCount,
		Fields:           []models.FieldSummary{},
	}

	for _, spec := range schema.Fields() {
		dist, ok := link.AggregatedFields.Get(spec.Name)
		if !ok {
			continue
		}
		summary.Fields = append(summary.Fields, models.FieldSummary{
			Field:         spec.Name,
			Label:         spec.Label,
			Distribution:  dist.Summarize(limit),
			ReportedLabel: reportedLabel(dist.TotalReports),
		})
	}
	return summary
}

// reportedLabel renders "1 person reported" / "12 people reported".
func reportedLabel(n int) string {
	noun := "person"
	if n != 1 {
		noun = inflection.Plural(noun)
	}
	return fmt.Sprintf("%d %s reported", n, noun)
}
