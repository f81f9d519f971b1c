package services

import (
	"math"
	"time"

	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
	"github.com/wwfm-inc/wwfm-engine/pkg/distribution"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
)

// aggregatePlan is the next state of a link computed from its ratings.
type aggregatePlan struct {
	next         *models.GoalImplementationLink
	transitioned bool
	fieldErrors  map[string]error
}

// planAggregate recomputes a link from the full rating list of its pair.
// It is pure: current and ratings are not modified, and the same inputs
// always yield the same plan.
//
// A pair in ai mode whose human rating count has reached threshold moves to
// human mode here. The pre-transition aggregate is kept as the AI snapshot
// and the new aggregate is built from human ratings only. A pair already in
// human mode stays there whatever the counts are.
//
// Fields whose stored values cannot be aggregated keep their previous
// distribution, except on the transitioning recompute, where the previous
// value describes the AI population and is already preserved in the snapshot.
func planAggregate(
	current *models.GoalImplementationLink,
	schema *categories.CategorySchema,
	ratings []*models.Rating,
	threshold int,
	now time.Time,
) *aggregatePlan {
	next := *current
	next.AggregatedFields = nil
	next.AISnapshot = current.AISnapshot.Clone()

	ratingCount, humanCount := 0, 0
	for _, r := range ratings {
		switch r.DataSource {
		case models.DataSourceHuman:
			humanCount++
			ratingCount++
		case models.DataSourceAI:
			ratingCount++
		}
	}
	next.RatingCount = ratingCount
	next.HumanRatingCount = humanCount

	plan := &aggregatePlan{next: &next}

	mode := current.DisplayMode
	if mode != models.DisplayModeHuman {
		mode = models.DisplayModeAI
	}
	if mode == models.DisplayModeAI && humanCount >= threshold {
		snapshot := current.AggregatedFields.Clone()
		if snapshot == nil {
			snapshot = models.AggregatedFields{}
		}
		next.AISnapshot = snapshot
		transitionedAt := now
		next.TransitionedAt = &transitionedAt
		mode = models.DisplayModeHuman
		plan.transitioned = true
	}
	next.DisplayMode = mode

	var contributing []*models.Rating
	for _, r := range ratings {
		if r.Contributes(mode) {
			contributing = append(contributing, r)
		}
	}

	fields, fieldErrs := distribution.AggregateFields(schema, contributing)
	for name := range fieldErrs {
		if plan.transitioned {
			continue
		}
		if prev, ok := current.AggregatedFields.Get(name); ok {
			fields[name] = prev.Clone()
		}
	}
	next.AggregatedFields = fields
	plan.fieldErrors = fieldErrs

	next.AvgEffectiveness = averageScore(contributing)

	return plan
}

// averageScore is the mean effectiveness rounded to two decimals, or 0 when
// nothing contributes.
func averageScore(ratings []*models.Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.EffectivenessScore
	}
	return math.Round(float64(sum)/float64(len(ratings))*100) / 100
}
