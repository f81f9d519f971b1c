// Package distribution turns the field values of many ratings into the
// mode/count/percentage summaries stored in aggregated_fields.
//
// Build is the only implementation of this computation. The live rating
// path, the recompute endpoint and the reaggregate tool all call it.
package distribution

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wwfm-inc/wwfm-engine/pkg/jsonutil"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
)

// ErrAggregation is matched by every *AggregationError via errors.Is.
var ErrAggregation = errors.New("aggregation failed")

// AggregationError reports builder input that should never reach it:
// no contributions, or a contribution without usable votes. It signals a
// programming or data error, not a user error.
type AggregationError struct {
	Field  string
	Reason string
}

func (e *AggregationError) Error() string {
	if e.Field == "" {
		return "aggregation failed: " + e.Reason
	}
	return fmt.Sprintf("aggregation of %s failed: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrAggregation) true for any AggregationError.
func (e *AggregationError) Is(target error) bool {
	return target == ErrAggregation
}

// Contribution is the votes one rating casts for one field: a single element
// for scalar fields, one element per selected value for multi-select fields.
type Contribution []string

// Build computes the Distribution for one field from the contributions of
// every contributing rating, in rating order.
//
// Values are grouped by exact string equality. Percentages are allocated
// against the total number of votes by the largest remainder method, so they
// sum to exactly 100 and none is negative. Groups are sorted
// by count descending; equal counts keep first-occurrence order, which makes
// the result a pure function of the ordered input. TotalReports is the number
// of contributions, not votes.
func Build(contributions []Contribution) (*models.Distribution, error) {
	return BuildField("", contributions)
}

// BuildField is Build with the field name attached to any error.
func BuildField(field string, contributions []Contribution) (*models.Distribution, error) {
	if len(contributions) == 0 {
		return nil, &AggregationError{Field: field, Reason: "no contributing ratings"}
	}

	index := make(map[string]int)
	var groups []models.DistributionValue
	totalVotes := 0

	for i, c := range contributions {
		if len(c) == 0 {
			return nil, &AggregationError{Field: field, Reason: fmt.Sprintf("contribution %d has no votes", i)}
		}
		for _, v := range c {
			if v == "" {
				return nil, &AggregationError{Field: field, Reason: fmt.Sprintf("contribution %d has an empty vote", i)}
			}
			pos, ok := index[v]
			if !ok {
				pos = len(groups)
				index[v] = pos
				groups = append(groups, models.DistributionValue{Value: v})
			}
			groups[pos].Count++
			totalVotes++
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})

	allocatePercentages(groups, totalVotes)

	return &models.Distribution{
		Mode:         groups[0].Value,
		Values:       groups,
		TotalReports: len(contributions),
	}, nil
}

// allocatePercentages floors every share, then hands the missing points one
// each to the groups with the largest remainders. Equal remainders go to the
// earlier group, so groups sorted by count stay sorted by percentage.
func allocatePercentages(groups []models.DistributionValue, totalVotes int) {
	remainders := make([]int, len(groups))
	allocated := 0
	for i := range groups {
		share := groups[i].Count * 100
		groups[i].Percentage = share / totalVotes
		remainders[i] = share % totalVotes
		allocated += groups[i].Percentage
	}

	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})

	for _, i := range order[:100-allocated] {
		groups[i].Percentage++
	}
}

// Votes converts a stored solution_fields value into a contribution.
// Strings and numbers yield one vote; []string and []any yield one vote per
// element. It returns false for values that cannot be voted on: nil, maps,
// and arrays containing non-scalar elements.
func Votes(value any) (Contribution, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []string:
		out := make(Contribution, len(v))
		copy(out, v)
		return out, true
	case []any:
		out := make(Contribution, 0, len(v))
		for _, item := range v {
			s, ok := jsonutil.FlexibleString(item)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		s, ok := jsonutil.FlexibleString(v)
		if !ok {
			return nil, false
		}
		return Contribution{s}, true
	}
}
