package distribution

import (
	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
	"github.com/wwfm-inc/wwfm-engine/pkg/models"
)

// AggregateFields builds one Distribution per schema field from ratings, in
// the order given. Ratings that lack a field do not contribute to it, and
// fields nobody reported are left out of the result.
//
// Fields fail independently: a field whose stored values are malformed is
// reported in the error map and omitted from the result, while every other
// field is still built. Callers decide what to keep for failed fields.
func AggregateFields(schema *categories.CategorySchema, ratings []*models.Rating) (models.AggregatedFields, map[string]error) {
	fields := make(models.AggregatedFields)
	var fieldErrs map[string]error

	fail := func(name string, err error) {
		if fieldErrs == nil {
			fieldErrs = make(map[string]error)
		}
		fieldErrs[name] = err
	}

	for _, spec := range schema.Fields() {
		var contributions []Contribution
		var malformed bool

		for _, r := range ratings {
			raw, ok := r.SolutionFields[spec.Name]
			if !ok || raw == nil {
				continue
			}
			votes, ok := Votes(raw)
			if !ok {
				fail(spec.Name, &AggregationError{
					Field:  spec.Name,
					Reason: "rating " + r.ID.String() + " has a malformed stored value",
				})
				malformed = true
				break
			}
			contributions = append(contributions, votes)
		}

		if malformed || len(contributions) == 0 {
			continue
		}

		dist, err := BuildField(spec.Name, contributions)
		if err != nil {
			fail(spec.Name, err)
			continue
		}
		fields[spec.Name] = dist
	}

	return fields, fieldErrs
}
