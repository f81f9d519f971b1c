package models

// OtherValueLabel is the label of the synthetic row Summarize appends for
// values beyond the display limit.
const OtherValueLabel = "Other"

// DistributionValue is one distinct answer within a Distribution.
type DistributionValue struct {
	Value      string `json:"value"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// Distribution summarizes every answer given for one field of one
// goal-solution pair. It is the shape of each entry in aggregated_fields.
//
// Values is ordered by count descending (first occurrence breaks ties),
// contains no duplicate Value strings, and its percentages sum to 100.
// TotalReports counts contributing ratings, not votes.
type Distribution struct {
	Mode         string              `json:"mode"`
	Values       []DistributionValue `json:"values"`
	TotalReports int                 `json:"totalReports"`
}

// TotalVotes returns the sum of counts across all values. For multi-select
// fields this may exceed TotalReports.
func (d *Distribution) TotalVotes() int {
	total := 0
	for _, v := range d.Values {
		total += v.Count
	}
	return total
}

// Clone returns a deep copy.
func (d *Distribution) Clone() *Distribution {
	if d == nil {
		return nil
	}
	out := &Distribution{
		Mode:         d.Mode,
		TotalReports: d.TotalReports,
		Values:       make([]DistributionValue, len(d.Values)),
	}
	copy(out.Values, d.Values)
	return out
}

// Summarize returns a copy limited to the top limit values, with the rest
// folded into a single "Other" row. The receiver is not modified; storage
// always keeps every value.
func (d *Distribution) Summarize(limit int) *Distribution {
	out := d.Clone()
	if out == nil || limit <= 0 || len(out.Values) <= limit {
		return out
	}

	other := DistributionValue{Value: OtherValueLabel}
	for _, v := range out.Values[limit:] {
		other.Count += v.Count
		other.Percentage += v.Percentage
	}
	out.Values = append(out.Values[:limit:limit], other)
	return out
}

// AggregatedFields maps field name to its Distribution. Fields without any
// contributing rating are absent rather than empty.
type AggregatedFields map[string]*Distribution

// Get returns the distribution for field, or nil and false when no rating
// has reported it.
func (a AggregatedFields) Get(field string) (*Distribution, bool) {
	d, ok := a[field]
	return d, ok && d != nil
}

// Clone returns a deep copy, or nil for a nil map.
func (a AggregatedFields) Clone() AggregatedFields {
	if a == nil {
		return nil
	}
	out := make(AggregatedFields, len(a))
	for k, v := range a {
		out[k] = v.Clone()
	}
	return out
}
