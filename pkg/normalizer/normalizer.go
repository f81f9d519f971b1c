// Package normalizer validates and cleans the category-specific field values
// submitted with a rating before they are stored or aggregated.
//
// Dropdown values are matched to the registry's option spelling ignoring
// case and repeated whitespace, multi-select arrays are deduplicated, custom
// answers are sentence-cased, free text is trimmed, length-limited and
// screened for injection payloads.
package normalizer

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
	"github.com/wwfm-inc/wwfm-engine/pkg/injection"
	"github.com/wwfm-inc/wwfm-engine/pkg/jsonutil"
)

// Options controls how strictly a submission is checked.
type Options struct {
	// AllowPartial skips required-field checks. Used when a user adds
	// supplementary fields to an existing rating.
	AllowPartial bool
}

// Result is the outcome of normalizing one submission.
// Fields holds string values for scalar fields and []string for multi-select
// fields. Fields only contains values that passed validation.
type Result struct {
	Category categories.Category `json:"category"`
	Fields   map[string]any      `json:"fields"`
	IsValid  bool                `json:"is_valid"`
	Errors   []FieldError        `json:"errors,omitempty"`
}

// Err returns a *ValidationError when the result is invalid, nil otherwise.
func (r *Result) Err() error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{Category: r.Category, Errors: r.Errors}
}

// Normalizer validates fields against a category registry.
type Normalizer struct {
	registry *categories.Registry
}

// New creates a Normalizer reading from registry. A nil registry uses the
// embedded default.
func New(registry *categories.Registry) *Normalizer {
	if registry == nil {
		registry = categories.Default()
	}
	return &Normalizer{registry: registry}
}

// Normalize validates raw against the default registry.
func Normalize(category categories.Category, raw map[string]any, opts Options) *Result {
	return New(nil).Normalize(category, raw, opts)
}

// Normalize validates raw against category's schema. It never mutates raw.
// Errors are ordered by schema field order, then unknown keys alphabetically.
func (n *Normalizer) Normalize(category categories.Category, raw map[string]any, opts Options) *Result {
	res := &Result{Category: category, Fields: make(map[string]any)}

	schema, ok := n.registry.Lookup(category)
	if !ok {
		res.Errors = append(res.Errors, FieldError{
			Code:    CodeUnknownCategory,
			Message: fmt.Sprintf("unknown category %q", category),
		})
		return res
	}

	for _, spec := range schema.Fields() {
		value, present := raw[spec.Name]
		if !present || value == nil {
			if spec.Required && !opts.AllowPartial {
				res.addError(spec.Name, CodeRequired, "is required")
			}
			continue
		}

		clean, errs := normalizeValue(spec, value)
		if len(errs) > 0 {
			res.Errors = append(res.Errors, errs...)
			continue
		}
		res.Fields[spec.Name] = clean
	}

	var unknown []string
	for key := range raw {
		if _, ok := schema.Field(key); !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		res.addError(key, CodeUnknownField, fmt.Sprintf("is not collected for %s", schema.Label))
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

func (r *Result) addError(field string, code ErrorCode, msg string) {
	r.Errors = append(r.Errors, FieldError{Field: field, Code: code, Message: msg})
}

func normalizeValue(spec *categories.FieldSpec, value any) (any, []FieldError) {
	switch spec.Type {
	case categories.FieldTypeDropdown:
		s, err := normalizeDropdown(spec, value)
		if err != nil {
			return nil, []FieldError{*err}
		}
		return s, nil
	case categories.FieldTypeMultiSelect:
		return normalizeMultiSelect(spec, value)
	case categories.FieldTypeNumber:
		s, err := normalizeNumber(spec, value)
		if err != nil {
			return nil, []FieldError{*err}
		}
		return s, nil
	default:
		s, ok := jsonutil.FlexibleString(value)
		if !ok {
			return nil, []FieldError{typeError(spec.Name, "must be text")}
		}
		clean, err := normalizeText(spec, spec.Name, s)
		if err != nil {
			return nil, []FieldError{*err}
		}
		if clean == "" {
			return nil, []FieldError{{Field: spec.Name, Code: CodeEmptyValue, Message: "must not be empty"}}
		}
		return clean, nil
	}
}

func normalizeDropdown(spec *categories.FieldSpec, value any) (string, *FieldError) {
	s, ok := jsonutil.FlexibleString(value)
	if !ok {
		e := typeError(spec.Name, "must be a single value")
		return "", &e
	}
	if strings.TrimSpace(s) == "" {
		return "", &FieldError{Field: spec.Name, Code: CodeEmptyValue, Message: "must not be empty"}
	}
	canonical, ok := spec.MatchOption(s)
	if !ok {
		return "", &FieldError{
			Field:   spec.Name,
			Code:    CodeInvalidOption,
			Message: fmt.Sprintf("%q is not one of the allowed options", s),
		}
	}
	return canonical, nil
}

func normalizeMultiSelect(spec *categories.FieldSpec, value any) ([]string, []FieldError) {
	var items []any
	switch v := value.(type) {
	case []any:
		items = v
	case []string:
		items = make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
	default:
		return nil, []FieldError{typeError(spec.Name, "must be a list")}
	}

	if len(items) == 0 {
		return nil, []FieldError{{Field: spec.Name, Code: CodeEmptyValue, Message: "must list at least one value"}}
	}

	var errs []FieldError
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))

	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			errs = append(errs, typeError(spec.Name, fmt.Sprintf("entry %d must be text", i)))
			continue
		}
		s = collapseSpace(s)
		if s == "" {
			errs = append(errs, FieldError{
				Field:   spec.Name,
				Code:    CodeEmptyValue,
				Message: fmt.Sprintf("entry %d must not be empty", i),
			})
			continue
		}

		if canonical, ok := spec.MatchOption(s); ok {
			s = canonical
		} else if !spec.AllowCustom {
			errs = append(errs, FieldError{
				Field:   spec.Name,
				Code:    CodeInvalidOption,
				Message: fmt.Sprintf("%q is not one of the allowed options", s),
			})
			continue
		} else if clean, err := normalizeText(spec, spec.Name, s); err != nil {
			errs = append(errs, *err)
			continue
		} else {
			s = canonicalCustom(clean)
		}

		key := categories.FoldOption(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func normalizeNumber(spec *categories.FieldSpec, value any) (string, *FieldError) {
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	f, ok := jsonutil.FlexibleFloat(value)
	if !ok {
		e := typeError(spec.Name, "must be a number")
		return "", &e
	}
	if (spec.Min != nil && f < *spec.Min) || (spec.Max != nil && f > *spec.Max) {
		return "", &FieldError{
			Field:   spec.Name,
			Code:    CodeOutOfRange,
			Message: fmt.Sprintf("%v is outside the allowed range", f),
		}
	}
	s, _ := jsonutil.FlexibleString(f)
	return s, nil
}

// normalizeText collapses whitespace, then enforces the length limit and the
// injection screen.
func normalizeText(spec *categories.FieldSpec, field, s string) (string, *FieldError) {
	s = collapseSpace(s)
	if limit := spec.TextLimit(); utf8.RuneCountInString(s) > limit {
		return "", &FieldError{
			Field:   field,
			Code:    CodeTooLong,
			Message: fmt.Sprintf("must be at most %d characters", limit),
		}
	}
	if hit := injection.Check(field, s); hit != nil {
		return "", &FieldError{
			Field:   field,
			Code:    CodeUnsafeText,
			Message: "contains disallowed markup or query syntax",
		}
	}
	return s, nil
}

// canonicalCustom gives custom answers one spelling across ratings, since
// distributions group by exact string: lower case with the first letter
// upper-cased ("vivid DREAMS" -> "Vivid dreams").
func canonicalCustom(s string) string {
	s = strings.ToLower(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func typeError(field, msg string) FieldError {
	return FieldError{Field: field, Code: CodeInvalidType, Message: msg}
}
