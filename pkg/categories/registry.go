// Package categories is the single registry of solution categories and the
// fields each category collects. Both the rating normalizer and the form
// schema API read from it.
package categories

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var schemaYAML []byte

// Category identifies one of the fixed solution categories.
type Category string

// String returns the string representation of a Category.
func (c Category) String() string {
	return string(c)
}

// IsValid returns true if the category exists in the default registry.
func (c Category) IsValid() bool {
	_, ok := Default().Lookup(c)
	return ok
}

// RequiresDosageVariant returns true for categories whose variants must name
// a dosage or form instead of "Standard".
func (c Category) RequiresDosageVariant() bool {
	schema, ok := Default().Lookup(c)
	return ok && schema.DosageVariants
}

// FieldType describes how a field's raw value is shaped and validated.
type FieldType string

const (
	FieldTypeDropdown    FieldType = "dropdown"
	FieldTypeMultiSelect FieldType = "multi_select"
	FieldTypeText        FieldType = "text"
	FieldTypeNumber      FieldType = "number"
)

// DefaultMaxTextLength applies to text fields and custom multi-select
// entries that do not set max_length.
const DefaultMaxTextLength = 500

// FieldSpec is the definition of one rating field.
type FieldSpec struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Options     []string  `json:"options,omitempty"`
	AllowCustom bool      `json:"allow_custom,omitempty"`
	MaxLength   int       `json:"max_length,omitempty"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`

	optionIndex map[string]string // folded option -> canonical spelling
}

// IsMultiValue returns true for array-valued fields.
func (f *FieldSpec) IsMultiValue() bool {
	return f.Type == FieldTypeMultiSelect
}

// HasOptions returns true if the field is constrained to a fixed option set.
func (f *FieldSpec) HasOptions() bool {
	return len(f.Options) > 0
}

// MatchOption returns the canonical spelling of value if it names one of the
// field's options, ignoring case and repeated whitespace.
func (f *FieldSpec) MatchOption(value string) (string, bool) {
	canonical, ok := f.optionIndex[FoldOption(value)]
	return canonical, ok
}

// TextLimit returns the maximum rune length accepted for free text.
func (f *FieldSpec) TextLimit() int {
	if f.MaxLength > 0 {
		return f.MaxLength
	}
	return DefaultMaxTextLength
}

// CategorySchema lists the fields collected for one category, in form order.
type CategorySchema struct {
	Category       Category     `json:"category"`
	Label          string       `json:"label"`
	DosageVariants bool         `json:"dosage_variants"`
	FieldSpecs     []*FieldSpec `json:"fields"`

	byName map[string]*FieldSpec
}

// Field returns the named field's spec.
func (s *CategorySchema) Field(name string) (*FieldSpec, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Fields returns the field specs in form order.
func (s *CategorySchema) Fields() []*FieldSpec {
	return s.FieldSpecs
}

// FieldNames returns the field names in form order.
func (s *CategorySchema) FieldNames() []string {
	names := make([]string, len(s.FieldSpecs))
	for i, f := range s.FieldSpecs {
		names[i] = f.Name
	}
	return names
}

// Registry holds every category schema.
type Registry struct {
	schemas map[Category]*CategorySchema
	order   []Category
}

// Lookup returns the schema for a category.
func (r *Registry) Lookup(c Category) (*CategorySchema, bool) {
	s, ok := r.schemas[c]
	return s, ok
}

// Categories returns all categories in registry order.
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.order))
	copy(out, r.order)
	return out
}

// Schemas returns all category schemas in registry order.
func (r *Registry) Schemas() []*CategorySchema {
	out := make([]*CategorySchema, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, r.schemas[c])
	}
	return out
}

// FoldOption is the comparison key for option matching and deduplication:
// lower-cased with runs of whitespace collapsed to one space.
func FoldOption(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ============================================================================
// Loading
// ============================================================================

type fileField struct {
	Label       string    `yaml:"label"`
	Type        FieldType `yaml:"type"`
	Options     []string  `yaml:"options"`
	AllowCustom bool      `yaml:"allow_custom"`
	MaxLength   int       `yaml:"max_length"`
	Min         *float64  `yaml:"min"`
	Max         *float64  `yaml:"max"`
}

type fileCategoryField struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
}

type fileCategory struct {
	Name           Category            `yaml:"name"`
	Label          string              `yaml:"label"`
	DosageVariants bool                `yaml:"dosage_variants"`
	Fields         []fileCategoryField `yaml:"fields"`
}

type schemaFile struct {
	Fields     map[string]fileField `yaml:"fields"`
	Categories []fileCategory       `yaml:"categories"`
}

// Load parses and validates a schema document.
func Load(data []byte) (*Registry, error) {
	var doc schemaFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse category schema: %w", err)
	}

	for name, def := range doc.Fields {
		if err := validateFieldDef(name, def); err != nil {
			return nil, err
		}
	}

	reg := &Registry{schemas: make(map[Category]*CategorySchema, len(doc.Categories))}
	for _, fc := range doc.Categories {
		if fc.Name == "" {
			return nil, fmt.Errorf("category with empty name")
		}
		if _, dup := reg.schemas[fc.Name]; dup {
			return nil, fmt.Errorf("duplicate category %q", fc.Name)
		}
		if len(fc.Fields) == 0 {
			return nil, fmt.Errorf("category %q has no fields", fc.Name)
		}

		schema := &CategorySchema{
			Category:       fc.Name,
			Label:          fc.Label,
			DosageVariants: fc.DosageVariants,
			byName:         make(map[string]*FieldSpec, len(fc.Fields)),
		}
		for _, ref := range fc.Fields {
			def, ok := doc.Fields[ref.Name]
			if !ok {
				return nil, fmt.Errorf("category %q references undefined field %q", fc.Name, ref.Name)
			}
			if _, dup := schema.byName[ref.Name]; dup {
				return nil, fmt.Errorf("category %q lists field %q twice", fc.Name, ref.Name)
			}
			spec := newFieldSpec(ref.Name, ref.Required, def)
			schema.FieldSpecs = append(schema.FieldSpecs, spec)
			schema.byName[spec.Name] = spec
		}

		reg.schemas[fc.Name] = schema
		reg.order = append(reg.order, fc.Name)
	}

	return reg, nil
}

func validateFieldDef(name string, def fileField) error {
	switch def.Type {
	case FieldTypeDropdown, FieldTypeMultiSelect:
		if len(def.Options) == 0 {
			return fmt.Errorf("field %q of type %s has no options", name, def.Type)
		}
	case FieldTypeText:
		if len(def.Options) > 0 {
			return fmt.Errorf("text field %q must not declare options", name)
		}
	case FieldTypeNumber:
		if def.Min != nil && def.Max != nil && *def.Min > *def.Max {
			return fmt.Errorf("number field %q has min greater than max", name)
		}
	default:
		return fmt.Errorf("field %q has unknown type %q", name, def.Type)
	}

	seen := make(map[string]bool, len(def.Options))
	for _, opt := range def.Options {
		key := FoldOption(opt)
		if key == "" {
			return fmt.Errorf("field %q has an empty option", name)
		}
		if seen[key] {
			return fmt.Errorf("field %q lists option %q twice", name, opt)
		}
		seen[key] = true
	}
	return nil
}

// newFieldSpec builds a per-category spec. Each category gets its own copy so
// Required can differ between categories sharing a field definition.
func newFieldSpec(name string, required bool, def fileField) *FieldSpec {
	spec := &FieldSpec{
		Name:        name,
		Label:       def.Label,
		Type:        def.Type,
		Required:    required,
		Options:     def.Options,
		AllowCustom: def.AllowCustom,
		MaxLength:   def.MaxLength,
		Min:         def.Min,
		Max:         def.Max,
		optionIndex: make(map[string]string, len(def.Options)),
	}
	for _, opt := range def.Options {
		spec.optionIndex[FoldOption(opt)] = opt
	}
	return spec
}
