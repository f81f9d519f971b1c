package categories

import "sync"

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the registry built from the embedded schema.yaml.
// It panics if the embedded schema is invalid, which is a build defect.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		reg, err := Load(schemaYAML)
		if err != nil {
			panic("invalid embedded category schema: " + err.Error())
		}
		defaultRegistry = reg
	})
	return defaultRegistry
}

// Lookup returns the schema for a category from the default registry.
func Lookup(c Category) (*CategorySchema, bool) {
	return Default().Lookup(c)
}

// All returns every category in the default registry, in schema order.
func All() []Category {
	return Default().Categories()
}
