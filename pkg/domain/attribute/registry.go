package attribute

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownCategory indicates a category tag that is not registered.
var ErrUnknownCategory = errors.New("attribute: unknown category")

// ErrDuplicateCategory indicates a schema was registered twice for a tag or alias.
var ErrDuplicateCategory = errors.New("attribute: category already registered")

// Registry is the catalog mapping categories to their attribute schemas. It is
// safe for concurrent use; schemas are cloned on the way in and out so callers
// cannot mutate registered definitions.
type Registry struct {
	mu      sync.RWMutex
	schemas map[Category]Schema
	aliases map[string]Category
}

// NewRegistry constructs a registry holding the supplied schemas.
func NewRegistry(schemas ...Schema) (*Registry, error) {
	r := &Registry{
		schemas: make(map[Category]Schema),
		aliases: make(map[string]Category),
	}
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns a fresh registry with the built-in categories.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(fmt.Errorf("attribute: builtin schemas: %w", err))
	}
	return r
}

// Register adds a schema for a new category. The category tag is stored in
// its normalized lower-case form.
func (r *Registry) Register(s Schema) error {
	s = s.normalized()
	if err := s.Check(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkFreeLocked(s); err != nil {
		return err
	}
	r.schemas[s.Category] = s.clone()
	for _, alias := range s.Aliases {
		r.aliases[normalizeTag(alias)] = s.Category
	}
	return nil
}

func (r *Registry) checkFreeLocked(s Schema) error {
	if _, exists := r.schemas[s.Category]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCategory, s.Category)
	}
	if _, exists := r.aliases[string(s.Category)]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCategory, s.Category)
	}
	for _, alias := range s.Aliases {
		tag := normalizeTag(alias)
		if _, exists := r.aliases[tag]; exists {
			return fmt.Errorf("%w: alias %s", ErrDuplicateCategory, alias)
		}
		if _, exists := r.schemas[Category(tag)]; exists {
			return fmt.Errorf("%w: alias %s", ErrDuplicateCategory, alias)
		}
	}
	return nil
}

// Schema returns the schema registered for category. Aliases resolve to
// their canonical schema.
func (r *Registry) Schema(category Category) (Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.lookupLocked(string(category))
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	return s.clone(), nil
}

// IsKnown reports whether category or an alias of it is registered.
func (r *Registry) IsKnown(category Category) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.lookupLocked(string(category))
	return ok
}

func (r *Registry) lookupLocked(value string) (Schema, bool) {
	if s, ok := r.schemas[Category(value)]; ok {
		return s, true
	}
	tag := normalizeTag(value)
	if s, ok := r.schemas[Category(tag)]; ok {
		return s, true
	}
	if c, ok := r.aliases[tag]; ok {
		s, ok := r.schemas[c]
		return s, ok
	}
	return Schema{}, false
}

// Categories returns the registered categories in sorted order.
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := slices.Collect(maps.Keys(r.schemas))
	slices.Sort(keys)
	return keys
}

// ParseCategory resolves a tag or one of its aliases to a registered category.
func (r *Registry) ParseCategory(value string) (Category, error) {
	tag := normalizeTag(value)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.schemas[Category(tag)]; ok {
		return Category(tag), nil
	}
	if c, ok := r.aliases[tag]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCategory, value)
}

// Defaults returns the default attribute bag for category.
func (r *Registry) Defaults(category Category) (Bag, error) {
	s, err := r.Schema(category)
	if err != nil {
		return Bag{}, err
	}
	return s.Defaults(), nil
}

// Validate checks bag against the schema of category. The returned slice is
// empty when the bag is valid. An error is only returned for an unknown
// category.
func (r *Registry) Validate(category Category, bag Bag) ([]Violation, error) {
	s, err := r.Schema(category)
	if err != nil {
		return nil, err
	}
	return s.Validate(bag), nil
}

// schemaFile is the YAML document shape accepted by LoadYAML.
type schemaFile struct {
	Categories []Schema `yaml:"categories"`
}

// LoadYAML registers every schema listed in a YAML schema file. Either all
// schemas are registered or none are.
func (r *Registry) LoadYAML(reader io.Reader) ([]Category, error) {
	var file schemaFile
	dec := yaml.NewDecoder(reader)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("attribute: decode schema file: %w", err)
	}

	for i := range file.Categories {
		file.Categories[i] = file.Categories[i].normalized()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	staged, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, s := range file.Categories {
		if err := r.checkFreeLocked(s); err != nil {
			return nil, err
		}
		if err := staged.Register(s); err != nil {
			return nil, err
		}
	}
	added := make([]Category, 0, len(file.Categories))
	for _, s := range file.Categories {
		r.schemas[s.Category] = s.clone()
		for _, alias := range s.Aliases {
			r.aliases[normalizeTag(alias)] = s.Category
		}
		added = append(added, s.Category)
	}
	return added, nil
}

func (s Schema) normalized() Schema {
	s.Category = Category(normalizeTag(string(s.Category)))
	return s
}

func normalizeTag(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
