package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// FieldType selects the format rules applied to a field.
type FieldType string

const (
	FieldID        FieldType = "id"
	FieldText      FieldType = "text"
	FieldBool      FieldType = "bool"
	FieldTime      FieldType = "time"
	FieldDate      FieldType = "date"
	FieldEmail     FieldType = "email"
	FieldPhone     FieldType = "phone"
	FieldInteger   FieldType = "integer"
	FieldNumber    FieldType = "number"
	FieldEnum      FieldType = "enum"
	FieldReference FieldType = "reference"
	FieldOperation FieldType = "operation"
)

// FieldSpec defines one column of an entity sheet.
type FieldSpec struct {
	Name       string     `yaml:"name" json:"name"`
	Type       FieldType  `yaml:"type" json:"type"`
	Required   bool       `yaml:"required" json:"required"`
	References EntityType `yaml:"references" json:"references,omitempty"`
	List       bool       `yaml:"list" json:"list,omitempty"`
	Values     []string   `yaml:"values" json:"values,omitempty"`
	MaxLength  int        `yaml:"maxLength" json:"maxLength,omitempty"`
	Aliases    []string   `yaml:"aliases" json:"aliases,omitempty"`
	Example    string     `yaml:"example" json:"example,omitempty"`
}

// EntityDefinition describes one importable entity type.
type EntityDefinition struct {
	Type        EntityType   `yaml:"type" json:"type"`
	DisplayName string       `yaml:"displayName" json:"displayName"`
	IDPrefix    string       `yaml:"idPrefix" json:"idPrefix"`
	KeyField    string       `yaml:"keyField" json:"keyField"`
	Aliases     []string     `yaml:"aliases" json:"aliases,omitempty"`
	DependsOn   []EntityType `yaml:"dependsOn" json:"dependsOn,omitempty"`
	Fields      []FieldSpec  `yaml:"fields" json:"fields"`
}

// Field returns the field with the given canonical name.
func (d *EntityDefinition) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// FieldForHeader maps a verbatim sheet header to a field, ignoring case,
// spacing and punctuation. Aliases are matched the same way.
func (d *EntityDefinition) FieldForHeader(header string) (FieldSpec, bool) {
	key := normalizeName(header)
	if key == "" {
		return FieldSpec{}, false
	}
	for _, f := range d.Fields {
		if normalizeName(f.Name) == key {
			return f, true
		}
		for _, a := range f.Aliases {
			if normalizeName(a) == key {
				return f, true
			}
		}
	}
	return FieldSpec{}, false
}

// OperationField returns the operation column, if the entity declares one.
func (d *EntityDefinition) OperationField() (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Type == FieldOperation {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// ReferenceFields returns the fields that point at other records.
func (d *EntityDefinition) ReferenceFields() []FieldSpec {
	var out []FieldSpec
	for _, f := range d.Fields {
		if f.Type == FieldReference {
			out = append(out, f)
		}
	}
	return out
}

// Dependencies returns the entity types this one must be committed after:
// DependsOn plus every reference target other than itself, de-duplicated
// in declaration order.
func (d *EntityDefinition) Dependencies() []EntityType {
	seen := make(map[EntityType]bool)
	var out []EntityType
	add := func(t EntityType) {
		if t == "" || t == d.Type || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}
	for _, t := range d.DependsOn {
		add(t)
	}
	for _, f := range d.ReferenceFields() {
		add(f.References)
	}
	return out
}

// Headers returns the canonical column names in template order.
func (d *EntityDefinition) Headers() []string {
	out := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = f.Name
	}
	return out
}

// Catalog is a registry of entity definitions and their validation rules.
type Catalog struct {
	mu       sync.RWMutex
	entities map[EntityType]*EntityDefinition
	order    []EntityType
	rules    *RuleSet
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		entities: make(map[EntityType]*EntityDefinition),
		rules:    NewRuleSet(),
	}
}

var defaultCatalog = NewCatalog()

// DefaultCatalog returns the process-wide catalog populated by [Register].
func DefaultCatalog() *Catalog { return defaultCatalog }

// Register adds an entity definition to the default catalog.
// Panics if the definition is invalid or already registered.
func Register(def EntityDefinition) {
	if err := defaultCatalog.Register(def); err != nil {
		panic(err)
	}
}

// Register adds an entity definition and derives its field rules.
func (c *Catalog) Register(def EntityDefinition) error {
	if def.Type == "" {
		return fmt.Errorf("entity definition without type")
	}
	if def.DisplayName == "" {
		def.DisplayName = string(def.Type)
	}
	if def.IDPrefix == "" {
		def.IDPrefix = strings.ReplaceAll(def.DisplayName, " ", "")
	}
	if def.KeyField == "" {
		def.KeyField = "ID"
	}
	if _, ok := def.Field(def.KeyField); !ok {
		return fmt.Errorf("entity %s: key field %q is not defined", def.Type, def.KeyField)
	}

	seen := make(map[string]bool)
	for _, f := range def.Fields {
		key := normalizeName(f.Name)
		if seen[key] {
			return fmt.Errorf("entity %s: duplicate field %q", def.Type, f.Name)
		}
		seen[key] = true
		if f.Type == FieldReference && f.References == "" {
			return fmt.Errorf("entity %s: reference field %q has no target", def.Type, f.Name)
		}
		if f.Type == FieldEnum && len(f.Values) == 0 {
			return fmt.Errorf("entity %s: enum field %q has no values", def.Type, f.Name)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entities[def.Type]; exists {
		return fmt.Errorf("entity already registered: %s", def.Type)
	}

	stored := def
	c.entities[def.Type] = &stored
	c.order = append(c.order, def.Type)

	for _, f := range stored.Fields {
		c.rules.Register(stored.Type, f.Name, fieldRules(&stored, f)...)
	}
	return nil
}

// AddRule attaches extra rules to an (entity, field) pair.
func (c *Catalog) AddRule(entity EntityType, field string, rules ...Rule) {
	c.rules.Register(entity, field, rules...)
}

// Rules returns the catalog's rule set.
func (c *Catalog) Rules() *RuleSet { return c.rules }

// Get returns an entity definition by type.
func (c *Catalog) Get(t EntityType) (*EntityDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.entities[t]
	return def, ok
}

// Lookup resolves an entity type name case-insensitively.
func (c *Catalog) Lookup(name string) (*EntityDefinition, error) {
	key := normalizeName(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.order {
		if normalizeName(string(t)) == key {
			return c.entities[t], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
}

// Resolve matches a sheet name against entity types, display names and aliases.
func (c *Catalog) Resolve(sheetName string) (*EntityDefinition, bool) {
	key := normalizeName(sheetName)
	if key == "" {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.order {
		def := c.entities[t]
		if normalizeName(string(def.Type)) == key || normalizeName(def.DisplayName) == key {
			return def, true
		}
		for _, a := range def.Aliases {
			if normalizeName(a) == key {
				return def, true
			}
		}
	}
	return nil, false
}

// All returns every definition in registration order.
func (c *Catalog) All() []*EntityDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*EntityDefinition, len(c.order))
	for i, t := range c.order {
		out[i] = c.entities[t]
	}
	return out
}

// Len returns the number of registered entity types.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Graph builds the dependency graph of all registered entity types.
func (c *Catalog) Graph() *Graph {
	g := NewGraph()
	for _, def := range c.All() {
		g.AddNode(def.Type)
	}
	for _, def := range c.All() {
		for _, dep := range def.Dependencies() {
			g.AddEdge(def.Type, dep)
		}
	}
	return g
}

// Validate checks that every dependency names a registered entity and that
// the dependency graph is acyclic.
func (c *Catalog) Validate() error {
	var errs []string
	for _, def := range c.All() {
		for _, dep := range def.Dependencies() {
			if _, ok := c.Get(dep); !ok {
				errs = append(errs, fmt.Sprintf("%s depends on unregistered entity %s", def.Type, dep))
			}
		}
	}
	if _, err := c.Graph().Sort(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("catalog validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// normalizeName lowercases and strips everything but letters and digits, so
// "Working Period", "working_period" and "WORKING-PERIOD" compare equal.
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
