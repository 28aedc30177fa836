// Package registry holds the explicit catalog of mergeable record types:
// which table backs each type, which fields carry which default merge policy,
// how other tables point at it, and any archive hook to run before a discarded
// record is deleted. The registry is populated at startup; nothing is
// discovered by reflection at merge time.
package registry

import (
	"fmt"
	"sort"

	"github.com/lherron/curio/internal/domain"
)

// Handler is a named custom conflict resolver for one (type, field) pair.
// It returns the replacement value and a human-readable note.
type Handler func(source, target *domain.Record) (any, string, error)

// ArchiveHook is invoked with the about-to-be-discarded source before
// deletion. It returns field updates to apply to the surviving target
// (e.g., a serialized snapshot appended to a history field).
type ArchiveHook func(source, target *domain.Record) (map[string]any, error)

// Relation describes one way other rows reference a record type.
type Relation struct {
	Name    string
	Kind    domain.RelationKind
	Table   string
	FK      string // column referencing this type
	OtherFK string // other side of a many_to_many or unique_link pair
	Action  string // "" for default reconciliation, "skip" for hands-off
}

// Type is the merge contract of one record type.
type Type struct {
	Name        string
	Table       string
	IDPrefix    string
	Fields      []string                 // mergeable columns, in column order
	Policies    map[string]domain.Policy // declared default policy per field
	Relations   []Relation
	ParentField string // self-referential FK field, "" when the type has none
	ArchiveHook ArchiveHook
}

// Policy returns the declared default policy for a field.
func (t *Type) Policy(field string) (domain.Policy, bool) {
	p, ok := t.Policies[field]
	return p, ok
}

// HasField reports whether the type declares the named mergeable field.
func (t *Type) HasField(field string) bool {
	for _, f := range t.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Relation returns the named relation descriptor.
func (t *Type) Relation(name string) (Relation, bool) {
	for _, r := range t.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// Registry maps type names to their merge contracts and holds the named
// custom-handler table.
type Registry struct {
	types    map[string]*Type
	handlers map[string]Handler
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		types:    make(map[string]*Type),
		handlers: make(map[string]Handler),
	}
}

// Register adds a record type after validating its contract.
func (r *Registry) Register(t *Type) error {
	if t.Name == "" || t.Table == "" {
		return fmt.Errorf("record type must have a name and a table")
	}
	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("record type %q already registered", t.Name)
	}
	for field, policy := range t.Policies {
		if !t.HasField(field) {
			return fmt.Errorf("record type %q declares a policy for unknown field %q", t.Name, field)
		}
		if err := domain.ValidateStrategy(policy.Strategy); err != nil {
			return fmt.Errorf("record type %q field %q: %w", t.Name, field, err)
		}
	}
	if t.ParentField != "" && !t.HasField(t.ParentField) {
		return fmt.Errorf("record type %q parent field %q is not a declared field", t.Name, t.ParentField)
	}
	seen := make(map[string]bool)
	for _, rel := range t.Relations {
		if rel.Name == "" || rel.Table == "" || rel.FK == "" {
			return fmt.Errorf("record type %q has a relation missing name, table, or fk", t.Name)
		}
		if seen[rel.Name] {
			return fmt.Errorf("record type %q declares relation %q twice", t.Name, rel.Name)
		}
		seen[rel.Name] = true
		if err := domain.ValidateRelationKind(rel.Kind); err != nil {
			return fmt.Errorf("record type %q relation %q: %w", t.Name, rel.Name, err)
		}
		switch rel.Kind {
		case domain.RelationManyToMany, domain.RelationUniqueLink:
			if rel.OtherFK == "" {
				return fmt.Errorf("record type %q relation %q requires other_fk", t.Name, rel.Name)
			}
		}
		if rel.Action != "" && rel.Action != "skip" {
			return fmt.Errorf("record type %q relation %q: action must be empty or \"skip\"", t.Name, rel.Name)
		}
	}
	r.types[t.Name] = t
	return nil
}

// Lookup returns the contract for a type name.
func (r *Registry) Lookup(name string) (*Type, error) {
	t, ok := r.types[name]
	if !ok {
		return nil, domain.Validationf("unknown record type %q (known: %v)", name, r.TypeNames())
	}
	return t, nil
}

// TypeNames returns all registered type names, sorted.
func (r *Registry) TypeNames() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterHandler adds a named custom conflict resolver.
func (r *Registry) RegisterHandler(name string, h Handler) error {
	if name == "" || h == nil {
		return fmt.Errorf("handler must have a name and a function")
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler %q already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Handler looks up a named custom resolver.
func (r *Registry) Handler(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}
