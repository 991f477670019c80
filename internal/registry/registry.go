// Package registry maps type names from seed documents to constructible
// record types. The resolution engine consumes it purely as a
// name-to-constructor lookup; it never inspects the concrete types.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loamlabs/seedr/internal/record"
)

// Constructor builds a concrete record from a fully resolved field map.
// Field values are the normalized set produced by record.Normalize, plus
// record.Record values for resolved whole-record references.
type Constructor func(fields map[string]any) (record.Record, error)

// Type describes one constructible record type.
type Type struct {
	// Name is the bare type name referenced by documents (e.g. "Country").
	Name string

	// New constructs a record of this type.
	New Constructor
}

// Registry resolves type name strings to Types.
//
// Lookups accept either a bare name ("Country") or a qualified path
// ("models:Country"); the qualifier is an alias namespace and resolves to
// the same Type as the bare name.
type Registry struct {
	types   map[string]Type
	dynamic bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithDynamicTypes makes unknown names resolve to schemaless Generic record
// types, registered on first lookup. Used by the CLI, where no compiled-in
// constructors exist.
func WithDynamicTypes() Option {
	return func(r *Registry) {
		r.dynamic = true
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{types: make(map[string]Type)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a Type under its name. Re-registering a name replaces the
// previous entry.
func (r *Registry) Register(t Type) error {
	if t.Name == "" {
		return fmt.Errorf("register type: empty name")
	}
	if t.New == nil {
		return fmt.Errorf("register type %q: nil constructor", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// RegisterDynamic registers a schemaless Generic type under the given name
// and returns it. Covers the document-level model registration targets.
func (r *Registry) RegisterDynamic(name string) (Type, error) {
	bare, err := bareName(name)
	if err != nil {
		return Type{}, err
	}
	t := DynamicType(bare)
	if err := r.Register(t); err != nil {
		return Type{}, err
	}
	return t, nil
}

// Lookup resolves a type name string to a registered Type.
//
// A qualified path "alias:Name" falls back to the bare "Name" entry. Unknown
// names are an error unless the registry was created WithDynamicTypes, in
// which case a Generic type is registered and returned.
func (r *Registry) Lookup(target string) (Type, error) {
	if t, ok := r.types[target]; ok {
		return t, nil
	}
	bare, err := bareName(target)
	if err != nil {
		return Type{}, err
	}
	if t, ok := r.types[bare]; ok {
		return t, nil
	}
	if r.dynamic {
		return r.RegisterDynamic(bare)
	}
	return Type{}, fmt.Errorf("no registered type for %q", target)
}

// Names returns all registered type names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DynamicType returns a Type whose constructor produces Generic records.
func DynamicType(name string) Type {
	return Type{
		Name: name,
		New: func(fields map[string]any) (record.Record, error) {
			return record.NewGeneric(name, fields), nil
		},
	}
}

// bareName strips an optional "alias:" qualifier from a type path.
func bareName(target string) (string, error) {
	parts := strings.Split(target, ":")
	switch len(parts) {
	case 1:
		return parts[0], nil
	case 2:
		if parts[1] == "" {
			return "", fmt.Errorf("invalid type path %q: empty type name", target)
		}
		return parts[1], nil
	default:
		return "", fmt.Errorf("invalid type path %q: too many ':' separators", target)
	}
}
