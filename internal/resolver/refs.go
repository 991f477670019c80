package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loamlabs/seedr/internal/registry"
)

// Reserved keys inside a record data block. They are popped during expansion
// and never become record fields.
const (
	// RefsKey holds the explicit reference block:
	// per target field, {target_type, criteria: {...}, field?}.
	RefsKey = "!refs"

	// LocalIDKey assigns the record a batch-scoped local id that other
	// records can reference with the "#" shorthand.
	LocalIDKey = "!id"
)

// Reference shorthand grammar:
//
//	!<Type>?<field>=<value>[&<field>=<value>...][:<result_field>]
//	#<local_id>[:<result_field>]
//
// A field value is a reference purely by its leading sentinel character.
const (
	inlineRefSentinel = '!'
	localRefSentinel  = '#'

	typeSeparator     = "?"
	criteriaSeparator = "&"
	fieldSeparator    = ":"
	keyValueSeparator = "="
)

// scalarIndex marks a reference on a scalar field rather than a list element.
const scalarIndex = -1

// CriteriaRef is an unresolved pointer discharged by an equality-filtered
// store lookup.
//
// Criteria values parsed from the inline shorthand are always strings; no
// literal-type inference is performed. Criteria from the explicit block form
// keep their document scalar types and are matched with SQLite-typed
// comparison, so an int criterion matches an int field.
type CriteriaRef struct {
	// Field is the referencing field on the owning record.
	Field string

	// Index is the position within a list-valued field, or scalarIndex.
	Index int

	// Target is the record type looked up in the store.
	Target registry.Type

	// Criteria are AND-ed equality filters.
	Criteria map[string]any

	// ResultField, when non-empty, substitutes that field of the matched
	// record instead of the record itself.
	ResultField string
}

// LocalRef is an unresolved pointer to another record in the same batch,
// discharged once the target builder has been materialized.
type LocalRef struct {
	Field       string
	Index       int
	LocalID     string
	ResultField string
}

// isRefString reports whether a field value is a reference expression.
func isRefString(v any) bool {
	s, ok := v.(string)
	return ok && len(s) > 0 && (s[0] == inlineRefSentinel || s[0] == localRefSentinel)
}

// parseInlineRef parses the criteria shorthand "!Type?f=v&g=w[:field]".
func parseInlineRef(reg *registry.Registry, field string, index int, raw string) (CriteriaRef, error) {
	body := raw[1:]

	typeName, slug, ok := strings.Cut(body, typeSeparator)
	if !ok || typeName == "" {
		return CriteriaRef{}, &ParseError{
			Field:  field,
			Input:  raw,
			Reason: "cannot split into type and criteria, missing '" + typeSeparator + "'",
		}
	}

	slug, resultField, err := splitResultField(field, raw, slug)
	if err != nil {
		return CriteriaRef{}, err
	}

	criteria := make(map[string]any)
	for _, pair := range strings.Split(slug, criteriaSeparator) {
		key, value, ok := strings.Cut(pair, keyValueSeparator)
		if !ok || key == "" {
			return CriteriaRef{}, &ParseError{
				Field:  field,
				Input:  raw,
				Reason: fmt.Sprintf("criteria pair %q has no '%s'", pair, keyValueSeparator),
			}
		}
		// Shorthand criteria values stay strings, no type inference.
		criteria[key] = value
	}

	target, err := reg.Lookup(typeName)
	if err != nil {
		return CriteriaRef{}, &StructuralError{
			Message: fmt.Sprintf("reference on field %q: %v", field, err),
		}
	}

	return CriteriaRef{
		Field:       field,
		Index:       index,
		Target:      target,
		Criteria:    criteria,
		ResultField: resultField,
	}, nil
}

// parseLocalRef parses the local-id shorthand "#local_id[:field]".
func parseLocalRef(field string, index int, raw string) (LocalRef, error) {
	body := raw[1:]

	id, resultField, err := splitResultField(field, raw, body)
	if err != nil {
		return LocalRef{}, err
	}
	if id == "" {
		return LocalRef{}, &ParseError{Field: field, Input: raw, Reason: "empty local id"}
	}

	return LocalRef{Field: field, Index: index, LocalID: id, ResultField: resultField}, nil
}

// splitResultField splits an optional trailing ":result_field" off a
// shorthand body. More than one separator is malformed.
func splitResultField(field, raw, body string) (rest, resultField string, err error) {
	parts := strings.Split(body, fieldSeparator)
	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		if parts[1] == "" {
			return "", "", &ParseError{Field: field, Input: raw, Reason: "empty result field"}
		}
		return parts[0], parts[1], nil
	default:
		return "", "", &ParseError{
			Field:  field,
			Input:  raw,
			Reason: "too many '" + fieldSeparator + "' separators",
		}
	}
}

// parseRefsBlock parses the explicit reference block form: a mapping of
// target field to {target_type, criteria, field?}.
func parseRefsBlock(reg *registry.Registry, raw any) ([]CriteriaRef, error) {
	block, ok := raw.(map[string]any)
	if !ok {
		return nil, &ParseError{
			Field:  RefsKey,
			Input:  fmt.Sprintf("%v", raw),
			Reason: "reference block must be a mapping of field to reference",
		}
	}

	fields := make([]string, 0, len(block))
	for field := range block {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	refs := make([]CriteriaRef, 0, len(block))
	for _, field := range fields {
		rawEntry := block[field]
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			return nil, &ParseError{
				Field:  field,
				Input:  fmt.Sprintf("%v", rawEntry),
				Reason: "reference entry must be a mapping",
			}
		}

		typeName, ok := entry["target_type"].(string)
		if !ok || typeName == "" {
			return nil, &ParseError{
				Field:  field,
				Input:  fmt.Sprintf("%v", rawEntry),
				Reason: "missing target_type",
			}
		}

		criteria, ok := entry["criteria"].(map[string]any)
		if !ok || len(criteria) == 0 {
			return nil, &ParseError{
				Field:  field,
				Input:  fmt.Sprintf("%v", rawEntry),
				Reason: "missing or empty criteria",
			}
		}
		for k, v := range criteria {
			switch v.(type) {
			case string, int64, float64, bool:
			default:
				return nil, &ParseError{
					Field:  field,
					Input:  fmt.Sprintf("%v", rawEntry),
					Reason: fmt.Sprintf("criteria %q must be a scalar literal", k),
				}
			}
		}

		resultField := ""
		if rf, present := entry["field"]; present {
			resultField, ok = rf.(string)
			if !ok {
				return nil, &ParseError{
					Field:  field,
					Input:  fmt.Sprintf("%v", rawEntry),
					Reason: "field must be a string",
				}
			}
		}

		target, err := reg.Lookup(typeName)
		if err != nil {
			return nil, &StructuralError{
				Message: fmt.Sprintf("reference on field %q: %v", field, err),
			}
		}

		refs = append(refs, CriteriaRef{
			Field:       field,
			Index:       scalarIndex,
			Target:      target,
			Criteria:    criteria,
			ResultField: resultField,
		})
	}
	return refs, nil
}
