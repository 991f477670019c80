package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/loamlabs/seedr/internal/record"
	"github.com/loamlabs/seedr/internal/registry"
	"github.com/loamlabs/seedr/internal/store"
)

// Builder wraps one record's raw field data plus its pending references.
//
// State machine: pending -> resolved -> built, no transition back. A builder
// is resolved exactly when its pending reference set is empty, and builds at
// most once.
type Builder struct {
	typ     registry.Type
	localID string
	fields  map[string]any

	criteriaRefs []CriteriaRef
	localRefs    []LocalRef

	built record.Record
}

// newBuilder extracts references from a data block and returns the builder.
// The block is the caller's copy; reserved keys must already be popped.
func newBuilder(reg *registry.Registry, typ registry.Type, localID string, block map[string]any) (*Builder, error) {
	b := &Builder{typ: typ, localID: localID, fields: block}

	if rawRefs, ok := block[RefsKey]; ok {
		delete(block, RefsKey)
		refs, err := parseRefsBlock(reg, rawRefs)
		if err != nil {
			return nil, err
		}
		b.criteriaRefs = append(b.criteriaRefs, refs...)
	}

	// Deterministic reference order regardless of map iteration.
	fields := make([]string, 0, len(block))
	for field := range block {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		switch value := block[field].(type) {
		case string:
			if err := b.addInlineRef(reg, field, scalarIndex, value); err != nil {
				return nil, err
			}
		case []any:
			for i, elem := range value {
				s, ok := elem.(string)
				if !ok {
					continue
				}
				if err := b.addInlineRef(reg, field, i, s); err != nil {
					return nil, err
				}
			}
		}
	}

	return b, nil
}

func (b *Builder) addInlineRef(reg *registry.Registry, field string, index int, value string) error {
	if !isRefString(value) {
		return nil
	}
	switch value[0] {
	case inlineRefSentinel:
		ref, err := parseInlineRef(reg, field, index, value)
		if err != nil {
			return err
		}
		b.criteriaRefs = append(b.criteriaRefs, ref)
	case localRefSentinel:
		ref, err := parseLocalRef(field, index, value)
		if err != nil {
			return err
		}
		b.localRefs = append(b.localRefs, ref)
	}
	return nil
}

// resolved reports whether the pending reference set is empty.
func (b *Builder) resolved() bool {
	return len(b.criteriaRefs) == 0 && len(b.localRefs) == 0
}

// resolve attempts to discharge every pending reference once and reports
// whether the builder is now fully resolved.
//
// Criteria references with zero store matches and local-id references whose
// target is not yet materialized stay pending for a later pass. More than
// one criteria match is terminal for the whole batch.
func (b *Builder) resolve(ctx context.Context, sess *store.Session, byLocalID map[string]*Builder) (bool, error) {
	if b.resolved() {
		return true, nil
	}

	kept := b.criteriaRefs[:0]
	for _, ref := range b.criteriaRefs {
		matches, err := sess.Query(ctx, ref.Target, ref.Criteria)
		if err != nil {
			return false, err
		}
		switch len(matches) {
		case 0:
			kept = append(kept, ref)
		case 1:
			if err := b.assign(ref.Field, ref.Index, ref.ResultField, matches[0]); err != nil {
				return false, err
			}
		default:
			return false, &AmbiguousReferenceError{
				TypeName: ref.Target.Name,
				Criteria: ref.Criteria,
				Matches:  len(matches),
			}
		}
	}
	b.criteriaRefs = kept

	keptLocal := b.localRefs[:0]
	for _, ref := range b.localRefs {
		target := byLocalID[ref.LocalID] // existence validated at expansion
		if target.built == nil {
			keptLocal = append(keptLocal, ref)
			continue
		}
		if err := b.assign(ref.Field, ref.Index, ref.ResultField, target.built); err != nil {
			return false, err
		}
	}
	b.localRefs = keptLocal

	return b.resolved(), nil
}

// assign writes a resolved value into the referencing field, replacing the
// reference expression in place.
func (b *Builder) assign(field string, index int, resultField string, rec record.Record) error {
	value := any(rec)
	if resultField != "" {
		v, err := fieldValue(rec, resultField)
		if err != nil {
			return &StructuralError{
				Message: fmt.Sprintf("reference on field %q: %v", field, err),
			}
		}
		value = v
	}

	if index == scalarIndex {
		b.fields[field] = value
		return nil
	}

	list, ok := b.fields[field].([]any)
	if !ok || index >= len(list) {
		return &StructuralError{
			Message: fmt.Sprintf("reference on field %q: list element %d no longer present", field, index),
		}
	}
	list[index] = value
	return nil
}

// build constructs the concrete record from the now fully literal field map.
// Calling on an unresolved or already-built builder is a protocol violation.
func (b *Builder) build() (record.Record, error) {
	if !b.resolved() {
		return nil, &BuildError{TypeName: b.typ.Name, Reason: "builder has unresolved references"}
	}
	if b.built != nil {
		return nil, &BuildError{TypeName: b.typ.Name, Reason: "builder has already been used"}
	}

	rec, err := b.typ.New(b.fields)
	if err != nil {
		return nil, fmt.Errorf("construct %s record: %w", b.typ.Name, err)
	}
	b.built = rec
	return rec, nil
}

// pendingFields lists the fields with undischarged references, sorted.
// Used for stall diagnostics.
func (b *Builder) pendingFields() []string {
	seen := make(map[string]bool)
	for _, ref := range b.criteriaRefs {
		seen[ref.Field] = true
	}
	for _, ref := range b.localRefs {
		seen[ref.Field] = true
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// fieldValue extracts a named field from a materialized record. The
// store-assigned identity is addressable as "id".
func fieldValue(rec record.Record, name string) (any, error) {
	if name == "id" {
		return rec.ID(), nil
	}
	v, ok := rec.Fields()[name]
	if !ok {
		return nil, fmt.Errorf("result field %q not present on %s record", name, rec.TypeName())
	}
	return v, nil
}
