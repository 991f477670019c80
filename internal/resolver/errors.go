package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ParseError reports a malformed reference expression. Parse errors are
// structural: they surface before any resolution work and are never retried.
type ParseError struct {
	// Field is the record field carrying the bad expression.
	Field string

	// Input is the raw reference string or block entry.
	Input string

	// Reason describes what could not be parsed.
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse reference on field %q: %s (input %q)", e.Field, e.Reason, e.Input)
}

// StructuralError reports an invalid batch: an unknown record type, a
// duplicate or non-string local id, or a local-id reference to an id no
// record in the batch declared. Detected during expansion, never retried.
type StructuralError struct {
	Message string
}

func (e *StructuralError) Error() string {
	return e.Message
}

// AmbiguousReferenceError reports a criteria reference matching more than
// one stored record. Terminal: the whole batch aborts immediately.
type AmbiguousReferenceError struct {
	TypeName string
	Criteria map[string]any
	Matches  int
}

func (e *AmbiguousReferenceError) Error() string {
	return fmt.Sprintf("ambiguous reference: criteria %s matched %d %s records",
		formatCriteria(e.Criteria), e.Matches, e.TypeName)
}

// StuckBuilder identifies one builder left pending when the fixpoint loop
// stalled, with the fields whose references never resolved.
type StuckBuilder struct {
	TypeName string
	LocalID  string
	Fields   []string
}

func (s StuckBuilder) String() string {
	name := s.TypeName
	if s.LocalID != "" {
		name += "(!id=" + s.LocalID + ")"
	}
	return name + "[" + strings.Join(s.Fields, ", ") + "]"
}

// UnresolvedReferencesError reports that a resolution pass made no progress
// while builders were still pending. Terminal.
type UnresolvedReferencesError struct {
	Stuck []StuckBuilder
}

// Count returns the number of stuck builders.
func (e *UnresolvedReferencesError) Count() int {
	return len(e.Stuck)
}

func (e *UnresolvedReferencesError) Error() string {
	details := make([]string, len(e.Stuck))
	for i, s := range e.Stuck {
		details[i] = s.String()
	}
	return fmt.Sprintf("%d builders have unresolvable references: %s",
		len(e.Stuck), strings.Join(details, "; "))
}

// BuildError reports a builder protocol violation: building before the
// reference set emptied, or building twice. These indicate an engine or
// caller bug, not bad seed data.
type BuildError struct {
	TypeName string
	Reason   string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s record: %s", e.TypeName, e.Reason)
}

// IsAmbiguous reports whether err is an ambiguous-reference failure.
// Uses errors.As to handle wrapped errors.
func IsAmbiguous(err error) bool {
	var ae *AmbiguousReferenceError
	return errors.As(err, &ae)
}

// IsUnresolved reports whether err is a stalled-fixpoint failure.
func IsUnresolved(err error) bool {
	var ue *UnresolvedReferencesError
	return errors.As(err, &ue)
}

// IsStructural reports whether err is a batch-construction failure,
// including reference parse errors.
func IsStructural(err error) bool {
	var se *StructuralError
	if errors.As(err, &se) {
		return true
	}
	var pe *ParseError
	return errors.As(err, &pe)
}

func formatCriteria(criteria map[string]any) string {
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", k, criteria[k])
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}
