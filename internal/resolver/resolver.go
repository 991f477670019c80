package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loamlabs/seedr/internal/record"
	"github.com/loamlabs/seedr/internal/registry"
	"github.com/loamlabs/seedr/internal/store"
)

// Resolver owns the builders of one load batch and drives the fixpoint
// resolution loop.
//
// The resolver exclusively owns its builders for the duration of one
// Generate call; builders never outlive the call except as returned
// materialized records.
type Resolver struct {
	session       *store.Session
	registry      *registry.Registry
	flushOnCreate bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFlushOnCreate controls whether each record is flushed into the store
// session immediately after it is built. Flushing assigns identity and makes
// the record visible to criteria lookups in later passes; it does not commit.
//
// Default: true. With flushing disabled, criteria references to records
// created in the same batch will not find them.
func WithFlushOnCreate(flush bool) Option {
	return func(r *Resolver) {
		r.flushOnCreate = flush
	}
}

// New creates a Resolver resolving against the given session and registry.
func New(sess *store.Session, reg *registry.Registry, opts ...Option) *Resolver {
	r := &Resolver{
		session:       sess,
		registry:      reg,
		flushOnCreate: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate expands the record groups into builders and resolves them to
// materialized records, returned in resolution order.
//
// Each loop pass first attempts to resolve every remaining builder, then
// builds all builders that resolved during the pass, adds them to the
// session, and flushes if configured. A pass that resolves nothing stalls
// the batch and fails with an UnresolvedReferencesError.
//
// Terminal errors abort the batch immediately. Records already added to the
// session within this call are not rolled back here; that is the owning
// transaction's responsibility.
func (r *Resolver) Generate(ctx context.Context, groups []record.Group) ([]record.Record, error) {
	working, byLocalID, err := r.expand(groups)
	if err != nil {
		return nil, err
	}

	slog.Info("generating records", "builders", len(working))

	out := make([]record.Record, 0, len(working))
	pass := 0
	for len(working) > 0 {
		pass++
		var resolved, remaining []*Builder

		for _, b := range working {
			done, err := b.resolve(ctx, r.session, byLocalID)
			if err != nil {
				return nil, err
			}
			if done {
				resolved = append(resolved, b)
			} else {
				remaining = append(remaining, b)
			}
		}

		if len(resolved) == 0 {
			return nil, stallError(remaining)
		}

		for _, b := range resolved {
			rec, err := b.build()
			if err != nil {
				return nil, err
			}
			r.session.Add(rec)
			if r.flushOnCreate {
				if err := r.session.Flush(ctx); err != nil {
					return nil, err
				}
			}
			out = append(out, rec)
		}

		slog.Debug("resolution pass complete",
			"pass", pass,
			"resolved", len(resolved),
			"remaining", len(remaining),
		)
		working = remaining
	}

	return out, nil
}

// expand turns record groups into builders, popping reserved keys and
// registering local ids. Duplicate local ids and references to undeclared
// local ids are structural errors.
func (r *Resolver) expand(groups []record.Group) ([]*Builder, map[string]*Builder, error) {
	var builders []*Builder
	byLocalID := make(map[string]*Builder)

	for _, group := range groups {
		typ, err := r.registry.Lookup(group.TypeName)
		if err != nil {
			return nil, nil, &StructuralError{Message: err.Error()}
		}

		for _, block := range group.Blocks {
			fields := make(map[string]any, len(block))
			for k, v := range block {
				fields[k] = v
			}

			localID := ""
			if rawID, ok := fields[LocalIDKey]; ok {
				delete(fields, LocalIDKey)
				localID, ok = rawID.(string)
				if !ok || localID == "" {
					return nil, nil, &StructuralError{
						Message: fmt.Sprintf("%s record: local id must be a non-empty string, got %v", typ.Name, rawID),
					}
				}
				if _, exists := byLocalID[localID]; exists {
					return nil, nil, &StructuralError{
						Message: fmt.Sprintf("duplicate local id %q", localID),
					}
				}
			}

			b, err := newBuilder(r.registry, typ, localID, fields)
			if err != nil {
				return nil, nil, err
			}
			if localID != "" {
				byLocalID[localID] = b
			}
			builders = append(builders, b)
		}
	}

	// Local-id references must point at ids declared somewhere in the batch.
	for _, b := range builders {
		for _, ref := range b.localRefs {
			if _, ok := byLocalID[ref.LocalID]; !ok {
				return nil, nil, &StructuralError{
					Message: fmt.Sprintf("%s record field %q references unknown local id %q",
						b.typ.Name, ref.Field, ref.LocalID),
				}
			}
		}
	}

	return builders, byLocalID, nil
}

func stallError(remaining []*Builder) error {
	stuck := make([]StuckBuilder, len(remaining))
	for i, b := range remaining {
		stuck[i] = StuckBuilder{
			TypeName: b.typ.Name,
			LocalID:  b.localID,
			Fields:   b.pendingFields(),
		}
	}
	return &UnresolvedReferencesError{Stuck: stuck}
}
