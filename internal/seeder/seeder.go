// Package seeder is the top-level facade: it parses seed documents, applies
// their meta keys, and drives the resolver against a store session.
package seeder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loamlabs/seedr/internal/document"
	"github.com/loamlabs/seedr/internal/record"
	"github.com/loamlabs/seedr/internal/registry"
	"github.com/loamlabs/seedr/internal/resolver"
	"github.com/loamlabs/seedr/internal/store"
)

// Seeder loads seed documents into a store session.
//
// The session is shared across loads, mirroring how resolution works: a load
// with commit disabled leaves its records flushed but uncommitted, visible
// to later loads on the same seeder and finalized by whichever later call
// commits.
type Seeder struct {
	session  *store.Session
	registry *registry.Registry
}

// New creates a Seeder loading into the given session using the given
// registry for type lookups.
func New(session *store.Session, reg *registry.Registry) *Seeder {
	return &Seeder{session: session, registry: reg}
}

// Session returns the seeder's store session, for callers that commit or
// roll back outside the load calls.
func (s *Seeder) Session() *store.Session {
	return s.session
}

type options struct {
	flushOnCreate bool
	commit        bool
}

// Option configures one load call.
type Option func(*options)

// WithFlushOnCreate controls per-record flushing (default true). Disabling
// it means records created in this batch are invisible to criteria
// references until some later flush.
func WithFlushOnCreate(flush bool) Option {
	return func(o *options) {
		o.flushOnCreate = flush
	}
}

// WithCommit commits the session after the batch materializes (default
// false). Commit is never implied.
func WithCommit(commit bool) Option {
	return func(o *options) {
		o.commit = commit
	}
}

func buildOptions(opts []Option) options {
	o := options{flushOnCreate: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LoadYAML parses a YAML seed document and loads it.
func (s *Seeder) LoadYAML(ctx context.Context, data []byte, opts ...Option) ([]record.Record, error) {
	doc, err := document.Parse(data)
	if err != nil {
		return nil, err
	}
	return s.LoadDocument(ctx, doc, opts...)
}

// LoadJSON parses a JSON seed document and loads it.
func (s *Seeder) LoadJSON(ctx context.Context, data []byte, opts ...Option) ([]record.Record, error) {
	doc, err := document.ParseJSON(data)
	if err != nil {
		return nil, err
	}
	return s.LoadDocument(ctx, doc, opts...)
}

// LoadFile reads and loads a single seed file (decoder chosen by extension).
// Includes are honored; see LoadFiles.
func (s *Seeder) LoadFile(ctx context.Context, path string, opts ...Option) ([]record.Record, error) {
	return s.LoadFiles(ctx, []string{path}, opts...)
}

// LoadFiles loads seed files and their "!files" includes in dependency
// order, deduplicated by resolved path. Each document is resolved as its own
// batch; a requested commit happens once, after all batches materialize.
func (s *Seeder) LoadFiles(ctx context.Context, paths []string, opts ...Option) ([]record.Record, error) {
	o := buildOptions(opts)

	queue := document.NewQueue()
	for _, path := range paths {
		if err := queue.AddFile(path); err != nil {
			return nil, err
		}
	}

	var out []record.Record
	for {
		doc, ok := queue.Next()
		if !ok {
			break
		}
		records, err := s.loadDocument(ctx, doc, o.flushOnCreate)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}

	if o.commit {
		if err := s.session.Commit(ctx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LoadDocument loads an already-parsed document.
func (s *Seeder) LoadDocument(ctx context.Context, doc *document.Document, opts ...Option) ([]record.Record, error) {
	o := buildOptions(opts)

	records, err := s.loadDocument(ctx, doc, o.flushOnCreate)
	if err != nil {
		return nil, err
	}

	if o.commit {
		if err := s.session.Commit(ctx); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *Seeder) loadDocument(ctx context.Context, doc *document.Document, flushOnCreate bool) ([]record.Record, error) {
	for _, target := range doc.Models {
		// Registration targets fill gaps only; compiled-in types win.
		if _, err := s.registry.Lookup(target); err == nil {
			continue
		}
		if _, err := s.registry.RegisterDynamic(target); err != nil {
			return nil, fmt.Errorf("register model %q: %w", target, err)
		}
		slog.Debug("registered dynamic type", "target", target)
	}

	res := resolver.New(s.session, s.registry, resolver.WithFlushOnCreate(flushOnCreate))
	return res.Generate(ctx, doc.Groups)
}

// GroupByType partitions materialized records by concrete type name,
// preserving insertion order within each type.
func GroupByType(records []record.Record) map[string][]record.Record {
	grouped := make(map[string][]record.Record)
	for _, rec := range records {
		grouped[rec.TypeName()] = append(grouped[rec.TypeName()], rec)
	}
	return grouped
}
