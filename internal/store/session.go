package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/loamlabs/seedr/internal/record"
	"github.com/loamlabs/seedr/internal/registry"
)

// Session is one unit of work against the store.
//
// Records staged with Add are held in memory until Flush inserts them inside
// the session's transaction, assigning identity. Flushed records are visible
// to Query in the same session but are not durable until Commit. After
// Commit or Rollback the session can be reused; a fresh transaction begins
// on the next operation.
//
// Sessions are not safe for concurrent use. The resolution engine performs
// at most one outstanding operation at a time.
type Session struct {
	store   *Store
	tx      *sql.Tx
	pending []record.Record
}

// Add stages a record for insertion. The record gains identity at the next
// Flush; until then criteria lookups will not find it.
func (s *Session) Add(rec record.Record) {
	s.pending = append(s.pending, rec)
}

// Pending returns the number of staged, unflushed records.
func (s *Session) Pending() int {
	return len(s.pending)
}

// Flush inserts all staged records inside the session transaction, assigning
// each a generated id. Flushed records are retrievable by Query but not
// durable until Commit.
func (s *Session) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.begin(ctx); err != nil {
		return err
	}

	for _, rec := range s.pending {
		fields, err := record.MarshalFields(rec.Fields())
		if err != nil {
			return fmt.Errorf("flush %s record: %w", rec.TypeName(), err)
		}

		id := s.store.idGen.NewID()
		_, err = s.tx.ExecContext(ctx, `
			INSERT INTO records (id, type, fields)
			VALUES (?, ?, ?)
		`, id, rec.TypeName(), string(fields))
		if err != nil {
			return fmt.Errorf("flush %s record: %w", rec.TypeName(), err)
		}
		rec.SetID(id)

		slog.Debug("record flushed", "type", rec.TypeName(), "id", id)
	}

	s.pending = s.pending[:0]
	return nil
}

// Query returns records of the given type whose fields equal every criteria
// entry. Matching happens in SQL via json_extract, so flushed-but-
// uncommitted rows of this session are visible. Rows are reconstructed
// through the type's constructor.
func (s *Session) Query(ctx context.Context, t registry.Type, criteria map[string]any) ([]record.Record, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, fields FROM records WHERE type = ?")
	args := []any{t.Name}

	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" AND json_extract(fields, ?) = ?")
		args = append(args, jsonPath(k), criteria[k])
	}
	sb.WriteString(" ORDER BY rowid")

	rows, err := s.tx.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s records: %w", t.Name, err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var id, fieldsJSON string
		if err := rows.Scan(&id, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("scan %s record: %w", t.Name, err)
		}
		fields, err := record.UnmarshalFields([]byte(fieldsJSON))
		if err != nil {
			return nil, fmt.Errorf("decode %s record %s: %w", t.Name, id, err)
		}
		rec, err := t.New(fields)
		if err != nil {
			return nil, fmt.Errorf("construct %s record %s: %w", t.Name, id, err)
		}
		rec.SetID(id)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s records: %w", t.Name, err)
	}
	return out, nil
}

// Commit flushes any staged records and commits the transaction.
// Explicit and caller-requested only - never implied by a load.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.tx = nil
	return nil
}

// Rollback discards the transaction and any staged records.
func (s *Session) Rollback() error {
	s.pending = nil
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (s *Session) begin(ctx context.Context) error {
	if s.tx != nil {
		return nil
	}
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	s.tx = tx
	return nil
}

// jsonPath builds the json_extract path for a top-level field name.
func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}
