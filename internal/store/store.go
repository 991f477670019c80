// Package store persists seeded records in SQLite.
//
// A Store owns the database; a Session wraps one transaction and carries the
// add/flush/query/commit lifecycle the resolution engine drives. Records
// staged with Add have no identity; Flush inserts them inside the session's
// transaction and assigns ids, making them visible to Query within the same
// session before anything is committed.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// IDGenerator assigns record identity at flush time.
// Implemented by uuidGenerator (production) and fixed generators in tests.
type IDGenerator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

// Store provides durable storage for seeded records.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db    *sql.DB
	idGen IDGenerator
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the identity generator. Tests use a fixed
// sequence for deterministic golden output.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Store) {
		s.idGen = gen
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically; idempotent.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db, idGen: uuidGenerator{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer Session methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Session creates a new Session against this store. The session's
// transaction begins lazily on first use.
func (s *Store) Session() *Session {
	return &Session{store: s}
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}
