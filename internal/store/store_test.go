package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Create database
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	// Reopen database
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	// Verify we can query it
	var count int
	err = s2.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&count)
	if err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Open multiple times
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("pragma query failed: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}
}

// seqGenerator issues "id-1", "id-2", ... for deterministic tests.
type seqGenerator struct {
	n int
}

func (g *seqGenerator) NewID() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func TestOpen_WithIDGenerator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, WithIDGenerator(&seqGenerator{}))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if got := s.idGen.NewID(); got != "id-1" {
		t.Errorf("generator not installed, got %q", got)
	}
}
