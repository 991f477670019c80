package document

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Queue reads seed files and their includes into dependency order.
//
// Each file's "!files" includes are queued before the file itself, resolved
// relative to the including file. Files are deduplicated by resolved path,
// which also breaks include cycles.
type Queue struct {
	seen map[string]bool
	docs []*Document
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{seen: make(map[string]bool)}
}

// AddFile parses the given file, recursively queues its includes, then
// queues the file's own document. A path queued twice is ignored.
func (q *Queue) AddFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if q.seen[abs] {
		slog.Debug("seed file already queued", "path", abs)
		return nil
	}
	q.seen[abs] = true

	doc, err := ParseFile(path)
	if err != nil {
		return fmt.Errorf("queue %s: %w", path, err)
	}

	for _, include := range doc.Files {
		// Relative includes resolve against the including file; absolute
		// includes are used verbatim.
		if !filepath.IsAbs(include) {
			include = filepath.Join(filepath.Dir(path), include)
		}
		if err := q.AddFile(include); err != nil {
			return err
		}
	}

	q.docs = append(q.docs, doc)
	return nil
}

// Next pops the next document in dependency order.
func (q *Queue) Next() (*Document, bool) {
	if len(q.docs) == 0 {
		return nil, false
	}
	doc := q.docs[0]
	q.docs = q.docs[1:]
	return doc, true
}

// Len returns the number of queued documents.
func (q *Queue) Len() int {
	return len(q.docs)
}

// ParseFile reads and parses a seed file, choosing the decoder by extension:
// ".json" is parsed as JSON, everything else as YAML.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(data)
	}
	return Parse(data)
}
