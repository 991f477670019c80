package seeder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loamlabs/seedr/internal/record"
	"github.com/loamlabs/seedr/internal/registry"
	"github.com/loamlabs/seedr/internal/store"
)

// seqGenerator issues "id-1", "id-2", ... for deterministic output.
type seqGenerator struct {
	n int
}

func (g *seqGenerator) NewID() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path, store.WithIDGenerator(&seqGenerator{}))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newSeeder(t *testing.T) (*Seeder, *store.Store) {
	t.Helper()
	s := setupStore(t)
	sdr := New(s.Session(), registry.New(registry.WithDynamicTypes()))
	return sdr, s
}

func TestLoadYAML(t *testing.T) {
	sdr, _ := newSeeder(t)

	records, err := sdr.LoadYAML(context.Background(), []byte(`
Country:
  name: United Kingdom
  short: UK
Airport:
  icao: EGLL
  country: "!Country?short=UK:short"
`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "UK", records[1].Fields()["country"])
}

func TestLoadYAML_NoImplicitCommit(t *testing.T) {
	sdr, s := newSeeder(t)
	ctx := context.Background()

	_, err := sdr.LoadYAML(ctx, []byte(`
Country:
  short: UK
`))
	require.NoError(t, err)

	// Flushed but uncommitted: a rollback erases everything.
	require.NoError(t, sdr.Session().Rollback())

	matches, err := s.Session().Query(ctx, registry.DynamicType("Country"), nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLoadYAML_WithCommit(t *testing.T) {
	sdr, s := newSeeder(t)
	ctx := context.Background()

	_, err := sdr.LoadYAML(ctx, []byte(`
Country:
  short: UK
`), WithCommit(true))
	require.NoError(t, err)

	matches, err := s.Session().Query(ctx, registry.DynamicType("Country"), map[string]any{"short": "UK"})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestLoadJSON(t *testing.T) {
	sdr, _ := newSeeder(t)

	_, err := sdr.LoadJSON(context.Background(), []byte(`[
		{"type": "Country", "data": {"short": "UK", "population": 67000000}},
		{"type": "Airport", "data": {"icao": "EGLL", "country": "#uk"}}
	]`))
	require.Error(t, err, "unknown local id must fail")

	records, err := sdr.LoadJSON(context.Background(), []byte(`[
		{"type": "Country", "data": {"!id": "uk", "short": "UK"}},
		{"type": "Airport", "data": {"icao": "EGLL", "country": "#uk:short"}}
	]`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "UK", records[1].Fields()["country"])
}

func TestLoadDocument_RegistersModels(t *testing.T) {
	s := setupStore(t)
	// Static registry: unknown names are errors unless "!models" names them.
	sdr := New(s.Session(), registry.New())

	_, err := sdr.LoadYAML(context.Background(), []byte(`
"!models":
  - Country
Country:
  short: UK
`))
	require.NoError(t, err)

	_, err = sdr.LoadYAML(context.Background(), []byte(`
Airport:
  icao: EGLL
`))
	require.Error(t, err, "Airport was never registered")
}

func TestLoadDocument_CompiledTypesWin(t *testing.T) {
	s := setupStore(t)
	reg := registry.New()
	built := 0
	require.NoError(t, reg.Register(registry.Type{
		Name: "Country",
		New: func(fields map[string]any) (record.Record, error) {
			built++
			return record.NewGeneric("Country", fields), nil
		},
	}))
	sdr := New(s.Session(), reg)

	_, err := sdr.LoadYAML(context.Background(), []byte(`
"!models":
  - Country
Country:
  short: UK
`))
	require.NoError(t, err)
	assert.Equal(t, 1, built, "registered constructor should not be displaced by !models")
}

func writeSeedFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadFiles_CrossFileReference(t *testing.T) {
	sdr, _ := newSeeder(t)
	dir := t.TempDir()

	base := filepath.Join(dir, "base.yaml")
	writeSeedFile(t, base, `
Country:
  name: United Kingdom
  short: UK
`)
	main := filepath.Join(dir, "main.yaml")
	writeSeedFile(t, main, `
"!files":
  - base.yaml
Airport:
  icao: EGLL
  country: "!Country?short=UK:name"
`)

	records, err := sdr.LoadFiles(context.Background(), []string{main})
	require.NoError(t, err)
	require.Len(t, records, 2)

	// The include loads first, so its country is flushed and visible when
	// the airport resolves.
	assert.Equal(t, "United Kingdom", records[0].Fields()["name"])
	assert.Equal(t, "United Kingdom", records[1].Fields()["country"])
}

func TestGroupByType(t *testing.T) {
	records := []record.Record{
		record.NewGeneric("Country", map[string]any{"short": "UK"}),
		record.NewGeneric("Airport", map[string]any{"icao": "EGLL"}),
		record.NewGeneric("Country", map[string]any{"short": "FR"}),
	}

	got := GroupByType(records)
	want := map[string][]record.Record{
		"Country": {records[0], records[2]},
		"Airport": {records[1]},
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b record.Record) bool { return a == b })); diff != "" {
		t.Errorf("GroupByType mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_GoldenStoreContents(t *testing.T) {
	sdr, s := newSeeder(t)
	ctx := context.Background()

	_, err := sdr.LoadYAML(ctx, []byte(`
Country:
  - name: United Kingdom
    short: UK
Airport:
  - icao: EGLL
    name: London Heathrow
    country: "!Country?short=UK"
  - icao: EGKK
    country_id: "!Country?short=UK:id"
`), WithCommit(true))
	require.NoError(t, err)

	rows, err := s.DB().QueryContext(ctx, "SELECT id, type, fields FROM records ORDER BY rowid")
	require.NoError(t, err)
	defer rows.Close()

	var buf bytes.Buffer
	for rows.Next() {
		var id, typ, fields string
		require.NoError(t, rows.Scan(&id, &typ, &fields))
		fmt.Fprintf(&buf, "%s %s %s\n", id, typ, fields)
	}
	require.NoError(t, rows.Err())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "load_basic", buf.Bytes())
}
