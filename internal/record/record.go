package record

// Record is a materialized typed record.
//
// Records are produced by registry constructors from a fully resolved field
// map and persisted by the store. Identity is assigned by the store when the
// record is flushed; until then ID returns the empty string.
type Record interface {
	// TypeName returns the registered type name of the record.
	TypeName() string

	// ID returns the store-assigned identity, or "" before the first flush.
	ID() string

	// SetID assigns the store identity. Called exactly once, by the store.
	SetID(id string)

	// Fields returns the record's field map. Values are normalized scalars,
	// lists, nested maps, or other Records (for resolved whole-record
	// references). Callers must not mutate the returned map.
	Fields() map[string]any
}

// Group is a record group from an input document: one type name plus the raw
// field-data blocks that become builders of that type.
type Group struct {
	TypeName string
	Blocks   []map[string]any
}

// Generic is a schemaless Record backed directly by its field map.
//
// Used for dynamically registered types (the CLI path, and any document that
// declares its types via the models meta key rather than compiled-in
// constructors).
type Generic struct {
	typeName string
	id       string
	fields   map[string]any
}

// NewGeneric creates a Generic record of the given type.
func NewGeneric(typeName string, fields map[string]any) *Generic {
	if fields == nil {
		fields = map[string]any{}
	}
	return &Generic{typeName: typeName, fields: fields}
}

func (g *Generic) TypeName() string { return g.typeName }

func (g *Generic) ID() string { return g.id }

func (g *Generic) SetID(id string) { g.id = id }

func (g *Generic) Fields() map[string]any { return g.fields }
