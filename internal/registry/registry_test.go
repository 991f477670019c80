package registry

import (
	"testing"

	"github.com/loamlabs/seedr/internal/record"
)

func countryType() Type {
	return Type{
		Name: "Country",
		New: func(fields map[string]any) (record.Record, error) {
			return record.NewGeneric("Country", fields), nil
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	if err := r.Register(countryType()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	typ, err := r.Lookup("Country")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if typ.Name != "Country" {
		t.Errorf("got type %q, want Country", typ.Name)
	}
}

func TestLookup_QualifiedPathFallsBackToBareName(t *testing.T) {
	r := New()
	if err := r.Register(countryType()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	typ, err := r.Lookup("models:Country")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if typ.Name != "Country" {
		t.Errorf("got type %q, want Country", typ.Name)
	}
}

func TestLookup_UnknownName(t *testing.T) {
	r := New()
	if _, err := r.Lookup("Nope"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestLookup_TooManySeparators(t *testing.T) {
	r := New()
	if _, err := r.Lookup("a:b:c"); err == nil {
		t.Error("expected error for over-qualified path")
	}
}

func TestLookup_EmptyTypeName(t *testing.T) {
	r := New()
	if _, err := r.Lookup("models:"); err == nil {
		t.Error("expected error for empty type name")
	}
}

func TestLookup_DynamicRegistersGeneric(t *testing.T) {
	r := New(WithDynamicTypes())

	typ, err := r.Lookup("Airport")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	rec, err := typ.New(map[string]any{"icao": "EGLL"})
	if err != nil {
		t.Fatalf("constructor failed: %v", err)
	}
	if rec.TypeName() != "Airport" {
		t.Errorf("got type %q, want Airport", rec.TypeName())
	}

	// Registered on first lookup, so it now appears in Names.
	names := r.Names()
	if len(names) != 1 || names[0] != "Airport" {
		t.Errorf("Names() = %v, want [Airport]", names)
	}
}

func TestLookup_DynamicQualifiedRegistersBareName(t *testing.T) {
	r := New(WithDynamicTypes())

	typ, err := r.Lookup("models:Airport")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if typ.Name != "Airport" {
		t.Errorf("got type %q, want Airport", typ.Name)
	}
}

func TestRegister_Validation(t *testing.T) {
	r := New()
	if err := r.Register(Type{Name: ""}); err == nil {
		t.Error("expected error for empty name")
	}
	if err := r.Register(Type{Name: "Country"}); err == nil {
		t.Error("expected error for nil constructor")
	}
}

func TestRegister_Replaces(t *testing.T) {
	r := New()
	if err := r.Register(countryType()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	replacement := Type{
		Name: "Country",
		New: func(fields map[string]any) (record.Record, error) {
			return record.NewGeneric("Nation", fields), nil
		},
	}
	if err := r.Register(replacement); err != nil {
		t.Fatalf("re-Register failed: %v", err)
	}

	typ, err := r.Lookup("Country")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	rec, err := typ.New(nil)
	if err != nil {
		t.Fatalf("constructor failed: %v", err)
	}
	if rec.TypeName() != "Nation" {
		t.Error("replacement constructor not in effect")
	}
}
