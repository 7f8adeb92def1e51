package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestVariableSpec_UnmarshalRejectsUnknownKind(t *testing.T) {
	var spec VariableSpec
	if err := json.Unmarshal([]byte(`{"type": "decimal128"}`), &spec); err == nil {
		t.Fatalf("expected unknown kind to be rejected at decode")
	}
}

func TestVariableSpec_UnmarshalAcceptsPrimitives(t *testing.T) {
	for _, kind := range []string{"string", "number", "boolean", "date"} {
		var spec VariableSpec
		if err := json.Unmarshal([]byte(`{"type": "`+kind+`"}`), &spec); err != nil {
			t.Fatalf("%s: expected decode to succeed, got %v", kind, err)
		}
	}
}

func TestVariableSpec_ArrayRequiresItems(t *testing.T) {
	var spec VariableSpec
	if err := json.Unmarshal([]byte(`{"type": "array"}`), &spec); err == nil {
		t.Fatalf("expected itemless array to be rejected")
	}
	if err := json.Unmarshal([]byte(`{"type": "array", "items": {"type": "number"}}`), &spec); err != nil {
		t.Fatalf("expected array with primitive items to decode, got %v", err)
	}
	if err := json.Unmarshal([]byte(`{"type": "array", "items": {"type": "array"}}`), &spec); err == nil {
		t.Fatalf("expected nested array items to be rejected")
	}
}

func TestVariableSpec_PrimitiveMustNotDeclareItems(t *testing.T) {
	spec := VariableSpec{Kind: KindString, Items: &VariableItems{Kind: KindString}}
	if err := spec.Validate(); err == nil {
		t.Fatalf("expected primitive spec with items to be rejected")
	}
}

func TestOwnershipRecord_Membership(t *testing.T) {
	schemaID := uuid.New()
	queryID := uuid.New()
	record := OwnershipRecord{Schemas: []uuid.UUID{schemaID}, Queries: []uuid.UUID{queryID}}

	if !record.OwnsSchema(schemaID) || !record.OwnsQuery(queryID) {
		t.Fatalf("record must contain its own ids")
	}
	if record.OwnsSchema(uuid.New()) || record.OwnsQuery(uuid.New()) {
		t.Fatalf("record must not own foreign ids")
	}
	if record.OwnsSchema(queryID) {
		t.Fatalf("query ids must not satisfy schema ownership")
	}
}
