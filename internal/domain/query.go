package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// VariableKind enumerates the closed set of primitive variable types a query
// may declare. Arrays are declared with KindArray plus a primitive item kind.
type VariableKind string

const (
	KindString  VariableKind = "string"
	KindNumber  VariableKind = "number"
	KindBoolean VariableKind = "boolean"
	KindDate    VariableKind = "date"
	KindArray   VariableKind = "array"
)

func (k VariableKind) primitive() bool {
	switch k {
	case KindString, KindNumber, KindBoolean, KindDate:
		return true
	}
	return false
}

// VariableItems declares the element type of an array variable.
type VariableItems struct {
	Kind VariableKind `bson:"type" json:"type"`
}

// VariableSpec declares one typed query variable. The kind set is closed:
// decoding rejects unknown kinds so the runtime dispatch never sees them.
type VariableSpec struct {
	Kind        VariableKind   `bson:"type" json:"type"`
	Description string         `bson:"description,omitempty" json:"description,omitempty"`
	Items       *VariableItems `bson:"items,omitempty" json:"items,omitempty"`
}

// Validate checks the spec against the closed kind set. Array specs must
// declare a primitive item kind; primitive specs must not declare items.
func (v VariableSpec) Validate() error {
	switch {
	case v.Kind.primitive():
		if v.Items != nil {
			return fmt.Errorf("variable of type %s must not declare items", v.Kind)
		}
		return nil
	case v.Kind == KindArray:
		if v.Items == nil {
			return fmt.Errorf("array variable must declare an item type")
		}
		if !v.Items.Kind.primitive() {
			return fmt.Errorf("array items must be a primitive type, got %s", v.Items.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unsupported variable type %q", v.Kind)
	}
}

// UnmarshalJSON decodes and validates the spec in one step so that unknown
// kinds are rejected at the system boundary.
func (v *VariableSpec) UnmarshalJSON(data []byte) error {
	type raw VariableSpec
	var decoded raw
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	spec := VariableSpec(decoded)
	if err := spec.Validate(); err != nil {
		return err
	}
	*v = spec
	return nil
}

// Query represents a named, owner-scoped, parameterized aggregation pipeline
// template targeting one schema's collection.
type Query struct {
	ID        uuid.UUID               `bson:"_id" json:"id"`
	Owner     string                  `bson:"owner" json:"owner"`
	Name      string                  `bson:"name" json:"name"`
	Schema    uuid.UUID               `bson:"schema" json:"schema"`
	Variables map[string]VariableSpec `bson:"variables" json:"variables"`
	Pipeline  []bson.M                `bson:"pipeline" json:"pipeline"`
	CreatedAt time.Time               `bson:"created" json:"created_at"`
	UpdatedAt time.Time               `bson:"updated" json:"updated_at"`
}

// NewQuery creates a new query document referencing an existing schema.
func NewQuery(owner, name string, schema uuid.UUID, variables map[string]VariableSpec, pipeline []bson.M) Query {
	now := time.Now().UTC()
	vars := make(map[string]VariableSpec, len(variables))
	for name, spec := range variables {
		vars[name] = spec
	}
	return Query{
		ID:        uuid.New(),
		Owner:     owner,
		Name:      name,
		Schema:    schema,
		Variables: vars,
		Pipeline:  pipeline,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
