package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Schema represents a tenant-registered JSON-Schema definition. Each schema
// owns exactly one physical data collection named by its id.
type Schema struct {
	ID         uuid.UUID       `bson:"_id" json:"id"`
	Owner      string          `bson:"owner" json:"owner"`
	Name       string          `bson:"name" json:"name"`
	Keys       []string        `bson:"keys" json:"keys"`
	Definition json.RawMessage `bson:"schema" json:"schema"`
	CreatedAt  time.Time       `bson:"created" json:"created_at"`
	UpdatedAt  time.Time       `bson:"updated" json:"updated_at"`
}

// NewSchema creates a new schema document. Keys are the tenant's declared
// natural-key fields; they become the collection's unique compound index.
func NewSchema(owner, name string, keys []string, definition json.RawMessage) Schema {
	now := time.Now().UTC()
	return Schema{
		ID:         uuid.New(),
		Owner:      owner,
		Name:       name,
		Keys:       copyKeys(keys),
		Definition: append(json.RawMessage(nil), definition...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Collection returns the name of the schema's physical data collection.
func (s Schema) Collection() string {
	return s.ID.String()
}

func copyKeys(keys []string) []string {
	if keys == nil {
		return nil
	}
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}
