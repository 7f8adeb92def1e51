package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/keeperhq/datanode/internal/domain"
)

const schemasCollection = "schemas"

// schemaRepository implements SchemaRepository on the primary database.
type schemaRepository struct {
	coll *mongo.Collection
}

// NewSchemaRepository creates a new schema repository.
func NewSchemaRepository(primary *mongo.Database) SchemaRepository {
	return &schemaRepository{coll: primary.Collection(schemasCollection)}
}

// schemaDoc is the persisted shape. The definition is stored as a BSON
// subdocument so it stays inspectable in the database.
type schemaDoc struct {
	ID        string    `bson:"_id"`
	Owner     string    `bson:"owner"`
	Name      string    `bson:"name"`
	Keys      []string  `bson:"keys"`
	Schema    bson.M    `bson:"schema"`
	CreatedAt time.Time `bson:"created"`
	UpdatedAt time.Time `bson:"updated"`
}

func toSchemaDoc(schema domain.Schema) (schemaDoc, error) {
	var definition bson.M
	if err := json.Unmarshal(schema.Definition, &definition); err != nil {
		return schemaDoc{}, fmt.Errorf("failed to decode schema definition: %w", err)
	}
	return schemaDoc{
		ID:        schema.ID.String(),
		Owner:     schema.Owner,
		Name:      schema.Name,
		Keys:      schema.Keys,
		Schema:    definition,
		CreatedAt: schema.CreatedAt,
		UpdatedAt: schema.UpdatedAt,
	}, nil
}

func (d schemaDoc) toDomain() (domain.Schema, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("invalid schema id %q: %w", d.ID, err)
	}
	definition, err := json.Marshal(d.Schema)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("failed to encode schema definition: %w", err)
	}
	return domain.Schema{
		ID:         id,
		Owner:      d.Owner,
		Name:       d.Name,
		Keys:       d.Keys,
		Definition: definition,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}, nil
}

// Create persists a new schema document.
func (r *schemaRepository) Create(ctx context.Context, schema domain.Schema) (domain.Schema, error) {
	doc, err := toSchemaDoc(schema)
	if err != nil {
		return domain.Schema{}, err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return domain.Schema{}, &domain.DatabaseError{Op: "schemas.insert", Cause: err}
	}
	return schema, nil
}

// GetByID retrieves a schema by id.
func (r *schemaRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Schema, error) {
	var doc schemaDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Schema{}, &domain.DocumentNotFoundError{Collection: schemasCollection, ID: id.String()}
	}
	if err != nil {
		return domain.Schema{}, &domain.DatabaseError{Op: "schemas.find", Cause: err}
	}
	return doc.toDomain()
}

// ListByOwner retrieves all schemas owned by an account.
func (r *schemaRepository) ListByOwner(ctx context.Context, owner string) ([]domain.Schema, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"owner": owner})
	if err != nil {
		return nil, &domain.DatabaseError{Op: "schemas.list", Cause: err}
	}
	defer cursor.Close(ctx)

	var schemas []domain.Schema
	for cursor.Next(ctx) {
		var doc schemaDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, &domain.DatabaseError{Op: "schemas.decode", Cause: err}
		}
		schema, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	if err := cursor.Err(); err != nil {
		return nil, &domain.DatabaseError{Op: "schemas.cursor", Cause: err}
	}
	return schemas, nil
}

// Delete removes a schema and returns the removed document. A missing schema
// is a DocumentNotFoundError.
func (r *schemaRepository) Delete(ctx context.Context, id uuid.UUID) (domain.Schema, error) {
	var doc schemaDoc
	err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Schema{}, &domain.DocumentNotFoundError{Collection: schemasCollection, ID: id.String()}
	}
	if err != nil {
		return domain.Schema{}, &domain.DatabaseError{Op: "schemas.delete", Cause: err}
	}
	return doc.toDomain()
}
