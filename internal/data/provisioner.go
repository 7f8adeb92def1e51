package data

import (
	"context"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/keeperhq/datanode/internal/domain"
)

// Provisioner creates and drops the physical per-schema data collections.
type Provisioner struct {
	db *mongo.Database
}

// NewProvisioner creates a new collection provisioner on the data database.
func NewProvisioner(dataDB *mongo.Database) *Provisioner {
	return &Provisioner{db: dataDB}
}

// Create makes the collection named by the schema id. When keys (excluding
// _id) are declared, one unique compound index over exactly those fields is
// created; that index is the tenant's natural key and the source of insert
// collisions.
func (p *Provisioner) Create(ctx context.Context, schemaID uuid.UUID, keys []string) error {
	name := schemaID.String()
	if err := p.db.CreateCollection(ctx, name); err != nil {
		return &domain.DatabaseError{Op: "collection.create", Cause: err}
	}

	indexKeys := bson.D{}
	for _, key := range keys {
		if key == domain.FieldID {
			continue
		}
		indexKeys = append(indexKeys, bson.E{Key: key, Value: 1})
	}
	if len(indexKeys) == 0 {
		return nil
	}

	model := mongo.IndexModel{
		Keys:    indexKeys,
		Options: options.Index().SetUnique(true),
	}
	if _, err := p.db.Collection(name).Indexes().CreateOne(ctx, model); err != nil {
		return &domain.DatabaseError{Op: "collection.index", Cause: err}
	}
	return nil
}

// Drop removes the collection. Dropping a collection that does not exist is
// an error, not a no-op; the caller decides whether that matters.
func (p *Provisioner) Drop(ctx context.Context, schemaID uuid.UUID) error {
	name := schemaID.String()
	names, err := p.db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return &domain.DatabaseError{Op: "collection.list", Cause: err}
	}
	if len(names) == 0 {
		return &domain.DocumentNotFoundError{Collection: "collections", ID: name}
	}
	if err := p.db.Collection(name).Drop(ctx); err != nil {
		return &domain.DatabaseError{Op: "collection.drop", Cause: err}
	}
	return nil
}
