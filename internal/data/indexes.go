package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/keeperhq/datanode/internal/domain"
)

// Mongo server error codes surfaced as distinct index errors.
const (
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
	codeIndexNotFound         = 27
)

// IndexKey is one field of a compound index. Direction is 1 or -1.
type IndexKey struct {
	Field     string `json:"field"`
	Direction int32  `json:"direction"`
}

// IndexSpec describes an administrative index request on a data collection.
type IndexSpec struct {
	Name       string     `json:"name"`
	Keys       []IndexKey `json:"keys"`
	Unique     bool       `json:"unique"`
	TTLSeconds *int32     `json:"ttl_seconds,omitempty"`
}

func (spec IndexSpec) validate() error {
	if spec.Name == "" {
		return &domain.InvalidIndexOptionsError{Reason: "index name is required"}
	}
	if len(spec.Keys) == 0 {
		return &domain.InvalidIndexOptionsError{Reason: "at least one key is required"}
	}
	for _, key := range spec.Keys {
		if key.Field == "" {
			return &domain.InvalidIndexOptionsError{Reason: "index key field must not be empty"}
		}
		if key.Direction != 1 && key.Direction != -1 {
			return &domain.InvalidIndexOptionsError{Reason: fmt.Sprintf("direction for %s must be 1 or -1", key.Field)}
		}
	}
	return nil
}

// CreateIndex builds an index on a schema's collection. Option conflicts
// reported by the server surface as InvalidIndexOptionsError, distinct from
// generic database failures.
func (s *Store) CreateIndex(ctx context.Context, schemaID uuid.UUID, spec IndexSpec) error {
	if err := spec.validate(); err != nil {
		return err
	}

	keys := bson.D{}
	for _, key := range spec.Keys {
		keys = append(keys, bson.E{Key: key.Field, Value: key.Direction})
	}
	opts := options.Index().SetName(spec.Name).SetUnique(spec.Unique)
	if spec.TTLSeconds != nil {
		opts = opts.SetExpireAfterSeconds(*spec.TTLSeconds)
	}

	coll := s.db.Collection(schemaID.String())
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: opts})
	if err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && (cmdErr.Code == codeIndexOptionsConflict || cmdErr.Code == codeIndexKeySpecsConflict) {
			return &domain.InvalidIndexOptionsError{Reason: cmdErr.Message}
		}
		return &domain.DatabaseError{Op: "index.create", Cause: err}
	}
	return nil
}

// DropIndex removes a named index from a schema's collection.
func (s *Store) DropIndex(ctx context.Context, schemaID uuid.UUID, name string) error {
	coll := s.db.Collection(schemaID.String())
	_, err := coll.Indexes().DropOne(ctx, name)
	if err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == codeIndexNotFound {
			return &domain.IndexNotFoundError{Name: name}
		}
		return &domain.DatabaseError{Op: "index.drop", Cause: err}
	}
	return nil
}
