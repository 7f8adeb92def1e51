package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/keeperhq/datanode/internal/domain"
)

const queriesCollection = "queries"

// queryRepository implements QueryRepository on the primary database.
type queryRepository struct {
	coll *mongo.Collection
}

// NewQueryRepository creates a new query repository.
func NewQueryRepository(primary *mongo.Database) QueryRepository {
	return &queryRepository{coll: primary.Collection(queriesCollection)}
}

type queryDoc struct {
	ID        string                         `bson:"_id"`
	Owner     string                         `bson:"owner"`
	Name      string                         `bson:"name"`
	Schema    string                         `bson:"schema"`
	Variables map[string]domain.VariableSpec `bson:"variables"`
	Pipeline  []bson.M                       `bson:"pipeline"`
	CreatedAt time.Time                      `bson:"created"`
	UpdatedAt time.Time                      `bson:"updated"`
}

func toQueryDoc(query domain.Query) queryDoc {
	return queryDoc{
		ID:        query.ID.String(),
		Owner:     query.Owner,
		Name:      query.Name,
		Schema:    query.Schema.String(),
		Variables: query.Variables,
		Pipeline:  query.Pipeline,
		CreatedAt: query.CreatedAt,
		UpdatedAt: query.UpdatedAt,
	}
}

func (d queryDoc) toDomain() (domain.Query, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Query{}, fmt.Errorf("invalid query id %q: %w", d.ID, err)
	}
	schemaID, err := uuid.Parse(d.Schema)
	if err != nil {
		return domain.Query{}, fmt.Errorf("invalid schema id %q on query %s: %w", d.Schema, d.ID, err)
	}
	for name, spec := range d.Variables {
		if err := spec.Validate(); err != nil {
			return domain.Query{}, fmt.Errorf("stored variable %q is invalid: %w", name, err)
		}
	}
	return domain.Query{
		ID:        id,
		Owner:     d.Owner,
		Name:      d.Name,
		Schema:    schemaID,
		Variables: d.Variables,
		Pipeline:  d.Pipeline,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

// Create persists a new query document.
func (r *queryRepository) Create(ctx context.Context, query domain.Query) (domain.Query, error) {
	if _, err := r.coll.InsertOne(ctx, toQueryDoc(query)); err != nil {
		return domain.Query{}, &domain.DatabaseError{Op: "queries.insert", Cause: err}
	}
	return query, nil
}

// GetByID retrieves a query by id.
func (r *queryRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Query, error) {
	var doc queryDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Query{}, &domain.DocumentNotFoundError{Collection: queriesCollection, ID: id.String()}
	}
	if err != nil {
		return domain.Query{}, &domain.DatabaseError{Op: "queries.find", Cause: err}
	}
	return doc.toDomain()
}

// ListByOwner retrieves all queries owned by an account.
func (r *queryRepository) ListByOwner(ctx context.Context, owner string) ([]domain.Query, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"owner": owner})
	if err != nil {
		return nil, &domain.DatabaseError{Op: "queries.list", Cause: err}
	}
	defer cursor.Close(ctx)

	var queries []domain.Query
	for cursor.Next(ctx) {
		var doc queryDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, &domain.DatabaseError{Op: "queries.decode", Cause: err}
		}
		query, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		queries = append(queries, query)
	}
	if err := cursor.Err(); err != nil {
		return nil, &domain.DatabaseError{Op: "queries.cursor", Cause: err}
	}
	return queries, nil
}

// Delete removes a query and returns the removed document.
func (r *queryRepository) Delete(ctx context.Context, id uuid.UUID) (domain.Query, error) {
	var doc queryDoc
	err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Query{}, &domain.DocumentNotFoundError{Collection: queriesCollection, ID: id.String()}
	}
	if err != nil {
		return domain.Query{}, &domain.DatabaseError{Op: "queries.delete", Cause: err}
	}
	return doc.toDomain()
}
