package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/keeperhq/datanode/internal/data"
	"github.com/keeperhq/datanode/internal/domain"
	"github.com/keeperhq/datanode/internal/repository"
	"github.com/keeperhq/datanode/internal/schema"
)

// DataService orchestrates tenant document operations. Every operation runs
// the ownership guard before touching the data store.
type DataService struct {
	schemas repository.SchemaRepository
	store   DataStore
	guard   OwnershipGuard
	log     *zap.Logger
}

// NewDataService creates a new data service.
func NewDataService(schemas repository.SchemaRepository, store DataStore, guard OwnershipGuard, log *zap.Logger) *DataService {
	return &DataService{schemas: schemas, store: store, guard: guard, log: log}
}

// Upload validates the whole batch against the schema definition in one pass
// (issues are prefixed with the document index, e.g. /0/wallet) and inserts
// the coerced documents. Per-document insert collisions come back in the
// result's error list; they do not fail the call.
func (s *DataService) Upload(ctx context.Context, caller string, schemaID uuid.UUID, docs []map[string]any) (data.InsertResult, error) {
	if err := s.guard.EnsureOwnsSchema(ctx, caller, schemaID); err != nil {
		return data.InsertResult{}, err
	}

	stored, err := s.schemas.GetByID(ctx, schemaID)
	if err != nil {
		return data.InsertResult{}, err
	}

	compiled, err := schema.Compile(schema.WrapItems(stored.Definition))
	if err != nil {
		return data.InsertResult{}, err
	}

	batch := make([]any, len(docs))
	for i, doc := range docs {
		batch[i] = doc
	}
	validated, err := compiled.Validate(batch)
	if err != nil {
		return data.InsertResult{}, err
	}

	coerced, err := toDocumentSlice(validated)
	if err != nil {
		return data.InsertResult{}, err
	}

	return s.store.Insert(ctx, schemaID, coerced)
}

// Read returns documents matching the filter, most recent first.
func (s *DataService) Read(ctx context.Context, caller string, schemaID uuid.UUID, filter map[string]any) ([]bson.M, error) {
	if err := s.guard.EnsureOwnsSchema(ctx, caller, schemaID); err != nil {
		return nil, err
	}
	return s.store.FindMany(ctx, schemaID, filter)
}

// Update applies the update document to every match.
func (s *DataService) Update(ctx context.Context, caller string, schemaID uuid.UUID, filter, update map[string]any) (data.UpdateResult, error) {
	if err := s.guard.EnsureOwnsSchema(ctx, caller, schemaID); err != nil {
		return data.UpdateResult{}, err
	}
	return s.store.UpdateMany(ctx, schemaID, filter, update)
}

// Delete removes every match. An empty filter is rejected here as a safety
// rail; a full wipe must go through Flush explicitly.
func (s *DataService) Delete(ctx context.Context, caller string, schemaID uuid.UUID, filter map[string]any) (int64, error) {
	if err := s.guard.EnsureOwnsSchema(ctx, caller, schemaID); err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		return 0, domain.NewDataValidationError("delete requires a non-empty filter; use flush to clear the collection")
	}
	return s.store.DeleteMany(ctx, schemaID, filter)
}

// Flush unconditionally empties the schema's collection.
func (s *DataService) Flush(ctx context.Context, caller string, schemaID uuid.UUID) (int64, error) {
	if err := s.guard.EnsureOwnsSchema(ctx, caller, schemaID); err != nil {
		return 0, err
	}
	return s.store.Flush(ctx, schemaID)
}

// Tail returns the most recent documents for operational inspection.
func (s *DataService) Tail(ctx context.Context, caller string, schemaID uuid.UUID, limit int64) ([]bson.M, error) {
	if err := s.guard.EnsureOwnsSchema(ctx, caller, schemaID); err != nil {
		return nil, err
	}
	return s.store.Tail(ctx, schemaID, limit)
}

// CreateIndex builds an administrative index on the schema's collection.
func (s *DataService) CreateIndex(ctx context.Context, caller string, schemaID uuid.UUID, spec data.IndexSpec) error {
	if err := s.guard.EnsureOwnsSchema(ctx, caller, schemaID); err != nil {
		return err
	}
	return s.store.CreateIndex(ctx, schemaID, spec)
}

// DropIndex removes a named index from the schema's collection.
func (s *DataService) DropIndex(ctx context.Context, caller string, schemaID uuid.UUID, name string) error {
	if err := s.guard.EnsureOwnsSchema(ctx, caller, schemaID); err != nil {
		return err
	}
	return s.store.DropIndex(ctx, schemaID, name)
}

func toDocumentSlice(validated any) ([]map[string]any, error) {
	items, ok := validated.([]any)
	if !ok {
		return nil, fmt.Errorf("validated upload is not a document list")
	}
	docs := make([]map[string]any, len(items))
	for i, item := range items {
		doc, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("validated document %d is not an object", i)
		}
		docs[i] = doc
	}
	return docs, nil
}
