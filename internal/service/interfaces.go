package service

import (
	"context"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/keeperhq/datanode/internal/data"
)

// CollectionProvisioner creates and drops per-schema data collections.
type CollectionProvisioner interface {
	Create(ctx context.Context, schemaID uuid.UUID, keys []string) error
	Drop(ctx context.Context, schemaID uuid.UUID) error
}

// DataStore is the slice of the data layer the services drive.
type DataStore interface {
	Insert(ctx context.Context, schemaID uuid.UUID, docs []map[string]any) (data.InsertResult, error)
	FindMany(ctx context.Context, schemaID uuid.UUID, filter map[string]any) ([]bson.M, error)
	UpdateMany(ctx context.Context, schemaID uuid.UUID, filter, update map[string]any) (data.UpdateResult, error)
	DeleteMany(ctx context.Context, schemaID uuid.UUID, filter map[string]any) (int64, error)
	Flush(ctx context.Context, schemaID uuid.UUID) (int64, error)
	Tail(ctx context.Context, schemaID uuid.UUID, limit int64) ([]bson.M, error)
	RunAggregation(ctx context.Context, schemaID uuid.UUID, pipeline []bson.M) ([]bson.M, error)
	CreateIndex(ctx context.Context, schemaID uuid.UUID, spec data.IndexSpec) error
	DropIndex(ctx context.Context, schemaID uuid.UUID, name string) error
}

// OwnershipGuard enforces the tenant ownership invariant.
type OwnershipGuard interface {
	EnsureOwnsSchema(ctx context.Context, accountID string, schemaID uuid.UUID) error
	EnsureOwnsQuery(ctx context.Context, accountID string, queryID uuid.UUID) error
}
