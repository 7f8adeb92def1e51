package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/keeperhq/datanode/internal/domain"
)

// AccountRepository defines the interface for account metadata operations.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) (domain.Account, error)
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByPublicKey(ctx context.Context, publicKey string) (domain.Account, error)
	AddSchema(ctx context.Context, accountID string, schemaID uuid.UUID) error
	RemoveSchema(ctx context.Context, accountID string, schemaID uuid.UUID) error
	AddQuery(ctx context.Context, accountID string, queryID uuid.UUID) error
	RemoveQuery(ctx context.Context, accountID string, queryID uuid.UUID) error
}

// SchemaRepository defines the interface for schema metadata operations.
type SchemaRepository interface {
	Create(ctx context.Context, schema domain.Schema) (domain.Schema, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Schema, error)
	ListByOwner(ctx context.Context, owner string) ([]domain.Schema, error)
	Delete(ctx context.Context, id uuid.UUID) (domain.Schema, error)
}

// QueryRepository defines the interface for query metadata operations.
type QueryRepository interface {
	Create(ctx context.Context, query domain.Query) (domain.Query, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Query, error)
	ListByOwner(ctx context.Context, owner string) ([]domain.Query, error)
	Delete(ctx context.Context, id uuid.UUID) (domain.Query, error)
}
