package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keeperhq/datanode/internal/domain"
	"github.com/keeperhq/datanode/internal/ownership"
	"github.com/keeperhq/datanode/internal/repository"
	"github.com/keeperhq/datanode/internal/schema"
)

// SchemaService orchestrates schema registration and removal across the
// metadata database and the dynamic data collections. The two stores are not
// covered by a transaction; metadata is authoritative on partial failure.
type SchemaService struct {
	schemas     repository.SchemaRepository
	accounts    repository.AccountRepository
	provisioner CollectionProvisioner
	guard       OwnershipGuard
	cache       *ownership.Cache
	log         *zap.Logger
}

// NewSchemaService creates a new schema service.
func NewSchemaService(
	schemas repository.SchemaRepository,
	accounts repository.AccountRepository,
	provisioner CollectionProvisioner,
	guard OwnershipGuard,
	cache *ownership.Cache,
	log *zap.Logger,
) *SchemaService {
	return &SchemaService{
		schemas:     schemas,
		accounts:    accounts,
		provisioner: provisioner,
		guard:       guard,
		cache:       cache,
		log:         log,
	}
}

// AddSchema compiles the definition, persists the schema document, provisions
// its data collection and index, and appends the id to the owner's ownership
// set. Metadata is written before the collection exists; if a later step
// fails the schema document survives for inspection or retried provisioning.
func (s *SchemaService) AddSchema(ctx context.Context, owner, name string, keys []string, definition json.RawMessage) (domain.Schema, error) {
	if _, err := schema.Compile(definition); err != nil {
		return domain.Schema{}, err
	}

	created, err := s.schemas.Create(ctx, domain.NewSchema(owner, name, keys, definition))
	if err != nil {
		return domain.Schema{}, err
	}

	if err := s.provisioner.Create(ctx, created.ID, keys); err != nil {
		s.log.Error("schema metadata persisted but collection provisioning failed",
			zap.String("schema", created.ID.String()), zap.Error(err))
		return domain.Schema{}, err
	}

	if err := s.accounts.AddSchema(ctx, owner, created.ID); err != nil {
		s.log.Error("schema provisioned but ownership update failed",
			zap.String("schema", created.ID.String()), zap.Error(err))
		return domain.Schema{}, err
	}
	s.cache.Invalidate(owner)

	s.log.Info("schema registered",
		zap.String("schema", created.ID.String()),
		zap.String("owner", owner),
		zap.String("name", name))
	return created, nil
}

// DeleteSchema removes the schema's collection, its metadata and the owner's
// back-reference. The collection is dropped first: a failed drop aborts the
// delete and leaves the metadata in place for retry, so metadata stays
// authoritative.
func (s *SchemaService) DeleteSchema(ctx context.Context, caller string, id uuid.UUID) error {
	if err := s.guard.EnsureOwnsSchema(ctx, caller, id); err != nil {
		return err
	}

	stored, err := s.schemas.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.provisioner.Drop(ctx, id); err != nil {
		return err
	}

	if _, err := s.schemas.Delete(ctx, id); err != nil {
		s.log.Error("collection dropped but metadata delete failed",
			zap.String("schema", id.String()), zap.Error(err))
		return err
	}

	if err := s.accounts.RemoveSchema(ctx, stored.Owner, id); err != nil {
		s.log.Error("schema deleted but ownership update failed",
			zap.String("schema", id.String()), zap.Error(err))
		return err
	}
	s.cache.Invalidate(stored.Owner)

	s.log.Info("schema deleted", zap.String("schema", id.String()), zap.String("owner", stored.Owner))
	return nil
}

// ListSchemas returns the schemas an account owns.
func (s *SchemaService) ListSchemas(ctx context.Context, owner string) ([]domain.Schema, error) {
	return s.schemas.ListByOwner(ctx, owner)
}

// GetSchema returns a schema the caller owns.
func (s *SchemaService) GetSchema(ctx context.Context, caller string, id uuid.UUID) (domain.Schema, error) {
	if err := s.guard.EnsureOwnsSchema(ctx, caller, id); err != nil {
		return domain.Schema{}, err
	}
	return s.schemas.GetByID(ctx, id)
}
