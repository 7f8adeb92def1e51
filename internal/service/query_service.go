package service

import (
	"context"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/keeperhq/datanode/internal/domain"
	"github.com/keeperhq/datanode/internal/ownership"
	"github.com/keeperhq/datanode/internal/query"
	"github.com/keeperhq/datanode/internal/repository"
	"github.com/keeperhq/datanode/internal/schema"
)

// QueryService orchestrates query registration and execution.
type QueryService struct {
	queries  repository.QueryRepository
	schemas  repository.SchemaRepository
	accounts repository.AccountRepository
	store    DataStore
	guard    OwnershipGuard
	cache    *ownership.Cache
	log      *zap.Logger
}

// NewQueryService creates a new query service.
func NewQueryService(
	queries repository.QueryRepository,
	schemas repository.SchemaRepository,
	accounts repository.AccountRepository,
	store DataStore,
	guard OwnershipGuard,
	cache *ownership.Cache,
	log *zap.Logger,
) *QueryService {
	return &QueryService{
		queries:  queries,
		schemas:  schemas,
		accounts: accounts,
		store:    store,
		guard:    guard,
		cache:    cache,
		log:      log,
	}
}

// AddQuery validates the pipeline against the stage allow-list, checks the
// referenced schema exists, persists the query and appends it to the owner's
// ownership set.
func (s *QueryService) AddQuery(ctx context.Context, owner, name string, schemaID uuid.UUID, variables map[string]domain.VariableSpec, pipeline []bson.M) (domain.Query, error) {
	for varName, spec := range variables {
		if err := spec.Validate(); err != nil {
			return domain.Query{}, domain.NewDataValidationError("variable " + varName + ": " + err.Error())
		}
	}
	if err := schema.ValidatePipeline(pipeline); err != nil {
		return domain.Query{}, err
	}
	if _, err := s.schemas.GetByID(ctx, schemaID); err != nil {
		return domain.Query{}, err
	}

	created, err := s.queries.Create(ctx, domain.NewQuery(owner, name, schemaID, variables, pipeline))
	if err != nil {
		return domain.Query{}, err
	}

	if err := s.accounts.AddQuery(ctx, owner, created.ID); err != nil {
		s.log.Error("query persisted but ownership update failed",
			zap.String("query", created.ID.String()), zap.Error(err))
		return domain.Query{}, err
	}
	s.cache.Invalidate(owner)

	s.log.Info("query registered",
		zap.String("query", created.ID.String()),
		zap.String("owner", owner),
		zap.String("name", name))
	return created, nil
}

// ExecuteQuery validates and coerces the provided variables, injects them
// into the pipeline template and runs the aggregation against the query's
// starting collection. The guard runs before any other work.
func (s *QueryService) ExecuteQuery(ctx context.Context, caller string, id uuid.UUID, provided map[string]any) ([]bson.M, error) {
	if err := s.guard.EnsureOwnsQuery(ctx, caller, id); err != nil {
		return nil, err
	}

	stored, err := s.queries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	vars, err := query.ValidateVariables(stored.Variables, provided)
	if err != nil {
		return nil, err
	}

	injected, err := query.InjectPipeline(stored.Pipeline, vars)
	if err != nil {
		return nil, err
	}

	return s.store.RunAggregation(ctx, stored.Schema, injected)
}

// DeleteQuery removes the query and the owner's back-reference.
func (s *QueryService) DeleteQuery(ctx context.Context, caller string, id uuid.UUID) error {
	if err := s.guard.EnsureOwnsQuery(ctx, caller, id); err != nil {
		return err
	}

	deleted, err := s.queries.Delete(ctx, id)
	if err != nil {
		return err
	}

	if err := s.accounts.RemoveQuery(ctx, deleted.Owner, id); err != nil {
		s.log.Error("query deleted but ownership update failed",
			zap.String("query", id.String()), zap.Error(err))
		return err
	}
	s.cache.Invalidate(deleted.Owner)

	s.log.Info("query deleted", zap.String("query", id.String()), zap.String("owner", deleted.Owner))
	return nil
}

// ListQueries returns the queries an account owns.
func (s *QueryService) ListQueries(ctx context.Context, owner string) ([]domain.Query, error) {
	return s.queries.ListByOwner(ctx, owner)
}
