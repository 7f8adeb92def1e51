package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/keeperhq/datanode/internal/data"
	"github.com/keeperhq/datanode/internal/domain"
)

// fakeGuard answers ownership checks from in-memory sets and counts calls.
type fakeGuard struct {
	schemas map[uuid.UUID]bool
	queries map[uuid.UUID]bool
	calls   int
}

func (g *fakeGuard) EnsureOwnsSchema(ctx context.Context, accountID string, schemaID uuid.UUID) error {
	g.calls++
	if !g.schemas[schemaID] {
		return &domain.ResourceAccessDeniedError{Account: accountID, Resource: schemaID.String()}
	}
	return nil
}

func (g *fakeGuard) EnsureOwnsQuery(ctx context.Context, accountID string, queryID uuid.UUID) error {
	g.calls++
	if !g.queries[queryID] {
		return &domain.ResourceAccessDeniedError{Account: accountID, Resource: queryID.String()}
	}
	return nil
}

// fakeStore records which data-layer operations were reached.
type fakeStore struct {
	inserts      int
	finds        int
	updates      int
	deletes      int
	flushes      int
	tails        int
	aggregations int
	indexOps     int

	insertedDocs []map[string]any
	pipeline     []bson.M
}

func (s *fakeStore) Insert(ctx context.Context, schemaID uuid.UUID, docs []map[string]any) (data.InsertResult, error) {
	s.inserts++
	s.insertedDocs = docs
	created := make([]string, len(docs))
	for i := range docs {
		created[i] = uuid.NewString()
	}
	return data.InsertResult{Created: created, Errors: []data.InsertError{}}, nil
}

func (s *fakeStore) FindMany(ctx context.Context, schemaID uuid.UUID, filter map[string]any) ([]bson.M, error) {
	s.finds++
	return []bson.M{}, nil
}

func (s *fakeStore) UpdateMany(ctx context.Context, schemaID uuid.UUID, filter, update map[string]any) (data.UpdateResult, error) {
	s.updates++
	return data.UpdateResult{}, nil
}

func (s *fakeStore) DeleteMany(ctx context.Context, schemaID uuid.UUID, filter map[string]any) (int64, error) {
	s.deletes++
	return 1, nil
}

func (s *fakeStore) Flush(ctx context.Context, schemaID uuid.UUID) (int64, error) {
	s.flushes++
	return 1, nil
}

func (s *fakeStore) Tail(ctx context.Context, schemaID uuid.UUID, limit int64) ([]bson.M, error) {
	s.tails++
	return []bson.M{}, nil
}

func (s *fakeStore) RunAggregation(ctx context.Context, schemaID uuid.UUID, pipeline []bson.M) ([]bson.M, error) {
	s.aggregations++
	s.pipeline = pipeline
	return []bson.M{}, nil
}

func (s *fakeStore) CreateIndex(ctx context.Context, schemaID uuid.UUID, spec data.IndexSpec) error {
	s.indexOps++
	return nil
}

func (s *fakeStore) DropIndex(ctx context.Context, schemaID uuid.UUID, name string) error {
	s.indexOps++
	return nil
}

// fakeSchemas serves schema metadata from a map.
type fakeSchemas struct {
	stored map[uuid.UUID]domain.Schema
}

func (r *fakeSchemas) Create(ctx context.Context, schema domain.Schema) (domain.Schema, error) {
	if r.stored == nil {
		r.stored = map[uuid.UUID]domain.Schema{}
	}
	r.stored[schema.ID] = schema
	return schema, nil
}

func (r *fakeSchemas) GetByID(ctx context.Context, id uuid.UUID) (domain.Schema, error) {
	schema, ok := r.stored[id]
	if !ok {
		return domain.Schema{}, &domain.DocumentNotFoundError{Collection: "schemas", ID: id.String()}
	}
	return schema, nil
}

func (r *fakeSchemas) ListByOwner(ctx context.Context, owner string) ([]domain.Schema, error) {
	out := []domain.Schema{}
	for _, schema := range r.stored {
		if schema.Owner == owner {
			out = append(out, schema)
		}
	}
	return out, nil
}

func (r *fakeSchemas) Delete(ctx context.Context, id uuid.UUID) (domain.Schema, error) {
	schema, ok := r.stored[id]
	if !ok {
		return domain.Schema{}, &domain.DocumentNotFoundError{Collection: "schemas", ID: id.String()}
	}
	delete(r.stored, id)
	return schema, nil
}

// fakeQueries serves query metadata from a map.
type fakeQueries struct {
	stored map[uuid.UUID]domain.Query
}

func (r *fakeQueries) Create(ctx context.Context, query domain.Query) (domain.Query, error) {
	if r.stored == nil {
		r.stored = map[uuid.UUID]domain.Query{}
	}
	r.stored[query.ID] = query
	return query, nil
}

func (r *fakeQueries) GetByID(ctx context.Context, id uuid.UUID) (domain.Query, error) {
	query, ok := r.stored[id]
	if !ok {
		return domain.Query{}, &domain.DocumentNotFoundError{Collection: "queries", ID: id.String()}
	}
	return query, nil
}

func (r *fakeQueries) ListByOwner(ctx context.Context, owner string) ([]domain.Query, error) {
	out := []domain.Query{}
	for _, query := range r.stored {
		if query.Owner == owner {
			out = append(out, query)
		}
	}
	return out, nil
}

func (r *fakeQueries) Delete(ctx context.Context, id uuid.UUID) (domain.Query, error) {
	query, ok := r.stored[id]
	if !ok {
		return domain.Query{}, &domain.DocumentNotFoundError{Collection: "queries", ID: id.String()}
	}
	delete(r.stored, id)
	return query, nil
}

// fakeAccounts tracks ownership mutations for a single account.
type fakeAccounts struct {
	account       domain.Account
	addSchemas    int
	removeSchemas int
	addQueries    int
	removeQueries int
	failMutation  bool
}

var errMutationFailed = errors.New("ownership update rejected")

func (r *fakeAccounts) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	r.account = account
	return account, nil
}

func (r *fakeAccounts) GetByID(ctx context.Context, id string) (domain.Account, error) {
	return r.account, nil
}

func (r *fakeAccounts) GetByPublicKey(ctx context.Context, publicKey string) (domain.Account, error) {
	return r.account, nil
}

func (r *fakeAccounts) AddSchema(ctx context.Context, accountID string, schemaID uuid.UUID) error {
	if r.failMutation {
		return errMutationFailed
	}
	r.addSchemas++
	r.account.Schemas = append(r.account.Schemas, schemaID)
	return nil
}

func (r *fakeAccounts) RemoveSchema(ctx context.Context, accountID string, schemaID uuid.UUID) error {
	if r.failMutation {
		return errMutationFailed
	}
	r.removeSchemas++
	return nil
}

func (r *fakeAccounts) AddQuery(ctx context.Context, accountID string, queryID uuid.UUID) error {
	if r.failMutation {
		return errMutationFailed
	}
	r.addQueries++
	r.account.Queries = append(r.account.Queries, queryID)
	return nil
}

func (r *fakeAccounts) RemoveQuery(ctx context.Context, accountID string, queryID uuid.UUID) error {
	if r.failMutation {
		return errMutationFailed
	}
	r.removeQueries++
	return nil
}

// fakeProvisioner tracks collection lifecycle calls.
type fakeProvisioner struct {
	created  []uuid.UUID
	dropped  []uuid.UUID
	failDrop bool
}

var errDropFailed = errors.New("drop rejected")

func (p *fakeProvisioner) Create(ctx context.Context, schemaID uuid.UUID, keys []string) error {
	p.created = append(p.created, schemaID)
	return nil
}

func (p *fakeProvisioner) Drop(ctx context.Context, schemaID uuid.UUID) error {
	if p.failDrop {
		return errDropFailed
	}
	p.dropped = append(p.dropped, schemaID)
	return nil
}
