package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/keeperhq/datanode/internal/domain"
	"github.com/keeperhq/datanode/internal/ownership"
)

type queryFixture struct {
	svc      *QueryService
	store    *fakeStore
	guard    *fakeGuard
	queries  *fakeQueries
	accounts *fakeAccounts
	schemaID uuid.UUID
}

func newQueryFixture(t *testing.T) *queryFixture {
	t.Helper()
	schema := domain.NewSchema("org-1", "wallets", []string{"wallet"}, json.RawMessage(testDefinition))
	schemas := &fakeSchemas{stored: map[uuid.UUID]domain.Schema{schema.ID: schema}}
	queries := &fakeQueries{stored: map[uuid.UUID]domain.Query{}}
	accounts := &fakeAccounts{account: domain.NewOrganization("org-1", "pk", "Org One")}
	store := &fakeStore{}
	guard := &fakeGuard{schemas: map[uuid.UUID]bool{schema.ID: true}, queries: map[uuid.UUID]bool{}}

	cache, err := ownership.NewCache(accounts)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	svc := NewQueryService(queries, schemas, accounts, store, guard, cache, zap.NewNop())
	return &queryFixture{svc: svc, store: store, guard: guard, queries: queries, accounts: accounts, schemaID: schema.ID}
}

func (f *queryFixture) register(t *testing.T, variables map[string]domain.VariableSpec, pipeline []bson.M) domain.Query {
	t.Helper()
	created, err := f.svc.AddQuery(context.Background(), "org-1", "by-wallet", f.schemaID, variables, pipeline)
	if err != nil {
		t.Fatalf("failed to register query: %v", err)
	}
	f.guard.queries[created.ID] = true
	return created
}

func TestQueryService_AddQueryRejectsDisallowedStage(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.svc.AddQuery(context.Background(), "org-1", "bad", f.schemaID, nil, []bson.M{{"$merge": "elsewhere"}})
	var validation *domain.DataValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected DataValidationError for $merge, got %v", err)
	}
	if len(f.queries.stored) != 0 {
		t.Fatalf("rejected query must not be persisted")
	}
}

func TestQueryService_AddQueryRejectsBadVariableSpec(t *testing.T) {
	f := newQueryFixture(t)

	specs := map[string]domain.VariableSpec{
		"ids": {Kind: domain.KindArray},
	}
	_, err := f.svc.AddQuery(context.Background(), "org-1", "bad", f.schemaID, specs, []bson.M{{"$match": bson.M{}}})
	var validation *domain.DataValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected DataValidationError for itemless array, got %v", err)
	}
}

func TestQueryService_AddQueryRequiresExistingSchema(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.svc.AddQuery(context.Background(), "org-1", "orphan", uuid.New(), nil, []bson.M{{"$match": bson.M{}}})
	var notFound *domain.DocumentNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected DocumentNotFoundError, got %v", err)
	}
}

func TestQueryService_AddQueryUpdatesOwnership(t *testing.T) {
	f := newQueryFixture(t)

	created := f.register(t, nil, []bson.M{{"$match": bson.M{}}})
	if f.accounts.addQueries != 1 {
		t.Fatalf("expected ownership update, got %d", f.accounts.addQueries)
	}
	if _, ok := f.queries.stored[created.ID]; !ok {
		t.Fatalf("query not persisted")
	}
}

func TestQueryService_ExecuteDeniedBeforeAnyWork(t *testing.T) {
	f := newQueryFixture(t)
	created := f.register(t, nil, []bson.M{{"$match": bson.M{}}})
	delete(f.guard.queries, created.ID)

	_, err := f.svc.ExecuteQuery(context.Background(), "org-2", created.ID, map[string]any{})
	var denied *domain.ResourceAccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected ResourceAccessDeniedError, got %v", err)
	}
	if f.store.aggregations != 0 {
		t.Fatalf("denied execution must not reach the store")
	}
}

func TestQueryService_ExecuteVariableMismatchNeverRuns(t *testing.T) {
	f := newQueryFixture(t)
	specs := map[string]domain.VariableSpec{
		"wallet": {Kind: domain.KindString},
	}
	created := f.register(t, specs, []bson.M{{"$match": bson.M{"wallet": "##wallet"}}})

	_, err := f.svc.ExecuteQuery(context.Background(), "org-1", created.ID, map[string]any{})
	var validation *domain.DataValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected DataValidationError, got %v", err)
	}
	if f.store.aggregations != 0 {
		t.Fatalf("invalid variables must not reach the store")
	}
}

func TestQueryService_ExecuteInjectsBeforeRunning(t *testing.T) {
	f := newQueryFixture(t)
	specs := map[string]domain.VariableSpec{
		"wallet": {Kind: domain.KindString},
	}
	created := f.register(t, specs, []bson.M{{"$match": bson.M{"wallet": "##wallet"}}})

	_, err := f.svc.ExecuteQuery(context.Background(), "org-1", created.ID, map[string]any{"wallet": "abc"})
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if f.store.aggregations != 1 {
		t.Fatalf("expected one aggregation, got %d", f.store.aggregations)
	}
	match := f.store.pipeline[0]["$match"].(bson.M)
	if match["wallet"] != "abc" {
		t.Fatalf("pipeline not injected: %v", f.store.pipeline)
	}
}

func TestQueryService_DeleteRemovesOwnershipBackReference(t *testing.T) {
	f := newQueryFixture(t)
	created := f.register(t, nil, []bson.M{{"$match": bson.M{}}})

	if err := f.svc.DeleteQuery(context.Background(), "org-1", created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if f.accounts.removeQueries != 1 {
		t.Fatalf("expected ownership back-reference removal, got %d", f.accounts.removeQueries)
	}
	if len(f.queries.stored) != 0 {
		t.Fatalf("query metadata not removed")
	}
}
