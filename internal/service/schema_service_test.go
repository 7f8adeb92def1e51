package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keeperhq/datanode/internal/domain"
	"github.com/keeperhq/datanode/internal/ownership"
)

type schemaFixture struct {
	svc         *SchemaService
	schemas     *fakeSchemas
	accounts    *fakeAccounts
	provisioner *fakeProvisioner
	guard       *fakeGuard
}

func newSchemaFixture(t *testing.T) *schemaFixture {
	t.Helper()
	schemas := &fakeSchemas{stored: map[uuid.UUID]domain.Schema{}}
	accounts := &fakeAccounts{account: domain.NewOrganization("org-1", "pk", "Org One")}
	provisioner := &fakeProvisioner{}
	guard := &fakeGuard{schemas: map[uuid.UUID]bool{}}

	cache, err := ownership.NewCache(accounts)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	svc := NewSchemaService(schemas, accounts, provisioner, guard, cache, zap.NewNop())
	return &schemaFixture{svc: svc, schemas: schemas, accounts: accounts, provisioner: provisioner, guard: guard}
}

func TestSchemaService_AddSchemaProvisionsAndOwns(t *testing.T) {
	f := newSchemaFixture(t)

	created, err := f.svc.AddSchema(context.Background(), "org-1", "wallets", []string{"wallet"}, json.RawMessage(testDefinition))
	if err != nil {
		t.Fatalf("add schema failed: %v", err)
	}

	if _, ok := f.schemas.stored[created.ID]; !ok {
		t.Fatalf("schema metadata not persisted")
	}
	if len(f.provisioner.created) != 1 || f.provisioner.created[0] != created.ID {
		t.Fatalf("collection not provisioned: %v", f.provisioner.created)
	}
	if f.accounts.addSchemas != 1 {
		t.Fatalf("ownership set not updated: %d", f.accounts.addSchemas)
	}
}

func TestSchemaService_AddSchemaRejectsBadDefinition(t *testing.T) {
	f := newSchemaFixture(t)

	_, err := f.svc.AddSchema(context.Background(), "org-1", "bad", nil, json.RawMessage(`{"type": ["broken"`))
	var compileErr *domain.CompileError
	if !errors.As(err, &compileErr) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	if len(f.schemas.stored) != 0 || len(f.provisioner.created) != 0 {
		t.Fatalf("invalid definition must not persist or provision anything")
	}
}

func TestSchemaService_DeleteDropsCollectionFirst(t *testing.T) {
	f := newSchemaFixture(t)
	created, err := f.svc.AddSchema(context.Background(), "org-1", "wallets", []string{"wallet"}, json.RawMessage(testDefinition))
	if err != nil {
		t.Fatalf("add schema failed: %v", err)
	}
	f.guard.schemas[created.ID] = true

	if err := f.svc.DeleteSchema(context.Background(), "org-1", created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(f.provisioner.dropped) != 1 {
		t.Fatalf("collection not dropped: %v", f.provisioner.dropped)
	}
	if _, ok := f.schemas.stored[created.ID]; ok {
		t.Fatalf("schema metadata not removed")
	}
	if f.accounts.removeSchemas != 1 {
		t.Fatalf("ownership back-reference not removed")
	}
}

func TestSchemaService_DeleteAbortsWhenDropFails(t *testing.T) {
	f := newSchemaFixture(t)
	created, err := f.svc.AddSchema(context.Background(), "org-1", "wallets", []string{"wallet"}, json.RawMessage(testDefinition))
	if err != nil {
		t.Fatalf("add schema failed: %v", err)
	}
	f.guard.schemas[created.ID] = true
	f.provisioner.failDrop = true

	if err := f.svc.DeleteSchema(context.Background(), "org-1", created.ID); err == nil {
		t.Fatalf("expected delete to fail when drop fails")
	}
	// Metadata stays authoritative: a failed drop leaves the schema in
	// place for retry.
	if _, ok := f.schemas.stored[created.ID]; !ok {
		t.Fatalf("metadata removed despite failed drop")
	}
	if f.accounts.removeSchemas != 0 {
		t.Fatalf("ownership mutated despite failed drop")
	}
}

func TestSchemaService_DeleteDeniedForForeignSchema(t *testing.T) {
	f := newSchemaFixture(t)
	created, err := f.svc.AddSchema(context.Background(), "org-1", "wallets", []string{"wallet"}, json.RawMessage(testDefinition))
	if err != nil {
		t.Fatalf("add schema failed: %v", err)
	}

	err = f.svc.DeleteSchema(context.Background(), "org-2", created.ID)
	var denied *domain.ResourceAccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected ResourceAccessDeniedError, got %v", err)
	}
	if len(f.provisioner.dropped) != 0 {
		t.Fatalf("denied delete must not drop the collection")
	}
}

func TestSchemaService_GetSchemaGuarded(t *testing.T) {
	f := newSchemaFixture(t)
	created, err := f.svc.AddSchema(context.Background(), "org-1", "wallets", []string{"wallet"}, json.RawMessage(testDefinition))
	if err != nil {
		t.Fatalf("add schema failed: %v", err)
	}

	_, err = f.svc.GetSchema(context.Background(), "org-2", created.ID)
	var denied *domain.ResourceAccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected ResourceAccessDeniedError, got %v", err)
	}

	f.guard.schemas[created.ID] = true
	got, err := f.svc.GetSchema(context.Background(), "org-1", created.ID)
	if err != nil {
		t.Fatalf("owned get failed: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("unexpected schema returned: %v", got.ID)
	}
}
