package ownership

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/keeperhq/datanode/internal/domain"
)

type fakeAccounts struct {
	account domain.Account
	err     error
	calls   int
}

func (f *fakeAccounts) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	return account, nil
}

func (f *fakeAccounts) GetByID(ctx context.Context, id string) (domain.Account, error) {
	f.calls++
	if f.err != nil {
		return domain.Account{}, f.err
	}
	return f.account, nil
}

func (f *fakeAccounts) GetByPublicKey(ctx context.Context, publicKey string) (domain.Account, error) {
	return f.account, nil
}

func (f *fakeAccounts) AddSchema(ctx context.Context, accountID string, schemaID uuid.UUID) error {
	return nil
}

func (f *fakeAccounts) RemoveSchema(ctx context.Context, accountID string, schemaID uuid.UUID) error {
	return nil
}

func (f *fakeAccounts) AddQuery(ctx context.Context, accountID string, queryID uuid.UUID) error {
	return nil
}

func (f *fakeAccounts) RemoveQuery(ctx context.Context, accountID string, queryID uuid.UUID) error {
	return nil
}

func newTestGuard(t *testing.T, accounts *fakeAccounts) (*Guard, *Cache) {
	t.Helper()
	cache, err := NewCache(accounts)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return NewGuard(cache), cache
}

func TestGuard_AllowsOwnedResources(t *testing.T) {
	schemaID := uuid.New()
	queryID := uuid.New()
	accounts := &fakeAccounts{account: domain.Account{
		ID:      "org-1",
		Schemas: []uuid.UUID{schemaID},
		Queries: []uuid.UUID{queryID},
	}}
	guard, _ := newTestGuard(t, accounts)

	if err := guard.EnsureOwnsSchema(context.Background(), "org-1", schemaID); err != nil {
		t.Fatalf("expected owned schema to pass, got %v", err)
	}
	if err := guard.EnsureOwnsQuery(context.Background(), "org-1", queryID); err != nil {
		t.Fatalf("expected owned query to pass, got %v", err)
	}
}

func TestGuard_DeniesForeignResources(t *testing.T) {
	accounts := &fakeAccounts{account: domain.Account{ID: "org-1"}}
	guard, _ := newTestGuard(t, accounts)

	err := guard.EnsureOwnsSchema(context.Background(), "org-1", uuid.New())
	var denied *domain.ResourceAccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected ResourceAccessDeniedError, got %v", err)
	}

	err = guard.EnsureOwnsQuery(context.Background(), "org-1", uuid.New())
	if !errors.As(err, &denied) {
		t.Fatalf("expected ResourceAccessDeniedError, got %v", err)
	}
}

func TestGuard_PropagatesLookupFailure(t *testing.T) {
	accounts := &fakeAccounts{err: &domain.DocumentNotFoundError{Collection: "accounts", ID: "ghost"}}
	guard, _ := newTestGuard(t, accounts)

	err := guard.EnsureOwnsSchema(context.Background(), "ghost", uuid.New())
	var notFound *domain.DocumentNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected DocumentNotFoundError, got %v", err)
	}
}

func TestCache_ReadThroughHitsRepositoryOnce(t *testing.T) {
	schemaID := uuid.New()
	accounts := &fakeAccounts{account: domain.Account{ID: "org-1", Schemas: []uuid.UUID{schemaID}}}
	guard, _ := newTestGuard(t, accounts)

	for i := 0; i < 5; i++ {
		if err := guard.EnsureOwnsSchema(context.Background(), "org-1", schemaID); err != nil {
			t.Fatalf("check %d failed: %v", i, err)
		}
	}
	if accounts.calls != 1 {
		t.Fatalf("expected a single repository fetch, got %d", accounts.calls)
	}
}

func TestCache_InvalidateForcesRefetch(t *testing.T) {
	schemaID := uuid.New()
	accounts := &fakeAccounts{account: domain.Account{ID: "org-1", Schemas: []uuid.UUID{schemaID}}}
	guard, cache := newTestGuard(t, accounts)

	if err := guard.EnsureOwnsSchema(context.Background(), "org-1", schemaID); err != nil {
		t.Fatalf("first check failed: %v", err)
	}

	// Ownership changed out from under the cache; the stale entry still
	// answers until invalidated.
	accounts.account.Schemas = nil
	if err := guard.EnsureOwnsSchema(context.Background(), "org-1", schemaID); err != nil {
		t.Fatalf("expected stale cached record to answer, got %v", err)
	}

	cache.Invalidate("org-1")
	err := guard.EnsureOwnsSchema(context.Background(), "org-1", schemaID)
	var denied *domain.ResourceAccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denial after invalidation, got %v", err)
	}
	if accounts.calls != 2 {
		t.Fatalf("expected refetch after invalidation, got %d calls", accounts.calls)
	}
}

func TestCache_LookupFailureNotCached(t *testing.T) {
	accounts := &fakeAccounts{err: &domain.DatabaseError{Op: "accounts.get", Cause: errors.New("down")}}
	cache, err := NewCache(accounts)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := cache.Get(context.Background(), "org-1"); err == nil {
			t.Fatalf("expected lookup failure")
		}
	}
	if accounts.calls != 2 {
		t.Fatalf("failures must not be cached, got %d calls", accounts.calls)
	}
}
