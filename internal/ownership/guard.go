package ownership

import (
	"context"

	"github.com/google/uuid"

	"github.com/keeperhq/datanode/internal/domain"
)

// Guard enforces the ownership invariant: an account may only operate on
// schemas and queries it owns. It is a pure check with no side effects and
// runs first in every protected operation.
type Guard struct {
	cache *Cache
}

// NewGuard creates a new ownership guard.
func NewGuard(cache *Cache) *Guard {
	return &Guard{cache: cache}
}

// EnsureOwnsSchema fails with ResourceAccessDeniedError unless the account's
// ownership set contains the schema id.
func (g *Guard) EnsureOwnsSchema(ctx context.Context, accountID string, schemaID uuid.UUID) error {
	record, err := g.cache.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if !record.OwnsSchema(schemaID) {
		return &domain.ResourceAccessDeniedError{Account: accountID, Resource: schemaID.String()}
	}
	return nil
}

// EnsureOwnsQuery fails with ResourceAccessDeniedError unless the account's
// ownership set contains the query id.
func (g *Guard) EnsureOwnsQuery(ctx context.Context, accountID string, queryID uuid.UUID) error {
	record, err := g.cache.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if !record.OwnsQuery(queryID) {
		return &domain.ResourceAccessDeniedError{Account: accountID, Resource: queryID.String()}
	}
	return nil
}
