package ownership

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/keeperhq/datanode/internal/domain"
	"github.com/keeperhq/datanode/internal/repository"
)

const defaultCacheSize = 1024

// Cache is a process-wide read-through cache of account ownership records.
// Writes that change an account's ownership sets must call Invalidate; the
// entry is removed, not patched, so the next read re-fetches the
// authoritative state. Readers racing an invalidation may observe a stale
// record for one round trip.
type Cache struct {
	accounts repository.AccountRepository
	entries  *lru.Cache[string, domain.OwnershipRecord]
}

// NewCache creates a new ownership cache backed by the account repository.
func NewCache(accounts repository.AccountRepository) (*Cache, error) {
	entries, err := lru.New[string, domain.OwnershipRecord](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create ownership cache: %w", err)
	}
	return &Cache{accounts: accounts, entries: entries}, nil
}

// Get returns the cached ownership record, loading and caching it on a miss.
func (c *Cache) Get(ctx context.Context, accountID string) (domain.OwnershipRecord, error) {
	if record, ok := c.entries.Get(accountID); ok {
		return record, nil
	}
	account, err := c.accounts.GetByID(ctx, accountID)
	if err != nil {
		return domain.OwnershipRecord{}, err
	}
	record := account.Ownership()
	c.entries.Add(accountID, record)
	return record, nil
}

// Invalidate removes the account's entry.
func (c *Cache) Invalidate(accountID string) {
	c.entries.Remove(accountID)
}
