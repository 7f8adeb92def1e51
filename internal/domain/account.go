package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountType distinguishes tenant organizations from other principals.
type AccountType string

const (
	AccountTypeOrganization AccountType = "organization"
	AccountTypeAdmin        AccountType = "admin"
)

// Account represents a tenant in the system. Organization accounts carry the
// ownership sets consulted by the guard; a schema or query id appears in
// exactly one account's set at a time.
type Account struct {
	ID        string      `bson:"_id" json:"id"`
	PublicKey string      `bson:"public_key" json:"public_key"`
	Name      string      `bson:"name" json:"name"`
	Type      AccountType `bson:"type" json:"type"`
	Schemas   []uuid.UUID `bson:"schemas" json:"schemas"`
	Queries   []uuid.UUID `bson:"queries" json:"queries"`
	CreatedAt time.Time   `bson:"created" json:"created_at"`
	UpdatedAt time.Time   `bson:"updated" json:"updated_at"`
}

// NewOrganization creates a new organization account with empty ownership sets.
func NewOrganization(id, publicKey, name string) Account {
	now := time.Now().UTC()
	return Account{
		ID:        id,
		PublicKey: publicKey,
		Name:      name,
		Type:      AccountTypeOrganization,
		Schemas:   []uuid.UUID{},
		Queries:   []uuid.UUID{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// OwnershipRecord is the slice of an account the guard needs: the schema and
// query ids the account may operate on.
type OwnershipRecord struct {
	Schemas []uuid.UUID
	Queries []uuid.UUID
}

// Ownership extracts the account's ownership record.
func (a Account) Ownership() OwnershipRecord {
	return OwnershipRecord{
		Schemas: append([]uuid.UUID(nil), a.Schemas...),
		Queries: append([]uuid.UUID(nil), a.Queries...),
	}
}

// OwnsSchema reports whether the record contains the schema id. Equality is
// by canonical id value.
func (r OwnershipRecord) OwnsSchema(id uuid.UUID) bool {
	for _, owned := range r.Schemas {
		if owned == id {
			return true
		}
	}
	return false
}

// OwnsQuery reports whether the record contains the query id.
func (r OwnershipRecord) OwnsQuery(id uuid.UUID) bool {
	for _, owned := range r.Queries {
		if owned == id {
			return true
		}
	}
	return false
}
