package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/keeperhq/datanode/internal/domain"
)

const accountsCollection = "accounts"

// accountRepository implements AccountRepository on the primary database.
type accountRepository struct {
	coll *mongo.Collection
}

// NewAccountRepository creates a new account repository.
func NewAccountRepository(primary *mongo.Database) AccountRepository {
	return &accountRepository{coll: primary.Collection(accountsCollection)}
}

type accountDoc struct {
	ID        string             `bson:"_id"`
	PublicKey string             `bson:"public_key"`
	Name      string             `bson:"name"`
	Type      domain.AccountType `bson:"type"`
	Schemas   []string           `bson:"schemas"`
	Queries   []string           `bson:"queries"`
	CreatedAt time.Time          `bson:"created"`
	UpdatedAt time.Time          `bson:"updated"`
}

func toAccountDoc(account domain.Account) accountDoc {
	return accountDoc{
		ID:        account.ID,
		PublicKey: account.PublicKey,
		Name:      account.Name,
		Type:      account.Type,
		Schemas:   idsToStrings(account.Schemas),
		Queries:   idsToStrings(account.Queries),
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}
}

func (d accountDoc) toDomain() (domain.Account, error) {
	schemas, err := stringsToIDs(d.Schemas)
	if err != nil {
		return domain.Account{}, fmt.Errorf("account %s has invalid schema id: %w", d.ID, err)
	}
	queries, err := stringsToIDs(d.Queries)
	if err != nil {
		return domain.Account{}, fmt.Errorf("account %s has invalid query id: %w", d.ID, err)
	}
	return domain.Account{
		ID:        d.ID,
		PublicKey: d.PublicKey,
		Name:      d.Name,
		Type:      d.Type,
		Schemas:   schemas,
		Queries:   queries,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func idsToStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func stringsToIDs(values []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(values))
	for i, value := range values {
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// Create persists a new account.
func (r *accountRepository) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	if _, err := r.coll.InsertOne(ctx, toAccountDoc(account)); err != nil {
		return domain.Account{}, &domain.DatabaseError{Op: "accounts.insert", Cause: err}
	}
	return account, nil
}

// GetByID retrieves an account by id.
func (r *accountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id}, id)
}

// GetByPublicKey retrieves the account registered with the given public key.
func (r *accountRepository) GetByPublicKey(ctx context.Context, publicKey string) (domain.Account, error) {
	return r.findOne(ctx, bson.M{"public_key": publicKey}, publicKey)
}

func (r *accountRepository) findOne(ctx context.Context, filter bson.M, ref string) (domain.Account, error) {
	var doc accountDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Account{}, &domain.DocumentNotFoundError{Collection: accountsCollection, ID: ref}
	}
	if err != nil {
		return domain.Account{}, &domain.DatabaseError{Op: "accounts.find", Cause: err}
	}
	return doc.toDomain()
}

// AddSchema appends a schema id to the account's ownership set.
func (r *accountRepository) AddSchema(ctx context.Context, accountID string, schemaID uuid.UUID) error {
	return r.mutateSet(ctx, accountID, "$addToSet", "schemas", schemaID)
}

// RemoveSchema removes a schema id from the account's ownership set.
func (r *accountRepository) RemoveSchema(ctx context.Context, accountID string, schemaID uuid.UUID) error {
	return r.mutateSet(ctx, accountID, "$pull", "schemas", schemaID)
}

// AddQuery appends a query id to the account's ownership set.
func (r *accountRepository) AddQuery(ctx context.Context, accountID string, queryID uuid.UUID) error {
	return r.mutateSet(ctx, accountID, "$addToSet", "queries", queryID)
}

// RemoveQuery removes a query id from the account's ownership set.
func (r *accountRepository) RemoveQuery(ctx context.Context, accountID string, queryID uuid.UUID) error {
	return r.mutateSet(ctx, accountID, "$pull", "queries", queryID)
}

func (r *accountRepository) mutateSet(ctx context.Context, accountID, op, field string, id uuid.UUID) error {
	update := bson.M{
		op:     bson.M{field: id.String()},
		"$set": bson.M{"updated": time.Now().UTC()},
	}
	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": accountID}, update)
	if err != nil {
		return &domain.DatabaseError{Op: "accounts.update", Cause: err}
	}
	if result.MatchedCount == 0 {
		return &domain.DocumentNotFoundError{Collection: accountsCollection, ID: accountID}
	}
	return nil
}
