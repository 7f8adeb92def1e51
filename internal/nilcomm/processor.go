package nilcomm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/keeperhq/datanode/internal/data"
	"github.com/keeperhq/datanode/internal/domain"
)

// shareField is the document field holding the base64 plaintext share.
const shareField = "share"

// ShareStore is the slice of the data store the processor drives.
type ShareStore interface {
	Insert(ctx context.Context, schemaID uuid.UUID, docs []map[string]any) (data.InsertResult, error)
	RunAggregation(ctx context.Context, schemaID uuid.UUID, pipeline []bson.M) ([]bson.M, error)
}

// AccountResolver maps an owner public key to its account.
type AccountResolver interface {
	GetByPublicKey(ctx context.Context, publicKey string) (domain.Account, error)
}

// Processor handles the commit-reveal command queues. Every failure path
// emits a "failed" event and returns an error so the delivery is nacked to
// dead-letter; success emits the completion event and acks.
type Processor struct {
	store       ShareStore
	accounts    AccountResolver
	publisher   EventPublisher
	keys        Keypair
	shareSchema uuid.UUID
	log         *zap.Logger
}

// NewProcessor creates a new commit-reveal processor bound to the fixed
// share schema's collection.
func NewProcessor(
	store ShareStore,
	accounts AccountResolver,
	publisher EventPublisher,
	keys Keypair,
	shareSchema uuid.UUID,
	log *zap.Logger,
) *Processor {
	return &Processor{
		store:       store,
		accounts:    accounts,
		publisher:   publisher,
		keys:        keys,
		shareSchema: shareSchema,
		log:         log,
	}
}

// HandleStoreSecret decrypts the committed share and stores it under the
// mapping id.
func (p *Processor) HandleStoreSecret(ctx context.Context, body []byte) error {
	var cmd StoreSecretCommand
	if err := json.Unmarshal(body, &cmd); err != nil {
		return p.failStore(ctx, cmd.MappingID, fmt.Errorf("failed to parse command: %w", err))
	}
	if cmd.MappingID == "" {
		return p.failStore(ctx, cmd.MappingID, fmt.Errorf("mapping id is required"))
	}

	ciphertext, err := base64.StdEncoding.DecodeString(cmd.EncryptedShare)
	if err != nil {
		return p.failStore(ctx, cmd.MappingID, fmt.Errorf("encrypted share is not valid base64: %w", err))
	}

	plaintext, err := p.keys.Decrypt(ciphertext)
	if err != nil {
		return p.failStore(ctx, cmd.MappingID, fmt.Errorf("failed to decrypt share: %w", err))
	}

	doc := map[string]any{
		domain.FieldID: cmd.MappingID,
		shareField:     base64.StdEncoding.EncodeToString(plaintext),
	}
	result, err := p.store.Insert(ctx, p.shareSchema, []map[string]any{doc})
	if err != nil {
		return p.failStore(ctx, cmd.MappingID, err)
	}
	if len(result.Errors) > 0 {
		return p.failStore(ctx, cmd.MappingID, fmt.Errorf("share was not stored: %s", result.Errors[0].Error))
	}

	p.log.Info("secret stored", zap.String("mapping_id", cmd.MappingID))
	return p.publisher.Publish(ctx, RouteSecretStored, SecretStoredEvent{MappingID: cmd.MappingID})
}

// HandleStartQueryExecution gathers the shares stored under the requested
// store ids and reveals them to the owner.
func (p *Processor) HandleStartQueryExecution(ctx context.Context, body []byte) error {
	var cmd StartQueryExecutionCommand
	if err := json.Unmarshal(body, &cmd); err != nil {
		return p.failQuery(ctx, cmd.MappingID, fmt.Errorf("failed to parse command: %w", err))
	}

	account, err := p.accounts.GetByPublicKey(ctx, cmd.OwnerPk)
	if err != nil {
		return p.failQuery(ctx, cmd.MappingID, fmt.Errorf("failed to resolve owner: %w", err))
	}

	queryID, err := uuid.Parse(cmd.QueryID)
	if err != nil {
		return p.failQuery(ctx, cmd.MappingID, fmt.Errorf("invalid query id %q: %w", cmd.QueryID, err))
	}
	if !account.Ownership().OwnsQuery(queryID) {
		return p.failQuery(ctx, cmd.MappingID,
			fmt.Errorf("query %s not found among account %s queries", queryID, account.ID))
	}

	ids := make(bson.A, len(cmd.Variables))
	for i, id := range cmd.Variables {
		ids[i] = id
	}
	pipeline := []bson.M{
		{"$match": bson.M{domain.FieldID: bson.M{"$in": ids}}},
		{"$project": bson.M{domain.FieldID: 1, shareField: 1}},
	}

	docs, err := p.store.RunAggregation(ctx, p.shareSchema, pipeline)
	if err != nil {
		return p.failQuery(ctx, cmd.MappingID, err)
	}

	shares, err := decodeShares(docs)
	if err != nil {
		return p.failQuery(ctx, cmd.MappingID, err)
	}

	p.log.Info("query execution completed",
		zap.String("mapping_id", cmd.MappingID), zap.Int("shares", len(shares)))
	return p.publisher.Publish(ctx, RouteQueryExecutionCompleted, QueryExecutionCompletedEvent{
		MappingID: cmd.MappingID,
		Data:      shares,
	})
}

// decodeShares verifies each gathered document round-trips from base64 and
// re-encodes the share bytes for the event payload, keyed by store id.
func decodeShares(docs []bson.M) (map[string]string, error) {
	shares := make(map[string]string, len(docs))
	for _, doc := range docs {
		id, ok := doc[domain.FieldID].(string)
		if !ok {
			return nil, fmt.Errorf("gathered document has a non-string id: %v", doc[domain.FieldID])
		}
		encoded, ok := doc[shareField].(string)
		if !ok {
			return nil, fmt.Errorf("share for %s is not a string", id)
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("share for %s is not valid base64: %w", id, err)
		}
		shares[id] = base64.StdEncoding.EncodeToString(raw)
	}
	return shares, nil
}

// failStore emits the failure event, then propagates the error so the
// delivery is nacked. A publish failure is logged, never swallowed into a
// silent ack.
func (p *Processor) failStore(ctx context.Context, mappingID string, cause error) error {
	p.log.Warn("store secret failed", zap.String("mapping_id", mappingID), zap.Error(cause))
	event := StoreSecretFailedEvent{MappingID: mappingID, Cause: cause.Error()}
	if err := p.publisher.Publish(ctx, RouteStoreSecretFailed, event); err != nil {
		p.log.Error("failed to publish failure event", zap.Error(err))
	}
	return cause
}

func (p *Processor) failQuery(ctx context.Context, mappingID string, cause error) error {
	p.log.Warn("query execution failed", zap.String("mapping_id", mappingID), zap.Error(cause))
	event := QueryExecutionFailedEvent{MappingID: mappingID, Cause: cause.Error()}
	if err := p.publisher.Publish(ctx, RouteQueryExecutionFailed, event); err != nil {
		p.log.Error("failed to publish failure event", zap.Error(err))
	}
	return cause
}
