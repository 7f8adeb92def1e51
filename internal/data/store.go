package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/keeperhq/datanode/internal/domain"
)

// insertBatchSize bounds the payload of a single InsertMany request.
const insertBatchSize = 1000

// Store provides CRUD, batched insert and aggregation primitives over the
// dynamic per-schema collections of the data database.
type Store struct {
	db  *mongo.Database
	log *zap.Logger
}

// NewStore creates a new data store.
func NewStore(dataDB *mongo.Database, log *zap.Logger) *Store {
	return &Store{db: dataDB, log: log}
}

// InsertError records one document that failed to insert, with the
// underlying driver message.
type InsertError struct {
	Error    string         `json:"error"`
	Document map[string]any `json:"document"`
}

// InsertResult aggregates a batched insert. Partial success is the normal,
// expected outcome: errors are data, not a call failure.
type InsertResult struct {
	Created []string      `json:"created"`
	Errors  []InsertError `json:"errors"`
}

// UpdateResult reports how many documents a filter matched and modified.
type UpdateResult struct {
	Matched int64 `json:"matched"`
	Updated int64 `json:"updated"`
}

// Insert writes documents in unordered batches so one bad document does not
// block its batch-mates. Documents must already carry their _id. A document
// reported as a write error has its id removed from the created set even
// when an earlier batch inserted a document with the same id.
func (s *Store) Insert(ctx context.Context, schemaID uuid.UUID, docs []map[string]any) (InsertResult, error) {
	coll := s.db.Collection(schemaID.String())
	now := time.Now().UTC()

	stamped := make([]map[string]any, len(docs))
	for i, doc := range docs {
		stamped[i] = stampDocument(doc, now)
	}

	batches := partitionBatches(stamped, insertBatchSize)
	failures := make(map[int][]writeFailure, len(batches))

	for batchIdx, batch := range batches {
		payload := make([]any, len(batch))
		for i, doc := range batch {
			payload[i] = doc
		}

		_, err := coll.InsertMany(ctx, payload, options.InsertMany().SetOrdered(false))
		if err == nil {
			continue
		}

		var bwe mongo.BulkWriteException
		if !errors.As(err, &bwe) {
			return InsertResult{}, &domain.DatabaseError{Op: "data.insert", Cause: err}
		}
		for _, we := range bwe.WriteErrors {
			failures[batchIdx] = append(failures[batchIdx], writeFailure{Index: we.Index, Message: we.Message})
		}
	}

	result := collectInsertResult(batches, failures)
	if len(result.Errors) > 0 {
		s.log.Info("insert completed with partial failures",
			zap.String("schema", schemaID.String()),
			zap.Int("created", len(result.Created)),
			zap.Int("errors", len(result.Errors)))
	}
	return result, nil
}

// FindMany returns documents matching the filter, most recently created
// first. Ordering between documents sharing a _created value is unspecified.
func (s *Store) FindMany(ctx context.Context, schemaID uuid.UUID, filter map[string]any) ([]bson.M, error) {
	opts := options.Find().SetSort(bson.D{{Key: domain.FieldCreated, Value: -1}})
	return s.find(ctx, schemaID, filter, opts)
}

// Tail returns the most recent documents, bounded to limit (default 25).
func (s *Store) Tail(ctx context.Context, schemaID uuid.UUID, limit int64) ([]bson.M, error) {
	if limit <= 0 {
		limit = domain.TailLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: domain.FieldCreated, Value: -1}}).
		SetLimit(limit)
	return s.find(ctx, schemaID, map[string]any{}, opts)
}

func (s *Store) find(ctx context.Context, schemaID uuid.UUID, filter map[string]any, opts *options.FindOptions) ([]bson.M, error) {
	coll := s.db.Collection(schemaID.String())
	cursor, err := coll.Find(ctx, toBSON(filter), opts)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "data.find", Cause: err}
	}
	defer cursor.Close(ctx)

	results := []bson.M{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, &domain.DatabaseError{Op: "data.decode", Cause: err}
	}
	return results, nil
}

// UpdateMany applies the update document to every match and refreshes the
// _updated stamp.
func (s *Store) UpdateMany(ctx context.Context, schemaID uuid.UUID, filter, update map[string]any) (UpdateResult, error) {
	coll := s.db.Collection(schemaID.String())
	withStamp := stampUpdate(update, time.Now().UTC())

	res, err := coll.UpdateMany(ctx, toBSON(filter), withStamp)
	if err != nil {
		return UpdateResult{}, &domain.DatabaseError{Op: "data.update", Cause: err}
	}
	return UpdateResult{Matched: res.MatchedCount, Updated: res.ModifiedCount}, nil
}

// DeleteMany removes every match and returns the deleted count. Empty-filter
// safety lives at the service layer; callers wanting a full wipe use Flush.
func (s *Store) DeleteMany(ctx context.Context, schemaID uuid.UUID, filter map[string]any) (int64, error) {
	coll := s.db.Collection(schemaID.String())
	res, err := coll.DeleteMany(ctx, toBSON(filter))
	if err != nil {
		return 0, &domain.DatabaseError{Op: "data.delete", Cause: err}
	}
	return res.DeletedCount, nil
}

// Flush unconditionally deletes every document in the collection.
func (s *Store) Flush(ctx context.Context, schemaID uuid.UUID) (int64, error) {
	coll := s.db.Collection(schemaID.String())
	res, err := coll.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, &domain.DatabaseError{Op: "data.flush", Cause: err}
	}
	return res.DeletedCount, nil
}

// RunAggregation executes an already-injected pipeline and returns the raw
// result documents.
func (s *Store) RunAggregation(ctx context.Context, schemaID uuid.UUID, pipeline []bson.M) ([]bson.M, error) {
	coll := s.db.Collection(schemaID.String())
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "data.aggregate", Cause: err}
	}
	defer cursor.Close(ctx)

	results := []bson.M{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, &domain.DatabaseError{Op: "data.aggregate.decode", Cause: err}
	}
	return results, nil
}

// writeFailure is one driver-reported write error inside a batch.
type writeFailure struct {
	Index   int
	Message string
}

// stampDocument copies the document, assigns a generated _id when the caller
// did not supply one, and sets the metadata timestamps.
func stampDocument(doc map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(doc)+3)
	for k, v := range doc {
		out[k] = v
	}
	if id, ok := out[domain.FieldID]; !ok || id == "" || id == nil {
		out[domain.FieldID] = uuid.NewString()
	}
	out[domain.FieldCreated] = now
	out[domain.FieldUpdated] = now
	return out
}

// stampUpdate merges an _updated refresh into the caller's update document.
func stampUpdate(update map[string]any, now time.Time) bson.M {
	out := bson.M{}
	for k, v := range update {
		out[k] = v
	}
	set, ok := out["$set"].(map[string]any)
	if !ok {
		merged := bson.M{domain.FieldUpdated: now}
		if existing, isBSON := out["$set"].(bson.M); isBSON {
			for k, v := range existing {
				merged[k] = v
			}
		}
		out["$set"] = merged
		return out
	}
	withStamp := bson.M{}
	for k, v := range set {
		withStamp[k] = v
	}
	withStamp[domain.FieldUpdated] = now
	out["$set"] = withStamp
	return out
}

// partitionBatches splits documents into fixed-size batches.
func partitionBatches(docs []map[string]any, size int) [][]map[string]any {
	if size <= 0 {
		size = insertBatchSize
	}
	var batches [][]map[string]any
	for start := 0; start < len(docs); start += size {
		end := start + size
		if end > len(docs) {
			end = len(docs)
		}
		batches = append(batches, docs[start:end])
	}
	return batches
}

// collectInsertResult aggregates per-batch outcomes into the final result.
// Ids of errored documents are withdrawn from created even if a different
// batch inserted the same id; the duplicate is then reported as an error.
func collectInsertResult(batches [][]map[string]any, failures map[int][]writeFailure) InsertResult {
	result := InsertResult{Created: []string{}, Errors: []InsertError{}}
	errored := make(map[string]struct{})

	for batchIdx, batch := range batches {
		failed := make(map[int]writeFailure, len(failures[batchIdx]))
		for _, f := range failures[batchIdx] {
			failed[f.Index] = f
		}
		for docIdx, doc := range batch {
			id := documentID(doc)
			if f, ok := failed[docIdx]; ok {
				errored[id] = struct{}{}
				result.Errors = append(result.Errors, InsertError{Error: f.Message, Document: doc})
				continue
			}
			result.Created = append(result.Created, id)
		}
	}

	if len(errored) == 0 {
		return result
	}
	kept := result.Created[:0]
	for _, id := range result.Created {
		if _, ok := errored[id]; ok {
			continue
		}
		kept = append(kept, id)
	}
	result.Created = kept
	return result
}

// documentID renders a document's _id in canonical string form. Ids coerced
// to binary UUIDs by schema validation render as their UUID string.
func documentID(doc map[string]any) string {
	switch id := doc[domain.FieldID].(type) {
	case string:
		return id
	case primitive.Binary:
		if id.Subtype == 0x04 && len(id.Data) == 16 {
			parsed, err := uuid.FromBytes(id.Data)
			if err == nil {
				return parsed.String()
			}
		}
		return fmt.Sprintf("%x", id.Data)
	default:
		return fmt.Sprintf("%v", id)
	}
}

func toBSON(filter map[string]any) bson.M {
	out := bson.M(filter)
	if out == nil {
		out = bson.M{}
	}
	return out
}
