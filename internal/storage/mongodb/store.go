package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"taskboard/internal/storage"
)

// Store maps every collection onto a MongoDB collection of the same name.
// Document keys are stored as _id.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Open connects to uri and selects database.
func Open(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("empty mongo uri")
	}
	if database == "" {
		return nil, fmt.Errorf("empty mongo database name")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(database), logger: logger}, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the whole database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// Get retrieves a single document.
func (s *Store) Get(ctx context.Context, collection, key string) (storage.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": key}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, key, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Document{}, storage.Unavailable("get document", err)
	}
	return toDocument(raw), nil
}

// Put upserts a document.
func (s *Store) Put(ctx context.Context, collection, key string, fields map[string]any, merge bool) error {
	model := writeModel(storage.Op{Collection: collection, Key: key, Fields: fields, Merge: merge})
	if _, err := s.db.Collection(collection).BulkWrite(ctx, []mongo.WriteModel{model}); err != nil {
		return storage.Unavailable("put document", err)
	}
	return nil
}

// Create inserts a document only when the key is free.
func (s *Store) Create(ctx context.Context, collection, key string, fields map[string]any) error {
	doc := bson.M{"_id": key}
	for k, v := range fields {
		doc[k] = v
	}
	_, err := s.db.Collection(collection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s/%s: %w", collection, key, storage.ErrExists)
	}
	if err != nil {
		return storage.Unavailable("create document", err)
	}
	return nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	if len(fields) == 0 {
		_, err := s.Get(ctx, collection, key)
		return err
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": fields})
	if err != nil {
		return storage.Unavailable("update document", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, key, storage.ErrNotFound)
	}
	return nil
}

// Delete removes a document if present.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return storage.Unavailable("delete document", err)
	}
	return nil
}

// ListAll streams a collection.
func (s *Store) ListAll(ctx context.Context, collection string) (storage.Cursor, error) {
	cur, err := s.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, storage.Unavailable("list documents", err)
	}
	return &cursor{ctx: ctx, cur: cur}, nil
}

// Batch applies ops in order with one ordered bulk write per run of
// consecutive ops on the same collection.
func (s *Store) Batch(ctx context.Context, ops []storage.Op) error {
	if len(ops) > storage.MaxBatchOps {
		return fmt.Errorf("%d ops: %w", len(ops), storage.ErrBatchTooLarge)
	}

	for start := 0; start < len(ops); {
		end := start
		var models []mongo.WriteModel
		for end < len(ops) && ops[end].Collection == ops[start].Collection {
			models = append(models, writeModel(ops[end]))
			end++
		}
		_, err := s.db.Collection(ops[start].Collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
		if err != nil {
			return storage.Unavailable("batch write", err)
		}
		start = end
	}
	s.logger.Debug("batch committed", slog.Int("ops", len(ops)))
	return nil
}

// writeModel turns op into an upsert. Merges use an update pipeline so that
// defaults are only applied to missing fields; values are wrapped in $literal
// so strings starting with "$" are not read as field paths.
func writeModel(op storage.Op) mongo.WriteModel {
	filter := bson.M{"_id": op.Key}
	if !op.Merge {
		doc := bson.M{}
		for k, v := range op.Defaults {
			doc[k] = v
		}
		for k, v := range op.Fields {
			doc[k] = v
		}
		return mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(doc).SetUpsert(true)
	}

	pipeline := mongo.Pipeline{}
	if len(op.Defaults) > 0 {
		stage := bson.D{}
		for k, v := range op.Defaults {
			stage = append(stage, bson.E{Key: k, Value: bson.D{{Key: "$ifNull", Value: bson.A{"$" + k, bson.D{{Key: "$literal", Value: v}}}}}})
		}
		pipeline = append(pipeline, bson.D{{Key: "$set", Value: stage}})
	}
	if len(op.Fields) > 0 {
		stage := bson.D{}
		for k, v := range op.Fields {
			stage = append(stage, bson.E{Key: k, Value: bson.D{{Key: "$literal", Value: v}}})
		}
		pipeline = append(pipeline, bson.D{{Key: "$set", Value: stage}})
	}
	if len(pipeline) == 0 {
		return mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(bson.M{"$setOnInsert": bson.M{"_id": op.Key}}).SetUpsert(true)
	}
	return mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(pipeline).SetUpsert(true)
}

func toDocument(raw bson.M) storage.Document {
	key, _ := raw["_id"].(string)
	delete(raw, "_id")
	return storage.Document{Key: key, Fields: map[string]any(raw)}
}

type cursor struct {
	ctx context.Context
	cur *mongo.Cursor
	doc storage.Document
	err error
}

func (c *cursor) Next() bool {
	if c.err != nil || !c.cur.Next(c.ctx) {
		return false
	}
	var raw bson.M
	if err := c.cur.Decode(&raw); err != nil {
		c.err = storage.Unavailable("decode document", err)
		return false
	}
	c.doc = toDocument(raw)
	return true
}

func (c *cursor) Document() storage.Document { return c.doc }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return storage.Unavailable("list documents", c.cur.Err())
}

func (c *cursor) Close() error {
	return c.cur.Close(c.ctx)
}
