package payloadcache

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultMongoCollection is the collection payload entries live in.
const DefaultMongoCollection = "sdkpayloads"

// MongoStore is the durable payload store. Every Set replaces the whole
// document, so a stale writer can only ever be overtaken by a complete
// newer payload, never produce a torn one.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a payload store on the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(DefaultMongoCollection)}
}

func (s *MongoStore) Get(ctx context.Context, sdkKey string) (Entry, error) {
	var entry Entry
	err := s.coll.FindOne(ctx, bson.M{"_id": sdkKey}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, sdkKey)
		}
		return Entry{}, fmt.Errorf("loading payload for %s: %w", sdkKey, err)
	}
	return entry, nil
}

func (s *MongoStore) Set(ctx context.Context, entry Entry) error {
	if entry.SDKKey == "" {
		return fmt.Errorf("%w: sdk key is required", ErrInvalidEntry)
	}
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": entry.SDKKey},
		entry,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upserting payload for %s: %w", entry.SDKKey, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, sdkKey string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": sdkKey}); err != nil {
		return fmt.Errorf("deleting payload for %s: %w", sdkKey, err)
	}
	return nil
}
