package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/flagkit/flagkit/pkg/dispatch"
	"github.com/flagkit/flagkit/pkg/payload"
)

// DefaultWebhooksCollection is the collection holding outbound webhooks.
const DefaultWebhooksCollection = "webhooks"

// WebhookStore reads webhook registrations and persists delivery outcomes.
type WebhookStore struct {
	coll *mongo.Collection
}

// NewWebhookStore creates a webhook store over the default collection.
func NewWebhookStore(db *mongo.Database) *WebhookStore {
	return &WebhookStore{coll: db.Collection(DefaultWebhooksCollection)}
}

// Get returns one webhook by id.
func (s *WebhookStore) Get(ctx context.Context, id string) (dispatch.Webhook, error) {
	var wh dispatch.Webhook
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&wh)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return dispatch.Webhook{}, fmt.Errorf("webhook %q: %w", id, ErrNotFound)
		}
		return dispatch.Webhook{}, fmt.Errorf("get webhook: %w", err)
	}
	return wh, nil
}

// RecordSuccess clears the stored delivery error and stamps lastSuccess.
func (s *WebhookStore) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	update := bson.M{"$set": bson.M{"error": "", "lastSuccess": at}}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("record webhook success: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("webhook %q: %w", id, ErrNotFound)
	}
	return nil
}

// RecordFailure persists the delivery error for the admin surface.
func (s *WebhookStore) RecordFailure(ctx context.Context, id string, message string) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"error": message}})
	if err != nil {
		return fmt.Errorf("record webhook failure: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("webhook %q: %w", id, ErrNotFound)
	}
	return nil
}

// SDKWebhookIDs lists new-generation webhooks subscribed to the connection.
func (s *WebhookStore) SDKWebhookIDs(ctx context.Context, orgID, connectionID string) ([]string, error) {
	filter := bson.M{
		"organization": orgID,
		"legacy":       bson.M{"$ne": true},
		"sdks":         connectionID,
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list sdk webhooks: %w", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode sdk webhooks: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// LegacyWebhookIDs lists legacy webhooks whose environment/project scope
// overlaps the affected keys. An empty environment or project on either
// side means "all".
func (s *WebhookStore) LegacyWebhookIDs(ctx context.Context, orgID string, keys []payload.SDKPayloadKey) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cur, err := s.coll.Find(ctx, bson.M{"organization": orgID, "legacy": true})
	if err != nil {
		return nil, fmt.Errorf("list legacy webhooks: %w", err)
	}
	var hooks []dispatch.Webhook
	if err := cur.All(ctx, &hooks); err != nil {
		return nil, fmt.Errorf("decode legacy webhooks: %w", err)
	}
	var ids []string
	for _, wh := range hooks {
		if legacyScopeMatches(wh, keys) {
			ids = append(ids, wh.ID)
		}
	}
	return ids, nil
}

func legacyScopeMatches(wh dispatch.Webhook, keys []payload.SDKPayloadKey) bool {
	for _, key := range keys {
		envOK := wh.Environment == "" || key.Environment == "" || wh.Environment == key.Environment
		projOK := wh.Project == "" || key.Project == "" || wh.Project == key.Project
		if envOK && projOK {
			return true
		}
	}
	return false
}
