package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/flagkit/flagkit/pkg/payload"
	"github.com/flagkit/flagkit/pkg/savedgroups"
)

// Collections read by FeatureSource. They are owned by the admin surface;
// the pipeline never writes them.
const (
	DefaultOrganizationsCollection = "organizations"
	DefaultFeaturesCollection      = "features"
	DefaultExperimentsCollection   = "experiments"
	DefaultHoldoutsCollection      = "holdouts"
	DefaultGroupsCollection        = "savedgroups"
)

// FeatureSource loads the authoring data payload builds start from. It
// returns records as stored; archived features and draft experiments are
// filtered during payload computation, not here.
type FeatureSource struct {
	orgs        *mongo.Collection
	features    *mongo.Collection
	experiments *mongo.Collection
	holdouts    *mongo.Collection
	groups      *mongo.Collection
}

// NewFeatureSource creates a feature source over the default collections.
func NewFeatureSource(db *mongo.Database) *FeatureSource {
	return &FeatureSource{
		orgs:        db.Collection(DefaultOrganizationsCollection),
		features:    db.Collection(DefaultFeaturesCollection),
		experiments: db.Collection(DefaultExperimentsCollection),
		holdouts:    db.Collection(DefaultHoldoutsCollection),
		groups:      db.Collection(DefaultGroupsCollection),
	}
}

// Settings returns the organization settings slice the pipeline consumes.
func (s *FeatureSource) Settings(ctx context.Context, orgID string) (payload.OrgSettings, error) {
	var doc struct {
		Settings payload.OrgSettings `bson:"settings"`
	}
	err := s.orgs.FindOne(ctx, bson.M{"id": orgID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return payload.OrgSettings{}, fmt.Errorf("organization %q: %w", orgID, ErrNotFound)
		}
		return payload.OrgSettings{}, fmt.Errorf("get organization settings: %w", err)
	}
	return doc.Settings, nil
}

// Features returns every authored feature of the organization.
func (s *FeatureSource) Features(ctx context.Context, orgID string) ([]payload.Feature, error) {
	cur, err := s.features.Find(ctx, bson.M{"organization": orgID})
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	var features []payload.Feature
	if err := cur.All(ctx, &features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	return features, nil
}

// Experiments returns the organization's client-side experiment definitions.
func (s *FeatureSource) Experiments(ctx context.Context, orgID string) ([]payload.AutoExperiment, error) {
	cur, err := s.experiments.Find(ctx, bson.M{"organization": orgID})
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	var exps []payload.AutoExperiment
	if err := cur.All(ctx, &exps); err != nil {
		return nil, fmt.Errorf("decode experiments: %w", err)
	}
	return exps, nil
}

// Holdouts returns the organization's holdout populations.
func (s *FeatureSource) Holdouts(ctx context.Context, orgID string) ([]payload.Holdout, error) {
	cur, err := s.holdouts.Find(ctx, bson.M{"organization": orgID})
	if err != nil {
		return nil, fmt.Errorf("list holdouts: %w", err)
	}
	var holdouts []payload.Holdout
	if err := cur.All(ctx, &holdouts); err != nil {
		return nil, fmt.Errorf("decode holdouts: %w", err)
	}
	return holdouts, nil
}

// Groups returns the organization's saved groups.
func (s *FeatureSource) Groups(ctx context.Context, orgID string) ([]savedgroups.Group, error) {
	cur, err := s.groups.Find(ctx, bson.M{"organization": orgID})
	if err != nil {
		return nil, fmt.Errorf("list saved groups: %w", err)
	}
	var groups []savedgroups.Group
	if err := cur.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decode saved groups: %w", err)
	}
	return groups, nil
}
