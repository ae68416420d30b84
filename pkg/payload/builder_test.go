package payload_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagkit/flagkit/pkg/payload"
	"github.com/flagkit/flagkit/pkg/savedgroups"
)

// memorySource is a canned Source for builder tests.
type memorySource struct {
	settings    payload.OrgSettings
	features    []payload.Feature
	experiments []payload.AutoExperiment
	holdouts    []payload.Holdout
	groups      []savedgroups.Group
	err         error
}

func (m *memorySource) Settings(context.Context, string) (payload.OrgSettings, error) {
	return m.settings, m.err
}
func (m *memorySource) Features(context.Context, string) ([]payload.Feature, error) {
	return m.features, m.err
}
func (m *memorySource) Experiments(context.Context, string) ([]payload.AutoExperiment, error) {
	return m.experiments, m.err
}
func (m *memorySource) Holdouts(context.Context, string) ([]payload.Holdout, error) {
	return m.holdouts, m.err
}
func (m *memorySource) Groups(context.Context, string) ([]savedgroups.Group, error) {
	return m.groups, m.err
}

func looseConn() payload.SDKConnection {
	return payload.SDKConnection{
		ID:                       "sdk_1",
		Key:                      "key_abc",
		Environment:              "production",
		Languages:                []string{"javascript"},
		SDKVersion:               "0.36.1",
		IncludeExperimentNames:   true,
		IncludeVisualExperiments: true,
		IncludeRedirects:         true,
		IncludeDraftExperiments:  false,
	}
}

func TestBuilder_Build_PerEnvironmentDefinitions(t *testing.T) {
	t.Parallel()

	src := &memorySource{
		features: []payload.Feature{
			{
				ID:           "checkout",
				DefaultValue: json.RawMessage(`false`),
				Environments: map[string]payload.EnvironmentConfig{
					"production": {Enabled: true, Rules: []payload.FeatureRule{
						{ID: "r2", Force: json.RawMessage(`true`)},
						{ID: "r1", Force: json.RawMessage(`false`)},
					}},
					"staging": {Enabled: true},
				},
			},
			{
				ID:           "disabled-here",
				DefaultValue: json.RawMessage(`1`),
				Environments: map[string]payload.EnvironmentConfig{
					"production": {Enabled: false},
				},
			},
			{
				ID:           "archived",
				Archived:     true,
				Environments: map[string]payload.EnvironmentConfig{"production": {Enabled: true}},
			},
			{
				ID:           "other-project",
				Projects:     []string{"proj-b"},
				Environments: map[string]payload.EnvironmentConfig{"production": {Enabled: true}},
			},
		},
	}

	b, err := payload.NewBuilder(src)
	require.NoError(t, err)

	raw := b.Build(context.Background(), "org_1", "production", []string{"proj-a"})

	require.Contains(t, raw.Features, "checkout")
	assert.NotContains(t, raw.Features, "disabled-here")
	assert.NotContains(t, raw.Features, "archived")
	assert.NotContains(t, raw.Features, "other-project")

	// Rule order is evaluation order; it must match authored order exactly.
	rules := raw.Features["checkout"].Rules
	require.Len(t, rules, 2)
	assert.Equal(t, "r2", rules[0].ID)
	assert.Equal(t, "r1", rules[1].ID)
}

func TestBuilder_Build_SourceFailureDegradesToEmptyPayload(t *testing.T) {
	t.Parallel()

	src := &memorySource{err: errors.New("document store down")}
	b, err := payload.NewBuilder(src)
	require.NoError(t, err)

	raw := b.Build(context.Background(), "org_1", "production", nil)

	assert.Empty(t, raw.Features)
	assert.Empty(t, raw.Experiments)
	assert.False(t, raw.DateUpdated.IsZero())
}

func TestBuilder_ScheduleWindows(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	src := &memorySource{
		features: []payload.Feature{{
			ID:           "scheduled",
			DefaultValue: json.RawMessage(`false`),
			Environments: map[string]payload.EnvironmentConfig{
				"production": {Enabled: true, Rules: []payload.FeatureRule{
					{ID: "live", ScheduleRules: []payload.ScheduleRule{
						{Timestamp: now.Add(-time.Hour), Enabled: true},
					}},
					{ID: "not-yet", ScheduleRules: []payload.ScheduleRule{
						{Timestamp: now.Add(time.Hour), Enabled: true},
					}},
					{ID: "expired", ScheduleRules: []payload.ScheduleRule{
						{Timestamp: now.Add(-2 * time.Hour), Enabled: true},
						{Timestamp: now.Add(-time.Hour), Enabled: false},
					}},
					{ID: "ends-later", ScheduleRules: []payload.ScheduleRule{
						{Timestamp: now.Add(time.Hour), Enabled: false},
					}},
				}},
			},
		}},
	}

	b, err := payload.NewBuilder(src, payload.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	raw := b.Build(context.Background(), "org_1", "production", nil)
	require.Contains(t, raw.Features, "scheduled")

	var ids []string
	for _, r := range raw.Features["scheduled"].Rules {
		ids = append(ids, r.ID)
		assert.Nil(t, r.ScheduleRules, "schedule metadata must not ship")
	}
	assert.Equal(t, []string{"live", "ends-later"}, ids)
}

func TestRaw_Shape_EndToEnd(t *testing.T) {
	t.Parallel()

	src := &memorySource{
		settings: payload.OrgSettings{
			SecureAttributeSalt: "salt",
			Attributes:          []payload.Attribute{{Property: "email", Datatype: payload.DatatypeSecureString}},
		},
		features: []payload.Feature{{
			ID:           "flag",
			DefaultValue: json.RawMessage(`false`),
			Environments: map[string]payload.EnvironmentConfig{
				"production": {Enabled: true, Rules: []payload.FeatureRule{
					{ID: "r1", Condition: json.RawMessage(`{"os":"ios","$savedGroups":["sg_2"]}`), Force: json.RawMessage(`true`)},
				}},
			},
		}},
		experiments: []payload.AutoExperiment{
			{Key: "vis", ChangeType: payload.ChangeTypeVisual, Name: "Visual Test"},
			{Key: "draft", ChangeType: payload.ChangeTypeVisual, Status: payload.StatusDraft},
		},
		groups: []savedgroups.Group{
			{ID: "sg_1", Type: savedgroups.TypeCondition, Condition: `{"country":"US"}`},
			{ID: "sg_2", Type: savedgroups.TypeCondition, Condition: `{"browser":"chrome","$savedGroups":["sg_1"]}`},
		},
	}

	b, err := payload.NewBuilder(src)
	require.NoError(t, err)
	raw := b.Build(context.Background(), "org_1", "production", nil)

	body, err := raw.Shape(looseConn())
	require.NoError(t, err)

	require.Contains(t, body.Features, "flag")
	assert.JSONEq(t,
		`{"os":"ios","browser":"chrome","country":"US"}`,
		string(body.Features["flag"].Rules[0].Condition))

	// Draft experiments excluded by default.
	require.Len(t, body.Experiments, 1)
	assert.Equal(t, "vis", body.Experiments[0].Key)
	assert.Equal(t, "Visual Test", body.Experiments[0].Name)
}

func TestRaw_Shape_NameRedactionAndHashing(t *testing.T) {
	t.Parallel()

	src := &memorySource{
		settings: payload.OrgSettings{
			SecureAttributeSalt: "salt",
			Attributes:          []payload.Attribute{{Property: "email", Datatype: payload.DatatypeSecureString}},
		},
		features: []payload.Feature{{
			ID:           "flag",
			DefaultValue: json.RawMessage(`false`),
			Environments: map[string]payload.EnvironmentConfig{
				"production": {Enabled: true, Rules: []payload.FeatureRule{{
					ID:        "r1",
					Name:      "Secret Experiment",
					Meta:      json.RawMessage(`[{"key":"0","name":"Control"}]`),
					Condition: json.RawMessage(`{"email":"a@b.com"}`),
				}}},
			},
		}},
	}

	b, err := payload.NewBuilder(src)
	require.NoError(t, err)
	raw := b.Build(context.Background(), "org_1", "production", nil)

	conn := looseConn()
	conn.IncludeExperimentNames = false
	conn.HashSecureAttributes = true

	body, err := raw.Shape(conn)
	require.NoError(t, err)

	rule := body.Features["flag"].Rules[0]
	assert.Empty(t, rule.Name)
	assert.JSONEq(t, `[{"key":"0"}]`, string(rule.Meta))
	assert.NotContains(t, string(rule.Condition), "a@b.com")
	assert.Contains(t, string(rule.Condition), `"email"`)
}

func TestRaw_Shape_Encryption(t *testing.T) {
	t.Parallel()

	src := &memorySource{
		features: []payload.Feature{{
			ID:           "flag",
			DefaultValue: json.RawMessage(`true`),
			Environments: map[string]payload.EnvironmentConfig{
				"production": {Enabled: true},
			},
		}},
	}

	b, err := payload.NewBuilder(src)
	require.NoError(t, err)
	raw := b.Build(context.Background(), "org_1", "production", nil)

	key, err := payload.GenerateEncryptionKey()
	require.NoError(t, err)

	conn := looseConn()
	conn.EncryptPayload = true
	conn.EncryptionKey = key

	body, err := raw.Shape(conn)
	require.NoError(t, err)

	// Plaintext and ciphertext are never both present.
	assert.Empty(t, body.Features)
	require.NotEmpty(t, body.EncryptedFeatures)

	decrypted, err := payload.Decrypt(body.EncryptedFeatures, key)
	require.NoError(t, err)

	var features map[string]payload.FeatureDefinition
	require.NoError(t, json.Unmarshal(decrypted, &features))
	assert.Contains(t, features, "flag")
}

func TestRaw_Shape_ReferenceMode(t *testing.T) {
	t.Parallel()

	src := &memorySource{
		settings: payload.OrgSettings{SavedGroupReferences: true},
		features: []payload.Feature{{
			ID:           "flag",
			DefaultValue: json.RawMessage(`false`),
			Environments: map[string]payload.EnvironmentConfig{
				"production": {Enabled: true, Rules: []payload.FeatureRule{{
					ID:        "r1",
					Condition: json.RawMessage(`{"id":{"$inGroup":"sg_ids"}}`),
				}}},
			},
		}},
		groups: []savedgroups.Group{
			{ID: "sg_ids", Type: savedgroups.TypeList, AttributeKey: "id", Values: []any{"u1"}},
		},
	}

	b, err := payload.NewBuilder(src)
	require.NoError(t, err)
	raw := b.Build(context.Background(), "org_1", "production", nil)

	// javascript 0.36.1 supports savedGroupReferences: references pass through.
	body, err := raw.Shape(looseConn())
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":{"$inGroup":"sg_ids"}}`, string(body.Features["flag"].Rules[0].Condition))
	require.Contains(t, body.SavedGroups, "sg_ids")
	assert.JSONEq(t, `["u1"]`, string(body.SavedGroups["sg_ids"]))

	// An older SDK gets the reference inlined instead.
	old := looseConn()
	old.SDKVersion = "0.30.0"
	body, err = raw.Shape(old)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":{"$in":["u1"]}}`, string(body.Features["flag"].Rules[0].Condition))
	assert.Empty(t, body.SavedGroups)
}

func TestNewBuilder_RequiresSource(t *testing.T) {
	t.Parallel()

	_, err := payload.NewBuilder(nil)
	require.ErrorIs(t, err, payload.ErrSourceNil)
}
