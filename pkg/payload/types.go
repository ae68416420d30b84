package payload

import (
	"encoding/json"
	"time"

	"github.com/flagkit/flagkit/pkg/capability"
)

// Feature is an authored feature with per-environment rule sets, as stored
// by the admin surface.
type Feature struct {
	ID           string                        `json:"id" bson:"id"`
	Organization string                        `json:"organization" bson:"organization"`
	Projects     []string                      `json:"projects,omitempty" bson:"projects,omitempty"`
	DefaultValue json.RawMessage               `json:"defaultValue" bson:"defaultValue"`
	Environments map[string]EnvironmentConfig  `json:"environments" bson:"environments"`
	Archived     bool                          `json:"archived,omitempty" bson:"archived,omitempty"`
	DateUpdated  time.Time                     `json:"dateUpdated" bson:"dateUpdated"`
}

// EnvironmentConfig is one environment's slice of an authored feature.
type EnvironmentConfig struct {
	Enabled bool          `json:"enabled" bson:"enabled"`
	Rules   []FeatureRule `json:"rules,omitempty" bson:"rules,omitempty"`
}

// FeatureDefinition is the per-environment SDK view of a feature.
type FeatureDefinition struct {
	DefaultValue json.RawMessage `json:"defaultValue"`
	Rules        []FeatureRule   `json:"rules,omitempty"`
}

// FeatureRule is a single targeting rule. Rule order is evaluation order and
// must never be resorted.
type FeatureRule struct {
	ID               string            `json:"id,omitempty" bson:"id,omitempty"`
	Condition        json.RawMessage   `json:"condition,omitempty" bson:"condition,omitempty"`
	ParentConditions []ParentCondition `json:"parentConditions,omitempty" bson:"parentConditions,omitempty"`
	Force            json.RawMessage   `json:"force,omitempty" bson:"force,omitempty"`
	Coverage         *float64          `json:"coverage,omitempty" bson:"coverage,omitempty"`
	HashAttribute    string            `json:"hashAttribute,omitempty" bson:"hashAttribute,omitempty"`
	Variations       []json.RawMessage `json:"variations,omitempty" bson:"variations,omitempty"`
	Weights          []float64         `json:"weights,omitempty" bson:"weights,omitempty"`
	Key              string            `json:"key,omitempty" bson:"key,omitempty"`

	// bucketingV2 fields.
	HashVersion int             `json:"hashVersion,omitempty" bson:"hashVersion,omitempty"`
	Range       []float64       `json:"range,omitempty" bson:"range,omitempty"`
	Ranges      [][]float64     `json:"ranges,omitempty" bson:"ranges,omitempty"`
	Meta        json.RawMessage `json:"meta,omitempty" bson:"meta,omitempty"`
	Filters     json.RawMessage `json:"filters,omitempty" bson:"filters,omitempty"`
	Seed        string          `json:"seed,omitempty" bson:"seed,omitempty"`
	Name        string          `json:"name,omitempty" bson:"name,omitempty"`
	Phase       string          `json:"phase,omitempty" bson:"phase,omitempty"`

	// stickyBucketing fields.
	FallbackAttribute      string `json:"fallbackAttribute,omitempty" bson:"fallbackAttribute,omitempty"`
	DisableStickyBucketing bool   `json:"disableStickyBucketing,omitempty" bson:"disableStickyBucketing,omitempty"`
	BucketVersion          int    `json:"bucketVersion,omitempty" bson:"bucketVersion,omitempty"`
	MinBucketVersion       int    `json:"minBucketVersion,omitempty" bson:"minBucketVersion,omitempty"`

	// ScheduleRules gate the rule by time window. They are applied while
	// computing definitions and never serialized to SDKs.
	ScheduleRules []ScheduleRule `json:"scheduleRules,omitempty" bson:"scheduleRules,omitempty"`
}

// ParentCondition makes a rule depend on another feature's evaluated state.
// A gating condition disables the whole feature when the SDK cannot evaluate
// prerequisites.
type ParentCondition struct {
	ID        string          `json:"id" bson:"id"`
	Condition json.RawMessage `json:"condition" bson:"condition"`
	Gate      bool            `json:"gate,omitempty" bson:"gate,omitempty"`
}

// ScheduleRule enables or disables a rule at a point in time.
type ScheduleRule struct {
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Enabled   bool      `json:"enabled" bson:"enabled"`
}

// AutoExperiment change types.
const (
	ChangeTypeVisual   = "visual"
	ChangeTypeRedirect = "redirect"
)

// AutoExperiment is a client-side experiment definition (visual editor or
// URL redirect changes) delivered alongside features.
type AutoExperiment struct {
	Key           string            `json:"key" bson:"key"`
	Projects      []string          `json:"-" bson:"projects,omitempty"`
	ChangeType    string            `json:"changeType,omitempty" bson:"changeType,omitempty"`
	Status        string            `json:"status,omitempty" bson:"status,omitempty"`
	Variations    []json.RawMessage `json:"variations" bson:"variations"`
	Weights       []float64         `json:"weights,omitempty" bson:"weights,omitempty"`
	Coverage      *float64          `json:"coverage,omitempty" bson:"coverage,omitempty"`
	Condition     json.RawMessage   `json:"condition,omitempty" bson:"condition,omitempty"`
	Namespace     json.RawMessage   `json:"namespace,omitempty" bson:"namespace,omitempty"`
	HashAttribute string            `json:"hashAttribute,omitempty" bson:"hashAttribute,omitempty"`
	HashVersion   int               `json:"hashVersion,omitempty" bson:"hashVersion,omitempty"`
	Meta          json.RawMessage   `json:"meta,omitempty" bson:"meta,omitempty"`
	Seed          string            `json:"seed,omitempty" bson:"seed,omitempty"`
	Name          string            `json:"name,omitempty" bson:"name,omitempty"`
	Phase         string            `json:"phase,omitempty" bson:"phase,omitempty"`
	URLPatterns   json.RawMessage   `json:"urlPatterns,omitempty" bson:"urlPatterns,omitempty"`
}

// Experiment statuses relevant to payload inclusion.
const (
	StatusDraft   = "draft"
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// Holdout is a reserved population excluded from experiments within scope,
// represented as a synthetic feature definition.
type Holdout struct {
	ID         string            `json:"id" bson:"id"`
	Projects   []string          `json:"projects,omitempty" bson:"projects,omitempty"`
	Definition FeatureDefinition `json:"definition" bson:"definition"`
}

// HoldoutRulePrefix marks feature rules generated from a holdout; only such
// rules make a holdout reachable.
const HoldoutRulePrefix = "holdout_"

// Attribute describes one entry of the org's attribute schema.
type Attribute struct {
	Property string `json:"property" bson:"property"`
	Datatype string `json:"datatype" bson:"datatype"`
}

// Secure attribute datatypes; string values bound to these are hashed.
const (
	DatatypeSecureString      = "secureString"
	DatatypeSecureStringArray = "secureString[]"
)

// OrgSettings is the slice of organization settings the pipeline consumes.
type OrgSettings struct {
	SecureAttributeSalt   string      `json:"secureAttributeSalt,omitempty" bson:"secureAttributeSalt,omitempty"`
	Attributes            []Attribute `json:"attributes,omitempty" bson:"attributes,omitempty"`
	SavedGroupReferences  bool        `json:"savedGroupReferences,omitempty" bson:"savedGroupReferences,omitempty"`
	Environments          []string    `json:"environments,omitempty" bson:"environments,omitempty"`
}

// SecureAttributes returns the set of attribute names flagged secure.
func (s OrgSettings) SecureAttributes() map[string]bool {
	out := make(map[string]bool)
	for _, a := range s.Attributes {
		if a.Datatype == DatatypeSecureString || a.Datatype == DatatypeSecureStringArray {
			out[a.Property] = true
		}
	}
	return out
}

// SDKPayloadKey is the unit of invalidation: a change event carries the
// (environment, project) pairs it touched.
type SDKPayloadKey struct {
	Environment string `json:"environment" bson:"environment"`
	Project     string `json:"project" bson:"project"`
}

// ProxyConnection is the proxy attachment of an SDK connection. Connected,
// Version and LastError are owned by the propagation and health-check paths.
type ProxyConnection struct {
	Enabled    bool      `json:"enabled" bson:"enabled"`
	Host       string    `json:"host,omitempty" bson:"host,omitempty"`
	SigningKey string    `json:"signingKey,omitempty" bson:"signingKey,omitempty"`
	Connected  bool      `json:"connected" bson:"connected"`
	Version    string    `json:"version,omitempty" bson:"version,omitempty"`
	Error      string    `json:"error,omitempty" bson:"error,omitempty"`
	LastError  time.Time `json:"lastError,omitzero" bson:"lastError,omitempty"`
}

// SDKConnection ties an SDK key to an environment, project scope and the
// payload shaping the connected SDKs require.
type SDKConnection struct {
	ID                       string          `json:"id" bson:"id"`
	Organization             string          `json:"organization" bson:"organization"`
	Key                      string          `json:"key" bson:"key"`
	Environment              string          `json:"environment" bson:"environment"`
	Projects                 []string        `json:"projects,omitempty" bson:"projects,omitempty"`
	Languages                []string        `json:"languages,omitempty" bson:"languages,omitempty"`
	SDKVersion               string          `json:"sdkVersion,omitempty" bson:"sdkVersion,omitempty"`
	EncryptPayload           bool            `json:"encryptPayload" bson:"encryptPayload"`
	EncryptionKey            string          `json:"encryptionKey,omitempty" bson:"encryptionKey,omitempty"`
	HashSecureAttributes     bool            `json:"hashSecureAttributes" bson:"hashSecureAttributes"`
	IncludeExperimentNames   bool            `json:"includeExperimentNames" bson:"includeExperimentNames"`
	IncludeVisualExperiments bool            `json:"includeVisualExperiments" bson:"includeVisualExperiments"`
	IncludeRedirects         bool            `json:"includeRedirects" bson:"includeRedirects"`
	IncludeDraftExperiments  bool            `json:"includeDraftExperiments" bson:"includeDraftExperiments"`
	Proxy                    ProxyConnection `json:"proxy,omitzero" bson:"proxy,omitempty"`
	DateUpdated              time.Time       `json:"dateUpdated" bson:"dateUpdated"`
}

// Capabilities resolves the connection's effective capability set from its
// declared languages and version.
func (c SDKConnection) Capabilities() capability.Set {
	return capability.ForLanguages(c.Languages, c.SDKVersion)
}

// Matches reports whether a payload key affects this connection: the
// environment must match and the project must either be unscoped or inside
// the connection's project filter.
func (c SDKConnection) Matches(key SDKPayloadKey) bool {
	if c.Environment != key.Environment {
		return false
	}
	if key.Project == "" || len(c.Projects) == 0 {
		return true
	}
	for _, p := range c.Projects {
		if p == key.Project {
			return true
		}
	}
	return false
}

// ResponseBody is the SDK features endpoint response. EncryptedFeatures and
// Features are mutually exclusive: when encryption is on, the plaintext maps
// are emptied.
type ResponseBody struct {
	Features             map[string]FeatureDefinition `json:"features"`
	Experiments          []AutoExperiment             `json:"experiments,omitempty"`
	Holdouts             map[string]FeatureDefinition `json:"holdouts,omitempty"`
	SavedGroups          map[string]json.RawMessage   `json:"savedGroups,omitempty"`
	DateUpdated          time.Time                    `json:"dateUpdated"`
	EncryptedFeatures    string                       `json:"encryptedFeatures,omitempty"`
	EncryptedExperiments string                       `json:"encryptedExperiments,omitempty"`
}
