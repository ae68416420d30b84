package payload

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/flagkit/flagkit/pkg/capability"
	"github.com/flagkit/flagkit/pkg/savedgroups"
)

// Source is the document-store collaborator the builder reads from. All
// methods are scoped by organization.
type Source interface {
	Settings(ctx context.Context, orgID string) (OrgSettings, error)
	Features(ctx context.Context, orgID string) ([]Feature, error)
	Experiments(ctx context.Context, orgID string) ([]AutoExperiment, error)
	Holdouts(ctx context.Context, orgID string) ([]Holdout, error)
	Groups(ctx context.Context, orgID string) ([]savedgroups.Group, error)
}

// Raw is one environment's payload before connection-specific shaping. It is
// computed fresh per propagation cycle and never shared across cycles.
type Raw struct {
	Organization string
	Environment  string
	Projects     []string
	Features     map[string]FeatureDefinition
	Experiments  []AutoExperiment
	Holdouts     []Holdout
	Groups       savedgroups.GroupMap
	Settings     OrgSettings
	DateUpdated  time.Time
}

// Builder computes Raw payloads from a Source.
type Builder struct {
	source Source
	logger *slog.Logger
	now    func() time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the time source, used by schedule tests.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder creates a payload builder over the given source.
func NewBuilder(source Source, opts ...BuilderOption) (*Builder, error) {
	if source == nil {
		return nil, ErrSourceNil
	}

	b := &Builder{
		source: source,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build computes the Raw payload for one (organization, environment,
// projects) triple. Read failures degrade to an empty payload: a missing
// section is logged and skipped, never surfaced to the caller, because
// serving an empty definition map beats failing the save that triggered the
// rebuild.
func (b *Builder) Build(ctx context.Context, orgID, environment string, projects []string) *Raw {
	now := b.now().UTC()
	raw := &Raw{
		Organization: orgID,
		Environment:  environment,
		Projects:     projects,
		Features:     map[string]FeatureDefinition{},
		Groups:       savedgroups.GroupMap{},
		DateUpdated:  now,
	}

	settings, err := b.source.Settings(ctx, orgID)
	if err != nil {
		b.logger.Error("payload build: loading org settings failed",
			slog.String("organization", orgID),
			slog.String("environment", environment),
			slog.String("error", err.Error()))
		return raw
	}
	raw.Settings = settings

	features, err := b.source.Features(ctx, orgID)
	if err != nil {
		b.logger.Error("payload build: loading features failed",
			slog.String("organization", orgID),
			slog.String("error", err.Error()))
		features = nil
	}
	for _, f := range features {
		def, ok := b.definition(f, environment, projects, now)
		if ok {
			raw.Features[f.ID] = def
		}
	}

	experiments, err := b.source.Experiments(ctx, orgID)
	if err != nil {
		b.logger.Error("payload build: loading experiments failed",
			slog.String("organization", orgID),
			slog.String("error", err.Error()))
		experiments = nil
	}
	for _, exp := range experiments {
		if projectsOverlap(exp.Projects, projects) {
			raw.Experiments = append(raw.Experiments, exp)
		}
	}

	holdouts, err := b.source.Holdouts(ctx, orgID)
	if err != nil {
		b.logger.Error("payload build: loading holdouts failed",
			slog.String("organization", orgID),
			slog.String("error", err.Error()))
		holdouts = nil
	}
	raw.Holdouts = holdouts

	groups, err := b.source.Groups(ctx, orgID)
	if err != nil {
		b.logger.Error("payload build: loading saved groups failed",
			slog.String("organization", orgID),
			slog.String("error", err.Error()))
		groups = nil
	}
	raw.Groups = savedgroups.NewGroupMap(groups)

	return raw
}

// definition computes one feature's per-environment definition, preserving
// authored rule order.
func (b *Builder) definition(f Feature, environment string, projects []string, now time.Time) (FeatureDefinition, bool) {
	if f.Archived {
		return FeatureDefinition{}, false
	}
	if !projectsOverlap(f.Projects, projects) {
		return FeatureDefinition{}, false
	}

	env, ok := f.Environments[environment]
	if !ok || !env.Enabled {
		return FeatureDefinition{}, false
	}

	def := FeatureDefinition{DefaultValue: f.DefaultValue}
	for _, rule := range env.Rules {
		if !scheduleActive(rule.ScheduleRules, now) {
			continue
		}
		rule.ScheduleRules = nil
		def.Rules = append(def.Rules, rule)
	}
	return def, true
}

// scheduleActive evaluates a rule's schedule at a point in time: the most
// recent entry that has passed decides; before any entry has passed, the
// rule is active only if the first upcoming entry would switch it off.
func scheduleActive(schedule []ScheduleRule, now time.Time) bool {
	if len(schedule) == 0 {
		return true
	}

	active := !schedule[0].Enabled
	for _, s := range schedule {
		if s.Timestamp.After(now) {
			break
		}
		active = s.Enabled
	}
	return active
}

// Shape specializes a Raw payload for one SDK connection. Shaping order is
// fixed: experiment filtering, name redaction, saved-group resolution,
// secure-attribute hashing, capability scrub, then encryption last.
func (raw *Raw) Shape(conn SDKConnection) (ResponseBody, error) {
	caps := conn.Capabilities()

	features := raw.Features
	experiments := filterExperiments(raw.Experiments, conn)

	if !conn.IncludeExperimentNames {
		features, experiments = removeNames(features, experiments)
	}

	referenceMode := raw.Settings.SavedGroupReferences && caps.Has(capability.SavedGroupReferences)
	features, experiments = resolveGroups(features, experiments, raw.Groups, referenceMode)

	if conn.HashSecureAttributes {
		secure := raw.Settings.SecureAttributes()
		salt := raw.Settings.SecureAttributeSalt
		features = hashFeatureConditions(features, secure, salt)
		experiments = hashExperimentConditions(experiments, secure, salt)
	}

	holdouts, features := ScrubHoldouts(raw.Holdouts, raw.Projects, features)
	features = ScrubFeatures(features, caps)
	experiments = ScrubExperiments(experiments, caps)

	body := ResponseBody{
		Features:    features,
		Experiments: experiments,
		Holdouts:    holdouts,
		DateUpdated: raw.DateUpdated,
	}
	if len(holdouts) == 0 {
		body.Holdouts = nil
	}
	if referenceMode {
		body.SavedGroups = listGroupValues(raw.Groups)
	}

	if conn.EncryptPayload && conn.EncryptionKey != "" {
		if err := encryptBody(&body, conn.EncryptionKey); err != nil {
			return ResponseBody{}, err
		}
	}
	return body, nil
}

func filterExperiments(experiments []AutoExperiment, conn SDKConnection) []AutoExperiment {
	out := make([]AutoExperiment, 0, len(experiments))
	for _, exp := range experiments {
		if exp.Status == StatusDraft && !conn.IncludeDraftExperiments {
			continue
		}
		switch exp.ChangeType {
		case ChangeTypeRedirect:
			if !conn.IncludeRedirects {
				continue
			}
		default:
			if !conn.IncludeVisualExperiments {
				continue
			}
		}
		out = append(out, exp)
	}
	return out
}

func resolveGroups(features map[string]FeatureDefinition, experiments []AutoExperiment, groups savedgroups.GroupMap, referenceMode bool) (map[string]FeatureDefinition, []AutoExperiment) {
	var opts []savedgroups.ResolverOption
	if referenceMode {
		opts = append(opts, savedgroups.WithListReferences())
	}
	resolver := savedgroups.NewResolver(groups, opts...)

	resolve := func(raw json.RawMessage) json.RawMessage {
		if len(raw) == 0 {
			return raw
		}
		resolved, err := resolver.ResolveJSON(raw)
		if err != nil {
			// An unparseable authored condition stays as-is; the SDK will
			// treat it as non-matching.
			return raw
		}
		return resolved
	}

	outF := make(map[string]FeatureDefinition, len(features))
	for id, def := range features {
		rules := make([]FeatureRule, len(def.Rules))
		for i, rule := range def.Rules {
			rule.Condition = resolve(rule.Condition)
			if len(rule.ParentConditions) > 0 {
				pcs := make([]ParentCondition, len(rule.ParentConditions))
				for j, pc := range rule.ParentConditions {
					pc.Condition = resolve(pc.Condition)
					pcs[j] = pc
				}
				rule.ParentConditions = pcs
			}
			rules[i] = rule
		}
		def.Rules = nil
		if len(rules) > 0 {
			def.Rules = rules
		}
		outF[id] = def
	}

	outE := make([]AutoExperiment, len(experiments))
	for i, exp := range experiments {
		exp.Condition = resolve(exp.Condition)
		outE[i] = exp
	}
	return outF, outE
}

func hashFeatureConditions(features map[string]FeatureDefinition, secure map[string]bool, salt string) map[string]FeatureDefinition {
	out := make(map[string]FeatureDefinition, len(features))
	for id, def := range features {
		rules := make([]FeatureRule, len(def.Rules))
		for i, rule := range def.Rules {
			rule.Condition = HashSecureAttributes(rule.Condition, secure, salt)
			if len(rule.ParentConditions) > 0 {
				pcs := make([]ParentCondition, len(rule.ParentConditions))
				for j, pc := range rule.ParentConditions {
					pc.Condition = HashSecureAttributes(pc.Condition, secure, salt)
					pcs[j] = pc
				}
				rule.ParentConditions = pcs
			}
			rules[i] = rule
		}
		def.Rules = nil
		if len(rules) > 0 {
			def.Rules = rules
		}
		out[id] = def
	}
	return out
}

func hashExperimentConditions(experiments []AutoExperiment, secure map[string]bool, salt string) []AutoExperiment {
	out := make([]AutoExperiment, len(experiments))
	for i, exp := range experiments {
		exp.Condition = HashSecureAttributes(exp.Condition, secure, salt)
		out[i] = exp
	}
	return out
}

func listGroupValues(groups savedgroups.GroupMap) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	for id, g := range groups {
		if g.Type == savedgroups.TypeList {
			out[id] = g.ValuesJSON()
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// encryptBody replaces the plaintext feature and experiment fields with
// their encrypted forms; plaintext and ciphertext are never both present.
func encryptBody(body *ResponseBody, key string) error {
	featuresJSON, err := json.Marshal(body.Features)
	if err != nil {
		return err
	}
	encFeatures, err := Encrypt(featuresJSON, key)
	if err != nil {
		return err
	}
	body.EncryptedFeatures = encFeatures
	body.Features = map[string]FeatureDefinition{}

	if len(body.Experiments) > 0 {
		experimentsJSON, err := json.Marshal(body.Experiments)
		if err != nil {
			return err
		}
		encExperiments, err := Encrypt(experimentsJSON, key)
		if err != nil {
			return err
		}
		body.EncryptedExperiments = encExperiments
		body.Experiments = nil
	}
	return nil
}
