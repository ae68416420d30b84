package payload

import (
	"encoding/json"
	"strings"

	"github.com/flagkit/flagkit/pkg/capability"
)

// ScrubFeatures strips everything a capability set cannot safely consume and
// returns a new map; the input is never mutated. SDKs without
// looseUnmarshalling fail hard on unrecognized keys, so for them every rule
// is reduced to an explicit allow-list.
func ScrubFeatures(features map[string]FeatureDefinition, caps capability.Set) map[string]FeatureDefinition {
	out := make(map[string]FeatureDefinition, len(features))

	for id, def := range features {
		def, keep := scrubDefinition(def, caps)
		if keep {
			out[id] = def
		}
	}
	return out
}

func scrubDefinition(def FeatureDefinition, caps capability.Set) (FeatureDefinition, bool) {
	rules := make([]FeatureRule, 0, len(def.Rules))

	for _, rule := range def.Rules {
		if !caps.Has(capability.Prerequisites) && len(rule.ParentConditions) > 0 {
			// A gating prerequisite means the feature cannot evaluate
			// correctly at all without prerequisite support; drop the whole
			// feature. Non-gating prerequisite rules are dropped one by one.
			if hasGate(rule) {
				return FeatureDefinition{}, false
			}
			continue
		}
		rules = append(rules, scrubRule(rule, caps))
	}

	scrubbed := FeatureDefinition{DefaultValue: def.DefaultValue}
	if len(rules) > 0 {
		scrubbed.Rules = rules
	}
	return scrubbed, true
}

func hasGate(rule FeatureRule) bool {
	for _, pc := range rule.ParentConditions {
		if pc.Gate {
			return true
		}
	}
	return false
}

// scrubRule reduces a rule to the keys the capability set allows. With
// looseUnmarshalling the rule passes through minus schedule metadata; strict
// SDKs get the explicit allow-list.
func scrubRule(rule FeatureRule, caps capability.Set) FeatureRule {
	rule.ScheduleRules = nil

	if caps.Has(capability.LooseUnmarshalling) {
		return rule
	}

	out := FeatureRule{
		Condition:     rule.Condition,
		Force:         rule.Force,
		Coverage:      rule.Coverage,
		HashAttribute: rule.HashAttribute,
		Variations:    rule.Variations,
		Weights:       rule.Weights,
		Key:           rule.Key,
	}
	if caps.Has(capability.BucketingV2) {
		out.HashVersion = rule.HashVersion
		out.Range = rule.Range
		out.Ranges = rule.Ranges
		out.Meta = rule.Meta
		out.Filters = rule.Filters
		out.Seed = rule.Seed
		out.Name = rule.Name
		out.Phase = rule.Phase
	}
	if caps.Has(capability.StickyBucketing) {
		out.FallbackAttribute = rule.FallbackAttribute
		out.DisableStickyBucketing = rule.DisableStickyBucketing
		out.BucketVersion = rule.BucketVersion
		out.MinBucketVersion = rule.MinBucketVersion
	}
	if caps.Has(capability.Prerequisites) {
		out.ParentConditions = rule.ParentConditions
	}
	return out
}

// ScrubExperiments filters and reduces the auto-experiment list for a
// capability set.
func ScrubExperiments(experiments []AutoExperiment, caps capability.Set) []AutoExperiment {
	out := make([]AutoExperiment, 0, len(experiments))

	for _, exp := range experiments {
		if exp.ChangeType == ChangeTypeRedirect && !caps.Has(capability.Redirects) {
			continue
		}
		out = append(out, scrubExperiment(exp, caps))
	}
	return out
}

func scrubExperiment(exp AutoExperiment, caps capability.Set) AutoExperiment {
	if caps.Has(capability.LooseUnmarshalling) {
		return exp
	}

	out := AutoExperiment{
		Key:           exp.Key,
		ChangeType:    exp.ChangeType,
		Variations:    exp.Variations,
		Weights:       exp.Weights,
		Coverage:      exp.Coverage,
		Condition:     exp.Condition,
		Namespace:     exp.Namespace,
		HashAttribute: exp.HashAttribute,
		URLPatterns:   exp.URLPatterns,
	}
	if caps.Has(capability.BucketingV2) {
		out.HashVersion = exp.HashVersion
		out.Meta = exp.Meta
		out.Seed = exp.Seed
		out.Name = exp.Name
		out.Phase = exp.Phase
	}
	return out
}

// ScrubHoldouts keeps only holdouts that are inside the requested project
// scope and still referenced by a shipped holdout_ rule, and prunes feature
// rules whose holdout was removed so no dangling prerequisite ships.
func ScrubHoldouts(holdouts []Holdout, projects []string, features map[string]FeatureDefinition) (map[string]FeatureDefinition, map[string]FeatureDefinition) {
	referenced := referencedHoldoutIDs(features)

	kept := make(map[string]FeatureDefinition)
	retained := make(map[string]bool)
	for _, h := range holdouts {
		if !projectsOverlap(h.Projects, projects) {
			continue
		}
		if !referenced[h.ID] {
			continue
		}
		kept[h.ID] = h.Definition
		retained[h.ID] = true
	}

	scrubbedFeatures := make(map[string]FeatureDefinition, len(features))
	for id, def := range features {
		rules := make([]FeatureRule, 0, len(def.Rules))
		for _, rule := range def.Rules {
			if holdoutID, ok := holdoutReference(rule); ok && !retained[holdoutID] {
				continue
			}
			rules = append(rules, rule)
		}
		def.Rules = nil
		if len(rules) > 0 {
			def.Rules = rules
		}
		scrubbedFeatures[id] = def
	}

	return kept, scrubbedFeatures
}

func referencedHoldoutIDs(features map[string]FeatureDefinition) map[string]bool {
	out := make(map[string]bool)
	for _, def := range features {
		for _, rule := range def.Rules {
			if id, ok := holdoutReference(rule); ok {
				out[id] = true
			}
		}
	}
	return out
}

// holdoutReference extracts the holdout id a generated holdout_ rule gates
// on, if any.
func holdoutReference(rule FeatureRule) (string, bool) {
	if !strings.HasPrefix(rule.ID, HoldoutRulePrefix) {
		return "", false
	}
	for _, pc := range rule.ParentConditions {
		if pc.ID != "" {
			return pc.ID, true
		}
	}
	return "", false
}

// projectsOverlap applies the payload project-visibility rule: an empty list
// on either side means "all projects".
func projectsOverlap(owned, requested []string) bool {
	if len(owned) == 0 || len(requested) == 0 {
		return true
	}
	for _, o := range owned {
		for _, r := range requested {
			if o == r {
				return true
			}
		}
	}
	return false
}

// removeNames strips experiment and variation names from a definition set
// without altering evaluation semantics.
func removeNames(features map[string]FeatureDefinition, experiments []AutoExperiment) (map[string]FeatureDefinition, []AutoExperiment) {
	outF := make(map[string]FeatureDefinition, len(features))
	for id, def := range features {
		rules := make([]FeatureRule, len(def.Rules))
		for i, rule := range def.Rules {
			rule.Name = ""
			rule.Meta = stripMetaNames(rule.Meta)
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
		exp.Name = ""
		exp.Meta = stripMetaNames(exp.Meta)
		outE[i] = exp
	}
	return outF, outE
}

// stripMetaNames removes the name field from each variation-meta entry.
// Meta entries are unordered objects, so a round trip through maps is safe
// here, unlike for conditions.
func stripMetaNames(meta json.RawMessage) json.RawMessage {
	if len(meta) == 0 {
		return meta
	}

	var entries []map[string]any
	if err := json.Unmarshal(meta, &entries); err != nil {
		return meta
	}
	for _, e := range entries {
		delete(e, "name")
	}
	out, err := json.Marshal(entries)
	if err != nil {
		return meta
	}
	return out
}
