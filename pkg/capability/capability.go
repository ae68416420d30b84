package capability

import "slices"

// Capability names a guarantee that an SDK version can correctly parse and
// evaluate a specific payload feature.
type Capability string

const (
	// LooseUnmarshalling means unknown payload keys are ignored instead of
	// failing the parse. SDKs without it get the strict-schema scrub.
	LooseUnmarshalling Capability = "looseUnmarshalling"
	// Encryption means the SDK can decrypt encrypted feature payloads.
	Encryption Capability = "encryption"
	// BucketingV2 covers the v2 hashing fields (hashVersion, ranges, meta,
	// filters, seed, name, phase).
	BucketingV2 Capability = "bucketingV2"
	// SemverTargeting covers semantic-version comparison operators.
	SemverTargeting Capability = "semverTargeting"
	// Prerequisites covers parentConditions gating rules on other features.
	Prerequisites Capability = "prerequisites"
	// StickyBucketing covers the sticky-bucket assignment fields.
	StickyBucketing Capability = "stickyBucketing"
	// SavedGroupReferences means saved groups may be passed by reference
	// instead of being inlined into each condition.
	SavedGroupReferences Capability = "savedGroupReferences"
	// Redirects covers URL-redirect auto experiments.
	Redirects Capability = "redirects"
	// VisualEditor covers DOM-mutation auto experiments.
	VisualEditor Capability = "visualEditor"
)

// Set is an unordered capability set.
type Set map[Capability]struct{}

// NewSet builds a set from the given capabilities.
func NewSet(caps ...Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether the capability is present.
func (s Set) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Intersect returns the capabilities present in both sets.
func (s Set) Intersect(other Set) Set {
	out := make(Set)
	for c := range s {
		if other.Has(c) {
			out[c] = struct{}{}
		}
	}
	return out
}

// Union returns the capabilities present in either set.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for c := range s {
		out[c] = struct{}{}
	}
	for c := range other {
		out[c] = struct{}{}
	}
	return out
}

// List returns the capabilities in lexical order for stable logging.
func (s Set) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
