package capability

// versionEntry records the capabilities an SDK language gained at a minimum
// version. Entries are ordered ascending by version.
type versionEntry struct {
	minVersion string
	added      []Capability
}

// languageCaps is the full capability profile of one SDK language.
type languageCaps struct {
	// always are capabilities every version of the language has.
	always []Capability
	// never are language-wide overrides that no version may claim, even if
	// a shared entry would otherwise grant them.
	never []Capability
	// entries add capabilities at minimum versions, ordered ascending.
	entries []versionEntry
}

// table is loaded once at init and never mutated afterwards.
var table = map[string]languageCaps{
	"javascript": {
		always: []Capability{LooseUnmarshalling, Encryption},
		entries: []versionEntry{
			{"0.27.0", []Capability{BucketingV2}},
			{"0.29.0", []Capability{SemverTargeting}},
			{"0.31.0", []Capability{Prerequisites}},
			{"0.32.0", []Capability{StickyBucketing, VisualEditor}},
			{"0.36.0", []Capability{SavedGroupReferences}},
			{"0.36.1", []Capability{Redirects}},
		},
	},
	"nodejs": {
		always: []Capability{LooseUnmarshalling, Encryption},
		never:  []Capability{VisualEditor, Redirects},
		entries: []versionEntry{
			{"0.27.0", []Capability{BucketingV2}},
			{"0.29.0", []Capability{SemverTargeting}},
			{"0.31.0", []Capability{Prerequisites}},
			{"0.32.0", []Capability{StickyBucketing}},
			{"0.36.0", []Capability{SavedGroupReferences}},
		},
	},
	"react": {
		always: []Capability{LooseUnmarshalling, Encryption},
		entries: []versionEntry{
			{"0.22.0", []Capability{BucketingV2}},
			{"0.24.0", []Capability{SemverTargeting}},
			{"0.25.0", []Capability{Prerequisites, StickyBucketing, VisualEditor}},
			{"0.34.0", []Capability{SavedGroupReferences}},
			{"0.34.1", []Capability{Redirects}},
		},
	},
	"go": {
		always: []Capability{LooseUnmarshalling, Encryption},
		never:  []Capability{VisualEditor, Redirects},
		entries: []versionEntry{
			{"0.2.0", []Capability{BucketingV2, SemverTargeting}},
			{"0.2.2", []Capability{Prerequisites}},
			{"1.0.0", []Capability{SavedGroupReferences}},
		},
	},
	"php": {
		always: []Capability{LooseUnmarshalling, Encryption},
		never:  []Capability{VisualEditor, Redirects},
		entries: []versionEntry{
			{"1.2.0", []Capability{BucketingV2}},
			{"1.5.0", []Capability{SemverTargeting}},
			{"1.9.0", []Capability{Prerequisites, StickyBucketing}},
			{"1.10.0", []Capability{SavedGroupReferences}},
		},
	},
	"python": {
		always: []Capability{LooseUnmarshalling, Encryption},
		never:  []Capability{VisualEditor, Redirects},
		entries: []versionEntry{
			{"1.0.0", []Capability{BucketingV2}},
			{"1.1.0", []Capability{SemverTargeting, StickyBucketing}},
			{"1.2.0", []Capability{Prerequisites}},
			{"1.4.0", []Capability{SavedGroupReferences}},
		},
	},
	"ruby": {
		always: []Capability{LooseUnmarshalling, Encryption},
		never:  []Capability{VisualEditor, Redirects},
		entries: []versionEntry{
			{"1.1.0", []Capability{BucketingV2}},
			{"1.2.0", []Capability{SemverTargeting}},
			{"1.3.0", []Capability{Prerequisites, StickyBucketing}},
		},
	},
	// The JVM and .NET SDKs deserialize with strict schemas, so they never
	// get looseUnmarshalling and rely on the allow-list scrub.
	"java": {
		always: []Capability{Encryption},
		never:  []Capability{LooseUnmarshalling, VisualEditor, Redirects},
		entries: []versionEntry{
			{"0.9.0", []Capability{BucketingV2}},
			{"0.9.5", []Capability{SemverTargeting}},
			{"0.9.9", []Capability{Prerequisites}},
		},
	},
	"csharp": {
		always: []Capability{Encryption},
		never:  []Capability{LooseUnmarshalling, VisualEditor, Redirects},
		entries: []versionEntry{
			{"1.0.0", []Capability{BucketingV2}},
			{"1.0.2", []Capability{SemverTargeting}},
		},
	},
	"android": {
		always: []Capability{Encryption},
		never:  []Capability{LooseUnmarshalling, VisualEditor, Redirects},
		entries: []versionEntry{
			{"1.1.43", []Capability{BucketingV2}},
			{"1.1.45", []Capability{SemverTargeting}},
			{"1.1.60", []Capability{Prerequisites, StickyBucketing}},
		},
	},
	"ios": {
		always: []Capability{Encryption},
		never:  []Capability{LooseUnmarshalling, VisualEditor, Redirects},
		entries: []versionEntry{
			{"1.0.44", []Capability{BucketingV2}},
			{"1.0.48", []Capability{SemverTargeting}},
		},
	},
	"flutter": {
		always: []Capability{Encryption},
		never:  []Capability{LooseUnmarshalling, VisualEditor, Redirects},
		entries: []versionEntry{
			{"1.1.2", []Capability{BucketingV2}},
			{"3.9.6", []Capability{SemverTargeting, StickyBucketing}},
		},
	},
}

// ForLanguage resolves the effective capability set of one SDK language at
// the declared version. Unknown languages resolve to the empty set, which
// produces the most conservative scrub. An empty version grants only the
// language's always-on capabilities.
func ForLanguage(language, version string) Set {
	lang, ok := table[language]
	if !ok {
		return NewSet()
	}

	set := NewSet(lang.always...)
	if version != "" {
		for _, entry := range lang.entries {
			if CompareVersions(version, entry.minVersion) < 0 {
				break
			}
			for _, c := range entry.added {
				set[c] = struct{}{}
			}
		}
	}
	for _, c := range lang.never {
		delete(set, c)
	}
	return set
}

// ForLanguages resolves the effective set for a connection declaring one or
// more languages at a single version: the intersection of every language's
// set. No declared languages resolves to the empty set.
func ForLanguages(languages []string, version string) Set {
	if len(languages) == 0 {
		return NewSet()
	}

	set := ForLanguage(languages[0], version)
	for _, language := range languages[1:] {
		set = set.Intersect(ForLanguage(language, version))
	}
	return set
}

// Languages lists the languages known to the table, for validation surfaces.
func Languages() []string {
	out := make([]string, 0, len(table))
	for l := range table {
		out = append(out, l)
	}
	return out
}
