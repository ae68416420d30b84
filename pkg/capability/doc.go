// Package capability maps an SDK connection's declared languages and version
// onto the set of payload features those SDKs can safely consume.
//
// Each SDK language carries an ordered list of (version, capabilities added)
// entries plus language-wide always-on and never-on overrides. The table is
// immutable after package init, so capability resolution is a pure function
// of (language, version).
//
// A connection declaring multiple languages receives the intersection of the
// per-language sets: one payload must be consumable by every declared SDK,
// so the lowest common denominator wins.
package capability
