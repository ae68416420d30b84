// Package savedgroups expands saved-group references inside targeting
// conditions into concrete operators.
//
// A saved group is a named, reusable targeting rule: either an explicit value
// list bound to one attribute, or a stored condition document. Condition
// groups may themselves reference other groups through a $savedGroups key,
// which makes resolution a graph walk that must defend against cycles and
// runaway nesting.
//
// Resolution never fails. Broken references degrade to always-false marker
// objects spliced into the output so a single bad rule presents as broken
// instead of taking the whole payload down:
//
//	__sgCycle__    — the group participates in a reference cycle
//	__sgMaxDepth__ — nesting exceeded MaxDepth
//	__sgUnknown__  — the referenced group id does not exist
//	__sgInvalid__  — the group's stored condition is not valid JSON
//
// Callers decide per call site whether markers are acceptable (live payload
// generation) or a validation failure (draft validation) via HasErrorMarker.
package savedgroups
