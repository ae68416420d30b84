// Package payload assembles per-environment SDK payloads: the feature
// definition map and auto-experiment list an SDK fetches, shaped for one
// connection's capability set.
//
// Building is split in two phases so one expensive computation serves many
// connections:
//
//  1. Build produces a Raw payload for an (organization, environment,
//     projects) triple: environment-specific feature definitions with rule
//     ordering preserved exactly as authored, the auto-experiment list, raw
//     holdouts and the saved-group map.
//  2. Shape specializes a Raw payload for one SDK connection: experiment
//     filtering, name redaction, saved-group inlining or references,
//     secure-attribute hashing, the capability scrub and, when the
//     connection requests it, AES-CBC encryption.
//
// Build errors degrade to an empty payload rather than failing the request
// that triggered the rebuild; a missing payload is worse for feature serving
// than an empty one is.
package payload
