// Package payloadcache stores assembled SDK payloads keyed by SDK key.
//
// The cache is the serving path for SDK clients: every propagation cycle
// ends with a full-entry upsert here, and the features endpoint reads from
// here. Writes are always full replaces, never deltas, so concurrent
// propagation cycles for the same connection converge on the latest
// complete payload without coordination.
//
// Three implementations share the Cache interface:
//
//   - MongoStore: the durable store, one document per SDK key, replaced
//     on every upsert.
//   - RedisCache: full-replace SET of the serialized entry, for
//     multi-process deployments that want reads off the document store.
//   - Memory: a mutex-guarded map for tests and single-process setups.
//
// ReadThrough wraps any of them with a ristretto in-process front that is
// invalidated on upsert, keeping hot SDK keys off the backing store.
package payloadcache
