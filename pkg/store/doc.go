// Package store provides the MongoDB persistence layer for the propagation
// pipeline: SDK connections, outbound webhooks, the raw feature-flag source
// collections, and the durable task queue.
//
// Each store wraps a collection of an existing admin-owned database. The
// pipeline only reads the authoring collections (features, experiments,
// holdouts, saved groups, organizations) and owns the queue collections plus
// the delivery-status fields on connections and webhooks.
//
// # Usage
//
//	db, err := mongo.NewWithDatabase(ctx, mongo.Config{ConnectionURL: url, DatabaseName: "flagkit"})
//	if err != nil { ... }
//
//	conns := store.NewConnectionStore(db)
//	hooks := store.NewWebhookStore(db)
//	source := store.NewFeatureSource(db)
//	tasks := store.NewTaskStore(db)
//
// ConnectionStore satisfies both the propagation fan-out's connection source
// and the proxy monitor's repository. TaskStore satisfies every queue
// repository interface, so one instance backs the enqueuer, worker and
// scheduler. Call TaskStore.EnsureIndexes once at startup; the dedup
// guarantee relies on its partial unique index.
package store
