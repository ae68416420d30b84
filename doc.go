// Package flagkit wires the feature-flag change-propagation pipeline into a
// single runnable unit: payload building, the per-connection payload cache,
// webhook and proxy fan-out over the durable task queue, CDN purging and the
// SDK-facing HTTP surface.
//
// The individual stages live in their own packages (pkg/payload,
// pkg/propagate, pkg/dispatch, pkg/proxy, pkg/cdn, pkg/queue); this package
// only assembles them. Production deployments construct the pipeline from a
// Mongo database:
//
//	db, err := mongo.NewWithDatabase(ctx, cfg.Mongo)
//	if err != nil { ... }
//
//	pipeline, err := flagkit.NewWithDatabase(db, flagkit.WithLogger(log))
//	if err != nil { ... }
//
//	go pipeline.Run(ctx)
//	srv := httpserver.New(httpserver.WithAddr(cfg.HTTPAddr))
//	err = srv.Run(ctx, pipeline.Router())
//
// Feature changes enter through Propagate, which recomputes affected
// payloads, updates the cache, purges the CDN and fans deliveries out to
// webhooks and proxies. Run drives the background work: the queue worker
// processing deliveries and the scheduler firing periodic proxy health
// checks.
package flagkit
