// Package server exposes the SDK-facing HTTP surface: the per-connection
// feature payload endpoint backed by the payload cache, plus health probes.
//
// The router is a chi.Router so callers can mount it under a prefix or
// combine it with other handlers before passing it to httpserver.Server.
//
//	r := server.Router(cache,
//		server.WithLogger(log),
//		server.WithRebuilder(pipeline),
//		server.WithHealthChecks(mongoCheck, redisCheck),
//	)
//	srv := httpserver.New(httpserver.WithAddr(":8080"))
//	err := srv.Run(ctx, r)
//
// GET /api/features/{key} serves the cached response body for the SDK key.
// Unknown keys return 404. When a Rebuilder is configured a cache miss for a
// known key is recomputed on demand instead of 404ing, which covers fresh
// deployments whose cache has not been warmed by a propagation cycle yet.
package server
