// Package propagate orchestrates one change-propagation cycle: from a set
// of affected (environment, project) keys to refreshed payload caches,
// purged CDN tags, and queued webhook and proxy deliveries.
//
// A cycle runs inline in whatever handler detected the change; only the
// deliveries it fans out are asynchronous. Per-connection work runs through
// a bounded chunked runner so a large organization cannot burst-write the
// document store. Within a cycle the ordering guarantee is
//
//	cache upsert -> CDN purge -> webhook delivery
//
// which is preserved by purging synchronously after the chunked writes and
// enqueueing webhook jobs with a short delay, so a webhook consumer that
// refetches the payload never observes pre-purge cached data.
//
// Failures in webhooks, proxy pings, and CDN purges are recorded on the
// cycle Result and logged, never returned: a feature save must succeed even
// when every delivery target is down. Only payload cache write failures
// bubble, since a missing cache entry is user-visible serving breakage.
package propagate
