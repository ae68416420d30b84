// Package proxy keeps self-hosted edge proxies in sync with the payload
// cache and tracks their health.
//
// Each SDK connection may have a proxy attached. The package covers both
// directions of that relationship:
//
//   - Push: after a payload change, the full feature payload is POSTed to
//     "<host>/proxy/features", signed with the proxy signing key using the
//     same header scheme as SDK webhooks. Pushes run as durable queue jobs
//     deduplicated per connection.
//   - Healthcheck: a periodic task GETs "<host>/healthcheck" and records
//     the reported proxy version, connectivity, and last error on the
//     connection record.
//
// Every proxy host gets its own circuit breaker so one unreachable proxy
// cannot slow down pushes to the healthy ones.
package proxy
