// Package cdn purges edge caches after a payload change.
//
// Cached SDK responses are tagged with surrogate keys of the form
// "{orgID}_{environment}" (non-alphanumeric characters stripped), so
// one purge request invalidates every cached URL for an organization
// and environment without enumerating paths. The purger batches keys
// at 256 per request and joins each batch with spaces in the
// "surrogate-key" header, which is the format Fastly-compatible
// purge endpoints expect.
//
// Purge failures are returned to the caller but are expected to be
// logged and swallowed by the propagation layer; a missed purge only
// extends cache staleness until the TTL expires.
//
// Example:
//
//	purger, err := cdn.NewPurger("https://api.fastly.com/service/abc123/purge",
//		cdn.WithAPIKey("fastly-token"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	key := cdn.SurrogateKey("org_123", "production")
//	if err := purger.Purge(ctx, key); err != nil {
//		slog.Warn("cdn purge failed", slog.Any("error", err))
//	}
package cdn
