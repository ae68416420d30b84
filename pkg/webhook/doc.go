// Package webhook provides signed HTTP webhook delivery with bounded
// transport, request signing, and circuit breaker protection.
//
// This is a low-level utility package that handles the mechanics of webhook
// delivery without business logic or persistence. The pkg/dispatch package
// builds durable, queue-backed delivery jobs on top of this foundation.
//
// # Key Features
//
// - Bounded HTTP delivery: hard timeout plus a response-size cap, with the
//   received status preserved when either aborts the request
// - HMAC-SHA256 body signing in two header styles (legacy and standard)
// - Optional in-process retries with backoff for callers without a queue
// - Circuit breaker to prevent hammering failed endpoints
// - Delivery hooks for metrics, logging, and custom handling
//
// # Basic Usage
//
//	sender := webhook.NewSender()
//	err := sender.SendRaw(ctx, "https://api.example.com/webhook",
//	    []byte(`{"type":"payload.changed"}`),
//	    webhook.WithSignature(signingKey, sdkKey),
//	    webhook.WithNoRetry(),
//	)
//
// # Request Signing
//
// The signature is always HMAC-SHA256(signingKey, body), hex encoded, over
// the exact bytes on the wire. WithSignature uses the standard header trio:
//
//	webhook-id:        msg_<md5(sdkKey + timestamp)>
//	webhook-timestamp: Unix timestamp of the delivery
//	webhook-secret:    whsec_<signature>
//
// WithLegacySignature sends the bare digest in X-GrowthBook-Signature
// instead, for endpoints registered before SDK connections existed.
// Receivers verify with VerifyBody. WithSignedAt pins the timestamp so a
// retried delivery keeps the same webhook-id.
//
// # Retry Logic
//
// Queue-driven callers should pass WithNoRetry and let the job queue own
// rescheduling. For direct callers, the package distinguishes permanent
// failures (most 4xx codes) from temporary ones (5xx, network errors,
// timeouts, 408/425/429) and retries only the latter, with exponential,
// linear, or fixed backoff.
//
// # Circuit Breaker
//
//	cb := webhook.NewCircuitBreaker(
//	    5,                // Failure threshold
//	    2,                // Success threshold to close
//	    30 * time.Second, // Recovery timeout
//	)
//	err := sender.SendRaw(ctx, url, payload, webhook.WithCircuitBreaker(cb))
//
// Reuse the same circuit breaker per endpoint, not per request. The proxy
// client wraps its update pushes with one so a dead proxy host stops
// consuming delivery capacity.
package webhook
