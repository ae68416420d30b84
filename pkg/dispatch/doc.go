// Package dispatch turns payload changes into durable webhook delivery jobs.
//
// Each registered webhook gets at most one in-flight job at a time: jobs are
// deduplicated by webhook id through the queue's dedup keys, so saving a
// feature ten times while a delivery is pending produces a single delivery.
//
// Two generations of webhooks are supported. SDK webhooks are bound to SDK
// connections, receive new-style bodies
// ({"type":"payload.changed",...,"data":{"payload":...}}), and are retried
// once, five seconds after the first failure. Legacy webhooks predate SDK
// connections, are scoped to a project/environment pair, receive the old
// flat body, and are retried after 5s then 5m before the error is persisted
// on the webhook record. The slow legacy-features variant waits 30s before
// its first retry to give the upstream document store time to settle.
//
// Delivery itself is a single bounded attempt through pkg/webhook; all
// rescheduling is owned by the queue so jobs survive process restarts.
package dispatch
