package propagate

import (
	"context"

	"github.com/flagkit/flagkit/pkg/payload"
	"github.com/flagkit/flagkit/pkg/queue"
)

// ConnectionSource lists the SDK connections of an organization.
type ConnectionSource interface {
	ByOrganization(ctx context.Context, orgID string) ([]payload.SDKConnection, error)
}

// WebhookSource resolves which webhooks a cycle must notify.
type WebhookSource interface {
	// SDKWebhookIDs lists new-generation webhooks subscribed to a connection.
	SDKWebhookIDs(ctx context.Context, orgID, connectionID string) ([]string, error)

	// LegacyWebhookIDs lists legacy per-environment webhooks matching the
	// affected keys.
	LegacyWebhookIDs(ctx context.Context, orgID string, keys []payload.SDKPayloadKey) ([]string, error)
}

// WebhookEnqueuer schedules webhook deliveries. Satisfied by
// dispatch.Dispatcher.
type WebhookEnqueuer interface {
	EnqueueSDK(ctx context.Context, webhookID, sdkKey string, opts ...queue.EnqueueOption) error
	EnqueueLegacy(ctx context.Context, webhookID string, opts ...queue.EnqueueOption) error
}

// ProxyEnqueuer schedules proxy feature pushes. Satisfied by proxy.Monitor.
type ProxyEnqueuer interface {
	EnqueuePush(ctx context.Context, connectionID string) error
}

// Purger invalidates CDN surrogate keys. Satisfied by cdn.Purger.
type Purger interface {
	Purge(ctx context.Context, keys ...string) error
}

// Step names recorded on cycle results.
const (
	StepShape       = "payload.shape"
	StepCacheUpsert = "cache.upsert"
	StepSDKWebhook  = "webhook.sdk"
	StepLegacy      = "webhook.legacy"
	StepProxyPush   = "proxy.push"
	StepCDNPurge    = "cdn.purge"
)

// StepResult is the outcome of one fan-out step for one target.
type StepResult struct {
	Name string
	OK   bool
	Err  error
}

// Result summarizes a completed propagation cycle.
type Result struct {
	// State is the final state machine state, "done" on a completed cycle.
	State string

	// Steps lists every fan-out step outcome in execution order.
	Steps []StepResult

	// Connections is the number of affected SDK connections.
	Connections int

	// Environments is the number of distinct environments rebuilt.
	Environments int
}

// Failed returns the steps that did not succeed.
func (r *Result) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if !s.OK {
			out = append(out, s)
		}
	}
	return out
}
