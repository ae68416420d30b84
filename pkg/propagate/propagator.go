package propagate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/flagkit/flagkit/pkg/async"
	"github.com/flagkit/flagkit/pkg/cdn"
	"github.com/flagkit/flagkit/pkg/payload"
	"github.com/flagkit/flagkit/pkg/payloadcache"
	"github.com/flagkit/flagkit/pkg/queue"
	"github.com/flagkit/flagkit/pkg/telemetry"
)

const (
	defaultChunkSize = 5

	// defaultWebhookDelay holds webhook jobs back long enough for the
	// synchronous CDN purge to finish, preserving the
	// cache -> purge -> webhook ordering without a second queue pass.
	defaultWebhookDelay = 2 * time.Second
)

// Propagator runs propagation cycles.
type Propagator struct {
	builder     *payload.Builder
	cache       payloadcache.Cache
	connections ConnectionSource
	webhooks    WebhookSource
	dispatcher  WebhookEnqueuer

	proxies      ProxyEnqueuer
	purger       Purger
	telemetry    *telemetry.Pipeline
	logger       *slog.Logger
	chunkSize    int
	webhookDelay time.Duration
	now          func() time.Time
}

// PropagatorOption configures a Propagator.
type PropagatorOption func(*Propagator)

// WithProxyEnqueuer enables proxy push fan-out.
func WithProxyEnqueuer(proxies ProxyEnqueuer) PropagatorOption {
	return func(p *Propagator) {
		p.proxies = proxies
	}
}

// WithPurger enables CDN surrogate-key purges.
func WithPurger(purger Purger) PropagatorOption {
	return func(p *Propagator) {
		p.purger = purger
	}
}

// WithChunkSize bounds per-connection concurrency.
func WithChunkSize(n int) PropagatorOption {
	return func(p *Propagator) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithWebhookDelay overrides the scheduling delay on webhook jobs.
func WithWebhookDelay(d time.Duration) PropagatorOption {
	return func(p *Propagator) {
		if d >= 0 {
			p.webhookDelay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PropagatorOption {
	return func(p *Propagator) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTelemetry sets the pipeline instruments.
func WithTelemetry(t *telemetry.Pipeline) PropagatorOption {
	return func(p *Propagator) {
		p.telemetry = t
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) PropagatorOption {
	return func(p *Propagator) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPropagator creates a propagator. Proxy and CDN fan-out are optional;
// everything else is required.
func NewPropagator(
	builder *payload.Builder,
	cache payloadcache.Cache,
	connections ConnectionSource,
	webhooks WebhookSource,
	dispatcher WebhookEnqueuer,
	opts ...PropagatorOption,
) (*Propagator, error) {
	if builder == nil || cache == nil || connections == nil || webhooks == nil || dispatcher == nil {
		return nil, ErrDependencyNil
	}

	p := &Propagator{
		builder:      builder,
		cache:        cache,
		connections:  connections,
		webhooks:     webhooks,
		dispatcher:   dispatcher,
		logger:       slog.Default(),
		chunkSize:    defaultChunkSize,
		webhookDelay: defaultWebhookDelay,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.telemetry == nil {
		// Instruments against the global (possibly no-op) provider.
		p.telemetry, _ = telemetry.NewPipeline()
	}
	return p, nil
}

// connOutcome carries one connection's step results out of the chunked run.
type connOutcome struct {
	steps []StepResult
}

// Propagate runs one cycle for an organization. keys are the
// (environment, project) pairs the change touched; connectionIDs
// optionally force specific connections into the cycle regardless of key
// matching. The returned error is non-nil only when a payload cache write
// failed; every other failure lives on the Result.
func (p *Propagator) Propagate(ctx context.Context, orgID string, keys []payload.SDKPayloadKey, connectionIDs []string) (*Result, error) {
	start := p.now()
	machine := newCycleMachine()
	result := &Result{}

	ctx, span := p.telemetry.StartCycle(ctx, orgID)
	defer span.End()
	defer func() {
		result.State = machine.Current().Name()
		p.telemetry.RecordCycle(ctx, orgID, p.now().Sub(start), result.Connections)
	}()

	_ = machine.Fire(ctx, eventStart, nil)

	all, err := p.connections.ByOrganization(ctx, orgID)
	if err != nil {
		return result, fmt.Errorf("listing connections for %s: %w", orgID, err)
	}

	affected := filterConnections(all, keys, connectionIDs)
	result.Connections = len(affected)
	if len(affected) == 0 {
		_ = machine.Fire(ctx, eventCacheDone, nil)
		_ = machine.Fire(ctx, eventFanOut, nil)
		_ = machine.Fire(ctx, eventFinish, nil)
		return result, nil
	}

	// One Raw build per distinct environment, shared across connections.
	raws := p.buildEnvironments(ctx, orgID, affected, keys)
	result.Environments = len(raws)

	outcomes := async.RunChunked(ctx, affected, p.chunkSize, func(ctx context.Context, conn payload.SDKConnection) (connOutcome, error) {
		return p.propagateConnection(ctx, orgID, conn, raws[conn.Environment])
	})

	var cacheErrs []error
	for i, outcome := range outcomes {
		result.Steps = append(result.Steps, outcome.Value.steps...)
		if outcome.Err != nil {
			cacheErrs = append(cacheErrs, fmt.Errorf("connection %s: %w", affected[i].ID, outcome.Err))
		}
	}
	_ = machine.Fire(ctx, eventCacheDone, nil)

	// Legacy webhooks are per environment, not per connection.
	result.Steps = append(result.Steps, p.fanOutLegacy(ctx, orgID, keys)...)
	_ = machine.Fire(ctx, eventFanOut, nil)

	if step, ran := p.purge(ctx, orgID, keys, affected); ran {
		result.Steps = append(result.Steps, step)
	}

	for _, step := range result.Steps {
		p.telemetry.RecordStep(ctx, step.Name, step.OK)
		if !step.OK {
			p.logger.WarnContext(ctx, "propagation step failed",
				slog.String("org_id", orgID),
				slog.String("step", step.Name),
				slog.Any("error", step.Err))
		}
	}

	_ = machine.Fire(ctx, eventFinish, nil)

	if len(cacheErrs) > 0 {
		return result, fmt.Errorf("%w: %w", ErrCacheWrite, errors.Join(cacheErrs...))
	}
	return result, nil
}

// filterConnections picks connections matching an affected key or named
// explicitly.
func filterConnections(all []payload.SDKConnection, keys []payload.SDKPayloadKey, connectionIDs []string) []payload.SDKConnection {
	var out []payload.SDKConnection
	for _, conn := range all {
		if slices.Contains(connectionIDs, conn.ID) {
			out = append(out, conn)
			continue
		}
		for _, key := range keys {
			if conn.Matches(key) {
				out = append(out, conn)
				break
			}
		}
	}
	return out
}

// buildEnvironments builds one Raw payload per distinct affected
// environment. The project filter is the union of the key projects for
// that environment; a key without a project widens the build to all
// projects.
func (p *Propagator) buildEnvironments(ctx context.Context, orgID string, conns []payload.SDKConnection, keys []payload.SDKPayloadKey) map[string]*payload.Raw {
	projectsByEnv := make(map[string][]string)
	unscoped := make(map[string]bool)
	for _, key := range keys {
		if key.Project == "" {
			unscoped[key.Environment] = true
			continue
		}
		if !slices.Contains(projectsByEnv[key.Environment], key.Project) {
			projectsByEnv[key.Environment] = append(projectsByEnv[key.Environment], key.Project)
		}
	}

	raws := make(map[string]*payload.Raw)
	for _, conn := range conns {
		if _, ok := raws[conn.Environment]; ok {
			continue
		}
		projects := projectsByEnv[conn.Environment]
		if unscoped[conn.Environment] {
			projects = nil
		}
		raws[conn.Environment] = p.builder.Build(ctx, orgID, conn.Environment, projects)
	}
	return raws
}

// propagateConnection shapes and stores one connection's payload, then
// queues its deliveries. Only the cache write failure is returned; every
// other outcome stays on the step list.
func (p *Propagator) propagateConnection(ctx context.Context, orgID string, conn payload.SDKConnection, raw *payload.Raw) (connOutcome, error) {
	var outcome connOutcome

	if raw == nil {
		outcome.steps = append(outcome.steps, StepResult{
			Name: StepShape,
			Err:  fmt.Errorf("no payload built for environment %s", conn.Environment),
		})
		return outcome, nil
	}

	body, err := raw.Shape(conn)
	if err != nil {
		outcome.steps = append(outcome.steps, StepResult{Name: StepShape, Err: err})
		return outcome, nil
	}
	outcome.steps = append(outcome.steps, StepResult{Name: StepShape, OK: true})

	entry := payloadcache.Entry{
		SDKKey:    conn.Key,
		Body:      body,
		UpdatedAt: p.now(),
	}
	if err := p.cache.Set(ctx, entry); err != nil {
		outcome.steps = append(outcome.steps, StepResult{Name: StepCacheUpsert, Err: err})
		return outcome, err
	}
	outcome.steps = append(outcome.steps, StepResult{Name: StepCacheUpsert, OK: true})

	outcome.steps = append(outcome.steps, p.fanOutSDKWebhooks(ctx, orgID, conn))

	if conn.Proxy.Enabled && p.proxies != nil {
		step := StepResult{Name: StepProxyPush, OK: true}
		if err := p.proxies.EnqueuePush(ctx, conn.ID); err != nil {
			step.OK = false
			step.Err = err
		}
		outcome.steps = append(outcome.steps, step)
	}

	return outcome, nil
}

func (p *Propagator) fanOutSDKWebhooks(ctx context.Context, orgID string, conn payload.SDKConnection) StepResult {
	step := StepResult{Name: StepSDKWebhook, OK: true}

	ids, err := p.webhooks.SDKWebhookIDs(ctx, orgID, conn.ID)
	if err != nil {
		step.OK = false
		step.Err = fmt.Errorf("listing webhooks for connection %s: %w", conn.ID, err)
		return step
	}

	for _, id := range ids {
		if err := p.dispatcher.EnqueueSDK(ctx, id, conn.Key, queue.WithDelay(p.webhookDelay)); err != nil {
			step.OK = false
			step.Err = err
		}
	}
	return step
}

func (p *Propagator) fanOutLegacy(ctx context.Context, orgID string, keys []payload.SDKPayloadKey) []StepResult {
	ids, err := p.webhooks.LegacyWebhookIDs(ctx, orgID, keys)
	if err != nil {
		return []StepResult{{Name: StepLegacy, Err: err}}
	}
	if len(ids) == 0 {
		return nil
	}

	step := StepResult{Name: StepLegacy, OK: true}
	for _, id := range ids {
		if err := p.dispatcher.EnqueueLegacy(ctx, id, queue.WithDelay(p.webhookDelay)); err != nil {
			step.OK = false
			step.Err = err
		}
	}
	return []StepResult{step}
}

// purge invalidates surrogate keys for every environment named by the
// change keys, plus environments of explicitly included connections that
// fall outside that set.
func (p *Propagator) purge(ctx context.Context, orgID string, keys []payload.SDKPayloadKey, conns []payload.SDKConnection) (StepResult, bool) {
	if p.purger == nil {
		return StepResult{}, false
	}

	envs := make(map[string]bool)
	for _, key := range keys {
		envs[key.Environment] = true
	}
	for _, conn := range conns {
		envs[conn.Environment] = true
	}

	surrogates := make([]string, 0, len(envs))
	for env := range envs {
		surrogates = append(surrogates, cdn.SurrogateKey(orgID, env))
	}
	slices.Sort(surrogates)

	step := StepResult{Name: StepCDNPurge, OK: true}
	if err := p.purger.Purge(ctx, surrogates...); err != nil {
		step.OK = false
		step.Err = err
	}
	return step, true
}
