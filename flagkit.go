package flagkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	mongodrv "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/flagkit/flagkit/pkg/cdn"
	"github.com/flagkit/flagkit/pkg/dispatch"
	"github.com/flagkit/flagkit/pkg/payload"
	"github.com/flagkit/flagkit/pkg/payloadcache"
	"github.com/flagkit/flagkit/pkg/propagate"
	"github.com/flagkit/flagkit/pkg/proxy"
	"github.com/flagkit/flagkit/pkg/queue"
	"github.com/flagkit/flagkit/pkg/server"
	"github.com/flagkit/flagkit/pkg/store"
	"github.com/flagkit/flagkit/pkg/telemetry"
)

const defaultHealthcheckInterval = time.Minute

// ErrMissingDependency is returned by New when a required dependency is nil.
var ErrMissingDependency = errors.New("missing required dependency")

// ConnectionRepository combines the connection reads of the propagation
// fan-out, the SDK endpoint and the proxy monitor. BySDKKey returns an error
// wrapping store.ErrNotFound for unknown keys.
type ConnectionRepository interface {
	ByOrganization(ctx context.Context, orgID string) ([]payload.SDKConnection, error)
	BySDKKey(ctx context.Context, sdkKey string) (payload.SDKConnection, error)
	proxy.Repository
}

// WebhookRepository combines webhook delivery-status persistence with the
// subscription lookups of the fan-out.
type WebhookRepository interface {
	dispatch.Repository
	SDKWebhookIDs(ctx context.Context, orgID, connectionID string) ([]string, error)
	LegacyWebhookIDs(ctx context.Context, orgID string, keys []payload.SDKPayloadKey) ([]string, error)
}

// TaskRepository is the durable task storage shared by the enqueuer, worker
// and scheduler.
type TaskRepository interface {
	queue.EnqueuerRepository
	queue.WorkerRepository
	queue.SchedulerRepository
}

// Dependencies are the storage backends the pipeline runs on.
type Dependencies struct {
	Source      payload.Source
	Cache       payloadcache.Cache
	Connections ConnectionRepository
	Webhooks    WebhookRepository
	Tasks       TaskRepository
}

// Pipeline is the assembled propagation service.
type Pipeline struct {
	cache       payloadcache.Cache
	payloads    *payloadSource
	builder     *payload.Builder
	dispatcher  *dispatch.Dispatcher
	monitor     *proxy.Monitor
	propagator  *propagate.Propagator
	worker      *queue.Worker
	scheduler   *queue.Scheduler
	purger      *cdn.Purger
	telemetry   *telemetry.Pipeline
	logger      *slog.Logger
	healthEvery time.Duration
	checks      []func(context.Context) error
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger shared by every stage.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.logger = log
		}
	}
}

// WithPurger enables CDN purging after each propagation cycle.
func WithPurger(purger *cdn.Purger) Option {
	return func(p *Pipeline) { p.purger = purger }
}

// WithTelemetry attaches OpenTelemetry instrumentation to propagation cycles.
func WithTelemetry(t *telemetry.Pipeline) Option {
	return func(p *Pipeline) { p.telemetry = t }
}

// WithHealthcheckInterval sets the proxy health-check cadence.
func WithHealthcheckInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.healthEvery = d
		}
	}
}

// WithHealthChecks adds readiness probes to the HTTP /healthz endpoint.
func WithHealthChecks(checks ...func(context.Context) error) Option {
	return func(p *Pipeline) { p.checks = append(p.checks, checks...) }
}

// New assembles the pipeline from its storage backends.
func New(deps Dependencies, opts ...Option) (*Pipeline, error) {
	if deps.Source == nil || deps.Cache == nil || deps.Connections == nil ||
		deps.Webhooks == nil || deps.Tasks == nil {
		return nil, ErrMissingDependency
	}

	p := &Pipeline{
		cache:       deps.Cache,
		logger:      slog.Default(),
		healthEvery: defaultHealthcheckInterval,
	}
	for _, opt := range opts {
		opt(p)
	}

	builder, err := payload.NewBuilder(deps.Source, payload.WithLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("build payload builder: %w", err)
	}
	p.builder = builder
	p.payloads = &payloadSource{
		cache:       deps.Cache,
		builder:     builder,
		connections: deps.Connections,
	}

	enqueuer, err := queue.NewEnqueuer(deps.Tasks)
	if err != nil {
		return nil, fmt.Errorf("build enqueuer: %w", err)
	}

	p.dispatcher, err = dispatch.NewDispatcher(deps.Webhooks, p.payloads, enqueuer,
		dispatch.WithLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	p.monitor, err = proxy.NewMonitor(deps.Connections, p.payloads, enqueuer,
		proxy.WithLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("build proxy monitor: %w", err)
	}

	propagatorOpts := []propagate.PropagatorOption{
		propagate.WithProxyEnqueuer(p.monitor),
		propagate.WithLogger(p.logger),
	}
	if p.purger != nil {
		propagatorOpts = append(propagatorOpts, propagate.WithPurger(p.purger))
	}
	if p.telemetry != nil {
		propagatorOpts = append(propagatorOpts, propagate.WithTelemetry(p.telemetry))
	}
	p.propagator, err = propagate.NewPropagator(builder, deps.Cache, deps.Connections,
		deps.Webhooks, p.dispatcher, propagatorOpts...)
	if err != nil {
		return nil, fmt.Errorf("build propagator: %w", err)
	}

	p.worker, err = queue.NewWorker(deps.Tasks, queue.WithWorkerLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("build worker: %w", err)
	}
	if err := p.worker.RegisterHandlers(p.dispatcher.Handlers()...); err != nil {
		return nil, fmt.Errorf("register dispatch handlers: %w", err)
	}
	if err := p.worker.RegisterHandlers(p.monitor.Handlers()...); err != nil {
		return nil, fmt.Errorf("register proxy handlers: %w", err)
	}

	p.scheduler, err = queue.NewScheduler(deps.Tasks, queue.WithSchedulerLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}
	if err := p.monitor.RegisterSchedule(p.scheduler, p.healthEvery); err != nil {
		return nil, fmt.Errorf("register health-check schedule: %w", err)
	}

	return p, nil
}

// NewWithDatabase assembles the pipeline over the default Mongo collections.
func NewWithDatabase(db *mongodrv.Database, opts ...Option) (*Pipeline, error) {
	if db == nil {
		return nil, ErrMissingDependency
	}
	return New(Dependencies{
		Source:      store.NewFeatureSource(db),
		Cache:       payloadcache.NewMongoStore(db),
		Connections: store.NewConnectionStore(db),
		Webhooks:    store.NewWebhookStore(db),
		Tasks:       store.NewTaskStore(db),
	}, opts...)
}

// Propagate runs one propagation cycle for a change event: the organization,
// the (environment, project) keys it touched and any explicitly targeted
// connection ids.
func (p *Pipeline) Propagate(ctx context.Context, orgID string, keys []payload.SDKPayloadKey, connectionIDs []string) (*propagate.Result, error) {
	return p.propagator.Propagate(ctx, orgID, keys, connectionIDs)
}

// Rebuild recomputes and caches the response body for one SDK key. It
// satisfies server.Rebuilder so cold cache entries are filled on demand.
func (p *Pipeline) Rebuild(ctx context.Context, sdkKey string) (payload.ResponseBody, error) {
	return p.payloads.rebuild(ctx, sdkKey)
}

// CheckProxies runs one proxy health-check sweep outside the schedule.
func (p *Pipeline) CheckProxies(ctx context.Context) error {
	return p.monitor.CheckAll(ctx)
}

// Router returns the SDK-facing HTTP routes.
func (p *Pipeline) Router() chi.Router {
	return server.Router(p.cache,
		server.WithLogger(p.logger),
		server.WithRebuilder(p),
		server.WithHealthChecks(p.checks...),
	)
}

// Run starts the queue worker and the periodic scheduler and blocks until
// the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.worker.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer func() {
		if err := p.worker.Stop(); err != nil {
			p.logger.Error("worker shutdown", slog.String("error", err.Error()))
		}
	}()

	if err := p.scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run scheduler: %w", err)
	}
	return nil
}

// payloadSource serves shaped payloads to the dispatcher, the proxy monitor
// and the HTTP surface, falling back to an on-demand rebuild on cache miss.
type payloadSource struct {
	cache       payloadcache.Cache
	builder     *payload.Builder
	connections ConnectionRepository
}

func (s *payloadSource) BySDKKey(ctx context.Context, sdkKey string) (payload.ResponseBody, error) {
	entry, err := s.cache.Get(ctx, sdkKey)
	if err == nil {
		return entry.Body, nil
	}
	if !errors.Is(err, payloadcache.ErrNotFound) {
		return payload.ResponseBody{}, fmt.Errorf("read payload cache: %w", err)
	}
	return s.rebuild(ctx, sdkKey)
}

func (s *payloadSource) ByEnvironment(ctx context.Context, organization, project, environment string) (payload.ResponseBody, error) {
	var projects []string
	if project != "" {
		projects = []string{project}
	}
	raw := s.builder.Build(ctx, organization, environment, projects)
	return raw.Shape(payload.SDKConnection{Environment: environment})
}

func (s *payloadSource) rebuild(ctx context.Context, sdkKey string) (payload.ResponseBody, error) {
	conn, err := s.connections.BySDKKey(ctx, sdkKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return payload.ResponseBody{}, fmt.Errorf("sdk key %q: %w", sdkKey, payloadcache.ErrNotFound)
		}
		return payload.ResponseBody{}, fmt.Errorf("lookup sdk connection: %w", err)
	}

	raw := s.builder.Build(ctx, conn.Organization, conn.Environment, conn.Projects)
	body, err := raw.Shape(conn)
	if err != nil {
		return payload.ResponseBody{}, fmt.Errorf("shape payload: %w", err)
	}
	if err := s.cache.Set(ctx, payloadcache.Entry{
		SDKKey:    conn.Key,
		Body:      body,
		UpdatedAt: body.DateUpdated,
	}); err != nil {
		return payload.ResponseBody{}, fmt.Errorf("write payload cache: %w", err)
	}
	return body, nil
}
