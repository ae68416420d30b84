package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flagkit/flagkit/pkg/queue"
)

// Task names used for proxy jobs.
const (
	TaskPush        = "proxy.push"
	TaskHealthcheck = "proxy.healthcheck"
)

// PushSchedule retries a failed feature push once after 5s, then gives up.
// The next payload change supersedes the stale push anyway.
var PushSchedule = []time.Duration{5 * time.Second}

// PushJob is the queue payload for a feature push.
type PushJob struct {
	ConnectionID string `json:"connection_id"`
}

// Monitor drives proxy pushes and periodic healthchecks.
type Monitor struct {
	repo     Repository
	payloads PayloadSource
	enqueuer *queue.Enqueuer
	client   *Client
	logger   *slog.Logger
	now      func() time.Time
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClient sets a custom proxy client.
func WithClient(client *Client) MonitorOption {
	return func(m *Monitor) {
		if client != nil {
			m.client = client
		}
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMonitor creates a proxy monitor.
func NewMonitor(repo Repository, payloads PayloadSource, enqueuer *queue.Enqueuer, opts ...MonitorOption) (*Monitor, error) {
	if repo == nil || payloads == nil || enqueuer == nil {
		return nil, ErrRepositoryNil
	}

	m := &Monitor{
		repo:     repo,
		payloads: payloads,
		enqueuer: enqueuer,
		client:   NewClient(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// EnqueuePush schedules a feature push for one connection. At most one
// push job is pending per connection; a duplicate enqueue is a no-op.
func (m *Monitor) EnqueuePush(ctx context.Context, connectionID string) error {
	err := m.enqueuer.Enqueue(ctx, PushJob{ConnectionID: connectionID},
		queue.WithTaskName(TaskPush),
		queue.WithDedupKey("proxy:"+connectionID),
		queue.WithRetrySchedule(PushSchedule...),
	)
	if errors.Is(err, queue.ErrDuplicateTask) {
		m.logger.DebugContext(ctx, "proxy push already queued",
			slog.String("connection_id", connectionID))
		return nil
	}
	return err
}

// Push loads the connection's payload and delivers it to its proxy.
// Push failures are recorded on the connection before being returned.
func (m *Monitor) Push(ctx context.Context, connectionID string) error {
	ep, err := m.repo.Lookup(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("looking up proxy for connection %s: %w", connectionID, err)
	}

	body, err := m.payloads.BySDKKey(ctx, ep.SDKKey)
	if err != nil {
		return fmt.Errorf("loading payload for connection %s: %w", connectionID, err)
	}

	if err := m.client.PushFeatures(ctx, ep, body); err != nil {
		m.recordStatus(ctx, ep.ConnectionID, Status{
			Connected: false,
			Error:     err.Error(),
			CheckedAt: m.now(),
		})
		return err
	}

	m.logger.InfoContext(ctx, "proxy features pushed",
		slog.String("connection_id", connectionID),
		slog.String("host", ep.Host))
	return nil
}

// CheckAll healthchecks every enabled proxy and persists the outcome.
// Individual proxy failures are recorded and logged, not returned; the
// periodic task only fails when the connection list cannot be loaded.
func (m *Monitor) CheckAll(ctx context.Context) error {
	endpoints, err := m.repo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("listing proxies: %w", err)
	}

	for _, ep := range endpoints {
		version, err := m.client.Healthcheck(ctx, ep.Host)
		status := Status{CheckedAt: m.now()}
		if err != nil {
			status.Error = err.Error()
			m.logger.WarnContext(ctx, "proxy healthcheck failed",
				slog.String("connection_id", ep.ConnectionID),
				slog.String("host", ep.Host),
				slog.Any("error", err))
		} else {
			status.Connected = true
			status.Version = version
		}
		m.recordStatus(ctx, ep.ConnectionID, status)
	}
	return nil
}

func (m *Monitor) recordStatus(ctx context.Context, connectionID string, status Status) {
	if err := m.repo.UpdateStatus(ctx, connectionID, status); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist proxy status",
			slog.String("connection_id", connectionID),
			slog.Any("error", err))
	}
}

// Handlers returns the queue handlers for proxy jobs, ready to register
// with a worker.
func (m *Monitor) Handlers() []queue.Handler {
	return []queue.Handler{
		&pushHandler{monitor: m},
		queue.NewPeriodicTaskHandler(TaskHealthcheck, m.CheckAll),
	}
}

// RegisterSchedule adds the periodic healthcheck to a scheduler.
func (m *Monitor) RegisterSchedule(s *queue.Scheduler, every time.Duration) error {
	return s.AddTask(TaskHealthcheck, queue.EveryInterval(every))
}

type pushHandler struct {
	monitor *Monitor
}

func (h *pushHandler) Name() string { return TaskPush }

func (h *pushHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var job PushJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("unmarshaling push job: %w", err)
	}
	return h.monitor.Push(ctx, job.ConnectionID)
}
