package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/flagkit/flagkit/pkg/queue"
	"github.com/flagkit/flagkit/pkg/webhook"
)

// Task names registered on the queue worker.
const (
	taskSDKWebhook     = "webhook.sdk"
	taskLegacyWebhook  = "webhook.legacy"
	taskLegacyFeatures = "webhook.legacy_features"
)

// Retry schedules per job kind. The number of entries is the retry budget;
// after the last entry the job is abandoned and the error stays on the
// webhook record.
var (
	SDKRetrySchedule            = []time.Duration{5 * time.Second}
	LegacyRetrySchedule         = []time.Duration{5 * time.Second, 5 * time.Minute}
	LegacyFeaturesRetrySchedule = []time.Duration{30 * time.Second, 5 * time.Minute}
)

// SDKWebhookJob is the queue payload for one SDK webhook delivery. The
// timestamp is fixed at enqueue time so retries reuse the same delivery id.
type SDKWebhookJob struct {
	WebhookID string `json:"webhook_id"`
	SDKKey    string `json:"sdk_key"`
	Timestamp int64  `json:"timestamp"`
}

// LegacyWebhookJob is the queue payload for a legacy webhook refresh.
type LegacyWebhookJob struct {
	WebhookID string `json:"webhook_id"`
}

// Dispatcher enqueues and executes webhook delivery jobs.
type Dispatcher struct {
	repo     Repository
	payloads PayloadSource
	enqueuer *queue.Enqueuer
	sender   *webhook.Sender

	timeout         time.Duration
	maxResponseSize int64
	logger          *slog.Logger
	now             func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger used for delivery outcomes.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTimeout bounds each delivery attempt.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithMaxResponseSize caps the response bytes read per attempt.
func WithMaxResponseSize(n int64) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxResponseSize = n
		}
	}
}

// WithHTTPClient overrides the delivery transport, mainly for tests.
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) {
		d.sender = webhook.NewSenderWithClient(client)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher creates a webhook dispatcher over the given collaborators.
func NewDispatcher(repo Repository, payloads PayloadSource, enqueuer *queue.Enqueuer, opts ...DispatcherOption) (*Dispatcher, error) {
	if repo == nil || payloads == nil || enqueuer == nil {
		return nil, ErrRepositoryNil
	}

	d := &Dispatcher{
		repo:            repo,
		payloads:        payloads,
		enqueuer:        enqueuer,
		sender:          webhook.NewSender(),
		timeout:         30 * time.Second,
		maxResponseSize: 1 << 20,
		logger:          slog.Default(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// EnqueueSDK schedules a delivery for one SDK webhook and connection. A
// delivery already in flight for the webhook absorbs this one.
func (d *Dispatcher) EnqueueSDK(ctx context.Context, webhookID, sdkKey string, opts ...queue.EnqueueOption) error {
	job := SDKWebhookJob{
		WebhookID: webhookID,
		SDKKey:    sdkKey,
		Timestamp: d.now().Unix(),
	}
	return d.enqueue(ctx, job, taskSDKWebhook, "sdk:"+webhookID, SDKRetrySchedule, opts...)
}

// EnqueueLegacy schedules a legacy webhook refresh.
func (d *Dispatcher) EnqueueLegacy(ctx context.Context, webhookID string, opts ...queue.EnqueueOption) error {
	job := LegacyWebhookJob{WebhookID: webhookID}
	return d.enqueue(ctx, job, taskLegacyWebhook, "legacy:"+webhookID, LegacyRetrySchedule, opts...)
}

// EnqueueLegacyFeatures schedules the slow legacy-features refresh, which
// waits longer before its first retry.
func (d *Dispatcher) EnqueueLegacyFeatures(ctx context.Context, webhookID string, opts ...queue.EnqueueOption) error {
	job := LegacyWebhookJob{WebhookID: webhookID}
	return d.enqueue(ctx, job, taskLegacyFeatures, "legacy-features:"+webhookID, LegacyFeaturesRetrySchedule, opts...)
}

func (d *Dispatcher) enqueue(ctx context.Context, job any, task, dedupKey string, schedule []time.Duration, opts ...queue.EnqueueOption) error {
	err := d.enqueuer.Enqueue(ctx, job,
		append([]queue.EnqueueOption{
			queue.WithTaskName(task),
			queue.WithDedupKey(dedupKey),
			queue.WithRetrySchedule(schedule...),
		}, opts...)...,
	)
	if errors.Is(err, queue.ErrDuplicateTask) {
		// A delivery for this webhook is already pending; it will pick up
		// the latest payload when it runs.
		d.logger.Debug("webhook delivery already in flight",
			slog.String("task", task),
			slog.String("dedup_key", dedupKey))
		return nil
	}
	return err
}

// Handlers returns the queue handlers to register on a worker.
func (d *Dispatcher) Handlers() []queue.Handler {
	return []queue.Handler{
		jobHandler{name: taskSDKWebhook, fn: d.handleSDK},
		jobHandler{name: taskLegacyWebhook, fn: d.handleLegacy},
		jobHandler{name: taskLegacyFeatures, fn: d.handleLegacy},
	}
}

type jobHandler struct {
	name string
	fn   func(ctx context.Context, raw json.RawMessage) error
}

func (h jobHandler) Name() string { return h.name }

func (h jobHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	return h.fn(ctx, raw)
}

func (d *Dispatcher) handleSDK(ctx context.Context, raw json.RawMessage) error {
	var job SDKWebhookJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("unmarshaling sdk webhook job: %w", err)
	}

	wh, err := d.repo.Get(ctx, job.WebhookID)
	if err != nil {
		return fmt.Errorf("loading webhook %s: %w", job.WebhookID, err)
	}

	response, err := d.payloads.BySDKKey(ctx, job.SDKKey)
	if err != nil {
		return fmt.Errorf("loading payload for %s: %w", job.SDKKey, err)
	}

	at := time.Unix(job.Timestamp, 0)
	body, err := NewStyleBody(wh.PayloadFormat, response, at)
	if err != nil {
		return err
	}

	opts := d.sendOptions(wh)
	if wh.SigningKey != "" {
		opts = append(opts,
			webhook.WithSignature(wh.SigningKey, job.SDKKey),
			webhook.WithSignedAt(at),
		)
	}
	return d.deliver(ctx, wh, body, opts)
}

func (d *Dispatcher) handleLegacy(ctx context.Context, raw json.RawMessage) error {
	var job LegacyWebhookJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("unmarshaling legacy webhook job: %w", err)
	}

	wh, err := d.repo.Get(ctx, job.WebhookID)
	if err != nil {
		return fmt.Errorf("loading webhook %s: %w", job.WebhookID, err)
	}

	response, err := d.payloads.ByEnvironment(ctx, wh.Organization, wh.Project, wh.Environment)
	if err != nil {
		return fmt.Errorf("building payload for webhook %s: %w", wh.ID, err)
	}

	body, err := LegacyBody(response, d.now())
	if err != nil {
		return err
	}

	opts := d.sendOptions(wh)
	if wh.SigningKey != "" {
		opts = append(opts, webhook.WithLegacySignature(wh.SigningKey))
	}
	return d.deliver(ctx, wh, body, opts)
}

func (d *Dispatcher) sendOptions(wh Webhook) []webhook.SendOption {
	opts := []webhook.SendOption{
		webhook.WithNoRetry(),
		webhook.WithTimeout(d.timeout),
		webhook.WithMaxResponseSize(d.maxResponseSize),
	}
	if wh.HTTPMethod != "" {
		opts = append(opts, webhook.WithMethod(wh.HTTPMethod))
	}
	if headers := wh.ExtraHeaders(); headers != nil {
		opts = append(opts, webhook.WithHeaders(headers))
	}
	return opts
}

// deliver makes a single delivery attempt and persists the outcome. A failed
// attempt records its error immediately, so the webhook record always shows
// the latest failure even before the job exhausts its retries.
func (d *Dispatcher) deliver(ctx context.Context, wh Webhook, body []byte, opts []webhook.SendOption) error {
	err := d.sender.SendRaw(ctx, wh.Endpoint, body, opts...)
	if err != nil {
		if persistErr := d.repo.RecordFailure(ctx, wh.ID, err.Error()); persistErr != nil {
			d.logger.Error("persisting webhook failure",
				slog.String("webhook", wh.ID),
				slog.String("error", persistErr.Error()))
		}
		d.logger.Warn("webhook delivery failed",
			slog.String("webhook", wh.ID),
			slog.String("endpoint", wh.Endpoint),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	if err := d.repo.RecordSuccess(ctx, wh.ID, d.now()); err != nil {
		d.logger.Error("persisting webhook success",
			slog.String("webhook", wh.ID),
			slog.String("error", err.Error()))
	}
	d.logger.Info("webhook delivered",
		slog.String("webhook", wh.ID),
		slog.String("endpoint", wh.Endpoint))
	return nil
}
