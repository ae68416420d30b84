package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/flagkit/flagkit/pkg/payload"
	"github.com/flagkit/flagkit/pkg/webhook"
)

const (
	healthcheckPath = "/healthcheck"
	featuresPath    = "/proxy/features"

	defaultTimeout         = 30 * time.Second
	defaultMaxResponseSize = 1 << 20
)

// Client talks to proxy instances. Safe for concurrent use; circuit
// breakers are shared across calls targeting the same host.
type Client struct {
	httpClient      *http.Client
	sender          *webhook.Sender
	timeout         time.Duration
	maxResponseSize int64

	mu       sync.Mutex
	breakers map[string]*webhook.CircuitBreaker
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for both healthchecks and pushes.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
			c.sender = webhook.NewSenderWithClient(client)
		}
	}
}

// WithTimeout bounds each proxy request.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithMaxResponseSize caps how much of a proxy response is read.
func WithMaxResponseSize(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxResponseSize = n
		}
	}
}

// NewClient creates a proxy client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:      &http.Client{},
		sender:          webhook.NewSender(),
		timeout:         defaultTimeout,
		maxResponseSize: defaultMaxResponseSize,
		breakers:        make(map[string]*webhook.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) breaker(host string) *webhook.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[host]
	if !ok {
		cb = webhook.NewCircuitBreaker(0, 0, 0)
		c.breakers[host] = cb
	}
	return cb
}

func normalizeHost(host string) (string, error) {
	host = strings.TrimRight(host, "/")
	if host == "" {
		return "", fmt.Errorf("%w: host is required", ErrInvalidHost)
	}
	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidHost, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: host must be http or https", ErrInvalidHost)
	}
	return host, nil
}

// Healthcheck probes a proxy and returns its reported version.
func (c *Client) Healthcheck(ctx context.Context, host string) (string, error) {
	host, err := normalizeHost(host)
	if err != nil {
		return "", err
	}

	cb := c.breaker(host)
	if !cb.Allow() {
		return "", fmt.Errorf("%w: circuit breaker open for %s", ErrHealthcheckFailed, host)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+healthcheckPath, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHealthcheckFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cb.RecordFailure()
		return "", fmt.Errorf("%w: %w", ErrHealthcheckFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	if err != nil {
		cb.RecordFailure()
		return "", fmt.Errorf("%w: reading response: %w", ErrHealthcheckFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cb.RecordFailure()
		return "", fmt.Errorf("%w: status %d", ErrHealthcheckFailed, resp.StatusCode)
	}

	var health struct {
		ProxyVersion string `json:"proxyVersion"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		cb.RecordFailure()
		return "", fmt.Errorf("%w: invalid response body: %w", ErrHealthcheckFailed, err)
	}

	cb.RecordSuccess()
	return health.ProxyVersion, nil
}

// PushFeatures delivers the full feature payload to a proxy, signed the
// same way SDK webhook deliveries are.
func (c *Client) PushFeatures(ctx context.Context, ep Endpoint, body payload.ResponseBody) error {
	host, err := normalizeHost(ep.Host)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: marshaling payload: %w", ErrPushFailed, err)
	}

	opts := []webhook.SendOption{
		webhook.WithNoRetry(),
		webhook.WithTimeout(c.timeout),
		webhook.WithMaxResponseSize(c.maxResponseSize),
		webhook.WithCircuitBreaker(c.breaker(host)),
	}
	if ep.SigningKey != "" {
		opts = append(opts, webhook.WithSignature(ep.SigningKey, ep.SDKKey))
	}

	if err := c.sender.SendRaw(ctx, host+featuresPath, raw, opts...); err != nil {
		return fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	return nil
}
