package webhook

import (
	"net/http"
	"time"
)

// DeliveryResult contains information about a webhook delivery attempt
type DeliveryResult struct {
	Success    bool
	StatusCode int
	Attempt    int
	Duration   time.Duration
	Error      error
}

// DeliveryHook is called after each delivery attempt
type DeliveryHook func(result DeliveryResult)

// sendOptions contains all configurable options for a webhook send operation
type sendOptions struct {
	method          string
	timeout         time.Duration
	maxResponseSize int64
	headers         map[string]string
	httpClient      *http.Client

	maxRetries      int
	backoffStrategy BackoffStrategy

	signatureStyle  SignatureStyle
	signatureSecret string
	sdkKey          string
	signedAt        time.Time

	circuitBreaker *CircuitBreaker

	onDelivery DeliveryHook
}

// defaultSendOptions returns options with sensible defaults
func defaultSendOptions() *sendOptions {
	return &sendOptions{
		method:          http.MethodPost,
		timeout:         30 * time.Second,
		maxResponseSize: 1 << 20,
		headers:         make(map[string]string),
		maxRetries:      3,
		backoffStrategy: DefaultBackoffStrategy(),
		signatureStyle:  SignatureStyleStandard,
	}
}

// SendOption is a functional option for configuring webhook sends
type SendOption func(*sendOptions)

// WithMethod overrides the HTTP method. Webhook records may declare PUT or
// PATCH endpoints; the default is POST.
func WithMethod(method string) SendOption {
	return func(o *sendOptions) {
		if method != "" {
			o.method = method
		}
	}
}

// WithTimeout sets the HTTP request timeout.
// Default is 30 seconds if not specified.
func WithTimeout(timeout time.Duration) SendOption {
	return func(o *sendOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithMaxResponseSize caps how many response bytes are read before the
// request is aborted. The received status code survives the abort.
func WithMaxResponseSize(n int64) SendOption {
	return func(o *sendOptions) {
		if n > 0 {
			o.maxResponseSize = n
		}
	}
}

// WithHeader adds a custom header to the webhook request.
// Standard headers like Content-Type are set automatically.
func WithHeader(key, value string) SendOption {
	return func(o *sendOptions) {
		if key != "" && value != "" {
			o.headers[key] = value
		}
	}
}

// WithHeaders adds multiple custom headers to the webhook request.
func WithHeaders(headers map[string]string) SendOption {
	return func(o *sendOptions) {
		for k, v := range headers {
			if k != "" && v != "" {
				o.headers[k] = v
			}
		}
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
// Default is 3 if not specified. Set to 0 to disable retries.
func WithMaxRetries(n int) SendOption {
	return func(o *sendOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithBackoff sets the backoff strategy for retries.
// Default is exponential backoff with jitter.
func WithBackoff(strategy BackoffStrategy) SendOption {
	return func(o *sendOptions) {
		if strategy != nil {
			o.backoffStrategy = strategy
		}
	}
}

// WithSignature enables HMAC-SHA256 signing with the given key, using the
// standard webhook-id/webhook-timestamp/webhook-secret headers. The SDK key
// feeds the delivery id.
func WithSignature(signingKey, sdkKey string) SendOption {
	return func(o *sendOptions) {
		o.signatureStyle = SignatureStyleStandard
		o.signatureSecret = signingKey
		o.sdkKey = sdkKey
	}
}

// WithLegacySignature enables HMAC-SHA256 signing delivered in a single
// X-GrowthBook-Signature header.
func WithLegacySignature(signingKey string) SendOption {
	return func(o *sendOptions) {
		o.signatureStyle = SignatureStyleLegacy
		o.signatureSecret = signingKey
	}
}

// WithSignedAt pins the signature timestamp. Retries of a delivery pass the
// original timestamp so the receiver-side delivery id stays stable.
func WithSignedAt(at time.Time) SendOption {
	return func(o *sendOptions) {
		o.signedAt = at
	}
}

// WithHTTPClient sets a custom HTTP client for the request.
// Useful for custom transports, proxies, or testing.
func WithHTTPClient(client *http.Client) SendOption {
	return func(o *sendOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithCircuitBreaker enables circuit breaker protection for the endpoint.
// Reuse the same instance per endpoint to track failure state across requests.
func WithCircuitBreaker(cb *CircuitBreaker) SendOption {
	return func(o *sendOptions) {
		o.circuitBreaker = cb
	}
}

// WithOnDelivery sets a callback that's invoked after each delivery attempt.
// Useful for logging, metrics, or custom retry logic.
func WithOnDelivery(hook DeliveryHook) SendOption {
	return func(o *sendOptions) {
		o.onDelivery = hook
	}
}

// WithBasicRetry configures simple retry behavior with fixed intervals.
// Suitable for testing or when you need predictable retry timing.
func WithBasicRetry(attempts int, interval time.Duration) SendOption {
	return func(o *sendOptions) {
		o.maxRetries = attempts
		o.backoffStrategy = FixedBackoff{Interval: interval}
	}
}

// WithExponentialRetry configures exponential backoff with jitter.
func WithExponentialRetry(attempts int, initialInterval, maxInterval time.Duration) SendOption {
	return func(o *sendOptions) {
		o.maxRetries = attempts
		o.backoffStrategy = ExponentialBackoff{
			InitialInterval: initialInterval,
			MaxInterval:     maxInterval,
			Multiplier:      2,
			JitterFactor:    0.1,
		}
	}
}

// WithNoRetry disables in-process retries. The durable queue reschedules the
// whole job instead.
func WithNoRetry() SendOption {
	return func(o *sendOptions) {
		o.maxRetries = 0
	}
}
