package cdn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// maxKeysPerRequest is the purge endpoint's limit on surrogate keys
	// in a single request. Larger key sets are split into batches.
	maxKeysPerRequest = 256

	defaultTimeout       = 10 * time.Second
	defaultAPIKeyHeader  = "Fastly-Key"
	surrogateKeyHeader   = "surrogate-key"
	defaultUserAgent     = "flagkit-cdn/1.0"
	maxErrorBodyCaptured = 512
)

// SurrogateKey builds the cache tag for one organization and environment.
// Non-alphanumeric characters are stripped from both parts so the key is
// always safe to place in an HTTP header.
func SurrogateKey(orgID, environment string) string {
	return sanitize(orgID) + "_" + sanitize(environment)
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Purger issues surrogate-key purge requests against a single CDN service.
type Purger struct {
	endpoint     string
	apiKey       string
	apiKeyHeader string
	client       *http.Client
	timeout      time.Duration
	logger       *slog.Logger
}

// PurgerOption configures a Purger.
type PurgerOption func(*Purger)

// WithAPIKey sets the authentication token sent with each purge request.
func WithAPIKey(key string) PurgerOption {
	return func(p *Purger) {
		p.apiKey = key
	}
}

// WithAPIKeyHeader overrides the header the token is sent in.
// The default is "Fastly-Key".
func WithAPIKeyHeader(name string) PurgerOption {
	return func(p *Purger) {
		if name != "" {
			p.apiKeyHeader = name
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) PurgerOption {
	return func(p *Purger) {
		if client != nil {
			p.client = client
		}
	}
}

// WithTimeout bounds each purge request.
func WithTimeout(timeout time.Duration) PurgerOption {
	return func(p *Purger) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithLogger sets the logger for purge outcomes.
func WithLogger(logger *slog.Logger) PurgerOption {
	return func(p *Purger) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPurger creates a purger for the given purge endpoint.
func NewPurger(endpoint string, opts ...PurgerOption) (*Purger, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidConfiguration)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: endpoint must be http or https", ErrInvalidConfiguration)
	}

	p := &Purger{
		endpoint:     endpoint,
		apiKeyHeader: defaultAPIKeyHeader,
		client:       &http.Client{},
		timeout:      defaultTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Purge invalidates the given surrogate keys. Keys are deduplicated,
// split into batches of at most 256, and sent as one request per batch.
// The first batch failure aborts the remaining batches.
func (p *Purger) Purge(ctx context.Context, keys ...string) error {
	unique := dedupe(keys)
	if len(unique) == 0 {
		return nil
	}

	for start := 0; start < len(unique); start += maxKeysPerRequest {
		end := min(start+maxKeysPerRequest, len(unique))
		if err := p.purgeBatch(ctx, unique[start:end]); err != nil {
			return err
		}
	}

	p.logger.DebugContext(ctx, "cdn purge completed",
		slog.Int("keys", len(unique)))
	return nil
}

func (p *Purger) purgeBatch(ctx context.Context, keys []string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPurgeFailed, err)
	}
	req.Header.Set(surrogateKeyHeader, strings.Join(keys, " "))
	req.Header.Set("User-Agent", defaultUserAgent)
	if p.apiKey != "" {
		req.Header.Set(p.apiKeyHeader, p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPurgeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyCaptured))
		return fmt.Errorf("%w: status %d: %s", ErrPurgeFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
