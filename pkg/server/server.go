package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flagkit/flagkit/pkg/httpserver"
	"github.com/flagkit/flagkit/pkg/logger"
	"github.com/flagkit/flagkit/pkg/payload"
	"github.com/flagkit/flagkit/pkg/payloadcache"
)

// Rebuilder recomputes the response body for an SDK key whose cache entry is
// missing. Implementations return an error wrapping payloadcache.ErrNotFound
// when the key does not belong to any connection.
type Rebuilder interface {
	Rebuild(ctx context.Context, sdkKey string) (payload.ResponseBody, error)
}

type config struct {
	logger       *slog.Logger
	rebuilder    Rebuilder
	healthChecks []func(context.Context) error
}

// Option configures the router.
type Option func(*config)

// WithLogger sets the logger for request failures.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithRebuilder enables on-demand payload recomputation on cache misses.
func WithRebuilder(r Rebuilder) Option {
	return func(c *config) { c.rebuilder = r }
}

// WithHealthChecks adds readiness checks to the /healthz probe.
func WithHealthChecks(checks ...func(context.Context) error) Option {
	return func(c *config) {
		c.healthChecks = append(c.healthChecks, checks...)
	}
}

// Router builds the SDK-facing HTTP routes over the payload cache.
func Router(cache payloadcache.Cache, opts ...Option) chi.Router {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &featuresHandler{
		cache:     cache,
		rebuilder: cfg.rebuilder,
		logger:    cfg.logger,
	}

	r := chi.NewRouter()
	r.Get("/healthz", httpserver.HealthCheckHandler(context.Background(), cfg.logger, cfg.healthChecks...))
	r.Get("/api/features/{key}", h.get)
	return r
}

type featuresHandler struct {
	cache     payloadcache.Cache
	rebuilder Rebuilder
	logger    *slog.Logger
}

func (h *featuresHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusNotFound, "unknown sdk key")
		return
	}

	entry, err := h.cache.Get(ctx, key)
	if err == nil {
		writeJSON(w, http.StatusOK, entry.Body)
		return
	}
	if !errors.Is(err, payloadcache.ErrNotFound) {
		h.logger.ErrorContext(ctx, "payload cache read failed",
			slog.String("sdk_key", key), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if h.rebuilder == nil {
		writeError(w, http.StatusNotFound, "unknown sdk key")
		return
	}

	body, err := h.rebuilder.Rebuild(ctx, key)
	if err != nil {
		if errors.Is(err, payloadcache.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown sdk key")
			return
		}
		h.logger.ErrorContext(ctx, "payload rebuild failed",
			slog.String("sdk_key", key), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
