package flagkit_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flagkit "github.com/flagkit/flagkit"
	"github.com/flagkit/flagkit/pkg/dispatch"
	"github.com/flagkit/flagkit/pkg/payload"
	"github.com/flagkit/flagkit/pkg/payloadcache"
	"github.com/flagkit/flagkit/pkg/proxy"
	"github.com/flagkit/flagkit/pkg/queue"
	"github.com/flagkit/flagkit/pkg/savedgroups"
	"github.com/flagkit/flagkit/pkg/store"
)

type stubSource struct{}

func (stubSource) Settings(ctx context.Context, orgID string) (payload.OrgSettings, error) {
	return payload.OrgSettings{Environments: []string{"production"}}, nil
}

func (stubSource) Features(ctx context.Context, orgID string) ([]payload.Feature, error) {
	return []payload.Feature{{
		ID:           "checkout-redesign",
		Organization: orgID,
		DefaultValue: json.RawMessage(`false`),
		Environments: map[string]payload.EnvironmentConfig{
			"production": {Enabled: true},
		},
		DateUpdated: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}}, nil
}

func (stubSource) Experiments(ctx context.Context, orgID string) ([]payload.AutoExperiment, error) {
	return nil, nil
}

func (stubSource) Holdouts(ctx context.Context, orgID string) ([]payload.Holdout, error) {
	return nil, nil
}

func (stubSource) Groups(ctx context.Context, orgID string) ([]savedgroups.Group, error) {
	return nil, nil
}

type memConnections struct {
	conns []payload.SDKConnection
}

func (m *memConnections) ByOrganization(ctx context.Context, orgID string) ([]payload.SDKConnection, error) {
	var out []payload.SDKConnection
	for _, c := range m.conns {
		if c.Organization == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memConnections) BySDKKey(ctx context.Context, sdkKey string) (payload.SDKConnection, error) {
	for _, c := range m.conns {
		if c.Key == sdkKey {
			return c, nil
		}
	}
	return payload.SDKConnection{}, fmt.Errorf("sdk connection %q: %w", sdkKey, store.ErrNotFound)
}

func (m *memConnections) ListEnabled(ctx context.Context) ([]proxy.Endpoint, error) {
	var out []proxy.Endpoint
	for _, c := range m.conns {
		if c.Proxy.Enabled {
			out = append(out, proxy.Endpoint{ConnectionID: c.ID, SDKKey: c.Key, Host: c.Proxy.Host})
		}
	}
	return out, nil
}

func (m *memConnections) Lookup(ctx context.Context, connectionID string) (proxy.Endpoint, error) {
	for _, c := range m.conns {
		if c.ID == connectionID {
			return proxy.Endpoint{ConnectionID: c.ID, SDKKey: c.Key, Host: c.Proxy.Host}, nil
		}
	}
	return proxy.Endpoint{}, fmt.Errorf("sdk connection %q: %w", connectionID, store.ErrNotFound)
}

func (m *memConnections) UpdateStatus(ctx context.Context, connectionID string, status proxy.Status) error {
	return nil
}

type memWebhooks struct {
	hooks map[string]dispatch.Webhook
}

func (m *memWebhooks) Get(ctx context.Context, id string) (dispatch.Webhook, error) {
	wh, ok := m.hooks[id]
	if !ok {
		return dispatch.Webhook{}, fmt.Errorf("webhook %q: %w", id, store.ErrNotFound)
	}
	return wh, nil
}

func (m *memWebhooks) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (m *memWebhooks) RecordFailure(ctx context.Context, id string, message string) error {
	return nil
}

func (m *memWebhooks) SDKWebhookIDs(ctx context.Context, orgID, connectionID string) ([]string, error) {
	var ids []string
	for id, wh := range m.hooks {
		if wh.Organization == orgID && !wh.Legacy && slices.Contains(wh.SDKs, connectionID) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memWebhooks) LegacyWebhookIDs(ctx context.Context, orgID string, keys []payload.SDKPayloadKey) ([]string, error) {
	var ids []string
	for id, wh := range m.hooks {
		if wh.Organization == orgID && wh.Legacy {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func newTestPipeline(t *testing.T, opts ...flagkit.Option) (*flagkit.Pipeline, *queue.MemoryStorage) {
	t.Helper()

	tasks := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = tasks.Close() })

	conns := &memConnections{conns: []payload.SDKConnection{{
		ID:           "conn_1",
		Organization: "org1",
		Key:          "sdk-key-1",
		Environment:  "production",
	}}}
	hooks := &memWebhooks{hooks: map[string]dispatch.Webhook{
		"wh_1": {
			ID:           "wh_1",
			Organization: "org1",
			Endpoint:     "https://example.test/hook",
			SigningKey:   "secret",
			SDKs:         []string{"conn_1"},
		},
	}}

	p, err := flagkit.New(flagkit.Dependencies{
		Source:      stubSource{},
		Cache:       payloadcache.NewMemory(),
		Connections: conns,
		Webhooks:    hooks,
		Tasks:       tasks,
	}, opts...)
	require.NoError(t, err)
	return p, tasks
}

func TestNew_MissingDependencies(t *testing.T) {
	t.Parallel()

	_, err := flagkit.New(flagkit.Dependencies{})
	assert.ErrorIs(t, err, flagkit.ErrMissingDependency)

	_, err = flagkit.NewWithDatabase(nil)
	assert.ErrorIs(t, err, flagkit.ErrMissingDependency)
}

func TestPipeline_Propagate(t *testing.T) {
	t.Parallel()

	p, tasks := newTestPipeline(t)

	result, err := p.Propagate(context.Background(),
		"org1",
		[]payload.SDKPayloadKey{{Environment: "production"}},
		nil)
	require.NoError(t, err)

	assert.Equal(t, "done", result.State)
	assert.Equal(t, 1, result.Connections)
	assert.Empty(t, result.Failed())

	// The cycle enqueues a delayed delivery for the subscribed webhook.
	task, err := tasks.GetPendingTaskByName(context.Background(), "webhook.sdk")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Contains(t, string(task.Payload), "wh_1")
}

func TestPipeline_Rebuild(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t)

	body, err := p.Rebuild(context.Background(), "sdk-key-1")
	require.NoError(t, err)
	assert.Contains(t, body.Features, "checkout-redesign")

	_, err = p.Rebuild(context.Background(), "unknown-key")
	assert.ErrorIs(t, err, payloadcache.ErrNotFound)
}

func TestPipeline_Router(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t)

	srv := httptest.NewServer(p.Router())
	defer srv.Close()

	// Cold cache: the router rebuilds through the pipeline.
	resp, err := http.Get(srv.URL + "/api/features/sdk-key-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got payload.ResponseBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Contains(t, got.Features, "checkout-redesign")

	missing, err := http.Get(srv.URL + "/api/features/unknown-key")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}
