package payloadcache_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagkit/flagkit/pkg/payload"
	"github.com/flagkit/flagkit/pkg/payloadcache"
)

// countingCache wraps Memory and counts backing reads.
type countingCache struct {
	*payloadcache.Memory
	mu   sync.Mutex
	gets int
}

func (c *countingCache) Get(ctx context.Context, sdkKey string) (payloadcache.Entry, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.Memory.Get(ctx, sdkKey)
}

func (c *countingCache) getCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets
}

func testEntry(sdkKey, flagValue string) payloadcache.Entry {
	return payloadcache.Entry{
		SDKKey: sdkKey,
		Body: payload.ResponseBody{
			Features: map[string]payload.FeatureDefinition{
				"flag": {DefaultValue: json.RawMessage(flagValue)},
			},
			DateUpdated: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		UpdatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemory(t *testing.T) {
	t.Parallel()

	cache := payloadcache.NewMemory()
	ctx := context.Background()

	_, err := cache.Get(ctx, "sdk-1")
	assert.ErrorIs(t, err, payloadcache.ErrNotFound)

	require.NoError(t, cache.Set(ctx, testEntry("sdk-1", `true`)))
	entry, err := cache.Get(ctx, "sdk-1")
	require.NoError(t, err)
	assert.Equal(t, "sdk-1", entry.SDKKey)
	assert.JSONEq(t, `true`, string(entry.Body.Features["flag"].DefaultValue))

	// Full replace, not a merge
	require.NoError(t, cache.Set(ctx, testEntry("sdk-1", `false`)))
	entry, err = cache.Get(ctx, "sdk-1")
	require.NoError(t, err)
	assert.JSONEq(t, `false`, string(entry.Body.Features["flag"].DefaultValue))
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, cache.Delete(ctx, "sdk-1"))
	_, err = cache.Get(ctx, "sdk-1")
	assert.ErrorIs(t, err, payloadcache.ErrNotFound)

	err = cache.Set(ctx, payloadcache.Entry{})
	assert.ErrorIs(t, err, payloadcache.ErrInvalidEntry)
}

func TestReadThrough_ServesHotKeysFromFront(t *testing.T) {
	t.Parallel()

	backing := &countingCache{Memory: payloadcache.NewMemory()}
	cache, err := payloadcache.NewReadThrough(backing, 100)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	require.NoError(t, backing.Set(ctx, testEntry("sdk-1", `true`)))

	// First read misses the front and populates it
	entry, err := cache.Get(ctx, "sdk-1")
	require.NoError(t, err)
	assert.Equal(t, "sdk-1", entry.SDKKey)
	assert.Equal(t, 1, backing.getCount())
	cache.Wait()

	// Subsequent reads stay in memory
	for i := 0; i < 5; i++ {
		_, err := cache.Get(ctx, "sdk-1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, backing.getCount())
}

func TestReadThrough_UpsertInvalidatesFront(t *testing.T) {
	t.Parallel()

	backing := &countingCache{Memory: payloadcache.NewMemory()}
	cache, err := payloadcache.NewReadThrough(backing, 100)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, testEntry("sdk-1", `1`)))

	_, err = cache.Get(ctx, "sdk-1")
	require.NoError(t, err)
	cache.Wait()

	// The upsert must evict the cached copy so the new value is observed
	require.NoError(t, cache.Set(ctx, testEntry("sdk-1", `2`)))
	entry, err := cache.Get(ctx, "sdk-1")
	require.NoError(t, err)
	assert.JSONEq(t, `2`, string(entry.Body.Features["flag"].DefaultValue))
}

func TestReadThrough_DeletePropagates(t *testing.T) {
	t.Parallel()

	backing := &countingCache{Memory: payloadcache.NewMemory()}
	cache, err := payloadcache.NewReadThrough(backing, 100)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, testEntry("sdk-1", `true`)))
	_, err = cache.Get(ctx, "sdk-1")
	require.NoError(t, err)
	cache.Wait()

	require.NoError(t, cache.Delete(ctx, "sdk-1"))
	_, err = cache.Get(ctx, "sdk-1")
	assert.ErrorIs(t, err, payloadcache.ErrNotFound)
}

func TestNewReadThrough_RequiresBacking(t *testing.T) {
	t.Parallel()

	_, err := payloadcache.NewReadThrough(nil, 100)
	assert.Error(t, err)
}
