package payloadcache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

const (
	defaultNumCounters = 100_000
	defaultMaxCost     = 10_000
	defaultBufferItems = 64
)

// ReadThrough layers an in-process ristretto front over a backing Cache.
// Hits are served from memory; misses fall through to the backing store
// and populate the front. Upserts and deletes invalidate the front entry
// so the next read observes the backing store.
//
// The front is advisory: ristretto admits entries asynchronously and may
// drop them under pressure, so a miss is always safe.
type ReadThrough struct {
	front   *ristretto.Cache
	backing Cache
}

// NewReadThrough wraps backing with a ristretto front sized for roughly
// maxEntries hot SDK keys. maxEntries <= 0 uses a default.
func NewReadThrough(backing Cache, maxEntries int64) (*ReadThrough, error) {
	if backing == nil {
		return nil, fmt.Errorf("%w: backing cache is required", ErrInvalidEntry)
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxCost
	}

	front, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: defaultBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("creating payload cache front: %w", err)
	}

	return &ReadThrough{front: front, backing: backing}, nil
}

func (r *ReadThrough) Get(ctx context.Context, sdkKey string) (Entry, error) {
	if cached, ok := r.front.Get(sdkKey); ok {
		if entry, ok := cached.(Entry); ok {
			return entry, nil
		}
	}

	entry, err := r.backing.Get(ctx, sdkKey)
	if err != nil {
		return Entry{}, err
	}

	r.front.Set(sdkKey, entry, 1)
	return entry, nil
}

func (r *ReadThrough) Set(ctx context.Context, entry Entry) error {
	if err := r.backing.Set(ctx, entry); err != nil {
		return err
	}
	// Invalidate rather than populate; the next read re-fetches whatever
	// the backing store accepted.
	r.front.Del(entry.SDKKey)
	return nil
}

func (r *ReadThrough) Delete(ctx context.Context, sdkKey string) error {
	if err := r.backing.Delete(ctx, sdkKey); err != nil {
		return err
	}
	r.front.Del(sdkKey)
	return nil
}

// Wait blocks until pending front admissions are applied. Used in tests.
func (r *ReadThrough) Wait() {
	r.front.Wait()
}

// Close releases the front's resources. The backing store is not closed.
func (r *ReadThrough) Close() {
	r.front.Close()
}
