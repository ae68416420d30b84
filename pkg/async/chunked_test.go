package async_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/flagkit/flagkit/pkg/async"
)

// TestRunChunkedOrderAndErrors verifies results come back in input order
// and per-item errors do not abort the run.
func TestRunChunkedOrderAndErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	items := []int{1, 2, 3, 4, 5, 6, 7}
	results := async.RunChunked(ctx, items, 3, func(ctx context.Context, n int) (int, error) {
		if n == 4 {
			return 0, errors.New("item 4 failed")
		}
		return n * 10, nil
	})

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if items[i] == 4 {
			if r.Err == nil {
				t.Error("expected error for item 4")
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("unexpected error for item %d: %v", items[i], r.Err)
		}
		if r.Value != items[i]*10 {
			t.Errorf("expected %d, got %d", items[i]*10, r.Value)
		}
	}
}

// TestRunChunkedBoundedConcurrency verifies at most chunkSize items run
// at once and chunk boundaries are hard synchronization points.
func TestRunChunkedBoundedConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const chunkSize = 3
	var inFlight, maxInFlight int32
	var mu sync.Mutex

	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}

	results := async.RunChunked(ctx, items, chunkSize, func(ctx context.Context, n int) (int, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if cur > maxInFlight {
			maxInFlight = cur
		}
		mu.Unlock()
		defer atomic.AddInt32(&inFlight, -1)
		return n, nil
	})

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	mu.Lock()
	defer mu.Unlock()
	if maxInFlight > chunkSize {
		t.Errorf("expected at most %d items in flight, observed %d", chunkSize, maxInFlight)
	}
}

// TestRunChunkedEdgeCases covers empty input and a non-positive chunk size.
func TestRunChunkedEdgeCases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	if results := async.RunChunked(ctx, nil, 5, func(ctx context.Context, n int) (int, error) {
		return n, nil
	}); len(results) != 0 {
		t.Errorf("expected no results for empty input, got %d", len(results))
	}

	results := async.RunChunked(ctx, []int{1, 2}, 0, func(ctx context.Context, n int) (int, error) {
		return n + 1, nil
	})
	if len(results) != 2 || results[0].Value != 2 || results[1].Value != 3 {
		t.Errorf("unexpected results with zero chunk size: %+v", results)
	}
}
