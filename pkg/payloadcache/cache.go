package payloadcache

import (
	"context"
	"errors"
	"time"

	"github.com/flagkit/flagkit/pkg/payload"
)

var (
	// ErrNotFound is returned when no payload exists for an SDK key.
	ErrNotFound = errors.New("payload not found")

	// ErrInvalidEntry is returned when an entry is missing its SDK key.
	ErrInvalidEntry = errors.New("invalid payload cache entry")
)

// Entry is the cached SDK response for one connection.
type Entry struct {
	SDKKey    string               `json:"sdkKey"    bson:"_id"`
	Body      payload.ResponseBody `json:"body"      bson:"body"`
	UpdatedAt time.Time            `json:"updatedAt" bson:"updatedAt"`
}

// Cache is the payload store contract shared by all backends.
// Set is a full-entry replace; partial updates do not exist.
type Cache interface {
	Get(ctx context.Context, sdkKey string) (Entry, error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, sdkKey string) error
}
