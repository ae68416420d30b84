package proxy

import (
	"context"
	"time"

	"github.com/flagkit/flagkit/pkg/payload"
)

// Endpoint identifies one connection's proxy.
type Endpoint struct {
	ConnectionID string `json:"connectionId" bson:"connectionId"`
	SDKKey       string `json:"sdkKey"       bson:"sdkKey"`
	Host         string `json:"host"         bson:"host"`
	SigningKey   string `json:"signingKey"   bson:"signingKey"`
}

// Status is the observed state of a proxy, persisted on the connection.
type Status struct {
	Connected bool      `json:"connected" bson:"connected"`
	Version   string    `json:"version"   bson:"version"`
	Error     string    `json:"error"     bson:"error"`
	CheckedAt time.Time `json:"checkedAt" bson:"checkedAt"`
}

// Repository persists proxy state on SDK connection records.
type Repository interface {
	// ListEnabled returns every connection with an enabled proxy.
	ListEnabled(ctx context.Context) ([]Endpoint, error)

	// Lookup returns the proxy endpoint for one connection.
	Lookup(ctx context.Context, connectionID string) (Endpoint, error)

	// UpdateStatus replaces the stored proxy status for a connection.
	UpdateStatus(ctx context.Context, connectionID string, status Status) error
}

// PayloadSource loads the current feature payload for a connection.
type PayloadSource interface {
	BySDKKey(ctx context.Context, sdkKey string) (payload.ResponseBody, error)
}
