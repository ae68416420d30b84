package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flagkit/flagkit/pkg/payload"
)

// Format selects the body shape of a new-style delivery.
type Format string

const (
	// FormatStandard wraps the payload in a typed change event.
	FormatStandard Format = "standard"

	// FormatStandardNoPayload sends the change event without the payload,
	// for receivers that refetch from the features endpoint instead.
	FormatStandardNoPayload Format = "standard-no-payload"

	// FormatSDKPayload sends the bare SDK response body.
	FormatSDKPayload Format = "sdkPayload"
)

// Webhook is one registered delivery endpoint. SDK webhooks carry connection
// keys in SDKs; legacy webhooks carry a project/environment scope instead.
type Webhook struct {
	ID           string    `json:"id" bson:"_id"`
	Organization string    `json:"organization" bson:"organization"`
	Endpoint     string    `json:"endpoint" bson:"endpoint"`
	SigningKey   string    `json:"signingKey" bson:"signingKey"`
	SDKs         []string  `json:"sdks,omitempty" bson:"sdks,omitempty"`
	Legacy       bool      `json:"legacy" bson:"legacy"`
	Project      string    `json:"project,omitempty" bson:"project,omitempty"`
	Environment  string    `json:"environment,omitempty" bson:"environment,omitempty"`
	PayloadFormat Format   `json:"payloadFormat,omitempty" bson:"payloadFormat,omitempty"`
	HTTPMethod   string    `json:"httpMethod,omitempty" bson:"httpMethod,omitempty"`
	Headers      string    `json:"headers,omitempty" bson:"headers,omitempty"`
	Error        string    `json:"error,omitempty" bson:"error,omitempty"`
	LastSuccess  time.Time `json:"lastSuccess,omitempty" bson:"lastSuccess,omitempty"`
	Created      time.Time `json:"dateCreated" bson:"dateCreated"`
}

// ExtraHeaders parses the stored JSON header object. Malformed JSON yields
// no extra headers rather than a failed delivery.
func (w Webhook) ExtraHeaders() map[string]string {
	if w.Headers == "" {
		return nil
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(w.Headers), &headers); err != nil {
		return nil
	}
	return headers
}

// Repository persists webhook records and their delivery outcomes.
type Repository interface {
	Get(ctx context.Context, id string) (Webhook, error)

	// RecordSuccess clears the stored error and stamps lastSuccess.
	RecordSuccess(ctx context.Context, id string, at time.Time) error

	// RecordFailure persists the delivery error for the admin surface.
	RecordFailure(ctx context.Context, id string, message string) error
}

// PayloadSource provides the shaped payloads deliveries carry. SDK webhooks
// read the cached per-connection response; legacy webhooks rebuild for their
// project/environment scope.
type PayloadSource interface {
	BySDKKey(ctx context.Context, sdkKey string) (payload.ResponseBody, error)
	ByEnvironment(ctx context.Context, organization, project, environment string) (payload.ResponseBody, error)
}
