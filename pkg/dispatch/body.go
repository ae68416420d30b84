package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/flagkit/flagkit/pkg/payload"
)

// changeEvent is the new-style delivery body.
type changeEvent struct {
	Type      string           `json:"type"`
	Timestamp string           `json:"timestamp"`
	Data      *changeEventData `json:"data,omitempty"`
}

type changeEventData struct {
	Payload payload.ResponseBody `json:"payload"`
}

// legacyEvent is the flat body legacy webhooks were built against.
type legacyEvent struct {
	Timestamp   int64                                `json:"timestamp"`
	Features    map[string]payload.FeatureDefinition `json:"features"`
	DateUpdated time.Time                            `json:"dateUpdated"`
	Experiments []payload.AutoExperiment             `json:"experiments,omitempty"`
}

// NewStyleBody marshals the delivery body for an SDK webhook. The returned
// bytes are what gets signed and sent, so callers must not re-marshal.
func NewStyleBody(format Format, body payload.ResponseBody, at time.Time) ([]byte, error) {
	switch format {
	case FormatSDKPayload:
		return json.Marshal(body)
	case FormatStandardNoPayload:
		return json.Marshal(changeEvent{
			Type:      "payload.changed",
			Timestamp: at.UTC().Format(time.RFC3339),
		})
	case FormatStandard, "":
		return json.Marshal(changeEvent{
			Type:      "payload.changed",
			Timestamp: at.UTC().Format(time.RFC3339),
			Data:      &changeEventData{Payload: body},
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// LegacyBody marshals the flat legacy delivery body.
func LegacyBody(body payload.ResponseBody, at time.Time) ([]byte, error) {
	features := body.Features
	if features == nil {
		features = map[string]payload.FeatureDefinition{}
	}
	return json.Marshal(legacyEvent{
		Timestamp:   at.Unix(),
		Features:    features,
		DateUpdated: body.DateUpdated,
		Experiments: body.Experiments,
	})
}
