package webhook

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// SignatureStyle selects which headers carry the payload signature.
type SignatureStyle string

const (
	// SignatureStyleLegacy sends the hex digest in X-GrowthBook-Signature.
	// Used by per-project/environment webhooks created before SDK
	// connections existed.
	SignatureStyleLegacy SignatureStyle = "legacy"

	// SignatureStyleStandard sends webhook-id, webhook-timestamp, and
	// webhook-secret headers, with the digest prefixed whsec_. Receivers
	// use webhook-id for idempotency.
	SignatureStyleStandard SignatureStyle = "standard"
)

// SignBody computes the hex HMAC-SHA256 digest of body under secret. The
// digest covers the exact bytes on the wire, so callers must sign the same
// serialization they send.
func SignBody(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyBody checks a hex HMAC-SHA256 digest in constant time.
func VerifyBody(secret string, body []byte, signature string) bool {
	expected := SignBody(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// DeliveryID derives the idempotency id for a standard-style delivery from
// the SDK key and the delivery timestamp. Retries of the same delivery reuse
// the timestamp, so the receiver sees a stable id across attempts.
func DeliveryID(sdkKey string, at time.Time) string {
	sum := md5.Sum([]byte(sdkKey + strconv.FormatInt(at.Unix(), 10)))
	return "msg_" + hex.EncodeToString(sum[:])
}

// SignatureHeaders builds the signature headers for one delivery.
func SignatureHeaders(style SignatureStyle, secret, sdkKey string, body []byte, at time.Time) (map[string]string, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: signing key is required", ErrInvalidConfiguration)
	}

	digest := SignBody(secret, body)
	switch style {
	case SignatureStyleLegacy:
		return map[string]string{
			"X-GrowthBook-Signature": digest,
		}, nil
	case SignatureStyleStandard:
		return map[string]string{
			"webhook-id":        DeliveryID(sdkKey, at),
			"webhook-timestamp": strconv.FormatInt(at.Unix(), 10),
			"webhook-secret":    "whsec_" + digest,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown signature style %q", ErrInvalidConfiguration, style)
	}
}
