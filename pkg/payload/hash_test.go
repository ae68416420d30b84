package payload_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flagkit/flagkit/pkg/payload"
)

func sha(salt, value string) string {
	sum := sha256.Sum256([]byte(salt + value))
	return hex.EncodeToString(sum[:])
}

func TestHashSecureAttributes(t *testing.T) {
	t.Parallel()

	secure := map[string]bool{"email": true, "ssn": true}
	const salt = "org-salt"

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "direct equality value",
			input: `{"email":"a@b.com"}`,
			want:  fmt.Sprintf(`{"email":%q}`, sha(salt, "a@b.com")),
		},
		{
			name:  "operator values inherit attribute scope",
			input: `{"email":{"$in":["a@b.com","c@d.com"]}}`,
			want:  fmt.Sprintf(`{"email":{"$in":[%q,%q]}}`, sha(salt, "a@b.com"), sha(salt, "c@d.com")),
		},
		{
			name:  "non-secure attributes untouched",
			input: `{"country":"US","email":"a@b.com"}`,
			want:  fmt.Sprintf(`{"country":"US","email":%q}`, sha(salt, "a@b.com")),
		},
		{
			name:  "scope survives logical operators",
			input: `{"$or":[{"email":"a@b.com"},{"country":"US"}]}`,
			want:  fmt.Sprintf(`{"$or":[{"email":%q},{"country":"US"}]}`, sha(salt, "a@b.com")),
		},
		{
			name:  "nested non-secure key clears scope",
			input: `{"email":{"$elemMatch":{"domain":"b.com"}}}`,
			want:  `{"email":{"$elemMatch":{"domain":"b.com"}}}`,
		},
		{
			name:  "numbers are never hashed",
			input: `{"ssn":{"$ne":123}}`,
			want:  `{"ssn":{"$ne":123}}`,
		},
		{
			name:  "secure attribute name as a value elsewhere is untouched",
			input: `{"field":"email"}`,
			want:  `{"field":"email"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := payload.HashSecureAttributes(json.RawMessage(tt.input), secure, salt)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestHashSecureAttributes_PassThroughCases(t *testing.T) {
	t.Parallel()

	// No secure attributes configured: input returned unchanged.
	in := json.RawMessage(`{"email":"a@b.com"}`)
	assert.Equal(t, in, payload.HashSecureAttributes(in, nil, "salt"))

	// Unparseable condition passes through untouched.
	bad := json.RawMessage(`{broken`)
	assert.Equal(t, bad, payload.HashSecureAttributes(bad, map[string]bool{"email": true}, "salt"))

	// Empty condition.
	assert.Empty(t, payload.HashSecureAttributes(nil, map[string]bool{"email": true}, "salt"))
}
