package payload_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagkit/flagkit/pkg/payload"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()

	key, err := payload.GenerateEncryptionKey()
	require.NoError(t, err)

	plaintext := []byte(`{"feature-a":{"defaultValue":true,"rules":[{"condition":{"country":"US"}}]}}`)

	encrypted, err := payload.Encrypt(plaintext, key)
	require.NoError(t, err)

	iv, ct, ok := strings.Cut(encrypted, ".")
	require.True(t, ok, "ciphertext must be iv.ciphertext")
	assert.NotEmpty(t, iv)
	assert.NotEmpty(t, ct)
	assert.NotContains(t, encrypted, "feature-a")

	decrypted, err := payload.Decrypt(encrypted, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncrypt_FreshIVPerCall(t *testing.T) {
	t.Parallel()

	key, err := payload.GenerateEncryptionKey()
	require.NoError(t, err)

	a, err := payload.Encrypt([]byte(`{"x":1}`), key)
	require.NoError(t, err)
	b, err := payload.Encrypt([]byte(`{"x":1}`), key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestEncrypt_DerivesOddLengthKeys(t *testing.T) {
	t.Parallel()

	// Not a valid AES key length after decoding; HKDF stretch must kick in
	// and the round trip must still work.
	key := "c2hvcnQ" // "short"

	encrypted, err := payload.Encrypt([]byte(`{"x":1}`), key)
	require.NoError(t, err)

	decrypted, err := payload.Decrypt(encrypted, key)
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(decrypted))
}

func TestDecrypt_RejectsMalformedInput(t *testing.T) {
	t.Parallel()

	key, err := payload.GenerateEncryptionKey()
	require.NoError(t, err)

	for _, input := range []string{"", "no-separator", "!!!.???", "YWJj.YWJj"} {
		_, err := payload.Decrypt(input, key)
		require.ErrorIs(t, err, payload.ErrInvalidCiphertext, "input %q", input)
	}

	_, err = payload.Encrypt([]byte("x"), "")
	require.ErrorIs(t, err, payload.ErrInvalidEncryptionKey)
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	t.Parallel()

	k1, err := payload.GenerateEncryptionKey()
	require.NoError(t, err)
	k2, err := payload.GenerateEncryptionKey()
	require.NoError(t, err)

	encrypted, err := payload.Encrypt([]byte(`{"secret":true}`), k1)
	require.NoError(t, err)

	decrypted, err := payload.Decrypt(encrypted, k2)
	if err == nil {
		// CBC with a wrong key usually breaks padding; if padding happens
		// to validate, the plaintext must still be garbage.
		assert.NotEqual(t, `{"secret":true}`, string(decrypted))
	}
}
