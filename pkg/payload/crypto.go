package payload

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// keyDerivationInfo versions the HKDF context so a future format change can
// rotate derived keys without touching stored connection keys.
const keyDerivationInfo = "flagkit-payload-v1"

// Encrypt encrypts a serialized payload with AES-CBC under the connection's
// base64 key. A fresh random 16-byte IV is generated per call and the result
// is base64(iv) + "." + base64(ciphertext).
func Encrypt(plaintext []byte, encryptionKey string) (string, error) {
	key, err := deriveKey(encryptionKey)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(iv) + "." +
		base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. It exists for round-trip tests and for local SDK
// endpoint simulation; production SDKs decrypt on their side.
func Decrypt(encrypted, encryptionKey string) ([]byte, error) {
	key, err := deriveKey(encryptionKey)
	if err != nil {
		return nil, err
	}

	ivPart, ctPart, ok := strings.Cut(encrypted, ".")
	if !ok {
		return nil, fmt.Errorf("%w: missing iv separator", ErrInvalidCiphertext)
	}

	iv, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: bad iv", ErrInvalidCiphertext)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ctPart)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: bad ciphertext", ErrInvalidCiphertext)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCiphertext, err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext, aes.BlockSize)
}

// GenerateEncryptionKey produces a fresh base64 key suitable for a new SDK
// connection.
func GenerateEncryptionKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// deriveKey turns the stored base64 key into AES key material. Keys that
// decode to a valid AES length are used directly; anything else is stretched
// to 32 bytes with HKDF-SHA256 so a misconfigured connection still encrypts
// instead of serving plaintext.
func deriveKey(encryptionKey string) ([]byte, error) {
	if encryptionKey == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrInvalidEncryptionKey)
	}

	raw, err := base64.StdEncoding.DecodeString(encryptionKey)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(encryptionKey)
	}
	if err != nil {
		raw = []byte(encryptionKey)
	}

	switch len(raw) {
	case 16, 24, 32:
		return raw, nil
	}

	derived := make([]byte, 32)
	r := hkdf.New(sha256.New, raw, nil, []byte(keyDerivationInfo))
	if _, err := io.ReadFull(r, derived); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEncryptionKey, err)
	}
	return derived, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padded length", ErrInvalidCiphertext)
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrInvalidCiphertext)
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("%w: bad padding", ErrInvalidCiphertext)
		}
	}
	return data[:len(data)-padding], nil
}
