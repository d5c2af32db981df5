package common

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateRandByteArray returns size bytes read from crypto/rand.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return b
}

// MakeRandURLString returns size random bytes encoded as unpadded URL-safe
// base64, suitable for OAuth state parameters and generated keys.
func MakeRandURLString(size int) string {
	return base64.RawURLEncoding.EncodeToString(GenerateRandByteArray(size))
}

// WipeByteArray overwrites b with zeros. Used to drop key material from
// memory once it has been expanded.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
