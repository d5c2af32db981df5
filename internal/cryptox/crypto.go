// Package cryptox implements the at-rest cipher used by the credential vault:
// AES-256-GCM with a random nonce per message, keyed from operator-supplied
// secret material through HKDF-SHA256.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/gsheetsmcp/internal/common"
	"golang.org/x/crypto/hkdf"
)

// MinKeySize is the minimum amount of secret material accepted by NewCipher.
const MinKeySize = 32

const hkdfInfo = "gsheetsmcp/credential-vault/aes-256-gcm"

var (
	ErrKeyTooShort      = errors.New("encryption key too short")
	ErrMalformedMessage = errors.New("malformed ciphertext")
)

// Cipher seals and opens short secrets. It is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// ParseKey decodes the configured key. Standard and URL-safe base64 (padded
// or not) are accepted, so Fernet-style keys work unchanged; anything else is
// taken as raw bytes.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, common.ErrEncryptionUnavailable
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil && len(b) >= MinKeySize {
			return b, nil
		}
	}

	if len(s) < MinKeySize {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrKeyTooShort, MinKeySize)
	}
	return []byte(s), nil
}

// NewCipher derives an AES-256 key from secret and builds a GCM cipher.
// The caller's secret slice is wiped once the key has been expanded.
func NewCipher(secret []byte) (*Cipher, error) {
	if len(secret) == 0 {
		return nil, common.ErrEncryptionUnavailable
	}
	if len(secret) < MinKeySize {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrKeyTooShort, MinKeySize)
	}
	defer common.WipeByteArray(secret)

	key := make([]byte, 32)
	defer common.WipeByteArray(key)

	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext and binds it to aad. The result is
// base64url(nonce || ciphertext || tag); a fresh nonce is drawn per call so
// equal inputs never produce equal outputs.
func (c *Cipher) Seal(plaintext string, aad []byte) string {
	nonce := common.GenerateRandByteArray(c.aead.NonceSize())
	out := c.aead.Seal(nonce, nonce, []byte(plaintext), aad)
	return base64.RawURLEncoding.EncodeToString(out)
}

// Open reverses Seal. It fails when the key, the associated data or the
// message itself differ from what was sealed.
func (c *Cipher) Open(message string, aad []byte) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(message)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", ErrMalformedMessage
	}

	plaintext, err := c.aead.Open(nil, raw[:ns], raw[ns:], aad)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	return string(plaintext), nil
}
