package evidence

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/sentinel-privacy/sentinel/internal/cryptoutil"
)

const signaturePrefix = "hmac-sha256:"

// Signer creates and verifies HMAC-SHA256 signatures for audit records.
type Signer struct {
	key []byte
}

// NewSigner creates an HMAC-SHA256 signer. See cryptoutil.DecodeKey for the
// accepted key forms.
func NewSigner(key string) (*Signer, error) {
	keyBytes, err := cryptoutil.DecodeKey(key)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	return &Signer{key: keyBytes}, nil
}

// Sign creates an HMAC-SHA256 signature for the given data.
func (s *Signer) Sign(data []byte) (string, error) {
	h := hmac.New(sha256.New, s.key)
	if _, err := h.Write(data); err != nil {
		return "", err
	}
	return signaturePrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// Digest returns a keyed HMAC-SHA256 digest of text. Audit records hold these
// digests, never unkeyed hashes of request text.
func (s *Signer) Digest(text string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(text))
	return signaturePrefix + hex.EncodeToString(h.Sum(nil))
}

// Verify checks if a signature is valid for the given data.
func (s *Signer) Verify(data []byte, signature string) bool {
	expected, err := s.Sign(data)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
