// Package cryptoutil decodes the key material used for audit signatures.
package cryptoutil

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// MinKeyBytes is the shortest accepted HMAC-SHA256 key.
const MinKeyBytes = 32

// ErrKeyTooShort is returned by DecodeKey for keys under MinKeyBytes.
var ErrKeyTooShort = errors.New("key too short")

// IsHexString reports whether s consists entirely of hexadecimal characters.
// It returns true for an empty string.
func IsHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// DecodeKey interprets key as hex when it is an even run of at least
// 2*MinKeyBytes hex characters, and as raw bytes otherwise.
func DecodeKey(key string) ([]byte, error) {
	if len(key) >= 2*MinKeyBytes && len(key)%2 == 0 && IsHexString(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("hex decode: %w", err)
		}
		return decoded, nil
	}
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrKeyTooShort, MinKeyBytes, len(key))
	}
	return []byte(key), nil
}
