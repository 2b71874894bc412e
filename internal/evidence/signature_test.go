package evidence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-privacy/sentinel/internal/cryptoutil"
)

func TestNewSigner_RejectsShortKey(t *testing.T) {
	_, err := NewSigner("short-key")
	assert.ErrorIs(t, err, cryptoutil.ErrKeyTooShort)
}

func TestSigner_HexAndRawKeysDiffer(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	fromHex, err := NewSigner(hexKey)
	require.NoError(t, err)
	fromRaw, err := NewSigner(string(bytes.Repeat([]byte{0xab}, 32)))
	require.NoError(t, err)

	a, err := fromHex.Sign([]byte("payload"))
	require.NoError(t, err)
	b, err := fromRaw.Sign([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, a, b, "hex key must decode to its raw bytes")
}

func TestSigner_SignVerify(t *testing.T) {
	s, err := NewSigner(testSigningKey)
	require.NoError(t, err)

	sig, err := s.Sign([]byte("payload"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "hmac-sha256:"))
	assert.True(t, s.Verify([]byte("payload"), sig))
	assert.False(t, s.Verify([]byte("payload2"), sig))
	assert.False(t, s.Verify([]byte("payload"), "hmac-sha256:00"))
}

func TestSigner_DigestIsKeyed(t *testing.T) {
	a, err := NewSigner(testSigningKey)
	require.NoError(t, err)
	b, err := NewSigner(strings.Repeat("k", 32))
	require.NoError(t, err)

	phone := "+1 555 123 4567"
	plain := sha256.Sum256([]byte(phone))

	assert.Equal(t, a.Digest(phone), a.Digest(phone))
	assert.NotEqual(t, a.Digest(phone), b.Digest(phone))
	assert.NotContains(t, a.Digest(phone), hex.EncodeToString(plain[:]))
	assert.True(t, strings.HasPrefix(a.Digest(phone), "hmac-sha256:"))
}
