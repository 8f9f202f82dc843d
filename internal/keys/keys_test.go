package keys

import (
	"bytes"
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9]{22}$`)

func TestX25519KeyPair(t *testing.T) {
	t.Parallel()

	kp, err := GenerateX25519()
	require.NoError(t, err)

	priv, err := base64.RawURLEncoding.DecodeString(kp.Private)
	require.NoError(t, err, "private key must be unpadded base64url")
	pub, err := base64.RawURLEncoding.DecodeString(kp.Public)
	require.NoError(t, err, "public key must be unpadded base64url")

	assert.Len(t, priv, 32)
	assert.Len(t, pub, 32)
	assert.NotContains(t, kp.Private, "=")
	assert.NotContains(t, kp.Public, "=")

	derived, err := PublicFromPrivate(kp.Private)
	require.NoError(t, err)
	assert.Equal(t, kp.Public, derived)
}

func TestX25519KeyPairsDiffer(t *testing.T) {
	t.Parallel()

	a, err := GenerateX25519()
	require.NoError(t, err)
	b, err := GenerateX25519()
	require.NoError(t, err)

	assert.NotEqual(t, a.Private, b.Private)
	assert.NotEqual(t, a.Public, b.Public)
}

func TestX25519Deterministic(t *testing.T) {
	t.Parallel()

	seed := bytes.Repeat([]byte{0x42}, 32)
	a, err := NewGenerator(bytes.NewReader(seed)).X25519()
	require.NoError(t, err)
	b, err := NewGenerator(bytes.NewReader(seed)).X25519()
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestX25519ShortEntropy(t *testing.T) {
	t.Parallel()

	_, err := NewGenerator(bytes.NewReader([]byte{1, 2, 3})).X25519()
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := Token()
		require.NoError(t, err)
		assert.Regexp(t, tokenPattern, tok)
		assert.False(t, seen[tok], "token repeated: %s", tok)
		seen[tok] = true
	}
}

func TestTokenNRejectsNonPositive(t *testing.T) {
	t.Parallel()

	_, err := NewGenerator(nil).TokenN(0)
	assert.Error(t, err)
}

func TestSS2022Password(t *testing.T) {
	t.Parallel()

	pw, err := NewGenerator(nil).SS2022Password()
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(pw)
	require.NoError(t, err)
	assert.Len(t, raw, SS2022KeySize)
	assert.Len(t, pw, 44)
}

func TestPublicFromPrivateRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := PublicFromPrivate("not base64 !!")
	assert.Error(t, err)

	_, err = PublicFromPrivate(base64.RawURLEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
