// Package keys generates the secret material the rotator writes into the
// server document: X25519 key pairs, random tokens and SS-2022 passwords.
package keys

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"math/big"

	"github.com/samber/oops"
	"golang.org/x/crypto/curve25519"

	"github.com/belgiumluv/docker-cont/internal/domain"
)

const (
	// TokenLength is the length of every generated path/name/secret token
	TokenLength = 22

	// SS2022KeySize is the key size of the 2022-blake3-aes-256-gcm method
	SS2022KeySize = 32

	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Generator produces secret material from a random source
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a Generator reading from r. A nil reader uses crypto/rand.
func NewGenerator(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{rand: r}
}

var defaultGenerator = NewGenerator(nil)

// X25519 generates a fresh key pair. Both halves are unpadded URL-safe base64,
// the encoding Reality expects for private_key / public_key.
func (g *Generator) X25519() (domain.KeyPair, error) {
	var priv [curve25519.ScalarSize]byte
	if _, err := io.ReadFull(g.rand, priv[:]); err != nil {
		return domain.KeyPair{}, oops.Errorf("failed to read private key entropy: %w", err)
	}
	// RFC 7748 clamping
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return domain.KeyPair{}, oops.Wrapf(err, "failed to derive X25519 public key")
	}

	return domain.KeyPair{
		Private: base64.RawURLEncoding.EncodeToString(priv[:]),
		Public:  base64.RawURLEncoding.EncodeToString(pub),
	}, nil
}

// Token returns a TokenLength string over [A-Za-z0-9]
func (g *Generator) Token() (string, error) {
	return g.TokenN(TokenLength)
}

// TokenN returns an n character string over [A-Za-z0-9] without modulo bias
func (g *Generator) TokenN(n int) (string, error) {
	if n <= 0 {
		return "", oops.Errorf("token length must be positive, got %d", n)
	}
	max := big.NewInt(int64(len(tokenAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(g.rand, max)
		if err != nil {
			return "", oops.Errorf("failed to draw token character: %w", err)
		}
		out[i] = tokenAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// SS2022Password returns 32 random bytes in standard padded base64
func (g *Generator) SS2022Password() (string, error) {
	buf := make([]byte, SS2022KeySize)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", oops.Errorf("failed to read password entropy: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// GenerateX25519 generates a key pair from crypto/rand
func GenerateX25519() (domain.KeyPair, error) {
	return defaultGenerator.X25519()
}

// Token returns a random token from crypto/rand
func Token() (string, error) {
	return defaultGenerator.Token()
}

// PublicFromPrivate recomputes the public half of an encoded private key
func PublicFromPrivate(private string) (string, error) {
	priv, err := base64.RawURLEncoding.DecodeString(private)
	if err != nil {
		return "", oops.Wrapf(err, "private key is not unpadded base64url")
	}
	if len(priv) != curve25519.ScalarSize {
		return "", oops.Errorf("private key must be %d bytes, got %d", curve25519.ScalarSize, len(priv))
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", oops.Wrapf(err, "failed to derive X25519 public key")
	}
	return base64.RawURLEncoding.EncodeToString(pub), nil
}
