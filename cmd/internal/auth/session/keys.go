package session

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// KeyProvider holds the RSA signing key for access tokens.
//
// It is built once at process start and never mutated, so it is safe for
// concurrent use by the token manager and the JWKS handler.
type KeyProvider struct {
	kid string
	key *rsa.PrivateKey
}

// NewKeyProvider generates a fresh RSA key of the given size.
func NewKeyProvider(bits int) (*KeyProvider, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("session: rsa key too small: %d bits", bits)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("session: generate rsa key: %w", err)
	}
	return NewKeyProviderFromKey(key)
}

// NewKeyProviderFromKey wraps an existing key and assigns it a new key id.
func NewKeyProviderFromKey(key *rsa.PrivateKey) (*KeyProvider, error) {
	if key == nil {
		return nil, fmt.Errorf("session: nil rsa key")
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("session: invalid rsa key: %w", err)
	}
	return &KeyProvider{
		kid: strings.ReplaceAll(uuid.NewString(), "-", ""),
		key: key,
	}, nil
}

// KeyID returns the "kid" stamped on every token header.
func (k *KeyProvider) KeyID() string { return k.kid }

// PublicKey returns the verification key.
func (k *KeyProvider) PublicKey() *rsa.PublicKey { return &k.key.PublicKey }

func (k *KeyProvider) signer() *rsa.PrivateKey { return k.key }
