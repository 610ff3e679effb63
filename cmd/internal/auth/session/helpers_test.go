package session

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"

	"tdp/cmd/security/password"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error
)

// testKeys returns a provider over a key generated once per test binary.
func testKeys(t *testing.T) *KeyProvider {
	t.Helper()

	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if testKeyErr != nil {
		t.Fatalf("rsa key: %v", testKeyErr)
	}
	kp, err := NewKeyProviderFromKey(testKey)
	if err != nil {
		t.Fatalf("key provider: %v", err)
	}
	return kp
}

func testAccessManager(t *testing.T, cfg Config) AccessTokenManager {
	t.Helper()

	m, err := NewJWTManager(cfg, testKeys(t))
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	return m
}

// fastHasher keeps Argon2id but at test-friendly cost.
func fastHasher() password.Config {
	c := password.DefaultConfig()
	c.Params.MemoryKiB = 8 * 1024
	c.Params.Iterations = 1
	c.Params.Parallelism = 1
	return c
}

func strptr(s string) *string { return &s }
