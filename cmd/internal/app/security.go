package app

import (
	"errors"

	"tdp/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
// Under TDP_REQUIRE_TOKEN_HMAC the server refuses to start rather than fall back to plain SHA-256.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// The key is used as raw bytes, so length is measured in bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: TDP_REQUIRE_TOKEN_HMAC=true but TDP_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: TDP_REQUIRE_TOKEN_HMAC=true but TDP_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: TDP_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}

	return nil
}
