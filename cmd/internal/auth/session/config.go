package session

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls access-token claims and TTL, refresh-token lifetime and entropy,
// clock skew tolerance, and the RSA key size generated at startup.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// Audience is the value set in the "aud" claim and required on verify.
	Audience string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTTL defines the lifetime of each refresh token in a chain.
	RefreshTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// RefreshTokenBytes defines the number of random bytes used
	// to generate opaque refresh tokens.
	RefreshTokenBytes int

	// RSAKeyBits is the modulus size of the signing key.
	RSAKeyBits int
}

// DefaultConfig returns a secure default configuration suitable for development.
func DefaultConfig() Config {
	return Config{
		Issuer:            "http://localhost:5201",
		Audience:          "tdp-api",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTTL:        14 * 24 * time.Hour,
		ClockSkew:         30 * time.Second,
		RefreshTokenBytes: 64,
		RSAKeyBits:        2048,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - TDP_AUTH_ISSUER
//   - TDP_AUTH_AUDIENCE
//   - TDP_AUTH_ACCESS_TTL
//   - TDP_AUTH_REFRESH_TTL
//   - TDP_AUTH_CLOCK_SKEW
//   - TDP_AUTH_REFRESH_TOKEN_BYTES (64..128)
//   - TDP_AUTH_RSA_BITS (2048, 3072 or 4096)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("TDP_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("TDP_AUTH_AUDIENCE")); v != "" {
		cfg.Audience = v
	}

	var err error
	if cfg.AccessTokenTTL, err = envPositiveDuration("TDP_AUTH_ACCESS_TTL", cfg.AccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = envPositiveDuration("TDP_AUTH_REFRESH_TTL", cfg.RefreshTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("TDP_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 || d > 5*time.Minute {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if v := os.Getenv("TDP_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 128 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenBytes = n
	}

	if v := os.Getenv("TDP_AUTH_RSA_BITS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		switch n {
		case 2048, 3072, 4096:
			cfg.RSAKeyBits = n
		default:
			return Config{}, ErrConfig
		}
	}

	// Access tokens must not outlive the refresh chain that mints them.
	if cfg.AccessTokenTTL >= cfg.RefreshTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}

func envPositiveDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, ErrConfig
	}
	return d, nil
}
