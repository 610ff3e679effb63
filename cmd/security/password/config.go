package password

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the production hashing parameters.
// Memory 64 MiB, 4 iterations and 2 lanes match the records already stored by earlier deployments.
func DefaultConfig() Config {
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  4,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

// LegacyParams are the fixed parameters behind short "argon2id$salt$hash" records.
func LegacyParams() Argon2idParams {
	return Argon2idParams{
		MemoryKiB:   64 * 1024,
		Iterations:  4,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// envVar binds one environment variable to a Config field.
type envVar struct {
	key   string
	apply func(cfg *Config, raw string) error
}

var envVars = []envVar{
	{"TDP_PASSWORD_MIN_LEN", intIn(1, 1024, func(c *Config, n int) { c.Policy.MinLength = n })},
	{"TDP_PASSWORD_MAX_LEN", intIn(1, 4096, func(c *Config, n int) { c.Policy.MaxLength = n })},
	{"TDP_PASSWORD_REJECT_VERY_WEAK", func(c *Config, raw string) error {
		b, err := parseBool(raw)
		c.Policy.RejectVeryWeak = b
		return err
	}},
	{"TDP_ARGON2_MEMORY_KIB", intIn(8*1024, 1024*1024, func(c *Config, n int) { c.Params.MemoryKiB = uint32(n) })}, // 8 MiB .. 1 GiB
	{"TDP_ARGON2_ITERATIONS", intIn(1, 20, func(c *Config, n int) { c.Params.Iterations = uint32(n) })},
	{"TDP_ARGON2_PARALLELISM", intIn(1, 64, func(c *Config, n int) { c.Params.Parallelism = uint8(n) })},
	{"TDP_ARGON2_SALT_LEN", intIn(8, 64, func(c *Config, n int) { c.Params.SaltLength = uint32(n) })},
	{"TDP_ARGON2_KEY_LEN", intIn(16, 64, func(c *Config, n int) { c.Params.KeyLength = uint32(n) })},
}

// FromEnv starts from DefaultConfig and applies every TDP_PASSWORD_* and
// TDP_ARGON2_* variable that is set. Unset variables keep their defaults;
// set but invalid ones are an error naming the variable.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	for _, v := range envVars {
		raw, ok := os.LookupEnv(v.key)
		if !ok {
			continue
		}
		if err := v.apply(&cfg, strings.TrimSpace(raw)); err != nil {
			return Config{}, fmt.Errorf("%s: %w", v.key, err)
		}
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}
	return cfg, nil
}

// intIn parses a base-10 integer within [minVal, maxVal]; the bound keeps
// the narrowing conversions in set safe.
func intIn(minVal, maxVal int, set func(*Config, int)) func(*Config, string) error {
	return func(c *Config, raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("not an integer")
		}
		if n < minVal || n > maxVal {
			return fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
		}
		set(c, n)
		return nil
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid boolean")
	}
	return b, nil
}
