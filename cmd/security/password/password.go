package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Version = argon2.Version // 0x13 (19)

	// legacyTag prefixes records written as "argon2id$<salt>$<hash>" by the previous deployment.
	legacyTag = "argon2id"
)

// Hash hashes a password using Argon2id and returns a self-describing record.
// Format:
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		c.Params.Iterations,
		c.Params.MemoryKiB,
		c.Params.Parallelism,
		c.Params.KeyLength,
	)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		c.Params.MemoryKiB,
		c.Params.Iterations,
		c.Params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

// Verify reports whether password matches the encoded record.
// It fails closed: malformed, unknown or out-of-bounds records yield false.
func (c Config) Verify(encoded, password string) bool {
	params, salt, expected, err := decode(encoded)
	if err != nil {
		return false
	}

	// Anti-DoS boundary: attacker-influenced records must not force pathological work.
	if !withinReasonableBounds(params, c.Params) {
		return false
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		uint32(len(expected)), // #nosec G115 -- bounded by withinReasonableBounds.
	)

	return subtle.ConstantTimeCompare(key, expected) == 1
}

// NeedsRehash reports whether encoded was produced with parameters other than c.Params
// (including legacy records). Malformed records report true.
func (c Config) NeedsRehash(encoded string) bool {
	if !strings.HasPrefix(encoded, "$") {
		return true
	}
	params, _, _, err := decode(encoded)
	if err != nil {
		return true
	}
	return params.MemoryKiB != c.Params.MemoryKiB ||
		params.Iterations != c.Params.Iterations ||
		params.Parallelism != c.Params.Parallelism ||
		params.KeyLength != c.Params.KeyLength
}

// Params returns the parameters encoded in a record, or ErrInvalidHash.
func Params(encoded string) (Argon2idParams, error) {
	p, _, _, err := decode(encoded)
	return p, err
}

func withinReasonableBounds(got Argon2idParams, limits Argon2idParams) bool {
	// Older/smaller settings are fine; wildly larger ones are not.
	if got.MemoryKiB > limits.MemoryKiB*2 {
		return false
	}
	if got.Iterations > limits.Iterations*2 {
		return false
	}
	if got.Parallelism > limits.Parallelism*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	if got.KeyLength < 16 || got.KeyLength > 128 {
		return false
	}
	return true
}

// decode parses either record format and returns params, salt and expected key.
func decode(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	switch {
	case len(parts) == 6 && parts[0] == "" && parts[1] == "argon2id":
		return decodePHC(parts)
	case len(parts) == 3 && parts[0] == legacyTag:
		return decodeLegacy(parts)
	default:
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
}

// decodePHC handles $argon2id$v=19$m=65536,t=4,p=2$<salt>$<hash>.
func decodePHC(parts []string) (Argon2idParams, []byte, []byte, error) {
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if !strings.HasPrefix(parts[3], "m=") {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	salt, hash, err := decodeSaltAndHash(parts[4], parts[5], base64.RawStdEncoding)
	if err != nil {
		return Argon2idParams{}, nil, nil, err
	}

	return Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)), // #nosec G115 -- base64 input is bounded by the record.
		KeyLength:   uint32(len(hash)), // #nosec G115 -- base64 input is bounded by the record.
	}, salt, hash, nil
}

// decodeLegacy handles argon2id$<salt>$<hash> (padded std base64, fixed parameters).
func decodeLegacy(parts []string) (Argon2idParams, []byte, []byte, error) {
	salt, hash, err := decodeSaltAndHash(parts[1], parts[2], base64.StdEncoding)
	if err != nil {
		return Argon2idParams{}, nil, nil, err
	}
	p := LegacyParams()
	p.SaltLength = uint32(len(salt)) // #nosec G115 -- base64 input is bounded by the record.
	p.KeyLength = uint32(len(hash))  // #nosec G115 -- base64 input is bounded by the record.
	return p, salt, hash, nil
}

func decodeSaltAndHash(saltB64, hashB64 string, enc *base64.Encoding) ([]byte, []byte, error) {
	salt, err := enc.DecodeString(saltB64)
	if err != nil || len(salt) == 0 {
		return nil, nil, ErrInvalidHash
	}
	hash, err := enc.DecodeString(hashB64)
	if err != nil || len(hash) == 0 {
		return nil, nil, ErrInvalidHash
	}
	return salt, hash, nil
}
