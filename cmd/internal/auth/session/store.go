package session

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// maxDeviceInfoRunes bounds the free-form device label stored with a refresh token.
const maxDeviceInfoRunes = 256

// RefreshToken mirrors the refresh_tokens row. TokenHash is the only form of the secret ever stored.
type RefreshToken struct {
	ID                string
	UserID            string
	TokenHash         string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	RevokedAt         *time.Time
	ReplacedByTokenID *string
	DeviceInfo        *string
}

// Active reports whether the token can still be exchanged at now.
func (t RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

// Store abstracts persistence for refresh-token chains.
//
// Validate and Rotate return identity.AuthenticationError for unknown, revoked and
// expired tokens alike.
type Store interface {
	// Create persists a new token. Empty ID and IssuedAt are filled in.
	Create(ctx context.Context, t RefreshToken) (RefreshToken, error)

	// Validate loads the token with the given hash if it is active at now.
	Validate(ctx context.Context, tokenHash string, now time.Time) (RefreshToken, error)

	// Rotate atomically consumes the token with oldHash and persists next as its successor.
	// next.UserID is taken from the consumed token.
	Rotate(ctx context.Context, oldHash string, next RefreshToken, now time.Time) (RefreshToken, error)

	// Revoke marks the token revoked. Unknown or already revoked tokens are not an error.
	Revoke(ctx context.Context, tokenHash string, now time.Time) error

	// RevokeAllForUser revokes every active token of a user.
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) error
}

// normalizeDeviceInfo trims the label, drops empty ones and caps the length.
func normalizeDeviceInfo(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	if utf8.RuneCountInString(v) > maxDeviceInfoRunes {
		v = string([]rune(v)[:maxDeviceInfoRunes])
	}
	return &v
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
