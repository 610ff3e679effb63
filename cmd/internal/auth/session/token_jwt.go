package session

import (
	"fmt"
	"strings"
	"time"

	"tdp/cmd/identity"

	"github.com/golang-jwt/jwt/v5"
)

// Subject is what an access token asserts about its holder.
type Subject struct {
	UserID      string
	Email       string
	DisplayName *string
	Permissions []string
}

// Principal is the authenticated identity recovered from a verified access token.
type Principal struct {
	UserID      string
	Email       string
	Name        string
	Permissions []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// AccessTokenManager issues and verifies short-lived access tokens.
type AccessTokenManager interface {
	Issue(sub Subject, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (Principal, error)
}

type accessClaims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions,omitempty"`
}

type jwtManager struct {
	keys      *KeyProvider
	issuer    string
	audience  string
	ttl       time.Duration
	clockSkew time.Duration
}

// NewJWTManager builds an AccessTokenManager that signs RS256 JWTs with keys.
func NewJWTManager(cfg Config, keys *KeyProvider) (AccessTokenManager, error) {
	if keys == nil {
		return nil, fmt.Errorf("%w: nil key provider", ErrConfig)
	}
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" || cfg.AccessTokenTTL <= 0 {
		return nil, ErrConfig
	}
	return &jwtManager{
		keys:      keys,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
	}, nil
}

func (m *jwtManager) Issue(sub Subject, now time.Time) (string, time.Time, error) {
	if sub.UserID == "" {
		return "", time.Time{}, fmt.Errorf("session: empty subject")
	}
	now = now.UTC().Truncate(time.Second)
	exp := now.Add(m.ttl)

	u := identity.User{Email: sub.Email, DisplayName: sub.DisplayName}
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:       sub.Email,
		Name:        u.Name(),
		Permissions: sub.Permissions,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = m.keys.KeyID()

	signed, err := tok.SignedString(m.keys.signer())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: sign access token: %w", err)
	}
	return signed, exp, nil
}

func (m *jwtManager) Verify(token string, now time.Time) (Principal, error) {
	const op = "session.VerifyAccessToken"

	// Build a fresh parser per call so the time source is the caller's now.
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var claims accessClaims
	_, err := p.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != m.keys.KeyID() {
			return nil, fmt.Errorf("unknown kid")
		}
		return m.keys.PublicKey(), nil
	})
	if err != nil || claims.Subject == "" {
		return Principal{}, identity.Unauthenticated(op)
	}

	out := Principal{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Name:        claims.Name,
		Permissions: claims.Permissions,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
