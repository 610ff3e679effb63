package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tdp/cmd/identity"
	"tdp/cmd/security/token"
)

func mustHash(t *testing.T) (plain, hash string) {
	t.Helper()
	plain, hash, err := newOpaqueRefreshToken(64)
	if err != nil {
		t.Fatalf("refresh token: %v", err)
	}
	return plain, hash
}

func TestNewOpaqueRefreshToken(t *testing.T) {
	plain, hash, err := newOpaqueRefreshToken(16)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	// 64 bytes minimum, base64url without padding.
	if len(plain) != 86 || strings.ContainsAny(plain, "+/=") {
		t.Fatalf("unexpected plain token %q", plain)
	}
	if hash != token.HashRefreshTokenHex(plain) || len(hash) != 64 {
		t.Fatalf("hash mismatch")
	}
}

func TestMemoryStore_ValidateLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, h := mustHash(t)
	rt, err := s.Create(ctx, RefreshToken{UserID: "u1", TokenHash: h, IssuedAt: now, ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(rt.ID) != 26 {
		t.Fatalf("expected ulid id, got %q", rt.ID)
	}

	if _, err := s.Validate(ctx, h, now.Add(59*time.Minute)); err != nil {
		t.Fatalf("validate: %v", err)
	}

	// expires_at == now is expired.
	if _, err := s.Validate(ctx, h, now.Add(time.Hour)); !identity.IsUnauthenticated(err) {
		t.Fatalf("expected auth error at expiry boundary, got %v", err)
	}

	_, unknown := mustHash(t)
	if _, err := s.Validate(ctx, unknown, now); !identity.IsUnauthenticated(err) {
		t.Fatalf("expected auth error for unknown hash, got %v", err)
	}

	if err := s.Revoke(ctx, h, now); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := s.Revoke(ctx, h, now); err != nil {
		t.Fatalf("second revoke must be a no-op: %v", err)
	}
	if err := s.Revoke(ctx, unknown, now); err != nil {
		t.Fatalf("unknown revoke must be a no-op: %v", err)
	}
	if _, err := s.Validate(ctx, h, now); !identity.IsUnauthenticated(err) {
		t.Fatalf("expected auth error for revoked token, got %v", err)
	}
}

func TestMemoryStore_UniformErrors(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, revoked := mustHash(t)
	_, expired := mustHash(t)
	_, unknown := mustHash(t)

	if _, err := s.Create(ctx, RefreshToken{UserID: "u", TokenHash: revoked, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, RefreshToken{UserID: "u", TokenHash: expired, IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}
	_ = s.Revoke(ctx, revoked, now)

	var msgs []string
	for _, h := range []string{revoked, expired, unknown} {
		_, err := s.Validate(ctx, h, now)
		if !identity.IsUnauthenticated(err) {
			t.Fatalf("expected auth error, got %v", err)
		}
		msgs = append(msgs, err.Error())
	}
	if msgs[0] != msgs[1] || msgs[1] != msgs[2] {
		t.Fatalf("error text must not reveal the cause: %q", msgs)
	}
}

func TestMemoryStore_Rotate_SingleUse(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, old := mustHash(t)
	first, err := s.Create(ctx, RefreshToken{UserID: "u1", TokenHash: old, IssuedAt: now, ExpiresAt: now.Add(time.Hour), DeviceInfo: strptr("laptop")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, nextHash := mustHash(t)
	next, err := s.Rotate(ctx, old, RefreshToken{UserID: "ignored", TokenHash: nextHash, ExpiresAt: now.Add(2 * time.Hour)}, now)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if next.UserID != "u1" || next.ID == first.ID || !next.IssuedAt.Equal(now) {
		t.Fatalf("unexpected successor: %+v", next)
	}

	if _, err := s.Validate(ctx, old, now); !identity.IsUnauthenticated(err) {
		t.Fatalf("old token must be unusable, got %v", err)
	}
	_, another := mustHash(t)
	if _, err := s.Rotate(ctx, old, RefreshToken{TokenHash: another, ExpiresAt: now.Add(time.Hour)}, now); !identity.IsUnauthenticated(err) {
		t.Fatalf("second rotate must fail, got %v", err)
	}

	s.mu.Lock()
	prev := s.byID[first.ID]
	if prev.RevokedAt == nil || prev.ReplacedByTokenID == nil || *prev.ReplacedByTokenID != next.ID {
		s.mu.Unlock()
		t.Fatalf("predecessor not linked: %+v", prev)
	}
	s.mu.Unlock()

	if _, err := s.Validate(ctx, nextHash, now); err != nil {
		t.Fatalf("successor must be active: %v", err)
	}
}

func TestMemoryStore_Rotate_ConcurrentSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, old := mustHash(t)
	if _, err := s.Create(ctx, RefreshToken{UserID: "u1", TokenHash: old, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	const n = 16
	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		_, h := mustHash(t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Rotate(ctx, old, RefreshToken{TokenHash: h, ExpiresAt: now.Add(time.Hour)}, now)
			switch {
			case err == nil:
				wins.Add(1)
			case identity.IsUnauthenticated(err):
				losses.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 || losses.Load() != n-1 {
		t.Fatalf("wins=%d losses=%d", wins.Load(), losses.Load())
	}
}

func TestMemoryStore_RevokeAllForUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, a := mustHash(t)
	_, b := mustHash(t)
	_, c := mustHash(t)
	for _, in := range []struct{ user, hash string }{{"u1", a}, {"u1", b}, {"u2", c}} {
		if _, err := s.Create(ctx, RefreshToken{UserID: in.user, TokenHash: in.hash, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.RevokeAllForUser(ctx, "u1", now); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	for _, h := range []string{a, b} {
		if _, err := s.Validate(ctx, h, now); !identity.IsUnauthenticated(err) {
			t.Fatalf("u1 token still active")
		}
	}
	if _, err := s.Validate(ctx, c, now); err != nil {
		t.Fatalf("u2 token must survive: %v", err)
	}
}

func TestPrepareInsert(t *testing.T) {
	now := time.Now().UTC()
	_, h := mustHash(t)

	long := strings.Repeat("é", 300)
	got, err := prepareInsert("op", RefreshToken{UserID: "u", TokenHash: h, IssuedAt: now, ExpiresAt: now.Add(time.Minute), DeviceInfo: &long})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if got.DeviceInfo == nil || len([]rune(*got.DeviceInfo)) != maxDeviceInfoRunes {
		t.Fatalf("device info not capped")
	}

	blank := "   "
	got, _ = prepareInsert("op", RefreshToken{UserID: "u", TokenHash: h, IssuedAt: now, ExpiresAt: now.Add(time.Minute), DeviceInfo: &blank})
	if got.DeviceInfo != nil {
		t.Fatalf("blank device info should be dropped")
	}

	if _, err := prepareInsert("op", RefreshToken{UserID: "u", TokenHash: "short", IssuedAt: now, ExpiresAt: now.Add(time.Minute)}); !identity.IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := prepareInsert("op", RefreshToken{UserID: "u", TokenHash: h, IssuedAt: now, ExpiresAt: now}); !identity.IsInvalidInput(err) {
		t.Fatalf("expected invalid input for non-positive lifetime, got %v", err)
	}
}
