package session

import (
	"context"
	"sync"
	"time"

	"tdp/cmd/identity"
	"tdp/cmd/security/token"
)

// MemoryStore is a mutex-guarded Store for development and tests.
// The single lock gives Rotate the same single-winner outcome as the row lock in Postgres.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*RefreshToken
	byHash map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*RefreshToken),
		byHash: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, t RefreshToken) (RefreshToken, error) {
	const op = "session.Store.Create"

	if err := ctx.Err(); err != nil {
		return RefreshToken{}, err
	}
	t, err := prepareInsert(op, t)
	if err != nil {
		return RefreshToken{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertLocked(op, t); err != nil {
		return RefreshToken{}, err
	}
	return cloneRefreshToken(t), nil
}

func (s *MemoryStore) Validate(ctx context.Context, tokenHash string, now time.Time) (RefreshToken, error) {
	const op = "session.Store.Validate"

	if err := ctx.Err(); err != nil {
		return RefreshToken{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.lookupLocked(tokenHash)
	if !ok || !cur.Active(now) {
		return RefreshToken{}, identity.Unauthenticated(op)
	}
	return cloneRefreshToken(*cur), nil
}

func (s *MemoryStore) Rotate(ctx context.Context, oldHash string, next RefreshToken, now time.Time) (RefreshToken, error) {
	const op = "session.Store.Rotate"

	if err := ctx.Err(); err != nil {
		return RefreshToken{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.lookupLocked(oldHash)
	if !ok || !cur.Active(now) {
		return RefreshToken{}, identity.Unauthenticated(op)
	}

	next.UserID = cur.UserID
	next.IssuedAt = now
	next.ID = ""
	next, err := prepareInsert(op, next)
	if err != nil {
		return RefreshToken{}, err
	}
	if err := s.insertLocked(op, next); err != nil {
		return RefreshToken{}, err
	}

	revokedAt := now
	replacedBy := next.ID
	cur.RevokedAt = &revokedAt
	cur.ReplacedByTokenID = &replacedBy

	return cloneRefreshToken(next), nil
}

func (s *MemoryStore) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.lookupLocked(tokenHash); ok && cur.RevokedAt == nil {
		at := now
		cur.RevokedAt = &at
	}
	return nil
}

func (s *MemoryStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.byID {
		if t.UserID == userID && t.RevokedAt == nil {
			at := now
			t.RevokedAt = &at
		}
	}
	return nil
}

func (s *MemoryStore) insertLocked(op string, t RefreshToken) error {
	if _, dup := s.byHash[t.TokenHash]; dup {
		return identity.ConflictError{Op: op, Field: "token_hash"}
	}
	if _, dup := s.byID[t.ID]; dup {
		return identity.ConflictError{Op: op, Field: "id"}
	}
	c := cloneRefreshToken(t)
	s.byID[t.ID] = &c
	s.byHash[t.TokenHash] = t.ID
	return nil
}

func (s *MemoryStore) lookupLocked(tokenHash string) (*RefreshToken, bool) {
	id, ok := s.byHash[tokenHash]
	if !ok {
		return nil, false
	}
	cur := s.byID[id]
	if !token.EqualHex64(cur.TokenHash, tokenHash) {
		return nil, false
	}
	return cur, true
}

func cloneRefreshToken(t RefreshToken) RefreshToken {
	if t.RevokedAt != nil {
		v := *t.RevokedAt
		t.RevokedAt = &v
	}
	if t.ReplacedByTokenID != nil {
		v := *t.ReplacedByTokenID
		t.ReplacedByTokenID = &v
	}
	if t.DeviceInfo != nil {
		v := *t.DeviceInfo
		t.DeviceInfo = &v
	}
	return t
}
