package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tdp/cmd/identity/ids"
)

// MemoryStore is an in-process Store used when no database is configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*memUser
	byEmail map[string]string
}

type memUser struct {
	user User
	hash string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*memUser),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := NormalizeEmail(in.Email)
	if email == "" {
		return User{}, ValidationError{Op: op, Field: "email", Msg: "required"}
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, ValidationError{Op: op, Field: "password", Msg: "required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := User{
		ID:          id,
		Email:       email,
		DisplayName: NormalizeDisplayName(in.DisplayName),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.byID[id] = &memUser{user: u, hash: in.PasswordHash}
	s.byEmail[email] = id
	return cloneUser(u), nil
}

func (s *MemoryStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByEmail"

	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	m := s.byID[id]
	return UserAuth{User: cloneUser(m.user), PasswordHash: m.hash}, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	const op = "identity.GetUserByID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[userID]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return cloneUser(m.user), nil
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return ValidationError{Op: op, Field: "password", Msg: "required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	m.hash = passwordHash
	m.user.UpdatedAt = now
	return nil
}

func (s *MemoryStore) SetActive(ctx context.Context, userID string, active bool, now time.Time) error {
	const op = "identity.SetActive"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	m.user.IsActive = active
	m.user.UpdatedAt = now
	return nil
}

func (s *MemoryStore) SearchUsers(ctx context.Context, q string, limit int) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q = strings.ToLower(strings.TrimSpace(q))

	s.mu.RLock()
	out := make([]User, 0, len(s.byID))
	for _, m := range s.byID {
		name := ""
		if m.user.DisplayName != nil {
			name = strings.ToLower(*m.user.DisplayName)
		}
		if strings.Contains(m.user.Email, q) || strings.Contains(name, q) {
			out = append(out, cloneUser(m.user))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if n := clampSearchLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func cloneUser(u User) User {
	if u.DisplayName != nil {
		v := *u.DisplayName
		u.DisplayName = &v
	}
	return u
}
