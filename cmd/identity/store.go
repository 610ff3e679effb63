package identity

import (
	"context"
	"time"
)

// User is the canonical security principal.
type User struct {
	ID          string
	Email       string
	DisplayName *string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Name returns the display name, falling back to the email.
func (u User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Email
}

// UserAuth pairs a user with its stored password record. It never leaves the auth flows.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a registration. PasswordHash is already derived by the caller.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	DisplayName  *string
	Now          time.Time
}

// MaxSearchResults caps SearchUsers.
const MaxSearchResults = 50

// Store is the user persistence boundary.
type Store interface {
	// CreateUser inserts a user. Duplicate emails return ConflictError{Field: "email"}.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetUserAuthByEmail loads a user and its password record by normalized email.
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)

	GetUserByID(ctx context.Context, userID string) (User, error)

	// UpdatePasswordHash replaces the stored record (parameter upgrades after login).
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string, now time.Time) error

	// SetActive toggles the active flag.
	SetActive(ctx context.Context, userID string, active bool, now time.Time) error

	// SearchUsers matches q case-insensitively against email and display name, ordered by email.
	SearchUsers(ctx context.Context, q string, limit int) ([]User, error)
}

func clampSearchLimit(limit int) int {
	if limit <= 0 || limit > MaxSearchResults {
		return MaxSearchResults
	}
	return limit
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
