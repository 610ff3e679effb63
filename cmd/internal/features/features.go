// Package features manages named feature flags and their assignment to users.
//
// Administration is gated on the admin_console feature itself. The check runs
// against current store state on every call; nothing about it is cached in tokens.
package features

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// AdminFeature grants administrative access when assigned to a user.
const AdminFeature = "admin_console"

const (
	maxNameLen        = 100
	maxDescriptionLen = 500
)

// Feature is a named flag.
type Feature struct {
	ID          string
	Name        string
	Description *string
	CreatedAt   time.Time
}

// UserFeature is a feature as held by a user.
type UserFeature struct {
	Feature
	AssignedAt time.Time
}

// CreateInput describes a new feature.
type CreateInput struct {
	Name        string
	Description *string
}

// UpdateInput replaces a feature's name and description.
type UpdateInput struct {
	Name        string
	Description *string
}

// Store persists features and assignments.
type Store interface {
	List(ctx context.Context) ([]Feature, error)
	Get(ctx context.Context, id string) (Feature, error)
	// Create inserts f as given. Duplicate names return ConflictError{Field: "name"}.
	Create(ctx context.Context, f Feature) (Feature, error)
	Update(ctx context.Context, id string, in UpdateInput) (Feature, error)
	// Delete removes a feature and, by cascade, its assignments.
	Delete(ctx context.Context, id string) error

	// ListForUser returns the user's features ordered by name.
	ListForUser(ctx context.Context, userID string) ([]UserFeature, error)
	// Assign is idempotent. Unknown user or feature returns NotFoundError.
	Assign(ctx context.Context, userID, featureID string, now time.Time) error
	// Unassign is idempotent.
	Unassign(ctx context.Context, userID, featureID string) error
	// HasFeature reports whether the user holds the named feature.
	HasFeature(ctx context.Context, userID, name string) (bool, error)
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeDescription(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func validName(s string) bool {
	if s == "" || utf8.RuneCountInString(s) > maxNameLen {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' && r != '-' && r != '.' {
			return false
		}
	}
	return true
}

func cloneFeature(f Feature) Feature {
	if f.Description != nil {
		v := *f.Description
		f.Description = &v
	}
	return f
}
