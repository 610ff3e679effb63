package identity

import (
	"strings"
	"unicode/utf8"
)

const maxDisplayNameRunes = 100

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeDisplayName trims the name and returns nil when nothing is left.
func NormalizeDisplayName(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// ValidDisplayName reports whether a normalized display name fits storage limits.
func ValidDisplayName(s *string) bool {
	return s == nil || utf8.RuneCountInString(*s) <= maxDisplayNameRunes
}
