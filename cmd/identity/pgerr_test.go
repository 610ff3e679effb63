package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyStoreError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		in    error
		check func(error) bool
	}{
		{
			name:  "unique email",
			in:    &pgconn.PgError{Code: "23505", ConstraintName: "uq_users_email"},
			check: func(err error) bool { var ce ConflictError; return errors.As(err, &ce) && ce.Field == "email" },
		},
		{
			name:  "fk feature",
			in:    &pgconn.PgError{Code: "23503", ConstraintName: "fk_user_features_feature"},
			check: func(err error) bool { var nf NotFoundError; return errors.As(err, &nf) && nf.Resource == "feature" },
		},
		{
			name:  "lock timeout is retryable",
			in:    fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "55P03"}),
			check: IsRetryable,
		},
		{
			name:  "serialization failure is retryable",
			in:    &pgconn.PgError{Code: "40001"},
			check: IsRetryable,
		},
		{
			name: "syntax error is fatal",
			in:   &pgconn.PgError{Code: "42601"},
			check: func(err error) bool {
				return errors.Is(err, ErrStorage) && !IsRetryable(err)
			},
		},
		{
			name:  "taxonomy passes through",
			in:    Unauthenticated("x"),
			check: func(err error) bool { return err == Unauthenticated("x") },
		},
		{
			name:  "context cancel passes through",
			in:    context.Canceled,
			check: func(err error) bool { return errors.Is(err, context.Canceled) && !errors.Is(err, ErrStorage) },
		},
		{
			name:  "unknown error is storage",
			in:    errors.New("driver exploded"),
			check: func(err error) bool { return errors.Is(err, ErrStorage) },
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ClassifyStoreError("identity.Test", tc.in)
			if !tc.check(got) {
				t.Fatalf("unexpected classification: %v", got)
			}
		})
	}

	if ClassifyStoreError("identity.Test", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestAuthenticationError_Uniform(t *testing.T) {
	t.Parallel()

	a := Unauthenticated("session.Login")
	b := Unauthenticated("session.Refresh")
	if a.Error() != b.Error() {
		t.Fatalf("messages must not reveal the failing operation: %q vs %q", a.Error(), b.Error())
	}
	if !IsUnauthenticated(a) || IsConflict(a) || IsNotFound(a) {
		t.Fatalf("unexpected predicate results for %v", a)
	}
}

func TestStorageError_Unwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("conn reset")
	err := StorageError{Op: "identity.Test", Retryable: true, Err: cause}
	if !errors.Is(err, ErrStorage) || !errors.Is(err, cause) {
		t.Fatalf("expected to unwrap to both ErrStorage and cause")
	}
	if !IsRetryable(fmt.Errorf("outer: %w", err)) {
		t.Fatalf("expected retryable through wrapping")
	}
}
