package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the stores care about.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014" // statement_timeout
)

// uniqueFields maps unique constraint names to logical field names.
var uniqueFields = map[string]string{
	"uq_users_email":               "email",
	"uq_refresh_tokens_token_hash": "token_hash",
	"uq_features_name":             "name",
	"pk_user_features":             "assignment",
}

// foreignResources maps FK constraint names to the missing resource.
var foreignResources = map[string]string{
	"fk_refresh_tokens_user":   "user",
	"fk_user_features_user":    "user",
	"fk_user_features_feature": "feature",
}

// ClassifyStoreError maps a pgx error into the identity taxonomy.
// Errors already in the taxonomy pass through unchanged.
func ClassifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
		switch pgErr.Code {
		case pgUniqueViolation:
			return ConflictError{Op: op, Field: fieldOr(uniqueFields, c, "unique")}
		case pgForeignKeyViolation:
			return NotFoundError{Op: op, Resource: fieldOr(foreignResources, c, "")}
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected, pgQueryCanceled:
			return StorageError{Op: op, Retryable: true, Err: err}
		default:
			return StorageError{Op: op, Err: err}
		}
	}

	if inTaxonomy(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return StorageError{Op: op, Retryable: pgconn.SafeToRetry(err) || pgconn.Timeout(err), Err: err}
}

func inTaxonomy(err error) bool {
	for _, kind := range []error{ErrInvalidInput, ErrNotFound, ErrConflict, ErrNotActive, ErrUnauthenticated, ErrForbidden, ErrStorage} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func fieldOr(m map[string]string, key, def string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}
