package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tdp/cmd/identity"
	"tdp/cmd/identity/ids"
	"tdp/cmd/internal/dbx"
	"tdp/cmd/security/token"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (refresh_tokens).
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore) error

// WithSchema qualifies the table with schema (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !identity.ValidSchemaName(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.table = pgx.Identifier{schema, "refresh_tokens"}.Sanitize()
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed refresh-token store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	s := &PostgresStore{
		pool:  pool,
		table: pgx.Identifier{"public", "refresh_tokens"}.Sanitize(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

const refreshColumns = `id, user_id, token_hash, issued_at, expires_at, revoked_at, replaced_by_token_id, device_info`

func scanRefreshToken(row pgx.Row) (RefreshToken, error) {
	var t RefreshToken
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.IssuedAt,
		&t.ExpiresAt,
		&t.RevokedAt,
		&t.ReplacedByTokenID,
		&t.DeviceInfo,
	)
	return t, err
}

// Create inserts a new refresh token row.
func (s *PostgresStore) Create(ctx context.Context, t RefreshToken) (RefreshToken, error) {
	const op = "session.Store.Create"

	t, err := prepareInsert(op, t)
	if err != nil {
		return RefreshToken{}, err
	}
	if err := insertTx(ctx, s.pool, s.table, t); err != nil {
		return RefreshToken{}, identity.ClassifyStoreError(op, err)
	}
	return t, nil
}

// Validate loads an active token by hash.
func (s *PostgresStore) Validate(ctx context.Context, tokenHash string, now time.Time) (RefreshToken, error) {
	const op = "session.Store.Validate"

	if len(tokenHash) != 64 {
		return RefreshToken{}, identity.Unauthenticated(op)
	}

	t, err := scanRefreshToken(s.pool.QueryRow(ctx,
		`SELECT `+refreshColumns+` FROM `+s.table+` WHERE token_hash = $1`,
		tokenHash,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshToken{}, identity.Unauthenticated(op)
	}
	if err != nil {
		return RefreshToken{}, identity.ClassifyStoreError(op, err)
	}

	if !token.EqualHex64(t.TokenHash, tokenHash) || !t.Active(now) {
		return RefreshToken{}, identity.Unauthenticated(op)
	}
	return t, nil
}

// Rotate consumes oldHash and inserts next in a single transaction.
func (s *PostgresStore) Rotate(ctx context.Context, oldHash string, next RefreshToken, now time.Time) (RefreshToken, error) {
	const op = "session.Store.Rotate"

	if len(oldHash) != 64 {
		return RefreshToken{}, identity.Unauthenticated(op)
	}

	var out RefreshToken
	err := dbx.WithTx(ctx, s.pool, dbx.ReadWrite, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		out, err = rotateTx(ctx, tx, s.table, oldHash, next, now)
		return err
	})
	if err != nil {
		return RefreshToken{}, identity.ClassifyStoreError(op, err)
	}
	return out, nil
}

// Revoke marks a token revoked; unknown and already revoked tokens are a no-op.
func (s *PostgresStore) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	const op = "session.Store.Revoke"

	if len(tokenHash) != 64 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE `+s.table+`
		    SET revoked_at = $2
		  WHERE token_hash = $1
		    AND revoked_at IS NULL`,
		tokenHash, now,
	)
	return identity.ClassifyStoreError(op, err)
}

// RevokeAllForUser revokes every unrevoked token of userID.
func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time) error {
	const op = "session.Store.RevokeAllForUser"

	_, err := s.pool.Exec(ctx,
		`UPDATE `+s.table+`
		    SET revoked_at = $2
		  WHERE user_id = $1
		    AND revoked_at IS NULL`,
		userID, now,
	)
	return identity.ClassifyStoreError(op, err)
}

// prepareInsert validates t and fills the generated columns.
func prepareInsert(op string, t RefreshToken) (RefreshToken, error) {
	if t.UserID == "" {
		return RefreshToken{}, identity.ValidationError{Op: op, Field: "user_id", Msg: "required"}
	}
	if len(t.TokenHash) != 64 {
		return RefreshToken{}, identity.ValidationError{Op: op, Field: "token_hash", Msg: "must be 64 hex chars"}
	}
	if t.IssuedAt.IsZero() {
		t.IssuedAt = time.Now().UTC()
	}
	if !t.ExpiresAt.After(t.IssuedAt) {
		return RefreshToken{}, identity.ValidationError{Op: op, Field: "expires_at", Msg: "must be after issued_at"}
	}
	if t.ID == "" {
		id, err := ids.NewULID(t.IssuedAt)
		if err != nil {
			return RefreshToken{}, err
		}
		t.ID = id
	}
	t.RevokedAt = nil
	t.ReplacedByTokenID = nil
	t.DeviceInfo = normalizeDeviceInfo(t.DeviceInfo)
	return t, nil
}
