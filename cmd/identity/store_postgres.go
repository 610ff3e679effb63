package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"tdp/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements user persistence over PostgreSQL.
//
// The pgx pool is owned by the caller; this store never closes it.
// Schema/table identifiers are quoted via pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures a Postgres-backed store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !ValidSchemaName(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `id, email, display_name, is_active, created_at, updated_at`

// CreateUser inserts a new user row.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
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

	u := User{
		ID:          id,
		Email:       email,
		DisplayName: NormalizeDisplayName(in.DisplayName),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "users")+` (
		     id, email, password_hash, display_name, is_active, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, TRUE, $5, $5)`,
		u.ID, u.Email, in.PasswordHash, u.DisplayName, now,
	)
	if err != nil {
		return User{}, ClassifyStoreError(op, err)
	}

	return u, nil
}

// GetUserAuthByEmail loads a user with its password record.
func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByEmail"

	email = NormalizeEmail(email)
	if email == "" {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}

	var out UserAuth
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash
		   FROM `+pgIdent(s.schema, "users")+`
		  WHERE email = $1`,
		email,
	).Scan(
		&out.User.ID, &out.User.Email, &out.User.DisplayName, &out.User.IsActive,
		&out.User.CreatedAt, &out.User.UpdatedAt, &out.PasswordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
		}
		return UserAuth{}, ClassifyStoreError(op, err)
	}
	return out, nil
}

// GetUserByID loads a user by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	const op = "identity.GetUserByID"

	if !ids.Valid(userID) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+pgIdent(s.schema, "users")+` WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, ClassifyStoreError(op, err)
	}
	return u, nil
}

// UpdatePasswordHash replaces a user's password record.
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if strings.TrimSpace(passwordHash) == "" {
		return ValidationError{Op: op, Field: "password", Msg: "required"}
	}

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "users")+`
		    SET password_hash = $2, updated_at = $3
		  WHERE id = $1`,
		userID, passwordHash, now,
	)
	if err != nil {
		return ClassifyStoreError(op, err)
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// SetActive toggles the active flag.
func (s *PostgresStore) SetActive(ctx context.Context, userID string, active bool, now time.Time) error {
	const op = "identity.SetActive"

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "users")+`
		    SET is_active = $2, updated_at = $3
		  WHERE id = $1`,
		userID, active, now,
	)
	if err != nil {
		return ClassifyStoreError(op, err)
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// SearchUsers runs a case-insensitive substring search over email and display name.
func (s *PostgresStore) SearchUsers(ctx context.Context, q string, limit int) ([]User, error) {
	const op = "identity.SearchUsers"

	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(q))) + "%"

	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+`
		   FROM `+pgIdent(s.schema, "users")+`
		  WHERE lower(email) LIKE $1 ESCAPE '\'
		     OR lower(coalesce(display_name, '')) LIKE $1 ESCAPE '\'
		  ORDER BY email
		  LIMIT $2`,
		pattern, clampSearchLimit(limit),
	)
	if err != nil {
		return nil, ClassifyStoreError(op, err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) {
		var u User
		err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
		return u, err
	})
	if err != nil {
		return nil, ClassifyStoreError(op, err)
	}
	return users, nil
}

// ValidSchemaName reports whether s is a safe Postgres identifier.
func ValidSchemaName(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
