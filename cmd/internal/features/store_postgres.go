package features

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tdp/cmd/identity"
	"tdp/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps features in the features and user_features tables.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !identity.ValidSchemaName(schema) {
			return fmt.Errorf("features: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore. The pool stays owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "public"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("features: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

const featureColumns = `id, name, description, created_at`

func scanFeature(row pgx.Row) (Feature, error) {
	var f Feature
	err := row.Scan(&f.ID, &f.Name, &f.Description, &f.CreatedAt)
	return f, err
}

func (s *PostgresStore) List(ctx context.Context) ([]Feature, error) {
	const op = "features.List"

	rows, err := s.pool.Query(ctx, `SELECT `+featureColumns+` FROM `+s.table("features")+` ORDER BY name`)
	if err != nil {
		return nil, identity.ClassifyStoreError(op, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Feature, error) {
		return scanFeature(row)
	})
	if err != nil {
		return nil, identity.ClassifyStoreError(op, err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Feature, error) {
	const op = "features.Get"

	if !ids.Valid(id) {
		return Feature{}, identity.NotFoundError{Op: op, Resource: "feature"}
	}
	f, err := scanFeature(s.pool.QueryRow(ctx,
		`SELECT `+featureColumns+` FROM `+s.table("features")+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Feature{}, identity.NotFoundError{Op: op, Resource: "feature"}
		}
		return Feature{}, identity.ClassifyStoreError(op, err)
	}
	return f, nil
}

func (s *PostgresStore) Create(ctx context.Context, f Feature) (Feature, error) {
	const op = "features.Create"

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table("features")+` (id, name, description, created_at)
		 VALUES ($1, $2, $3, $4)`,
		f.ID, f.Name, f.Description, f.CreatedAt,
	)
	if err != nil {
		return Feature{}, identity.ClassifyStoreError(op, err)
	}
	return f, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, in UpdateInput) (Feature, error) {
	const op = "features.Update"

	if !ids.Valid(id) {
		return Feature{}, identity.NotFoundError{Op: op, Resource: "feature"}
	}
	f, err := scanFeature(s.pool.QueryRow(ctx,
		`UPDATE `+s.table("features")+`
		    SET name = $2, description = $3
		  WHERE id = $1
		RETURNING `+featureColumns,
		id, in.Name, in.Description,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Feature{}, identity.NotFoundError{Op: op, Resource: "feature"}
		}
		return Feature{}, identity.ClassifyStoreError(op, err)
	}
	return f, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	const op = "features.Delete"

	if !ids.Valid(id) {
		return identity.NotFoundError{Op: op, Resource: "feature"}
	}
	ct, err := s.pool.Exec(ctx, `DELETE FROM `+s.table("features")+` WHERE id = $1`, id)
	if err != nil {
		return identity.ClassifyStoreError(op, err)
	}
	if ct.RowsAffected() == 0 {
		return identity.NotFoundError{Op: op, Resource: "feature"}
	}
	return nil
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID string) ([]UserFeature, error) {
	const op = "features.ListForUser"

	rows, err := s.pool.Query(ctx,
		`SELECT f.id, f.name, f.description, f.created_at, uf.assigned_at
		   FROM `+s.table("user_features")+` uf
		   JOIN `+s.table("features")+` f ON f.id = uf.feature_id
		  WHERE uf.user_id = $1
		  ORDER BY f.name`,
		userID,
	)
	if err != nil {
		return nil, identity.ClassifyStoreError(op, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (UserFeature, error) {
		var uf UserFeature
		err := row.Scan(&uf.ID, &uf.Name, &uf.Description, &uf.CreatedAt, &uf.AssignedAt)
		return uf, err
	})
	if err != nil {
		return nil, identity.ClassifyStoreError(op, err)
	}
	return out, nil
}

func (s *PostgresStore) Assign(ctx context.Context, userID, featureID string, now time.Time) error {
	const op = "features.Assign"

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table("user_features")+` (user_id, feature_id, assigned_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, feature_id) DO NOTHING`,
		userID, featureID, now,
	)
	return identity.ClassifyStoreError(op, err)
}

func (s *PostgresStore) Unassign(ctx context.Context, userID, featureID string) error {
	const op = "features.Unassign"

	ct, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table("user_features")+` WHERE user_id = $1 AND feature_id = $2`,
		userID, featureID,
	)
	if err != nil {
		return identity.ClassifyStoreError(op, err)
	}
	if ct.RowsAffected() == 0 {
		return identity.NotFoundError{Op: op, Resource: "assignment"}
	}
	return nil
}

func (s *PostgresStore) HasFeature(ctx context.Context, userID, name string) (bool, error) {
	const op = "features.HasFeature"

	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1
		     FROM `+s.table("user_features")+` uf
		     JOIN `+s.table("features")+` f ON f.id = uf.feature_id
		    WHERE uf.user_id = $1 AND f.name = $2
		 )`,
		userID, name,
	).Scan(&ok)
	if err != nil {
		return false, identity.ClassifyStoreError(op, err)
	}
	return ok, nil
}
