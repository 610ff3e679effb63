package session

import (
	"context"
	"errors"
	"time"

	"tdp/cmd/identity"
	"tdp/cmd/security/token"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// execer is satisfied by *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertTx(ctx context.Context, db execer, table string, t RefreshToken) error {
	_, err := db.Exec(ctx, `
		INSERT INTO `+table+` (
			id, user_id, token_hash,
			issued_at, expires_at, revoked_at,
			replaced_by_token_id, device_info
		) VALUES (
			$1, $2, $3,
			$4, $5, NULL,
			NULL, $6
		)
	`, t.ID, t.UserID, t.TokenHash, t.IssuedAt, t.ExpiresAt, t.DeviceInfo)
	return err
}

func getByHashForUpdateTx(ctx context.Context, tx pgx.Tx, table, tokenHash string) (RefreshToken, error) {
	return scanRefreshToken(tx.QueryRow(ctx, `
		SELECT `+refreshColumns+`
		FROM `+table+`
		WHERE token_hash = $1
		FOR UPDATE
	`, tokenHash))
}

// rotateTx runs the rotation protocol inside tx:
//   - lock the current row by hash;
//   - require it active and hash-equal in fixed time;
//   - insert the successor;
//   - revoke the current row with a conditional update that must touch exactly one row.
//
// A concurrent rotation of the same token blocks on the row lock and then fails the
// conditional update, so at most one caller ever receives a successor.
func rotateTx(ctx context.Context, tx pgx.Tx, table, oldHash string, next RefreshToken, now time.Time) (RefreshToken, error) {
	const op = "session.Store.Rotate"

	cur, err := getByHashForUpdateTx(ctx, tx, table, oldHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshToken{}, identity.Unauthenticated(op)
	}
	if err != nil {
		return RefreshToken{}, err
	}
	if !token.EqualHex64(cur.TokenHash, oldHash) || !cur.Active(now) {
		return RefreshToken{}, identity.Unauthenticated(op)
	}

	next.UserID = cur.UserID
	next.IssuedAt = now
	next.ID = ""
	next, err = prepareInsert(op, next)
	if err != nil {
		return RefreshToken{}, err
	}

	if err := insertTx(ctx, tx, table, next); err != nil {
		return RefreshToken{}, err
	}

	ct, err := tx.Exec(ctx, `
		UPDATE `+table+`
		SET revoked_at = $2,
		    replaced_by_token_id = $3
		WHERE id = $1
		  AND revoked_at IS NULL
		  AND expires_at > $2
	`, cur.ID, now, next.ID)
	if err != nil {
		return RefreshToken{}, err
	}
	if ct.RowsAffected() != 1 {
		return RefreshToken{}, identity.Unauthenticated(op)
	}

	return next, nil
}
