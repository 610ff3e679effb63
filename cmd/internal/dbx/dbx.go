// Package dbx holds the unit-of-work helper shared by the pgx-backed stores.
package dbx

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Beginner is satisfied by *pgxpool.Pool (and by test doubles).
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// ReadWrite is the isolation used for every multi-statement mutation: row locks plus
// conditional updates give single-writer semantics without SERIALIZABLE retries.
var ReadWrite = pgx.TxOptions{
	IsoLevel:   pgx.ReadCommitted,
	AccessMode: pgx.ReadWrite,
}

// WithTx begins a transaction, runs fn with it, and commits when fn returns nil.
// Any error or panic rolls back, so partial writes are never observed.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, pool, dbx.ReadWrite, func(ctx context.Context, tx pgx.Tx) error {
//	    _, err := tx.Exec(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db Beginner, opts pgx.TxOptions, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	err = fn(ctx, tx)
	return err
}
