package store

import (
	"context"
	"database/sql"
)

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error returned by fn.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
