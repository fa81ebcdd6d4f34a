package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// TxBeginner starts transactions. *pgxpool.Pool implements it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// LockingTxOptions is used for transactions that serialise through row locks.
// Under ReadCommitted a statement blocked on a row lock (FOR UPDATE, ON CONFLICT
// DO UPDATE) re-reads the committed row once the lock is released, so callers
// re-check their preconditions against the winner's writes instead of aborting.
var LockingTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// WithTx executes fn within a LockingTxOptions transaction.
func WithTx(ctx context.Context, pool TxBeginner, fn func(pgx.Tx) error) error {
	return WithTxOptions(ctx, pool, LockingTxOptions, fn)
}

// WithTxOptions executes fn within a transaction started with opts. The
// transaction is rolled back when fn returns an error. Serialization failures
// and deadlock aborts surface as shared.ErrConcurrentUpdate.
func WithTxOptions(ctx context.Context, pool TxBeginner, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return shared.WrapConcurrentUpdate(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return shared.WrapConcurrentUpdate(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}
