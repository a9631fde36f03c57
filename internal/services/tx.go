package services

import (
	"context"
	"errors"
	"time"

	"github.com/matlab-research/ontserve/internal/config"
	"github.com/matlab-research/ontserve/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockForUpdate adds a row lock to the query where the dialect supports one.
// SQLite is a single-writer engine and rejects the locking clause; the
// optimistic rows-affected guards still serialize writers there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	switch tx.Dialector.Name() {
	case "sqlite":
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// runInTx executes fn in a transaction with the configured commit timeout,
// retrying conflicts with linear backoff. Version flips and status
// transitions run through here; everything else uses the db directly.
func runInTx(ctx context.Context, db *gorm.DB, cfg *config.Config, fn func(tx *gorm.DB) error) error {
	attempts := cfg.TxRetryCount
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Duration(cfg.TxRetryBackoffMs) * time.Millisecond
	timeout := time.Duration(cfg.TxTimeoutMs) * time.Millisecond

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff * time.Duration(attempt)):
			}
		}

		txCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			txCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		err = db.WithContext(txCtx).Transaction(fn)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return nil
		}
		// A commit that outlived the bounded wait surfaces as a conflict
		// so the caller retries with backoff rather than treating it as
		// an infrastructure failure.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = types.ErrConflict
		}
		if !errors.Is(err, types.ErrConflict) {
			return err
		}
	}
	return err
}
