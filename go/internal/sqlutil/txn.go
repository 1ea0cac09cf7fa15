package sqlutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Postgres error codes that mean the transaction can be retried as a whole.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// ErrStaleVersion marks an optimistic version check that lost to another
// writer. RunSerializable retries it like a serialization failure.
var ErrStaleVersion = errors.New("row version changed concurrently")

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// RunSerializable executes fn inside a SERIALIZABLE pgx transaction.
// If fn returns an error the tx rolls back, else it commits. Serialization
// failures and deadlocks restart the whole transaction, up to maxAttempts times.
func RunSerializable(ctx context.Context, db TxBeginner, maxAttempts int, fn func(tx pgx.Tx) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = runOnce(ctx, db, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("retrying serializable transaction")
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", maxAttempts, err)
}

func runOnce(ctx context.Context, db TxBeginner, fn func(tx pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}) // BEGIN
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx) // ROLLBACK
		return err
	}
	return tx.Commit(ctx) // COMMIT
}

// IsRetryable reports whether err is a Postgres serialization failure, a
// deadlock or a stale version check.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrStaleVersion) {
		return true
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}
