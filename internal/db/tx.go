package db

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RetryPolicy bounds how often a transaction is re-run after a write conflict.
// Retry n waits n*Backoff.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetry is used when no policy is configured.
var DefaultRetry = RetryPolicy{MaxRetries: 3, Backoff: 50 * time.Millisecond}

// PolicyFromConfig converts the YAML retry settings.
func PolicyFromConfig(rc config.RetryConfig) RetryPolicy {
	return RetryPolicy{MaxRetries: rc.MaxRetries, Backoff: rc.Backoff()}
}

// RunInTx runs fn inside a single transaction. Guards and writes performed by
// fn commit or roll back together. A *ConflictError (after classification)
// re-runs the whole transaction; every other error is returned as is.
func RunInTx(ctx context.Context, gdb *gorm.DB, policy RetryPolicy, fn func(tx *gorm.DB) error) error {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * policy.Backoff
			log.Printf("db: write conflict, retry %d/%d in %s: %v", attempt, policy.MaxRetries, wait, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err := gdb.WithContext(ctx).Transaction(fn, txOptions(gdb)...)
		if err == nil {
			return nil
		}
		err = Classify(err)
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			return err
		}
		lastErr = err
	}
	return apperr.WriteConflict(lastErr)
}

// txOptions returns SERIALIZABLE for Postgres; MySQL and SQLite run their defaults
// and rely on row locks (ForUpdate) or the single-writer lock respectively.
func txOptions(gdb *gorm.DB) []*sql.TxOptions {
	if gdb.Dialector.Name() == "postgres" {
		return []*sql.TxOptions{{Isolation: sql.LevelSerializable}}
	}
	return nil
}

// ForUpdate adds a row lock to the next query where the dialect supports it.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// NewID returns a fresh entity id.
func NewID() string {
	return uuid.NewString()
}
