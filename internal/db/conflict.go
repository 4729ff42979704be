package db

import (
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// ConflictError marks a transient storage-level serialization failure. It is the
// only error RunInTx retries.
type ConflictError struct {
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("db: write conflict: %v", e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Postgres SQLSTATEs and MySQL error numbers that indicate a lost race.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	mysqlLockWaitTimeout   = 1205
	mysqlDeadlock          = 1213
)

// Classify wraps err in a *ConflictError when the driver reports a
// serialization failure, deadlock, busy database, or a unique-key race.
// Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var already *ConflictError
	if errors.As(err, &already) {
		return err
	}
	if isConflict(err) {
		return &ConflictError{Err: err}
	}
	return err
}

func isConflict(err error) bool {
	// Two writers inserting the same (parent, version) pair: the loser re-reads.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}
