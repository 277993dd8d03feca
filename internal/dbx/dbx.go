// Package dbx holds the small pieces of database plumbing shared by the SQL
// stores: opening a Postgres pool that waits for the server to come up, and
// classifying driver errors by SQLSTATE.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

const driverName = "postgres"

// Open opens a Postgres pool and retries Ping with exponential backoff until
// it succeeds, ctx is done, or maxWait elapses.
func Open(ctx context.Context, dsn string, maxWait time.Duration) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := WaitReady(ctx, db, maxWait); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// WaitReady pings db until it answers.
func WaitReady(ctx context.Context, db *sql.DB, maxWait time.Duration) error {
	ping := func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return struct{}{}, db.PingContext(pingCtx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	if _, err := backoff.Retry(ctx, ping, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(maxWait)); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return sqlState(err) == pgerrcode.UniqueViolation
}

func IsForeignKeyViolation(err error) bool {
	return sqlState(err) == pgerrcode.ForeignKeyViolation
}

// IsInvalidText reports malformed literals, e.g. a non-uuid string compared
// against a uuid column.
func IsInvalidText(err error) bool {
	return sqlState(err) == pgerrcode.InvalidTextRepresentation
}
