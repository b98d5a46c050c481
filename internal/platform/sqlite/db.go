package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite "modernc.org/sqlite"
)

// SQLITE_BUSY: another connection holds the write lock. With WAL mode and
// a busy timeout this is rare, but cross-goroutine writes are routine here,
// so writes retry a bounded number of times instead of failing outright.
const busyResultCode = 5

const (
	busyRetryAttempts = 3
	busyRetryDelay    = 50 * time.Millisecond
)

// Open opens (creating if necessary) the embedded database at path and
// applies the pragmas the engine depends on: WAL journaling so concurrent
// readers never block the single writer, and a busy timeout so contending
// writers queue instead of erroring immediately.
func Open(path string, logger *slog.Logger) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database at %s: %w", path, err)
	}

	if logger != nil {
		logger.Info("database opened", "path", path, "journal_mode", "wal")
	}

	return db, nil
}

// isBusy reports whether err is the driver's SQLITE_BUSY result.
func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == busyResultCode
	}
	return false
}

// withBusyRetry runs op, retrying a bounded number of times when the
// database reports SQLITE_BUSY. Any other error is returned immediately.
func withBusyRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= busyRetryAttempts; attempt++ {
		err = op()
		if err == nil || !isBusy(err) {
			return err
		}

		select {
		case <-time.After(time.Duration(attempt) * busyRetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
