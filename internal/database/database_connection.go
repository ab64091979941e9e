// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package database

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/tomtom215/meterline/internal/logging"
)

// configureConnectionPool sets connection pool parameters
func (db *DB) configureConnectionPool() error {
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
	return nil
}

// isTransactionConflict checks if an error is a DuckDB transaction conflict
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction conflict") ||
		strings.Contains(errStr, "Conflict on update") ||
		strings.Contains(errStr, "cannot update a table that has been altered")
}

// withTx runs fn inside a transaction. The transaction is rolled back when
// fn fails and committed otherwise. DuckDB conflicts between concurrent
// writers abort the whole transaction, so a conflict reruns fn from the
// start with exponential backoff.
func (db *DB) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt <= db.maxRetries; attempt++ {
		if attempt > 0 {
			delay := db.retryDelay * time.Duration(1<<uint(attempt-1))
			logging.Debug().Str("op", op).Int("attempt", attempt).Dur("delay", delay).Msg("Retrying after transaction conflict")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = db.runTx(ctx, fn)
		if lastErr == nil || !isTransactionConflict(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%s: gave up after %d conflict retries: %w", op, db.maxRetries, lastErr)
}

func (db *DB) runTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				logging.Error().
					Err(rbErr).
					AnErr("original_error", err).
					Msg("Transaction rollback failed")
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
