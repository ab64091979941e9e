// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/meterline/internal/metrics"
)

// ensureContext creates a context with 30-second timeout if none provided
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 30*time.Second)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, 30*time.Second)
	}
	return ctx, func() {}
}

// observe records the duration and outcome of a named query.
func observe(op, table string, start time.Time, err error) {
	metrics.RecordDBQuery(op, table, time.Since(start), err)
}

// Checkpoint forces a WAL checkpoint
func (db *DB) Checkpoint(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

// RecordCounts is the row count of every table.
type RecordCounts struct {
	Equipment   int64 `json:"equipment"`
	Connections int64 `json:"connections"`
	DataStreams int64 `json:"data_streams"`
	Values      int64 `json:"values"`
}

// GetRecordCounts returns the count of records in each table.
func (db *DB) GetRecordCounts(ctx context.Context) (RecordCounts, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var c RecordCounts
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM equipment),
			(SELECT COUNT(*) FROM equipment_connection),
			(SELECT COUNT(*) FROM data_stream),
			(SELECT COUNT(*) FROM time_data_value)
	`).Scan(&c.Equipment, &c.Connections, &c.DataStreams, &c.Values)
	if err != nil {
		return RecordCounts{}, fmt.Errorf("failed to count records: %w", err)
	}
	return c, nil
}
