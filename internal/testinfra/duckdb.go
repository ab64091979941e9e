// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package testinfra

import (
	"testing"
	"time"

	"github.com/tomtom215/meterline/internal/config"
	"github.com/tomtom215/meterline/internal/database"
)

// dbSemaphore serializes DuckDB usage across the tests of one package.
var dbSemaphore = make(chan struct{}, 1)

// NewTestDB opens an in-memory store with the full schema. The store is
// closed when the test ends.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	dbSemaphore <- struct{}{}
	t.Cleanup(func() { <-dbSemaphore })

	type result struct {
		db  *database.DB
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("failed to open test database: %v", res.err)
		}
		t.Cleanup(func() { _ = res.db.Close() })
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatal("timed out creating test database")
		return nil
	}
}
