// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
database_schema.go - Database Schema Management

Tables:
  - equipment: one row per equipment reference, with an optional parent id
  - equipment_connection: undirected attachment pairs between equipment ids
  - data_stream: one measurement channel per (name, equipment)
  - time_data_value: one reading per (timestamp, data_stream)

Uniqueness is carried entirely by the UNIQUE constraints; every write path is
an INSERT ... ON CONFLICT upsert, so there is no separate deduplication pass.
Foreign keys are not declared: DuckDB rewrites an UPDATE as delete+insert and
would reject the parent update of a referenced row.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) getTableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_equipment_id START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_data_stream_id START 1;`,

		`CREATE TABLE IF NOT EXISTS equipment (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_equipment_id'),
			reference VARCHAR NOT NULL UNIQUE,
			name VARCHAR NOT NULL,
			parent BIGINT
		);`,

		`CREATE TABLE IF NOT EXISTS equipment_connection (
			equipment BIGINT NOT NULL,
			equipment_connection BIGINT NOT NULL,
			UNIQUE (equipment, equipment_connection)
		);`,

		`CREATE TABLE IF NOT EXISTS data_stream (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_data_stream_id'),
			name VARCHAR NOT NULL CHECK (length(name) > 0),
			equipment BIGINT NOT NULL,
			unit VARCHAR,
			UNIQUE (name, equipment)
		);`,

		`CREATE TABLE IF NOT EXISTS time_data_value (
			timestamp TIMESTAMP NOT NULL,
			value DOUBLE,
			data_stream BIGINT NOT NULL,
			UNIQUE (timestamp, data_stream)
		);`,
	}
}

// createIndexes creates secondary indexes for the read paths.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getIndexQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) getIndexQueries() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_data_stream_equipment ON data_stream(equipment);`,
		`CREATE INDEX IF NOT EXISTS idx_time_data_value_stream ON time_data_value(data_stream);`,
	}
}
