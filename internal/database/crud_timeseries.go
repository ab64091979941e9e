// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/meterline/internal/models"
)

// WriteChannel stores one channel of a sync in its own transaction: the
// data stream is upserted by (name, equipment) with the batch unit, then
// every sample is upserted by (timestamp, data_stream). A failure rolls back
// this channel only. The equipment must already exist.
//
// Samples must not repeat a timestamp; models.PartitionByChannel guarantees
// that.
func (db *DB) WriteChannel(ctx context.Context, batch models.ChannelBatch) (written int, err error) {
	start := time.Now()
	defer func() { observe("write_channel", "time_data_value", start, err) }()

	err = db.withTx(ctx, "write channel", func(tx *sql.Tx) error {
		written = 0

		var equipmentID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM equipment WHERE reference = ?`, batch.Equipment).Scan(&equipmentID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("equipment %q: %w", batch.Equipment, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to look up equipment %q: %w", batch.Equipment, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO data_stream (name, equipment, unit) VALUES (?, ?, ?)
			ON CONFLICT (name, equipment) DO UPDATE SET unit = excluded.unit`,
			batch.Channel, equipmentID, nullString(batch.Unit)); err != nil {
			return fmt.Errorf("failed to upsert data stream %q: %w", batch.Channel, err)
		}

		var streamID int64
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM data_stream WHERE name = ? AND equipment = ?`,
			batch.Channel, equipmentID).Scan(&streamID); err != nil {
			return fmt.Errorf("failed to read data stream id %q: %w", batch.Channel, err)
		}

		if len(batch.Values) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO time_data_value (timestamp, value, data_stream) VALUES (?, ?, ?)
			ON CONFLICT (timestamp, data_stream) DO UPDATE SET value = excluded.value`)
		if err != nil {
			return fmt.Errorf("failed to prepare value upsert: %w", err)
		}
		defer closeWithLog(stmt, "value upsert statement")

		for _, s := range batch.Values {
			if _, err := stmt.ExecContext(ctx, s.Timestamp.UTC(), s.Value, streamID); err != nil {
				return fmt.Errorf("failed to upsert value at %s: %w", s.Timestamp.Format(time.RFC3339), err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		written = 0
	}
	return written, err
}

// Watermark returns the latest stored timestamp across every data stream
// of reference. When nothing is stored yet it returns models.SyncEpoch and
// empty=true. The watermark is derived from persisted rows only, so it
// never moves backwards.
func (db *DB) Watermark(ctx context.Context, reference string) (watermark time.Time, empty bool, err error) {
	start := time.Now()
	defer func() { observe("watermark", "time_data_value", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var latest sql.NullTime
	err = db.conn.QueryRowContext(ctx, `
		SELECT MAX(v.timestamp)
		FROM time_data_value v
		JOIN data_stream s ON s.id = v.data_stream
		JOIN equipment e ON e.id = s.equipment
		WHERE e.reference = ?`, reference).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read watermark for %q: %w", reference, err)
	}
	if !latest.Valid {
		return models.SyncEpoch, true, nil
	}
	return latest.Time.UTC(), false, nil
}

// GetEquipmentData returns the stored readings of reference in long
// format, ordered by timestamp then channel. from defaults to
// models.SyncEpoch; a nil to leaves the range open at the end.
func (db *DB) GetEquipmentData(ctx context.Context, reference string, from, to *time.Time) (out []models.Reading, err error) {
	start := time.Now()
	defer func() { observe("select", "time_data_value", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	lower := models.SyncEpoch
	if from != nil {
		lower = from.UTC()
	}

	var query strings.Builder
	query.WriteString(`
		SELECT v.timestamp, v.value, s.name, s.unit, e.reference
		FROM time_data_value v
		JOIN data_stream s ON s.id = v.data_stream
		JOIN equipment e ON e.id = s.equipment
		WHERE e.reference = ? AND v.timestamp >= ?`)
	args := []interface{}{reference, lower}
	if to != nil {
		query.WriteString(` AND v.timestamp < ?`)
		args = append(args, to.UTC())
	}
	query.WriteString(` ORDER BY v.timestamp, s.name`)

	rows, err := db.conn.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query data for %q: %w", reference, err)
	}
	defer closeWithLog(rows, "reading rows")

	for rows.Next() {
		var (
			r     models.Reading
			value sql.NullFloat64
			unit  sql.NullString
		)
		if err := rows.Scan(&r.Timestamp, &value, &r.Channel, &unit, &r.Equipment); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		if value.Valid {
			v := value.Float64
			r.Value = &v
		}
		r.Unit = unit.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListDataStreams returns the channels stored for reference.
func (db *DB) ListDataStreams(ctx context.Context, reference string) ([]models.DataStream, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT s.id, s.name, s.equipment, s.unit
		FROM data_stream s
		JOIN equipment e ON e.id = s.equipment
		WHERE e.reference = ?
		ORDER BY s.name`, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to list data streams for %q: %w", reference, err)
	}
	defer closeWithLog(rows, "data stream rows")

	var out []models.DataStream
	for rows.Next() {
		var (
			s    models.DataStream
			unit sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Equipment, &unit); err != nil {
			return nil, fmt.Errorf("failed to scan data stream: %w", err)
		}
		s.Unit = unit.String
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
