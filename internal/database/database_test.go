// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/meterline/internal/config"
	"github.com/tomtom215/meterline/internal/models"
)

// testDBSemaphore serializes DuckDB usage across tests. Concurrent CGO
// connections from many parallel tests can hang under CI pressure, so each
// test holds the slot for its whole lifetime.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	type result struct {
		db  *DB
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		t.Cleanup(func() { _ = res.db.Close() })
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatal("timed out creating test database")
		return nil
	}
}

func fp(v float64) *float64 { return &v }

func TestSchemaVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	version, err := db.GetCurrentSchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	require.NoError(t, db.Ping(ctx))
}

func TestEnsureEquipmentIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id1, err := db.EnsureEquipment(ctx, "M1")
	require.NoError(t, err)
	id2, err := db.EnsureEquipment(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	e, err := db.GetEquipment(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, "M1", e.Name, "new equipment is named after its reference")
	assert.Nil(t, e.Parent)

	_, err = db.GetEquipment(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestImportGraph(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	res, err := db.ImportGraph(ctx, GraphImport{
		Equipment: []models.Equipment{
			{Reference: "A", Name: "Main"},
			{Reference: "B", Name: ""},
			{Reference: "C", Name: "Pump"},
		},
		Parents:   map[string]string{"B": "A", "C": "A", "ghost": "A"},
		Endpoints: []string{"B", "C", "X"},
		Connect: func(ids map[string]int64) []models.EquipmentConnection {
			assert.NotContains(t, ids, "X")
			return []models.EquipmentConnection{{Equipment: ids["B"], EquipmentConnection: ids["C"]}}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.EquipmentInserted)
	assert.Equal(t, 2, res.ParentsSet, "unknown children are ignored")
	assert.Equal(t, 1, res.ConnectionsInserted)

	a, err := db.GetEquipment(ctx, "A")
	require.NoError(t, err)
	b, err := db.GetEquipment(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "B", b.Name, "empty name falls back to the reference")
	require.NotNil(t, b.Parent)
	assert.Equal(t, a.ID, *b.Parent)

	// A second import neither renames nor duplicates.
	res, err = db.ImportGraph(ctx, GraphImport{
		Equipment: []models.Equipment{{Reference: "A", Name: "Renamed"}},
		Endpoints: []string{"B", "C"},
		Connect: func(ids map[string]int64) []models.EquipmentConnection {
			return []models.EquipmentConnection{{Equipment: ids["B"], EquipmentConnection: ids["C"]}}
		},
	})
	require.NoError(t, err)
	assert.Zero(t, res.EquipmentInserted)
	assert.Zero(t, res.ConnectionsInserted)

	a, err = db.GetEquipment(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "Main", a.Name)

	equipment, connections, err := db.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Len(t, equipment, 3)
	assert.Len(t, connections, 1)
}

func TestImportGraphClearsParents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	equipment := []models.Equipment{{Reference: "A"}, {Reference: "B"}, {Reference: "C"}}
	res, err := db.ImportGraph(ctx, GraphImport{
		Equipment: equipment,
		Parents:   map[string]string{"A": "", "B": "A", "C": "A"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ParentsSet)
	assert.Zero(t, res.ParentsCleared)

	// B loses its parent, C moves under B, and A points at an unknown parent.
	res, err = db.ImportGraph(ctx, GraphImport{
		Equipment: equipment,
		Parents:   map[string]string{"A": "ghost", "B": "", "C": "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ParentsSet)
	assert.Equal(t, 1, res.ParentsCleared)

	a, err := db.GetEquipment(ctx, "A")
	require.NoError(t, err)
	assert.Nil(t, a.Parent)
	b, err := db.GetEquipment(ctx, "B")
	require.NoError(t, err)
	assert.Nil(t, b.Parent)
	c, err := db.GetEquipment(ctx, "C")
	require.NoError(t, err)
	require.NotNil(t, c.Parent)
	assert.Equal(t, b.ID, *c.Parent)
}

func TestWriteChannelUpserts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, err := db.EnsureEquipment(ctx, "M1")
	require.NoError(t, err)

	t0 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	batch := models.ChannelBatch{
		Equipment: "M1",
		Channel:   "C1",
		Unit:      "kW",
		Values: []models.Sample{
			{Timestamp: t0, Value: fp(1)},
			{Timestamp: t0.Add(15 * time.Minute), Value: nil},
		},
	}
	n, err := db.WriteChannel(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Same timestamps again: values and unit overwritten, no new rows.
	batch.Unit = "MW"
	batch.Values[0].Value = fp(5)
	_, err = db.WriteChannel(ctx, batch)
	require.NoError(t, err)

	counts, err := db.GetRecordCounts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts.DataStreams)
	assert.EqualValues(t, 2, counts.Values)

	streams, err := db.ListDataStreams(ctx, "M1")
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, "MW", streams[0].Unit)

	readings, err := db.GetEquipmentData(ctx, "M1", nil, nil)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 5.0, *readings[0].Value)
	assert.Nil(t, readings[1].Value)
	assert.Equal(t, "C1", readings[0].Channel)
	assert.Equal(t, "M1", readings[0].Equipment)
}

func TestWriteChannelRollsBackOnFailure(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, err := db.EnsureEquipment(ctx, "M1")
	require.NoError(t, err)

	_, err = db.WriteChannel(ctx, models.ChannelBatch{
		Equipment: "M1",
		Channel:   "",
		Values:    []models.Sample{{Timestamp: time.Now().UTC(), Value: fp(1)}},
	})
	require.Error(t, err, "empty channel names violate the data_stream check")

	_, err = db.WriteChannel(ctx, models.ChannelBatch{Equipment: "unknown", Channel: "C1"})
	assert.True(t, errors.Is(err, ErrNotFound))

	counts, err := db.GetRecordCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.DataStreams)
	assert.Zero(t, counts.Values)
}

func TestWatermark(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, err := db.EnsureEquipment(ctx, "M1")
	require.NoError(t, err)

	wm, empty, err := db.Watermark(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, empty)
	assert.True(t, wm.Equal(models.SyncEpoch))

	latest := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	for _, ch := range []string{"C1", "C2"} {
		_, err := db.WriteChannel(ctx, models.ChannelBatch{
			Equipment: "M1",
			Channel:   ch,
			Values: []models.Sample{
				{Timestamp: latest.Add(-time.Hour), Value: fp(1)},
				{Timestamp: latest, Value: fp(2)},
			},
		})
		require.NoError(t, err)
	}

	wm, empty, err = db.Watermark(ctx, "M1")
	require.NoError(t, err)
	assert.False(t, empty)
	assert.True(t, wm.Equal(latest), "got %s", wm)
}

func TestGetEquipmentDataRange(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, err := db.EnsureEquipment(ctx, "M1")
	require.NoError(t, err)

	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var samples []models.Sample
	for i := 0; i < 4; i++ {
		samples = append(samples, models.Sample{Timestamp: t0.Add(time.Duration(i) * time.Hour), Value: fp(float64(i))})
	}
	_, err = db.WriteChannel(ctx, models.ChannelBatch{Equipment: "M1", Channel: "C1", Values: samples})
	require.NoError(t, err)

	from := t0.Add(time.Hour)
	to := t0.Add(3 * time.Hour)
	readings, err := db.GetEquipmentData(ctx, "M1", &from, &to)
	require.NoError(t, err)
	require.Len(t, readings, 2, "lower bound inclusive, upper bound exclusive")
	assert.True(t, readings[0].Timestamp.Equal(from))
}

func TestIsTransactionConflict(t *testing.T) {
	assert.False(t, isTransactionConflict(nil))
	assert.True(t, isTransactionConflict(errors.New("TransactionContext Error: Transaction conflict on update")))
	assert.False(t, isTransactionConflict(errors.New("Constraint Error")))
}
