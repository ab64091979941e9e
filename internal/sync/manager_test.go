// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/meterline/internal/models"
	"github.com/tomtom215/meterline/internal/source"
	"github.com/tomtom215/meterline/internal/testinfra"
)

type staticLister struct {
	refs []string
	err  error
}

func (l staticLister) ListReferences(context.Context) ([]string, error) {
	return l.refs, l.err
}

func oneReading(ref string) *models.LongTable {
	return &models.LongTable{Rows: []models.Reading{
		{Timestamp: ts("2024-01-10T00:00"), Value: ptr(1.0), Channel: "Power", Equipment: ref},
	}}
}

func TestManager_References(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cfgRef []string
		all    bool
		lister ReferenceLister
		want   []string
	}{
		{name: "configured only", cfgRef: []string{"B", "A", "B", ""}, want: []string{"B", "A"}},
		{name: "all equipment appended", cfgRef: []string{"B"}, all: true, lister: staticLister{refs: []string{"A", "B", "C"}}, want: []string{"B", "A", "C"}},
		{name: "all equipment ignored without flag", cfgRef: []string{"B"}, lister: staticLister{refs: []string{"A"}}, want: []string{"B"}},
		{name: "nothing", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := newTestConfig()
			cfg.References = tt.cfgRef
			cfg.AllEquipment = tt.all
			m := NewManager(nil, tt.lister, testAuthConfig(), cfg)

			got, err := m.references(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManager_ReferencesListError(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig()
	cfg.AllEquipment = true
	m := NewManager(nil, staticLister{err: errors.New("db down")}, testAuthConfig(), cfg)

	_, err := m.TriggerSync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.True(t, m.LastSyncTime().IsZero())
}

func TestManager_TriggerSync(t *testing.T) {
	db := testinfra.NewTestDB(t)
	fetcher := &stubFetcher{tables: map[string]*models.LongTable{
		"EQ-1": oneReading("EQ-1"),
		"EQ-2": oneReading("EQ-2"),
		"EQ-3": oneReading("EQ-3"),
	}}
	engine := NewEngine(db, &stubAuthenticator{token: "tok"}, fetcher, utcZone(t), newTestConfig())

	cfg := newTestConfig()
	cfg.References = []string{"EQ-1", "EQ-2", "EQ-3"}
	m := NewManager(engine, db, testAuthConfig(), cfg)

	var callbackOutcomes []*models.SyncOutcome
	m.SetOnSyncCompleted(func(o []*models.SyncOutcome) { callbackOutcomes = o })

	outcomes, err := m.TriggerSync(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for i, ref := range cfg.References {
		assert.Equal(t, ref, outcomes[i].Reference)
		assert.Equal(t, models.SyncSuccess, outcomes[i].Status)
		assert.Equal(t, 1, outcomes[i].ValuesWritten)
	}
	assert.Equal(t, outcomes, callbackOutcomes)
	assert.False(t, m.LastSyncTime().IsZero())

	counts, err := db.GetRecordCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Values)
}

func TestManager_FatalReferenceDoesNotStopSiblings(t *testing.T) {
	db := testinfra.NewTestDB(t)
	fetcher := &stubFetcher{
		tables:   map[string]*models.LongTable{"EQ-1": oneReading("EQ-1"), "EQ-3": oneReading("EQ-3")},
		failRefs: map[string]error{"EQ-2": &source.FetchError{Reference: "EQ-2", StatusCode: 404, Err: errors.New("unknown")}},
	}
	engine := NewEngine(db, &stubAuthenticator{token: "tok"}, fetcher, utcZone(t), newTestConfig())

	cfg := newTestConfig()
	cfg.Workers = 1
	m := NewManager(engine, nil, testAuthConfig(), cfg)

	outcomes := m.SyncReferences(context.Background(), []string{"EQ-1", "EQ-2", "EQ-3"})
	require.Len(t, outcomes, 3)
	assert.Equal(t, models.SyncSuccess, outcomes[0].Status)
	assert.Equal(t, models.SyncFatal, outcomes[1].Status)
	assert.Contains(t, outcomes[1].Error, "EQ-2")
	assert.Equal(t, models.SyncSuccess, outcomes[2].Status)
}

func TestManager_SyncReference(t *testing.T) {
	db := testinfra.NewTestDB(t)
	fetcher := &stubFetcher{tables: map[string]*models.LongTable{"EQ-9": oneReading("EQ-9")}}
	engine := NewEngine(db, &stubAuthenticator{token: "tok"}, fetcher, utcZone(t), newTestConfig())
	m := NewManager(engine, db, testAuthConfig(), newTestConfig())

	start := ts("2024-01-01T00:00")
	outcome, err := m.SyncReference(context.Background(), "EQ-9", SyncOptions{Start: &start})
	require.NoError(t, err)
	assert.Equal(t, start, outcome.From)
	assert.Equal(t, []time.Time{start}, fetcher.starts)
}

func TestManager_Lifecycle(t *testing.T) {
	db := testinfra.NewTestDB(t)
	fetcher := &stubFetcher{tables: map[string]*models.LongTable{"EQ-1": oneReading("EQ-1")}}
	engine := NewEngine(db, &stubAuthenticator{token: "tok"}, fetcher, utcZone(t), newTestConfig())

	cfg := newTestConfig()
	cfg.References = []string{"EQ-1"}
	cfg.StartOnBoot = true
	m := NewManager(engine, db, testAuthConfig(), cfg)

	done := make(chan struct{})
	m.SetOnSyncCompleted(func([]*models.SyncOutcome) {
		select {
		case <-done:
		default:
			close(done)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Start(ctx))
	assert.Error(t, m.Start(ctx), "second start must fail")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("initial sync did not run")
	}

	require.NoError(t, m.Stop())
	assert.Error(t, m.Stop(), "second stop must fail")
	assert.False(t, m.LastSyncTime().IsZero())
}

func TestManager_RestartAfterStop(t *testing.T) {
	db := testinfra.NewTestDB(t)
	fetcher := &stubFetcher{tables: map[string]*models.LongTable{"EQ-1": oneReading("EQ-1")}}
	engine := NewEngine(db, &stubAuthenticator{token: "tok"}, fetcher, utcZone(t), newTestConfig())

	cfg := newTestConfig()
	cfg.References = []string{"EQ-1"}
	cfg.Interval = 10 * time.Millisecond
	m := NewManager(engine, db, testAuthConfig(), cfg)

	ran := make(chan struct{}, 64)
	m.SetOnSyncCompleted(func([]*models.SyncOutcome) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop())

	// Drain runs from the first start, then expect the restarted loop to tick.
	for len(ran) > 0 {
		<-ran
	}
	require.NoError(t, m.Start(ctx))
	select {
	case <-ran:
	case <-time.After(10 * time.Second):
		t.Fatal("restarted manager did not sync")
	}
	require.NoError(t, m.Stop())
}
