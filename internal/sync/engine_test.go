// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/meterline/internal/auth"
	"github.com/tomtom215/meterline/internal/database"
	"github.com/tomtom215/meterline/internal/models"
	"github.com/tomtom215/meterline/internal/source"
	"github.com/tomtom215/meterline/internal/testinfra"
)

// fixture serves two channels of EQ-1 around midnight of 2024-01-10.
func fixture(api *testinfra.MockDataAPI) {
	api.SetReadings("EQ-1",
		testinfra.Row{Timestamp: ts("2024-01-09T23:00"), Value: ptr(1.0), Channel: "Power", Unit: "kW"},
		testinfra.Row{Timestamp: ts("2024-01-09T23:00"), Value: ptr(100.0), Channel: "Energy", Unit: "kWh"},
		testinfra.Row{Timestamp: ts("2024-01-10T00:00"), Value: ptr(2.0), Channel: "Power", Unit: "kW"},
		testinfra.Row{Timestamp: ts("2024-01-10T00:00"), Value: ptr(101.0), Channel: "Energy", Unit: "kWh"},
		testinfra.Row{Timestamp: ts("2024-01-10T01:00"), Value: nil, Channel: "Power", Unit: "kW"},
	)
}

func newAPIEngine(t *testing.T) (*Engine, *database.DB, *testinfra.MockDataAPI, *recordingPublisher) {
	t.Helper()
	db := testinfra.NewTestDB(t)
	api := testinfra.NewMockDataAPI(t)
	fixture(api)

	zone := utcZone(t)
	client := source.NewClient(api.SourceConfig(), zone)
	engine := NewEngine(db, &stubAuthenticator{token: "tok"}, client, zone, newTestConfig())
	pub := &recordingPublisher{}
	engine.SetPublisher(pub)
	return engine, db, api, pub
}

func TestEngine_FirstSync(t *testing.T) {
	engine, db, api, pub := newAPIEngine(t)
	ctx := context.Background()

	outcome, err := engine.Sync(ctx, "EQ-1", testAuthConfig(), SyncOptions{End: ptr(ts("2024-01-11T00:00"))})
	require.NoError(t, err)

	assert.Equal(t, models.SyncSuccess, outcome.Status)
	assert.Equal(t, models.SyncEpoch, outcome.From)
	assert.Equal(t, 2, outcome.Channels)
	assert.Equal(t, 5, outcome.ValuesWritten)
	assert.NotEmpty(t, outcome.RunID)

	queries := api.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "2000-01-01T00:00:00.000Z", queries[0].From)
	assert.Equal(t, "2024-01-11T00:00:00.000Z", queries[0].To)
	assert.Equal(t, []string{"EQ-1"}, queries[0].Selection)
	assert.Equal(t, "Bearer tok", queries[0].Token)

	streams, err := db.ListDataStreams(ctx, "EQ-1")
	require.NoError(t, err)
	require.Len(t, streams, 2)
	units := map[string]string{}
	for _, s := range streams {
		units[s.Name] = s.Unit
	}
	assert.Equal(t, map[string]string{"Power": "kW", "Energy": "kWh"}, units)

	rows, err := db.GetEquipmentData(ctx, "EQ-1", nil, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 5)

	wm, empty, err := db.Watermark(ctx, "EQ-1")
	require.NoError(t, err)
	assert.False(t, empty)
	assert.Equal(t, ts("2024-01-10T01:00"), wm)

	published := pub.all()
	require.Len(t, published, 1)
	assert.Equal(t, outcome.RunID, published[0].RunID)
}

func TestEngine_IncrementalSync(t *testing.T) {
	engine, db, api, _ := newAPIEngine(t)
	ctx := context.Background()
	end := ptr(ts("2024-01-11T00:00"))

	_, err := engine.Sync(ctx, "EQ-1", testAuthConfig(), SyncOptions{End: end})
	require.NoError(t, err)

	outcome, err := engine.Sync(ctx, "EQ-1", testAuthConfig(), SyncOptions{Start: ptr(ts("2024-01-10T00:00")), End: end})
	require.NoError(t, err)
	assert.Equal(t, ts("2024-01-10T00:00"), outcome.From)
	// Power 00:00, Energy 00:00, Power 01:00 fall inside the window.
	assert.Equal(t, 3, outcome.ValuesWritten)

	// Without an explicit start the window opens at the watermark.
	_, err = engine.Sync(ctx, "EQ-1", testAuthConfig(), SyncOptions{End: end})
	require.NoError(t, err)

	queries := api.Queries()
	require.Len(t, queries, 3)
	assert.Equal(t, "2024-01-10T00:00:00.000Z", queries[1].From)
	assert.Equal(t, "2024-01-10T01:00:00.000Z", queries[2].From)

	counts, err := db.GetRecordCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), counts.Values)
}

func TestEngine_Idempotent(t *testing.T) {
	engine, db, _, _ := newAPIEngine(t)
	ctx := context.Background()
	opts := SyncOptions{Start: ptr(models.SyncEpoch), End: ptr(ts("2024-01-11T00:00"))}

	_, err := engine.Sync(ctx, "EQ-1", testAuthConfig(), opts)
	require.NoError(t, err)
	first, err := db.GetRecordCounts(ctx)
	require.NoError(t, err)

	_, err = engine.Sync(ctx, "EQ-1", testAuthConfig(), opts)
	require.NoError(t, err)
	second, err := db.GetRecordCounts(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), second.Equipment)
	assert.Equal(t, int64(2), second.DataStreams)
}

func TestEngine_WatermarkNeverRegresses(t *testing.T) {
	engine, db, api, _ := newAPIEngine(t)
	ctx := context.Background()
	end := ptr(ts("2024-01-11T00:00"))

	_, err := engine.Sync(ctx, "EQ-1", testAuthConfig(), SyncOptions{End: end})
	require.NoError(t, err)
	before, _, err := db.Watermark(ctx, "EQ-1")
	require.NoError(t, err)

	// The upstream now returns nothing: the watermark stays put.
	api.SetReadings("EQ-1")
	_, err = engine.Sync(ctx, "EQ-1", testAuthConfig(), SyncOptions{End: end})
	require.NoError(t, err)
	after, _, err := db.Watermark(ctx, "EQ-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEngine_ChannelIsolation(t *testing.T) {
	db := testinfra.NewTestDB(t)
	ctx := context.Background()

	fetcher := &stubFetcher{tables: map[string]*models.LongTable{
		"EQ-1": {Rows: []models.Reading{
			{Timestamp: ts("2024-01-10T00:00"), Value: ptr(1.0), Channel: "Power", Equipment: "EQ-1"},
			// An empty channel name violates the data_stream check constraint.
			{Timestamp: ts("2024-01-10T00:00"), Value: ptr(9.0), Channel: "", Equipment: "EQ-1"},
			{Timestamp: ts("2024-01-10T00:00"), Value: ptr(3.0), Channel: "Voltage", Equipment: "EQ-1"},
		}},
	}}
	engine := NewEngine(db, &stubAuthenticator{token: "tok"}, fetcher, utcZone(t), newTestConfig())

	outcome, err := engine.Sync(ctx, "EQ-1", testAuthConfig(), SyncOptions{End: ptr(ts("2024-01-11T00:00"))})
	require.NoError(t, err)
	assert.Equal(t, models.SyncPartialFailure, outcome.Status)
	assert.Equal(t, 3, outcome.Channels)
	assert.Equal(t, 2, outcome.ValuesWritten)
	assert.Equal(t, []string{""}, outcome.FailedChannelNames())

	streams, err := db.ListDataStreams(ctx, "EQ-1")
	require.NoError(t, err)
	assert.Len(t, streams, 2)
}

func TestEngine_FatalPaths(t *testing.T) {
	authErr := &auth.AuthenticationError{Step: auth.StepLogin, Err: auth.ErrMissingRedirect}

	tests := []struct {
		name        string
		authErr     error
		fetchErrs   []error
		wantFetches int
		check       func(t *testing.T, err error)
	}{
		{
			name:        "authentication failure",
			authErr:     authErr,
			wantFetches: 0,
			check: func(t *testing.T, err error) {
				var ae *auth.AuthenticationError
				assert.True(t, errors.As(err, &ae))
			},
		},
		{
			name:        "client error is not retried",
			fetchErrs:   []error{&source.FetchError{Reference: "EQ-1", StatusCode: http.StatusUnauthorized, Err: errors.New("denied")}},
			wantFetches: 1,
			check: func(t *testing.T, err error) {
				var fe *source.FetchError
				require.True(t, errors.As(err, &fe))
				assert.Equal(t, http.StatusUnauthorized, fe.StatusCode)
			},
		},
		{
			name: "server error exhausts retries",
			fetchErrs: []error{
				&source.FetchError{Reference: "EQ-1", StatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")},
				&source.FetchError{Reference: "EQ-1", StatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")},
			},
			wantFetches: 2,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "max retry attempts reached")
				var fe *source.FetchError
				assert.True(t, errors.As(err, &fe))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testinfra.NewTestDB(t)
			fetcher := &stubFetcher{errs: tt.fetchErrs}
			engine := NewEngine(db, &stubAuthenticator{token: "tok", err: tt.authErr}, fetcher, utcZone(t), newTestConfig())
			pub := &recordingPublisher{}
			engine.SetPublisher(pub)

			outcome, err := engine.Sync(context.Background(), "EQ-1", testAuthConfig(), SyncOptions{})
			require.Error(t, err)
			tt.check(t, err)

			require.NotNil(t, outcome)
			assert.Equal(t, models.SyncFatal, outcome.Status)
			assert.NotEmpty(t, outcome.Error)
			assert.Equal(t, tt.wantFetches, fetcher.calls)
			assert.Len(t, pub.all(), 1)

			counts, err := db.GetRecordCounts(context.Background())
			require.NoError(t, err)
			assert.Zero(t, counts.Values)
		})
	}
}

func TestEngine_TransientFetchRecovers(t *testing.T) {
	db := testinfra.NewTestDB(t)
	fetcher := &stubFetcher{
		errs: []error{&source.FetchError{Reference: "EQ-1", StatusCode: http.StatusServiceUnavailable, Err: errors.New("unavailable")}},
		tables: map[string]*models.LongTable{"EQ-1": {Rows: []models.Reading{
			{Timestamp: ts("2024-01-10T00:00"), Value: ptr(1.0), Channel: "Power", Equipment: "EQ-1"},
		}}},
	}
	engine := NewEngine(db, &stubAuthenticator{token: "tok"}, fetcher, utcZone(t), newTestConfig())

	outcome, err := engine.Sync(context.Background(), "EQ-1", testAuthConfig(), SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.SyncSuccess, outcome.Status)
	assert.Equal(t, 2, fetcher.calls)
	assert.Equal(t, 1, outcome.ValuesWritten)
}

func TestEngine_UpstreamHTTPFailure(t *testing.T) {
	engine, db, api, _ := newAPIEngine(t)
	api.SetStatus(http.StatusForbidden)

	outcome, err := engine.Sync(context.Background(), "EQ-1", testAuthConfig(), SyncOptions{End: ptr(ts("2024-01-11T00:00"))})
	require.Error(t, err)
	assert.Equal(t, models.SyncFatal, outcome.Status)

	// The equipment row is created before the fetch and survives it.
	_, err = db.GetEquipment(context.Background(), "EQ-1")
	assert.NoError(t, err)
}

func TestEngine_InvalidWindow(t *testing.T) {
	db := testinfra.NewTestDB(t)
	fetcher := &stubFetcher{}
	engine := NewEngine(db, &stubAuthenticator{token: "tok"}, fetcher, utcZone(t), newTestConfig())

	_, err := engine.Sync(context.Background(), "EQ-1", testAuthConfig(), SyncOptions{
		Start: ptr(ts("2024-02-01T00:00")),
		End:   ptr(ts("2024-01-01T00:00")),
	})
	assert.ErrorIs(t, err, ErrInvalidWindow)
	assert.Zero(t, fetcher.calls)
}

func TestEngine_DefaultEndIsNow(t *testing.T) {
	db := testinfra.NewTestDB(t)
	fetcher := &stubFetcher{}
	engine := NewEngine(db, &stubAuthenticator{token: "tok"}, fetcher, utcZone(t), newTestConfig())
	fixed := ts("2024-03-01T12:00")
	engine.now = func() time.Time { return fixed }

	outcome, err := engine.Sync(context.Background(), "EQ-1", testAuthConfig(), SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, fixed, outcome.To)
	assert.Equal(t, models.SyncEpoch, outcome.From)
	assert.Equal(t, 0, outcome.Channels)
}

func TestEngine_WatermarkAheadOfClock(t *testing.T) {
	db := testinfra.NewTestDB(t)
	fetcher := &stubFetcher{tables: map[string]*models.LongTable{"EQ-1": {Rows: []models.Reading{
		{Timestamp: ts("2024-10-27T02:50"), Value: ptr(1.0), Channel: "Power", Equipment: "EQ-1"},
	}}}}
	authn := &stubAuthenticator{token: "tok"}
	engine := NewEngine(db, authn, fetcher, utcZone(t), newTestConfig())
	ctx := context.Background()

	// The wall clock repeats 02:00-03:00 at the DST fall-back.
	engine.now = func() time.Time { return ts("2024-10-27T02:55") }
	_, err := engine.Sync(ctx, "EQ-1", testAuthConfig(), SyncOptions{})
	require.NoError(t, err)

	engine.now = func() time.Time { return ts("2024-10-27T02:10") }
	outcome, err := engine.Sync(ctx, "EQ-1", testAuthConfig(), SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.SyncSuccess, outcome.Status)
	assert.Equal(t, ts("2024-10-27T02:50"), outcome.From)
	assert.Equal(t, ts("2024-10-27T02:10"), outcome.To)
	assert.Zero(t, outcome.ValuesWritten)
	assert.Equal(t, 1, fetcher.calls, "nothing is fetched while the clock is behind")
	assert.Equal(t, int32(1), authn.calls.Load())

	wm, empty, err := db.Watermark(ctx, "EQ-1")
	require.NoError(t, err)
	assert.False(t, empty)
	assert.Equal(t, ts("2024-10-27T02:50"), wm)

	// An explicit start is still checked against the default end.
	_, err = engine.Sync(ctx, "EQ-1", testAuthConfig(), SyncOptions{Start: ptr(ts("2024-10-27T02:30"))})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}
