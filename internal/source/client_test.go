// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/meterline/internal/config"
	"github.com/tomtom215/meterline/internal/timeseries"
)

var testColumns = config.SourceColumns{
	Timestamp: "Timestamp",
	Value:     "RAWDATA.VALUE",
	Channel:   "CHANNEL.REFERENCE",
	Unit:      "CHANNEL.CNL_DAC_UNIT",
	Equipment: "METER.REFERENCE",
}

const columnsJSON = `[{"reference":"CHANNEL.REFERENCE"},{"reference":"Timestamp"},{"reference":"RAWDATA.VALUE"},{"reference":"CHANNEL.CNL_DAC_UNIT"},{"reference":"METER.REFERENCE"},{"reference":"EXTRA"}]`

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	zone, err := timeseries.NewZonePolicy("Europe/Amsterdam", "", "")
	require.NoError(t, err)
	return NewClient(&config.SourceConfig{
		RootURL:        url,
		APIURL:         "/api/query/",
		Dataset:        "readings",
		RequestTimeout: 5 * time.Second,
		RateBurst:      1,
		MaxRetries:     2,
		RetryBaseDelay: 10 * time.Millisecond,
		Columns:        testColumns,
	}, zone)
}

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchDecodesRows(t *testing.T) {
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 11, 6, 30, 45, 0, time.UTC)

	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/query/readings", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var q queryRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, "2024-01-10T00:00:00.000Z", q.From)
		assert.Equal(t, "2024-01-11T06:30:00.000Z", q.To, "seconds are dropped from the window")
		assert.Equal(t, []string{"EQ-1"}, q.Selection)

		fmt.Fprintf(w, `{"tables":[{"columns":%s,"rows":[
			["Power","2024-01-10T00:15:00",12.5,"kW","EQ-1","x"],
			["Power","2024-01-10T00:30:00Z","13,25","kW","EQ-1","x"],
			["PumpState","2024-01-10T00:15:00+00:00",1,"","EQ-1","x"],
			["PumpState",1704846600000,null,null,"EQ-1","x"]
		]}]}`, columnsJSON)
	})

	table, err := testClient(t, srv.URL).Fetch(context.Background(), "EQ-1", start, end, "tok-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"Timestamp", "RAWDATA.VALUE", "CHANNEL.REFERENCE", "CHANNEL.CNL_DAC_UNIT", "METER.REFERENCE"}, table.Columns)
	require.Equal(t, 4, table.Len())
	assert.Equal(t, []string{"Power", "PumpState"}, table.Channels())

	first := table.Rows[0]
	assert.Equal(t, time.Date(2024, 1, 10, 0, 15, 0, 0, time.UTC), first.Timestamp, "naive values are kept as wall time")
	require.NotNil(t, first.Value)
	assert.Equal(t, 12.5, *first.Value)
	assert.Equal(t, "kW", first.Unit)
	assert.Equal(t, "EQ-1", first.Equipment)

	assert.Equal(t, time.Date(2024, 1, 10, 0, 30, 0, 0, time.UTC), table.Rows[1].Timestamp)
	assert.Equal(t, 13.25, *table.Rows[1].Value, "decimal comma accepted")

	// Instants are converted to Amsterdam wall time (UTC+1 in January).
	assert.Equal(t, time.Date(2024, 1, 10, 1, 15, 0, 0, time.UTC), table.Rows[2].Timestamp)
	assert.Equal(t, time.Date(2024, 1, 10, 1, 30, 0, 0, time.UTC), table.Rows[3].Timestamp)
	assert.Nil(t, table.Rows[3].Value)
}

func TestFetchEmptyResult(t *testing.T) {
	bodies := []string{
		`{"tables":[]}`,
		`{}`,
		`{"tables":[{"columns":[],"rows":[]}]}`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			srv := serve(t, func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, body) })

			table, err := testClient(t, srv.URL).Fetch(context.Background(), "EQ-1", time.Now().Add(-time.Hour), time.Now(), "t")
			require.NoError(t, err)
			assert.Equal(t, 0, table.Len())
			assert.Len(t, table.Columns, 5, "expected columns are still reported")
		})
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"expired"}`},
		{name: "server error", status: http.StatusBadGateway, body: "upstream down"},
		{name: "malformed payload", status: http.StatusOK, body: `{"tables":[`},
		{name: "missing column", status: http.StatusOK, body: `{"tables":[{"columns":[{"reference":"Timestamp"}],"rows":[["2024-01-10T00:00:00"]]}]}`, sentinel: ErrMissingColumn},
		{name: "bad timestamp", status: http.StatusOK, body: fmt.Sprintf(`{"tables":[{"columns":%s,"rows":[["Power","yesterday",1,"kW","EQ-1",0]]}]}`, columnsJSON)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := testClient(t, srv.URL).Fetch(context.Background(), "EQ-9", time.Now().Add(-time.Hour), time.Now(), "t")
			require.Error(t, err)

			var fetchErr *FetchError
			require.True(t, errors.As(err, &fetchErr))
			assert.Equal(t, "EQ-9", fetchErr.Reference)
			assert.Equal(t, tt.status, fetchErr.StatusCode)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestFetchRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"tables":[]}`)
	})

	_, err := testClient(t, srv.URL).Fetch(context.Background(), "EQ-1", time.Now().Add(-time.Hour), time.Now(), "t")
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetchRateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := testClient(t, srv.URL).Fetch(context.Background(), "EQ-1", time.Now().Add(-time.Hour), time.Now(), "t")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.EqualValues(t, 3, calls.Load(), "initial attempt plus MaxRetries")
}

func TestFetchHonoursContext(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := testClient(t, srv.URL).Fetch(ctx, "EQ-1", time.Now().Add(-time.Hour), time.Now(), "t")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadBodyForErrorTruncates(t *testing.T) {
	big := make([]byte, maxErrorBodySize+100)
	for i := range big {
		big[i] = 'a'
	}
	got := readBodyForError(bytes.NewReader(big))
	assert.Len(t, got, maxErrorBodySize+len("... (truncated)"))
}
