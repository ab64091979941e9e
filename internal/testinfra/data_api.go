// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/meterline/internal/config"
)

const (
	// MockAPIPath and MockDataset form the query path of the mock.
	MockAPIPath = "/api/query/"
	MockDataset = "readings"

	wallFormat = "2006-01-02T15:04:05"
)

// Row is one reading served by the mock.
type Row struct {
	Timestamp time.Time
	Value     *float64
	Channel   string
	Unit      string
}

// Query is a captured data query.
type Query struct {
	Token     string   `json:"-"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Selection []string `json:"selection"`
}

// MockDataAPI is an in-process stand-in for the upstream data API. It
// serves the rows registered per reference, filtered to the query window,
// and captures every query for verification.
type MockDataAPI struct {
	Server *httptest.Server

	mu       sync.Mutex
	readings map[string][]Row
	queries  []Query
	status   int
}

// NewMockDataAPI starts the mock. It is closed when the test ends.
func NewMockDataAPI(t *testing.T) *MockDataAPI {
	t.Helper()

	m := &MockDataAPI{readings: make(map[string][]Row)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Server.Close)
	return m
}

// SourceConfig returns a source configuration pointing at the mock with
// the default column names and no rate limiting.
func (m *MockDataAPI) SourceConfig() *config.SourceConfig {
	return &config.SourceConfig{
		RootURL:        m.Server.URL,
		TenantURL:      m.Server.URL + "/",
		APIURL:         MockAPIPath,
		Dataset:        MockDataset,
		Timezone:       "UTC",
		RequestTimeout: 5 * time.Second,
		RateBurst:      1,
		MaxRetries:     0,
		RetryBaseDelay: 10 * time.Millisecond,
		Columns: config.SourceColumns{
			Timestamp: "Timestamp",
			Value:     "RAWDATA.VALUE",
			Channel:   "CHANNEL.REFERENCE",
			Unit:      "CHANNEL.CNL_DAC_UNIT",
			Equipment: "METER.REFERENCE",
		},
	}
}

// SetReadings replaces the rows served for reference.
func (m *MockDataAPI) SetReadings(reference string, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings[reference] = append([]Row(nil), rows...)
}

// Queries returns the captured queries.
func (m *MockDataAPI) Queries() []Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Query(nil), m.queries...)
}

// SetStatus makes every following query fail with status (0 restores data).
func (m *MockDataAPI) SetStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

type mockColumn struct {
	Reference string `json:"reference"`
}

type mockTable struct {
	Columns []mockColumn    `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

func (m *MockDataAPI) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var q Query
	if err := json.Unmarshal(body, &q); err != nil {
		http.Error(w, "bad query", http.StatusBadRequest)
		return
	}
	q.Token = r.Header.Get("Authorization")

	m.mu.Lock()
	m.queries = append(m.queries, q)
	status := m.status
	var rows []Row
	for _, ref := range q.Selection {
		for _, row := range m.readings[ref] {
			if inWindow(row.Timestamp, q.From, q.To) {
				rows = append(rows, row)
			}
		}
	}
	m.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	table := mockTable{Columns: []mockColumn{
		{Reference: "Timestamp"},
		{Reference: "RAWDATA.VALUE"},
		{Reference: "CHANNEL.REFERENCE"},
		{Reference: "CHANNEL.CNL_DAC_UNIT"},
		{Reference: "METER.REFERENCE"},
	}}
	for _, row := range rows {
		var value interface{}
		if row.Value != nil {
			value = *row.Value
		}
		table.Rows = append(table.Rows, []interface{}{
			row.Timestamp.Format(wallFormat), value, row.Channel, row.Unit, q.Selection[0],
		})
	}

	resp := map[string]interface{}{"tables": []mockTable{}}
	if len(table.Rows) > 0 {
		resp["tables"] = []mockTable{table}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// inWindow applies the upstream window semantics: from and to are both
// inclusive, at minute resolution.
func inWindow(ts time.Time, from, to string) bool {
	const layout = "2006-01-02T15:04:05.000Z"
	start, err := time.Parse(layout, from)
	if err != nil {
		return false
	}
	end, err := time.Parse(layout, to)
	if err != nil {
		return false
	}
	return !ts.Before(start) && !ts.After(end)
}
