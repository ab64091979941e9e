// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

// Package testinfra provides shared test infrastructure: an in-memory DuckDB
// store and a mock of the upstream data API.
//
// Everything runs in-process, so tests need neither Docker nor network
// access.
//
//	func TestSync(t *testing.T) {
//	    db := testinfra.NewTestDB(t)
//	    api := testinfra.NewMockDataAPI(t)
//	    api.SetReadings("EQ-1", testinfra.Row{Channel: "Power", ...})
//
//	    client := source.NewClient(api.SourceConfig(), zone)
//	    ...
//	}
package testinfra
