// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package models

import (
	"math"
	"time"

	"github.com/goccy/go-json"
)

// APIResponse wraps every read API response.
//
//	{"status":"success","data":{...},"metadata":{"timestamp":"...","query_time_ms":4}}
//	{"status":"error","error":{"code":"NOT_FOUND","message":"..."},"metadata":{...}}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries timing information for a response.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is the error body of a failed request.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WideTable is the JSON shape of a channel-pivoted time series: one row per
// timestamp, one value per column, null where a channel has no value.
type WideTable struct {
	Reference string        `json:"reference"`
	Columns   []string      `json:"columns"`
	Index     []time.Time   `json:"index"`
	Values    [][]NullFloat `json:"values"`
}

// NullFloat marshals NaN as JSON null.
type NullFloat float64

// MarshalJSON implements json.Marshaler.
func (f NullFloat) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

// GraphResponse is the read API view of a graph resolution.
type GraphResponse struct {
	Reference string   `json:"reference"`
	Recursive bool     `json:"recursive"`
	Children  []string `json:"children"`
	Attached  []string `json:"attached"`
	Cycles    []string `json:"cycles,omitempty"`
}

// WatermarkResponse reports the incremental-sync watermark of a reference.
type WatermarkResponse struct {
	Reference string    `json:"reference"`
	Watermark time.Time `json:"watermark"`
	Empty     bool      `json:"empty"`
}
