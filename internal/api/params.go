// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/meterline/internal/timeseries"
)

// wallLayouts are accepted for naive wall-clock query values.
var wallLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
}

// parseTimeParam reads a time query parameter as a naive wall-clock value
// in the source zone. RFC3339 values with an offset are converted to that
// zone first. An absent parameter yields nil.
func (h *Handler) parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		wall := h.zone.Normalize(t)
		return &wall, nil
	}
	for _, layout := range wallLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			wall, err := h.zone.NormalizeWall(t)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			return &wall, nil
		}
	}
	return nil, fmt.Errorf("%s: unrecognised time %q", name, raw)
}

// getIntParam reads an integer query parameter, returning def when absent.
func getIntParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

// getBoolParam reads a boolean query parameter, returning def when absent.
func getBoolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return b, nil
}

// nowWall is the current time as a naive wall-clock value in the source zone.
func (h *Handler) nowWall() time.Time {
	return h.zone.Normalize(h.now())
}

// weeksStart returns the start of a window covering the current week and
// the n weeks before it, at Monday 00:00 wall time.
func (h *Handler) weeksStart(n int) time.Time {
	return timeseries.LastNWeeks(h.nowWall(), n, 0, 0, 0)
}
