// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/meterline/internal/models"
	"github.com/tomtom215/meterline/internal/sync"
)

// TriggerSync runs an on-demand sync of one reference. Optional start and
// end query parameters override the window. A fatal outcome answers 502
// with the outcome in the error details; a partial failure answers 200.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.syncer == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Sync is disabled", nil)
		return
	}
	ref, ok := pathReference(w, r)
	if !ok {
		return
	}

	var (
		opts sync.SyncOptions
		err  error
	)
	if opts.Start, err = h.parseTimeParam(r, "start"); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if opts.End, err = h.parseTimeParam(r, "end"); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}

	outcome, err := h.syncer.SyncReference(r.Context(), ref, opts)
	switch {
	case errors.Is(err, sync.ErrInvalidWindow):
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
	case err != nil:
		respondErrorWithDetails(w, http.StatusBadGateway, ErrCodeSyncFailed, "Sync failed",
			map[string]interface{}{"outcome": outcome}, nil)
	default:
		h.InvalidateCache()
		respondSuccess(w, start, outcome)
	}
}

// Health reports store connectivity and the last completed sync run.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	dbConnected := h.store.Ping(r.Context()) == nil

	status := models.HealthStatus{
		Status:            "healthy",
		Version:           Version,
		DatabaseConnected: dbConnected,
		SyncEnabled:       h.syncer != nil,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if !dbConnected {
		status.Status = "degraded"
	}
	if h.syncer != nil {
		if last := h.syncer.LastSyncTime(); !last.IsZero() {
			status.LastSyncTime = &last
		}
	}
	if h.clients != nil {
		status.WebSocketClients = h.clients.GetClientCount()
	}

	code := http.StatusOK
	if !dbConnected {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, &models.APIResponse{
		Status: "success",
		Data:   status,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// Stats returns the row count of every table.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	counts, err := h.store.GetRecordCounts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to count records", err)
		return
	}
	respondSuccess(w, start, counts)
}
