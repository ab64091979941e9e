// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/meterline/internal/cache"
	"github.com/tomtom215/meterline/internal/database"
	"github.com/tomtom215/meterline/internal/graph"
	"github.com/tomtom215/meterline/internal/models"
	"github.com/tomtom215/meterline/internal/timeseries"
	"github.com/tomtom215/meterline/internal/validation"
)

// referenceRequest is the path parameter shared by equipment routes.
type referenceRequest struct {
	Reference string `validate:"equipment_ref"`
}

// dataRequest holds the validated query of the data endpoint.
type dataRequest struct {
	Reference string     `validate:"equipment_ref"`
	From      *time.Time `validate:"omitempty"`
	To        *time.Time `validate:"omitempty,gtfield=From"`
	Weeks     int        `validate:"gte=0,lte=520"`
	Period    string     `validate:"omitempty,period"`
}

// validateRequest writes a 400 and returns false when req is invalid.
func validateRequest(w http.ResponseWriter, req interface{}) bool {
	verr := validation.ValidateStruct(req)
	if verr == nil {
		return true
	}
	apiErr := verr.ToAPIError()
	respondErrorWithDetails(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details, nil)
	return false
}

// pathReference reads and validates the {reference} path parameter.
func pathReference(w http.ResponseWriter, r *http.Request) (string, bool) {
	req := referenceRequest{Reference: chi.URLParam(r, "reference")}
	return req.Reference, validateRequest(w, &req)
}

// ListEquipment returns every stored equipment ordered by reference.
func (h *Handler) ListEquipment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	equipment, err := h.store.ListEquipment(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to list equipment", err)
		return
	}
	if equipment == nil {
		equipment = []models.Equipment{}
	}
	respondSuccess(w, start, equipment)
}

// GetEquipment returns one equipment with its channels and watermark.
func (h *Handler) GetEquipment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ref, ok := pathReference(w, r)
	if !ok {
		return
	}

	eq, err := h.store.GetEquipment(r.Context(), ref)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Unknown equipment reference", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to read equipment", err)
		return
	}

	streams, err := h.store.ListDataStreams(r.Context(), ref)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to list channels", err)
		return
	}
	if streams == nil {
		streams = []models.DataStream{}
	}

	detail := models.EquipmentDetail{Equipment: *eq, Streams: streams}
	watermark, empty, err := h.store.Watermark(r.Context(), ref)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to read watermark", err)
		return
	}
	if !empty {
		detail.Watermark = &watermark
	}
	respondSuccess(w, start, detail)
}

// EquipmentData returns the readings of one equipment pivoted by channel,
// optionally windowed and resampled.
func (h *Handler) EquipmentData(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := dataRequest{
		Reference: chi.URLParam(r, "reference"),
		Period:    r.URL.Query().Get("period"),
	}
	var err error
	if req.From, err = h.parseTimeParam(r, "from"); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if req.To, err = h.parseTimeParam(r, "to"); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if req.Weeks, err = getIntParam(r, "weeks", 0); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	// to is validated against the resolved start.
	if req.From == nil {
		switch {
		case req.Weeks > 0:
			from := h.weeksStart(req.Weeks)
			req.From = &from
		case req.To != nil:
			epoch := models.SyncEpoch
			req.From = &epoch
		}
	}
	if !validateRequest(w, &req) {
		return
	}

	key := cache.GenerateKey("data", req)
	if table, ok := h.tables.Get(key); ok {
		respondSuccess(w, start, table)
		return
	}

	rows, err := h.store.GetEquipmentData(r.Context(), req.Reference, req.From, req.To)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to read equipment data", err)
		return
	}

	wide := timeseries.Pivot(rows)
	if req.Period != "" {
		period, _ := timeseries.ParsePeriod(req.Period) // validated above
		wide = timeseries.Resample(wide, period, h.markers)
	}
	table := wide.ToModel(req.Reference)
	h.tables.Set(key, table)
	respondSuccess(w, start, table)
}

// loadGraph returns the equipment graph, loading it on a cache miss.
func (h *Handler) loadGraph(ctx context.Context) (*graph.Graph, error) {
	if g, ok := h.graphs.Get("graph"); ok {
		return g, nil
	}
	g, err := graph.Load(ctx, h.store)
	if err != nil {
		return nil, err
	}
	h.graphs.Set("graph", g)
	return g, nil
}

// EquipmentGraph resolves the children and attached systems of one
// equipment.
func (h *Handler) EquipmentGraph(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ref, ok := pathReference(w, r)
	if !ok {
		return
	}
	recursive, err := getBoolParam(r, "recursive", false)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	attachments, err := getBoolParam(r, "attachments", true)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}

	g, err := h.loadGraph(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to load equipment graph", err)
		return
	}
	res, err := g.Resolve(ref, recursive, attachments)
	if errors.Is(err, graph.ErrUnknownReference) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Unknown equipment reference", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to resolve equipment graph", err)
		return
	}
	respondSuccess(w, start, res.ToModel())
}

// Watermark reports the incremental-sync watermark of one equipment.
func (h *Handler) Watermark(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ref, ok := pathReference(w, r)
	if !ok {
		return
	}
	watermark, empty, err := h.store.Watermark(r.Context(), ref)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to read watermark", err)
		return
	}
	respondSuccess(w, start, models.WatermarkResponse{Reference: ref, Watermark: watermark, Empty: empty})
}
