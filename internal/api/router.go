// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers and middleware into a chi router.
type Router struct {
	handler    *Handler
	middleware *Middleware
	websocket  http.Handler
}

// NewRouter creates a router. websocket may be nil, in which case the
// /api/v1/ws route is not registered.
func NewRouter(handler *Handler, middleware *Middleware, websocket http.Handler) *Router {
	return &Router{handler: handler, middleware: middleware, websocket: websocket}
}

// Setup returns the configured http.Handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())

		// The upgrade needs the raw ResponseWriter, so the stream skips
		// the metrics wrapper.
		if router.websocket != nil {
			r.Method(http.MethodGet, "/ws", router.websocket)
		}

		r.Group(func(r chi.Router) {
			r.Use(PrometheusMetrics)

			r.Get("/health", router.handler.Health)
			r.Get("/stats", router.handler.Stats)

			r.Route("/equipment", func(r chi.Router) {
				r.Get("/", router.handler.ListEquipment)
				r.Route("/{reference}", func(r chi.Router) {
					r.Get("/", router.handler.GetEquipment)
					r.Get("/data", router.handler.EquipmentData)
					r.Get("/graph", router.handler.EquipmentGraph)
					r.Get("/watermark", router.handler.Watermark)
				})
			})

			r.Post("/sync/{reference}", router.handler.TriggerSync)
		})
	})

	return r
}
