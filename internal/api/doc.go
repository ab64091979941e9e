// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
Package api serves the read API over the synchronized store.

Routes (chi):

	GET  /api/v1/health                              store and sync status
	GET  /api/v1/stats                               row counts per table
	GET  /api/v1/equipment                           every stored equipment
	GET  /api/v1/equipment/{reference}               one equipment with its channels
	GET  /api/v1/equipment/{reference}/data          channel-pivoted readings
	GET  /api/v1/equipment/{reference}/graph         children and attached systems
	GET  /api/v1/equipment/{reference}/watermark     incremental-sync watermark
	POST /api/v1/sync/{reference}                    on-demand sync
	GET  /api/v1/ws                                  live sync outcomes (websocket)
	GET  /metrics                                    Prometheus

Data Query Parameters:

  - from, to: window bounds as wall-clock time in the source zone
    (2006-01-02, 2006-01-02T15:04 or 2006-01-02T15:04:05), or RFC3339
    with an offset, which is converted to the source zone. to is exclusive.
  - weeks: window opening on the Monday n weeks before the current week
  - period: resample period (15min, 1h, 1d); channels whose name contains a
    state marker are aggregated by max, all others by mean

Every response uses the models.APIResponse envelope. Errors carry a
machine-readable code (BAD_REQUEST, NOT_FOUND, VALIDATION_ERROR,
SYNC_FAILED, DATABASE_ERROR, SERVICE_UNAVAILABLE).

Middleware:

Request IDs with logging correlation, real IP, panic recovery, CORS
(go-chi/cors) and per-IP rate limiting (go-chi/httprate). Request counts
and durations are recorded by route pattern.
*/
package api
