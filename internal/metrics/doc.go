// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
Package metrics defines meterline's Prometheus collectors. All collectors
are registered with the default registry through promauto and served at
/metrics by the read API.

# Collectors

Store:
  - meterline_duckdb_query_duration_seconds{operation, table}
  - meterline_duckdb_query_errors_total{operation, table}

Sync:
  - meterline_sync_duration_seconds
  - meterline_sync_outcomes_total{status}
  - meterline_sync_values_written_total
  - meterline_sync_channel_failures_total
  - meterline_sync_last_success_timestamp

Upstream:
  - meterline_auth_handshakes_total{result}
  - meterline_auth_token_cache_lookups_total{result}
  - meterline_upstream_request_duration_seconds{endpoint, status_code}
  - meterline_circuit_breaker_* (state, requests, failures, transitions)

Import:
  - meterline_import_rows_total
  - meterline_import_skipped_attachments_total

Read API:
  - meterline_api_requests_total{method, endpoint, status_code}
  - meterline_api_request_duration_seconds{method, endpoint}
  - meterline_websocket_clients

The endpoint label is the chi route pattern, never the raw path, so label
cardinality stays bounded by the route table.
*/
package metrics
