// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
Command server replicates equipment readings from a building-management
API into DuckDB and serves them over HTTP.

# Commands

	server                  run the sync scheduler, event bus and read API
	server import [flags]   load an equipment extract into the store and exit

import flags:

	-config path   config file (default: CONFIG_PATH or the default search paths)
	-file path     extract to load (default: import.file from config)

# Supervision

	meterline
	├── sync-layer        sync manager (when sync.enabled)
	├── messaging-layer   websocket hub, outcome subscriber, event bus
	└── api-layer         http server (when server.enabled)

# Configuration

Settings come from built-in defaults, then the YAML config file, then
environment variables (SOURCE_*, AUTH_*, DUCKDB_*, SYNC_*, IMPORT_*,
EVENTS_*, HTTP_*, LOG_*; see package config). Source credentials are only validated
when sync is enabled.

# Shutdown

SIGINT or SIGTERM cancels the root context. The HTTP server gets 10s to
drain open requests. In-flight syncs finish their current reference before
the manager stops.
*/
package main
