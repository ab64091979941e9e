// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
Package config loads and validates meterline configuration.

# Sources

Layers are merged with koanf v2, lowest priority first:

  - built-in defaults (defaultConfig)
  - a YAML file: CONFIG_PATH, else config.yaml, config.yml or
    /etc/meterline/config.yaml
  - environment variables listed in envMappings

Unmapped environment variables are ignored. List settings
(SYNC_REFERENCES, CORS_ORIGINS, STATE_MARKERS) accept comma-separated
values.

# Sections

	source    upstream login, data endpoint, timezone and DST policy, columns
	auth      handshake timeout and token cache (none, memory, badger)
	database  DuckDB path and resources
	sync      schedule, references, workers and retry policy
	import    equipment extract layout
	events    outcome bus backend (gochannel or nats) and topic
	server    read API listener, CORS and rate limiting
	logging   zerolog level and format

# Validation

Struct tags are checked with go-playground/validator. Source credentials
are only required when sync is enabled and server settings only when the
server is enabled. Cross-field rules (timezone lookup, badger cache path
and secret, NATS URL) live in config_validate.go.

# Environment Variables

	SOURCE_USER, SOURCE_PASSWORD, SOURCE_ROOT_URL, SOURCE_TENANT_URL
	SOURCE_AUTH_URL, SOURCE_TOKEN_URL, SOURCE_LOGIN_PATH, SOURCE_CLIENT_ID
	SOURCE_SCOPE, SOURCE_API_URL, SOURCE_DATASET, SOURCE_TIMEZONE
	SOURCE_AMBIGUOUS_TIME, SOURCE_NONEXISTENT_TIME, SOURCE_REQUEST_TIMEOUT
	SOURCE_RATE_LIMIT, SOURCE_RATE_BURST, SOURCE_MAX_RETRIES
	AUTH_TIMEOUT, AUTH_TOKEN_CACHE, AUTH_TOKEN_CACHE_PATH
	AUTH_TOKEN_CACHE_SECRET, AUTH_EXPIRY_SKEW
	DUCKDB_PATH, DUCKDB_MAX_MEMORY, DUCKDB_THREADS
	SYNC_ENABLED, SYNC_INTERVAL, SYNC_REFERENCES, SYNC_ALL_EQUIPMENT
	SYNC_WORKERS, SYNC_RETRY_ATTEMPTS, SYNC_RETRY_DELAY, SYNC_START_ON_BOOT
	IMPORT_FILE, IMPORT_DELIMITER, IMPORT_DECIMAL
	EVENTS_BACKEND, NATS_URL, EVENTS_TOPIC
	HTTP_ENABLED, HTTP_HOST, HTTP_PORT, HTTP_TIMEOUT, CORS_ORIGINS
	RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW, STATE_MARKERS
	LOG_LEVEL, LOG_FORMAT, LOG_CALLER
*/
package config
