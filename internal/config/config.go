// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

// Package config loads Meterline configuration from defaults, an optional
// YAML file and environment variables (highest priority), then validates it.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Source   SourceConfig   `koanf:"source"`
	Auth     AuthConfig     `koanf:"auth"`
	Database DatabaseConfig `koanf:"database"`
	Sync     SyncConfig     `koanf:"sync"`
	Import   ImportConfig   `koanf:"import"`
	Events   EventsConfig   `koanf:"events"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// SourceConfig describes the building-management API that readings are
// replicated from: login endpoints, data endpoint and response layout.
type SourceConfig struct {
	User      string `koanf:"user" validate:"required"`
	Password  string `koanf:"password" validate:"required"`
	RootURL   string `koanf:"root_url" validate:"required,url"`
	TenantURL string `koanf:"tenant_url" validate:"required,url"`
	AuthURL   string `koanf:"auth_url" validate:"required,startswith=/"`
	TokenURL  string `koanf:"token_url" validate:"required,startswith=/"`
	LoginPath string `koanf:"login_path" validate:"required,startswith=/"`
	ClientID  string `koanf:"client_id" validate:"required"`
	Scope     string `koanf:"scope" validate:"required"`

	APIURL  string `koanf:"api_url" validate:"required,startswith=/"`
	Dataset string `koanf:"dataset" validate:"required"`

	// Timezone is the IANA zone the upstream adjusts timestamps to.
	Timezone string `koanf:"timezone" validate:"required"`
	// AmbiguousTime picks the instant for wall times repeated at a DST fall-back.
	AmbiguousTime string `koanf:"ambiguous_time" validate:"oneof=earliest latest error"`
	// NonexistentTime handles wall times skipped at a DST spring-forward.
	NonexistentTime string `koanf:"nonexistent_time" validate:"oneof=shift_forward error"`

	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	RateLimit      float64       `koanf:"rate_limit" validate:"gte=0"`
	RateBurst      int           `koanf:"rate_burst" validate:"gte=1"`
	MaxRetries     int           `koanf:"max_retries" validate:"gte=0"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`

	Columns SourceColumns `koanf:"columns"`
}

// SourceColumns names the column references in the data API response.
type SourceColumns struct {
	Timestamp string `koanf:"timestamp" validate:"required"`
	Value     string `koanf:"value" validate:"required"`
	Channel   string `koanf:"channel" validate:"required"`
	Unit      string `koanf:"unit" validate:"required"`
	Equipment string `koanf:"equipment" validate:"required"`
}

// AuthConfig controls the login handshake and bearer-token reuse.
type AuthConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	// TokenCache is none, memory or badger. none re-authenticates every sync.
	TokenCache     string `koanf:"token_cache" validate:"oneof=none memory badger"`
	TokenCachePath string `koanf:"token_cache_path"`
	// TokenCacheSecret seals tokens written to the badger cache.
	TokenCacheSecret string        `koanf:"token_cache_secret"`
	ExpirySkew       time.Duration `koanf:"expiry_skew" validate:"gte=0"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory" validate:"required"`
	Threads   int    `koanf:"threads" validate:"gte=0"`
}

// SyncConfig holds sync scheduling settings.
type SyncConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Interval      time.Duration `koanf:"interval" validate:"gte=1m"`
	References    []string      `koanf:"references"`
	AllEquipment  bool          `koanf:"all_equipment"`
	Workers       int           `koanf:"workers" validate:"gte=1,lte=64"`
	RetryAttempts int           `koanf:"retry_attempts" validate:"gte=1"`
	RetryDelay    time.Duration `koanf:"retry_delay" validate:"gt=0"`
	StartOnBoot   bool          `koanf:"start_on_boot"`
}

// ImportConfig describes the bulk equipment extract.
type ImportConfig struct {
	File      string `koanf:"file"`
	Delimiter string `koanf:"delimiter" validate:"len=1"`
	Decimal   string `koanf:"decimal" validate:"len=1"`

	ReferenceColumn   string `koanf:"reference_column" validate:"required"`
	NameColumn        string `koanf:"name_column" validate:"required"`
	ParentChildColumn string `koanf:"parent_child_column" validate:"required"`
	AttachedColumn    string `koanf:"attached_column" validate:"required"`
}

// EventsConfig selects where sync outcomes are published.
type EventsConfig struct {
	Backend string `koanf:"backend" validate:"oneof=gochannel nats"`
	NATSURL string `koanf:"nats_url"`
	Topic   string `koanf:"topic" validate:"required"`
}

// ServerConfig holds HTTP read-API settings.
type ServerConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	// StateMarkers mark channels aggregated by max when resampling.
	StateMarkers []string `koanf:"state_markers"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
