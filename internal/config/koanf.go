// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/meterline/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			LoginPath:       "/auth/Account/Login",
			ClientID:        "Frontend",
			Scope:           "Web.Api.Display Web.Api.User offline_access openid",
			Timezone:        "Europe/Amsterdam",
			AmbiguousTime:   "earliest",
			NonexistentTime: "shift_forward",
			RequestTimeout:  60 * time.Second,
			RateLimit:       5,
			RateBurst:       5,
			MaxRetries:      3,
			RetryBaseDelay:  time.Second,
			Columns: SourceColumns{
				Timestamp: "Timestamp",
				Value:     "RAWDATA.VALUE",
				Channel:   "CHANNEL.REFERENCE",
				Unit:      "CHANNEL.CNL_DAC_UNIT",
				Equipment: "METER.REFERENCE",
			},
		},
		Auth: AuthConfig{
			Timeout:        30 * time.Second,
			TokenCache:     "none",
			TokenCachePath: "/data/tokens",
			ExpirySkew:     30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/meterline.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Sync: SyncConfig{
			Enabled:       true,
			Interval:      15 * time.Minute,
			AllEquipment:  false,
			Workers:       4,
			RetryAttempts: 3,
			RetryDelay:    500 * time.Millisecond,
			StartOnBoot:   true,
		},
		Import: ImportConfig{
			Delimiter:         ";",
			Decimal:           ",",
			ReferenceColumn:   "METER.REFERENCE",
			NameColumn:        "METER.NAME",
			ParentChildColumn: "METER.PARENT_CHILD",
			AttachedColumn:    "METER.ATTACHED_SYSTEM",
		},
		Events: EventsConfig{
			Backend: "gochannel",
			NATSURL: "nats://127.0.0.1:4222",
			Topic:   "meterline.sync.outcome",
		},
		Server: ServerConfig{
			Enabled:           true,
			Host:              "0.0.0.0",
			Port:              8642,
			Timeout:           30 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
			StateMarkers:      []string{"State", "Status", "Alarm", "OnOff"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from three layers, lowest priority first:
// built-in defaults, the YAML config file (if any), environment variables.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"sync.references",
	"server.cors_origins",
	"server.state_markers",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unmapped variables are ignored so the process environment cannot leak
// arbitrary keys into the config.
var envMappings = map[string]string{
	"source_user":             "source.user",
	"source_password":         "source.password",
	"source_root_url":         "source.root_url",
	"source_tenant_url":       "source.tenant_url",
	"source_auth_url":         "source.auth_url",
	"source_token_url":        "source.token_url",
	"source_login_path":       "source.login_path",
	"source_client_id":        "source.client_id",
	"source_scope":            "source.scope",
	"source_api_url":          "source.api_url",
	"source_dataset":          "source.dataset",
	"source_timezone":         "source.timezone",
	"source_ambiguous_time":   "source.ambiguous_time",
	"source_nonexistent_time": "source.nonexistent_time",
	"source_request_timeout":  "source.request_timeout",
	"source_rate_limit":       "source.rate_limit",
	"source_rate_burst":       "source.rate_burst",
	"source_max_retries":      "source.max_retries",

	"auth_timeout":            "auth.timeout",
	"auth_token_cache":        "auth.token_cache",
	"auth_token_cache_path":   "auth.token_cache_path",
	"auth_token_cache_secret": "auth.token_cache_secret",
	"auth_expiry_skew":        "auth.expiry_skew",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"sync_enabled":        "sync.enabled",
	"sync_interval":       "sync.interval",
	"sync_references":     "sync.references",
	"sync_all_equipment":  "sync.all_equipment",
	"sync_workers":        "sync.workers",
	"sync_retry_attempts": "sync.retry_attempts",
	"sync_retry_delay":    "sync.retry_delay",
	"sync_start_on_boot":  "sync.start_on_boot",

	"import_file":      "import.file",
	"import_delimiter": "import.delimiter",
	"import_decimal":   "import.decimal",

	"events_backend": "events.backend",
	"nats_url":       "events.nats_url",
	"events_topic":   "events.topic",

	"http_enabled":        "server.enabled",
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"state_markers":       "server.state_markers",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
