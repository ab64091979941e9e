// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package models

import "time"

// HealthStatus is the response of the health endpoint.
type HealthStatus struct {
	Status            string     `json:"status"` // healthy or degraded
	Version           string     `json:"version"`
	DatabaseConnected bool       `json:"database_connected"`
	SyncEnabled       bool       `json:"sync_enabled"`
	LastSyncTime      *time.Time `json:"last_sync_time,omitempty"`
	WebSocketClients  int        `json:"websocket_clients"`
	Uptime            float64    `json:"uptime_seconds"`
}

// EquipmentDetail is one piece of equipment with its channels and watermark.
type EquipmentDetail struct {
	Equipment
	Streams   []DataStream `json:"streams"`
	Watermark *time.Time   `json:"watermark,omitempty"`
}
