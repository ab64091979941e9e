// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

// Package cache provides the TTL cache used by the read API for loaded
// equipment graphs and pivoted data responses. The API clears it whenever
// a sync commits new values.
package cache
