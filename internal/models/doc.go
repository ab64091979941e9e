// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
Package models defines the records persisted by the store and the values
passed between the importer, the sync engine and the read API.

Key Components:

  - Equipment, EquipmentConnection: the equipment hierarchy
  - DataStream, TimeDataValue: channels and their readings
  - Reading, LongTable, ChannelBatch: long-format readings in flight
  - SyncOutcome: per-reference report of one sync run
  - APIResponse, WideTable, GraphResponse: read API payloads

Timestamps:

Reading timestamps are naive wall-clock values in the configured source
zone, carried as UTC-labelled time.Time. They are never converted again
once normalised by the API client.
*/
package models
