// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package models

import "time"

// Equipment is one piece of monitored equipment.
//
// Reference is the external business key: unique and never changed once
// stored. Parent points at another Equipment's ID and is only ever written
// by the graph importer.
type Equipment struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Parent    *int64 `json:"parent,omitempty"`
}

// EquipmentConnection records that two pieces of equipment are attached.
// The pair is stored in the order it was read but carries no direction.
type EquipmentConnection struct {
	Equipment           int64 `json:"equipment"`
	EquipmentConnection int64 `json:"equipment_connection"`
}

// DataStream is one measurement channel owned by an Equipment.
// (Name, Equipment) is unique; Unit follows the most recent sync.
type DataStream struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Equipment int64  `json:"equipment"`
	Unit      string `json:"unit"`
}

// TimeDataValue is one reading of a DataStream. (Timestamp, DataStream) is
// unique; a later sync of the same timestamp overwrites Value.
type TimeDataValue struct {
	Timestamp  time.Time `json:"timestamp"`
	Value      *float64  `json:"value"`
	DataStream int64     `json:"data_stream"`
}

// SyncEpoch is the watermark of a reference that has no stored values yet,
// so the first sync pulls the full upstream history.
var SyncEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
