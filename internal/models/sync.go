// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package models

import "time"

// SyncStatus is the overall result of syncing one equipment reference.
type SyncStatus string

const (
	// SyncSuccess: every channel committed.
	SyncSuccess SyncStatus = "success"
	// SyncPartialFailure: fetch succeeded but at least one channel rolled back.
	SyncPartialFailure SyncStatus = "partial_failure"
	// SyncFatal: authentication or fetch failed; nothing was written.
	SyncFatal SyncStatus = "fatal"
)

// ChannelFailure names a channel whose transaction was rolled back.
type ChannelFailure struct {
	Channel string `json:"channel"`
	Error   string `json:"error"`
}

// SyncOutcome is the per-reference report of one sync run. It is returned to
// the caller, published on the event bus and streamed to websocket clients.
type SyncOutcome struct {
	RunID          string           `json:"run_id"`
	Reference      string           `json:"reference"`
	Status         SyncStatus       `json:"status"`
	From           time.Time        `json:"from"`
	To             time.Time        `json:"to"`
	Channels       int              `json:"channels"`
	ValuesWritten  int              `json:"values_written"`
	FailedChannels []ChannelFailure `json:"failed_channels,omitempty"`
	Error          string           `json:"error,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	Duration       time.Duration    `json:"duration_ns"`
}

// FailedChannelNames returns the failed channel references.
func (o *SyncOutcome) FailedChannelNames() []string {
	names := make([]string, 0, len(o.FailedChannels))
	for _, f := range o.FailedChannels {
		names = append(names, f.Channel)
	}
	return names
}
