// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package models

import (
	"sort"
	"time"
)

// Reading is one row of the long-format table produced by the API client
// and returned by the read query: a value of one channel of one equipment
// at one (naive, zone-normalised) timestamp.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
	Channel   string    `json:"channel"`
	Unit      string    `json:"unit"`
	Equipment string    `json:"equipment"`
}

// LongTable is a long-format set of readings plus the upstream column names
// they were decoded from. An empty table still carries its column names.
type LongTable struct {
	Columns []string  `json:"columns"`
	Rows    []Reading `json:"rows"`
}

// Len returns the number of readings.
func (t *LongTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Channels returns the distinct channel references in first-seen order.
func (t *LongTable) Channels() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range t.Rows {
		if _, ok := seen[r.Channel]; ok {
			continue
		}
		seen[r.Channel] = struct{}{}
		out = append(out, r.Channel)
	}
	return out
}

// ChannelBatch is everything the sync engine writes for one channel in one
// transaction.
type ChannelBatch struct {
	Equipment string
	Channel   string
	Unit      string
	Values    []Sample
}

// Sample is a timestamped value inside a ChannelBatch.
type Sample struct {
	Timestamp time.Time
	Value     *float64
}

// PartitionByChannel groups readings into one batch per channel, in
// first-seen channel order. Within a channel, samples are sorted by time and
// a repeated timestamp keeps the last reading. The unit of a batch is the
// last non-empty unit seen for the channel.
func PartitionByChannel(rows []Reading) []ChannelBatch {
	index := make(map[string]int)
	var batches []ChannelBatch
	positions := make([]map[int64]int, 0)

	for _, r := range rows {
		i, ok := index[r.Channel]
		if !ok {
			i = len(batches)
			index[r.Channel] = i
			batches = append(batches, ChannelBatch{Equipment: r.Equipment, Channel: r.Channel})
			positions = append(positions, make(map[int64]int))
		}
		b := &batches[i]
		if r.Unit != "" {
			b.Unit = r.Unit
		}
		key := r.Timestamp.UnixNano()
		if pos, dup := positions[i][key]; dup {
			b.Values[pos].Value = r.Value
			continue
		}
		positions[i][key] = len(b.Values)
		b.Values = append(b.Values, Sample{Timestamp: r.Timestamp, Value: r.Value})
	}

	for i := range batches {
		values := batches[i].Values
		sort.SliceStable(values, func(a, b int) bool { return values[a].Timestamp.Before(values[b].Timestamp) })
	}
	return batches
}
