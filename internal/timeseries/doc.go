// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
Package timeseries holds the in-memory time-series operations used on the
read side and by the API client.

# Tables

Readings travel in long format (models.Reading, one row per timestamp and
channel). Pivot turns them into a Wide table with one column per channel,
which is what reports and the read API consume.

# Resampling

Resample downsamples a Wide table to a fixed period. Columns whose name
contains a state marker ("State", "Status", "Alarm", "OnOff", any case) take
the maximum of the bucket, all other columns the mean:

	w := timeseries.Pivot(readings)
	hourly := timeseries.Resample(w, time.Hour, nil)

SelectiveResample takes an explicit aggregation per column (mean, max or sum)
for reports that need totals.

# Time zones

The store keeps naive local wall-clock timestamps. ZonePolicy converts
instants to that form (Normalize) and resolves naive values back to
instants (Localize). Around DST transitions a wall-clock value can occur
twice or not at all; the policy decides:

	ambiguous:   earliest (default) | latest | error (ErrAmbiguousTime)
	nonexistent: shift_forward (default) | error (ErrNonexistentTime)
*/
package timeseries
