// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package timeseries

import "time"

// LastNWeeks returns the start of a reporting window covering the current
// week so far plus the n weeks before it. The window opens on the Monday n
// weeks before the most recent Monday (today counts if it is a Monday),
// moved dayOffset days later (0 = Monday, 6 = Sunday) and set to hour:minute
// in now's location.
func LastNWeeks(now time.Time, n, dayOffset, hour, minute int) time.Time {
	sinceMonday := (int(now.Weekday()) + 6) % 7
	day := now.AddDate(0, 0, -sinceMonday-7*n+dayOffset)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
}

// Slice returns the rows of w with from <= ts < to. A zero bound is open.
func (w Wide) Slice(from, to time.Time) Wide {
	out := Wide{Columns: w.Columns}
	for i, ts := range w.Index {
		if !from.IsZero() && ts.Before(from) {
			continue
		}
		if !to.IsZero() && !ts.Before(to) {
			continue
		}
		out.Index = append(out.Index, ts)
		out.Values = append(out.Values, w.Values[i])
	}
	return out
}
