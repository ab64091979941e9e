// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package timeseries

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Agg is a per-column aggregation applied when resampling.
type Agg int

const (
	AggMean Agg = iota
	AggMax
	AggSum
)

func (a Agg) String() string {
	switch a {
	case AggMax:
		return "max"
	case AggSum:
		return "sum"
	default:
		return "mean"
	}
}

// DefaultStateMarkers name columns that carry discrete state rather than a
// measured quantity.
var DefaultStateMarkers = []string{"State", "Status", "Alarm", "OnOff"}

// IsStateColumn reports whether name contains any marker, ignoring case.
func IsStateColumn(name string, markers []string) bool {
	lower := strings.ToLower(name)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// Resample downsamples w to period. State columns (see IsStateColumn)
// aggregate by max and every other column by mean. A nil markers slice
// uses DefaultStateMarkers.
func Resample(w Wide, period time.Duration, markers []string) Wide {
	if markers == nil {
		markers = DefaultStateMarkers
	}
	policy := make(map[string]Agg, len(w.Columns))
	for _, c := range w.Columns {
		if IsStateColumn(c, markers) {
			policy[c] = AggMax
		} else {
			policy[c] = AggMean
		}
	}
	return SelectiveResample(w, period, policy)
}

// SelectiveResample downsamples w to period using an explicit aggregation
// per column. Columns absent from policy are dropped; the remaining ones keep
// their order.
//
// Rows fall into the bucket of their timestamp truncated to period. Only
// buckets holding at least one row are emitted. NaN values are ignored: a
// bucket with no values in a column is NaN for mean and max and 0 for sum.
func SelectiveResample(w Wide, period time.Duration, policy map[string]Agg) Wide {
	if w.Empty() || period <= 0 {
		return w
	}

	var cols []int
	var names []string
	for j, c := range w.Columns {
		if _, ok := policy[c]; ok {
			cols = append(cols, j)
			names = append(names, c)
		}
	}

	type bucket struct {
		start  time.Time
		sum    []float64
		max    []float64
		counts []int
	}
	var buckets []*bucket
	byStart := make(map[int64]*bucket)

	for i, ts := range w.Index {
		start := ts.Truncate(period)
		b, ok := byStart[start.UnixNano()]
		if !ok {
			b = &bucket{
				start:  start,
				sum:    make([]float64, len(cols)),
				max:    nanRow(len(cols)),
				counts: make([]int, len(cols)),
			}
			byStart[start.UnixNano()] = b
			buckets = append(buckets, b)
		}
		for k, j := range cols {
			v := w.Values[i][j]
			if math.IsNaN(v) {
				continue
			}
			b.sum[k] += v
			if b.counts[k] == 0 || v > b.max[k] {
				b.max[k] = v
			}
			b.counts[k]++
		}
	}

	out := Wide{
		Columns: names,
		Index:   make([]time.Time, 0, len(buckets)),
		Values:  make([][]float64, 0, len(buckets)),
	}
	// w.Index is ascending, so buckets were discovered in order.
	for _, b := range buckets {
		row := make([]float64, len(cols))
		for k := range cols {
			switch policy[names[k]] {
			case AggMax:
				row[k] = b.max[k]
			case AggSum:
				row[k] = b.sum[k]
			default:
				if b.counts[k] == 0 {
					row[k] = math.NaN()
				} else {
					row[k] = b.sum[k] / float64(b.counts[k])
				}
			}
		}
		out.Index = append(out.Index, b.start)
		out.Values = append(out.Values, row)
	}
	return out
}

var periodPattern = regexp.MustCompile(`^(\d*)\s*([a-zA-Z]+)$`)

// ParsePeriod accepts resampling periods such as "15min", "1h", "1d", "2w"
// or any Go duration ("90s", "1h30m").
func ParsePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("period must be positive: %q", s)
		}
		return d, nil
	}

	m := periodPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid period %q", s)
	}
	n := 1
	if m[1] != "" {
		var err error
		if n, err = strconv.Atoi(m[1]); err != nil {
			return 0, fmt.Errorf("invalid period %q: %w", s, err)
		}
	}
	if n <= 0 {
		return 0, fmt.Errorf("period must be positive: %q", s)
	}

	var unit time.Duration
	switch strings.ToLower(m[2]) {
	case "s", "sec", "second", "seconds":
		unit = time.Second
	case "t", "min", "minute", "minutes":
		unit = time.Minute
	case "h", "hour", "hours":
		unit = time.Hour
	case "d", "day", "days":
		unit = 24 * time.Hour
	case "w", "week", "weeks":
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid period unit in %q", s)
	}
	return time.Duration(n) * unit, nil
}
