// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package timeseries

import (
	"math"
	"sort"
	"time"

	"github.com/tomtom215/meterline/internal/models"
)

// Wide is a timestamp-indexed table with one column per channel.
// Values[i][j] is the value of Columns[j] at Index[i]; NaN marks a gap.
type Wide struct {
	Index   []time.Time
	Columns []string
	Values  [][]float64
}

// Len returns the number of rows.
func (w Wide) Len() int { return len(w.Index) }

// Empty reports whether the table has no rows.
func (w Wide) Empty() bool { return len(w.Index) == 0 }

// Column returns the position of name, or -1.
func (w Wide) Column(name string) int {
	for i, c := range w.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Pivot turns long readings into a Wide table: one column per channel in
// first-seen order, one row per distinct timestamp in ascending order. A
// repeated (timestamp, channel) keeps the last value; nil values are NaN.
func Pivot(rows []models.Reading) Wide {
	if len(rows) == 0 {
		return Wide{}
	}

	colIndex := make(map[string]int)
	var columns []string
	rowIndex := make(map[int64]int)
	var index []time.Time

	for _, r := range rows {
		if _, ok := colIndex[r.Channel]; !ok {
			colIndex[r.Channel] = len(columns)
			columns = append(columns, r.Channel)
		}
		key := r.Timestamp.UnixNano()
		if _, ok := rowIndex[key]; !ok {
			rowIndex[key] = len(index)
			index = append(index, r.Timestamp)
		}
	}

	order := make([]int, len(index))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return index[order[a]].Before(index[order[b]]) })
	position := make([]int, len(index))
	sorted := make([]time.Time, len(index))
	for pos, orig := range order {
		position[orig] = pos
		sorted[pos] = index[orig]
	}

	values := make([][]float64, len(sorted))
	for i := range values {
		values[i] = nanRow(len(columns))
	}
	for _, r := range rows {
		row := position[rowIndex[r.Timestamp.UnixNano()]]
		v := math.NaN()
		if r.Value != nil {
			v = *r.Value
		}
		values[row][colIndex[r.Channel]] = v
	}

	return Wide{Index: sorted, Columns: columns, Values: values}
}

// ToModel converts the table to its JSON form, with NaN rendered as null.
func (w Wide) ToModel(reference string) models.WideTable {
	out := models.WideTable{
		Reference: reference,
		Columns:   append([]string{}, w.Columns...),
		Index:     append([]time.Time{}, w.Index...),
		Values:    make([][]models.NullFloat, len(w.Values)),
	}
	if out.Columns == nil {
		out.Columns = []string{}
	}
	for i, row := range w.Values {
		out.Values[i] = make([]models.NullFloat, len(row))
		for j, v := range row {
			out.Values[i][j] = models.NullFloat(v)
		}
	}
	return out
}

func nanRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}
