// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package source

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/meterline/internal/models"
)

// ErrMissingColumn is returned when a non-empty table lacks an expected column.
var ErrMissingColumn = errors.New("missing column")

type queryResponse struct {
	Tables []queryTable `json:"tables"`
}

type queryTable struct {
	Columns []queryColumn   `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

type queryColumn struct {
	Reference string `json:"reference"`
}

// expected returns the column names every result is decoded against.
func (c *Client) expected() []string {
	return []string{
		c.columns.Timestamp,
		c.columns.Value,
		c.columns.Channel,
		c.columns.Unit,
		c.columns.Equipment,
	}
}

// decodeTables maps every row of every table onto a Reading, locating the
// fields through the column references of each table.
func (c *Client) decodeTables(payload queryResponse) (*models.LongTable, error) {
	out := &models.LongTable{Columns: c.expected(), Rows: []models.Reading{}}

	for ti, table := range payload.Tables {
		if len(table.Rows) == 0 {
			continue
		}

		pos := make(map[string]int, len(table.Columns))
		for i, col := range table.Columns {
			pos[col.Reference] = i
		}
		idx := make([]int, 0, len(out.Columns))
		for _, name := range out.Columns {
			i, ok := pos[name]
			if !ok {
				return nil, fmt.Errorf("table %d: %w %q", ti, ErrMissingColumn, name)
			}
			idx = append(idx, i)
		}

		for ri, row := range table.Rows {
			r, err := c.decodeRow(row, idx)
			if err != nil {
				return nil, fmt.Errorf("table %d row %d: %w", ti, ri, err)
			}
			out.Rows = append(out.Rows, r)
		}
	}
	return out, nil
}

func (c *Client) decodeRow(row []interface{}, idx []int) (models.Reading, error) {
	cell := func(i int) interface{} {
		if idx[i] >= len(row) {
			return nil
		}
		return row[idx[i]]
	}

	ts, err := c.parseTimestamp(cell(0))
	if err != nil {
		return models.Reading{}, err
	}
	value, err := parseValue(cell(1))
	if err != nil {
		return models.Reading{}, err
	}
	channel := asString(cell(2))
	if channel == "" {
		return models.Reading{}, errors.New("empty channel reference")
	}

	return models.Reading{
		Timestamp: ts,
		Value:     value,
		Channel:   channel,
		Unit:      asString(cell(3)),
		Equipment: asString(cell(4)),
	}, nil
}

var wallLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimestamp turns a timestamp cell into a naive local wall-clock value.
//
// The upstream already reports local wall time, so values without an offset
// (and values labelled Z, which the upstream uses for local time as well)
// only pass through the zone policy to resolve DST edge cases. Values that
// carry an explicit numeric offset, or epoch milliseconds, are instants and
// are converted to the configured zone.
func (c *Client) parseTimestamp(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case float64:
		sec, frac := math.Modf(t / 1000)
		return c.zone.Normalize(time.Unix(int64(sec), int64(frac*1e9))), nil
	case string:
		s := strings.TrimSpace(t)
		if strings.HasSuffix(s, "Z") {
			s = strings.TrimSuffix(s, "Z")
		} else if inst, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return c.zone.Normalize(inst), nil
		}
		for _, layout := range wallLayouts {
			if w, err := time.Parse(layout, s); err == nil {
				return c.zone.NormalizeWall(w)
			}
		}
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", t)
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp %v (%T)", v, v)
	}
}

func parseValue(v interface{}) (*float64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &t, nil
	case bool:
		f := 0.0
		if t {
			f = 1
		}
		return &f, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		if err != nil {
			return nil, fmt.Errorf("unparseable value %q: %w", t, err)
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("unexpected value %v (%T)", v, v)
	}
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
