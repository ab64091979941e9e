// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package graphimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/tomtom215/meterline/internal/config"
)

// ErrMissingColumn is returned when the extract header lacks a required column.
var ErrMissingColumn = errors.New("extract is missing a required column")

// ExtractFormat describes the layout of a bulk extract.
type ExtractFormat struct {
	Delimiter rune
	// Decimal is the decimal separator of numeric cells. References exported
	// from a spreadsheet sometimes carry a zero fraction ("1042,0"), which is
	// stripped.
	Decimal rune

	ReferenceColumn   string
	NameColumn        string
	ParentChildColumn string
	AttachedColumn    string
}

// FormatFromConfig builds the extract format from the import settings.
func FormatFromConfig(cfg *config.ImportConfig) ExtractFormat {
	f := ExtractFormat{
		Delimiter:         ';',
		Decimal:           ',',
		ReferenceColumn:   cfg.ReferenceColumn,
		NameColumn:        cfg.NameColumn,
		ParentChildColumn: cfg.ParentChildColumn,
		AttachedColumn:    cfg.AttachedColumn,
	}
	if r, _ := utf8.DecodeRuneInString(cfg.Delimiter); r != utf8.RuneError {
		f.Delimiter = r
	}
	if r, _ := utf8.DecodeRuneInString(cfg.Decimal); r != utf8.RuneError {
		f.Decimal = r
	}
	return f
}

// ParseExtract reads the extract. Columns other than the four configured
// ones are ignored. Rows with an empty reference are dropped. A malformed
// extract fails as a whole.
func ParseExtract(r io.Reader, f ExtractFormat) ([]ExtractRow, error) {
	reader := csv.NewReader(r)
	reader.Comma = f.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read extract header: %w", err)
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	col := func(name string) (int, error) {
		i, ok := pos[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
		return i, nil
	}

	var idx [4]int
	for k, name := range []string{f.ReferenceColumn, f.NameColumn, f.ParentChildColumn, f.AttachedColumn} {
		if idx[k], err = col(name); err != nil {
			return nil, err
		}
	}

	var rows []ExtractRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read extract: %w", err)
		}
		line, _ := reader.FieldPos(0)

		cell := func(i int) string {
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		row := ExtractRow{
			Line:        line,
			Reference:   f.normalizeRef(cell(idx[0])),
			Name:        cell(idx[1]),
			ParentChild: f.normalizeRef(cell(idx[2])),
			Attached:    f.normalizeRef(cell(idx[3])),
		}
		if row.Reference == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// normalizeRef strips a zero fraction from numeric references.
func (f ExtractFormat) normalizeRef(s string) string {
	sep := string(f.Decimal)
	i := strings.LastIndex(s, sep)
	if i <= 0 || !isDigits(s[:i]) {
		return s
	}
	frac := s[i+len(sep):]
	if frac == "" || strings.Trim(frac, "0") != "" {
		return s
	}
	return s[:i]
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
