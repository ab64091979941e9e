// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package graphimport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/meterline/internal/models"
)

func TestDeriveParents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rows    []ExtractRow
		want    map[string]string
		wantErr *ImportIntegrityError
	}{
		{
			name: "simple tree",
			rows: []ExtractRow{
				{Reference: "A", ParentChild: "B"},
				{Reference: "A", ParentChild: "C"},
				{Reference: "B", ParentChild: "D"},
				{Reference: "C"},
				{Reference: "D"},
			},
			want: map[string]string{"B": "A", "C": "A", "D": "B"},
		},
		{
			name: "pointer to reference outside the extract ignored",
			rows: []ExtractRow{
				{Reference: "A", ParentChild: "B"},
				{Reference: "A", ParentChild: "GONE"},
				{Reference: "Z", ParentChild: "GONE"},
				{Reference: "B"},
			},
			want: map[string]string{"B": "A"},
		},
		{
			name: "self pointer ignored",
			rows: []ExtractRow{{Reference: "A", ParentChild: "A"}},
			want: map[string]string{},
		},
		{
			name: "repeated claim by same parent",
			rows: []ExtractRow{
				{Reference: "A", ParentChild: "B"},
				{Reference: "A", ParentChild: "B"},
				{Reference: "B"},
			},
			want: map[string]string{"B": "A"},
		},
		{
			name: "two parents",
			rows: []ExtractRow{
				{Reference: "Z", ParentChild: "C"},
				{Reference: "A", ParentChild: "C"},
				{Reference: "Q", ParentChild: "E"},
				{Reference: "P", ParentChild: "E"},
				{Reference: "C"},
				{Reference: "E"},
			},
			wantErr: &ImportIntegrityError{Reference: "C", Parents: []string{"A", "Z"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DeriveParents(tt.rows)
			if tt.wantErr != nil {
				var integrity *ImportIntegrityError
				require.True(t, errors.As(err, &integrity), "got %v", err)
				assert.Equal(t, tt.wantErr, integrity)
				assert.Contains(t, err.Error(), `"C"`)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParentLinks(t *testing.T) {
	t.Parallel()

	rows := []ExtractRow{
		{Reference: "A", ParentChild: "B"},
		{Reference: "B"},
		{Reference: "C"},
	}
	parents, err := DeriveParents(rows)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "", "B": "A", "C": ""}, ParentLinks(rows, parents))
}

func TestDeriveAttachments(t *testing.T) {
	t.Parallel()

	ids := map[string]int64{"A": 1, "B": 2, "X": 10}
	resolve := func(ref string) (int64, bool) {
		id, ok := ids[ref]
		return id, ok
	}

	rows := []ExtractRow{
		{Line: 2, Reference: "A", Attached: "X"},
		{Line: 3, Reference: "B"},
		{Line: 4, Reference: "B", Attached: "B"},
		{Line: 5, Reference: "B", Attached: "GONE"},
		{Line: 6, Reference: "NEW", Attached: "LOST"},
	}

	results := DeriveAttachments(rows, resolve)
	require.Len(t, results, 3)

	assert.Equal(t, Resolved{
		Equipment:  "A",
		Attached:   "X",
		Connection: models.EquipmentConnection{Equipment: 1, EquipmentConnection: 10},
	}, results[0])
	assert.Equal(t, SkippedUnresolvedReference{Line: 5, Equipment: "B", Attached: "GONE", Missing: []string{"GONE"}}, results[1])
	assert.Equal(t, SkippedUnresolvedReference{Line: 6, Equipment: "NEW", Attached: "LOST", Missing: []string{"NEW", "LOST"}}, results[2])
}

func TestEndpoints(t *testing.T) {
	t.Parallel()

	rows := []ExtractRow{
		{Reference: "A", Attached: "X"},
		{Reference: "B", Attached: "X"},
		{Reference: "C"},
		{Reference: "D", Attached: "D"},
	}
	assert.Equal(t, []string{"A", "X", "B"}, Endpoints(rows))
}

func TestEquipmentOf(t *testing.T) {
	t.Parallel()

	rows := []ExtractRow{
		{Reference: "A"},
		{Reference: "B", Name: "Board"},
		{Reference: "A", Name: "Main"},
		{Reference: "A", Name: "Other"},
	}
	assert.Equal(t, []models.Equipment{
		{Reference: "A", Name: "Main"},
		{Reference: "B", Name: "Board"},
	}, equipmentOf(rows))
}
