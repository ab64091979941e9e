// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wall(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func amsterdam(t *testing.T, ambiguous, nonexistent string) ZonePolicy {
	t.Helper()
	p, err := NewZonePolicy("Europe/Amsterdam", ambiguous, nonexistent)
	require.NoError(t, err)
	return p
}

func TestNewZonePolicy(t *testing.T) {
	p, err := NewZonePolicy("Europe/Amsterdam", "", "")
	require.NoError(t, err)
	assert.Equal(t, AmbiguousEarliest, p.Ambiguous)
	assert.Equal(t, NonexistentShiftForward, p.Nonexistent)

	_, err = NewZonePolicy("Mars/Olympus", "", "")
	assert.Error(t, err)
	_, err = NewZonePolicy("UTC", "infer", "")
	assert.Error(t, err)
	_, err = NewZonePolicy("UTC", "", "nat")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	p := amsterdam(t, "", "")

	// 11:00 UTC in winter is 12:00 in Amsterdam, in summer 13:00.
	assert.Equal(t, wall(2024, 1, 10, 12, 0), p.Normalize(time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC)))
	assert.Equal(t, wall(2024, 7, 10, 13, 0), p.Normalize(time.Date(2024, 7, 10, 11, 0, 0, 0, time.UTC)))

	got := p.Normalize(time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC))
	assert.Equal(t, time.UTC, got.Location(), "naive values are UTC-labelled")
}

func TestLocalizeUnambiguous(t *testing.T) {
	p := amsterdam(t, "error", "error")

	inst, err := p.Localize(wall(2024, 1, 10, 12, 0))
	require.NoError(t, err)
	assert.True(t, inst.Equal(time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC)))

	// Either side of both transitions.
	for _, w := range []time.Time{
		wall(2024, 3, 31, 1, 59),
		wall(2024, 3, 31, 3, 0),
		wall(2024, 10, 27, 1, 59),
		wall(2024, 10, 27, 3, 0),
	} {
		_, err := p.Localize(w)
		assert.NoError(t, err, w.String())
	}
}

func TestLocalizeAmbiguous(t *testing.T) {
	// Clocks fall back from 03:00 CEST to 02:00 CET on 2024-10-27,
	// so 02:30 happens at 00:30 UTC and again at 01:30 UTC.
	w := wall(2024, 10, 27, 2, 30)

	tests := []struct {
		policy string
		want   time.Time
		err    error
	}{
		{policy: "earliest", want: time.Date(2024, 10, 27, 0, 30, 0, 0, time.UTC)},
		{policy: "latest", want: time.Date(2024, 10, 27, 1, 30, 0, 0, time.UTC)},
		{policy: "error", err: ErrAmbiguousTime},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			inst, err := amsterdam(t, tt.policy, "").Localize(w)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.True(t, inst.Equal(tt.want), "got %s", inst.UTC())
		})
	}
}

func TestLocalizeNonexistent(t *testing.T) {
	// Clocks spring forward from 02:00 CET to 03:00 CEST on 2024-03-31,
	// so 02:30 never happens.
	w := wall(2024, 3, 31, 2, 30)

	t.Run("shift_forward", func(t *testing.T) {
		p := amsterdam(t, "", "shift_forward")
		inst, err := p.Localize(w)
		require.NoError(t, err)
		assert.True(t, inst.Equal(time.Date(2024, 3, 31, 1, 0, 0, 0, time.UTC)), "got %s", inst.UTC())

		naive, err := p.NormalizeWall(w)
		require.NoError(t, err)
		assert.Equal(t, wall(2024, 3, 31, 3, 0), naive)
	})

	t.Run("error", func(t *testing.T) {
		_, err := amsterdam(t, "", "error").Localize(w)
		assert.ErrorIs(t, err, ErrNonexistentTime)
	})
}

func TestNormalizeWallRoundTrip(t *testing.T) {
	p := amsterdam(t, "", "")
	for _, w := range []time.Time{wall(2024, 1, 10, 0, 15), wall(2024, 10, 27, 2, 30), wall(2024, 7, 1, 23, 45)} {
		got, err := p.NormalizeWall(w)
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}
}

func TestZeroPolicyIsUTC(t *testing.T) {
	var p ZonePolicy
	inst, err := p.Localize(wall(2024, 3, 31, 2, 30))
	require.NoError(t, err)
	assert.True(t, inst.Equal(wall(2024, 3, 31, 2, 30)))
}
