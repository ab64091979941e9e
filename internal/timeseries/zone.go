// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package timeseries

import (
	"errors"
	"fmt"
	"time"
)

// AmbiguousPolicy decides which instant a wall-clock time that occurs twice
// (the repeated hour when clocks fall back) maps to.
type AmbiguousPolicy string

const (
	AmbiguousEarliest AmbiguousPolicy = "earliest"
	AmbiguousLatest   AmbiguousPolicy = "latest"
	AmbiguousError    AmbiguousPolicy = "error"
)

// NonexistentPolicy decides what happens to a wall-clock time that falls in
// the gap skipped when clocks spring forward.
type NonexistentPolicy string

const (
	// NonexistentShiftForward moves the time to the first instant after the gap.
	NonexistentShiftForward NonexistentPolicy = "shift_forward"
	NonexistentError        NonexistentPolicy = "error"
)

var (
	// ErrAmbiguousTime is returned by Localize under AmbiguousError.
	ErrAmbiguousTime = errors.New("ambiguous wall-clock time")
	// ErrNonexistentTime is returned by Localize under NonexistentError.
	ErrNonexistentTime = errors.New("nonexistent wall-clock time")
)

// ZonePolicy converts between instants and the naive local wall-clock values
// the store keeps. Naive values are represented as time.Time in UTC whose
// fields read as local wall time.
type ZonePolicy struct {
	Location    *time.Location
	Ambiguous   AmbiguousPolicy
	Nonexistent NonexistentPolicy
}

// NewZonePolicy loads the named IANA zone. Empty policies take the defaults
// (earliest, shift_forward).
func NewZonePolicy(zone, ambiguous, nonexistent string) (ZonePolicy, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return ZonePolicy{}, fmt.Errorf("load timezone %q: %w", zone, err)
	}

	p := ZonePolicy{
		Location:    loc,
		Ambiguous:   AmbiguousPolicy(ambiguous),
		Nonexistent: NonexistentPolicy(nonexistent),
	}
	if p.Ambiguous == "" {
		p.Ambiguous = AmbiguousEarliest
	}
	if p.Nonexistent == "" {
		p.Nonexistent = NonexistentShiftForward
	}

	switch p.Ambiguous {
	case AmbiguousEarliest, AmbiguousLatest, AmbiguousError:
	default:
		return ZonePolicy{}, fmt.Errorf("unknown ambiguous time policy %q", ambiguous)
	}
	switch p.Nonexistent {
	case NonexistentShiftForward, NonexistentError:
	default:
		return ZonePolicy{}, fmt.Errorf("unknown nonexistent time policy %q", nonexistent)
	}
	return p, nil
}

func (p ZonePolicy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Normalize returns the naive wall-clock value of t in the policy's zone.
func (p ZonePolicy) Normalize(t time.Time) time.Time {
	w := t.In(p.location())
	return naive(w)
}

// Localize resolves a naive wall-clock value to an instant in the policy's
// zone, applying the ambiguous and nonexistent policies around DST
// transitions.
func (p ZonePolicy) Localize(wall time.Time) (time.Time, error) {
	loc := p.location()
	w := naive(wall)
	secs := w.Unix()

	// Offsets in effect a day either side bracket any single transition.
	before := offsetAt(secs-86400, loc)
	after := offsetAt(secs+86400, loc)

	var candidates []time.Time
	for _, off := range uniqueOffsets(before, after) {
		inst := time.Unix(secs-int64(off), int64(w.Nanosecond())).In(loc)
		if _, got := inst.Zone(); got == off {
			candidates = append(candidates, inst)
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 2:
		earliest, latest := candidates[0], candidates[1]
		if latest.Before(earliest) {
			earliest, latest = latest, earliest
		}
		switch p.Ambiguous {
		case AmbiguousLatest:
			return latest, nil
		case AmbiguousError:
			return time.Time{}, fmt.Errorf("%w: %s in %s", ErrAmbiguousTime, w.Format(time.DateTime), loc)
		default:
			return earliest, nil
		}
	default:
		if p.Nonexistent == NonexistentError {
			return time.Time{}, fmt.Errorf("%w: %s in %s", ErrNonexistentTime, w.Format(time.DateTime), loc)
		}
		// Read with the pre-transition offset the value lands past the gap;
		// the zone period it lands in starts exactly where the gap ends.
		shifted := time.Unix(secs-int64(before), 0).In(loc)
		start, _ := shifted.ZoneBounds()
		return start, nil
	}
}

// NormalizeWall runs a naive wall-clock value through Localize and back, so
// nonexistent values are shifted and rejected values surface as errors.
func (p ZonePolicy) NormalizeWall(wall time.Time) (time.Time, error) {
	inst, err := p.Localize(wall)
	if err != nil {
		return time.Time{}, err
	}
	return p.Normalize(inst), nil
}

func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func offsetAt(unix int64, loc *time.Location) int {
	_, off := time.Unix(unix, 0).In(loc).Zone()
	return off
}

func uniqueOffsets(a, b int) []int {
	if a == b {
		return []int{a}
	}
	return []int{a, b}
}
