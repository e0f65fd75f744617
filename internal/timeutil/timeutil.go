// Package timeutil holds the timezone-aware date and interval arithmetic the
// scheduling engine is built on. Everything here is pure; callers pass the
// business location explicitly.
package timeutil

import (
	"fmt"
	"time"
)

// Clock is a time of day expressed as minutes from midnight. Storing minutes
// (rather than a time.Time) keeps weekly schedules independent of any
// particular date or DST offset until they are projected onto a day.
type Clock int

// ParseClock parses "HH:MM" (24-hour) into a Clock.
func ParseClock(s string) (Clock, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// At projects the clock time onto the calendar date of t in loc.
func (c Clock) At(t time.Time, loc *time.Location) time.Time {
	d := t.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), int(c)/60, int(c)%60, 0, 0, loc)
}

// DayStart returns midnight of t's calendar date in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	d := t.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

// DateIn re-anchors t's calendar date (as t itself reads it) at midnight in
// loc. Unlike In(), this never shifts the date across a timezone boundary.
func DateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect. Touching
// endpoints do not conflict.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Valid reports whether the interval has positive length.
func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Subtract removes cut from each interval in wins, splitting where needed.
// Input intervals are assumed non-overlapping and ordered; output preserves
// both properties.
func Subtract(wins []Interval, cut Interval) []Interval {
	if !cut.Valid() {
		return wins
	}
	out := make([]Interval, 0, len(wins)+1)
	for _, w := range wins {
		if !w.Overlaps(cut) {
			out = append(out, w)
			continue
		}
		if cut.Start.After(w.Start) {
			out = append(out, Interval{Start: w.Start, End: cut.Start})
		}
		if cut.End.Before(w.End) {
			out = append(out, Interval{Start: cut.End, End: w.End})
		}
	}
	return out
}
