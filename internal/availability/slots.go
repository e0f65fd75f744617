// Package availability computes bookable slots. The slot generator walks a
// provider's usable windows in service-duration steps; the conflict checker
// filters candidates against booked appointments. Both are pure and are
// shared by the read path (preview) and the write path (pre-commit re-check).
package availability

import (
	"errors"
	"time"

	"github.com/webschedulr/scheduling/internal/model"
	"github.com/webschedulr/scheduling/internal/rules"
	"github.com/webschedulr/scheduling/internal/timeutil"
)

// Slot is a transient bookable range. It is never persisted; booking derives
// the authoritative end time from the service duration at commit time.
type Slot struct {
	Start time.Time
	End   time.Time
}

func (s Slot) Interval() timeutil.Interval {
	return timeutil.Interval{Start: s.Start, End: s.End}
}

// Reasons a requested slot fails validity checks on the write path.
var (
	ErrDateBlocked   = errors.New("date is blocked")
	ErrOutsideHours  = errors.New("slot is outside working hours")
	ErrPastSlot      = errors.New("slot start is in the past")
	ErrBeyondHorizon = errors.New("slot is beyond the booking horizon")
)

// UsableWindows returns the provider's working window for the date with all
// applicable breaks subtracted. A blocked date, a closed weekday, or an empty
// window yields no usable time.
func UsableWindows(snap rules.Snapshot, date time.Time) []timeutil.Interval {
	if snap.DateBlocked(date) {
		return nil
	}
	day := snap.Schedule.ForDate(date.In(snap.Location))
	if !day.Working || day.Start >= day.End {
		return nil
	}
	wins := []timeutil.Interval{{
		Start: day.Start.At(date, snap.Location),
		End:   day.End.At(date, snap.Location),
	}}
	for _, br := range snap.Breaks {
		if !br.AppliesOn(date.In(snap.Location)) || br.Start >= br.End {
			continue
		}
		wins = timeutil.Subtract(wins, timeutil.Interval{
			Start: br.Start.At(date, snap.Location),
			End:   br.End.At(date, snap.Location),
		})
	}
	return wins
}

// Candidates emits every slot for the date that satisfies the rule snapshot:
// inside a usable window, no partial slot past a window end, start not before
// now, end not past the booking horizon. Existing appointments are not
// consulted here; see FilterAvailable.
//
// The sequence is deterministic for a given snapshot and clock.
func Candidates(snap rules.Snapshot, date time.Time, now time.Time) []Slot {
	duration := time.Duration(snap.Service.DurationMins) * time.Minute
	if duration <= 0 {
		return nil
	}
	horizon := snap.HorizonEnd(now)

	var slots []Slot
	for _, win := range UsableWindows(snap, date) {
		for t := win.Start; !t.Add(duration).After(win.End); t = t.Add(duration) {
			if t.Before(now) {
				continue
			}
			end := t.Add(duration)
			if end.After(horizon) {
				break
			}
			slots = append(slots, Slot{Start: t, End: end})
		}
	}
	return slots
}

// CheckSlot re-runs the generator's validity rules for a single requested
// slot. Used by booking before the conflict check; never trusts the caller's
// end time.
func CheckSlot(snap rules.Snapshot, slot Slot, now time.Time) error {
	if slot.Start.Before(now) {
		return ErrPastSlot
	}
	if slot.End.After(snap.HorizonEnd(now)) {
		return ErrBeyondHorizon
	}
	if snap.DateBlocked(slot.Start.In(snap.Location)) {
		return ErrDateBlocked
	}
	for _, win := range UsableWindows(snap, slot.Start.In(snap.Location)) {
		if win.Contains(slot.Interval()) {
			return nil
		}
	}
	return ErrOutsideHours
}

// SlotsForDate is the full read path for one date: generate candidates, then
// drop those that collide with booked appointments.
func SlotsForDate(snap rules.Snapshot, date time.Time, busy []timeutil.Interval, now time.Time) []Slot {
	return FilterAvailable(Candidates(snap, date, now), busy)
}

// FilterAvailable removes candidates that overlap a busy interval. Intervals
// are half-open: a slot starting exactly when an appointment ends does not
// conflict. Callers are responsible for excluding cancelled appointments from
// busy.
func FilterAvailable(candidates []Slot, busy []timeutil.Interval) []Slot {
	if len(busy) == 0 {
		return candidates
	}
	out := make([]Slot, 0, len(candidates))
	for _, c := range candidates {
		if !overlapsAny(c.Interval(), busy) {
			out = append(out, c)
		}
	}
	return out
}

// Conflicts reports whether the slot overlaps any busy interval.
func Conflicts(slot Slot, busy []timeutil.Interval) bool {
	return overlapsAny(slot.Interval(), busy)
}

func overlapsAny(iv timeutil.Interval, busy []timeutil.Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}

// BusyIntervals projects non-cancelled appointments onto intervals,
// optionally skipping one appointment id (used when rescheduling).
func BusyIntervals(appts []model.Appointment, excludeID string) []timeutil.Interval {
	busy := make([]timeutil.Interval, 0, len(appts))
	for _, a := range appts {
		if !model.ActiveStatus(a.Status) {
			continue
		}
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		busy = append(busy, a.Interval())
	}
	return busy
}
