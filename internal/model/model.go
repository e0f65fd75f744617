package model

import (
	"time"

	"github.com/webschedulr/scheduling/internal/timeutil"
)

// Appointment statuses. Cancelled rows are kept for history and never count
// toward overlap checks.
const (
	StatusBooked    = "booked"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// ActiveStatus reports whether an appointment in this status occupies its
// time slot.
func ActiveStatus(status string) bool {
	switch status {
	case StatusBooked, StatusConfirmed, StatusCompleted:
		return true
	}
	return false
}

type Provider struct {
	ID       string
	Name     string
	IsActive bool
}

type Service struct {
	ID           string
	ProviderID   string
	Name         string
	DurationMins int
	Price        string
	IsActive     bool
}

// DayHours is the working window for one weekday. Start and End are minutes
// from midnight in the business timezone; Working false means the day is
// closed regardless of the window.
type DayHours struct {
	Working bool
	Start   timeutil.Clock
	End     timeutil.Clock
}

// WeekSchedule holds the per-weekday working hours, indexed by time.Weekday.
type WeekSchedule [7]DayHours

func (w WeekSchedule) ForDate(date time.Time) DayHours {
	return w[int(date.Weekday())]
}

// BreakWindow is subtracted from the working window. Weekday nil applies the
// break every day.
type BreakWindow struct {
	Weekday *time.Weekday
	Start   timeutil.Clock
	End     timeutil.Clock
}

func (b BreakWindow) AppliesOn(date time.Time) bool {
	return b.Weekday == nil || *b.Weekday == date.Weekday()
}

// BlockedPeriod closes a provider (or, with ProviderID empty, the whole
// business) for a closed range of dates. Dates are whole days in the business
// timezone.
type BlockedPeriod struct {
	ProviderID string
	StartDate  time.Time
	EndDate    time.Time
	Note       string
}

// Covers reports whether the given calendar date falls inside the blocked
// range. Both bounds are inclusive.
func (p BlockedPeriod) Covers(date time.Time) bool {
	d := timeutil.DayStart(date, date.Location())
	return !d.Before(timeutil.DayStart(p.StartDate, date.Location())) &&
		!d.After(timeutil.DayStart(p.EndDate, date.Location()))
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

type Appointment struct {
	ID          string
	ProviderID  string
	ServiceID   string
	Customer    Customer
	StartTime   time.Time
	EndTime     time.Time
	Status      string
	Notes       string
	Token       string
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a Appointment) Interval() timeutil.Interval {
	return timeutil.Interval{Start: a.StartTime, End: a.EndTime}
}
