// Package rules provides the availability rule store: a read-only snapshot of
// everything slot generation and booking validation depend on, loaded once
// per request. The engine never reads settings through package globals.
package rules

import (
	"context"
	"time"

	"github.com/webschedulr/scheduling/internal/model"
	"github.com/webschedulr/scheduling/internal/policy"
)

// Snapshot is the scheduling configuration for one provider/service pair at a
// single point in time. It is immutable once loaded; concurrent requests each
// hold their own copy.
type Snapshot struct {
	Provider model.Provider
	Service  model.Service

	Schedule model.WeekSchedule
	Breaks   []model.BreakWindow
	Blocked  []model.BlockedPeriod

	// HorizonDays bounds how far into the future slots may be booked.
	HorizonDays int

	Reschedule policy.Rule
	Cancel     policy.Rule

	Location *time.Location
}

// HorizonEnd returns the exclusive upper bound for bookable slot ends.
func (s Snapshot) HorizonEnd(now time.Time) time.Time {
	days := s.HorizonDays
	if days <= 0 {
		days = 60
	}
	return now.In(s.Location).AddDate(0, 0, days)
}

// DateBlocked reports whether the calendar date is inside a blocked period
// that applies to the snapshot's provider. Provider-scoped blocks only match
// their own provider; unscoped blocks close the whole business.
func (s Snapshot) DateBlocked(date time.Time) bool {
	for _, b := range s.Blocked {
		if b.ProviderID != "" && b.ProviderID != s.Provider.ID {
			continue
		}
		if b.Covers(date) {
			return true
		}
	}
	return false
}

// Loader resolves a snapshot for a provider/service pair. Implementations
// validate that both exist, are active, and that the provider offers the
// service, returning a booking validation error otherwise.
type Loader interface {
	Load(ctx context.Context, providerID, serviceID string) (Snapshot, error)
}
