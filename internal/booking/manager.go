// Package booking is the mutating core of the scheduling engine. Every
// create, reschedule, and cancel is an atomic check-then-commit: slot
// validity and the conflict check run again inside a per-provider critical
// section, so a preview that raced another booking fails with
// ErrSlotConflict instead of double-booking.
package booking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/webschedulr/scheduling/internal/availability"
	"github.com/webschedulr/scheduling/internal/model"
	"github.com/webschedulr/scheduling/internal/policy"
	"github.com/webschedulr/scheduling/internal/rules"
	"github.com/webschedulr/scheduling/internal/timeutil"
)

const maxRangeDays = 90

type Manager struct {
	store  Store
	rules  rules.Loader
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(store Store, loader rules.Loader, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		rules:  loader,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the manager's clock. Tests only.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

type BookRequest struct {
	ProviderID string
	ServiceID  string
	Start      time.Time
	Customer   model.Customer
	Notes      string
}

// DaySlots pairs a calendar date (YYYY-MM-DD, business timezone) with its
// available slots. Days with zero slots are included so the calendar can grey
// them out.
type DaySlots struct {
	Date  string
	Slots []availability.Slot
}

// SlotsForDate returns the bookable slots for one date. The date parameter is
// a calendar date: its year, month and day are taken as the caller supplied
// them and re-anchored in the business timezone, so a date parsed at UTC
// midnight still means that day locally. Pure preview: no locking, always
// re-validated at commit time.
func (m *Manager) SlotsForDate(ctx context.Context, providerID, serviceID string, date time.Time) ([]availability.Slot, error) {
	snap, err := m.rules.Load(ctx, providerID, serviceID)
	if err != nil {
		return nil, err
	}
	return m.slotsForDay(ctx, snap, date, m.now())
}

// SlotsForRange walks the range one day at a time (calendar pre-fetch). The
// day count is clamped to keep a runaway request from scanning years.
func (m *Manager) SlotsForRange(ctx context.Context, providerID, serviceID string, from time.Time, days int) ([]DaySlots, error) {
	if days < 1 {
		days = 1
	}
	if days > maxRangeDays {
		days = maxRangeDays
	}
	snap, err := m.rules.Load(ctx, providerID, serviceID)
	if err != nil {
		return nil, err
	}
	now := m.now()

	out := make([]DaySlots, 0, days)
	day := timeutil.DateIn(from, snap.Location)
	for i := 0; i < days; i++ {
		slots, err := m.slotsForDay(ctx, snap, day, now)
		if err != nil {
			return nil, err
		}
		out = append(out, DaySlots{Date: day.Format("2006-01-02"), Slots: slots})
		day = day.AddDate(0, 0, 1)
	}
	return out, nil
}

func (m *Manager) slotsForDay(ctx context.Context, snap rules.Snapshot, date, now time.Time) ([]availability.Slot, error) {
	// DateIn, not DayStart: converting the instant first would read a
	// UTC-midnight date as the previous day anywhere west of UTC.
	dayStart := timeutil.DateIn(date, snap.Location)
	dayEnd := dayStart.AddDate(0, 0, 1)
	appts, err := m.store.ListActiveInRange(ctx, snap.Provider.ID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	busy := availability.BusyIntervals(appts, "")
	return availability.SlotsForDate(snap, dayStart, busy, now), nil
}

// Book creates an appointment. The end time is always re-derived from the
// current service duration; a client-supplied end is never trusted.
func (m *Manager) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	if err := validateCustomer(req.Customer); err != nil {
		return model.Appointment{}, err
	}
	if req.Start.IsZero() {
		return model.Appointment{}, invalid("start_time", "required")
	}

	snap, err := m.rules.Load(ctx, req.ProviderID, req.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}
	now := m.now()
	slot, err := m.checkSlot(snap, req.Start, now, "book")
	if err != nil {
		return model.Appointment{}, err
	}

	appt := model.Appointment{
		ID:         uuid.NewString(),
		ProviderID: snap.Provider.ID,
		ServiceID:  snap.Service.ID,
		Customer:   normalizeCustomer(req.Customer),
		StartTime:  slot.Start,
		EndTime:    slot.End,
		Status:     model.StatusBooked,
		Notes:      strings.TrimSpace(req.Notes),
		Token:      uuid.NewString(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = m.atomic(ctx, snap.Provider.ID, func(ctx context.Context, tx Tx) error {
		existing, err := tx.ListActiveInRange(ctx, snap.Provider.ID, slot.Start, slot.End)
		if err != nil {
			return err
		}
		if availability.Conflicts(slot, availability.BusyIntervals(existing, "")) {
			return ErrSlotConflict
		}
		if err := tx.Insert(ctx, &appt); err != nil {
			return err
		}
		evt, err := newEvent(EventBooked, appt, nil)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	m.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"start_time", appt.StartTime.UTC().Format(time.RFC3339),
	)
	return appt, nil
}

// Lookup authenticates a public self-service request: the confirmation token
// plus a matching contact. Any failure is ErrNotFound.
func (m *Manager) Lookup(ctx context.Context, token string, contact model.Customer) (model.Appointment, error) {
	return m.authenticate(ctx, token, contact)
}

// Reschedule moves an appointment to a new slot, keeping id and token. The
// cutoff policy is evaluated against the appointment's current start.
func (m *Manager) Reschedule(ctx context.Context, token string, contact model.Customer, newStart time.Time) (model.Appointment, error) {
	appt, err := m.authenticate(ctx, token, contact)
	if err != nil {
		return model.Appointment{}, err
	}
	snap, err := m.rules.Load(ctx, appt.ProviderID, appt.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}
	now := m.now()
	if err := snap.Reschedule.Allow("reschedule", appt.StartTime, now); err != nil {
		return model.Appointment{}, err
	}
	return m.moveAppointment(ctx, snap, appt.ID, newStart, now, &snap.Reschedule)
}

// AdminReschedule moves an appointment by id. Staff are not bound by the
// cutoff policy but the slot must still be valid and conflict-free.
func (m *Manager) AdminReschedule(ctx context.Context, appointmentID string, newStart time.Time) (model.Appointment, error) {
	appt, err := m.store.GetByID(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	snap, err := m.rules.Load(ctx, appt.ProviderID, appt.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}
	return m.moveAppointment(ctx, snap, appt.ID, newStart, m.now(), nil)
}

func (m *Manager) moveAppointment(ctx context.Context, snap rules.Snapshot, apptID string, newStart, now time.Time, rule *policy.Rule) (model.Appointment, error) {
	if newStart.IsZero() {
		return model.Appointment{}, invalid("start_time", "required")
	}
	slot, err := m.checkSlot(snap, newStart, now, "reschedule")
	if err != nil {
		return model.Appointment{}, err
	}

	var updated model.Appointment
	err = m.atomic(ctx, snap.Provider.ID, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetByID(ctx, apptID)
		if err != nil {
			return err
		}
		if !model.ActiveStatus(cur.Status) {
			return ErrNotFound
		}
		// Re-check against current state: a concurrent mutation may have
		// moved the start past the cutoff since the unlocked read.
		if rule != nil {
			if err := rule.Allow("reschedule", cur.StartTime, now); err != nil {
				return err
			}
		}
		existing, err := tx.ListActiveInRange(ctx, snap.Provider.ID, slot.Start, slot.End)
		if err != nil {
			return err
		}
		if availability.Conflicts(slot, availability.BusyIntervals(existing, cur.ID)) {
			return ErrSlotConflict
		}
		if err := tx.UpdateSlot(ctx, cur.ID, slot.Start, slot.End); err != nil {
			return err
		}
		prev := cur.StartTime
		cur.StartTime = slot.Start
		cur.EndTime = slot.End
		cur.UpdatedAt = now
		evt, err := newEvent(EventRescheduled, cur, map[string]any{
			"previous_start_time": prev.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	m.logger.Info("appointment rescheduled",
		"appointment_id", updated.ID,
		"start_time", updated.StartTime.UTC().Format(time.RFC3339),
	)
	return updated, nil
}

// Cancel transitions the appointment to cancelled. Cancelling an already
// cancelled appointment is idempotent.
func (m *Manager) Cancel(ctx context.Context, token string, contact model.Customer) (model.Appointment, error) {
	appt, err := m.authenticate(ctx, token, contact)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status == model.StatusCancelled {
		return appt, nil
	}
	snap, err := m.rules.Load(ctx, appt.ProviderID, appt.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}
	now := m.now()
	if err := snap.Cancel.Allow("cancel", appt.StartTime, now); err != nil {
		return model.Appointment{}, err
	}
	return m.cancelByID(ctx, appt.ProviderID, appt.ID, now, &snap.Cancel)
}

// AdminCancel cancels by id without a cutoff check.
func (m *Manager) AdminCancel(ctx context.Context, appointmentID string) (model.Appointment, error) {
	appt, err := m.store.GetByID(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status == model.StatusCancelled {
		return appt, nil
	}
	return m.cancelByID(ctx, appt.ProviderID, appt.ID, m.now(), nil)
}

func (m *Manager) cancelByID(ctx context.Context, providerID, apptID string, now time.Time, rule *policy.Rule) (model.Appointment, error) {
	var cancelled model.Appointment
	err := m.atomic(ctx, providerID, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetByID(ctx, apptID)
		if err != nil {
			return err
		}
		if cur.Status == model.StatusCancelled {
			cancelled = cur
			return nil
		}
		// Re-check against current state: a concurrent reschedule may have
		// moved the start inside the cutoff since the unlocked read.
		if rule != nil {
			if err := rule.Allow("cancel", cur.StartTime, now); err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, cur.ID, model.StatusCancelled); err != nil {
			return err
		}
		cur.Status = model.StatusCancelled
		cur.CancelledAt = &now
		cur.UpdatedAt = now
		evt, err := newEvent(EventCancelled, cur, nil)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return err
		}
		cancelled = cur
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	m.logger.Info("appointment cancelled", "appointment_id", cancelled.ID)
	return cancelled, nil
}

// SetStatus applies a staff status transition (confirm, complete, cancel).
func (m *Manager) SetStatus(ctx context.Context, appointmentID, status string) (model.Appointment, error) {
	if status == model.StatusCancelled {
		return m.AdminCancel(ctx, appointmentID)
	}
	appt, err := m.store.GetByID(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !legalTransition(appt.Status, status) {
		return model.Appointment{}, invalid("status", "cannot change "+appt.Status+" to "+status)
	}
	now := m.now()
	var updated model.Appointment
	err = m.atomic(ctx, appt.ProviderID, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !legalTransition(cur.Status, status) {
			return invalid("status", "cannot change "+cur.Status+" to "+status)
		}
		if err := tx.UpdateStatus(ctx, cur.ID, status); err != nil {
			return err
		}
		cur.Status = status
		cur.UpdatedAt = now
		updated = cur
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return updated, nil
}

func legalTransition(from, to string) bool {
	switch from {
	case model.StatusBooked:
		return to == model.StatusConfirmed || to == model.StatusCompleted || to == model.StatusCancelled
	case model.StatusConfirmed:
		return to == model.StatusCompleted || to == model.StatusCancelled
	}
	return false
}

// Get returns an appointment by id (admin path).
func (m *Manager) Get(ctx context.Context, appointmentID string) (model.Appointment, error) {
	return m.store.GetByID(ctx, appointmentID)
}

// ListByProvider returns recent appointments for the admin calendar.
func (m *Manager) ListByProvider(ctx context.Context, providerID string, limit int) ([]model.Appointment, error) {
	return m.store.ListByProvider(ctx, providerID, limit)
}

// atomic runs fn under the store's per-provider serialization, retrying once
// when the failure looks transient rather than a typed outcome.
func (m *Manager) atomic(ctx context.Context, providerID string, fn func(context.Context, Tx) error) error {
	err := m.store.Atomic(ctx, providerID, fn)
	if retryable(err) && ctx.Err() == nil {
		m.logger.Warn("storage commit failed; retrying once", "provider_id", providerID, "err", err)
		err = m.store.Atomic(ctx, providerID, fn)
	}
	return err
}

func (m *Manager) checkSlot(snap rules.Snapshot, start, now time.Time, action string) (availability.Slot, error) {
	start = start.In(snap.Location).Truncate(time.Minute)
	slot := availability.Slot{
		Start: start,
		End:   start.Add(time.Duration(snap.Service.DurationMins) * time.Minute),
	}
	switch err := availability.CheckSlot(snap, slot, now); err {
	case nil:
		return slot, nil
	case availability.ErrBeyondHorizon:
		return availability.Slot{}, &policy.Violation{Action: action, Reason: "the requested time is beyond the online booking horizon"}
	default:
		return availability.Slot{}, invalid("start_time", err.Error())
	}
}

func (m *Manager) authenticate(ctx context.Context, token string, contact model.Customer) (model.Appointment, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Appointment{}, invalid("token", "required")
	}
	appt, err := m.store.GetByToken(ctx, token)
	if err != nil {
		return model.Appointment{}, err
	}
	if !contactMatches(appt.Customer, contact) {
		// Indistinguishable from an unknown token on purpose.
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

// contactMatches verifies ownership of a booking: the stored email wins when
// present, otherwise the stored phone.
func contactMatches(stored, given model.Customer) bool {
	if e := strings.ToLower(strings.TrimSpace(stored.Email)); e != "" {
		return strings.ToLower(strings.TrimSpace(given.Email)) == e
	}
	if p := normalizePhone(stored.Phone); p != "" {
		return normalizePhone(given.Phone) == p
	}
	return true
}

func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validateCustomer(c model.Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("customer_name", "required")
	}
	if strings.TrimSpace(c.Email) == "" && strings.TrimSpace(c.Phone) == "" {
		return invalid("customer_email", "an email or phone number is required")
	}
	return nil
}

func normalizeCustomer(c model.Customer) model.Customer {
	return model.Customer{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
}
