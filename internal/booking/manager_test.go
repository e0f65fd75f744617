package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/webschedulr/scheduling/internal/model"
	"github.com/webschedulr/scheduling/internal/policy"
	"github.com/webschedulr/scheduling/internal/rules"
)

// memStore implements Store with a single mutex standing in for the
// database's per-provider serialization. Mutations are staged and applied
// only when the callback succeeds, mirroring transaction semantics.
type memStore struct {
	mu     sync.Mutex
	appts  map[string]model.Appointment
	events []Event

	// failNext injects one transient error into the next Atomic call.
	failNext bool
}

func newMemStore() *memStore {
	return &memStore{appts: map[string]model.Appointment{}}
}

type memTx struct {
	store   *memStore
	staged  map[string]model.Appointment
	deleted map[string]bool
	events  []Event
}

func (s *memStore) Atomic(ctx context.Context, providerID string, fn func(context.Context, Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("connection reset")
	}
	tx := &memTx{store: s, staged: map[string]model.Appointment{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, appt := range tx.staged {
		s.appts[id] = appt
	}
	s.events = append(s.events, tx.events...)
	return nil
}

func (t *memTx) current(id string) (model.Appointment, bool) {
	if a, ok := t.staged[id]; ok {
		return a, true
	}
	a, ok := t.store.appts[id]
	return a, ok
}

func (t *memTx) ListActiveInRange(_ context.Context, providerID string, start, end time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for id := range t.store.appts {
		a, _ := t.current(id)
		if a.ProviderID != providerID || !model.ActiveStatus(a.Status) {
			continue
		}
		if a.StartTime.Before(end) && start.Before(a.EndTime) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memTx) GetByToken(_ context.Context, token string) (model.Appointment, error) {
	for id := range t.store.appts {
		if a, _ := t.current(id); a.Token == token {
			return a, nil
		}
	}
	return model.Appointment{}, ErrNotFound
}

func (t *memTx) GetByID(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.current(id)
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (t *memTx) Insert(_ context.Context, appt *model.Appointment) error {
	t.staged[appt.ID] = *appt
	return nil
}

func (t *memTx) UpdateSlot(_ context.Context, id string, start, end time.Time) error {
	a, ok := t.current(id)
	if !ok {
		return ErrNotFound
	}
	a.StartTime, a.EndTime = start, end
	t.staged[id] = a
	return nil
}

func (t *memTx) UpdateStatus(_ context.Context, id, status string) error {
	a, ok := t.current(id)
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	t.staged[id] = a
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, evt Event) error {
	t.events = append(t.events, evt)
	return nil
}

func (s *memStore) ListActiveInRange(ctx context.Context, providerID string, start, end time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{store: s, staged: map[string]model.Appointment{}}
	return tx.ListActiveInRange(ctx, providerID, start, end)
}

func (s *memStore) GetByToken(_ context.Context, token string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appts {
		if a.Token == token {
			return a, nil
		}
	}
	return model.Appointment{}, ErrNotFound
}

func (s *memStore) GetByID(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (s *memStore) ListByProvider(_ context.Context, providerID string, limit int) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.ProviderID == providerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, len(s.events))
	for i, e := range s.events {
		types[i] = e.Type
	}
	return types
}

// staticRules serves a fixed snapshot for the test provider/service pair.
type staticRules struct {
	snap rules.Snapshot
}

func (s staticRules) Load(_ context.Context, providerID, serviceID string) (rules.Snapshot, error) {
	if providerID != s.snap.Provider.ID {
		return rules.Snapshot{}, &ValidationError{Field: "provider_id", Msg: "unknown provider"}
	}
	if serviceID != s.snap.Service.ID {
		return rules.Snapshot{}, &ValidationError{Field: "service_id", Msg: "service is not offered by this provider"}
	}
	return s.snap, nil
}

var (
	testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testDay = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
)

func at(h, m int) time.Time {
	return testDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func testSnapshot() rules.Snapshot {
	var sched model.WeekSchedule
	for i := range sched {
		sched[i] = model.DayHours{Working: true, Start: 9 * 60, End: 17 * 60}
	}
	return rules.Snapshot{
		Provider:    model.Provider{ID: "prov-1", Name: "Dr. Adams", IsActive: true},
		Service:     model.Service{ID: "svc-1", ProviderID: "prov-1", DurationMins: 30, IsActive: true},
		Schedule:    sched,
		HorizonDays: 60,
		Reschedule:  policy.Rule{Mode: policy.ModeCutoff, Hours: 24},
		Cancel:      policy.Rule{Mode: policy.ModeCutoff, Hours: 24},
		Location:    time.UTC,
	}
}

func newTestManager(store Store, snap rules.Snapshot) *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(store, staticRules{snap: snap}, logger).
		WithClock(func() time.Time { return testNow })
}

func mustBook(t *testing.T, m *Manager, start time.Time) model.Appointment {
	t.Helper()
	appt, err := m.Book(context.Background(), BookRequest{
		ProviderID: "prov-1",
		ServiceID:  "svc-1",
		Start:      start,
		Customer:   model.Customer{Name: "Ana Silva", Email: "ana@example.com"},
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	return appt
}

func TestBook_DerivesEndFromServiceDuration(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())

	appt := mustBook(t, m, at(10, 0))
	if !appt.EndTime.Equal(at(10, 30)) {
		t.Fatalf("end = %v, want 10:30 (30min service)", appt.EndTime)
	}
	if appt.Status != model.StatusBooked {
		t.Fatalf("status = %q", appt.Status)
	}
	if appt.ID == "" || appt.Token == "" {
		t.Fatal("id and token must be assigned")
	}
	if types := store.eventTypes(); len(types) != 1 || types[0] != EventBooked {
		t.Fatalf("events = %v, want [%s]", types, EventBooked)
	}
}

func TestBook_RemovesSlotFromAvailability(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())

	before, err := m.SlotsForDate(context.Background(), "prov-1", "svc-1", testDay)
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != 16 {
		t.Fatalf("expected 16 slots before booking, got %d", len(before))
	}

	mustBook(t, m, at(10, 0))

	after, err := m.SlotsForDate(context.Background(), "prov-1", "svc-1", testDay)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 15 {
		t.Fatalf("expected 15 slots after booking, got %d", len(after))
	}
	for _, s := range after {
		if s.Start.Equal(at(10, 0)) {
			t.Fatal("booked slot still offered")
		}
	}
}

func TestBook_ConflictOnSameSlot(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())

	mustBook(t, m, at(10, 0))
	_, err := m.Book(context.Background(), BookRequest{
		ProviderID: "prov-1",
		ServiceID:  "svc-1",
		Start:      at(10, 0),
		Customer:   model.Customer{Name: "Ben Okafor", Phone: "+15550100"},
	})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("err = %v, want ErrSlotConflict", err)
	}
}

func TestBook_ConcurrentAttemptsExactlyOneWins(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Book(context.Background(), BookRequest{
				ProviderID: "prov-1",
				ServiceID:  "svc-1",
				Start:      at(14, 0),
				Customer:   model.Customer{Name: "Racer", Email: "racer@example.com"},
			})
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != n-1 {
		t.Fatalf("wins = %d, conflicts = %d; want exactly 1 winner", wins, conflicts)
	}
}

func TestBook_NoOverlapInvariantAfterMixedOperations(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())

	a := mustBook(t, m, at(9, 0))
	mustBook(t, m, at(9, 30))
	if _, err := m.Reschedule(context.Background(), a.Token, model.Customer{Email: "ana@example.com"}, at(10, 0)); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	mustBook(t, m, at(9, 0)) // freed by the reschedule

	appts, _ := m.ListByProvider(context.Background(), "prov-1", 50)
	for i := range appts {
		for j := i + 1; j < len(appts); j++ {
			if !model.ActiveStatus(appts[i].Status) || !model.ActiveStatus(appts[j].Status) {
				continue
			}
			if appts[i].Interval().Overlaps(appts[j].Interval()) {
				t.Fatalf("overlap between %v and %v", appts[i].Interval(), appts[j].Interval())
			}
		}
	}
}

func TestBook_ValidationErrors(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())
	ctx := context.Background()

	cases := []struct {
		name string
		req  BookRequest
	}{
		{"missing name", BookRequest{ProviderID: "prov-1", ServiceID: "svc-1", Start: at(10, 0), Customer: model.Customer{Email: "x@example.com"}}},
		{"missing contact", BookRequest{ProviderID: "prov-1", ServiceID: "svc-1", Start: at(10, 0), Customer: model.Customer{Name: "X"}}},
		{"unknown provider", BookRequest{ProviderID: "nope", ServiceID: "svc-1", Start: at(10, 0), Customer: model.Customer{Name: "X", Email: "x@example.com"}}},
		{"unknown service", BookRequest{ProviderID: "prov-1", ServiceID: "nope", Start: at(10, 0), Customer: model.Customer{Name: "X", Email: "x@example.com"}}},
		{"outside hours", BookRequest{ProviderID: "prov-1", ServiceID: "svc-1", Start: at(7, 0), Customer: model.Customer{Name: "X", Email: "x@example.com"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Book(ctx, tc.req); !IsValidation(err) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestBook_BeyondHorizonIsPolicyViolation(t *testing.T) {
	snap := testSnapshot()
	snap.HorizonDays = 2
	m := newTestManager(newMemStore(), snap)

	_, err := m.Book(context.Background(), BookRequest{
		ProviderID: "prov-1",
		ServiceID:  "svc-1",
		Start:      at(10, 0), // 3 days out
		Customer:   model.Customer{Name: "X", Email: "x@example.com"},
	})
	if !IsPolicyViolation(err) {
		t.Fatalf("err = %v, want policy violation", err)
	}
}

func TestBook_RetriesTransientErrorOnce(t *testing.T) {
	store := newMemStore()
	store.failNext = true
	m := newTestManager(store, testSnapshot())

	appt := mustBook(t, m, at(10, 0))
	if appt.ID == "" {
		t.Fatal("expected booking to succeed on retry")
	}
}

func TestLookup_TokenAndContact(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())
	ctx := context.Background()

	appt := mustBook(t, m, at(10, 0))

	if _, err := m.Lookup(ctx, appt.Token, model.Customer{Email: "ANA@example.com"}); err != nil {
		t.Fatalf("case-insensitive email match should pass: %v", err)
	}
	if _, err := m.Lookup(ctx, appt.Token, model.Customer{Email: "wrong@example.com"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("contact mismatch: err = %v, want ErrNotFound", err)
	}
	if _, err := m.Lookup(ctx, "no-such-token", model.Customer{Email: "ana@example.com"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown token: err = %v, want ErrNotFound", err)
	}
}

func TestReschedule_KeepsIDAndToken(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())
	contact := model.Customer{Email: "ana@example.com"}

	appt := mustBook(t, m, at(10, 0))
	moved, err := m.Reschedule(context.Background(), appt.Token, contact, at(15, 0))
	if err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if moved.ID != appt.ID || moved.Token != appt.Token {
		t.Fatal("reschedule must keep id and token")
	}
	if !moved.StartTime.Equal(at(15, 0)) || !moved.EndTime.Equal(at(15, 30)) {
		t.Fatalf("moved to %v-%v", moved.StartTime, moved.EndTime)
	}
	types := store.eventTypes()
	if types[len(types)-1] != EventRescheduled {
		t.Fatalf("last event = %v, want %s", types, EventRescheduled)
	}
}

func TestReschedule_ConflictWithOtherAppointment(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())

	a := mustBook(t, m, at(10, 0))
	mustBook(t, m, at(11, 0))

	_, err := m.Reschedule(context.Background(), a.Token, model.Customer{Email: "ana@example.com"}, at(11, 0))
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("err = %v, want ErrSlotConflict", err)
	}
}

func TestReschedule_OntoOwnSlotAllowed(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())

	a := mustBook(t, m, at(10, 0))
	// Moving 30 minutes so the new slot overlaps the old one: the
	// appointment's own interval must not count as a conflict.
	if _, err := m.Reschedule(context.Background(), a.Token, model.Customer{Email: "ana@example.com"}, at(10, 15)); err != nil {
		t.Fatalf("overlap with own slot rejected: %v", err)
	}
}

func TestReschedule_CutoffPolicy(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())

	// testNow is Mar 1 12:00; an appointment at Mar 2 11:00 is 23h away.
	tooClose := mustBook(t, m, testNow.Add(23*time.Hour).Truncate(time.Minute))
	_, err := m.Reschedule(context.Background(), tooClose.Token, model.Customer{Email: "ana@example.com"}, at(15, 0))
	if !IsPolicyViolation(err) {
		t.Fatalf("err = %v, want policy violation inside the 24h cutoff", err)
	}
}

func TestCancel(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())
	ctx := context.Background()
	contact := model.Customer{Email: "ana@example.com"}

	appt := mustBook(t, m, at(10, 0))
	cancelled, err := m.Cancel(ctx, appt.Token, contact)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("status = %q, cancelledAt = %v", cancelled.Status, cancelled.CancelledAt)
	}

	// The slot is free again.
	slots, _ := m.SlotsForDate(ctx, "prov-1", "svc-1", testDay)
	found := false
	for _, s := range slots {
		if s.Start.Equal(at(10, 0)) {
			found = true
		}
	}
	if !found {
		t.Fatal("cancelled slot should be offered again")
	}

	// Second cancel is a no-op, not an error, and emits no second event.
	events := len(store.eventTypes())
	if _, err := m.Cancel(ctx, appt.Token, contact); err != nil {
		t.Fatalf("duplicate cancel: %v", err)
	}
	if len(store.eventTypes()) != events {
		t.Fatal("duplicate cancel emitted an event")
	}
}

func TestCancel_CutoffScenario(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())
	ctx := context.Background()
	contact := model.Customer{Email: "ana@example.com"}

	in23h := mustBook(t, m, testNow.Add(23*time.Hour).Truncate(time.Minute))
	if _, err := m.Cancel(ctx, in23h.Token, contact); !IsPolicyViolation(err) {
		t.Fatalf("23h out: err = %v, want policy violation", err)
	}

	in25h := mustBook(t, m, testNow.Add(25*time.Hour).Truncate(time.Minute))
	if _, err := m.Cancel(ctx, in25h.Token, contact); err != nil {
		t.Fatalf("25h out: cancel should succeed, got %v", err)
	}
}

func TestAdminOperationsBypassCutoff(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())
	ctx := context.Background()

	appt := mustBook(t, m, testNow.Add(2*time.Hour).Truncate(time.Minute))

	moved, err := m.AdminReschedule(ctx, appt.ID, at(15, 0))
	if err != nil {
		t.Fatalf("admin reschedule inside cutoff should pass: %v", err)
	}
	if !moved.StartTime.Equal(at(15, 0)) {
		t.Fatalf("moved to %v", moved.StartTime)
	}
	if _, err := m.AdminCancel(ctx, appt.ID); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestSetStatus_Transitions(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())
	ctx := context.Background()

	appt := mustBook(t, m, at(10, 0))

	confirmed, err := m.SetStatus(ctx, appt.ID, model.StatusConfirmed)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != model.StatusConfirmed {
		t.Fatalf("status = %q", confirmed.Status)
	}
	if _, err := m.SetStatus(ctx, appt.ID, model.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := m.SetStatus(ctx, appt.ID, model.StatusConfirmed); !IsValidation(err) {
		t.Fatalf("completed→confirmed must be rejected, got %v", err)
	}
}

func TestSlotsForDate_Idempotent(t *testing.T) {
	store := newMemStore()
	m := newTestManager(store, testSnapshot())
	ctx := context.Background()

	mustBook(t, m, at(10, 0))
	a, _ := m.SlotsForDate(ctx, "prov-1", "svc-1", testDay)
	b, _ := m.SlotsForDate(ctx, "prov-1", "svc-1", testDay)
	if len(a) != len(b) {
		t.Fatalf("repeat query differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) {
			t.Fatalf("slot %d differs", i)
		}
	}
}

func TestSlotsForDate_WestOfUTCTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	snap := testSnapshot()
	snap.Location = loc
	m := newTestManager(newMemStore(), snap)

	// The HTTP layer parses "2026-03-04" at UTC midnight; the slots must
	// still land on March 4 in the business timezone, not March 3.
	requested := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	slots, err := m.SlotsForDate(context.Background(), "prov-1", "svc-1", requested)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
	first := slots[0].Start.In(loc)
	if y, mo, d := first.Date(); y != 2026 || mo != time.March || d != 4 {
		t.Fatalf("first slot falls on %04d-%02d-%02d local, want 2026-03-04", y, mo, d)
	}
	if first.Hour() != 9 || first.Minute() != 0 {
		t.Fatalf("first slot at %02d:%02d local, want 09:00", first.Hour(), first.Minute())
	}
}

func TestSlotsForRange_WestOfUTCDateLabels(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	snap := testSnapshot()
	snap.Location = loc
	m := newTestManager(newMemStore(), snap)

	from := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	byDay, err := m.SlotsForRange(context.Background(), "prov-1", "svc-1", from, 2)
	if err != nil {
		t.Fatal(err)
	}
	if byDay[0].Date != "2026-03-04" || byDay[1].Date != "2026-03-05" {
		t.Fatalf("labels = %s, %s; want 2026-03-04, 2026-03-05", byDay[0].Date, byDay[1].Date)
	}
	for _, day := range byDay {
		for _, s := range day.Slots {
			if got := s.Start.In(loc).Format("2006-01-02"); got != day.Date {
				t.Fatalf("slot %v listed under %s but falls on %s locally", s.Start, day.Date, got)
			}
		}
	}
}

// shiftStartStore moves one appointment's start right before the first atomic
// section runs, simulating a reschedule racing the cancel.
type shiftStartStore struct {
	*memStore
	apptID   string
	newStart time.Time
	once     sync.Once
}

func (s *shiftStartStore) Atomic(ctx context.Context, providerID string, fn func(context.Context, Tx) error) error {
	s.once.Do(func() {
		s.mu.Lock()
		a := s.appts[s.apptID]
		length := a.EndTime.Sub(a.StartTime)
		a.StartTime = s.newStart
		a.EndTime = s.newStart.Add(length)
		s.appts[s.apptID] = a
		s.mu.Unlock()
	})
	return s.memStore.Atomic(ctx, providerID, fn)
}

func TestCancel_RechecksCutoffInsideTransaction(t *testing.T) {
	base := newMemStore()
	appt := mustBook(t, newTestManager(base, testSnapshot()), at(10, 0)) // ~70h notice

	// By commit time the appointment starts in one hour, inside the 24h
	// cutoff. The unlocked pre-check saw the old start and passed.
	shifted := &shiftStartStore{memStore: base, apptID: appt.ID, newStart: testNow.Add(time.Hour)}
	m := newTestManager(shifted, testSnapshot())

	_, err := m.Cancel(context.Background(), appt.Token, model.Customer{Email: "ana@example.com"})
	if !IsPolicyViolation(err) {
		t.Fatalf("err = %v, want policy violation from the in-transaction re-check", err)
	}
	if got, _ := base.GetByID(context.Background(), appt.ID); got.Status == model.StatusCancelled {
		t.Fatal("appointment must not be cancelled")
	}
}

func TestSlotsForRange_PerDayMap(t *testing.T) {
	snap := testSnapshot()
	snap.Blocked = []model.BlockedPeriod{{StartDate: testDay.AddDate(0, 0, 1), EndDate: testDay.AddDate(0, 0, 1)}}
	m := newTestManager(newMemStore(), snap)

	byDay, err := m.SlotsForRange(context.Background(), "prov-1", "svc-1", testDay, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(byDay) != 3 {
		t.Fatalf("expected 3 days, got %d", len(byDay))
	}
	if byDay[0].Date != "2026-03-04" {
		t.Fatalf("first day = %s", byDay[0].Date)
	}
	if len(byDay[0].Slots) != 16 {
		t.Fatalf("day 1: %d slots", len(byDay[0].Slots))
	}
	if len(byDay[1].Slots) != 0 {
		t.Fatalf("blocked day offered %d slots", len(byDay[1].Slots))
	}
	if len(byDay[2].Slots) != 16 {
		t.Fatalf("day 3: %d slots", len(byDay[2].Slots))
	}
}
