package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/webschedulr/scheduling/internal/booking"
	"github.com/webschedulr/scheduling/internal/model"
	"github.com/webschedulr/scheduling/internal/policy"
	"github.com/webschedulr/scheduling/internal/rules"
	"github.com/webschedulr/scheduling/internal/timeutil"
	"github.com/webschedulr/scheduling/libs/db"
)

// Settings keys, matching the admin UI's loosely-typed settings store. They
// are parsed into typed rules here, once, at the edge; the engine core never
// sees raw strings.
const (
	settingTimezone    = "business.timezone"
	settingReschedule  = "business.reschedule"
	settingCancel      = "business.cancellation"
	settingHorizonDays = "business.booking_horizon_days"
)

// RulesRepository loads rule snapshots from Postgres. Implements
// rules.Loader.
type RulesRepository struct {
	pool *db.Pool
}

func NewRulesRepository(pool *db.Pool) *RulesRepository {
	return &RulesRepository{pool: pool}
}

func (r *RulesRepository) Load(ctx context.Context, providerID, serviceID string) (rules.Snapshot, error) {
	if providerID == "" {
		return rules.Snapshot{}, &booking.ValidationError{Field: "provider_id", Msg: "required"}
	}
	if serviceID == "" {
		return rules.Snapshot{}, &booking.ValidationError{Field: "service_id", Msg: "required"}
	}

	var snap rules.Snapshot

	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, is_active
		FROM providers
		WHERE id = $1
	`, providerID).Scan(&snap.Provider.ID, &snap.Provider.Name, &snap.Provider.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return rules.Snapshot{}, &booking.ValidationError{Field: "provider_id", Msg: "unknown provider"}
	}
	if err != nil {
		return rules.Snapshot{}, err
	}
	if !snap.Provider.IsActive {
		return rules.Snapshot{}, &booking.ValidationError{Field: "provider_id", Msg: "provider is not accepting bookings"}
	}

	err = r.pool.QueryRow(ctx, `
		SELECT s.id::text, s.name, s.duration_minutes, s.price::text, s.is_active
		FROM services s
		JOIN provider_services ps ON ps.service_id = s.id
		WHERE s.id = $1 AND ps.provider_id = $2
	`, serviceID, providerID).Scan(
		&snap.Service.ID, &snap.Service.Name, &snap.Service.DurationMins,
		&snap.Service.Price, &snap.Service.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return rules.Snapshot{}, &booking.ValidationError{Field: "service_id", Msg: "service is not offered by this provider"}
	}
	if err != nil {
		return rules.Snapshot{}, err
	}
	if !snap.Service.IsActive {
		return rules.Snapshot{}, &booking.ValidationError{Field: "service_id", Msg: "service is not available"}
	}
	snap.Service.ProviderID = providerID

	settings, err := r.loadSettings(ctx)
	if err != nil {
		return rules.Snapshot{}, err
	}
	snap.Location = time.UTC
	if tz := settings[settingTimezone]; tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			snap.Location = loc
		}
	}
	snap.Reschedule = policy.ParseRule(settings[settingReschedule])
	snap.Cancel = policy.ParseRule(settings[settingCancel])
	snap.HorizonDays = 60
	if raw := settings[settingHorizonDays]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 365 {
			snap.HorizonDays = n
		}
	}

	if snap.Schedule, err = r.loadSchedule(ctx, providerID); err != nil {
		return rules.Snapshot{}, err
	}
	if snap.Breaks, err = r.loadBreaks(ctx, providerID); err != nil {
		return rules.Snapshot{}, err
	}
	if snap.Blocked, err = r.loadBlockedPeriods(ctx, providerID, snap.Location); err != nil {
		return rules.Snapshot{}, err
	}
	return snap, nil
}

func (r *RulesRepository) loadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT key, value
		FROM settings
		WHERE key = ANY($1)
	`, []string{settingTimezone, settingReschedule, settingCancel, settingHorizonDays})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// loadSchedule reads the provider's weekly hours, falling back to the global
// default rows (provider_id NULL) for weekdays the provider has not
// overridden. With no rows at all the stock Mon-Fri 09:00-17:00 week applies.
func (r *RulesRepository) loadSchedule(ctx context.Context, providerID string) (model.WeekSchedule, error) {
	sched := defaultWeek()

	rows, err := r.pool.Query(ctx, `
		SELECT weekday, is_working, start_minute, end_minute, provider_id IS NOT NULL
		FROM business_hours
		WHERE provider_id = $1 OR provider_id IS NULL
		ORDER BY provider_id NULLS FIRST
	`, providerID)
	if err != nil {
		return sched, err
	}
	defer rows.Close()

	for rows.Next() {
		var weekday, startMin, endMin int
		var working, providerScoped bool
		if err := rows.Scan(&weekday, &working, &startMin, &endMin, &providerScoped); err != nil {
			return sched, err
		}
		if weekday < 0 || weekday > 6 {
			continue
		}
		sched[weekday] = model.DayHours{
			Working: working,
			Start:   timeutil.Clock(startMin),
			End:     timeutil.Clock(endMin),
		}
	}
	return sched, rows.Err()
}

func (r *RulesRepository) loadBreaks(ctx context.Context, providerID string) ([]model.BreakWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM break_windows
		WHERE provider_id = $1
		ORDER BY start_minute
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var breaks []model.BreakWindow
	for rows.Next() {
		var weekday *int
		var startMin, endMin int
		if err := rows.Scan(&weekday, &startMin, &endMin); err != nil {
			return nil, err
		}
		br := model.BreakWindow{Start: timeutil.Clock(startMin), End: timeutil.Clock(endMin)}
		if weekday != nil && *weekday >= 0 && *weekday <= 6 {
			wd := time.Weekday(*weekday)
			br.Weekday = &wd
		}
		breaks = append(breaks, br)
	}
	return breaks, rows.Err()
}

func (r *RulesRepository) loadBlockedPeriods(ctx context.Context, providerID string, loc *time.Location) ([]model.BlockedPeriod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(provider_id::text, ''), start_date, end_date, COALESCE(note, '')
		FROM blocked_periods
		WHERE provider_id = $1 OR provider_id IS NULL
		ORDER BY start_date
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocked []model.BlockedPeriod
	for rows.Next() {
		var bp model.BlockedPeriod
		if err := rows.Scan(&bp.ProviderID, &bp.StartDate, &bp.EndDate, &bp.Note); err != nil {
			return nil, err
		}
		// DATE columns come back as UTC midnight; re-anchor the calendar
		// date in the business timezone without shifting it.
		bp.StartDate = timeutil.DateIn(bp.StartDate, loc)
		bp.EndDate = timeutil.DateIn(bp.EndDate, loc)
		blocked = append(blocked, bp)
	}
	return blocked, rows.Err()
}

func defaultWeek() model.WeekSchedule {
	var sched model.WeekSchedule
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if wd >= time.Monday && wd <= time.Friday {
			sched[wd] = model.DayHours{Working: true, Start: 9 * 60, End: 17 * 60}
		}
	}
	return sched
}
