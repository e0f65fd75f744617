package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/webschedulr/scheduling/internal/booking"
	"github.com/webschedulr/scheduling/internal/model"
	"github.com/webschedulr/scheduling/internal/outbox"
	"github.com/webschedulr/scheduling/libs/db"
)

// AppointmentStore is the Postgres implementation of booking.Store.
//
// Commit-time serialization uses both belts: an advisory transaction lock per
// provider (two writers for the same provider queue up) and the
// appointments_no_overlap exclusion constraint (anything that slips through
// maps to the conflict error).
type AppointmentStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentStore(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentStore {
	return &AppointmentStore{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `
	id::text, provider_id::text, service_id::text,
	customer_name, customer_email, customer_phone,
	start_time, end_time, status, COALESCE(notes, ''),
	public_token, cancelled_at, created_at, updated_at`

func (s *AppointmentStore) Atomic(ctx context.Context, providerID string, fn func(context.Context, booking.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, providerID); err != nil {
		return err
	}
	if err := fn(ctx, &apptTx{tx: tx, outbox: s.outbox}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *AppointmentStore) ListActiveInRange(ctx context.Context, providerID string, start, end time.Time) ([]model.Appointment, error) {
	return listActiveInRange(ctx, s.pool, providerID, start, end)
}

func (s *AppointmentStore) GetByToken(ctx context.Context, token string) (model.Appointment, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+appointmentColumns+` FROM appointments WHERE public_token = $1`, token)
	return scanAppointment(row)
}

func (s *AppointmentStore) GetByID(ctx context.Context, id string) (model.Appointment, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (s *AppointmentStore) ListByProvider(ctx context.Context, providerID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, providerID, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// apptTx adapts a pgx transaction to booking.Tx.
type apptTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *apptTx) ListActiveInRange(ctx context.Context, providerID string, start, end time.Time) ([]model.Appointment, error) {
	return listActiveInRange(ctx, t.tx, providerID, start, end)
}

func (t *apptTx) GetByToken(ctx context.Context, token string) (model.Appointment, error) {
	row := t.tx.QueryRow(ctx, `SELECT`+appointmentColumns+` FROM appointments WHERE public_token = $1 FOR UPDATE`, token)
	return scanAppointment(row)
}

func (t *apptTx) GetByID(ctx context.Context, id string) (model.Appointment, error) {
	row := t.tx.QueryRow(ctx, `SELECT`+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

func (t *apptTx) Insert(ctx context.Context, appt *model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, provider_id, service_id, customer_name, customer_email, customer_phone,
			start_time, end_time, status, notes, public_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`, appt.ID, appt.ProviderID, appt.ServiceID,
		appt.Customer.Name, appt.Customer.Email, appt.Customer.Phone,
		appt.StartTime, appt.EndTime, appt.Status, appt.Notes, appt.Token, appt.CreatedAt)
	return mapError(err)
}

func (t *apptTx) UpdateSlot(ctx context.Context, id string, start, end time.Time) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET start_time = $2, end_time = $3, updated_at = now()
		WHERE id = $1
	`, id, start, end)
	if err != nil {
		return mapError(err)
	}
	if ct.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (t *apptTx) UpdateStatus(ctx context.Context, id, status string) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			cancelled_at = CASE WHEN $2 = 'cancelled' THEN now() ELSE cancelled_at END,
			updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return mapError(err)
	}
	if ct.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (t *apptTx) AppendEvent(ctx context.Context, evt booking.Event) error {
	return t.outbox.Insert(ctx, t.tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   evt.AppointmentID,
		EventType:     evt.Type,
		Payload:       evt.Payload,
	})
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listActiveInRange(ctx context.Context, q querier, providerID string, start, end time.Time) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, providerID, start, end)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAppointment(row scannable) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.ProviderID,
		&appt.ServiceID,
		&appt.Customer.Name,
		&appt.Customer.Email,
		&appt.Customer.Phone,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&appt.Notes,
		&appt.Token,
		&cancelledAt,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, mapError(err)
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

// mapError translates storage-level failures into the engine's typed
// outcomes: the overlap exclusion constraint (23P01) means the slot was lost
// to a concurrent booking; missing rows mean not found.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
		return booking.ErrSlotConflict
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.ErrNotFound
	}
	return err
}
