package booking

import (
	"context"
	"time"

	"github.com/webschedulr/scheduling/internal/model"
)

// Tx is the write-side storage contract available inside an atomic section.
// Implementations back it with a database transaction; the in-memory test
// store backs it with a mutex.
type Tx interface {
	// ListActiveInRange returns non-cancelled appointments for the provider
	// whose [start, end) interval overlaps the given range.
	ListActiveInRange(ctx context.Context, providerID string, start, end time.Time) ([]model.Appointment, error)
	// GetByToken re-reads the appointment's current state under the
	// transaction; mutations are never applied from a stale read.
	GetByToken(ctx context.Context, token string) (model.Appointment, error)
	GetByID(ctx context.Context, id string) (model.Appointment, error)
	Insert(ctx context.Context, appt *model.Appointment) error
	UpdateSlot(ctx context.Context, id string, start, end time.Time) error
	UpdateStatus(ctx context.Context, id, status string) error
	AppendEvent(ctx context.Context, evt Event) error
}

// Store is the appointment persistence contract. Atomic serializes its
// callback per provider: two concurrent commits for the same provider never
// interleave, which is what guarantees exactly one winner for a contested
// slot.
type Store interface {
	Atomic(ctx context.Context, providerID string, fn func(ctx context.Context, tx Tx) error) error

	// Read path; best-effort preview, re-validated at commit time.
	ListActiveInRange(ctx context.Context, providerID string, start, end time.Time) ([]model.Appointment, error)
	GetByToken(ctx context.Context, token string) (model.Appointment, error)
	GetByID(ctx context.Context, id string) (model.Appointment, error)
	ListByProvider(ctx context.Context, providerID string, limit int) ([]model.Appointment, error)
}
