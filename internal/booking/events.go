package booking

import (
	"encoding/json"
	"time"

	"github.com/webschedulr/scheduling/internal/model"
)

// Event types published on every successful state transition. Downstream
// consumers (notification dispatch and friends) subscribe to these topics;
// the engine neither knows nor cares who listens.
const (
	EventBooked      = "scheduling.appointment.booked.v1"
	EventRescheduled = "scheduling.appointment.rescheduled.v1"
	EventCancelled   = "scheduling.appointment.cancelled.v1"
)

// Event is a domain event appended to the outbox inside the same transaction
// as the state change it describes.
type Event struct {
	Type          string
	AppointmentID string
	Payload       []byte
}

func newEvent(eventType string, appt model.Appointment, extra map[string]any) (Event, error) {
	body := map[string]any{
		"appointment_id": appt.ID,
		"provider_id":    appt.ProviderID,
		"service_id":     appt.ServiceID,
		"customer_name":  appt.Customer.Name,
		"customer_email": appt.Customer.Email,
		"customer_phone": appt.Customer.Phone,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
		"status":         appt.Status,
	}
	for k, v := range extra {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, AppointmentID: appt.ID, Payload: payload}, nil
}
