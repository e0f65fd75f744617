// Package handlers is the HTTP boundary the admin calendar, quick-book panel
// and public widget call. It parses loosely-typed payloads into engine types
// and maps typed engine outcomes onto status codes; no scheduling logic lives
// here.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/webschedulr/scheduling/internal/availability"
	"github.com/webschedulr/scheduling/internal/booking"
	"github.com/webschedulr/scheduling/internal/model"
	"github.com/webschedulr/scheduling/internal/policy"
)

// Engine is the booking manager surface the handlers need. Tests stub it.
type Engine interface {
	SlotsForDate(ctx context.Context, providerID, serviceID string, date time.Time) ([]availability.Slot, error)
	SlotsForRange(ctx context.Context, providerID, serviceID string, from time.Time, days int) ([]booking.DaySlots, error)
	Book(ctx context.Context, req booking.BookRequest) (model.Appointment, error)
	Lookup(ctx context.Context, token string, contact model.Customer) (model.Appointment, error)
	Reschedule(ctx context.Context, token string, contact model.Customer, newStart time.Time) (model.Appointment, error)
	Cancel(ctx context.Context, token string, contact model.Customer) (model.Appointment, error)
	AdminReschedule(ctx context.Context, appointmentID string, newStart time.Time) (model.Appointment, error)
	AdminCancel(ctx context.Context, appointmentID string) (model.Appointment, error)
	SetStatus(ctx context.Context, appointmentID, status string) (model.Appointment, error)
	ListByProvider(ctx context.Context, providerID string, limit int) ([]model.Appointment, error)
}

type SchedulingHandler struct {
	engine Engine
	logger *slog.Logger
}

func NewSchedulingHandler(engine Engine, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{engine: engine, logger: logger}
}

// Register wires all routes onto the mux.
func (h *SchedulingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/public/slots/range", h.SlotsRange)
	mux.HandleFunc("/api/v1/public/book", h.Book)
	mux.HandleFunc("/api/v1/public/appointments/lookup", h.Lookup)
	mux.HandleFunc("/api/v1/public/appointments/reschedule", h.Reschedule)
	mux.HandleFunc("/api/v1/public/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments", h.List)
	mux.HandleFunc("/api/v1/appointments/book", h.AdminBook)
	mux.HandleFunc("/api/v1/appointments/reschedule", h.AdminReschedule)
	mux.HandleFunc("/api/v1/appointments/cancel", h.AdminCancel)
	mux.HandleFunc("/api/v1/appointments/status", h.SetStatus)
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type bookRequest struct {
	ProviderID    string `json:"provider_id"`
	ServiceID     string `json:"service_id"`
	StartTime     string `json:"start_time"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	Notes         string `json:"notes"`
}

type selfServiceRequest struct {
	Token     string `json:"token"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	StartTime string `json:"start_time"`
}

type appointmentView struct {
	AppointmentID string `json:"appointment_id"`
	ProviderID    string `json:"provider_id"`
	ServiceID     string `json:"service_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	Token         string `json:"token,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if providerID == "" || serviceID == "" || dateStr == "" {
		http.Error(w, "provider_id, service_id, and date are required", http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	slots, err := h.engine.SlotsForDate(r.Context(), providerID, serviceID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, slotItems(slots))
}

func (h *SchedulingHandler) SlotsRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	fromStr := strings.TrimSpace(q.Get("from"))
	if providerID == "" || serviceID == "" || fromStr == "" {
		http.Error(w, "provider_id, service_id, and from are required", http.StatusBadRequest)
		return
	}
	from, err := time.ParseInLocation("2006-01-02", fromStr, time.UTC)
	if err != nil {
		http.Error(w, "invalid from date", http.StatusBadRequest)
		return
	}
	days := 30
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid days", http.StatusBadRequest)
			return
		}
		days = n
	}

	byDay, err := h.engine.SlotsForRange(r.Context(), providerID, serviceID, from, days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := make(map[string][]slotItem, len(byDay))
	for _, day := range byDay {
		resp[day.Date] = slotItems(day.Slots)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *SchedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	h.book(w, r, false)
}

// AdminBook uses the same booking path as the public widget; staff identity
// is established upstream at the gateway.
func (h *SchedulingHandler) AdminBook(w http.ResponseWriter, r *http.Request) {
	h.book(w, r, true)
}

func (h *SchedulingHandler) book(w http.ResponseWriter, r *http.Request, admin bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		h.writeError(w, &booking.ValidationError{Field: "start_time", Msg: "must be RFC3339"})
		return
	}

	appt, err := h.engine.Book(r.Context(), booking.BookRequest{
		ProviderID: strings.TrimSpace(req.ProviderID),
		ServiceID:  strings.TrimSpace(req.ServiceID),
		Start:      start,
		Customer: model.Customer{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
		},
		Notes: req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	view := viewOf(appt, true)
	if admin {
		view.Token = ""
	}
	h.writeJSON(w, http.StatusCreated, view)
}

func (h *SchedulingHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSelfService(w, r)
	if !ok {
		return
	}
	appt, err := h.engine.Lookup(r.Context(), req.Token, contactOf(req))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(appt, true))
}

func (h *SchedulingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSelfService(w, r)
	if !ok {
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		h.writeError(w, &booking.ValidationError{Field: "start_time", Msg: "must be RFC3339"})
		return
	}
	appt, err := h.engine.Reschedule(r.Context(), req.Token, contactOf(req), start)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(appt, true))
}

func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSelfService(w, r)
	if !ok {
		return
	}
	appt, err := h.engine.Cancel(r.Context(), req.Token, contactOf(req))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(appt, false))
}

func (h *SchedulingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if providerID == "" {
		http.Error(w, "provider_id required", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	appts, err := h.engine.ListByProvider(r.Context(), providerID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]appointmentView, 0, len(appts))
	for _, a := range appts {
		views = append(views, viewOf(a, false))
	}
	h.writeJSON(w, http.StatusOK, views)
}

type adminMutationRequest struct {
	AppointmentID string `json:"appointment_id"`
	StartTime     string `json:"start_time"`
	Status        string `json:"status"`
}

func (h *SchedulingHandler) AdminReschedule(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAdmin(w, r)
	if !ok {
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		h.writeError(w, &booking.ValidationError{Field: "start_time", Msg: "must be RFC3339"})
		return
	}
	appt, err := h.engine.AdminReschedule(r.Context(), req.AppointmentID, start)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(appt, false))
}

func (h *SchedulingHandler) AdminCancel(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAdmin(w, r)
	if !ok {
		return
	}
	appt, err := h.engine.AdminCancel(r.Context(), req.AppointmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(appt, false))
}

func (h *SchedulingHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAdmin(w, r)
	if !ok {
		return
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		h.writeError(w, &booking.ValidationError{Field: "status", Msg: "required"})
		return
	}
	appt, err := h.engine.SetStatus(r.Context(), req.AppointmentID, status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(appt, false))
}

func (h *SchedulingHandler) decodeSelfService(w http.ResponseWriter, r *http.Request) (selfServiceRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return selfServiceRequest{}, false
	}
	var req selfServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return selfServiceRequest{}, false
	}
	return req, true
}

func (h *SchedulingHandler) decodeAdmin(w http.ResponseWriter, r *http.Request) (adminMutationRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return adminMutationRequest{}, false
	}
	var req adminMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return adminMutationRequest{}, false
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		h.writeError(w, &booking.ValidationError{Field: "appointment_id", Msg: "required"})
		return adminMutationRequest{}, false
	}
	return req, true
}

func contactOf(req selfServiceRequest) model.Customer {
	return model.Customer{Email: req.Email, Phone: req.Phone}
}

func slotItems(slots []availability.Slot) []slotItem {
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
	}
	return items
}

func viewOf(appt model.Appointment, withToken bool) appointmentView {
	v := appointmentView{
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		ServiceID:     appt.ServiceID,
		CustomerName:  appt.Customer.Name,
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
		Status:        appt.Status,
		CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if withToken {
		v.Token = appt.Token
	}
	if appt.CancelledAt != nil {
		v.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	return v
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps typed engine outcomes onto status codes. Conflicts are
// distinct (409) so clients re-fetch availability; not-found stays generic.
func (h *SchedulingHandler) writeError(w http.ResponseWriter, err error) {
	var ve *booking.ValidationError
	if errors.As(err, &ve) {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Msg, Field: ve.Field})
		return
	}
	var pv *policy.Violation
	if errors.As(err, &pv) {
		h.writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: pv.Reason})
		return
	}
	if errors.Is(err, booking.ErrSlotConflict) {
		h.writeJSON(w, http.StatusConflict, errorBody{Error: "the selected time is no longer available"})
		return
	}
	if errors.Is(err, booking.ErrNotFound) {
		h.writeJSON(w, http.StatusNotFound, errorBody{Error: "appointment not found"})
		return
	}
	h.logger.Error("scheduling request failed", "err", err)
	h.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "temporarily unavailable, please retry"})
}

func (h *SchedulingHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response encode failed", "err", err)
	}
}
