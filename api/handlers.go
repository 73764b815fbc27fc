/*
handlers.go - HTTP API handlers for the booking engine

PURPOSE:
  Exposes the booking lifecycle engine via REST API. Handles HTTP
  request/response and JSON serialization, and delegates to booking.Engine.

ENDPOINTS:
  Bookings:
    POST   /api/bookings                         Create a HOLD booking
    GET    /api/bookings                         List (filters as query params)
    GET    /api/bookings/{id}                    Get booking
    PATCH  /api/bookings/{id}                    Modify stay / room type / rooms
    POST   /api/bookings/{id}/submit             HOLD -> PENDING
    POST   /api/bookings/{id}/confirm            HOLD|PENDING -> CONFIRMED
    POST   /api/bookings/{id}/check-in           CONFIRMED -> CHECKED_IN
    POST   /api/bookings/{id}/check-out          CHECKED_IN -> CHECKED_OUT
    POST   /api/bookings/{id}/cancel             Cancel with policy fee
    POST   /api/bookings/{id}/reject             Reject, full refund
    POST   /api/bookings/{id}/no-show            Mark no-show
    GET    /api/bookings/{id}/cancellation-fee   Advisory fee preview
    GET    /api/bookings/{id}/audit              Audit trail

  Payments:
    GET    /api/bookings/{id}/payments           Statement
    POST   /api/bookings/{id}/payments           Charge through the gateway
    POST   /api/bookings/{id}/payments/{paymentID}/refunds
    GET    /api/bookings/{id}/balance            Outstanding balance

  Inventory:
    GET    /api/inventory/{roomTypeID}?from=&to= Availability
    PUT    /api/inventory/{roomTypeID}           Set capacity for a range

  Policies:
    GET    /api/policies                         List cancellation policies
    POST   /api/policies                         Create/replace from JSON
    GET    /api/policies/{id}                    Get policy

  Admin:
    POST   /api/admin/sweep                      Run the hold sweep now

  Scenarios (scenarios.go):
    GET    /api/scenarios                        List demo scenarios
    GET    /api/scenarios/current                Last loaded scenario
    POST   /api/scenarios/load                   Load a scenario

ACTOR:
  The X-Actor header names who is acting and is recorded on every audit
  entry. Requests without it act as "system".

ERROR HANDLING:
  Errors are returned as JSON with an HTTP status derived from the core
  error taxonomy (see statusFor):
  - 400: Validation errors, malformed body
  - 402: Payment declined by the gateway
  - 404: Booking, payment or policy not found
  - 409: Invalid transition, capacity unavailable, hold expired, duplicate
  - 503: Concurrency conflict that outlived the retry budget
  - 500: Invariant violation and anything unexpected

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/lodging-engine/booking"
	"github.com/warp/lodging-engine/cancellation"
	"github.com/warp/lodging-engine/core"
	"github.com/warp/lodging-engine/factory"
)

const HeaderActor = "X-Actor"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine        *booking.Engine
	Policies      *cancellation.Catalog
	PolicyFactory *factory.PolicyFactory
	Scheduler     *SweepScheduler

	log      *slog.Logger
	validate *validator.Validate

	scenarioMu      sync.Mutex
	currentScenario *ScenarioResultDTO
}

// NewHandler creates a handler over engine. policies must be the catalog
// the engine resolves cancellation policies from.
func NewHandler(engine *booking.Engine, policies *cancellation.Catalog, scheduler *SweepScheduler, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Engine:        engine,
		Policies:      policies,
		PolicyFactory: factory.NewPolicyFactory(),
		Scheduler:     scheduler,
		log:           log,
		validate:      v,
	}
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req booking.CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.Engine.Create(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, r, "Failed to create booking", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(b))
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseBookingFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	bookings, err := h.Engine.ListBookings(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, r, "Failed to list bookings", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTOs(bookings))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Engine.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, "Failed to get booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

func (h *Handler) ModifyBooking(w http.ResponseWriter, r *http.Request) {
	var req booking.ModifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondBooking(w, r, "Failed to modify booking")(h.Engine.Modify(r.Context(), chi.URLParam(r, "id"), req))
}

func (h *Handler) SubmitBooking(w http.ResponseWriter, r *http.Request) {
	h.respondBooking(w, r, "Failed to submit booking")(h.Engine.Submit(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	h.respondBooking(w, r, "Failed to confirm booking")(h.Engine.Confirm(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.respondBooking(w, r, "Failed to check in")(h.Engine.CheckIn(r.Context(), chi.URLParam(r, "id"), req.Rooms))
}

func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req booking.CheckOutRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.respondBooking(w, r, "Failed to check out")(h.Engine.CheckOut(r.Context(), chi.URLParam(r, "id"), req))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.respondBooking(w, r, "Failed to cancel booking")(h.Engine.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason))
}

func (h *Handler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.respondBooking(w, r, "Failed to reject booking")(h.Engine.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason))
}

func (h *Handler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	h.respondBooking(w, r, "Failed to mark no-show")(h.Engine.MarkNoShow(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) PreviewCancellationFee(w http.ResponseWriter, r *http.Request) {
	q, err := h.Engine.PreviewCancellationFee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, "Failed to preview cancellation fee", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine.AuditTrail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, "Failed to load audit trail", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:        e.ID,
			Action:    string(e.Action),
			Actor:     e.Actor,
			Timestamp: e.Timestamp,
			Metadata:  e.Metadata,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// respondBooking writes the result of a lifecycle call.
func (h *Handler) respondBooking(w http.ResponseWriter, r *http.Request, message string) func(core.Booking, error) {
	return func(b core.Booking, err error) {
		if err != nil {
			h.writeEngineError(w, r, message, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingDTO(b))
	}
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Engine.Payments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, "Failed to list payments", err)
		return
	}
	dtos := make([]PaymentLineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = PaymentLineDTO{
			PaymentDTO:      toPaymentDTO(l.Payment),
			RefundedTotal:   l.RefundedTotal,
			EffectiveStatus: string(l.EffectiveStatus),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordPayment answers 201 for an approved charge and 402 with the
// recorded FAILED entry when the gateway declines.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req booking.PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Engine.RecordPayment(r.Context(), chi.URLParam(r, "id"), req)
	if errors.Is(err, core.ErrPaymentDeclined) && p.ID != "" {
		writeJSON(w, http.StatusPaymentRequired, toPaymentDTO(p))
		return
	}
	if err != nil {
		h.writeEngineError(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(p))
}

func (h *Handler) IssueRefund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Engine.IssueRefund(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "paymentID"), req.Amount, req.Reason)
	if errors.Is(err, core.ErrPaymentDeclined) && p.ID != "" {
		writeJSON(w, http.StatusPaymentRequired, toPaymentDTO(p))
		return
	}
	if err != nil {
		h.writeEngineError(w, r, "Failed to issue refund", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(p))
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	b, err := h.Engine.GetBooking(ctx, id)
	if err != nil {
		h.writeEngineError(w, r, "Failed to get booking", err)
		return
	}
	outstanding, err := h.Engine.OutstandingBalance(ctx, id)
	if err != nil {
		h.writeEngineError(w, r, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{BookingID: id, Currency: b.Currency, Outstanding: outstanding})
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	stay, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	days, err := h.Engine.Availability(r.Context(), chi.URLParam(r, "roomTypeID"), stay)
	if err != nil {
		h.writeEngineError(w, r, "Failed to load availability", err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryDTOs(days))
}

func (h *Handler) SetCapacity(w http.ResponseWriter, r *http.Request) {
	var req CapacityRequest
	if !h.decode(w, r, &req) {
		return
	}
	days, err := h.Engine.SetCapacityRange(r.Context(), chi.URLParam(r, "roomTypeID"),
		core.DateRange{Start: req.From, End: req.To}, req.Total)
	if err != nil {
		h.writeEngineError(w, r, "Failed to set capacity", err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryDTOs(days))
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := h.Policies.List()
	dtos := make([]factory.PolicyJSON, len(policies))
	for i, p := range policies {
		dtos[i] = h.PolicyFactory.ToJSON(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Policy id is required", nil)
		return
	}
	p, err := h.Policies.Get(id)
	if err != nil {
		h.writeEngineError(w, r, "Failed to get policy", err)
		return
	}
	writeJSON(w, http.StatusOK, h.PolicyFactory.ToJSON(p))
}

// CreatePolicy adds or replaces a policy. Bookings already holding the id
// pick up the new tiers on their next fee computation.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var pj factory.PolicyJSON
	if !h.decode(w, r, &pj) {
		return
	}
	p, err := h.PolicyFactory.FromJSON(pj)
	if err != nil {
		h.writeEngineError(w, r, "Invalid policy", err)
		return
	}
	if err := h.Policies.Put(p); err != nil {
		h.writeEngineError(w, r, "Failed to save policy", err)
		return
	}
	h.log.Info("cancellation policy saved", "component", "http", "policy_id", p.ID, "actor", booking.ActorFrom(r.Context()))
	writeJSON(w, http.StatusCreated, h.PolicyFactory.ToJSON(p))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Sweep scheduler not configured", nil)
		return
	}
	res, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		h.writeEngineError(w, r, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps the core error taxonomy onto HTTP. Server-side
// failures are logged; client errors are not.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(message,
			"component", "http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrCapacityUnavailable),
		errors.Is(err, core.ErrHoldExpired),
		errors.Is(err, core.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, core.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a required JSON body. Booking request types are validated
// by the engine; API-owned DTOs are validated here.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return h.check(w, dst)
}

// decodeOptional accepts an empty body as the zero value.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return h.check(w, dst)
	}
	return h.decode(w, r, dst)
}

func (h *Handler) check(w http.ResponseWriter, dst any) bool {
	switch dst.(type) {
	case *ReasonRequest, *CheckInRequest, *RefundRequest, *CapacityRequest:
	default:
		return true
	}
	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		writeError(w, http.StatusBadRequest, "Invalid request body",
			core.Invalid(fe.Field(), "failed %s", strings.TrimSuffix(fe.Tag()+"="+fe.Param(), "=")))
		return false
	}
	writeError(w, http.StatusBadRequest, "Invalid request body", err)
	return false
}

func parseBookingFilter(r *http.Request) (core.BookingFilter, error) {
	q := r.URL.Query()
	f := core.BookingFilter{
		PropertyID: q.Get("property_id"),
		RoomTypeID: q.Get("room_type_id"),
		GuestID:    q.Get("guest_id"),
	}
	if s := q.Get("source"); s != "" {
		src, err := core.ParseSource(s)
		if err != nil {
			return f, err
		}
		f.Source = src
	}
	if s := q.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			st := core.BookingStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !st.Valid() {
				return f, core.Invalid("status", "unknown status %q", part)
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if q.Get("from") != "" || q.Get("to") != "" {
		rng, err := parseRange(q.Get("from"), q.Get("to"))
		if err != nil {
			return f, err
		}
		f.StayOverlaps = &rng
	}
	var err error
	if f.Limit, err = parseNonNegative(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = parseNonNegative(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func parseRange(from, to string) (core.DateRange, error) {
	start, err := core.ParseDate(from)
	if err != nil {
		return core.DateRange{}, core.Invalid("from", "expected YYYY-MM-DD, got %q", from)
	}
	end, err := core.ParseDate(to)
	if err != nil {
		return core.DateRange{}, core.Invalid("to", "expected YYYY-MM-DD, got %q", to)
	}
	rng := core.DateRange{Start: start, End: end}
	return rng, rng.Validate()
}

func parseNonNegative(s, field string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, core.Invalid(field, "must be a non-negative integer, got %q", s)
	}
	return n, nil
}
