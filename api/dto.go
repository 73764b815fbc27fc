/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model (core.Booking carries no JSON tags) from the external
  API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

  Request bodies for create, modify, check-out and payments reuse the
  booking package request types directly; they already carry JSON and
  validation tags.

SEE ALSO:
  - handlers.go: Uses these types
  - booking/requests.go: CreateRequest, ModifyRequest, CheckOutRequest, PaymentRequest
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/core"
)

// =============================================================================
// RESPONSES
// =============================================================================

type BookingDTO struct {
	ID                    string          `json:"id"`
	Status                string          `json:"status"`
	Source                string          `json:"source"`
	Guest                 core.Guest      `json:"guest"`
	PropertyID            string          `json:"property_id"`
	RoomTypeID            string          `json:"room_type_id"`
	RatePlanID            string          `json:"rate_plan_id,omitempty"`
	Stay                  core.DateRange  `json:"stay"`
	Nights                int             `json:"nights"`
	Guests                int             `json:"guests"`
	Rooms                 int             `json:"rooms"`
	TotalPrice            decimal.Decimal `json:"total_price"`
	PriceMode             string          `json:"price_mode,omitempty"`
	Currency              string          `json:"currency"`
	HoldToken             string          `json:"hold_token,omitempty"`
	HoldExpiresAt         *time.Time      `json:"hold_expires_at,omitempty"`
	CancellationPolicyID  string          `json:"cancellation_policy_id,omitempty"`
	ExternalReservationID string          `json:"external_reservation_id,omitempty"`
	Commission            decimal.Decimal `json:"commission"`
	GuestNotes            string          `json:"guest_notes,omitempty"`
	InternalNotes         string          `json:"internal_notes,omitempty"`
	RoomAssignments       []string        `json:"room_assignments,omitempty"`
	CancellationReason    string          `json:"cancellation_reason,omitempty"`
	CancellationFee       decimal.Decimal `json:"cancellation_fee"`
	Version               int             `json:"version"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	ConfirmedAt           *time.Time      `json:"confirmed_at,omitempty"`
	CheckedInAt           *time.Time      `json:"checked_in_at,omitempty"`
	ClosedAt              *time.Time      `json:"closed_at,omitempty"`
}

func toBookingDTO(b core.Booking) BookingDTO {
	return BookingDTO{
		ID:                    b.ID,
		Status:                string(b.Status),
		Source:                string(b.Source),
		Guest:                 b.Guest,
		PropertyID:            b.PropertyID,
		RoomTypeID:            b.RoomTypeID,
		RatePlanID:            b.RatePlanID,
		Stay:                  b.Stay,
		Nights:                b.Stay.Nights(),
		Guests:                b.Guests,
		Rooms:                 b.Rooms,
		TotalPrice:            b.TotalPrice,
		PriceMode:             string(b.PriceMode),
		Currency:              b.Currency,
		HoldToken:             b.HoldToken,
		HoldExpiresAt:         b.HoldExpiresAt,
		CancellationPolicyID:  b.CancellationPolicyID,
		ExternalReservationID: b.ExternalReservationID,
		Commission:            b.Commission,
		GuestNotes:            b.GuestNotes,
		InternalNotes:         b.InternalNotes,
		RoomAssignments:       b.RoomAssignments,
		CancellationReason:    b.CancellationReason,
		CancellationFee:       b.CancellationFee,
		Version:               b.Version,
		CreatedAt:             b.CreatedAt,
		UpdatedAt:             b.UpdatedAt,
		ConfirmedAt:           b.ConfirmedAt,
		CheckedInAt:           b.CheckedInAt,
		ClosedAt:              b.ClosedAt,
	}
}

func toBookingDTOs(bookings []core.Booking) []BookingDTO {
	out := make([]BookingDTO, len(bookings))
	for i, b := range bookings {
		out[i] = toBookingDTO(b)
	}
	return out
}

type PaymentDTO struct {
	ID            string          `json:"id"`
	BookingID     string          `json:"booking_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	ExternalTxnID string          `json:"external_txn_id,omitempty"`
	RefundOf      string          `json:"refund_of,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toPaymentDTO(p core.Payment) PaymentDTO {
	return PaymentDTO{
		ID:            p.ID,
		BookingID:     p.BookingID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        string(p.Method),
		Status:        string(p.Status),
		ExternalTxnID: p.ExternalTxnID,
		RefundOf:      p.RefundOf,
		Reason:        p.Reason,
		CreatedAt:     p.CreatedAt,
	}
}

// PaymentLineDTO is one statement row: the stored entry plus what has
// been refunded against it.
type PaymentLineDTO struct {
	PaymentDTO
	RefundedTotal   decimal.Decimal `json:"refunded_total"`
	EffectiveStatus string          `json:"effective_status"`
}

type BalanceDTO struct {
	BookingID   string          `json:"booking_id"`
	Currency    string          `json:"currency"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type AuditEntryDTO struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type InventoryDayDTO struct {
	RoomTypeID    string    `json:"room_type_id"`
	Date          core.Date `json:"date"`
	TotalCapacity int       `json:"total_capacity"`
	Holds         int       `json:"holds"`
	Confirmed     int       `json:"confirmed"`
	FreeToSell    int       `json:"free_to_sell"`
}

func toInventoryDTOs(days []core.InventoryDay) []InventoryDayDTO {
	out := make([]InventoryDayDTO, len(days))
	for i, d := range days {
		out[i] = InventoryDayDTO{
			RoomTypeID:    d.RoomTypeID,
			Date:          d.Date,
			TotalCapacity: d.TotalCapacity,
			Holds:         d.Holds,
			Confirmed:     d.Confirmed,
			FreeToSell:    d.FreeToSell(),
		}
	}
	return out
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// ScenarioResultDTO is what a scenario load created.
type ScenarioResultDTO struct {
	ScenarioID string       `json:"scenario_id"`
	PropertyID string       `json:"property_id"`
	RoomTypeID string       `json:"room_type_id"`
	Bookings   []BookingDTO `json:"bookings"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// REQUESTS
// =============================================================================

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type ReasonRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type CheckInRequest struct {
	Rooms []string `json:"rooms,omitempty" validate:"dive,required,max=20"`
}

type RefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

// CapacityRequest sets the sellable rooms for every night in [from, to).
type CapacityRequest struct {
	From  core.Date `json:"from"`
	To    core.Date `json:"to"`
	Total int       `json:"total" validate:"min=0,max=10000"`
}
