/*
Package core provides the shared vocabulary of the booking engine.

PURPOSE:
  Domain-level types shared by every component: bookings, inventory days,
  hold records, payments and audit entries, plus the store interfaces,
  error taxonomy, clock and key-lock arena they are built on. Components
  (inventory, payment, audit, booking) import core; core imports none of them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Booking: the aggregate root. Owns at most one ACTIVE hold.
  - InventoryDay: capacity counters for one (room type, date) key.
  - HoldRecord: a time-boxed claim on inventory, identified by a token.
  - Payment: an append-only signed money movement (charge > 0, refund < 0).
  - AuditEntry: an append-only record of who did what to a booking.
  - Source: the closed set of channels a booking can originate from.

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, never float.
  2. One-directional ownership: payments and audit entries carry a
     BookingID back-reference; a Booking never stores their collections.
  3. Versioning: mutable rows (Booking, InventoryDay, HoldRecord) carry a
     Version that stores check on write.

SEE ALSO:
  - date.go: Date and DateRange (half-open stays)
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
*/
package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BOOKING STATUS
// =============================================================================

type BookingStatus string

const (
	StatusHold       BookingStatus = "HOLD"
	StatusPending    BookingStatus = "PENDING"
	StatusConfirmed  BookingStatus = "CONFIRMED"
	StatusCheckedIn  BookingStatus = "CHECKED_IN"
	StatusCheckedOut BookingStatus = "CHECKED_OUT"
	StatusCancelled  BookingStatus = "CANCELLED"
	StatusRejected   BookingStatus = "REJECTED"
	StatusNoShow     BookingStatus = "NO_SHOW"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []BookingStatus{
	StatusHold, StatusPending, StatusConfirmed, StatusCheckedIn,
	StatusCheckedOut, StatusCancelled, StatusRejected, StatusNoShow,
}

func (s BookingStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports statuses that accept no further action.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case StatusCheckedOut, StatusCancelled, StatusRejected, StatusNoShow:
		return true
	}
	return false
}

// HoldsInventory reports whether a booking in this status still occupies
// capacity, either as a hold or as a confirmed allocation.
func (s BookingStatus) HoldsInventory() bool {
	switch s {
	case StatusHold, StatusPending, StatusConfirmed:
		return true
	}
	return false
}

// =============================================================================
// SOURCE - Closed set of booking channels
// =============================================================================

// Source is the channel a booking originated from. The set is closed; every
// switch over Source must handle each value.
type Source string

const (
	SourceDirectWeb  Source = "DIRECT_WEB"
	SourceWalkIn     Source = "WALK_IN"
	SourcePhone      Source = "PHONE"
	SourceCorporate  Source = "CORPORATE"
	SourceBookingCom Source = "OTA_BOOKING_COM"
	SourceExpedia    Source = "OTA_EXPEDIA"
	SourceAgoda      Source = "OTA_AGODA"
	SourceAirbnb     Source = "OTA_AIRBNB"
)

// PriceMode records where a booking's total came from.
type PriceMode string

const (
	// PriceRateCard totals are quoted from the rate card and requoted when
	// the allocation changes.
	PriceRateCard PriceMode = "RATE_CARD"
	// PriceExplicit totals were supplied by the caller, typically the
	// channel's own price. They are never replaced by a rate card quote.
	PriceExplicit PriceMode = "EXPLICIT"
)

// AllSources lists every channel.
var AllSources = []Source{
	SourceDirectWeb, SourceWalkIn, SourcePhone, SourceCorporate,
	SourceBookingCom, SourceExpedia, SourceAgoda, SourceAirbnb,
}

// ParseSource rejects anything outside the closed set.
func ParseSource(s string) (Source, error) {
	src := Source(s)
	if !src.Valid() {
		return "", Invalid("source", "unknown booking source %q", s)
	}
	return src, nil
}

func (s Source) Valid() bool {
	for _, known := range AllSources {
		if s == known {
			return true
		}
	}
	return false
}

// IsOTA reports third-party online travel agency channels.
func (s Source) IsOTA() bool {
	switch s {
	case SourceBookingCom, SourceExpedia, SourceAgoda, SourceAirbnb:
		return true
	case SourceDirectWeb, SourceWalkIn, SourcePhone, SourceCorporate:
		return false
	}
	panic(fmt.Sprintf("unhandled booking source %q", string(s)))
}

// RequiresExternalID reports channels whose bookings must carry the
// channel's own reservation id so the channel manager can reconcile them.
func (s Source) RequiresExternalID() bool {
	return s.IsOTA()
}

// CommissionRate is the fraction of the booking total retained by the
// channel.
func (s Source) CommissionRate() decimal.Decimal {
	switch s {
	case SourceBookingCom:
		return decimal.RequireFromString("0.15")
	case SourceExpedia:
		return decimal.RequireFromString("0.18")
	case SourceAgoda:
		return decimal.RequireFromString("0.15")
	case SourceAirbnb:
		return decimal.RequireFromString("0.03")
	case SourceDirectWeb, SourceWalkIn, SourcePhone, SourceCorporate:
		return decimal.Zero
	}
	panic(fmt.Sprintf("unhandled booking source %q", string(s)))
}

// Commission is the channel's cut of total, rounded to cents.
func (s Source) Commission(total decimal.Decimal) decimal.Decimal {
	return total.Mul(s.CommissionRate()).Round(2)
}

// =============================================================================
// BOOKING - The aggregate root
// =============================================================================

// Guest identifies the person the booking is for.
type Guest struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

type Booking struct {
	ID         string
	Guest      Guest
	PropertyID string
	RoomTypeID string
	RatePlanID string
	Stay       DateRange
	Guests     int
	Rooms      int
	TotalPrice decimal.Decimal
	PriceMode  PriceMode
	Currency   string
	Status     BookingStatus
	Source     Source

	HoldToken     string
	HoldExpiresAt *time.Time

	CancellationPolicyID  string
	ExternalReservationID string
	Commission            decimal.Decimal

	InternalNotes   string
	GuestNotes      string
	RoomAssignments []string

	CancellationReason string
	CancellationFee    decimal.Decimal

	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	CheckedInAt *time.Time
	ClosedAt    *time.Time // checked out, cancelled, rejected or no-show
}

// ExplicitlyPriced reports a total that did not come from the rate card.
func (b Booking) ExplicitlyPriced() bool { return b.PriceMode == PriceExplicit }

// Allocation is the inventory the booking occupies.
func (b Booking) Allocation() Allocation {
	return Allocation{RoomTypeID: b.RoomTypeID, Stay: b.Stay, Rooms: b.Rooms}
}

// AmountDue is what the guest owes before payments: the total price for a
// live booking, the retained fee once the booking was cancelled, rejected
// or marked no-show.
func (b Booking) AmountDue() decimal.Decimal {
	switch b.Status {
	case StatusCancelled, StatusRejected, StatusNoShow:
		return b.CancellationFee
	}
	return b.TotalPrice
}

// BookingFilter narrows ListBookings. Zero values match everything.
type BookingFilter struct {
	PropertyID string
	RoomTypeID string
	GuestID    string
	Statuses   []BookingStatus
	Source     Source
	// StayOverlaps matches bookings sharing at least one night with the range.
	StayOverlaps *DateRange
	Limit        int
	Offset       int
}

// Matches applies every filter field except paging.
func (f BookingFilter) Matches(b Booking) bool {
	if f.PropertyID != "" && b.PropertyID != f.PropertyID {
		return false
	}
	if f.RoomTypeID != "" && b.RoomTypeID != f.RoomTypeID {
		return false
	}
	if f.GuestID != "" && b.Guest.ID != f.GuestID {
		return false
	}
	if f.Source != "" && b.Source != f.Source {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if b.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.StayOverlaps != nil && !b.Stay.Overlaps(*f.StayOverlaps) {
		return false
	}
	return true
}

// =============================================================================
// INVENTORY
// =============================================================================

// Allocation is a request for rooms of one type across a stay.
type Allocation struct {
	RoomTypeID string
	Stay       DateRange
	Rooms      int
}

func (a Allocation) Validate() error {
	if a.RoomTypeID == "" {
		return Invalid("room_type_id", "is required")
	}
	if a.Rooms < 1 {
		return Invalid("rooms", "must be at least 1, got %d", a.Rooms)
	}
	return a.Stay.Validate()
}

func (a Allocation) Equal(other Allocation) bool {
	return a.RoomTypeID == other.RoomTypeID && a.Stay == other.Stay && a.Rooms == other.Rooms
}

// InventoryDay holds the counters for one (room type, date) key.
// FreeToSell = TotalCapacity - Holds - Confirmed, and is never negative.
type InventoryDay struct {
	RoomTypeID    string
	Date          Date
	TotalCapacity int
	Holds         int
	Confirmed     int
	Version       int
}

func (d InventoryDay) FreeToSell() int {
	return d.TotalCapacity - d.Holds - d.Confirmed
}

// =============================================================================
// HOLDS
// =============================================================================

type HoldStatus string

const (
	HoldActive   HoldStatus = "ACTIVE"
	HoldExpired  HoldStatus = "EXPIRED"
	HoldReleased HoldStatus = "RELEASED"
	HoldConsumed HoldStatus = "CONSUMED"
)

// HoldRecord tracks a time-boxed hold over the inventory ledger.
type HoldRecord struct {
	Token      string
	BookingID  string
	PropertyID string
	RoomTypeID string
	Stay       DateRange
	Rooms      int
	Status     HoldStatus
	ExpiresAt  time.Time
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (h HoldRecord) Allocation() Allocation {
	return Allocation{RoomTypeID: h.RoomTypeID, Stay: h.Stay, Rooms: h.Rooms}
}

// ExpiredAt reports whether the TTL has passed at now. A hold whose
// ExpiresAt equals now is expired.
func (h HoldRecord) ExpiredAt(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded, PaymentCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "CARD"
	MethodCash         PaymentMethod = "CASH"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodWallet       PaymentMethod = "WALLET"
	MethodChannel      PaymentMethod = "CHANNEL_COLLECT" // collected by the OTA
	MethodAdjustment   PaymentMethod = "ADJUSTMENT"      // staff override at check-out
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodCash, MethodBankTransfer, MethodWallet, MethodChannel, MethodAdjustment:
		return true
	}
	return false
}

// Payment is an append-only ledger entry. Positive amounts are charges,
// negative amounts are refunds. A refund references the charge it offsets
// through RefundOf.
type Payment struct {
	ID            string
	BookingID     string
	Amount        decimal.Decimal
	Currency      string
	Method        PaymentMethod
	Status        PaymentStatus
	ExternalTxnID string
	RefundOf      string
	Reason        string
	CreatedAt     time.Time
}

// IsCharge reports money actually taken from the guest. ADJUSTMENT entries
// move the balance without moving money and are never refundable.
func (p Payment) IsCharge() bool {
	return p.Amount.IsPositive() && p.Method != MethodAdjustment
}

func (p Payment) IsRefund() bool {
	return p.Amount.IsNegative() && p.Method != MethodAdjustment
}

func (p Payment) IsAdjustment() bool { return p.Method == MethodAdjustment }

// =============================================================================
// AUDIT
// =============================================================================

type AuditAction string

const (
	AuditCreate      AuditAction = "CREATE"
	AuditSubmit      AuditAction = "SUBMIT"
	AuditConfirm     AuditAction = "CONFIRM"
	AuditCheckIn     AuditAction = "CHECK_IN"
	AuditCheckOut    AuditAction = "CHECK_OUT"
	AuditModify      AuditAction = "MODIFY"
	AuditCancel      AuditAction = "CANCEL"
	AuditReject      AuditAction = "REJECT"
	AuditNoShow      AuditAction = "NO_SHOW"
	AuditHoldExpired AuditAction = "HOLD_EXPIRED"
	AuditPayment     AuditAction = "PAYMENT"
	AuditRefund      AuditAction = "REFUND"
)

// AuditEntry records who did what to a booking, and when.
type AuditEntry struct {
	ID        string
	BookingID string
	Action    AuditAction
	Actor     string
	Timestamp time.Time
	Metadata  map[string]any
}

// SystemActor is recorded for actions taken by background processes.
const SystemActor = "system"
