package booking

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/core"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CreateRequest asks for a new HOLD booking. TotalPrice is set by channels
// that sell at their own price; otherwise the rate card prices the stay.
type CreateRequest struct {
	Guest                 core.Guest       `json:"guest"`
	PropertyID            string           `json:"property_id" validate:"required"`
	RoomTypeID            string           `json:"room_type_id" validate:"required"`
	RatePlanID            string           `json:"rate_plan_id,omitempty"`
	Stay                  core.DateRange   `json:"stay"`
	Guests                int              `json:"guests" validate:"min=1,max=20"`
	Rooms                 int              `json:"rooms" validate:"min=1,max=50"`
	Source                core.Source      `json:"source" validate:"required,booking_source"`
	ExternalReservationID string           `json:"external_reservation_id,omitempty" validate:"max=100"`
	CancellationPolicyID  string           `json:"cancellation_policy_id,omitempty"`
	TotalPrice            *decimal.Decimal `json:"total_price,omitempty"`
	Currency              string           `json:"currency,omitempty" validate:"omitempty,len=3"`
	GuestNotes            string           `json:"guest_notes,omitempty" validate:"max=2000"`
	InternalNotes         string           `json:"internal_notes,omitempty" validate:"max=2000"`
}

func (r CreateRequest) allocation() core.Allocation {
	return core.Allocation{RoomTypeID: r.RoomTypeID, Stay: r.Stay, Rooms: r.Rooms}
}

// ModifyRequest changes the allocation. Zero values keep the current one.
// TotalPrice replaces the total outright; it is required when moving a
// booking that was not priced from the rate card.
type ModifyRequest struct {
	Stay       *core.DateRange  `json:"stay,omitempty"`
	RoomTypeID string           `json:"room_type_id,omitempty"`
	Rooms      int              `json:"rooms,omitempty" validate:"min=0,max=50"`
	Guests     int              `json:"guests,omitempty" validate:"min=0,max=20"`
	TotalPrice *decimal.Decimal `json:"total_price,omitempty"`
}

func (r ModifyRequest) changes(b core.Booking) bool {
	next := r.apply(b)
	return !next.Allocation().Equal(b.Allocation()) ||
		next.Guests != b.Guests ||
		next.PriceMode != b.PriceMode ||
		!next.TotalPrice.Equal(b.TotalPrice)
}

func (r ModifyRequest) apply(b core.Booking) core.Booking {
	if r.Stay != nil {
		b.Stay = *r.Stay
	}
	if r.RoomTypeID != "" {
		b.RoomTypeID = r.RoomTypeID
	}
	if r.Rooms > 0 {
		b.Rooms = r.Rooms
	}
	if r.Guests > 0 {
		b.Guests = r.Guests
	}
	if r.TotalPrice != nil {
		b.TotalPrice = r.TotalPrice.Round(2)
		b.PriceMode = core.PriceExplicit
	}
	return b
}

// CheckOutRequest optionally overrides the computed outstanding balance.
// The difference is recorded as an ADJUSTMENT entry.
type CheckOutRequest struct {
	FinalCharges *decimal.Decimal `json:"final_charges,omitempty"`
	Reason       string           `json:"reason,omitempty" validate:"max=500"`
}

// PaymentRequest charges the guest through the gateway.
type PaymentRequest struct {
	Amount   decimal.Decimal    `json:"amount"`
	Method   core.PaymentMethod `json:"method" validate:"required"`
	Currency string             `json:"currency,omitempty" validate:"omitempty,len=3"`
	Token    string             `json:"token,omitempty"`
}

// =============================================================================
// VALIDATION
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("booking_source", func(fl validator.FieldLevel) bool {
		return core.Source(fl.Field().String()).Valid()
	}); err != nil {
		panic(err)
	}
	return v
}

// validateStruct runs tag validation and returns the first failure as a
// *core.ValidationError.
func (e *Engine) validateStruct(s any) error {
	err := e.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "booking_source" {
			return core.Invalid(fe.Field(), "unknown booking source %q", fe.Value())
		}
		if fe.Param() != "" {
			return core.Invalid(fe.Field(), "failed %s=%s", fe.Tag(), fe.Param())
		}
		return core.Invalid(fe.Field(), "failed %s", fe.Tag())
	}
	return core.Invalid("", "%v", err)
}

func (e *Engine) validateCreate(req CreateRequest) error {
	if err := e.validateStruct(req); err != nil {
		return err
	}
	if err := req.Stay.ValidateMaxNights(e.maxStay); err != nil {
		return err
	}
	if req.Source.RequiresExternalID() && req.ExternalReservationID == "" {
		return core.Invalid("external_reservation_id", "is required for %s bookings", req.Source)
	}
	if req.TotalPrice != nil && req.TotalPrice.IsNegative() {
		return core.Invalid("total_price", "must not be negative")
	}
	return nil
}

// =============================================================================
// ACTOR
// =============================================================================

type actorKey struct{}

// WithActor tags ctx with who is acting, for the audit trail.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor set by WithActor, or the system actor.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return core.SystemActor
}
