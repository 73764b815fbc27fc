package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/core"
	"github.com/warp/lodging-engine/inventory"
	"github.com/warp/lodging-engine/payment"
)

// =============================================================================
// CREATE
// =============================================================================

// Create validates the request, holds inventory on every night and persists
// a HOLD booking with a hold token. A stay that cannot be held on some night
// fails with *core.CapacityError naming the first such night and leaves no
// partial hold.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (core.Booking, error) {
	if err := e.validateCreate(req); err != nil {
		return core.Booking{}, err
	}
	policy, err := e.policies.Get(req.CancellationPolicyID)
	if err != nil {
		return core.Booking{}, err
	}
	total, currency, err := e.price(req)
	if err != nil {
		return core.Booking{}, err
	}
	mode := core.PriceRateCard
	if req.TotalPrice != nil {
		mode = core.PriceExplicit
	}

	alloc := req.allocation()
	var out core.Booking
	err = e.retry.Do(ctx, func() error {
		id := uuid.NewString()
		unlock, err := e.ledger.Lock(ctx, alloc)
		if err != nil {
			return err
		}
		defer unlock()

		return e.store.WithTx(ctx, func(tx core.Tx) error {
			hold, err := e.holds.Place(ctx, tx, inventory.HoldRequest{
				BookingID:  id,
				PropertyID: req.PropertyID,
				Allocation: alloc,
			})
			if err != nil {
				return err
			}
			now := e.clock.Now()
			b := core.Booking{
				ID:                    id,
				Guest:                 req.Guest,
				PropertyID:            req.PropertyID,
				RoomTypeID:            req.RoomTypeID,
				RatePlanID:            req.RatePlanID,
				Stay:                  req.Stay,
				Guests:                req.Guests,
				Rooms:                 req.Rooms,
				TotalPrice:            total,
				PriceMode:             mode,
				Currency:              currency,
				Status:                core.StatusHold,
				Source:                req.Source,
				HoldToken:             hold.Token,
				HoldExpiresAt:         timePtr(hold.ExpiresAt),
				CancellationPolicyID:  policy.ID,
				ExternalReservationID: req.ExternalReservationID,
				Commission:            req.Source.Commission(total),
				GuestNotes:            req.GuestNotes,
				InternalNotes:         req.InternalNotes,
				CancellationFee:       decimal.Zero,
				Version:               1,
				CreatedAt:             now,
				UpdatedAt:             now,
			}
			if err := tx.InsertBooking(ctx, b); err != nil {
				return fmt.Errorf("insert booking: %w", err)
			}
			if _, err := e.audit.Transition(ctx, tx, id, core.AuditCreate, ActorFrom(ctx), "", core.StatusHold, map[string]any{
				"hold_token":  hold.Token,
				"expires_at":  hold.ExpiresAt,
				"total_price": total.String(),
				"price_mode":  string(mode),
				"source":      string(req.Source),
				"stay":        req.Stay.String(),
				"rooms":       req.Rooms,
			}); err != nil {
				return err
			}
			out = b
			return nil
		})
	})
	if err != nil {
		e.logFailure(ctx, "", "create", err)
		return core.Booking{}, err
	}
	e.log.Info("booking held",
		"component", "booking",
		"booking_id", out.ID,
		"room_type_id", out.RoomTypeID,
		"stay", out.Stay.String(),
		"rooms", out.Rooms,
		"source", string(out.Source),
	)
	e.publish(ctx, []Event{e.event(ctx, EventHeld, out, nil)})
	return out, nil
}

func (e *Engine) price(req CreateRequest) (decimal.Decimal, string, error) {
	currency := req.Currency
	if req.TotalPrice != nil {
		if currency == "" && e.rates != nil {
			currency = e.rates.Currency()
		}
		return req.TotalPrice.Round(2), currency, nil
	}
	if e.rates == nil {
		return decimal.Zero, "", core.Invalid("total_price", "is required when no rate card is configured")
	}
	total, err := e.rates.Quote(req.RoomTypeID, req.Stay, req.Rooms)
	if err != nil {
		return decimal.Zero, "", err
	}
	if currency == "" {
		currency = e.rates.Currency()
	}
	return total, currency, nil
}

// =============================================================================
// SUBMIT / CONFIRM
// =============================================================================

// Submit moves a HOLD to PENDING while payment or approval is awaited. The
// hold keeps its original expiry.
func (e *Engine) Submit(ctx context.Context, id string) (core.Booking, error) {
	return e.mutate(ctx, id, ActionSubmit, nil, func(tx core.Tx, b core.Booking) (core.Booking, []Event, error) {
		if _, err := e.holds.Check(ctx, tx, b.HoldToken); err != nil {
			return core.Booking{}, nil, err
		}
		from := b.Status
		b.Status = core.StatusPending
		b, err := e.save(ctx, tx, b)
		if err != nil {
			return core.Booking{}, nil, err
		}
		if _, err := e.audit.Transition(ctx, tx, b.ID, core.AuditSubmit, ActorFrom(ctx), from, b.Status, nil); err != nil {
			return core.Booking{}, nil, err
		}
		return b, []Event{e.event(ctx, EventPending, b, nil)}, nil
	})
}

// Confirm consumes the hold. A hold whose TTL has passed fails with
// *core.HoldExpiredError even if the sweep has not yet released it; the
// caller must create a new booking.
func (e *Engine) Confirm(ctx context.Context, id string) (core.Booking, error) {
	return e.mutate(ctx, id, ActionConfirm, allocationOf, func(tx core.Tx, b core.Booking) (core.Booking, []Event, error) {
		hold, err := e.holds.Consume(ctx, tx, b.HoldToken)
		if err != nil {
			return core.Booking{}, nil, err
		}
		from := b.Status
		b.Status = core.StatusConfirmed
		b.ConfirmedAt = timePtr(e.clock.Now())
		b.HoldExpiresAt = nil
		if b, err = e.save(ctx, tx, b); err != nil {
			return core.Booking{}, nil, err
		}
		if _, err := e.audit.Transition(ctx, tx, b.ID, core.AuditConfirm, ActorFrom(ctx), from, b.Status, map[string]any{
			"hold_token": hold.Token,
		}); err != nil {
			return core.Booking{}, nil, err
		}
		return b, []Event{e.event(ctx, EventConfirmed, b, nil)}, nil
	})
}

func allocationOf(b core.Booking) ([]core.Allocation, error) {
	return []core.Allocation{b.Allocation()}, nil
}

// =============================================================================
// CHECK-IN / CHECK-OUT
// =============================================================================

// CheckIn is allowed only while today, in the property's time zone, is a
// night of the stay.
func (e *Engine) CheckIn(ctx context.Context, id string, roomAssignments []string) (core.Booking, error) {
	return e.mutate(ctx, id, ActionCheckIn, nil, func(tx core.Tx, b core.Booking) (core.Booking, []Event, error) {
		today := e.today()
		if !b.Stay.Contains(today) {
			return core.Booking{}, nil, &core.TransitionError{
				BookingID: b.ID, From: b.Status, Action: string(ActionCheckIn),
				Reason: fmt.Sprintf("today %s is outside the stay %s", today, b.Stay),
			}
		}
		from := b.Status
		b.Status = core.StatusCheckedIn
		b.CheckedInAt = timePtr(e.clock.Now())
		if len(roomAssignments) > 0 {
			b.RoomAssignments = append([]string(nil), roomAssignments...)
		}
		b, err := e.save(ctx, tx, b)
		if err != nil {
			return core.Booking{}, nil, err
		}
		if _, err := e.audit.Transition(ctx, tx, b.ID, core.AuditCheckIn, ActorFrom(ctx), from, b.Status, map[string]any{
			"room_assignments": b.RoomAssignments,
		}); err != nil {
			return core.Booking{}, nil, err
		}
		return b, []Event{e.event(ctx, EventCheckedIn, b, nil)}, nil
	})
}

// CheckOut closes the stay. A FinalCharges override is recorded as an
// ADJUSTMENT entry so that the outstanding balance becomes FinalCharges.
// Nights from today to the departure date are released on early departure.
func (e *Engine) CheckOut(ctx context.Context, id string, req CheckOutRequest) (core.Booking, error) {
	if err := e.validateStruct(req); err != nil {
		return core.Booking{}, err
	}
	if req.FinalCharges != nil && req.FinalCharges.IsNegative() {
		return core.Booking{}, core.Invalid("final_charges", "must not be negative")
	}
	var unused []core.Allocation
	plan := func(b core.Booking) ([]core.Allocation, error) {
		unused = e.unusedNights(b)
		return unused, nil
	}
	return e.mutate(ctx, id, ActionCheckOut, plan, func(tx core.Tx, b core.Booking) (core.Booking, []Event, error) {
		meta := map[string]any{}
		if len(unused) > 0 {
			if err := e.ledger.Release(ctx, tx, unused[0], inventory.FromConfirmed); err != nil {
				return core.Booking{}, nil, err
			}
			meta["released_nights"] = unused[0].Stay.Nights()
		}

		var adjustment *core.Payment
		if req.FinalCharges != nil {
			outstanding, err := e.payments.OutstandingBalance(ctx, tx, b.ID, b.AmountDue())
			if err != nil {
				return core.Booking{}, nil, err
			}
			if diff := outstanding.Sub(*req.FinalCharges); !diff.IsZero() {
				p, err := e.payments.Append(ctx, tx, payment.AppendInput{
					BookingID: b.ID,
					Amount:    diff,
					Currency:  b.Currency,
					Method:    core.MethodAdjustment,
					Reason:    req.Reason,
				})
				if err != nil {
					return core.Booking{}, nil, err
				}
				adjustment = &p
				meta["computed_outstanding"] = outstanding.String()
				meta["final_charges"] = req.FinalCharges.String()
				meta["adjustment"] = diff.String()
			}
		}

		from := b.Status
		b.Status = core.StatusCheckedOut
		b.ClosedAt = timePtr(e.clock.Now())
		b, err := e.save(ctx, tx, b)
		if err != nil {
			return core.Booking{}, nil, err
		}
		if _, err := e.audit.Transition(ctx, tx, b.ID, core.AuditCheckOut, ActorFrom(ctx), from, b.Status, meta); err != nil {
			return core.Booking{}, nil, err
		}
		ev := e.event(ctx, EventCheckedOut, b, meta)
		ev.Payment = adjustment
		return b, []Event{ev}, nil
	})
}

// unusedNights is the part of the stay from today to departure, or nothing
// if the guest leaves on the departure date.
func (e *Engine) unusedNights(b core.Booking) []core.Allocation {
	from := e.today()
	if from.Before(b.Stay.Start) {
		from = b.Stay.Start
	}
	if !from.Before(b.Stay.End) {
		return nil
	}
	return []core.Allocation{{RoomTypeID: b.RoomTypeID, Stay: core.DateRange{Start: from, End: b.Stay.End}, Rooms: b.Rooms}}
}

// =============================================================================
// MODIFY
// =============================================================================

// Modify swaps the booking's allocation for a new one as a single step:
// the old allocation is released and the new one held (and committed for a
// CONFIRMED booking) in one transaction. If the new allocation cannot be
// satisfied nothing changes and *core.CapacityError is returned.
//
// Pricing: req.TotalPrice, when set, becomes the new total and marks the
// booking explicitly priced. Otherwise a rate-card booking whose allocation
// changed is requoted. An explicitly priced booking (a channel's price) is
// never requoted: moving its allocation without a new total_price is a
// validation error.
func (e *Engine) Modify(ctx context.Context, id string, req ModifyRequest) (core.Booking, error) {
	if err := e.validateStruct(req); err != nil {
		return core.Booking{}, err
	}
	if req.Stay != nil {
		if err := req.Stay.ValidateMaxNights(e.maxStay); err != nil {
			return core.Booking{}, err
		}
	}
	if req.TotalPrice != nil && req.TotalPrice.IsNegative() {
		return core.Booking{}, core.Invalid("total_price", "must not be negative")
	}
	plan := func(b core.Booking) ([]core.Allocation, error) {
		if !req.changes(b) {
			return nil, core.Invalid("modify", "request changes nothing")
		}
		return []core.Allocation{b.Allocation(), req.apply(b).Allocation()}, nil
	}
	return e.mutate(ctx, id, ActionModify, plan, func(tx core.Tx, b core.Booking) (core.Booking, []Event, error) {
		prev := b
		if !req.changes(prev) {
			return core.Booking{}, nil, core.Invalid("modify", "request changes nothing")
		}
		next := req.apply(b)
		moved := !next.Allocation().Equal(prev.Allocation())

		total, err := e.requote(req, prev, next, moved)
		if err != nil {
			return core.Booking{}, nil, err
		}
		if moved {
			if next, err = e.reallocate(ctx, tx, prev, next); err != nil {
				return core.Booking{}, nil, err
			}
		}
		next.TotalPrice = total
		next.Commission = next.Source.Commission(total)

		b, err = e.save(ctx, tx, next)
		if err != nil {
			return core.Booking{}, nil, err
		}
		meta := map[string]any{
			"old_stay":         prev.Stay.String(),
			"new_stay":         b.Stay.String(),
			"old_room_type_id": prev.RoomTypeID,
			"new_room_type_id": b.RoomTypeID,
			"old_rooms":        prev.Rooms,
			"new_rooms":        b.Rooms,
			"old_total_price":  prev.TotalPrice.String(),
			"new_total_price":  b.TotalPrice.String(),
			"price_mode":       string(b.PriceMode),
		}
		if _, err := e.audit.Transition(ctx, tx, b.ID, core.AuditModify, ActorFrom(ctx), prev.Status, b.Status, meta); err != nil {
			return core.Booking{}, nil, err
		}
		return b, []Event{e.event(ctx, EventModified, b, meta)}, nil
	})
}

// requote returns next's total. It never falls back to the rate card for an
// explicitly priced booking.
func (e *Engine) requote(req ModifyRequest, prev, next core.Booking, moved bool) (decimal.Decimal, error) {
	switch {
	case req.TotalPrice != nil:
		return req.TotalPrice.Round(2), nil
	case !moved:
		return prev.TotalPrice, nil
	case prev.ExplicitlyPriced():
		return decimal.Zero, core.Invalid("total_price", "is required to change the allocation of a booking priced at %s %s by its channel", prev.TotalPrice, prev.Currency)
	case e.rates == nil:
		return decimal.Zero, core.Invalid("total_price", "is required when no rate card is configured")
	}
	return e.rates.Quote(next.RoomTypeID, next.Stay, next.Rooms)
}

// reallocate releases prev's inventory and takes next's. For a HOLD or
// PENDING booking the hold is replaced by a new one with the same expiry.
func (e *Engine) reallocate(ctx context.Context, tx core.Tx, prev, next core.Booking) (core.Booking, error) {
	if prev.Status == core.StatusConfirmed {
		if err := e.ledger.Release(ctx, tx, prev.Allocation(), inventory.FromConfirmed); err != nil {
			return core.Booking{}, err
		}
		if err := e.ledger.TryHold(ctx, tx, next.Allocation()); err != nil {
			return core.Booking{}, err
		}
		if err := e.ledger.CommitHold(ctx, tx, next.Allocation()); err != nil {
			return core.Booking{}, err
		}
		return next, nil
	}

	old, err := e.holds.Check(ctx, tx, prev.HoldToken)
	if err != nil {
		return core.Booking{}, err
	}
	if _, _, err := e.holds.Release(ctx, tx, old.Token); err != nil {
		return core.Booking{}, err
	}
	hold, err := e.holds.Place(ctx, tx, inventory.HoldRequest{
		BookingID:  prev.ID,
		PropertyID: prev.PropertyID,
		Allocation: next.Allocation(),
		ExpiresAt:  old.ExpiresAt,
	})
	if err != nil {
		return core.Booking{}, err
	}
	next.HoldToken = hold.Token
	next.HoldExpiresAt = timePtr(hold.ExpiresAt)
	return next, nil
}
