package booking

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/cancellation"
	"github.com/warp/lodging-engine/core"
	"github.com/warp/lodging-engine/inventory"
	"github.com/warp/lodging-engine/payment"
)

// ReasonHoldExpired is the cancellation reason recorded by the hold sweep.
const ReasonHoldExpired = "HOLD_EXPIRED"

// =============================================================================
// CANCEL / REJECT / NO-SHOW
// =============================================================================

// PreviewCancellationFee quotes what Cancel would charge right now. It is
// advisory: Cancel recomputes against the policy and clock at commit time.
func (e *Engine) PreviewCancellationFee(ctx context.Context, id string) (cancellation.Quote, error) {
	b, err := e.store.GetBooking(ctx, id)
	if err != nil {
		return cancellation.Quote{}, err
	}
	if err := checkTransition(b, ActionCancel); err != nil {
		return cancellation.Quote{}, err
	}
	policy, err := e.policies.Get(b.CancellationPolicyID)
	if err != nil {
		return cancellation.Quote{}, err
	}
	payments, err := e.store.ListPayments(ctx, id)
	if err != nil {
		return cancellation.Quote{}, fmt.Errorf("list payments: %w", err)
	}
	return cancellation.ComputeFee(policy, e.checkInInstant(b), e.clock.Now(), payment.AmountPaid(payments)), nil
}

// Cancel releases the booking's inventory, keeps the policy fee and refunds
// the rest of what was paid. The fee breakdown is recorded in the audit
// entry.
func (e *Engine) Cancel(ctx context.Context, id, reason string) (core.Booking, error) {
	return e.closeBooking(ctx, id, ActionCancel, reason, func(b core.Booking, policy cancellation.Policy, paid decimal.Decimal) (cancellation.Quote, error) {
		return cancellation.ComputeFee(policy, e.checkInInstant(b), e.clock.Now(), paid), nil
	})
}

// Reject is the property declining the booking. Nothing is retained.
func (e *Engine) Reject(ctx context.Context, id, reason string) (core.Booking, error) {
	return e.closeBooking(ctx, id, ActionReject, reason, func(b core.Booking, policy cancellation.Policy, paid decimal.Decimal) (cancellation.Quote, error) {
		if paid.IsNegative() {
			paid = decimal.Zero
		}
		return cancellation.Quote{
			PolicyID:     policy.ID,
			AmountPaid:   paid,
			Fee:          decimal.Zero,
			Refund:       paid,
			TiersApplied: []string{},
		}, nil
	})
}

// MarkNoShow closes a CONFIRMED booking whose check-in date has fully
// elapsed without a check-in, applying the policy's no-show forfeiture.
func (e *Engine) MarkNoShow(ctx context.Context, id string) (core.Booking, error) {
	return e.closeBooking(ctx, id, ActionNoShow, "NO_SHOW", func(b core.Booking, policy cancellation.Policy, paid decimal.Decimal) (cancellation.Quote, error) {
		if today := e.today(); !today.After(b.Stay.Start) {
			return cancellation.Quote{}, &core.TransitionError{
				BookingID: b.ID, From: b.Status, Action: string(ActionNoShow),
				Reason: fmt.Sprintf("check-in date %s has not elapsed", b.Stay.Start),
			}
		}
		return cancellation.ComputeNoShowFee(policy, paid), nil
	})
}

type quoteFunc func(b core.Booking, policy cancellation.Policy, paid decimal.Decimal) (cancellation.Quote, error)

// closeBooking is shared by Cancel, Reject and MarkNoShow: quote, release, refund,
// transition, audit.
func (e *Engine) closeBooking(ctx context.Context, id string, action Action, reason string, quote quoteFunc) (core.Booking, error) {
	return e.mutate(ctx, id, action, allocationOf, func(tx core.Tx, b core.Booking) (core.Booking, []Event, error) {
		policy, err := e.policies.Get(b.CancellationPolicyID)
		if err != nil {
			return core.Booking{}, nil, err
		}
		payments, err := tx.ListPayments(ctx, b.ID)
		if err != nil {
			return core.Booking{}, nil, fmt.Errorf("list payments: %w", err)
		}
		q, err := quote(b, policy, payment.AmountPaid(payments))
		if err != nil {
			return core.Booking{}, nil, err
		}

		if err := e.releaseInventory(ctx, tx, b); err != nil {
			return core.Booking{}, nil, err
		}
		refunds, err := e.payments.RefundAcross(ctx, tx, b.ID, q.Refund, string(action))
		if err != nil {
			return core.Booking{}, nil, err
		}

		from := b.Status
		b.Status = closedStatus(action)
		b.CancellationReason = reason
		b.CancellationFee = q.Fee
		b.HoldExpiresAt = nil
		b.ClosedAt = timePtr(e.clock.Now())
		if b, err = e.save(ctx, tx, b); err != nil {
			return core.Booking{}, nil, err
		}

		meta := map[string]any{
			"policy_id":     q.PolicyID,
			"amount_paid":   q.AmountPaid.String(),
			"fee":           q.Fee.String(),
			"refund":        q.Refund.String(),
			"tiers_applied": q.TiersApplied,
		}
		if reason != "" {
			meta["reason"] = reason
		}
		if action == ActionCancel {
			meta["hours_before_check_in"] = q.HoursBeforeCheckIn
		}
		if _, err := e.audit.Transition(ctx, tx, b.ID, auditAction(action), ActorFrom(ctx), from, b.Status, meta); err != nil {
			return core.Booking{}, nil, err
		}

		events := []Event{e.event(ctx, closedEvent(action), b, meta)}
		for i := range refunds {
			ev := e.event(ctx, EventRefund, b, nil)
			ev.Payment = &refunds[i]
			events = append(events, ev)
		}
		return b, events, nil
	})
}

// releaseInventory gives back whatever the booking still occupies: the
// confirmed allocation, or the hold if it is still ACTIVE.
func (e *Engine) releaseInventory(ctx context.Context, tx core.Tx, b core.Booking) error {
	if b.Status == core.StatusConfirmed {
		return e.ledger.Release(ctx, tx, b.Allocation(), inventory.FromConfirmed)
	}
	if b.HoldToken == "" {
		return nil
	}
	_, _, err := e.holds.Release(ctx, tx, b.HoldToken)
	return err
}

func closedStatus(a Action) core.BookingStatus {
	switch a {
	case ActionCancel:
		return core.StatusCancelled
	case ActionReject:
		return core.StatusRejected
	case ActionNoShow:
		return core.StatusNoShow
	}
	panic("not a closing action: " + string(a))
}

func closedEvent(a Action) EventType {
	switch a {
	case ActionCancel:
		return EventCancelled
	case ActionReject:
		return EventRejected
	case ActionNoShow:
		return EventNoShow
	}
	panic("not a closing action: " + string(a))
}

// =============================================================================
// HOLD EXPIRY
// =============================================================================

// ExpireHold releases an expired hold and, if its booking is still in HOLD,
// cancels the booking with reason HOLD_EXPIRED. It reports false without
// changing anything when the hold was consumed, released or already
// expired, or is not yet due. It implements inventory.ExpiryHandler.
func (e *Engine) ExpireHold(ctx context.Context, hold core.HoldRecord) (bool, error) {
	var expired bool
	var events []Event
	err := e.retry.Do(ctx, func() error {
		expired, events = false, nil
		plan := func() ([]core.Allocation, error) {
			return []core.Allocation{hold.Allocation()}, nil
		}
		return e.withLocks(ctx, hold.BookingID, plan, func(tx core.Tx) error {
			rec, ok, err := e.holds.Expire(ctx, tx, hold.Token)
			if err != nil || !ok {
				return err
			}
			b, err := tx.GetBooking(ctx, rec.BookingID)
			if err != nil {
				return err
			}

			from := b.Status
			if b.Status == core.StatusHold && b.HoldToken == rec.Token {
				b.Status = core.StatusCancelled
				b.CancellationReason = ReasonHoldExpired
				b.CancellationFee = decimal.Zero
				b.HoldExpiresAt = nil
				b.ClosedAt = timePtr(e.clock.Now())
				if b, err = e.save(ctx, tx, b); err != nil {
					return err
				}
			}
			meta := map[string]any{
				"hold_token": rec.Token,
				"expires_at": rec.ExpiresAt,
				"reason":     ReasonHoldExpired,
			}
			if _, err := e.audit.Transition(ctx, tx, b.ID, core.AuditHoldExpired, core.SystemActor, from, b.Status, meta); err != nil {
				return err
			}
			expired = true
			events = []Event{e.event(ctx, EventHoldExpired, b, meta)}
			return nil
		})
	})
	if err != nil {
		e.logFailure(ctx, hold.BookingID, "expire_hold", err)
		return false, err
	}
	e.publish(ctx, events)
	return expired, nil
}

var _ inventory.ExpiryHandler = (*Engine)(nil)
