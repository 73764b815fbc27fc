/*
Package payment records money movements against bookings.

PURPOSE:
  An append-only ledger of signed entries per booking. Charges are
  positive, refunds negative. A COMPLETED entry is never edited: a refund
  is a new negative entry that references the charge it offsets.

KEY CONCEPTS:
  - Outstanding balance: amount due minus the sum of COMPLETED entries.
    Always recomputed from the full list of entries, never cached.
  - Remaining refundable: a charge's amount minus the refunds already
    issued against it. A refund may never exceed it.
  - Effective status: a charge shows as REFUNDED once fully offset. The
    status is derived in Statement; the stored row keeps COMPLETED.
  - Adjustments: check-out write-downs and write-ups (method ADJUSTMENT)
    count toward the balance but are not charges. Nothing can be refunded
    against them.

SEE ALSO:
  - gateway.go: External money movement
  - booking/payments.go: Engine operations built on this ledger
*/
package payment

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/core"
)

type Ledger struct {
	clock core.Clock
}

func NewLedger(clock core.Clock) *Ledger {
	if clock == nil {
		clock = core.NewSystemClock()
	}
	return &Ledger{clock: clock}
}

// AppendInput describes a new entry. Status defaults to COMPLETED.
type AppendInput struct {
	BookingID     string
	Amount        decimal.Decimal
	Currency      string
	Method        core.PaymentMethod
	Status        core.PaymentStatus
	ExternalTxnID string
	RefundOf      string
	Reason        string
}

// Append validates and stores a new entry.
func (l *Ledger) Append(ctx context.Context, s core.PaymentStore, in AppendInput) (core.Payment, error) {
	if in.Status == "" {
		in.Status = core.PaymentCompleted
	}
	switch {
	case in.BookingID == "":
		return core.Payment{}, core.Invalid("booking_id", "is required")
	case in.Amount.IsZero():
		return core.Payment{}, core.Invalid("amount", "must not be zero")
	case !in.Method.Valid():
		return core.Payment{}, core.Invalid("method", "unknown payment method %q", in.Method)
	case !in.Status.Valid():
		return core.Payment{}, core.Invalid("status", "unknown payment status %q", in.Status)
	case in.Status == core.PaymentRefunded:
		return core.Payment{}, core.Invalid("status", "REFUNDED is derived from refund entries and cannot be appended")
	case in.Amount.IsNegative() && in.RefundOf == "" && in.Method != core.MethodAdjustment:
		return core.Payment{}, core.Invalid("amount", "negative entries must reference the payment they refund")
	}

	p := core.Payment{
		ID:            uuid.NewString(),
		BookingID:     in.BookingID,
		Amount:        in.Amount.Round(2),
		Currency:      in.Currency,
		Method:        in.Method,
		Status:        in.Status,
		ExternalTxnID: in.ExternalTxnID,
		RefundOf:      in.RefundOf,
		Reason:        in.Reason,
		CreatedAt:     l.clock.Now(),
	}
	if err := s.AppendPayment(ctx, p); err != nil {
		return core.Payment{}, fmt.Errorf("append payment: %w", err)
	}
	return p, nil
}

// IssueRefund appends a COMPLETED refund against paymentID. The amount must
// be positive and no larger than what is still unrefunded on that charge.
func (l *Ledger) IssueRefund(ctx context.Context, s core.PaymentStore, paymentID string, amount decimal.Decimal, reason string) (core.Payment, error) {
	return l.refund(ctx, s, paymentID, amount, reason, "")
}

// IssueRefundWithTxn is IssueRefund with the gateway's transaction id.
func (l *Ledger) IssueRefundWithTxn(ctx context.Context, s core.PaymentStore, paymentID string, amount decimal.Decimal, reason, externalTxnID string) (core.Payment, error) {
	return l.refund(ctx, s, paymentID, amount, reason, externalTxnID)
}

func (l *Ledger) refund(ctx context.Context, s core.PaymentStore, paymentID string, amount decimal.Decimal, reason, externalTxnID string) (core.Payment, error) {
	if !amount.IsPositive() {
		return core.Payment{}, core.Invalid("amount", "refund must be positive, got %s", amount)
	}
	charge, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return core.Payment{}, err
	}
	if err := Refundable(charge); err != nil {
		return core.Payment{}, err
	}
	all, err := s.ListPayments(ctx, charge.BookingID)
	if err != nil {
		return core.Payment{}, fmt.Errorf("list payments: %w", err)
	}
	if remaining := Remaining(charge, all); amount.GreaterThan(remaining) {
		return core.Payment{}, core.Invalid("amount", "refund %s exceeds the %s still refundable on payment %s", amount, remaining, paymentID)
	}
	return l.Append(ctx, s, AppendInput{
		BookingID:     charge.BookingID,
		Amount:        amount.Neg(),
		Currency:      charge.Currency,
		Method:        charge.Method,
		ExternalTxnID: externalTxnID,
		RefundOf:      charge.ID,
		Reason:        reason,
	})
}

// RefundAcross refunds amount for a booking, drawing on its charges newest
// first. It fails without appending anything if the charges cannot cover
// the amount.
func (l *Ledger) RefundAcross(ctx context.Context, s core.PaymentStore, bookingID string, amount decimal.Decimal, reason string) ([]core.Payment, error) {
	if !amount.IsPositive() {
		return nil, nil
	}
	all, err := s.ListPayments(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	type draw struct {
		charge core.Payment
		amount decimal.Decimal
	}
	var plan []draw
	left := amount
	for i := len(all) - 1; i >= 0 && left.IsPositive(); i-- {
		p := all[i]
		if !p.IsCharge() || p.Status != core.PaymentCompleted {
			continue
		}
		take := decimal.Min(Remaining(p, all), left)
		if take.IsPositive() {
			plan = append(plan, draw{charge: p, amount: take})
			left = left.Sub(take)
		}
	}
	if left.IsPositive() {
		return nil, core.Invalid("amount", "refund %s exceeds refundable charges on booking %s by %s", amount, bookingID, left)
	}

	out := make([]core.Payment, 0, len(plan))
	for _, d := range plan {
		p, err := l.Append(ctx, s, AppendInput{
			BookingID: bookingID,
			Amount:    d.amount.Neg(),
			Currency:  d.charge.Currency,
			Method:    d.charge.Method,
			RefundOf:  d.charge.ID,
			Reason:    reason,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// OutstandingBalance loads the booking's entries and computes what is
// still owed against due.
func (l *Ledger) OutstandingBalance(ctx context.Context, s core.PaymentStore, bookingID string, due decimal.Decimal) (decimal.Decimal, error) {
	all, err := s.ListPayments(ctx, bookingID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list payments: %w", err)
	}
	return Outstanding(due, all), nil
}

// =============================================================================
// DERIVATIONS - Pure functions over a booking's entries
// =============================================================================

// AmountPaid is the net of COMPLETED entries: charges minus refunds.
func AmountPaid(payments []core.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Status == core.PaymentCompleted {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// Outstanding is due - Σ(completed charges) + Σ|completed refunds|.
func Outstanding(due decimal.Decimal, payments []core.Payment) decimal.Decimal {
	return due.Sub(AmountPaid(payments))
}

// RefundedTotal is the positive sum of COMPLETED refunds against charge.
func RefundedTotal(charge core.Payment, payments []core.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.RefundOf == charge.ID && p.Status == core.PaymentCompleted {
			total = total.Add(p.Amount.Neg())
		}
	}
	return total
}

// Refundable rejects entries a refund may not reference: adjustments,
// refunds and anything not COMPLETED.
func Refundable(charge core.Payment) error {
	if charge.IsAdjustment() {
		return core.Invalid("payment_id", "payment %s is a balance adjustment, not money received", charge.ID)
	}
	if !charge.IsCharge() || charge.Status != core.PaymentCompleted {
		return core.Invalid("payment_id", "payment %s is not a completed charge", charge.ID)
	}
	return nil
}

// Remaining is how much of charge can still be refunded. Adjustments have
// nothing refundable.
func Remaining(charge core.Payment, payments []core.Payment) decimal.Decimal {
	if !charge.IsCharge() || charge.Status != core.PaymentCompleted {
		return decimal.Zero
	}
	return charge.Amount.Sub(RefundedTotal(charge, payments))
}

// Line is one entry of a Statement.
type Line struct {
	Payment         core.Payment       `json:"payment"`
	RefundedTotal   decimal.Decimal    `json:"refunded_total"`
	EffectiveStatus core.PaymentStatus `json:"effective_status"`
}

// Statement annotates every entry, newest last, with its refunded total and
// effective status.
func Statement(payments []core.Payment) []Line {
	sorted := append([]core.Payment(nil), payments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	out := make([]Line, 0, len(sorted))
	for _, p := range sorted {
		line := Line{Payment: p, RefundedTotal: decimal.Zero, EffectiveStatus: p.Status}
		if p.IsCharge() && p.Status == core.PaymentCompleted {
			line.RefundedTotal = RefundedTotal(p, payments)
			if line.RefundedTotal.GreaterThanOrEqual(p.Amount) {
				line.EffectiveStatus = core.PaymentRefunded
			}
		}
		out = append(out, line)
	}
	return out
}
