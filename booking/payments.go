package booking

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/core"
	"github.com/warp/lodging-engine/payment"
)

// =============================================================================
// PAYMENTS - Gateway calls recorded in the ledger
// =============================================================================
//
// The gateway is called while holding the booking lock but outside the
// store transaction. The outcome is then recorded with its audit entry in
// one transaction:
//   approved          -> COMPLETED entry
//   declined          -> FAILED entry, ErrPaymentDeclined returned
//   transport failure -> PENDING entry (outcome unknown), error returned

// RecordPayment charges the guest and records the outcome.
func (e *Engine) RecordPayment(ctx context.Context, id string, req PaymentRequest) (core.Payment, error) {
	if err := e.validateStruct(req); err != nil {
		return core.Payment{}, err
	}
	if !req.Amount.IsPositive() {
		return core.Payment{}, core.Invalid("amount", "must be positive")
	}
	if !req.Method.Valid() || req.Method == core.MethodAdjustment {
		return core.Payment{}, core.Invalid("method", "unsupported payment method %q", req.Method)
	}

	unlock, err := e.bookingLocks.Lock(ctx, e.lockWait, id)
	if err != nil {
		return core.Payment{}, err
	}
	defer unlock()

	b, err := e.store.GetBooking(ctx, id)
	if err != nil {
		return core.Payment{}, err
	}
	if !acceptsPayments(b.Status) {
		return core.Payment{}, &core.TransitionError{BookingID: id, From: b.Status, Action: "record_payment"}
	}
	currency := req.Currency
	if currency == "" {
		currency = b.Currency
	}
	if b.Currency != "" && currency != b.Currency {
		return core.Payment{}, core.Invalid("currency", "booking is priced in %s, got %s", b.Currency, currency)
	}

	res, gwErr := e.gateway.Charge(ctx, payment.ChargeRequest{
		BookingID: id,
		Amount:    req.Amount,
		Currency:  currency,
		Method:    req.Method,
		Token:     req.Token,
	})
	in := payment.AppendInput{
		BookingID:     id,
		Amount:        req.Amount,
		Currency:      currency,
		Method:        req.Method,
		ExternalTxnID: res.ExternalTxnID,
	}
	switch {
	case gwErr != nil:
		in.Status = core.PaymentPending
		in.Reason = gwErr.Error()
	case !res.Approved:
		in.Status = core.PaymentFailed
		in.Reason = res.Message
	default:
		in.Status = core.PaymentCompleted
	}

	p, err := e.recordPayment(ctx, b, in, core.AuditPayment)
	if err != nil {
		return core.Payment{}, err
	}
	switch {
	case gwErr != nil:
		return p, fmt.Errorf("gateway charge: %w", gwErr)
	case !res.Approved:
		return p, fmt.Errorf("%w: %s", core.ErrPaymentDeclined, res.Message)
	}
	ev := e.event(ctx, EventPayment, b, nil)
	ev.Payment = &p
	e.publish(ctx, []Event{ev})
	return p, nil
}

// IssueRefund refunds part or all of one completed charge through the
// gateway. The amount may not exceed what is still unrefunded on that
// charge.
func (e *Engine) IssueRefund(ctx context.Context, bookingID, paymentID string, amount decimal.Decimal, reason string) (core.Payment, error) {
	unlock, err := e.bookingLocks.Lock(ctx, e.lockWait, bookingID)
	if err != nil {
		return core.Payment{}, err
	}
	defer unlock()

	b, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return core.Payment{}, err
	}
	charge, err := e.store.GetPayment(ctx, paymentID)
	if err != nil {
		return core.Payment{}, err
	}
	if charge.BookingID != bookingID {
		return core.Payment{}, core.NotFound("payment", paymentID)
	}
	if err := payment.Refundable(charge); err != nil {
		return core.Payment{}, err
	}
	all, err := e.store.ListPayments(ctx, bookingID)
	if err != nil {
		return core.Payment{}, fmt.Errorf("list payments: %w", err)
	}
	if !amount.IsPositive() {
		return core.Payment{}, core.Invalid("amount", "refund must be positive, got %s", amount)
	}
	if remaining := payment.Remaining(charge, all); amount.GreaterThan(remaining) {
		return core.Payment{}, core.Invalid("amount", "refund %s exceeds the %s still refundable on payment %s", amount, remaining, paymentID)
	}

	res, gwErr := e.gateway.Refund(ctx, payment.RefundRequest{
		BookingID:     bookingID,
		PaymentID:     paymentID,
		ExternalTxnID: charge.ExternalTxnID,
		Amount:        amount,
		Currency:      charge.Currency,
	})
	if gwErr == nil && res.Approved {
		var p core.Payment
		err := e.store.WithTx(ctx, func(tx core.Tx) error {
			var err error
			p, err = e.payments.IssueRefundWithTxn(ctx, tx, paymentID, amount, reason, res.ExternalTxnID)
			if err != nil {
				return err
			}
			return e.auditPayment(ctx, tx, b, p, core.AuditRefund)
		})
		if err != nil {
			return core.Payment{}, err
		}
		ev := e.event(ctx, EventRefund, b, nil)
		ev.Payment = &p
		e.publish(ctx, []Event{ev})
		return p, nil
	}

	in := payment.AppendInput{
		BookingID:     bookingID,
		Amount:        amount.Neg(),
		Currency:      charge.Currency,
		Method:        charge.Method,
		Status:        core.PaymentFailed,
		ExternalTxnID: res.ExternalTxnID,
		RefundOf:      paymentID,
		Reason:        res.Message,
	}
	if gwErr != nil {
		in.Status = core.PaymentPending
		in.Reason = gwErr.Error()
	}
	p, err := e.recordPayment(ctx, b, in, core.AuditRefund)
	if err != nil {
		return core.Payment{}, err
	}
	if gwErr != nil {
		return p, fmt.Errorf("gateway refund: %w", gwErr)
	}
	return p, fmt.Errorf("%w: %s", core.ErrPaymentDeclined, res.Message)
}

func (e *Engine) recordPayment(ctx context.Context, b core.Booking, in payment.AppendInput, action core.AuditAction) (core.Payment, error) {
	var p core.Payment
	err := e.store.WithTx(ctx, func(tx core.Tx) error {
		var err error
		if p, err = e.payments.Append(ctx, tx, in); err != nil {
			return err
		}
		return e.auditPayment(ctx, tx, b, p, action)
	})
	return p, err
}

func (e *Engine) auditPayment(ctx context.Context, tx core.Tx, b core.Booking, p core.Payment, action core.AuditAction) error {
	meta := map[string]any{
		"payment_id": p.ID,
		"amount":     p.Amount.String(),
		"currency":   p.Currency,
		"method":     string(p.Method),
		"status":     string(p.Status),
	}
	if p.ExternalTxnID != "" {
		meta["external_txn_id"] = p.ExternalTxnID
	}
	if p.RefundOf != "" {
		meta["refund_of"] = p.RefundOf
	}
	if p.Reason != "" {
		meta["reason"] = p.Reason
	}
	_, err := e.audit.Record(ctx, tx, b.ID, action, ActorFrom(ctx), meta)
	return err
}

func acceptsPayments(s core.BookingStatus) bool {
	switch s {
	case core.StatusCancelled, core.StatusRejected, core.StatusNoShow:
		return false
	}
	return true
}

// OutstandingBalance is what the guest still owes, recomputed from every
// payment entry.
func (e *Engine) OutstandingBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	b, err := e.store.GetBooking(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return e.payments.OutstandingBalance(ctx, e.store, id, b.AmountDue())
}

// Payments returns the booking's payment statement.
func (e *Engine) Payments(ctx context.Context, id string) ([]payment.Line, error) {
	if _, err := e.store.GetBooking(ctx, id); err != nil {
		return nil, err
	}
	all, err := e.store.ListPayments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payment.Statement(all), nil
}
