package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lodging-engine/core"
	"github.com/warp/lodging-engine/core/store"
	"github.com/warp/lodging-engine/payment"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newLedger() (*payment.Ledger, *store.Memory, *core.ManualClock) {
	clock := core.NewManualClock(time.Date(2025, time.November, 1, 9, 0, 0, 0, time.UTC))
	return payment.NewLedger(clock), store.NewMemory(), clock
}

func charge(t *testing.T, l *payment.Ledger, s core.PaymentStore, amount string) core.Payment {
	t.Helper()
	p, err := l.Append(context.Background(), s, payment.AppendInput{
		BookingID: "b1",
		Amount:    dec(amount),
		Currency:  "EUR",
		Method:    core.MethodCard,
	})
	require.NoError(t, err)
	return p
}

func TestOutstandingBalance_DecreasesByCompletedAmount(t *testing.T) {
	// GIVEN a 2000 booking with no payments
	l, s, clock := newLedger()
	ctx := context.Background()
	due := dec("2000")

	first, err := l.OutstandingBalance(ctx, s, "b1", due)
	require.NoError(t, err)
	again, err := l.OutstandingBalance(ctx, s, "b1", due)
	require.NoError(t, err)
	assert.True(t, first.Equal(again), "idempotent without intervening payments")
	assert.True(t, first.Equal(due))

	// WHEN a completed payment of 600 lands
	clock.Advance(time.Minute)
	charge(t, l, s, "600")

	// THEN the balance drops by exactly 600
	after, err := l.OutstandingBalance(ctx, s, "b1", due)
	require.NoError(t, err)
	assert.True(t, after.Equal(dec("1400")), "got %s", after)

	// AND a failed attempt changes nothing
	_, err = l.Append(ctx, s, payment.AppendInput{BookingID: "b1", Amount: dec("100"), Method: core.MethodCard, Status: core.PaymentFailed})
	require.NoError(t, err)
	failed, err := l.OutstandingBalance(ctx, s, "b1", due)
	require.NoError(t, err)
	assert.True(t, failed.Equal(dec("1400")))
}

func TestIssueRefund_RejectsOverRefund(t *testing.T) {
	l, s, _ := newLedger()
	ctx := context.Background()
	c := charge(t, l, s, "500")

	_, err := l.IssueRefund(ctx, s, c.ID, dec("300"), "partial")
	require.NoError(t, err)

	_, err = l.IssueRefund(ctx, s, c.ID, dec("250"), "too much")
	assert.True(t, errors.Is(err, core.ErrValidation))

	refund, err := l.IssueRefund(ctx, s, c.ID, dec("200"), "rest")
	require.NoError(t, err)
	assert.True(t, refund.Amount.Equal(dec("-200")))
	assert.Equal(t, c.ID, refund.RefundOf)

	all, err := s.ListPayments(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, payment.Remaining(c, all).IsZero())
	assert.True(t, payment.Outstanding(dec("500"), all).Equal(dec("500")), "fully refunded: everything is owed again")
}

func TestIssueRefund_OnlyCompletedCharges(t *testing.T) {
	l, s, _ := newLedger()
	ctx := context.Background()
	c := charge(t, l, s, "100")
	r, err := l.IssueRefund(ctx, s, c.ID, dec("10"), "")
	require.NoError(t, err)

	_, err = l.IssueRefund(ctx, s, r.ID, dec("1"), "refund of a refund")
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = l.IssueRefund(ctx, s, "missing", dec("1"), "")
	assert.True(t, core.IsNotFound(err))

	_, err = l.IssueRefund(ctx, s, c.ID, dec("0"), "")
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestStatement_DerivesRefundedStatus(t *testing.T) {
	// GIVEN two charges, one fully and one partially refunded
	l, s, clock := newLedger()
	ctx := context.Background()
	full := charge(t, l, s, "100")
	clock.Advance(time.Minute)
	partial := charge(t, l, s, "50")
	clock.Advance(time.Minute)
	_, err := l.IssueRefund(ctx, s, full.ID, dec("100"), "")
	require.NoError(t, err)
	_, err = l.IssueRefund(ctx, s, partial.ID, dec("20"), "")
	require.NoError(t, err)

	// WHEN building the statement
	all, err := s.ListPayments(ctx, "b1")
	require.NoError(t, err)
	lines := payment.Statement(all)

	// THEN the stored rows stay COMPLETED and the statement derives REFUNDED
	require.Len(t, lines, 4)
	assert.Equal(t, core.PaymentRefunded, lines[0].EffectiveStatus)
	assert.Equal(t, core.PaymentCompleted, lines[0].Payment.Status)
	assert.Equal(t, core.PaymentCompleted, lines[1].EffectiveStatus)
	assert.True(t, lines[1].RefundedTotal.Equal(dec("20")))
}

func TestRefundAcross_NewestChargeFirst(t *testing.T) {
	l, s, clock := newLedger()
	ctx := context.Background()
	older := charge(t, l, s, "300")
	clock.Advance(time.Minute)
	newer := charge(t, l, s, "200")

	refunds, err := l.RefundAcross(ctx, s, "b1", dec("250"), "cancelled")
	require.NoError(t, err)
	require.Len(t, refunds, 2)
	assert.Equal(t, newer.ID, refunds[0].RefundOf)
	assert.True(t, refunds[0].Amount.Equal(dec("-200")))
	assert.Equal(t, older.ID, refunds[1].RefundOf)
	assert.True(t, refunds[1].Amount.Equal(dec("-50")))

	_, err = l.RefundAcross(ctx, s, "b1", dec("251"), "too much")
	assert.True(t, errors.Is(err, core.ErrValidation))
	all, err := s.ListPayments(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, all, 4, "a failed spread appends nothing")
}

func TestAppend_Validation(t *testing.T) {
	l, s, _ := newLedger()
	ctx := context.Background()

	cases := []payment.AppendInput{
		{Amount: dec("1"), Method: core.MethodCard},
		{BookingID: "b1", Amount: decimal.Zero, Method: core.MethodCard},
		{BookingID: "b1", Amount: dec("1"), Method: "BARTER"},
		{BookingID: "b1", Amount: dec("1"), Method: core.MethodCard, Status: core.PaymentRefunded},
		{BookingID: "b1", Amount: dec("-1"), Method: core.MethodCard},
	}
	for i, in := range cases {
		_, err := l.Append(ctx, s, in)
		assert.True(t, errors.Is(err, core.ErrValidation), "case %d: %v", i, err)
	}

	adj, err := l.Append(ctx, s, payment.AppendInput{BookingID: "b1", Amount: dec("-15"), Method: core.MethodAdjustment, Reason: "minibar"})
	require.NoError(t, err)
	assert.True(t, adj.Amount.Equal(dec("-15")))
}

func TestManualGateway(t *testing.T) {
	g := payment.NewManualGateway()
	ctx := context.Background()

	res, err := g.Charge(ctx, payment.ChargeRequest{Amount: dec("10")})
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.NotEmpty(t, res.ExternalTxnID)

	g.Decline(1)
	res, err = g.Charge(ctx, payment.ChargeRequest{Amount: dec("10")})
	require.NoError(t, err)
	assert.False(t, res.Approved)

	res, err = g.Refund(ctx, payment.RefundRequest{Amount: dec("10")})
	require.NoError(t, err)
	assert.True(t, res.Approved)
}

func TestAdjustments_AreNeverRefundable(t *testing.T) {
	// GIVEN a 100 card charge and a newer +40 check-out adjustment
	l, s, clock := newLedger()
	ctx := context.Background()
	card := charge(t, l, s, "100")
	clock.Advance(time.Minute)
	adj, err := l.Append(ctx, s, payment.AppendInput{BookingID: "b1", Amount: dec("40"), Currency: "EUR", Method: core.MethodAdjustment})
	require.NoError(t, err)
	assert.False(t, adj.IsCharge())

	// WHEN refunding the adjustment directly
	_, err = l.IssueRefund(ctx, s, adj.ID, dec("40"), "")

	// THEN it is refused
	assert.True(t, errors.Is(err, core.ErrValidation))
	assert.True(t, payment.Remaining(adj, nil).IsZero())

	// AND a spread refund only draws on real money
	_, err = l.RefundAcross(ctx, s, "b1", dec("120"), "cancelled")
	assert.True(t, errors.Is(err, core.ErrValidation))
	refunds, err := l.RefundAcross(ctx, s, "b1", dec("100"), "cancelled")
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, card.ID, refunds[0].RefundOf)

	all, err := s.ListPayments(ctx, "b1")
	require.NoError(t, err)
	lines := payment.Statement(all)
	require.Len(t, lines, 3)
	assert.Equal(t, core.PaymentRefunded, lines[0].EffectiveStatus)
	assert.Equal(t, core.PaymentCompleted, lines[1].EffectiveStatus)
	assert.True(t, lines[1].RefundedTotal.IsZero())
}
