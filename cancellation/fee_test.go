package cancellation_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lodging-engine/cancellation"
	"github.com/warp/lodging-engine/core"
)

var checkIn = time.Date(2025, time.November, 5, 15, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeFee_ScenarioB(t *testing.T) {
	// GIVEN 2000 paid and a 50% tier within 24h
	policy := cancellation.Policy{
		ID:    "p",
		Tiers: []cancellation.Tier{{Label: "within 24h", WithinHours: 24, Kind: cancellation.FeePercent, Value: dec("50")}},
	}

	// WHEN cancelling 12h before check-in
	q := cancellation.ComputeFee(policy, checkIn, checkIn.Add(-12*time.Hour), dec("2000"))

	// THEN half is kept and half refunded
	assert.True(t, q.Fee.Equal(dec("1000")), "fee=%s", q.Fee)
	assert.True(t, q.Refund.Equal(dec("1000")), "refund=%s", q.Refund)
	assert.Equal(t, []string{"within 24h"}, q.TiersApplied)
	assert.InDelta(t, 12.0, q.HoursBeforeCheckIn, 0.001)
}

func TestComputeFee_TierSelection(t *testing.T) {
	policy := cancellation.Moderate()
	paid := dec("1000")

	tests := []struct {
		name   string
		before time.Duration
		fee    string
		tier   []string
	}{
		{"ten days out is free", 240 * time.Hour, "0", []string{}},
		{"exactly 120h is still free", 120 * time.Hour, "0", []string{}},
		{"three days out", 72 * time.Hour, "500", []string{"within 5 days"}},
		{"tightest tier wins", 10 * time.Hour, "1000", []string{"within 24h"}},
		{"after check-in takes max penalty", -2 * time.Hour, "1000", []string{"within 24h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := cancellation.ComputeFee(policy, checkIn, checkIn.Add(-tt.before), paid)
			assert.True(t, q.Fee.Equal(dec(tt.fee)), "fee=%s", q.Fee)
			assert.Equal(t, tt.tier, q.TiersApplied)
		})
	}
}

func TestComputeFee_CatchAllHasLowestPriority(t *testing.T) {
	policy := cancellation.Strict()

	far := cancellation.ComputeFee(policy, checkIn, checkIn.Add(-30*24*time.Hour), dec("400"))
	near := cancellation.ComputeFee(policy, checkIn, checkIn.Add(-48*time.Hour), dec("400"))

	assert.True(t, far.Fee.Equal(dec("200")))
	assert.Equal(t, []string{"any time"}, far.TiersApplied)
	assert.True(t, near.Fee.Equal(dec("400")))
}

func TestComputeFee_FlatFeeIsCapped(t *testing.T) {
	policy := cancellation.Policy{
		ID:    "flat",
		Tiers: []cancellation.Tier{{Label: "late", WithinHours: 48, Kind: cancellation.FeeFlat, Value: dec("150")}},
	}

	q := cancellation.ComputeFee(policy, checkIn, checkIn.Add(-time.Hour), dec("100"))

	assert.True(t, q.Fee.Equal(dec("100")))
	assert.True(t, q.Refund.IsZero())
}

func TestComputeFee_RefundPlusFeeEqualsPaid(t *testing.T) {
	policies := []cancellation.Policy{
		cancellation.Flexible(), cancellation.Moderate(), cancellation.Strict(), cancellation.NonRefundable(),
		{ID: "flat", Tiers: []cancellation.Tier{{Label: "f", WithinHours: 72, Kind: cancellation.FeeFlat, Value: dec("75.50")}}},
		{ID: "odd", Tiers: []cancellation.Tier{{Label: "o", WithinHours: 0, Kind: cancellation.FeePercent, Value: dec("33.3")}}},
	}
	paidAmounts := []string{"0", "0.01", "99.99", "333.33", "2000"}

	for _, p := range policies {
		for _, paid := range paidAmounts {
			for h := -48; h <= 24*10; h += 7 {
				q := cancellation.ComputeFee(p, checkIn, checkIn.Add(-time.Duration(h)*time.Hour), dec(paid))
				assert.True(t, q.Fee.Add(q.Refund).Equal(dec(paid)), "%s paid=%s h=%d", p.ID, paid, h)
				assert.False(t, q.Fee.IsNegative())
				assert.True(t, q.Fee.LessThanOrEqual(dec(paid)))
			}
		}
	}
}

func TestComputeNoShowFee(t *testing.T) {
	withTier := cancellation.ComputeNoShowFee(cancellation.Policy{
		ID:     "p",
		NoShow: &cancellation.Tier{Label: "no-show", Kind: cancellation.FeePercent, Value: dec("80")},
	}, dec("500"))
	assert.True(t, withTier.Fee.Equal(dec("400")))
	assert.True(t, withTier.Refund.Equal(dec("100")))
	assert.True(t, withTier.NoShow)

	defaulted := cancellation.ComputeNoShowFee(cancellation.Moderate(), dec("500"))
	assert.True(t, defaulted.Fee.Equal(dec("500")), "policies without a no-show tier forfeit everything")
}

func TestPolicy_Validate(t *testing.T) {
	bad := []cancellation.Policy{
		{},
		{ID: "p", Tiers: []cancellation.Tier{{WithinHours: -1, Kind: cancellation.FeeFlat}}},
		{ID: "p", Tiers: []cancellation.Tier{{WithinHours: 1, Kind: cancellation.FeePercent, Value: dec("101")}}},
		{ID: "p", Tiers: []cancellation.Tier{{WithinHours: 1, Kind: "weird"}}},
		{ID: "p", Tiers: []cancellation.Tier{
			{WithinHours: 24, Kind: cancellation.FeeFlat, Value: dec("1")},
			{WithinHours: 24, Kind: cancellation.FeeFlat, Value: dec("2")},
		}},
	}
	for i, p := range bad {
		err := p.Validate()
		require.Error(t, err, "case %d", i)
		assert.True(t, errors.Is(err, core.ErrValidation), "case %d", i)
	}
	assert.NoError(t, cancellation.Strict().Validate())
}

func TestCatalog(t *testing.T) {
	c := cancellation.NewCatalog()

	def, err := c.Get("")
	require.NoError(t, err)
	assert.Equal(t, "flexible", def.ID)

	_, err = c.Get("missing")
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, c.Put(cancellation.Policy{ID: "custom"}))
	require.NoError(t, c.SetDefault("custom"))
	def, err = c.Get("")
	require.NoError(t, err)
	assert.Equal(t, "custom", def.ID)
	assert.Len(t, c.List(), 5)
}
