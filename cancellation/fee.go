package cancellation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the outcome of a fee computation.
type Quote struct {
	PolicyID           string          `json:"policy_id"`
	HoursBeforeCheckIn float64         `json:"hours_before_check_in"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	Fee                decimal.Decimal `json:"fee"`
	Refund             decimal.Decimal `json:"refund"`
	TiersApplied       []string        `json:"tiers_applied"`
	NoShow             bool            `json:"no_show,omitempty"`
}

// ComputeFee prices a cancellation made at now for a stay starting at
// checkIn. It never fails: a policy with no matching tier charges nothing.
func ComputeFee(policy Policy, checkIn, now time.Time, amountPaid decimal.Decimal) Quote {
	hours := checkIn.Sub(now).Hours()
	q := Quote{
		PolicyID:           policy.ID,
		HoursBeforeCheckIn: hours,
		TiersApplied:       []string{},
	}

	var tier *Tier
	if hours <= 0 {
		tier = maxPenalty(policy.Tiers, amountPaid)
	} else {
		tier = matching(policy.Tiers, hours)
	}
	if tier == nil {
		return settle(q, amountPaid, decimal.Zero)
	}
	q.TiersApplied = append(q.TiersApplied, tier.Label)
	return settle(q, amountPaid, tier.Fee(amountPaid))
}

// ComputeNoShowFee applies the policy's no-show tier.
func ComputeNoShowFee(policy Policy, amountPaid decimal.Decimal) Quote {
	tier := policy.noShowTier()
	q := Quote{PolicyID: policy.ID, NoShow: true, TiersApplied: []string{tier.Label}}
	return settle(q, amountPaid, tier.Fee(amountPaid))
}

// matching picks the tightest tier whose window contains hours, falling
// back to the catch-all.
func matching(tiers []Tier, hours float64) *Tier {
	var best, catchAll *Tier
	for i := range tiers {
		t := &tiers[i]
		if t.WithinHours == 0 {
			catchAll = t
			continue
		}
		if hours < float64(t.WithinHours) && (best == nil || t.WithinHours < best.WithinHours) {
			best = t
		}
	}
	if best != nil {
		return best
	}
	return catchAll
}

func maxPenalty(tiers []Tier, amountPaid decimal.Decimal) *Tier {
	var best *Tier
	for i := range tiers {
		if best == nil || tiers[i].Fee(amountPaid).GreaterThan(best.Fee(amountPaid)) {
			best = &tiers[i]
		}
	}
	return best
}

// settle caps the fee to [0, amountPaid] and derives the refund so that
// fee + refund == amountPaid exactly.
func settle(q Quote, amountPaid, fee decimal.Decimal) Quote {
	if amountPaid.IsNegative() {
		amountPaid = decimal.Zero
	}
	fee = fee.Round(2)
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	if fee.GreaterThan(amountPaid) {
		fee = amountPaid
	}
	q.AmountPaid = amountPaid
	q.Fee = fee
	q.Refund = amountPaid.Sub(fee)
	return q
}
