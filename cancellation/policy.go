/*
Package cancellation computes cancellation and no-show fees.

PURPOSE:
  Given a policy, the check-in instant, "now" and the amount the guest has
  paid, decide how much the property keeps (fee) and how much goes back
  (refund). Every function here is pure: no store, no clock, no side
  effects. The same call is used for a preview and for the real cancel.

KEY CONCEPTS:
  - Tier: "cancelling less than N hours before check-in costs X".
    X is a percentage of the amount paid or a flat amount.
  - Catch-all tier: WithinHours == 0 applies at any distance, with the
    lowest priority.
  - No-show tier: the forfeiture applied by MarkNoShow. A policy without
    one forfeits everything paid.

TIER SELECTION:
  hours := checkIn - now
  if hours <= 0:  the tier with the highest fee for amountPaid applies
  else:           among tiers with hours < WithinHours, the smallest
                  WithinHours applies; otherwise the catch-all; otherwise
                  no fee

GUARANTEES:
  fee ∈ [0, amountPaid]
  refund + fee == amountPaid

SEE ALSO:
  - fee.go: ComputeFee / ComputeNoShowFee
  - presets.go: Common policies and the Catalog
  - factory/policy.go: JSON policy definitions
*/
package cancellation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/core"
)

// FeeKind selects how a tier's Value is interpreted.
type FeeKind string

const (
	FeePercent FeeKind = "percent" // Value is 0..100 percent of the amount paid
	FeeFlat    FeeKind = "flat"    // Value is an absolute amount
)

// Tier is one row of a cancellation policy.
type Tier struct {
	Label       string          `json:"label"`
	WithinHours int             `json:"within_hours"`
	Kind        FeeKind         `json:"kind"`
	Value       decimal.Decimal `json:"value"`
}

// Fee applies the tier to amountPaid. The result is not capped.
func (t Tier) Fee(amountPaid decimal.Decimal) decimal.Decimal {
	switch t.Kind {
	case FeePercent:
		return amountPaid.Mul(t.Value).Div(decimal.NewFromInt(100))
	case FeeFlat:
		return t.Value
	}
	return decimal.Zero
}

func (t Tier) Validate() error {
	if t.WithinHours < 0 {
		return core.Invalid("within_hours", "must not be negative, got %d", t.WithinHours)
	}
	if t.Value.IsNegative() {
		return core.Invalid("value", "tier %q has a negative fee", t.Label)
	}
	switch t.Kind {
	case FeePercent:
		if t.Value.GreaterThan(decimal.NewFromInt(100)) {
			return core.Invalid("value", "tier %q exceeds 100 percent", t.Label)
		}
	case FeeFlat:
	default:
		return core.Invalid("kind", "tier %q has unknown fee kind %q", t.Label, t.Kind)
	}
	return nil
}

// Policy is an ordered set of tiers plus the no-show rule.
type Policy struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tiers  []Tier `json:"tiers"`
	NoShow *Tier  `json:"no_show,omitempty"`
}

func (p Policy) Validate() error {
	if p.ID == "" {
		return core.Invalid("id", "policy id is required")
	}
	seen := make(map[int]bool, len(p.Tiers))
	for _, t := range p.Tiers {
		if err := t.Validate(); err != nil {
			return err
		}
		if seen[t.WithinHours] {
			return core.Invalid("tiers", "policy %s has two tiers within %dh", p.ID, t.WithinHours)
		}
		seen[t.WithinHours] = true
	}
	if p.NoShow != nil {
		if err := p.NoShow.Validate(); err != nil {
			return fmt.Errorf("no-show tier: %w", err)
		}
	}
	return nil
}

// forfeitAll is the no-show rule of a policy that does not define one.
var forfeitAll = Tier{Label: "no-show", Kind: FeePercent, Value: decimal.NewFromInt(100)}

func (p Policy) noShowTier() Tier {
	if p.NoShow != nil {
		return *p.NoShow
	}
	return forfeitAll
}
