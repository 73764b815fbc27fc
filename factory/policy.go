/*
Package factory provides JSON to Go cancellation policy conversion.

PURPOSE:
  Converts JSON policy definitions into cancellation.Policy values. Revenue
  managers edit policies as JSON (admin UI, config file, POST /policies)
  and the factory turns them into validated Go structs.

JSON SCHEMA:
  {
    "id": "moderate",
    "name": "Moderate",
    "tiers": [
      {"label": "within 5 days", "within_days": 5, "fee": "50%"},
      {"within_hours": 24, "fee": "100%"},
      {"fee": "25.00"}
    ],
    "no_show": {"fee": "100%"}
  }

  fee:          "N%" is a percentage of the amount paid, anything else a
                flat amount in the booking currency
  within_hours: the tier applies when cancelling less than this many hours
                before check-in; within_days is accepted as a shorthand
  neither:      a catch-all tier that applies at any distance

USAGE:
  f := factory.NewPolicyFactory()
  policy, err := f.ParsePolicy(jsonString)
  catalog.Put(policy)

SEE ALSO:
  - cancellation/policy.go: Policy and Tier
  - cancellation/presets.go: Built-in policies
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/cancellation"
	"github.com/warp/lodging-engine/core"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a policy.
type PolicyJSON struct {
	ID     string     `json:"id"`
	Name   string     `json:"name,omitempty"`
	Tiers  []TierJSON `json:"tiers"`
	NoShow *TierJSON  `json:"no_show,omitempty"`
}

// TierJSON represents one fee tier.
type TierJSON struct {
	Label       string `json:"label,omitempty"`
	WithinHours int    `json:"within_hours,omitempty"`
	WithinDays  int    `json:"within_days,omitempty"`
	Fee         string `json:"fee"` // "50%" or "25.00"
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to Go structs.
type PolicyFactory struct{}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON object into a validated Policy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (cancellation.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return cancellation.Policy{}, core.Invalid("policy", "failed to parse policy JSON: %v", err)
	}
	return f.FromJSON(pj)
}

// ParsePolicies parses a JSON array of policies. Ids must be unique.
func (f *PolicyFactory) ParsePolicies(data []byte) ([]cancellation.Policy, error) {
	var list []PolicyJSON
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, core.Invalid("policies", "failed to parse policies JSON: %v", err)
	}
	seen := make(map[string]bool, len(list))
	out := make([]cancellation.Policy, 0, len(list))
	for _, pj := range list {
		if seen[pj.ID] {
			return nil, core.Invalid("id", "policy %s is defined twice", pj.ID)
		}
		seen[pj.ID] = true
		p, err := f.FromJSON(pj)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", pj.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadFile reads a JSON array of policies from path.
func (f *PolicyFactory) LoadFile(path string) ([]cancellation.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policies file: %w", err)
	}
	return f.ParsePolicies(data)
}

// FromJSON converts PolicyJSON to a validated cancellation.Policy.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (cancellation.Policy, error) {
	policy := cancellation.Policy{
		ID:   pj.ID,
		Name: pj.Name,
	}
	if policy.Name == "" {
		policy.Name = pj.ID
	}
	for _, tj := range pj.Tiers {
		t, err := parseTier(tj)
		if err != nil {
			return cancellation.Policy{}, err
		}
		policy.Tiers = append(policy.Tiers, t)
	}
	if pj.NoShow != nil {
		t, err := parseTier(*pj.NoShow)
		if err != nil {
			return cancellation.Policy{}, fmt.Errorf("no-show tier: %w", err)
		}
		if t.Label == "any time" {
			t.Label = "no-show"
		}
		policy.NoShow = &t
	}
	if err := policy.Validate(); err != nil {
		return cancellation.Policy{}, err
	}
	return policy, nil
}

// ToJSON converts a Policy back to its JSON form. Fees are written in the
// "N%" / flat notation ParsePolicy accepts.
func (f *PolicyFactory) ToJSON(policy cancellation.Policy) PolicyJSON {
	pj := PolicyJSON{
		ID:    policy.ID,
		Name:  policy.Name,
		Tiers: make([]TierJSON, 0, len(policy.Tiers)),
	}
	for _, t := range policy.Tiers {
		pj.Tiers = append(pj.Tiers, tierToJSON(t))
	}
	if policy.NoShow != nil {
		tj := tierToJSON(*policy.NoShow)
		pj.NoShow = &tj
	}
	return pj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseTier(tj TierJSON) (cancellation.Tier, error) {
	if tj.WithinHours != 0 && tj.WithinDays != 0 {
		return cancellation.Tier{}, core.Invalid("within_hours", "set within_hours or within_days, not both")
	}
	hours := tj.WithinHours
	if tj.WithinDays != 0 {
		hours = tj.WithinDays * 24
	}
	kind, value, err := parseFee(tj.Fee)
	if err != nil {
		return cancellation.Tier{}, err
	}
	t := cancellation.Tier{
		Label:       tj.Label,
		WithinHours: hours,
		Kind:        kind,
		Value:       value,
	}
	if t.Label == "" {
		t.Label = defaultLabel(hours)
	}
	return t, nil
}

func parseFee(s string) (cancellation.FeeKind, decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", decimal.Zero, core.Invalid("fee", "is required")
	}
	kind := cancellation.FeeFlat
	if strings.HasSuffix(s, "%") {
		kind = cancellation.FeePercent
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return "", decimal.Zero, core.Invalid("fee", "invalid fee %q", s)
	}
	return kind, v, nil
}

func defaultLabel(hours int) string {
	switch {
	case hours == 0:
		return "any time"
	case hours >= 48 && hours%24 == 0:
		return fmt.Sprintf("within %d days", hours/24)
	default:
		return fmt.Sprintf("within %dh", hours)
	}
}

func tierToJSON(t cancellation.Tier) TierJSON {
	fee := t.Value.String()
	if t.Kind == cancellation.FeePercent {
		fee += "%"
	}
	return TierJSON{Label: t.Label, WithinHours: t.WithinHours, Fee: fee}
}
