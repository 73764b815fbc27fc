package cancellation

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/core"
)

// =============================================================================
// COMMON POLICIES
// =============================================================================

func percent(label string, withinHours int, pct int64) Tier {
	return Tier{Label: label, WithinHours: withinHours, Kind: FeePercent, Value: decimal.NewFromInt(pct)}
}

// Flexible is free until 24h before check-in, then half the amount paid.
func Flexible() Policy {
	return Policy{
		ID:     "flexible",
		Name:   "Flexible",
		Tiers:  []Tier{percent("within 24h", 24, 50)},
		NoShow: &Tier{Label: "no-show", Kind: FeePercent, Value: decimal.NewFromInt(100)},
	}
}

// Moderate is free until 5 days out, 50% inside 5 days, 100% inside 24h.
func Moderate() Policy {
	return Policy{
		ID:   "moderate",
		Name: "Moderate",
		Tiers: []Tier{
			percent("within 5 days", 120, 50),
			percent("within 24h", 24, 100),
		},
	}
}

// Strict charges 50% at any time and 100% inside 7 days.
func Strict() Policy {
	return Policy{
		ID:   "strict",
		Name: "Strict",
		Tiers: []Tier{
			percent("any time", 0, 50),
			percent("within 7 days", 168, 100),
		},
	}
}

// NonRefundable forfeits everything paid.
func NonRefundable() Policy {
	return Policy{
		ID:    "non-refundable",
		Name:  "Non-refundable",
		Tiers: []Tier{percent("any time", 0, 100)},
	}
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog resolves policy ids. Bookings without a policy id use the
// default policy.
type Catalog struct {
	mu        sync.RWMutex
	policies  map[string]Policy
	defaultID string
}

// NewCatalog returns a catalog holding the presets, defaulting to Flexible.
func NewCatalog() *Catalog {
	c := &Catalog{policies: make(map[string]Policy), defaultID: "flexible"}
	for _, p := range []Policy{Flexible(), Moderate(), Strict(), NonRefundable()} {
		c.policies[p.ID] = p
	}
	return c
}

// Put adds or replaces a policy after validating it.
func (c *Catalog) Put(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies[p.ID] = p
	return nil
}

// SetDefault chooses the policy used when a booking names none.
func (c *Catalog) SetDefault(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.policies[id]; !ok {
		return core.NotFound("cancellation policy", id)
	}
	c.defaultID = id
	return nil
}

// Get resolves id, or the default policy when id is empty.
func (c *Catalog) Get(id string) (Policy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id == "" {
		id = c.defaultID
	}
	p, ok := c.policies[id]
	if !ok {
		return Policy{}, core.NotFound("cancellation policy", id)
	}
	return p, nil
}

// List returns every policy ordered by id.
func (c *Catalog) List() []Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Policy, 0, len(c.policies))
	for _, p := range c.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
