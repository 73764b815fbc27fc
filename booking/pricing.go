package booking

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/core"
)

// Pricer prices an allocation.
type Pricer interface {
	Quote(roomTypeID string, stay core.DateRange, rooms int) (decimal.Decimal, error)
	Currency() string
}

// RateCard prices each night from, in order of precedence: a per-date
// override, the weekend rate on Friday and Saturday nights, the room
// type's base rate, and finally the card-wide fallback.
type RateCard struct {
	mu        sync.RWMutex
	currency  string
	fallback  decimal.Decimal
	base      map[string]decimal.Decimal
	weekend   map[string]decimal.Decimal
	overrides map[string]map[core.Date]decimal.Decimal
}

// NewRateCard returns an empty card. A zero fallback means room types
// without a rate cannot be priced.
func NewRateCard(currency string, fallback decimal.Decimal) *RateCard {
	return &RateCard{
		currency:  currency,
		fallback:  fallback,
		base:      make(map[string]decimal.Decimal),
		weekend:   make(map[string]decimal.Decimal),
		overrides: make(map[string]map[core.Date]decimal.Decimal),
	}
}

func (r *RateCard) Currency() string { return r.currency }

func (r *RateCard) SetBase(roomTypeID string, rate decimal.Decimal) *RateCard {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.base[roomTypeID] = rate
	return r
}

func (r *RateCard) SetWeekend(roomTypeID string, rate decimal.Decimal) *RateCard {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weekend[roomTypeID] = rate
	return r
}

func (r *RateCard) SetOverride(roomTypeID string, date core.Date, rate decimal.Decimal) *RateCard {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overrides[roomTypeID] == nil {
		r.overrides[roomTypeID] = make(map[core.Date]decimal.Decimal)
	}
	r.overrides[roomTypeID][date] = rate
	return r
}

// Nightly is the price of one room on one date.
func (r *RateCard) Nightly(roomTypeID string, date core.Date) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rate, ok := r.overrides[roomTypeID][date]; ok {
		return rate, nil
	}
	if rate, ok := r.weekend[roomTypeID]; ok && date.IsWeekend() {
		return rate, nil
	}
	if rate, ok := r.base[roomTypeID]; ok {
		return rate, nil
	}
	if r.fallback.IsPositive() {
		return r.fallback, nil
	}
	return decimal.Zero, core.Invalid("room_type_id", "no rate configured for room type %s", roomTypeID)
}

// Quote sums every night of the stay for the given number of rooms.
func (r *RateCard) Quote(roomTypeID string, stay core.DateRange, rooms int) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, d := range stay.Dates() {
		rate, err := r.Nightly(roomTypeID, d)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(rate)
	}
	return total.Mul(decimal.NewFromInt(int64(rooms))).Round(2), nil
}
