package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/lodging-engine/booking"
	"github.com/warp/lodging-engine/cancellation"
	"github.com/warp/lodging-engine/core"
	"github.com/warp/lodging-engine/core/store"
	"github.com/warp/lodging-engine/payment"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// t0 is a Saturday morning, several days before the stays under test.
var t0 = time.Date(2025, time.November, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func stay(from, to string) core.DateRange {
	return core.DateRange{Start: core.MustParseDate(from), End: core.MustParseDate(to)}
}

type recorder struct {
	mu     sync.Mutex
	events []booking.Event
}

func (r *recorder) Publish(_ context.Context, ev booking.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []booking.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]booking.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	engine   *booking.Engine
	store    *store.Memory
	clock    *core.ManualClock
	policies *cancellation.Catalog
	gateway  *payment.ManualGateway
	events   *recorder
	ctx      context.Context
}

// newFixture returns an engine over room type R with 5 rooms a night for
// November 2025, priced at 100 a night and 150 on weekends.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemory(),
		clock:    core.NewManualClock(t0),
		policies: cancellation.NewCatalog(),
		gateway:  payment.NewManualGateway(),
		events:   &recorder{},
		ctx:      booking.WithActor(context.Background(), "staff:1"),
	}
	rates := booking.NewRateCard("EUR", decimal.Zero).
		SetBase("R", dec("100")).
		SetWeekend("R", dec("150")).
		SetBase("S", dec("250"))
	f.engine = booking.NewEngine(f.store,
		booking.WithClock(f.clock),
		booking.WithRates(rates),
		booking.WithPolicies(f.policies),
		booking.WithGateway(f.gateway),
		booking.WithNotifier(f.events),
		booking.WithRetry(core.RetryPolicy{Attempts: 3, Backoff: time.Millisecond}),
	)
	f.capacity(t, "R", stay("2025-11-01", "2025-11-30"), 5)
	return f
}

func (f *fixture) capacity(t *testing.T, roomTypeID string, r core.DateRange, total int) {
	t.Helper()
	_, err := f.engine.SetCapacityRange(f.ctx, roomTypeID, r, total)
	require.NoError(t, err)
}

func (f *fixture) request(r core.DateRange) booking.CreateRequest {
	return booking.CreateRequest{
		Guest:      core.Guest{ID: "g1", Name: "Ada Lovelace", Email: "ada@example.com"},
		PropertyID: "P",
		RoomTypeID: "R",
		Stay:       r,
		Guests:     2,
		Rooms:      1,
		Source:     core.SourceDirectWeb,
	}
}

func (f *fixture) create(t *testing.T, r core.DateRange) core.Booking {
	t.Helper()
	b, err := f.engine.Create(f.ctx, f.request(r))
	require.NoError(t, err)
	return b
}

func (f *fixture) confirmed(t *testing.T, r core.DateRange) core.Booking {
	t.Helper()
	b := f.create(t, r)
	b, err := f.engine.Confirm(f.ctx, b.ID)
	require.NoError(t, err)
	return b
}

func (f *fixture) pay(t *testing.T, id string, amount string) core.Payment {
	t.Helper()
	p, err := f.engine.RecordPayment(f.ctx, id, booking.PaymentRequest{Amount: dec(amount), Method: core.MethodCard})
	require.NoError(t, err)
	return p
}

func (f *fixture) day(t *testing.T, roomTypeID, date string) core.InventoryDay {
	t.Helper()
	d := core.MustParseDate(date)
	rows, err := f.engine.Availability(f.ctx, roomTypeID, core.DateRange{Start: d, End: d.AddDays(1)})
	require.NoError(t, err)
	return rows[0]
}

func (f *fixture) status(t *testing.T, id string) core.BookingStatus {
	t.Helper()
	b, err := f.engine.GetBooking(f.ctx, id)
	require.NoError(t, err)
	return b.Status
}

func (f *fixture) trail(t *testing.T, id string) []core.AuditEntry {
	t.Helper()
	entries, err := f.engine.AuditTrail(f.ctx, id)
	require.NoError(t, err)
	return entries
}
