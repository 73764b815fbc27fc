package booking_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lodging-engine/booking"
	"github.com/warp/lodging-engine/cancellation"
	"github.com/warp/lodging-engine/core"
)

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarioA_LastRoomRace(t *testing.T) {
	// GIVEN room type R1 with one free room on 2025-11-05
	f := newFixture(t)
	f.capacity(t, "R1", stay("2025-11-05", "2025-11-06"), 1)
	req := f.request(stay("2025-11-05", "2025-11-06"))
	req.RoomTypeID = "R1"
	req.TotalPrice = ptr(dec("120"))

	// WHEN two creates race for it
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Create(f.ctx, req)
		}(i)
	}
	wg.Wait()

	// THEN exactly one holds it and the other is told capacity is gone
	ok, unavailable := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, core.ErrCapacityUnavailable):
			unavailable++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, unavailable)
	day := f.day(t, "R1", "2025-11-05")
	assert.Equal(t, 0, day.FreeToSell())
	assert.Equal(t, 1, day.Holds)
}

func TestScenarioB_CancelWithinTier(t *testing.T) {
	// GIVEN a confirmed 2000 booking, fully paid, under a 50%-within-24h policy
	f := newFixture(t)
	require.NoError(t, f.policies.Put(cancellation.Policy{
		ID:    "half-24h",
		Tiers: []cancellation.Tier{{Label: "within 24h", WithinHours: 24, Kind: cancellation.FeePercent, Value: dec("50")}},
	}))
	req := f.request(stay("2025-11-05", "2025-11-07"))
	req.TotalPrice = ptr(dec("2000"))
	req.CancellationPolicyID = "half-24h"
	b, err := f.engine.Create(f.ctx, req)
	require.NoError(t, err)
	f.pay(t, b.ID, "2000")
	_, err = f.engine.Confirm(f.ctx, b.ID)
	require.NoError(t, err)

	// WHEN cancelling 12h before the 15:00 check-in
	f.clock.Set(time.Date(2025, time.November, 5, 3, 0, 0, 0, time.UTC))
	preview, err := f.engine.PreviewCancellationFee(f.ctx, b.ID)
	require.NoError(t, err)
	cancelled, err := f.engine.Cancel(f.ctx, b.ID, "change of plans")
	require.NoError(t, err)

	// THEN the fee is 1000 and 1000 is refunded
	assert.True(t, preview.Fee.Equal(dec("1000")))
	assert.True(t, preview.Refund.Equal(dec("1000")))
	assert.Equal(t, core.StatusCancelled, cancelled.Status)
	assert.True(t, cancelled.CancellationFee.Equal(dec("1000")))

	lines, err := f.engine.Payments(f.ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, lines[1].Payment.Amount.Equal(dec("-1000")))

	outstanding, err := f.engine.OutstandingBalance(f.ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, outstanding.IsZero(), "outstanding=%s", outstanding)

	// AND inventory is back and the audit entry carries the breakdown
	assert.Equal(t, 0, f.day(t, "R", "2025-11-05").Confirmed)
	trail := f.trail(t, b.ID)
	last := trail[len(trail)-1]
	assert.Equal(t, core.AuditCancel, last.Action)
	assert.Equal(t, "1000", last.Metadata["fee"])
	assert.Equal(t, "1000", last.Metadata["refund"])
	assert.Equal(t, []string{"within 24h"}, last.Metadata["tiers_applied"])
}

func TestScenarioC_UnconfirmedHoldExpires(t *testing.T) {
	// GIVEN a hold that expires at now+15min
	f := newFixture(t)
	b := f.create(t, stay("2025-11-05", "2025-11-06"))
	require.NotNil(t, b.HoldExpiresAt)
	assert.Equal(t, t0.Add(15*time.Minute), *b.HoldExpiresAt)
	assert.Equal(t, 1, f.day(t, "R", "2025-11-05").Holds)

	// WHEN the sweep runs at now+16min
	f.clock.Advance(16 * time.Minute)
	res, err := f.engine.NewSweeper().Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)

	// THEN inventory is released and the booking is cancelled
	assert.Equal(t, 0, f.day(t, "R", "2025-11-05").Holds)
	got, err := f.engine.GetBooking(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, got.Status)
	assert.Equal(t, booking.ReasonHoldExpired, got.CancellationReason)

	// AND a late confirm is an invalid transition
	_, err = f.engine.Confirm(f.ctx, b.ID)
	assert.True(t, errors.Is(err, core.ErrInvalidTransition))

	trail := f.trail(t, b.ID)
	assert.Equal(t, core.AuditHoldExpired, trail[len(trail)-1].Action)
	assert.Equal(t, core.SystemActor, trail[len(trail)-1].Actor)
}

func TestScenarioD_ModifyWithoutCapacityChangesNothing(t *testing.T) {
	// GIVEN a confirmed booking and a sold-out night on the new dates
	f := newFixture(t)
	b := f.confirmed(t, stay("2025-11-05", "2025-11-07"))
	f.capacity(t, "R", stay("2025-11-10", "2025-11-11"), 0)

	// WHEN moving the stay onto the sold-out night
	newStay := stay("2025-11-09", "2025-11-11")
	_, err := f.engine.Modify(f.ctx, b.ID, booking.ModifyRequest{Stay: &newStay})

	// THEN capacity is unavailable and nothing moved
	var capErr *core.CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, core.MustParseDate("2025-11-10"), capErr.Date)

	got, err := f.engine.GetBooking(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Stay, got.Stay)
	assert.Equal(t, core.StatusConfirmed, got.Status)
	assert.Equal(t, b.Version, got.Version)
	assert.Equal(t, 1, f.day(t, "R", "2025-11-05").Confirmed)
	assert.Equal(t, 1, f.day(t, "R", "2025-11-06").Confirmed)
	assert.Equal(t, 0, f.day(t, "R", "2025-11-09").Confirmed)
	assert.Equal(t, 0, f.day(t, "R", "2025-11-09").Holds)
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_PricesFromRateCard(t *testing.T) {
	f := newFixture(t)

	// Thu, Fri, Sat nights: 100 + 150 + 150, two rooms
	req := f.request(stay("2025-11-06", "2025-11-09"))
	req.Rooms = 2
	b, err := f.engine.Create(f.ctx, req)

	require.NoError(t, err)
	assert.True(t, b.TotalPrice.Equal(dec("800")), "total=%s", b.TotalPrice)
	assert.Equal(t, "EUR", b.Currency)
	assert.Equal(t, core.StatusHold, b.Status)
	assert.Equal(t, "flexible", b.CancellationPolicyID)
	assert.Equal(t, 2, f.day(t, "R", "2025-11-07").Holds)
	assert.Equal(t, []booking.EventType{booking.EventHeld}, f.events.types())

	trail := f.trail(t, b.ID)
	require.Len(t, trail, 1)
	assert.Equal(t, core.AuditCreate, trail[0].Action)
	assert.Equal(t, "staff:1", trail[0].Actor)
}

func TestCreate_OTACommissionAndExternalID(t *testing.T) {
	f := newFixture(t)
	req := f.request(stay("2025-11-05", "2025-11-06"))
	req.Source = core.SourceExpedia
	req.TotalPrice = ptr(dec("200"))

	_, err := f.engine.Create(f.ctx, req)
	assert.True(t, errors.Is(err, core.ErrValidation), "OTA bookings need the channel's reservation id")

	req.ExternalReservationID = "EXP-123"
	b, err := f.engine.Create(f.ctx, req)
	require.NoError(t, err)
	assert.True(t, b.Commission.Equal(dec("36")))
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]func(*booking.CreateRequest){
		"zero guests":      func(r *booking.CreateRequest) { r.Guests = 0 },
		"zero rooms":       func(r *booking.CreateRequest) { r.Rooms = 0 },
		"reversed stay":    func(r *booking.CreateRequest) { r.Stay = stay("2025-11-07", "2025-11-05") },
		"unknown source":   func(r *booking.CreateRequest) { r.Source = "FAX" },
		"missing guest":    func(r *booking.CreateRequest) { r.Guest.Name = "" },
		"bad email":        func(r *booking.CreateRequest) { r.Guest.Email = "nope" },
		"unknown policy":   func(r *booking.CreateRequest) { r.CancellationPolicyID = "missing" },
		"unpriced room":    func(r *booking.CreateRequest) { r.RoomTypeID = "Z" },
		"missing property": func(r *booking.CreateRequest) { r.PropertyID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := f.request(stay("2025-11-05", "2025-11-07"))
			mutate(&req)
			_, err := f.engine.Create(f.ctx, req)
			require.Error(t, err)
			assert.True(t, core.IsClientError(err) || core.IsNotFound(err), "%v", err)
		})
	}
	assert.Equal(t, 0, f.day(t, "R", "2025-11-05").Holds, "rejected requests never touch inventory")
}

func TestCreate_StayLongerThanMaxIsRejected(t *testing.T) {
	f := newFixture(t)

	// WHEN a stay runs to the end of the calendar
	req := f.request(stay("2025-11-05", "9999-12-31"))
	started := time.Now()
	_, err := f.engine.Create(f.ctx, req)

	// THEN it is a validation error, returned before any inventory is locked
	require.Error(t, err)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "%v", err)
	assert.Equal(t, "stay", verr.Field)
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, 0, f.day(t, "R", "2025-11-05").Holds)
	assert.Empty(t, f.events.types())

	// AND one night over the default year is rejected the same way
	start := core.MustParseDate("2025-11-05")
	req.Stay = core.DateRange{Start: start, End: start.AddDays(booking.DefaultMaxStayNights + 1)}
	_, err = f.engine.Create(f.ctx, req)
	assert.True(t, errors.Is(err, core.ErrValidation), "%v", err)

	// AND a full year is accepted by validation and fails on capacity instead
	req.Stay = core.DateRange{Start: start, End: start.AddDays(booking.DefaultMaxStayNights)}
	_, err = f.engine.Create(f.ctx, req)
	var capErr *core.CapacityError
	require.True(t, errors.As(err, &capErr), "%v", err)
	assert.Equal(t, core.MustParseDate("2025-11-30"), capErr.Date)

	// AND availability over an unbounded range is refused too
	_, err = f.engine.Availability(f.ctx, "R", stay("2025-11-01", "9999-12-31"))
	assert.True(t, errors.Is(err, core.ErrValidation), "%v", err)
}

func TestCreate_MaxStayIsConfigurable(t *testing.T) {
	f := newFixture(t)
	engine := booking.NewEngine(f.store,
		booking.WithClock(f.clock),
		booking.WithMaxStayNights(2),
	)

	req := f.request(stay("2025-11-05", "2025-11-08"))
	req.TotalPrice = ptr(dec("300"))
	_, err := engine.Create(f.ctx, req)
	assert.True(t, errors.Is(err, core.ErrValidation), "%v", err)

	req.Stay = stay("2025-11-05", "2025-11-07")
	b, err := engine.Create(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Stay.Nights())
}

// =============================================================================
// CONFIRM / SUBMIT
// =============================================================================

func TestConfirm_AfterTTLBeforeSweep(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, stay("2025-11-05", "2025-11-06"))
	f.clock.Advance(15 * time.Minute)

	_, err := f.engine.Confirm(f.ctx, b.ID)

	assert.True(t, errors.Is(err, core.ErrHoldExpired))
	assert.Equal(t, core.StatusHold, f.status(t, b.ID))
	assert.Equal(t, 1, f.day(t, "R", "2025-11-05").Holds)
}

func TestSubmitThenConfirm(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, stay("2025-11-05", "2025-11-06"))

	pending, err := f.engine.Submit(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, pending.Status)
	assert.Equal(t, b.HoldExpiresAt, pending.HoldExpiresAt)

	confirmed, err := f.engine.Confirm(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusConfirmed, confirmed.Status)
	assert.NotNil(t, confirmed.ConfirmedAt)
	day := f.day(t, "R", "2025-11-05")
	assert.Equal(t, 0, day.Holds)
	assert.Equal(t, 1, day.Confirmed)
	assert.Len(t, f.trail(t, b.ID), 3)
	assert.Equal(t, []booking.EventType{booking.EventHeld, booking.EventPending, booking.EventConfirmed}, f.events.types())
}

func TestSweep_PendingBookingKeepsStatus(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, stay("2025-11-05", "2025-11-06"))
	_, err := f.engine.Submit(f.ctx, b.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.engine.NewSweeper().Sweep(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, core.StatusPending, f.status(t, b.ID))
	assert.Equal(t, 0, f.day(t, "R", "2025-11-05").Holds)
	_, err = f.engine.Confirm(f.ctx, b.ID)
	assert.True(t, errors.Is(err, core.ErrHoldExpired))

	// cancelling afterwards must not release the hold a second time
	_, err = f.engine.Cancel(f.ctx, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 5, f.day(t, "R", "2025-11-05").FreeToSell())
}

func TestConfirm_ConcurrentCallsConfirmOnce(t *testing.T) {
	// GIVEN one held booking
	f := newFixture(t)
	b := f.create(t, stay("2025-11-05", "2025-11-06"))

	// WHEN ten confirms race
	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Confirm(f.ctx, b.ID)
		}(i)
	}
	wg.Wait()

	// THEN exactly one succeeds and the hold is consumed once
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, core.ErrInvalidTransition), "%v", err)
	}
	assert.Equal(t, 1, ok)
	day := f.day(t, "R", "2025-11-05")
	assert.Equal(t, 0, day.Holds)
	assert.Equal(t, 1, day.Confirmed)
	assert.Len(t, f.trail(t, b.ID), 2)
}

func TestConfirm_RacesSweepAfterTTL(t *testing.T) {
	for i := 0; i < 20; i++ {
		// GIVEN a hold whose TTL has just passed
		f := newFixture(t)
		b := f.create(t, stay("2025-11-05", "2025-11-07"))
		f.clock.Advance(15*time.Minute + time.Second)

		// WHEN confirm and the sweep start together
		var (
			wg         sync.WaitGroup
			confirmErr error
			sweepErr   error
			expired    int
		)
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, confirmErr = f.engine.Confirm(f.ctx, b.ID)
		}()
		go func() {
			defer wg.Done()
			<-start
			res, err := f.engine.NewSweeper().Sweep(f.ctx)
			expired, sweepErr = res.Expired, err
		}()
		close(start)
		wg.Wait()

		// THEN the hold settled exactly one way and the counters agree with it
		require.NoError(t, sweepErr)
		hold, err := f.store.GetHold(f.ctx, b.HoldToken)
		require.NoError(t, err)
		require.Contains(t, []core.HoldStatus{core.HoldConsumed, core.HoldExpired}, hold.Status)

		confirmed := 0
		switch hold.Status {
		case core.HoldConsumed:
			require.NoError(t, confirmErr)
			assert.Equal(t, core.StatusConfirmed, f.status(t, b.ID))
			assert.Equal(t, 0, expired)
			confirmed = 1
		case core.HoldExpired:
			assert.True(t, errors.Is(confirmErr, core.ErrHoldExpired) || errors.Is(confirmErr, core.ErrInvalidTransition), "%v", confirmErr)
			assert.Equal(t, core.StatusCancelled, f.status(t, b.ID))
			assert.Equal(t, 1, expired)
		}
		for _, date := range []string{"2025-11-05", "2025-11-06"} {
			day := f.day(t, "R", date)
			assert.Equal(t, 0, day.Holds, date)
			assert.Equal(t, confirmed, day.Confirmed, date)
		}
		assert.Len(t, f.trail(t, b.ID), 2)
	}
}

// =============================================================================
// CHECK-IN / CHECK-OUT
// =============================================================================

func TestCheckIn_OnlyDuringStay(t *testing.T) {
	f := newFixture(t)
	b := f.confirmed(t, stay("2025-11-05", "2025-11-07"))

	_, err := f.engine.CheckIn(f.ctx, b.ID, nil)
	var terr *core.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.NotEmpty(t, terr.Reason)

	f.clock.Set(time.Date(2025, time.November, 5, 16, 0, 0, 0, time.UTC))
	in, err := f.engine.CheckIn(f.ctx, b.ID, []string{"101"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCheckedIn, in.Status)
	assert.Equal(t, []string{"101"}, in.RoomAssignments)
}

func TestCheckOut_FinalChargesAdjustment(t *testing.T) {
	// GIVEN a checked-in 200 booking with 150 paid
	f := newFixture(t)
	b := f.confirmed(t, stay("2025-11-05", "2025-11-07"))
	f.pay(t, b.ID, "150")
	f.clock.Set(time.Date(2025, time.November, 5, 16, 0, 0, 0, time.UTC))
	_, err := f.engine.CheckIn(f.ctx, b.ID, nil)
	require.NoError(t, err)

	// WHEN staff check out on the departure morning with 80 owed instead of 50
	f.clock.Set(time.Date(2025, time.November, 7, 10, 0, 0, 0, time.UTC))
	out, err := f.engine.CheckOut(f.ctx, b.ID, booking.CheckOutRequest{FinalCharges: ptr(dec("80")), Reason: "minibar"})
	require.NoError(t, err)

	// THEN an adjustment of -30 makes the balance 80
	assert.Equal(t, core.StatusCheckedOut, out.Status)
	balance, err := f.engine.OutstandingBalance(f.ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("80")), "balance=%s", balance)
	lines, err := f.engine.Payments(f.ctx, b.ID)
	require.NoError(t, err)
	adj := lines[len(lines)-1].Payment
	assert.Equal(t, core.MethodAdjustment, adj.Method)
	assert.True(t, adj.Amount.Equal(dec("-30")))

	// AND the stay's nights stay sold
	assert.Equal(t, 1, f.day(t, "R", "2025-11-06").Confirmed)
}

func TestCheckOut_EarlyDepartureReleasesRemainingNights(t *testing.T) {
	f := newFixture(t)
	b := f.confirmed(t, stay("2025-11-05", "2025-11-09"))
	f.clock.Set(time.Date(2025, time.November, 5, 16, 0, 0, 0, time.UTC))
	_, err := f.engine.CheckIn(f.ctx, b.ID, nil)
	require.NoError(t, err)

	f.clock.Set(time.Date(2025, time.November, 7, 9, 0, 0, 0, time.UTC))
	_, err = f.engine.CheckOut(f.ctx, b.ID, booking.CheckOutRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, f.day(t, "R", "2025-11-06").Confirmed)
	assert.Equal(t, 0, f.day(t, "R", "2025-11-07").Confirmed)
	assert.Equal(t, 0, f.day(t, "R", "2025-11-08").Confirmed)
}

// =============================================================================
// MODIFY
// =============================================================================

func TestModify_HoldKeepsExpiryAndReprices(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, stay("2025-11-05", "2025-11-06"))
	f.clock.Advance(5 * time.Minute)

	newStay := stay("2025-11-06", "2025-11-08")
	got, err := f.engine.Modify(f.ctx, b.ID, booking.ModifyRequest{Stay: &newStay, Rooms: 2})

	require.NoError(t, err)
	assert.NotEqual(t, b.HoldToken, got.HoldToken)
	assert.Equal(t, *b.HoldExpiresAt, *got.HoldExpiresAt)
	assert.True(t, got.TotalPrice.Equal(dec("500")), "total=%s", got.TotalPrice)
	assert.Equal(t, 0, f.day(t, "R", "2025-11-05").Holds)
	assert.Equal(t, 2, f.day(t, "R", "2025-11-06").Holds)
	assert.Equal(t, 2, f.day(t, "R", "2025-11-07").Holds)

	old, err := f.store.GetHold(f.ctx, b.HoldToken)
	require.NoError(t, err)
	assert.Equal(t, core.HoldReleased, old.Status)
}

func TestModify_ConfirmedMovesAllocation(t *testing.T) {
	f := newFixture(t)
	f.capacity(t, "S", stay("2025-11-01", "2025-11-30"), 1)
	b := f.confirmed(t, stay("2025-11-05", "2025-11-07"))

	got, err := f.engine.Modify(f.ctx, b.ID, booking.ModifyRequest{RoomTypeID: "S"})

	require.NoError(t, err)
	assert.Equal(t, "S", got.RoomTypeID)
	assert.True(t, got.TotalPrice.Equal(dec("500")))
	assert.Equal(t, 0, f.day(t, "R", "2025-11-05").Confirmed)
	assert.Equal(t, 1, f.day(t, "S", "2025-11-05").Confirmed)
	assert.Equal(t, 0, f.day(t, "S", "2025-11-05").FreeToSell())
}

func TestModify_SameAllocationOverlapping(t *testing.T) {
	// GIVEN the only room on 2025-11-05 is this booking's
	f := newFixture(t)
	f.capacity(t, "R", stay("2025-11-05", "2025-11-06"), 1)
	b := f.confirmed(t, stay("2025-11-05", "2025-11-06"))

	// WHEN extending the stay by one night
	newStay := stay("2025-11-05", "2025-11-07")
	_, err := f.engine.Modify(f.ctx, b.ID, booking.ModifyRequest{Stay: &newStay})

	// THEN the booking's own room counts as available for the new stay
	require.NoError(t, err)
	assert.Equal(t, 1, f.day(t, "R", "2025-11-05").Confirmed)
	assert.Equal(t, 1, f.day(t, "R", "2025-11-06").Confirmed)
}

func TestModify_NoChangeIsRejected(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, stay("2025-11-05", "2025-11-06"))

	_, err := f.engine.Modify(f.ctx, b.ID, booking.ModifyRequest{})

	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestModify_StayLongerThanMaxIsRejected(t *testing.T) {
	f := newFixture(t)
	b := f.confirmed(t, stay("2025-11-05", "2025-11-07"))

	newStay := stay("2025-11-05", "9999-12-31")
	_, err := f.engine.Modify(f.ctx, b.ID, booking.ModifyRequest{Stay: &newStay})

	assert.True(t, errors.Is(err, core.ErrValidation), "%v", err)
	got, err := f.engine.GetBooking(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Stay, got.Stay)
	assert.Equal(t, b.Version, got.Version)
	assert.Equal(t, 1, f.day(t, "R", "2025-11-05").Confirmed)
}

func TestModify_ChannelPricedNeedsExplicitTotal(t *testing.T) {
	// GIVEN an Expedia booking at the channel's price
	f := newFixture(t)
	req := f.request(stay("2025-11-05", "2025-11-06"))
	req.Source = core.SourceExpedia
	req.ExternalReservationID = "EXP-42"
	req.TotalPrice = ptr(dec("200"))
	b, err := f.engine.Create(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, core.PriceExplicit, b.PriceMode)

	// WHEN the stay is extended without a new total
	newStay := stay("2025-11-05", "2025-11-07")
	_, err = f.engine.Modify(f.ctx, b.ID, booking.ModifyRequest{Stay: &newStay})

	// THEN the rack rate is not substituted and nothing moves
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "%v", err)
	assert.Equal(t, "total_price", verr.Field)
	got, err := f.engine.GetBooking(f.ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalPrice.Equal(dec("200")), "total=%s", got.TotalPrice)
	assert.Equal(t, b.Version, got.Version)
	assert.Equal(t, 0, f.day(t, "R", "2025-11-06").Holds)

	// WHEN the channel's new total comes with it
	got, err = f.engine.Modify(f.ctx, b.ID, booking.ModifyRequest{Stay: &newStay, TotalPrice: ptr(dec("380"))})

	// THEN that total and its commission are kept
	require.NoError(t, err)
	assert.True(t, got.TotalPrice.Equal(dec("380")), "total=%s", got.TotalPrice)
	assert.True(t, got.Commission.Equal(dec("68.4")), "commission=%s", got.Commission)
	assert.Equal(t, core.PriceExplicit, got.PriceMode)
	assert.Equal(t, 1, f.day(t, "R", "2025-11-06").Holds)

	trail := f.trail(t, b.ID)
	last := trail[len(trail)-1]
	assert.Equal(t, core.AuditModify, last.Action)
	assert.Equal(t, "200", last.Metadata["old_total_price"])
	assert.Equal(t, "380", last.Metadata["new_total_price"])
}

func TestModify_ExplicitTotalOnRateCardBooking(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, stay("2025-11-05", "2025-11-06"))
	assert.Equal(t, core.PriceRateCard, b.PriceMode)
	assert.True(t, b.TotalPrice.Equal(dec("100")))

	// a negotiated price alone is a change and touches no inventory
	got, err := f.engine.Modify(f.ctx, b.ID, booking.ModifyRequest{TotalPrice: ptr(dec("90"))})
	require.NoError(t, err)
	assert.True(t, got.TotalPrice.Equal(dec("90")), "total=%s", got.TotalPrice)
	assert.Equal(t, core.PriceExplicit, got.PriceMode)
	assert.Equal(t, b.HoldToken, got.HoldToken)
	assert.Equal(t, 1, f.day(t, "R", "2025-11-05").Holds)

	// from now on the rate card no longer applies
	newStay := stay("2025-11-05", "2025-11-07")
	_, err = f.engine.Modify(f.ctx, b.ID, booking.ModifyRequest{Stay: &newStay})
	assert.True(t, errors.Is(err, core.ErrValidation), "%v", err)

	_, err = f.engine.Modify(f.ctx, b.ID, booking.ModifyRequest{TotalPrice: ptr(dec("-1"))})
	assert.True(t, errors.Is(err, core.ErrValidation), "%v", err)
}

// =============================================================================
// CANCEL / REJECT / NO-SHOW
// =============================================================================

func TestCancel_HoldReleasesHold(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, stay("2025-11-05", "2025-11-07"))

	got, err := f.engine.Cancel(f.ctx, b.ID, "")

	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, got.Status)
	assert.True(t, got.CancellationFee.IsZero())
	assert.Equal(t, 5, f.day(t, "R", "2025-11-05").FreeToSell())
	hold, err := f.store.GetHold(f.ctx, b.HoldToken)
	require.NoError(t, err)
	assert.Equal(t, core.HoldReleased, hold.Status)
}

func TestReject_RefundsEverything(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, stay("2025-11-05", "2025-11-07"))
	f.pay(t, b.ID, "120")
	f.pay(t, b.ID, "80")

	got, err := f.engine.Reject(f.ctx, b.ID, "overbooked")

	require.NoError(t, err)
	assert.Equal(t, core.StatusRejected, got.Status)
	lines, err := f.engine.Payments(f.ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, lines, 4)
	for _, l := range lines[:2] {
		assert.Equal(t, core.PaymentRefunded, l.EffectiveStatus)
	}
	balance, err := f.engine.OutstandingBalance(f.ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestMarkNoShow(t *testing.T) {
	// GIVEN a confirmed, paid booking under the flexible policy
	f := newFixture(t)
	b := f.confirmed(t, stay("2025-11-05", "2025-11-07"))
	f.pay(t, b.ID, "200")

	// WHEN marking it a no-show on the check-in date itself
	f.clock.Set(time.Date(2025, time.November, 5, 23, 0, 0, 0, time.UTC))
	_, err := f.engine.MarkNoShow(f.ctx, b.ID)

	// THEN it is too early
	assert.True(t, errors.Is(err, core.ErrInvalidTransition))
	assert.Equal(t, core.StatusConfirmed, f.status(t, b.ID))

	// WHEN the check-in date has fully elapsed
	f.clock.Set(time.Date(2025, time.November, 6, 0, 30, 0, 0, time.UTC))
	got, err := f.engine.MarkNoShow(f.ctx, b.ID)

	// THEN the no-show forfeiture applies and inventory is released
	require.NoError(t, err)
	assert.Equal(t, core.StatusNoShow, got.Status)
	assert.True(t, got.CancellationFee.Equal(dec("200")))
	assert.Equal(t, 0, f.day(t, "R", "2025-11-06").Confirmed)
}

// =============================================================================
// TRANSITION TABLE
// =============================================================================

func TestTransitions_DisallowedPairsLeaveStatusUnchanged(t *testing.T) {
	f := newFixture(t)
	newStay := stay("2025-11-10", "2025-11-11")
	run := map[booking.Action]func(id string) error{
		booking.ActionSubmit:  func(id string) error { _, err := f.engine.Submit(f.ctx, id); return err },
		booking.ActionConfirm: func(id string) error { _, err := f.engine.Confirm(f.ctx, id); return err },
		booking.ActionCheckIn: func(id string) error { _, err := f.engine.CheckIn(f.ctx, id, nil); return err },
		booking.ActionCheckOut: func(id string) error {
			_, err := f.engine.CheckOut(f.ctx, id, booking.CheckOutRequest{})
			return err
		},
		booking.ActionModify: func(id string) error {
			_, err := f.engine.Modify(f.ctx, id, booking.ModifyRequest{Stay: &newStay})
			return err
		},
		booking.ActionCancel: func(id string) error { _, err := f.engine.Cancel(f.ctx, id, ""); return err },
		booking.ActionReject: func(id string) error { _, err := f.engine.Reject(f.ctx, id, ""); return err },
		booking.ActionNoShow: func(id string) error { _, err := f.engine.MarkNoShow(f.ctx, id); return err },
	}
	require.Len(t, run, len(booking.AllActions))

	for _, status := range core.AllStatuses {
		for _, action := range booking.AllActions {
			if booking.Allowed(status, action) {
				continue
			}
			t.Run(string(status)+"/"+string(action), func(t *testing.T) {
				id := string(status) + "-" + string(action)
				require.NoError(t, f.store.InsertBooking(f.ctx, core.Booking{
					ID:         id,
					Guest:      core.Guest{ID: "g", Name: "G"},
					RoomTypeID: "R",
					Stay:       stay("2025-11-05", "2025-11-06"),
					Guests:     1,
					Rooms:      1,
					Status:     status,
					Source:     core.SourceWalkIn,
					Version:    1,
				}))

				err := run[action](id)

				assert.True(t, errors.Is(err, core.ErrInvalidTransition), "%v", err)
				assert.Equal(t, status, f.status(t, id))
			})
		}
	}
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Confirm(f.ctx, "missing")
	assert.True(t, core.IsNotFound(err))
	_, err = f.engine.AuditTrail(f.ctx, "missing")
	assert.True(t, core.IsNotFound(err))
}

func ptr[T any](v T) *T { return &v }
