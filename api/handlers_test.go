/*
handlers_test.go - End-to-end tests for the HTTP API

Tests for:
- Booking lifecycle over HTTP (create, confirm, cancel)
- Error taxonomy to status code mapping
- Payments, refunds and declines
- Policies, inventory administration and the sweep trigger
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lodging-engine/booking"
	"github.com/warp/lodging-engine/cancellation"
	"github.com/warp/lodging-engine/core"
	"github.com/warp/lodging-engine/core/store"
	"github.com/warp/lodging-engine/payment"
)

var t0 = time.Date(2025, time.November, 1, 10, 0, 0, 0, time.UTC)

type apiFixture struct {
	server  *httptest.Server
	clock   *core.ManualClock
	gateway *payment.ManualGateway
	engine  *booking.Engine
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	clock := core.NewManualClock(t0)
	gateway := payment.NewManualGateway()
	policies := cancellation.NewCatalog()
	engine := booking.NewEngine(store.NewMemory(),
		booking.WithClock(clock),
		booking.WithRates(booking.NewRateCard("EUR", decimal.NewFromInt(100))),
		booking.WithPolicies(policies),
		booking.WithGateway(gateway),
	)
	scheduler := NewSweepScheduler(engine.NewSweeper(), time.Minute, nil)
	h := NewHandler(engine, policies, scheduler, nil)
	server := httptest.NewServer(NewRouter(h, nil))
	t.Cleanup(server.Close)

	_, err := engine.SetCapacityRange(testContext(t), "DLX", core.DateRange{
		Start: core.MustParseDate("2025-11-05"),
		End:   core.MustParseDate("2025-11-07"),
	}, 1)
	require.NoError(t, err)
	return &apiFixture{server: server, clock: clock, gateway: gateway, engine: engine}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers ...string) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decodeAs[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func createBody() map[string]any {
	return map[string]any{
		"guest":        map[string]any{"id": "g1", "name": "Ada Lovelace"},
		"property_id":  "P1",
		"room_type_id": "DLX",
		"stay":         map[string]any{"check_in": "2025-11-05", "check_out": "2025-11-07"},
		"guests":       2,
		"rooms":        1,
		"source":       "DIRECT_WEB",
	}
}

func (f *apiFixture) create(t *testing.T) BookingDTO {
	t.Helper()
	status, data := f.do(t, http.MethodPost, "/api/bookings", createBody())
	require.Equal(t, http.StatusCreated, status, string(data))
	return decodeAs[BookingDTO](t, data)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestAPI_CreateConfirmCancel(t *testing.T) {
	f := newAPIFixture(t)

	// GIVEN a held booking
	b := f.create(t)
	assert.Equal(t, "HOLD", b.Status)
	assert.Equal(t, 2, b.Nights)
	assert.True(t, b.TotalPrice.Equal(decimal.NewFromInt(200)))
	require.NotNil(t, b.HoldExpiresAt)

	// WHEN it is confirmed and then cancelled by front desk staff
	status, data := f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/confirm", nil, HeaderActor, "desk-1")
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Equal(t, "CONFIRMED", decodeAs[BookingDTO](t, data).Status)

	status, data = f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/cancel", map[string]any{"reason": "guest request"}, HeaderActor, "desk-1")
	require.Equal(t, http.StatusOK, status, string(data))
	cancelled := decodeAs[BookingDTO](t, data)

	// THEN the booking is closed, the room is free again and the trail names the actor
	assert.Equal(t, "CANCELLED", cancelled.Status)
	assert.Equal(t, "guest request", cancelled.CancellationReason)

	status, data = f.do(t, http.MethodGet, "/api/inventory/DLX?from=2025-11-05&to=2025-11-07", nil)
	require.Equal(t, http.StatusOK, status)
	for _, d := range decodeAs[[]InventoryDayDTO](t, data) {
		assert.Equal(t, 1, d.FreeToSell)
	}

	status, data = f.do(t, http.MethodGet, "/api/bookings/"+b.ID+"/audit", nil)
	require.Equal(t, http.StatusOK, status)
	trail := decodeAs[[]AuditEntryDTO](t, data)
	require.Len(t, trail, 3)
	assert.Equal(t, core.SystemActor, trail[0].Actor)
	assert.Equal(t, "desk-1", trail[1].Actor)
	assert.Equal(t, "CANCEL", trail[2].Action)
}

func TestAPI_StatusMapping(t *testing.T) {
	f := newAPIFixture(t)
	held := f.create(t)

	tests := map[string]struct {
		method string
		path   string
		body   any
		want   int
	}{
		"capacity unavailable":  {http.MethodPost, "/api/bookings", createBody(), http.StatusConflict},
		"invalid transition":    {http.MethodPost, "/api/bookings/" + held.ID + "/check-in", nil, http.StatusConflict},
		"unknown booking":       {http.MethodGet, "/api/bookings/nope", nil, http.StatusNotFound},
		"unknown policy":        {http.MethodGet, "/api/policies/nope", nil, http.StatusNotFound},
		"malformed body":        {http.MethodPost, "/api/bookings", "not an object", http.StatusBadRequest},
		"unknown field":         {http.MethodPost, "/api/bookings/" + held.ID + "/cancel", map[string]any{"why": "x"}, http.StatusBadRequest},
		"bad status filter":     {http.MethodGet, "/api/bookings?status=PAID", nil, http.StatusBadRequest},
		"bad range":             {http.MethodGet, "/api/inventory/DLX?from=2025-11-07&to=2025-11-05", nil, http.StatusBadRequest},
		"refund without reason": {http.MethodPost, "/api/bookings/" + held.ID + "/payments/p1/refunds", map[string]any{"amount": "10"}, http.StatusBadRequest},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			status, data := f.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, status, string(data))
			assert.NotEmpty(t, decodeAs[ErrorResponse](t, data).Error)
		})
	}
}

func TestAPI_CreateValidation(t *testing.T) {
	f := newAPIFixture(t)
	body := createBody()
	body["source"] = "OTA_BOOKING_COM" // OTA without an external reservation id

	status, data := f.do(t, http.MethodPost, "/api/bookings", body)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, decodeAs[ErrorResponse](t, data).Details, "external_reservation_id")
}

func TestAPI_ListFilters(t *testing.T) {
	f := newAPIFixture(t)
	b := f.create(t)

	status, data := f.do(t, http.MethodGet, "/api/bookings?status=hold&room_type_id=DLX", nil)
	require.Equal(t, http.StatusOK, status)
	list := decodeAs[[]BookingDTO](t, data)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	status, data = f.do(t, http.MethodGet, "/api/bookings?status=CONFIRMED", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decodeAs[[]BookingDTO](t, data))
}

func TestAPI_ModifyWithoutCapacityIsConflict(t *testing.T) {
	f := newAPIFixture(t)
	b := f.create(t)

	// GIVEN the 7th has no inventory row at all
	status, data := f.do(t, http.MethodPatch, "/api/bookings/"+b.ID, map[string]any{
		"stay": map[string]any{"check_in": "2025-11-05", "check_out": "2025-11-08"},
	})

	// THEN the booking is unchanged
	assert.Equal(t, http.StatusConflict, status, string(data))
	_, data = f.do(t, http.MethodGet, "/api/bookings/"+b.ID, nil)
	assert.Equal(t, "2025-11-07", decodeAs[BookingDTO](t, data).Stay.End.String())
}

func TestAPI_ModifyExplicitlyPricedBookingNeedsTotal(t *testing.T) {
	// GIVEN a booking created at a price the caller supplied
	f := newAPIFixture(t)
	body := createBody()
	body["total_price"] = "180"
	status, data := f.do(t, http.MethodPost, "/api/bookings", body)
	require.Equal(t, http.StatusCreated, status, string(data))
	b := decodeAs[BookingDTO](t, data)
	assert.Equal(t, "EXPLICIT", b.PriceMode)

	// WHEN the stay is shortened without a new total
	shorter := map[string]any{"check_in": "2025-11-05", "check_out": "2025-11-06"}
	status, data = f.do(t, http.MethodPatch, "/api/bookings/"+b.ID, map[string]any{"stay": shorter})

	// THEN it is refused
	assert.Equal(t, http.StatusBadRequest, status, string(data))

	// AND with one it goes through at that total
	status, data = f.do(t, http.MethodPatch, "/api/bookings/"+b.ID, map[string]any{"stay": shorter, "total_price": "90"})
	require.Equal(t, http.StatusOK, status, string(data))
	got := decodeAs[BookingDTO](t, data)
	assert.True(t, got.TotalPrice.Equal(decimal.NewFromInt(90)), got.TotalPrice.String())
	assert.Equal(t, 1, got.Nights)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestAPI_PaymentsAndRefunds(t *testing.T) {
	f := newAPIFixture(t)
	b := f.create(t)

	// WHEN the guest pays 150 and 30 is refunded
	status, data := f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/payments", map[string]any{"amount": "150", "method": "CARD"})
	require.Equal(t, http.StatusCreated, status, string(data))
	charge := decodeAs[PaymentDTO](t, data)
	assert.Equal(t, "COMPLETED", charge.Status)

	status, data = f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/payments/"+charge.ID+"/refunds",
		map[string]any{"amount": "30", "reason": "goodwill"})
	require.Equal(t, http.StatusCreated, status, string(data))
	assert.True(t, decodeAs[PaymentDTO](t, data).Amount.Equal(decimal.NewFromInt(-30)))

	// THEN the balance reflects both entries
	status, data = f.do(t, http.MethodGet, "/api/bookings/"+b.ID+"/balance", nil)
	require.Equal(t, http.StatusOK, status)
	balance := decodeAs[BalanceDTO](t, data)
	assert.True(t, balance.Outstanding.Equal(decimal.NewFromInt(80)), balance.Outstanding.String())
	assert.Equal(t, "EUR", balance.Currency)

	status, data = f.do(t, http.MethodGet, "/api/bookings/"+b.ID+"/payments", nil)
	require.Equal(t, http.StatusOK, status)
	lines := decodeAs[[]PaymentLineDTO](t, data)
	require.Len(t, lines, 2)
	assert.True(t, lines[0].RefundedTotal.Equal(decimal.NewFromInt(30)))
}

func TestAPI_DeclinedPayment(t *testing.T) {
	f := newAPIFixture(t)
	b := f.create(t)
	f.gateway.Decline(1)

	status, data := f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/payments", map[string]any{"amount": "50", "method": "CARD"})

	assert.Equal(t, http.StatusPaymentRequired, status, string(data))
	assert.Equal(t, "FAILED", decodeAs[PaymentDTO](t, data).Status)
	_, data = f.do(t, http.MethodGet, "/api/bookings/"+b.ID+"/balance", nil)
	assert.True(t, decodeAs[BalanceDTO](t, data).Outstanding.Equal(decimal.NewFromInt(200)))
}

// =============================================================================
// POLICIES, INVENTORY, SWEEP
// =============================================================================

func TestAPI_PoliciesAndCancellationPreview(t *testing.T) {
	f := newAPIFixture(t)

	// GIVEN a custom policy charging half within a week
	status, data := f.do(t, http.MethodPost, "/api/policies", map[string]any{
		"id":    "half-week",
		"tiers": []map[string]any{{"within_days": 7, "fee": "50%"}},
	})
	require.Equal(t, http.StatusCreated, status, string(data))

	body := createBody()
	body["cancellation_policy_id"] = "half-week"
	status, data = f.do(t, http.MethodPost, "/api/bookings", body)
	require.Equal(t, http.StatusCreated, status, string(data))
	b := decodeAs[BookingDTO](t, data)
	_, _ = f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/payments", map[string]any{"amount": "200", "method": "CARD"})

	// WHEN the fee is previewed four days out
	status, data = f.do(t, http.MethodGet, "/api/bookings/"+b.ID+"/cancellation-fee", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	quote := decodeAs[cancellation.Quote](t, data)

	// THEN the tier applies
	assert.Equal(t, "half-week", quote.PolicyID)
	assert.True(t, quote.Fee.Equal(decimal.NewFromInt(100)), quote.Fee.String())
	assert.True(t, quote.Refund.Equal(decimal.NewFromInt(100)))

	status, data = f.do(t, http.MethodGet, "/api/policies", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), `"half-week"`)
	assert.Contains(t, string(data), `"flexible"`)

	status, _ = f.do(t, http.MethodPost, "/api/policies", map[string]any{"id": "broken", "tiers": []map[string]any{{"fee": "abc"}}})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_SetCapacity(t *testing.T) {
	f := newAPIFixture(t)
	f.create(t)

	status, data := f.do(t, http.MethodPut, "/api/inventory/DLX", map[string]any{"from": "2025-11-05", "to": "2025-11-07", "total": 3})
	require.Equal(t, http.StatusOK, status, string(data))
	days := decodeAs[[]InventoryDayDTO](t, data)
	require.Len(t, days, 2)
	assert.Equal(t, 2, days[0].FreeToSell)

	// below what is already held
	status, _ = f.do(t, http.MethodPut, "/api/inventory/DLX", map[string]any{"from": "2025-11-05", "to": "2025-11-07", "total": 0})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_SweepExpiresStaleHolds(t *testing.T) {
	f := newAPIFixture(t)
	b := f.create(t)

	// GIVEN the hold TTL has passed
	f.clock.Advance(16 * time.Minute)

	// WHEN the sweep is triggered
	status, data := f.do(t, http.MethodPost, "/api/admin/sweep", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Contains(t, string(data), `"expired":1`)

	// THEN the booking is cancelled and can no longer be confirmed
	_, data = f.do(t, http.MethodGet, "/api/bookings/"+b.ID, nil)
	assert.Equal(t, "CANCELLED", decodeAs[BookingDTO](t, data).Status)
	status, _ = f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(core.Conflict("busy")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(core.ErrInvariantViolation))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
	assert.Equal(t, http.StatusConflict, statusFor(core.ErrDuplicate))
}
