/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the engine with realistic
	bookings for demos and front-desk UI work. Each scenario configures
	capacity on a fresh room type and drives bookings through the
	lifecycle to the state it demonstrates.

AVAILABLE SCENARIOS:

	last-room:          One room left and already confirmed; the next create is refused
	late-cancellation:  Paid, confirmed stay starting tomorrow under the moderate policy
	expiring-hold:      An unconfirmed hold the sweep will cancel once its TTL passes
	ota-channel:        Booking.com reservation collected by the channel
	in-house:           Guest checked in today with a room assigned

HOW SCENARIOS WORK:
 1. Allocate a room type id unique to this load (DEMO-<scenario>-<suffix>)
 2. Set capacity over the scenario's dates, relative to today
 3. Create bookings and move them through the lifecycle

	Nothing is reset: loading twice creates a second, independent room type.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "late-cancellation"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, roomType, today)
 3. Add case to scenarioLoader

SEE ALSO:
  - handlers.go: Booking handlers the demo data is explored with
  - cancellation/presets.go: Policies referenced by the scenarios
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/warp/lodging-engine/booking"
	"github.com/warp/lodging-engine/core"
)

// DemoPropertyID is the property every scenario books into.
const DemoPropertyID = "DEMO-PROPERTY"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "last-room",
		Name:        "Last Room",
		Description: "Capacity 1, already confirmed; a second booking gets 409",
		Category:    "inventory",
	},
	{
		ID:          "late-cancellation",
		Name:        "Late Cancellation",
		Description: "Paid stay starting tomorrow under the moderate policy; preview the fee",
		Category:    "cancellation",
	},
	{
		ID:          "expiring-hold",
		Name:        "Expiring Hold",
		Description: "Unconfirmed hold; the sweep cancels it after the hold TTL",
		Category:    "inventory",
	},
	{
		ID:          "ota-channel",
		Name:        "OTA Channel",
		Description: "Booking.com reservation with channel-collected payment",
		Category:    "distribution",
	},
	{
		ID:          "in-house",
		Name:        "In-House Guest",
		Description: "Checked in today with room 101 assigned",
		Category:    "front-desk",
	},
}

type scenarioFunc func(ctx context.Context, roomType string, today core.Date) ([]core.Booking, error)

func (h *Handler) scenarioLoader(id string) (scenarioFunc, bool) {
	switch id {
	case "last-room":
		return h.loadLastRoomScenario, true
	case "late-cancellation":
		return h.loadLateCancellationScenario, true
	case "expiring-hold":
		return h.loadExpiringHoldScenario, true
	case "ota-channel":
		return h.loadOTAChannelScenario, true
	case "in-house":
		return h.loadInHouseScenario, true
	}
	return nil, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	if current == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	load, ok := h.scenarioLoader(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := booking.WithActor(r.Context(), "demo-loader")
	roomType := fmt.Sprintf("DEMO-%s-%s", strings.ToUpper(req.ScenarioID), uuid.NewString()[:8])
	bookings, err := load(ctx, roomType, h.Engine.Today())
	if err != nil {
		h.log.Error("scenario load failed", "scenario", req.ScenarioID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	result := &ScenarioResultDTO{
		ScenarioID: req.ScenarioID,
		PropertyID: DemoPropertyID,
		RoomTypeID: roomType,
		Bookings:   toBookingDTOs(bookings),
	}
	h.scenarioMu.Lock()
	h.currentScenario = result
	h.scenarioMu.Unlock()

	h.log.Info("scenario loaded", "scenario", req.ScenarioID, "room_type_id", roomType, "bookings", len(bookings))
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadLastRoomScenario(ctx context.Context, roomType string, today core.Date) ([]core.Booking, error) {
	stay := core.DateRange{Start: today.AddDays(30), End: today.AddDays(32)}
	if _, err := h.Engine.SetCapacityRange(ctx, roomType, stay, 1); err != nil {
		return nil, err
	}
	b, err := h.createDemoBooking(ctx, demoRequest(roomType, stay, "Ada Lovelace", core.SourceDirectWeb))
	if err != nil {
		return nil, err
	}
	b, err = h.Engine.Confirm(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return []core.Booking{b}, nil
}

func (h *Handler) loadLateCancellationScenario(ctx context.Context, roomType string, today core.Date) ([]core.Booking, error) {
	// Check-in tomorrow falls inside the moderate policy's 50% tier.
	stay := core.DateRange{Start: today.AddDays(1), End: today.AddDays(4)}
	if _, err := h.Engine.SetCapacityRange(ctx, roomType, stay, 3); err != nil {
		return nil, err
	}
	req := demoRequest(roomType, stay, "Grace Hopper", core.SourcePhone)
	req.CancellationPolicyID = "moderate"
	b, err := h.createDemoBooking(ctx, req)
	if err != nil {
		return nil, err
	}
	if b, err = h.Engine.Confirm(ctx, b.ID); err != nil {
		return nil, err
	}
	if _, err := h.Engine.RecordPayment(ctx, b.ID, booking.PaymentRequest{Amount: b.TotalPrice, Method: core.MethodCard}); err != nil {
		return nil, err
	}
	return []core.Booking{b}, nil
}

func (h *Handler) loadExpiringHoldScenario(ctx context.Context, roomType string, today core.Date) ([]core.Booking, error) {
	stay := core.DateRange{Start: today.AddDays(7), End: today.AddDays(9)}
	if _, err := h.Engine.SetCapacityRange(ctx, roomType, stay, 2); err != nil {
		return nil, err
	}
	b, err := h.createDemoBooking(ctx, demoRequest(roomType, stay, "Alan Turing", core.SourceDirectWeb))
	if err != nil {
		return nil, err
	}
	return []core.Booking{b}, nil
}

func (h *Handler) loadOTAChannelScenario(ctx context.Context, roomType string, today core.Date) ([]core.Booking, error) {
	stay := core.DateRange{Start: today.AddDays(14), End: today.AddDays(17)}
	if _, err := h.Engine.SetCapacityRange(ctx, roomType, stay, 4); err != nil {
		return nil, err
	}
	req := demoRequest(roomType, stay, "Katherine Johnson", core.SourceBookingCom)
	req.ExternalReservationID = "BDC-" + uuid.NewString()[:8]
	b, err := h.createDemoBooking(ctx, req)
	if err != nil {
		return nil, err
	}
	if b, err = h.Engine.Confirm(ctx, b.ID); err != nil {
		return nil, err
	}
	if _, err := h.Engine.RecordPayment(ctx, b.ID, booking.PaymentRequest{Amount: b.TotalPrice, Method: core.MethodChannel}); err != nil {
		return nil, err
	}
	return []core.Booking{b}, nil
}

func (h *Handler) loadInHouseScenario(ctx context.Context, roomType string, today core.Date) ([]core.Booking, error) {
	stay := core.DateRange{Start: today, End: today.AddDays(2)}
	if _, err := h.Engine.SetCapacityRange(ctx, roomType, stay, 2); err != nil {
		return nil, err
	}
	b, err := h.createDemoBooking(ctx, demoRequest(roomType, stay, "Edsger Dijkstra", core.SourceWalkIn))
	if err != nil {
		return nil, err
	}
	if b, err = h.Engine.Confirm(ctx, b.ID); err != nil {
		return nil, err
	}
	if _, err := h.Engine.RecordPayment(ctx, b.ID, booking.PaymentRequest{Amount: b.TotalPrice, Method: core.MethodCash}); err != nil {
		return nil, err
	}
	if b, err = h.Engine.CheckIn(ctx, b.ID, []string{"101"}); err != nil {
		return nil, err
	}
	return []core.Booking{b}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func demoRequest(roomType string, stay core.DateRange, guest string, source core.Source) booking.CreateRequest {
	return booking.CreateRequest{
		Guest:      core.Guest{ID: "guest-" + uuid.NewString()[:8], Name: guest},
		PropertyID: DemoPropertyID,
		RoomTypeID: roomType,
		Stay:       stay,
		Guests:     2,
		Rooms:      1,
		Source:     source,
	}
}

func (h *Handler) createDemoBooking(ctx context.Context, req booking.CreateRequest) (core.Booking, error) {
	b, err := h.Engine.Create(ctx, req)
	if err != nil {
		return core.Booking{}, fmt.Errorf("create %s booking: %w", req.Source, err)
	}
	return b, nil
}
