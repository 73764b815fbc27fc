package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/lodging-engine/core"
)

// =============================================================================
// HOLDS - Time-boxed reservation tokens over the ledger
// =============================================================================

// DefaultHoldTTL is how long a hold stays usable before the sweep may
// release it.
const DefaultHoldTTL = 15 * time.Minute

// Holds manages HoldRecords. Every status change is paired with exactly
// one ledger mutation inside the caller's transaction:
//
//	Place   -> ACTIVE    (ledger hold)
//	Consume -> CONSUMED  (ledger commit)
//	Release -> RELEASED  (ledger release from holds)
//	Expire  -> EXPIRED   (ledger release from holds)
//
// Only ACTIVE holds can change status, so a hold is never released twice.
type Holds struct {
	ledger *Ledger
	clock  core.Clock
	ttl    time.Duration
}

type HoldsOption func(*Holds)

// WithHoldTTL overrides DefaultHoldTTL.
func WithHoldTTL(ttl time.Duration) HoldsOption {
	return func(h *Holds) {
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

func NewHolds(ledger *Ledger, clock core.Clock, opts ...HoldsOption) *Holds {
	if clock == nil {
		clock = core.NewSystemClock()
	}
	h := &Holds{ledger: ledger, clock: clock, ttl: DefaultHoldTTL}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Holds) TTL() time.Duration { return h.ttl }

// HoldRequest describes a new hold. A zero ExpiresAt means now + TTL.
type HoldRequest struct {
	BookingID  string
	PropertyID string
	Allocation core.Allocation
	ExpiresAt  time.Time
}

// Place reserves capacity and records an ACTIVE hold in the same
// transaction.
func (h *Holds) Place(ctx context.Context, tx core.Tx, req HoldRequest) (core.HoldRecord, error) {
	if req.BookingID == "" {
		return core.HoldRecord{}, core.Invalid("booking_id", "is required")
	}
	if err := h.ledger.TryHold(ctx, tx, req.Allocation); err != nil {
		return core.HoldRecord{}, err
	}

	now := h.clock.Now()
	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(h.ttl)
	}
	rec := core.HoldRecord{
		Token:      uuid.NewString(),
		BookingID:  req.BookingID,
		PropertyID: req.PropertyID,
		RoomTypeID: req.Allocation.RoomTypeID,
		Stay:       req.Allocation.Stay,
		Rooms:      req.Allocation.Rooms,
		Status:     core.HoldActive,
		ExpiresAt:  expiresAt,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.InsertHold(ctx, rec); err != nil {
		return core.HoldRecord{}, fmt.Errorf("insert hold: %w", err)
	}
	return rec, nil
}

// Consume commits an ACTIVE, unexpired hold. A hold that is past its TTL
// or no longer ACTIVE yields *core.HoldExpiredError and changes nothing.
func (h *Holds) Consume(ctx context.Context, tx core.Tx, token string) (core.HoldRecord, error) {
	rec, err := h.usable(ctx, tx, token)
	if err != nil {
		return core.HoldRecord{}, err
	}
	if err := h.ledger.CommitHold(ctx, tx, rec.Allocation()); err != nil {
		return core.HoldRecord{}, err
	}
	return h.transition(ctx, tx, rec, core.HoldConsumed)
}

// Check returns the hold if it is ACTIVE and unexpired.
func (h *Holds) Check(ctx context.Context, tx core.Tx, token string) (core.HoldRecord, error) {
	return h.usable(ctx, tx, token)
}

// Release gives back an ACTIVE hold's capacity. Releasing a hold that is no
// longer ACTIVE is a no-op and reports false.
func (h *Holds) Release(ctx context.Context, tx core.Tx, token string) (core.HoldRecord, bool, error) {
	rec, err := tx.GetHold(ctx, token)
	if err != nil {
		return core.HoldRecord{}, false, err
	}
	if rec.Status != core.HoldActive {
		return rec, false, nil
	}
	if err := h.ledger.Release(ctx, tx, rec.Allocation(), FromHold); err != nil {
		return core.HoldRecord{}, false, err
	}
	rec, err = h.transition(ctx, tx, rec, core.HoldReleased)
	return rec, err == nil, err
}

// Expire releases a hold only if it is still ACTIVE and its ExpiresAt is
// strictly before now. It reports false, changing nothing, when the hold
// was already consumed, released or expired, or is not yet due.
func (h *Holds) Expire(ctx context.Context, tx core.Tx, token string) (core.HoldRecord, bool, error) {
	rec, err := tx.GetHold(ctx, token)
	if err != nil {
		return core.HoldRecord{}, false, err
	}
	if rec.Status != core.HoldActive || !rec.ExpiresAt.Before(h.clock.Now()) {
		return rec, false, nil
	}
	if err := h.ledger.Release(ctx, tx, rec.Allocation(), FromHold); err != nil {
		return core.HoldRecord{}, false, err
	}
	rec, err = h.transition(ctx, tx, rec, core.HoldExpired)
	return rec, err == nil, err
}

// Due lists ACTIVE holds whose TTL has passed.
func (h *Holds) Due(ctx context.Context, s core.HoldStore, limit int) ([]core.HoldRecord, error) {
	return s.ListExpiredHolds(ctx, h.clock.Now(), limit)
}

func (h *Holds) usable(ctx context.Context, tx core.Tx, token string) (core.HoldRecord, error) {
	if token == "" {
		return core.HoldRecord{}, &core.HoldExpiredError{Status: core.HoldReleased}
	}
	rec, err := tx.GetHold(ctx, token)
	if err != nil {
		return core.HoldRecord{}, err
	}
	if rec.Status != core.HoldActive {
		return core.HoldRecord{}, &core.HoldExpiredError{Token: token, Status: rec.Status}
	}
	if rec.ExpiredAt(h.clock.Now()) {
		return core.HoldRecord{}, &core.HoldExpiredError{Token: token, Status: core.HoldExpired}
	}
	return rec, nil
}

func (h *Holds) transition(ctx context.Context, tx core.Tx, rec core.HoldRecord, to core.HoldStatus) (core.HoldRecord, error) {
	rec.Status = to
	rec.Version++
	rec.UpdatedAt = h.clock.Now()
	if err := tx.UpdateHold(ctx, rec); err != nil {
		return core.HoldRecord{}, fmt.Errorf("update hold: %w", err)
	}
	return rec, nil
}
