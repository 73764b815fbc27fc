package booking

import (
	"context"

	"github.com/warp/lodging-engine/core"
)

func (e *Engine) GetBooking(ctx context.Context, id string) (core.Booking, error) {
	return e.store.GetBooking(ctx, id)
}

func (e *Engine) ListBookings(ctx context.Context, filter core.BookingFilter) ([]core.Booking, error) {
	for _, s := range filter.Statuses {
		if !s.Valid() {
			return nil, core.Invalid("status", "unknown booking status %q", s)
		}
	}
	if filter.Source != "" && !filter.Source.Valid() {
		return nil, core.Invalid("source", "unknown booking source %q", filter.Source)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, core.Invalid("limit", "limit and offset must not be negative")
	}
	return e.store.ListBookings(ctx, filter)
}

// AuditTrail returns the booking's history, oldest first.
func (e *Engine) AuditTrail(ctx context.Context, id string) ([]core.AuditEntry, error) {
	if _, err := e.store.GetBooking(ctx, id); err != nil {
		return nil, err
	}
	return e.audit.Trail(ctx, e.store, id)
}

// =============================================================================
// INVENTORY ADMINISTRATION
// =============================================================================

// SetCapacity sets the sellable rooms of one room type on one date.
func (e *Engine) SetCapacity(ctx context.Context, roomTypeID string, date core.Date, total int) (core.InventoryDay, error) {
	var out core.InventoryDay
	err := e.retry.Do(ctx, func() error {
		unlock, err := e.ledger.LockDay(ctx, roomTypeID, date)
		if err != nil {
			return err
		}
		defer unlock()
		return e.store.WithTx(ctx, func(tx core.Tx) error {
			out, err = e.ledger.SetCapacity(ctx, tx, roomTypeID, date, total)
			return err
		})
	})
	if err != nil {
		return core.InventoryDay{}, err
	}
	e.log.Info("capacity set",
		"component", "booking",
		"room_type_id", roomTypeID,
		"date", date.String(),
		"total", total,
	)
	return out, nil
}

// SetCapacityRange sets the same capacity on every night of r.
func (e *Engine) SetCapacityRange(ctx context.Context, roomTypeID string, r core.DateRange, total int) ([]core.InventoryDay, error) {
	if err := r.ValidateMaxNights(MaxInventoryRangeNights); err != nil {
		return nil, err
	}
	out := make([]core.InventoryDay, 0, r.Nights())
	for _, d := range r.Dates() {
		day, err := e.SetCapacity(ctx, roomTypeID, d, total)
		if err != nil {
			return out, err
		}
		out = append(out, day)
	}
	return out, nil
}

// Availability reports the counters of every night of stay.
func (e *Engine) Availability(ctx context.Context, roomTypeID string, stay core.DateRange) ([]core.InventoryDay, error) {
	if err := stay.ValidateMaxNights(MaxInventoryRangeNights); err != nil {
		return nil, err
	}
	return e.ledger.Availability(ctx, e.store, roomTypeID, stay)
}
