package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/warp/lodging-engine/core"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventHeld        EventType = "booking.held"
	EventPending     EventType = "booking.pending"
	EventConfirmed   EventType = "booking.confirmed"
	EventModified    EventType = "booking.modified"
	EventCheckedIn   EventType = "booking.checked_in"
	EventCheckedOut  EventType = "booking.checked_out"
	EventCancelled   EventType = "booking.cancelled"
	EventRejected    EventType = "booking.rejected"
	EventNoShow      EventType = "booking.no_show"
	EventHoldExpired EventType = "booking.hold_expired"
	EventPayment     EventType = "payment.recorded"
	EventRefund      EventType = "refund.issued"
)

// Event is published after the transaction that caused it commits. The
// channel manager listens for booking.confirmed on OTA sources; the
// notification dispatcher listens for everything.
type Event struct {
	ID         string
	Type       EventType
	OccurredAt time.Time
	Actor      string
	Booking    core.Booking
	Payment    *core.Payment
	Data       map[string]any
}

// Notifier receives committed events. A failing notifier never rolls back
// the operation; the engine logs and moves on.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, Event) error { return nil }

func (e *Engine) event(ctx context.Context, typ EventType, b core.Booking, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: e.clock.Now(),
		Actor:      ActorFrom(ctx),
		Booking:    b,
		Data:       data,
	}
}

func (e *Engine) publish(ctx context.Context, events []Event) {
	for _, ev := range events {
		if err := e.notifier.Publish(ctx, ev); err != nil {
			e.log.Warn("event publish failed",
				"component", "booking",
				"event", string(ev.Type),
				"booking_id", ev.Booking.ID,
				"error", err,
			)
		}
	}
}
