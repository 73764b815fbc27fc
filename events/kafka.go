/*
Package events publishes committed booking lifecycle events to Kafka.

PURPOSE:
  The engine hands every committed event to a booking.Notifier. Publisher
  is that notifier for deployments with a channel manager and a
  notification dispatcher downstream.

MESSAGE FORMAT:
  key:     booking id (Hash balancer keeps one booking's events ordered)
  value:   JSON Envelope
  headers: event-type, event-id, actor

  Publish failures are returned to the engine, which logs them. They never
  roll back the booking operation that produced the event.

SEE ALSO:
  - booking/events.go: Event, Notifier
*/
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/booking"
	"github.com/warp/lodging-engine/core"
)

const (
	HeaderEventType = "event-type"
	HeaderEventID   = "event-id"
	HeaderActor     = "actor"
)

var ErrPublisherClosed = errors.New("publisher closed")

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter builds a synchronous writer that waits for all in-sync replicas.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		Logger:       kafka.LoggerFunc(func(string, ...any) {}),
	}
}

// =============================================================================
// ENVELOPE
// =============================================================================

type Envelope struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Actor      string         `json:"actor"`
	Booking    BookingPayload `json:"booking"`
	Payment    *PaymentBody   `json:"payment,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

type BookingPayload struct {
	ID                    string          `json:"id"`
	Status                string          `json:"status"`
	Source                string          `json:"source"`
	PropertyID            string          `json:"property_id"`
	RoomTypeID            string          `json:"room_type_id"`
	GuestID               string          `json:"guest_id"`
	CheckIn               string          `json:"check_in"`
	CheckOut              string          `json:"check_out"`
	Rooms                 int             `json:"rooms"`
	TotalPrice            decimal.Decimal `json:"total_price"`
	Currency              string          `json:"currency"`
	ExternalReservationID string          `json:"external_reservation_id,omitempty"`
	Version               int             `json:"version"`
}

type PaymentBody struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Method   string          `json:"method"`
	Status   string          `json:"status"`
	RefundOf string          `json:"refund_of,omitempty"`
}

func NewEnvelope(ev booking.Event) Envelope {
	b := ev.Booking
	env := Envelope{
		ID:         ev.ID,
		Type:       string(ev.Type),
		OccurredAt: ev.OccurredAt.UTC(),
		Actor:      ev.Actor,
		Booking: BookingPayload{
			ID:                    b.ID,
			Status:                string(b.Status),
			Source:                string(b.Source),
			PropertyID:            b.PropertyID,
			RoomTypeID:            b.RoomTypeID,
			GuestID:               b.Guest.ID,
			CheckIn:               b.Stay.Start.String(),
			CheckOut:              b.Stay.End.String(),
			Rooms:                 b.Rooms,
			TotalPrice:            b.TotalPrice,
			Currency:              b.Currency,
			ExternalReservationID: b.ExternalReservationID,
			Version:               b.Version,
		},
		Data: ev.Data,
	}
	if p := ev.Payment; p != nil {
		env.Payment = paymentBody(*p)
	}
	return env
}

func paymentBody(p core.Payment) *PaymentBody {
	return &PaymentBody{
		ID:       p.ID,
		Amount:   p.Amount,
		Method:   string(p.Method),
		Status:   string(p.Status),
		RefundOf: p.RefundOf,
	}
}

// =============================================================================
// PUBLISHER
// =============================================================================

// Publisher implements booking.Notifier on a Kafka writer.
type Publisher struct {
	w      Writer
	log    *slog.Logger
	mu     sync.RWMutex
	closed bool
}

var _ booking.Notifier = (*Publisher)(nil)

func NewPublisher(w Writer, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{w: w, log: log}
}

func (p *Publisher) Publish(ctx context.Context, ev booking.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	value, err := json.Marshal(NewEnvelope(ev))
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Booking.ID),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(ev.Type)},
			{Key: HeaderEventID, Value: []byte(ev.ID)},
			{Key: HeaderActor, Value: []byte(ev.Actor)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s: %w", ev.Type, err)
	}
	p.log.Debug("event published",
		"component", "events",
		"event", string(ev.Type),
		"booking_id", ev.Booking.ID,
	)
	return nil
}

// Close flushes the writer. Later Publish calls fail with ErrPublisherClosed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.w.Close()
}
