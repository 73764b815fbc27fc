// Package audit appends and reads the immutable per-booking history.
//
// Entries are written inside the same transaction as the change they
// describe, so a booking never shows a state its trail does not explain.
package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/warp/lodging-engine/core"
)

// Common metadata keys.
const (
	KeyFrom   = "from_status"
	KeyTo     = "to_status"
	KeyReason = "reason"
)

type Log struct {
	clock core.Clock
}

func NewLog(clock core.Clock) *Log {
	if clock == nil {
		clock = core.NewSystemClock()
	}
	return &Log{clock: clock}
}

// Record appends one entry. An empty actor is recorded as the system actor.
func (l *Log) Record(ctx context.Context, s core.AuditStore, bookingID string, action core.AuditAction, actor string, meta map[string]any) (core.AuditEntry, error) {
	if bookingID == "" {
		return core.AuditEntry{}, core.Invalid("booking_id", "is required")
	}
	if actor == "" {
		actor = core.SystemActor
	}
	if meta == nil {
		meta = map[string]any{}
	}
	e := core.AuditEntry{
		ID:        uuid.NewString(),
		BookingID: bookingID,
		Action:    action,
		Actor:     actor,
		Timestamp: l.clock.Now(),
		Metadata:  meta,
	}
	if err := s.AppendAudit(ctx, e); err != nil {
		return core.AuditEntry{}, fmt.Errorf("append audit: %w", err)
	}
	return e, nil
}

// Transition records a status change with from/to metadata merged into
// extra.
func (l *Log) Transition(ctx context.Context, s core.AuditStore, bookingID string, action core.AuditAction, actor string, from, to core.BookingStatus, extra map[string]any) (core.AuditEntry, error) {
	meta := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		meta[k] = v
	}
	if from != "" {
		meta[KeyFrom] = string(from)
	}
	meta[KeyTo] = string(to)
	return l.Record(ctx, s, bookingID, action, actor, meta)
}

// Trail returns the booking's entries in insertion order.
func (l *Log) Trail(ctx context.Context, s core.AuditStore, bookingID string) ([]core.AuditEntry, error) {
	entries, err := s.ListAudit(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return entries, nil
}
