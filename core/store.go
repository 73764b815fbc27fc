/*
store.go - Persistence interfaces for the booking engine

PURPOSE:
  Defines the interface between the engine and the database. A single
  transaction spans bookings, inventory days, hold records, payments and
  audit entries so that a state change, its inventory mutation and its
  audit entry commit together or not at all.

KEY INTERFACES:
  BookingStore:   Booking rows keyed by id
  InventoryStore: InventoryDay rows keyed by (room type, date)
  HoldStore:      HoldRecord rows keyed by token
  PaymentStore:   Append-only payments, insertion-ordered per booking
  AuditStore:     Append-only audit entries, insertion-ordered per booking
  Tx:             All of the above, bound to one transaction
  Store:          Tx outside a transaction, plus WithTx

VERSIONING CONTRACT:
  Mutable rows carry a Version. Inserts are written with Version 1. An
  update carries the incremented version and succeeds only if the stored
  version is exactly one less; otherwise the store returns
  ErrConcurrencyConflict. Payments and audit entries have no update path.

LOCKING:
  Reads made through a Tx lock the rows they return where the backend
  supports it (Postgres: SELECT ... FOR UPDATE). The inventory ledger also
  serializes on an in-process per-key lock arena (keylock.go).

IMPLEMENTATIONS:
  - core/store/memory.go: In-memory, staged writes applied at commit
  - store/sqlite/sqlite.go: SQLite via database/sql
  - store/postgres/postgres.go: Postgres via pgx

SEE ALSO:
  - inventory/ledger.go: Uses InventoryStore
  - payment/ledger.go: Uses PaymentStore
  - booking/engine.go: Uses Store.WithTx for every mutating operation
*/
package core

import (
	"context"
	"time"
)

// =============================================================================
// COMPONENT STORES
// =============================================================================

type BookingStore interface {
	// GetBooking returns ErrNotFound when the id is unknown.
	GetBooking(ctx context.Context, id string) (Booking, error)
	InsertBooking(ctx context.Context, b Booking) error
	UpdateBooking(ctx context.Context, b Booking) error
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
}

type InventoryStore interface {
	// LoadDays returns the stored rows for the given dates, keyed by date.
	// Dates with no row are absent from the map.
	LoadDays(ctx context.Context, roomTypeID string, dates []Date) (map[Date]InventoryDay, error)

	// SaveDays writes every row. Version 1 inserts; higher versions update.
	SaveDays(ctx context.Context, days []InventoryDay) error
}

type HoldStore interface {
	// GetHold returns ErrNotFound when the token is unknown.
	GetHold(ctx context.Context, token string) (HoldRecord, error)
	InsertHold(ctx context.Context, h HoldRecord) error
	UpdateHold(ctx context.Context, h HoldRecord) error

	// ListExpiredHolds returns ACTIVE holds with ExpiresAt strictly before
	// now, oldest first, at most limit rows.
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]HoldRecord, error)
}

// PaymentStore is APPEND-ONLY. There is no update and no delete.
type PaymentStore interface {
	AppendPayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id string) (Payment, error)

	// ListPayments returns a booking's payments in insertion order.
	ListPayments(ctx context.Context, bookingID string) ([]Payment, error)
}

// AuditStore is APPEND-ONLY.
type AuditStore interface {
	AppendAudit(ctx context.Context, e AuditEntry) error

	// ListAudit returns a booking's entries in insertion order.
	ListAudit(ctx context.Context, bookingID string) ([]AuditEntry, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// Tx is every component store bound to one transaction.
type Tx interface {
	BookingStore
	InventoryStore
	HoldStore
	PaymentStore
	AuditStore
}

// Store is the engine's persistence collaborator.
type Store interface {
	Tx

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through tx is discarded.
	// If fn returns nil, every write commits atomically.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
