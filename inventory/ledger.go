/*
Package inventory provides room-night capacity bookkeeping and holds.

PURPOSE:
  The Ledger keeps per (room type, date) counters: total capacity, active
  holds and confirmed allocations. Free-to-sell is always derived as
  total - holds - confirmed; it is never stored separately.

KEY CONCEPTS:
  - Room-night: one room for one calendar date, the atomic unit.
  - Hold: capacity reserved but not yet guaranteed (holds counter).
  - Commit: a hold turned into a confirmed allocation. Free-to-sell does
    not change because the capacity was already reserved.
  - Release: undo of a hold or of a confirmed allocation.

CRITICAL INVARIANTS:
  1. ALL-OR-NOTHING: TryHold verifies every date before mutating any of
     them. A stay is never partially held.
  2. NEVER NEGATIVE: a counter or free-to-sell that would drop below zero
     raises InvariantError. It is never clamped.
  3. PER-KEY SERIALIZATION: callers take Lock() on every key they mutate,
     in ascending (room type, date) order, and hold it until their store
     transaction commits.

USAGE:
  unlock, err := ledger.Lock(ctx, alloc)
  if err != nil {
      return err
  }
  defer unlock()
  err = store.WithTx(ctx, func(tx core.Tx) error {
      return ledger.TryHold(ctx, tx, alloc)
  })

SEE ALSO:
  - holds.go: HoldRecord lifecycle over the ledger
  - sweeper.go: Periodic expiry of holds
  - core/keylock.go: The lock arena
*/
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/warp/lodging-engine/core"
)

// ReleaseFrom names the counter a release undoes.
type ReleaseFrom string

const (
	FromHold      ReleaseFrom = "hold"
	FromConfirmed ReleaseFrom = "confirmed"
)

// DefaultLockWait bounds how long Lock waits for a contended key.
const DefaultLockWait = 2 * time.Second

// Ledger mutates InventoryDay rows. It holds no inventory state of its own;
// the rows live in the store and the ledger owns only the lock arena.
type Ledger struct {
	locks    *core.KeyLocks
	lockWait time.Duration
	log      *slog.Logger
}

type LedgerOption func(*Ledger)

// WithLockWait overrides DefaultLockWait.
func WithLockWait(d time.Duration) LedgerOption {
	return func(l *Ledger) { l.lockWait = d }
}

func WithLedgerLogger(log *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.log = log }
}

func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		locks:    core.NewKeyLocks(),
		lockWait: DefaultLockWait,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// =============================================================================
// LOCKING
// =============================================================================

// Lock acquires the key of every night of every allocation. Keys sort by
// room type then ISO date, so acquisition order is ascending date within a
// room type for every caller.
func (l *Ledger) Lock(ctx context.Context, allocs ...core.Allocation) (func(), error) {
	var keys []string
	for _, a := range allocs {
		for _, d := range a.Stay.Dates() {
			keys = append(keys, lockKey(a.RoomTypeID, d))
		}
	}
	return l.locks.Lock(ctx, l.lockWait, keys...)
}

// LockDay acquires a single key, for capacity administration.
func (l *Ledger) LockDay(ctx context.Context, roomTypeID string, date core.Date) (func(), error) {
	return l.locks.Lock(ctx, l.lockWait, lockKey(roomTypeID, date))
}

func lockKey(roomTypeID string, d core.Date) string {
	return roomTypeID + "|" + d.String()
}

// =============================================================================
// HOLD / COMMIT / RELEASE
// =============================================================================

// TryHold reserves rooms on every night of the stay, or on none of them.
// The first date without enough free-to-sell is reported in a
// *core.CapacityError. Dates with no inventory row have zero capacity.
func (l *Ledger) TryHold(ctx context.Context, s core.InventoryStore, a core.Allocation) error {
	if err := a.Validate(); err != nil {
		return err
	}
	dates := a.Stay.Dates()
	rows, err := s.LoadDays(ctx, a.RoomTypeID, dates)
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}

	// Verify every date before touching any of them.
	for _, d := range dates {
		day, ok := rows[d]
		if !ok {
			return &core.CapacityError{RoomTypeID: a.RoomTypeID, Date: d, Requested: a.Rooms, Available: 0}
		}
		if free := day.FreeToSell(); free < a.Rooms {
			return &core.CapacityError{RoomTypeID: a.RoomTypeID, Date: d, Requested: a.Rooms, Available: max(free, 0)}
		}
	}

	return l.apply(ctx, s, a, rows, func(day *core.InventoryDay) {
		day.Holds += a.Rooms
	})
}

// CommitHold converts held rooms into confirmed rooms on every night.
func (l *Ledger) CommitHold(ctx context.Context, s core.InventoryStore, a core.Allocation) error {
	rows, err := l.loadExisting(ctx, s, a, "holds")
	if err != nil {
		return err
	}
	return l.apply(ctx, s, a, rows, func(day *core.InventoryDay) {
		day.Holds -= a.Rooms
		day.Confirmed += a.Rooms
	})
}

// Release undoes a hold or a confirmed allocation on every night.
func (l *Ledger) Release(ctx context.Context, s core.InventoryStore, a core.Allocation, from ReleaseFrom) error {
	counter := string(from)
	if from != FromHold && from != FromConfirmed {
		return core.Invalid("release_from", "unknown counter %q", from)
	}
	rows, err := l.loadExisting(ctx, s, a, counter)
	if err != nil {
		return err
	}
	return l.apply(ctx, s, a, rows, func(day *core.InventoryDay) {
		if from == FromHold {
			day.Holds -= a.Rooms
		} else {
			day.Confirmed -= a.Rooms
		}
	})
}

// loadExisting loads rows that must already exist. A missing row means the
// caller is decrementing a counter that was never incremented.
func (l *Ledger) loadExisting(ctx context.Context, s core.InventoryStore, a core.Allocation, counter string) (map[core.Date]core.InventoryDay, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	dates := a.Stay.Dates()
	rows, err := s.LoadDays(ctx, a.RoomTypeID, dates)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	for _, d := range dates {
		if _, ok := rows[d]; !ok {
			return nil, l.violation(&core.InvariantError{RoomTypeID: a.RoomTypeID, Date: d, Counter: counter, Value: -a.Rooms})
		}
	}
	return rows, nil
}

// apply mutates every row, checks invariants on every row, then saves them
// all. Nothing is saved if any row fails.
func (l *Ledger) apply(ctx context.Context, s core.InventoryStore, a core.Allocation, rows map[core.Date]core.InventoryDay, mutate func(*core.InventoryDay)) error {
	dates := a.Stay.Dates()
	updated := make([]core.InventoryDay, 0, len(dates))
	for _, d := range dates {
		day := rows[d]
		mutate(&day)
		if ierr := checkInvariants(day); ierr != nil {
			return l.violation(ierr)
		}
		day.Version++
		updated = append(updated, day)
	}
	if err := s.SaveDays(ctx, updated); err != nil {
		return fmt.Errorf("save inventory: %w", err)
	}
	return nil
}

func checkInvariants(day core.InventoryDay) *core.InvariantError {
	switch {
	case day.Holds < 0:
		return &core.InvariantError{RoomTypeID: day.RoomTypeID, Date: day.Date, Counter: "holds", Value: day.Holds}
	case day.Confirmed < 0:
		return &core.InvariantError{RoomTypeID: day.RoomTypeID, Date: day.Date, Counter: "confirmed", Value: day.Confirmed}
	case day.FreeToSell() < 0:
		return &core.InvariantError{RoomTypeID: day.RoomTypeID, Date: day.Date, Counter: "free_to_sell", Value: day.FreeToSell()}
	}
	return nil
}

func (l *Ledger) violation(err *core.InvariantError) error {
	l.log.Error("inventory invariant violated",
		"component", "inventory",
		"room_type_id", err.RoomTypeID,
		"date", err.Date.String(),
		"counter", err.Counter,
		"value", err.Value,
	)
	return err
}

// =============================================================================
// CAPACITY ADMINISTRATION
// =============================================================================

// SetCapacity sets the total sellable rooms for one key. A total below the
// rooms already held or confirmed is rejected rather than overselling.
func (l *Ledger) SetCapacity(ctx context.Context, s core.InventoryStore, roomTypeID string, date core.Date, total int) (core.InventoryDay, error) {
	if roomTypeID == "" {
		return core.InventoryDay{}, core.Invalid("room_type_id", "is required")
	}
	if total < 0 {
		return core.InventoryDay{}, core.Invalid("total_capacity", "must not be negative, got %d", total)
	}
	rows, err := s.LoadDays(ctx, roomTypeID, []core.Date{date})
	if err != nil {
		return core.InventoryDay{}, fmt.Errorf("load inventory: %w", err)
	}
	day, ok := rows[date]
	if !ok {
		day = core.InventoryDay{RoomTypeID: roomTypeID, Date: date}
	}
	if committed := day.Holds + day.Confirmed; total < committed {
		return core.InventoryDay{}, core.Invalid("total_capacity",
			"%d is below the %d rooms already held or confirmed on %s", total, committed, date)
	}
	day.TotalCapacity = total
	day.Version++
	if err := s.SaveDays(ctx, []core.InventoryDay{day}); err != nil {
		return core.InventoryDay{}, fmt.Errorf("save inventory: %w", err)
	}
	return day, nil
}

// Availability returns one row per night of the stay. Nights with no stored
// row are reported with zero capacity.
func (l *Ledger) Availability(ctx context.Context, s core.InventoryStore, roomTypeID string, stay core.DateRange) ([]core.InventoryDay, error) {
	if err := stay.Validate(); err != nil {
		return nil, err
	}
	dates := stay.Dates()
	rows, err := s.LoadDays(ctx, roomTypeID, dates)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	out := make([]core.InventoryDay, 0, len(dates))
	for _, d := range dates {
		day, ok := rows[d]
		if !ok {
			day = core.InventoryDay{RoomTypeID: roomTypeID, Date: d}
		}
		out = append(out, day)
	}
	return out, nil
}
