/*
Package booking is the booking lifecycle state machine.

PURPOSE:
  The Engine owns every booking transition. Each operation applies its
  status change, its inventory mutation and exactly one audit entry as one
  store transaction; no partial state is ever observable.

TRANSITIONS (see transitions.go):
  HOLD -> PENDING -> CONFIRMED -> CHECKED_IN -> CHECKED_OUT
  HOLD/PENDING/CONFIRMED -> CANCELLED | REJECTED
  CONFIRMED -> NO_SHOW (after the check-in date has elapsed)

LOCK ORDER:
  1. the booking id (engine-wide KeyLocks)
  2. every (room type, date) key the operation touches, ascending
  3. the store transaction
  Locks are released after commit. The hold sweep takes the same locks
  through ExpireHold, so exactly one of {confirm, expire} wins a race.

RETRIES:
  Operations that fail with ErrConcurrencyConflict (lock wait exhausted or
  a version check lost) are retried under RetryPolicy. Nothing else is.

EVENTS:
  Events are published to the Notifier only after commit. A failed publish
  is logged and never undoes the operation.

SEE ALSO:
  - lifecycle.go: create, submit, confirm, check-in, check-out, modify
  - closing.go: cancel, reject, no-show, hold expiry
  - payments.go: payment and refund operations
  - queries.go: read-only operations and inventory administration
*/
package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/warp/lodging-engine/audit"
	"github.com/warp/lodging-engine/cancellation"
	"github.com/warp/lodging-engine/core"
	"github.com/warp/lodging-engine/inventory"
	"github.com/warp/lodging-engine/payment"
)

// DefaultCheckInHour is the local hour from which guests may arrive. The
// cancellation gap is measured to this instant on the check-in date.
const DefaultCheckInHour = 15

// DefaultMaxStayNights bounds the length of a single booking.
const DefaultMaxStayNights = 365

// MaxInventoryRangeNights bounds capacity and availability ranges.
const MaxInventoryRangeNights = 2 * 366

// PolicySource resolves cancellation policies. An empty id resolves to the
// default policy.
type PolicySource interface {
	Get(id string) (cancellation.Policy, error)
}

type Engine struct {
	store    core.Store
	clock    core.Clock
	ledger   *inventory.Ledger
	holds    *inventory.Holds
	payments *payment.Ledger
	audit    *audit.Log
	rates    Pricer
	policies PolicySource
	gateway  payment.Gateway
	notifier Notifier
	log      *slog.Logger
	validate *validator.Validate

	bookingLocks *core.KeyLocks
	lockWait     time.Duration
	retry        core.RetryPolicy
	holdTTL      time.Duration
	checkInHour  int
	maxStay      int
	loc          *time.Location
}

type Option func(*Engine)

func WithClock(c core.Clock) Option          { return func(e *Engine) { e.clock = c } }
func WithHoldTTL(ttl time.Duration) Option   { return func(e *Engine) { e.holdTTL = ttl } }
func WithRates(p Pricer) Option              { return func(e *Engine) { e.rates = p } }
func WithPolicies(p PolicySource) Option     { return func(e *Engine) { e.policies = p } }
func WithGateway(g payment.Gateway) Option   { return func(e *Engine) { e.gateway = g } }
func WithNotifier(n Notifier) Option         { return func(e *Engine) { e.notifier = n } }
func WithLogger(l *slog.Logger) Option       { return func(e *Engine) { e.log = l } }
func WithLockWait(d time.Duration) Option    { return func(e *Engine) { e.lockWait = d } }
func WithRetry(p core.RetryPolicy) Option    { return func(e *Engine) { e.retry = p } }
func WithCheckInHour(hour int) Option        { return func(e *Engine) { e.checkInHour = hour } }
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }
func WithMaxStayNights(n int) Option         { return func(e *Engine) { e.maxStay = n } }

// NewEngine wires the engine over store. Without options it uses the
// system clock, a 15 minute hold TTL, the preset cancellation policies and
// an approving manual gateway. Without WithRates only channel-priced
// bookings (CreateRequest.TotalPrice) can be created.
func NewEngine(store core.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		clock:        core.NewSystemClock(),
		policies:     cancellation.NewCatalog(),
		gateway:      payment.NewManualGateway(),
		notifier:     nopNotifier{},
		log:          slog.Default(),
		validate:     newValidator(),
		bookingLocks: core.NewKeyLocks(),
		lockWait:     inventory.DefaultLockWait,
		retry:        core.DefaultRetry,
		holdTTL:      inventory.DefaultHoldTTL,
		checkInHour:  DefaultCheckInHour,
		maxStay:      DefaultMaxStayNights,
		loc:          time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ledger = inventory.NewLedger(inventory.WithLockWait(e.lockWait), inventory.WithLedgerLogger(e.log))
	e.holds = inventory.NewHolds(e.ledger, e.clock, inventory.WithHoldTTL(e.holdTTL))
	e.payments = payment.NewLedger(e.clock)
	e.audit = audit.NewLog(e.clock)
	return e
}

// Holds exposes the hold manager so a Sweeper can be built over the same
// ledger and clock.
func (e *Engine) Holds() *inventory.Holds { return e.holds }

// Store returns the engine's store.
func (e *Engine) Store() core.Store { return e.store }

// Today is the current date at the property.
func (e *Engine) Today() core.Date { return e.today() }

// NewSweeper returns a sweeper that expires holds through this engine.
func (e *Engine) NewSweeper(opts ...inventory.SweeperOption) *inventory.Sweeper {
	opts = append([]inventory.SweeperOption{inventory.WithSweepLogger(e.log)}, opts...)
	return inventory.NewSweeper(e.holds, e.store, e, opts...)
}

// =============================================================================
// TRANSACTION PLUMBING
// =============================================================================

// withLocks takes the booking lock, asks plan for the inventory it will
// touch, takes those keys, then runs fn in one transaction.
func (e *Engine) withLocks(ctx context.Context, bookingID string, plan func() ([]core.Allocation, error), fn func(tx core.Tx) error) error {
	unlockBooking, err := e.bookingLocks.Lock(ctx, e.lockWait, bookingID)
	if err != nil {
		return err
	}
	defer unlockBooking()

	var allocs []core.Allocation
	if plan != nil {
		if allocs, err = plan(); err != nil {
			return err
		}
	}
	unlockInventory, err := e.ledger.Lock(ctx, allocs...)
	if err != nil {
		return err
	}
	defer unlockInventory()

	return e.store.WithTx(ctx, fn)
}

// step is the body of a transition. It receives the booking as read inside
// the transaction, already checked against the transition table, and
// returns the updated booking plus the events to publish after commit.
type step func(tx core.Tx, b core.Booking) (core.Booking, []Event, error)

// mutate runs one transition with retries. plan returns the allocations the
// step will touch, computed from the booking as read before the
// transaction; the step fails with a conflict if the booking changed in
// between.
func (e *Engine) mutate(ctx context.Context, id string, action Action, plan func(core.Booking) ([]core.Allocation, error), fn step) (core.Booking, error) {
	var out core.Booking
	var events []Event
	err := e.retry.Do(ctx, func() error {
		events = nil
		var seen core.Booking
		planner := func() ([]core.Allocation, error) {
			b, err := e.store.GetBooking(ctx, id)
			if err != nil {
				return nil, err
			}
			if err := checkTransition(b, action); err != nil {
				return nil, err
			}
			seen = b
			if plan == nil {
				return nil, nil
			}
			return plan(b)
		}
		return e.withLocks(ctx, id, planner, func(tx core.Tx) error {
			b, err := tx.GetBooking(ctx, id)
			if err != nil {
				return err
			}
			if b.Version != seen.Version {
				return core.Conflict("booking %s changed while locking", id)
			}
			if err := checkTransition(b, action); err != nil {
				return err
			}
			next, evs, err := fn(tx, b)
			if err != nil {
				return err
			}
			out, events = next, evs
			return nil
		})
	})
	if err != nil {
		e.logFailure(ctx, id, string(action), err)
		return core.Booking{}, err
	}
	e.publish(ctx, events)
	return out, nil
}

// save bumps the version and persists b.
func (e *Engine) save(ctx context.Context, tx core.Tx, b core.Booking) (core.Booking, error) {
	b.Version++
	b.UpdatedAt = e.clock.Now()
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return core.Booking{}, err
	}
	return b, nil
}

func (e *Engine) logFailure(ctx context.Context, id, op string, err error) {
	switch {
	case core.IsFatal(err):
		e.log.Error("booking operation aborted",
			"component", "booking", "booking_id", id, "op", op, "actor", ActorFrom(ctx), "error", err)
	case core.IsRetryable(err):
		e.log.Warn("booking operation gave up after retries",
			"component", "booking", "booking_id", id, "op", op, "error", err)
	case core.IsClientError(err) || core.IsNotFound(err):
		e.log.Debug("booking operation rejected",
			"component", "booking", "booking_id", id, "op", op, "error", err)
	default:
		e.log.Error("booking operation failed",
			"component", "booking", "booking_id", id, "op", op, "error", err)
	}
}

func (e *Engine) today() core.Date {
	return core.DateOf(e.clock.Now(), e.loc)
}

func (e *Engine) checkInInstant(b core.Booking) time.Time {
	return b.Stay.Start.At(e.checkInHour, e.loc)
}

func timePtr(t time.Time) *time.Time { return &t }
