/*
Package postgres provides the production implementation of core.Store on
PostgreSQL, using pgx.

PURPOSE:
  Same contract as the in-memory and SQLite stores, with database-level
  concurrency control so that several engine processes can share one
  database:
  - Reads made through a Tx lock their rows (SELECT ... FOR UPDATE).
  - Versioned updates detect lost updates across processes.
  - Serialization failures and deadlocks surface as
    core.ErrConcurrencyConflict, which the engine retries.

SCHEMA:
  Embedded SQL files under migrations/, applied in filename order by
  Migrate under a Postgres advisory lock. See migrations/0001_init.sql.

ERROR MAPPING:
  23505 unique_violation      -> core.ErrDuplicate
  23514 check_violation       -> core.ErrInvariantViolation
  40001 serialization_failure -> core.ErrConcurrencyConflict
  40P01 deadlock_detected     -> core.ErrConcurrencyConflict

USAGE:
  pool, err := postgres.Connect(ctx, dsn)
  if err := postgres.Migrate(ctx, pool); err != nil { ... }
  store := postgres.New(pool)
*/
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/core"
)

// Connect opens a pool and verifies the database answers.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// =============================================================================
// MIGRATIONS
// =============================================================================

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationLockID int64 = 724110031

// Migrate runs embedded SQL migrations in filename order. Applied files are
// recorded in schema_migrations and skipped on later runs.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockID)
	}()

	if _, err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, name := range names {
		var applied bool
		if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		body, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		stmt := strings.TrimSpace(string(body))
		if stmt == "" {
			continue
		}
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := conn.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// =============================================================================
// STORE
// =============================================================================

// Store implements core.Store on a pgx pool.
type Store struct {
	queries
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn in a READ COMMITTED transaction whose reads lock rows.
func (s *Store) WithTx(ctx context.Context, fn func(tx core.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(fmt.Errorf("begin tx: %w", err))
	}
	if err := fn(queries{db: tx, forUpdate: true}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

var _ core.Store = (*Store)(nil)

// =============================================================================
// QUERIES - core.Tx over the pool or a pgx.Tx
// =============================================================================

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db        dbtx
	forUpdate bool
}

func (q queries) lock() string {
	if q.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

// --- bookings ---

func (q queries) GetBooking(ctx context.Context, id string) (core.Booking, error) {
	var data []byte
	err := q.db.QueryRow(ctx, `SELECT booking FROM bookings WHERE id = $1`+q.lock(), id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Booking{}, core.NotFound("booking", id)
	}
	if err != nil {
		return core.Booking{}, mapError(fmt.Errorf("get booking: %w", err))
	}
	return decodeBooking(data)
}

func (q queries) InsertBooking(ctx context.Context, b core.Booking) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode booking: %w", err)
	}
	_, err = q.db.Exec(ctx, `
INSERT INTO bookings (id, property_id, room_type_id, guest_id, status, source,
	stay_start, stay_end, version, booking, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::text::date, $8::text::date, $9, $10, $11, $12)`,
		b.ID, b.PropertyID, b.RoomTypeID, b.Guest.ID, string(b.Status), string(b.Source),
		b.Stay.Start.String(), b.Stay.End.String(), b.Version, data, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("insert booking: %w", err))
	}
	return nil
}

func (q queries) UpdateBooking(ctx context.Context, b core.Booking) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode booking: %w", err)
	}
	tag, err := q.db.Exec(ctx, `
UPDATE bookings
SET property_id = $1, room_type_id = $2, guest_id = $3, status = $4, source = $5,
	stay_start = $6::text::date, stay_end = $7::text::date, version = $8, booking = $9, updated_at = $10
WHERE id = $11 AND version = $12`,
		b.PropertyID, b.RoomTypeID, b.Guest.ID, string(b.Status), string(b.Source),
		b.Stay.Start.String(), b.Stay.End.String(), b.Version, data, b.UpdatedAt,
		b.ID, b.Version-1,
	)
	if err != nil {
		return mapError(fmt.Errorf("update booking: %w", err))
	}
	return q.checkVersioned(ctx, tag, "booking", `SELECT version FROM bookings WHERE id = $1`, b.ID)
}

func (q queries) ListBookings(ctx context.Context, filter core.BookingFilter) ([]core.Booking, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.PropertyID != "" {
		where = append(where, "property_id = "+arg(filter.PropertyID))
	}
	if filter.RoomTypeID != "" {
		where = append(where, "room_type_id = "+arg(filter.RoomTypeID))
	}
	if filter.GuestID != "" {
		where = append(where, "guest_id = "+arg(filter.GuestID))
	}
	if filter.Source != "" {
		where = append(where, "source = "+arg(string(filter.Source)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if r := filter.StayOverlaps; r != nil {
		where = append(where, "stay_start < "+arg(r.End.String())+"::text::date AND stay_end > "+arg(r.Start.String())+"::text::date")
	}

	query := "SELECT booking FROM bookings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(fmt.Errorf("list bookings: %w", err))
	}
	defer rows.Close()

	out := make([]core.Booking, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b, err := decodeBooking(data)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- inventory ---

func (q queries) LoadDays(ctx context.Context, roomTypeID string, dates []core.Date) (map[core.Date]core.InventoryDay, error) {
	out := make(map[core.Date]core.InventoryDay, len(dates))
	if len(dates) == 0 {
		return out, nil
	}
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = d.String()
	}
	// ORDER BY keeps row-lock acquisition in the same order as the
	// in-process key locks.
	rows, err := q.db.Query(ctx, `
SELECT to_char(date, 'YYYY-MM-DD'), total_capacity, holds, confirmed, version
FROM inventory_days
WHERE room_type_id = $1 AND date = ANY($2::text[]::date[])
ORDER BY date`+q.lock(),
		roomTypeID, keys,
	)
	if err != nil {
		return nil, mapError(fmt.Errorf("load inventory: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var date string
		day := core.InventoryDay{RoomTypeID: roomTypeID}
		if err := rows.Scan(&date, &day.TotalCapacity, &day.Holds, &day.Confirmed, &day.Version); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		if day.Date, err = core.ParseDate(date); err != nil {
			return nil, err
		}
		out[day.Date] = day
	}
	return out, rows.Err()
}

func (q queries) SaveDays(ctx context.Context, days []core.InventoryDay) error {
	for _, day := range days {
		if day.Version == 1 {
			_, err := q.db.Exec(ctx, `
INSERT INTO inventory_days (room_type_id, date, total_capacity, holds, confirmed, version)
VALUES ($1, $2::text::date, $3, $4, $5, 1)`,
				day.RoomTypeID, day.Date.String(), day.TotalCapacity, day.Holds, day.Confirmed,
			)
			if isUniqueViolation(err) {
				return core.Conflict("inventory %s/%s was created concurrently", day.RoomTypeID, day.Date)
			}
			if err != nil {
				return mapError(fmt.Errorf("insert inventory day: %w", err))
			}
			continue
		}
		tag, err := q.db.Exec(ctx, `
UPDATE inventory_days
SET total_capacity = $1, holds = $2, confirmed = $3, version = $4
WHERE room_type_id = $5 AND date = $6::text::date AND version = $7`,
			day.TotalCapacity, day.Holds, day.Confirmed, day.Version,
			day.RoomTypeID, day.Date.String(), day.Version-1,
		)
		if err != nil {
			return mapError(fmt.Errorf("update inventory day: %w", err))
		}
		if tag.RowsAffected() == 0 {
			return core.Conflict("inventory %s/%s changed concurrently", day.RoomTypeID, day.Date)
		}
	}
	return nil
}

// --- holds ---

const holdColumns = `token, booking_id, property_id, room_type_id,
	to_char(stay_start, 'YYYY-MM-DD'), to_char(stay_end, 'YYYY-MM-DD'),
	rooms, status, expires_at, version, created_at, updated_at`

func (q queries) GetHold(ctx context.Context, token string) (core.HoldRecord, error) {
	h, err := scanHold(q.db.QueryRow(ctx, `SELECT `+holdColumns+` FROM holds WHERE token = $1`+q.lock(), token))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.HoldRecord{}, core.NotFound("hold", token)
	}
	return h, err
}

func (q queries) InsertHold(ctx context.Context, h core.HoldRecord) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO holds (token, booking_id, property_id, room_type_id, stay_start, stay_end,
	rooms, status, expires_at, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::text::date, $6::text::date, $7, $8, $9, $10, $11, $12)`,
		h.Token, h.BookingID, h.PropertyID, h.RoomTypeID, h.Stay.Start.String(), h.Stay.End.String(),
		h.Rooms, string(h.Status), h.ExpiresAt, h.Version, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("insert hold: %w", err))
	}
	return nil
}

func (q queries) UpdateHold(ctx context.Context, h core.HoldRecord) error {
	tag, err := q.db.Exec(ctx, `
UPDATE holds SET status = $1, expires_at = $2, version = $3, updated_at = $4
WHERE token = $5 AND version = $6`,
		string(h.Status), h.ExpiresAt, h.Version, h.UpdatedAt, h.Token, h.Version-1,
	)
	if err != nil {
		return mapError(fmt.Errorf("update hold: %w", err))
	}
	return q.checkVersioned(ctx, tag, "hold", `SELECT version FROM holds WHERE token = $1`, h.Token)
}

// ListExpiredHolds never locks: the sweep re-reads each hold under lock
// before expiring it.
func (q queries) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]core.HoldRecord, error) {
	query := `SELECT ` + holdColumns + ` FROM holds
WHERE status = 'ACTIVE' AND expires_at < $1
ORDER BY expires_at ASC, token ASC`
	args := []any{now}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(fmt.Errorf("list expired holds: %w", err))
	}
	defer rows.Close()

	out := make([]core.HoldRecord, 0)
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- payments ---

const paymentColumns = `id, booking_id, amount::text, currency, method, status,
	COALESCE(external_txn_id, ''), COALESCE(refund_of, ''), COALESCE(reason, ''), created_at`

func (q queries) AppendPayment(ctx context.Context, p core.Payment) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO payments (id, booking_id, amount, currency, method, status,
	external_txn_id, refund_of, reason, created_at)
VALUES ($1, $2, $3::text::numeric, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10)`,
		p.ID, p.BookingID, p.Amount.String(), p.Currency, string(p.Method), string(p.Status),
		p.ExternalTxnID, p.RefundOf, p.Reason, p.CreatedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("append payment: %w", err))
	}
	return nil
}

func (q queries) GetPayment(ctx context.Context, id string) (core.Payment, error) {
	p, err := scanPayment(q.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Payment{}, core.NotFound("payment", id)
	}
	return p, err
}

func (q queries) ListPayments(ctx context.Context, bookingID string) ([]core.Payment, error) {
	rows, err := q.db.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 ORDER BY seq ASC`, bookingID)
	if err != nil {
		return nil, mapError(fmt.Errorf("list payments: %w", err))
	}
	defer rows.Close()

	out := make([]core.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- audit ---

func (q queries) AppendAudit(ctx context.Context, e core.AuditEntry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	_, err = q.db.Exec(ctx, `
INSERT INTO audit_log (id, booking_id, action, actor, ts, metadata)
VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.BookingID, string(e.Action), e.Actor, e.Timestamp, meta,
	)
	if err != nil {
		return mapError(fmt.Errorf("append audit entry: %w", err))
	}
	return nil
}

func (q queries) ListAudit(ctx context.Context, bookingID string) ([]core.AuditEntry, error) {
	rows, err := q.db.Query(ctx, `
SELECT id, booking_id, action, actor, ts, metadata
FROM audit_log WHERE booking_id = $1 ORDER BY seq ASC`, bookingID)
	if err != nil {
		return nil, mapError(fmt.Errorf("list audit entries: %w", err))
	}
	defer rows.Close()

	out := make([]core.AuditEntry, 0)
	for rows.Next() {
		var e core.AuditEntry
		var action string
		var meta []byte
		if err := rows.Scan(&e.ID, &e.BookingID, &action, &e.Actor, &e.Timestamp, &meta); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = core.AuditAction(action)
		e.Timestamp = e.Timestamp.UTC()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func (q queries) checkVersioned(ctx context.Context, tag pgconn.CommandTag, kind, versionQuery, id string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var version int
	err := q.db.QueryRow(ctx, versionQuery, id).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.NotFound(kind, id)
	}
	if err != nil {
		return mapError(fmt.Errorf("read %s version: %w", kind, err))
	}
	return core.Conflict("%s %s: stored version %d changed concurrently", kind, id, version)
}

func scanHold(row pgx.Row) (core.HoldRecord, error) {
	var h core.HoldRecord
	var start, end, status string
	if err := row.Scan(&h.Token, &h.BookingID, &h.PropertyID, &h.RoomTypeID, &start, &end,
		&h.Rooms, &status, &h.ExpiresAt, &h.Version, &h.CreatedAt, &h.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.HoldRecord{}, err
		}
		return core.HoldRecord{}, mapError(fmt.Errorf("scan hold: %w", err))
	}
	var err error
	if h.Stay.Start, err = core.ParseDate(start); err != nil {
		return core.HoldRecord{}, err
	}
	if h.Stay.End, err = core.ParseDate(end); err != nil {
		return core.HoldRecord{}, err
	}
	h.Status = core.HoldStatus(status)
	h.ExpiresAt = h.ExpiresAt.UTC()
	h.CreatedAt = h.CreatedAt.UTC()
	h.UpdatedAt = h.UpdatedAt.UTC()
	return h, nil
}

func scanPayment(row pgx.Row) (core.Payment, error) {
	var p core.Payment
	var amount, method, status string
	if err := row.Scan(&p.ID, &p.BookingID, &amount, &p.Currency, &method, &status,
		&p.ExternalTxnID, &p.RefundOf, &p.Reason, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Payment{}, err
		}
		return core.Payment{}, mapError(fmt.Errorf("scan payment: %w", err))
	}
	v, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Payment{}, fmt.Errorf("parse payment amount %q: %w", amount, err)
	}
	p.Amount = v
	p.Method = core.PaymentMethod(method)
	p.Status = core.PaymentStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func decodeBooking(data []byte) (core.Booking, error) {
	var b core.Booking
	if err := json.Unmarshal(data, &b); err != nil {
		return core.Booking{}, fmt.Errorf("decode booking: %w", err)
	}
	return b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// mapError translates Postgres error codes into the core taxonomy.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", core.ErrDuplicate, pgErr.ConstraintName)
	case "23514":
		return fmt.Errorf("%w: %s", core.ErrInvariantViolation, pgErr.ConstraintName)
	case "40001", "40P01":
		return core.Conflict("%s", pgErr.Message)
	}
	return err
}
