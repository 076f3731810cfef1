package shift

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tokoku/pos-core/internal/platform/db"
)

// Repository persists shifts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	opts db.TxOptions
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, opts db.TxOptions) *Repository {
	return &Repository{pool: pool, opts: opts}
}

// NewTxStore binds the shift statements to q, normally a transaction shared
// with the stock ledger.
func NewTxStore(q db.Querier) Store {
	return &txStore{q: q}
}

type txStore struct {
	q db.Querier
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	if r == nil {
		return errors.New("shift repository not initialised")
	}
	return db.RunInTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{q: tx})
	})
}

const shiftColumns = `id, cashier_id, opening_balance, expected_balance, closing_balance,
COALESCE(opened_by, 0), COALESCE(closed_by, 0), opened_at, closed_at`

func scanShift(row pgx.Row) (Shift, error) {
	var (
		s       Shift
		closing decimal.NullDecimal
	)
	err := row.Scan(&s.ID, &s.CashierID, &s.OpeningBalance, &s.ExpectedBalance, &closing,
		&s.OpenedBy, &s.ClosedBy, &s.OpenedAt, &s.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Shift{}, ErrShiftNotFound
	}
	if err != nil {
		return Shift{}, err
	}
	if closing.Valid {
		s.ClosingBalance = &closing.Decimal
	}
	return s, nil
}

func (t *txStore) InsertShift(ctx context.Context, s Shift) (Shift, error) {
	return scanShift(t.q.QueryRow(ctx, `INSERT INTO shifts (cashier_id, opening_balance, expected_balance, opened_by, opened_at)
VALUES ($1,$2,$3,$4,$5) RETURNING `+shiftColumns, s.CashierID, s.OpeningBalance, s.ExpectedBalance, nullInt(s.OpenedBy), s.OpenedAt))
}

func (t *txStore) LockShift(ctx context.Context, id int64) (Shift, error) {
	return scanShift(t.q.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id=$1 FOR UPDATE`, id))
}

func (t *txStore) SetExpectedBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	tag, err := t.q.Exec(ctx, `UPDATE shifts SET expected_balance=$2 WHERE id=$1`, id, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrShiftNotFound
	}
	return nil
}

func (t *txStore) CloseShift(ctx context.Context, id int64, closing decimal.Decimal, closedBy int64, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE shifts SET closing_balance=$2, closed_by=$3, closed_at=$4 WHERE id=$1 AND closed_at IS NULL`,
		id, closing, nullInt(closedBy), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrShiftNotFound
	}
	return nil
}

func (t *txStore) InsertCashEntry(ctx context.Context, e CashEntry) (CashEntry, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO shift_cash_entries (shift_id, direction, amount, description, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, e.ShiftID, string(e.Direction), e.Amount, e.Description, nullInt(e.ActorID), e.CreatedAt).Scan(&e.ID)
	return e, err
}

// GetShift loads a shift without locking it.
func (r *Repository) GetShift(ctx context.Context, id int64) (Shift, error) {
	return scanShift(r.pool.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id=$1`, id))
}

// ListShifts lists shifts newest first.
func (r *Repository) ListShifts(ctx context.Context, openOnly bool) ([]Shift, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE (NOT $1 OR closed_at IS NULL) ORDER BY id DESC`, openOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	shifts := []Shift{}
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, s)
	}
	return shifts, rows.Err()
}

// ListCashEntries returns manual drawer entries in insertion order.
func (r *Repository) ListCashEntries(ctx context.Context, shiftID int64) ([]CashEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, shift_id, direction, amount, description, COALESCE(actor_id, 0), created_at
FROM shift_cash_entries WHERE shift_id=$1 ORDER BY id`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []CashEntry{}
	for rows.Next() {
		var e CashEntry
		if err := rows.Scan(&e.ID, &e.ShiftID, &e.Direction, &e.Amount, &e.Description, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
