package pos

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tokoku/pos-core/internal/catalog"
	"github.com/tokoku/pos-core/internal/inventory"
	"github.com/tokoku/pos-core/internal/platform/db"
	"github.com/tokoku/pos-core/internal/shift"
)

// Repository persists transactions in PostgreSQL and opens units of work
// spanning the stock ledger, the shift register and the catalog.
type Repository struct {
	pool *pgxpool.Pool
	opts db.TxOptions
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, opts db.TxOptions) *Repository {
	return &Repository{pool: pool, opts: opts}
}

// WithTx runs fn in one repeatable-read transaction. Lock timeouts,
// serialization failures and deadlocks rerun fn from the start.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if r == nil {
		return errors.New("pos repository not initialised")
	}
	return db.RunInTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, newPgTx(tx))
	})
}

type pgTx struct {
	q       db.Querier
	ledger  inventory.Ledger
	shifts  shift.Store
	catalog catalog.Reader
}

func newPgTx(q db.Querier) *pgTx {
	return &pgTx{
		q:       q,
		ledger:  inventory.NewLedger(q),
		shifts:  shift.NewTxStore(q),
		catalog: catalog.NewReader(q),
	}
}

func (t *pgTx) Ledger() inventory.Ledger { return t.ledger }
func (t *pgTx) Shifts() shift.Store      { return t.shifts }
func (t *pgTx) Catalog() catalog.Reader  { return t.catalog }

const transactionColumns = `id, branch_id, shift_id, discount_id, discount_kind, discount_amount, discount_value,
payment_method, payment_status, total_price, total_tendered, total_tax, amount_due,
COALESCE(refund_of, 0), refund_reason_code, COALESCE(refund_reason, ''),
is_deleted, COALESCE(deleted_by, 0), deleted_at, COALESCE(created_by, 0), created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t            Transaction
		discountID   *int64
		discountKind *string
		discountAmt  decimal.NullDecimal
		reasonCode   *int16
	)
	err := row.Scan(&t.ID, &t.BranchID, &t.ShiftID, &discountID, &discountKind, &discountAmt, &t.DiscountValue,
		&t.PaymentMethod, &t.PaymentStatus, &t.TotalPrice, &t.TotalTendered, &t.TotalTax, &t.AmountDue,
		&t.RefundOf, &reasonCode, &t.RefundReason,
		&t.Deleted, &t.DeletedBy, &t.DeletedAt, &t.CreatedBy, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return Transaction{}, err
	}
	if discountID != nil {
		snap := &DiscountSnapshot{ID: *discountID, Amount: discountAmt.Decimal}
		if discountKind != nil {
			snap.Kind = catalog.DiscountKind(*discountKind)
		}
		t.Discount = snap
	}
	if reasonCode != nil {
		code := RefundReason(*reasonCode)
		t.RefundReasonCode = &code
	}
	return t, nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr Transaction) (Transaction, error) {
	var (
		discountID   any
		discountKind any
		discountAmt  any
		reasonCode   any
	)
	if tr.Discount != nil {
		discountID, discountKind, discountAmt = tr.Discount.ID, string(tr.Discount.Kind), tr.Discount.Amount
	}
	if tr.RefundReasonCode != nil {
		reasonCode = int16(*tr.RefundReasonCode)
	}
	return scanTransaction(t.q.QueryRow(ctx, `INSERT INTO transactions (branch_id, shift_id, discount_id, discount_kind, discount_amount, discount_value,
payment_method, payment_status, total_price, total_tendered, total_tax, amount_due, refund_of, refund_reason_code, refund_reason, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17) RETURNING `+transactionColumns,
		tr.BranchID, tr.ShiftID, discountID, discountKind, discountAmt, tr.DiscountValue,
		string(tr.PaymentMethod), string(tr.PaymentStatus), tr.TotalPrice, tr.TotalTendered, tr.TotalTax, tr.AmountDue,
		nullInt(tr.RefundOf), reasonCode, nullString(tr.RefundReason), nullInt(tr.CreatedBy), tr.CreatedAt))
}

func (t *pgTx) InsertLines(ctx context.Context, lines []Line) ([]Line, error) {
	out := make([]Line, len(lines))
	for i, l := range lines {
		if err := t.q.QueryRow(ctx, `INSERT INTO transaction_lines (transaction_id, product_id, quantity, unit_price, subtotal)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, l.TransactionID, l.ProductID, l.Quantity, l.UnitPrice, l.Subtotal).Scan(&l.ID); err != nil {
			return nil, err
		}
		out[i] = l
	}
	return out, nil
}

func (t *pgTx) FindTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(t.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1`, id))
}

func (t *pgTx) LockTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(t.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1 FOR UPDATE`, id))
}

func (t *pgTx) MarkDeleted(ctx context.Context, id, actorID int64, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE transactions SET is_deleted=TRUE, deleted_by=$2, deleted_at=$3 WHERE id=$1 AND NOT is_deleted`, id, nullInt(actorID), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// GetTransaction loads a header without its lines.
func (r *Repository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1`, id))
}

// ListLines returns the lines of a transaction in entry order.
func (r *Repository) ListLines(ctx context.Context, transactionID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, transaction_id, product_id, quantity, unit_price, subtotal
FROM transaction_lines WHERE transaction_id=$1 ORDER BY id`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.TransactionID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListByShift lists headers of a shift in posting order.
func (r *Repository) ListByShift(ctx context.Context, shiftID int64, includeDeleted bool) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
WHERE shift_id=$1 AND ($2 OR NOT is_deleted) ORDER BY id`, shiftID, includeDeleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
