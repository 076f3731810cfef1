package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoku/pos-core/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	opts db.TxOptions
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, opts db.TxOptions) *Repository {
	return &Repository{pool: pool, opts: opts}
}

// NewLedger binds the ledger statements to q, normally an open transaction
// shared with other modules.
func NewLedger(q db.Querier) Ledger {
	return &txLedger{q: q}
}

type txLedger struct {
	q db.Querier
}

// WithTx executes the callback inside a repeatable-read transaction with
// bounded lock waits.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Ledger) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.RunInTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, &txLedger{q: tx})
	})
}

const stockColumns = `id, product_id, branch_id, quantity, COALESCE(created_by, 0), created_at, updated_at`

func scanStock(row pgx.Row) (StockLevel, error) {
	var s StockLevel
	err := row.Scan(&s.ID, &s.ProductID, &s.BranchID, &s.Quantity, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLevel{}, ErrStockNotFound
	}
	return s, err
}

func (l *txLedger) FindStock(ctx context.Context, productID, branchID int64) (StockLevel, error) {
	return scanStock(l.q.QueryRow(ctx, `SELECT `+stockColumns+` FROM stock_levels WHERE product_id=$1 AND branch_id=$2`, productID, branchID))
}

func (l *txLedger) LockStock(ctx context.Context, productID, branchID int64) (StockLevel, error) {
	return scanStock(l.q.QueryRow(ctx, `SELECT `+stockColumns+` FROM stock_levels WHERE product_id=$1 AND branch_id=$2 FOR UPDATE`, productID, branchID))
}

func (l *txLedger) LockStockByID(ctx context.Context, stockID int64) (StockLevel, error) {
	return scanStock(l.q.QueryRow(ctx, `SELECT `+stockColumns+` FROM stock_levels WHERE id=$1 FOR UPDATE`, stockID))
}

func (l *txLedger) LockStocks(ctx context.Context, branchID int64, productIDs []int64) ([]StockLevel, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	rows, err := l.q.Query(ctx, `SELECT `+stockColumns+` FROM stock_levels WHERE branch_id=$1 AND product_id = ANY($2) ORDER BY id FOR UPDATE`, branchID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stocks []StockLevel
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

func (l *txLedger) InsertStock(ctx context.Context, stock StockLevel) (StockLevel, error) {
	created, err := scanStock(l.q.QueryRow(ctx, `INSERT INTO stock_levels (product_id, branch_id, quantity, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+stockColumns, stock.ProductID, stock.BranchID, stock.Quantity, nullInt(stock.CreatedBy), stock.CreatedAt, stock.UpdatedAt))
	if db.IsUniqueViolation(err) {
		return StockLevel{}, ErrStockExists
	}
	return created, err
}

func (l *txLedger) SetQuantity(ctx context.Context, stockID, quantity int64) error {
	tag, err := l.q.Exec(ctx, `UPDATE stock_levels SET quantity=$2, updated_at=NOW() WHERE id=$1`, stockID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStockNotFound
	}
	return nil
}

func (l *txLedger) AppendAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	err := l.q.QueryRow(ctx, `INSERT INTO stock_adjustments (stock_id, product_id, branch_id, direction, quantity, quantity_before, quantity_after, note, image_ref, transaction_id, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		adj.StockID, adj.ProductID, adj.BranchID, string(adj.Direction), adj.Quantity, adj.QuantityBefore, adj.QuantityAfter,
		adj.Note, nullString(adj.ImageRef), nullInt(adj.TransactionID), nullInt(adj.ActorID), adj.CreatedAt).Scan(&adj.ID)
	return adj, err
}

// ListStock lists stock rows, optionally narrowed by branch or product.
func (r *Repository) ListStock(ctx context.Context, filter StockFilter) ([]StockLevel, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stockColumns+` FROM stock_levels
WHERE ($1::bigint = 0 OR branch_id = $1) AND ($2::bigint = 0 OR product_id = $2)
ORDER BY branch_id, product_id`, filter.BranchID, filter.ProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stocks := []StockLevel{}
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

// ListAdjustments returns the newest entries for a stock row first.
func (r *Repository) ListAdjustments(ctx context.Context, stockID int64, limit int) ([]Adjustment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, stock_id, product_id, branch_id, direction, quantity, quantity_before, quantity_after, note,
COALESCE(image_ref, ''), COALESCE(transaction_id, 0), COALESCE(actor_id, 0), created_at
FROM stock_adjustments WHERE stock_id=$1 ORDER BY id DESC LIMIT $2`, stockID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	adjustments := []Adjustment{}
	for rows.Next() {
		var a Adjustment
		if err := rows.Scan(&a.ID, &a.StockID, &a.ProductID, &a.BranchID, &a.Direction, &a.Quantity, &a.QuantityBefore, &a.QuantityAfter,
			&a.Note, &a.ImageRef, &a.TransactionID, &a.ActorID, &a.CreatedAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

// VerifyLedger compares every stock row against the signed sum of its adjustments.
func (r *Repository) VerifyLedger(ctx context.Context) ([]Discrepancy, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.product_id, s.branch_id, s.quantity,
COALESCE(SUM(CASE WHEN a.direction = 'increase' THEN a.quantity ELSE -a.quantity END), 0)::bigint AS ledger
FROM stock_levels s
LEFT JOIN stock_adjustments a ON a.stock_id = s.id
GROUP BY s.id
HAVING s.quantity <> COALESCE(SUM(CASE WHEN a.direction = 'increase' THEN a.quantity ELSE -a.quantity END), 0)
ORDER BY s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Discrepancy
	for rows.Next() {
		var d Discrepancy
		if err := rows.Scan(&d.StockID, &d.ProductID, &d.BranchID, &d.Quantity, &d.LedgerQuantity); err != nil {
			return nil, err
		}
		out = append(out, d)
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
