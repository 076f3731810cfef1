package inventory

import "context"

// Ledger is the stock ledger as seen from inside one unit of work: current
// quantities per product and branch plus the append-only adjustment log.
// Lock methods hold the row until the surrounding transaction ends.
type Ledger interface {
	// FindStock reads a stock row without locking it.
	FindStock(ctx context.Context, productID, branchID int64) (StockLevel, error)
	// LockStock reads and locks the stock row for product and branch.
	LockStock(ctx context.Context, productID, branchID int64) (StockLevel, error)
	// LockStockByID reads and locks a stock row by id.
	LockStockByID(ctx context.Context, stockID int64) (StockLevel, error)
	// LockStocks locks the stock rows of productIDs at branch in ascending id
	// order. Missing rows are absent from the result.
	LockStocks(ctx context.Context, branchID int64, productIDs []int64) ([]StockLevel, error)
	// InsertStock creates a stock row; a duplicate returns ErrStockExists.
	InsertStock(ctx context.Context, stock StockLevel) (StockLevel, error)
	// SetQuantity overwrites the quantity of a stock row. Callers always pair
	// it with AppendAdjustment in the same unit of work.
	SetQuantity(ctx context.Context, stockID, quantity int64) error
	// AppendAdjustment writes one immutable ledger entry.
	AppendAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error)
}

// CurrentQuantity returns the quantity for product at branch, or
// ErrStockNotFound when no stock row exists.
func CurrentQuantity(ctx context.Context, l Ledger, productID, branchID int64) (int64, error) {
	stock, err := l.FindStock(ctx, productID, branchID)
	if err != nil {
		return 0, err
	}
	return stock.Quantity, nil
}
