package memory

import (
	"context"
	"sort"

	"github.com/tokoku/pos-core/internal/inventory"
)

// InventoryRepository implements inventory.RepositoryPort.
type InventoryRepository struct {
	store *Store
}

type ledgerTx struct {
	st *state
}

func (l ledgerTx) FindStock(_ context.Context, productID, branchID int64) (inventory.StockLevel, error) {
	for _, s := range l.st.stocks {
		if s.ProductID == productID && s.BranchID == branchID {
			return s, nil
		}
	}
	return inventory.StockLevel{}, inventory.ErrStockNotFound
}

func (l ledgerTx) LockStock(ctx context.Context, productID, branchID int64) (inventory.StockLevel, error) {
	return l.FindStock(ctx, productID, branchID)
}

func (l ledgerTx) LockStockByID(_ context.Context, stockID int64) (inventory.StockLevel, error) {
	s, ok := l.st.stocks[stockID]
	if !ok {
		return inventory.StockLevel{}, inventory.ErrStockNotFound
	}
	return s, nil
}

func (l ledgerTx) LockStocks(_ context.Context, branchID int64, productIDs []int64) ([]inventory.StockLevel, error) {
	wanted := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}
	var out []inventory.StockLevel
	for _, id := range sortedKeys(l.st.stocks) {
		if s := l.st.stocks[id]; s.BranchID == branchID && wanted[s.ProductID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (l ledgerTx) InsertStock(ctx context.Context, stock inventory.StockLevel) (inventory.StockLevel, error) {
	if _, err := l.FindStock(ctx, stock.ProductID, stock.BranchID); err == nil {
		return inventory.StockLevel{}, inventory.ErrStockExists
	}
	stock.ID = l.st.next("stock")
	l.st.stocks[stock.ID] = stock
	return stock, nil
}

func (l ledgerTx) SetQuantity(_ context.Context, stockID, quantity int64) error {
	s, ok := l.st.stocks[stockID]
	if !ok {
		return inventory.ErrStockNotFound
	}
	s.Quantity = quantity
	l.st.stocks[stockID] = s
	return nil
}

func (l ledgerTx) AppendAdjustment(_ context.Context, adj inventory.Adjustment) (inventory.Adjustment, error) {
	adj.ID = l.st.next("adjustment")
	l.st.adjustments = append(l.st.adjustments, adj)
	return adj, nil
}

// WithTx runs fn as one unit of work.
func (r *InventoryRepository) WithTx(ctx context.Context, fn func(context.Context, inventory.Ledger) error) error {
	return r.store.run(ctx, func(st *state) error {
		return fn(ctx, ledgerTx{st})
	})
}

// ListStock lists stock rows by branch then product.
func (r *InventoryRepository) ListStock(_ context.Context, filter inventory.StockFilter) ([]inventory.StockLevel, error) {
	out := []inventory.StockLevel{}
	r.store.read(func(st *state) {
		for _, s := range st.stocks {
			if (filter.BranchID == 0 || s.BranchID == filter.BranchID) && (filter.ProductID == 0 || s.ProductID == filter.ProductID) {
				out = append(out, s)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].BranchID != out[j].BranchID {
			return out[i].BranchID < out[j].BranchID
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

// ListAdjustments returns the newest entries of a stock row first.
func (r *InventoryRepository) ListAdjustments(_ context.Context, stockID int64, limit int) ([]inventory.Adjustment, error) {
	out := []inventory.Adjustment{}
	r.store.read(func(st *state) {
		for i := len(st.adjustments) - 1; i >= 0 && len(out) < limit; i-- {
			if st.adjustments[i].StockID == stockID {
				out = append(out, st.adjustments[i])
			}
		}
	})
	return out, nil
}

// VerifyLedger reports stock rows whose quantity differs from their ledger.
func (r *InventoryRepository) VerifyLedger(_ context.Context) ([]inventory.Discrepancy, error) {
	var out []inventory.Discrepancy
	r.store.read(func(st *state) {
		sums := make(map[int64]int64, len(st.stocks))
		for _, a := range st.adjustments {
			sums[a.StockID] += a.Signed()
		}
		for _, id := range sortedKeys(st.stocks) {
			if s := st.stocks[id]; s.Quantity != sums[id] {
				out = append(out, inventory.Discrepancy{StockID: id, ProductID: s.ProductID, BranchID: s.BranchID, Quantity: s.Quantity, LedgerQuantity: sums[id]})
			}
		}
	})
	return out, nil
}
