package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tokoku/pos-core/internal/shared"
)

// Reconciler validates quantity changes and applies them to a Ledger. It is
// the only code path that mutates stock quantities.
type Reconciler struct {
	now func() time.Time
}

// NewReconciler builds a Reconciler using the UTC wall clock.
func NewReconciler() *Reconciler {
	return &Reconciler{now: func() time.Time { return time.Now().UTC() }}
}

// Initialize creates the stock row for a product at a branch and records the
// opening quantity as an increase. A zero opening quantity creates the row
// without a ledger entry.
func (r *Reconciler) Initialize(ctx context.Context, l Ledger, input InitializeInput) (StockLevel, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return StockLevel{}, err
	}
	if _, err := l.FindStock(ctx, input.ProductID, input.BranchID); err == nil {
		return StockLevel{}, ErrStockExists
	} else if !errors.Is(err, ErrStockNotFound) {
		return StockLevel{}, err
	}
	now := r.now()
	stock, err := l.InsertStock(ctx, StockLevel{
		ProductID: input.ProductID,
		BranchID:  input.BranchID,
		Quantity:  input.Quantity,
		CreatedBy: input.ActorID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return StockLevel{}, err
	}
	if input.Quantity == 0 {
		return stock, nil
	}
	if _, err := r.appendEntry(ctx, l, stock, DirectionIncrease, input.Quantity, 0, input.Quantity, InitialStockNote, input.ImageRef, 0, input.ActorID); err != nil {
		return StockLevel{}, err
	}
	return stock, nil
}

// Adjust applies a signed change to the stock row. A decrease below zero
// fails with a *shared.StockError and leaves the row untouched.
func (r *Reconciler) Adjust(ctx context.Context, l Ledger, input AdjustInput) (StockLevel, Adjustment, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return StockLevel{}, Adjustment{}, err
	}
	stock, err := l.LockStockByID(ctx, input.StockID)
	if err != nil {
		return StockLevel{}, Adjustment{}, err
	}
	return r.apply(ctx, l, stock, input.Direction, input.Quantity, input.Note, input.ImageRef, input.TransactionID, input.ActorID, "quantity")
}

// Count sets the stock row to a counted quantity, recording the difference
// as a single adjustment. An unchanged count records nothing.
func (r *Reconciler) Count(ctx context.Context, l Ledger, input CountInput) (StockLevel, *Adjustment, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return StockLevel{}, nil, err
	}
	stock, err := l.LockStockByID(ctx, input.StockID)
	if err != nil {
		return StockLevel{}, nil, err
	}
	delta := input.Quantity - stock.Quantity
	if delta == 0 {
		return stock, nil, nil
	}
	direction := DirectionIncrease
	if delta < 0 {
		direction = DirectionDecrease
		delta = -delta
	}
	updated, adj, err := r.apply(ctx, l, stock, direction, delta, input.Note, input.ImageRef, 0, input.ActorID, "quantity")
	if err != nil {
		return StockLevel{}, nil, err
	}
	return updated, &adj, nil
}

// CheckAvailability verifies that stock covers quantity without writing.
func (r *Reconciler) CheckAvailability(stock StockLevel, quantity int64, field string) error {
	if quantity > stock.Quantity {
		return &shared.StockError{
			Field:     field,
			ProductID: stock.ProductID,
			BranchID:  stock.BranchID,
			Requested: quantity,
			Available: stock.Quantity,
		}
	}
	return nil
}

// ReconcileForSale decreases stock for a sale line. It never drives the
// quantity below zero.
func (r *Reconciler) ReconcileForSale(ctx context.Context, l Ledger, m Movement) (Adjustment, error) {
	return r.move(ctx, l, DirectionDecrease, m)
}

// ReconcileForRefund restores stock for a refund line. Refunds are not
// bounded by the quantity originally sold.
func (r *Reconciler) ReconcileForRefund(ctx context.Context, l Ledger, m Movement) (Adjustment, error) {
	return r.move(ctx, l, DirectionIncrease, m)
}

func (r *Reconciler) move(ctx context.Context, l Ledger, direction Direction, m Movement) (Adjustment, error) {
	field := m.Field
	if field == "" {
		field = "quantity"
	}
	if m.Quantity <= 0 {
		return Adjustment{}, shared.NewValidationError(field, "must be a positive integer")
	}
	stock, err := l.LockStock(ctx, m.ProductID, m.BranchID)
	if err != nil {
		return Adjustment{}, err
	}
	_, adj, err := r.apply(ctx, l, stock, direction, m.Quantity, m.Note, "", m.TransactionID, m.ActorID, field)
	return adj, err
}

func (r *Reconciler) apply(ctx context.Context, l Ledger, stock StockLevel, direction Direction, quantity int64, note, imageRef string, txID, actorID int64, field string) (StockLevel, Adjustment, error) {
	if !direction.Valid() {
		return StockLevel{}, Adjustment{}, shared.NewValidationError("direction", "must be increase or decrease")
	}
	before := stock.Quantity
	if direction == DirectionIncrease && quantity > math.MaxInt64-before {
		return StockLevel{}, Adjustment{}, shared.NewValidationError(field, fmt.Sprintf("would exceed the maximum stock quantity (%d on hand)", before))
	}
	after := before + quantity
	if direction == DirectionDecrease {
		if err := r.CheckAvailability(stock, quantity, field); err != nil {
			return StockLevel{}, Adjustment{}, err
		}
		after = before - quantity
	}
	if err := l.SetQuantity(ctx, stock.ID, after); err != nil {
		return StockLevel{}, Adjustment{}, err
	}
	adj, err := r.appendEntry(ctx, l, stock, direction, quantity, before, after, formatNote(note, before, after), imageRef, txID, actorID)
	if err != nil {
		return StockLevel{}, Adjustment{}, err
	}
	stock.Quantity = after
	stock.UpdatedAt = adj.CreatedAt
	return stock, adj, nil
}

func (r *Reconciler) appendEntry(ctx context.Context, l Ledger, stock StockLevel, direction Direction, quantity, before, after int64, note, imageRef string, txID, actorID int64) (Adjustment, error) {
	adj, err := l.AppendAdjustment(ctx, Adjustment{
		StockID:        stock.ID,
		ProductID:      stock.ProductID,
		BranchID:       stock.BranchID,
		Direction:      direction,
		Quantity:       quantity,
		QuantityBefore: before,
		QuantityAfter:  after,
		Note:           note,
		ImageRef:       imageRef,
		TransactionID:  txID,
		ActorID:        actorID,
		CreatedAt:      r.now(),
	})
	if err != nil {
		return Adjustment{}, err
	}
	return adj, nil
}
