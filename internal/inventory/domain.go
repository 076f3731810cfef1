package inventory

import (
	"fmt"
	"time"

	"github.com/tokoku/pos-core/internal/shared"
)

// Direction enumerates the sign of a stock adjustment.
type Direction string

const (
	// DirectionIncrease adds units to a stock level.
	DirectionIncrease Direction = "increase"
	// DirectionDecrease removes units from a stock level.
	DirectionDecrease Direction = "decrease"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIncrease || d == DirectionDecrease
}

// InitialStockNote labels the adjustment recorded when a stock row is created.
const InitialStockNote = "Initial stock"

var (
	// ErrStockNotFound indicates no stock row was ever initialised for a product and branch.
	ErrStockNotFound = fmt.Errorf("stock level %w", shared.ErrNotFound)
	// ErrStockExists indicates a duplicate initialisation.
	ErrStockExists = fmt.Errorf("%w: stock already initialised for product and branch", shared.ErrConflict)
)

// StockLevel is the current quantity of one product at one branch.
type StockLevel struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	BranchID  int64     `json:"branch_id"`
	Quantity  int64     `json:"quantity"`
	CreatedBy int64     `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Adjustment is one immutable entry of the stock ledger.
type Adjustment struct {
	ID             int64     `json:"id"`
	StockID        int64     `json:"stock_id"`
	ProductID      int64     `json:"product_id"`
	BranchID       int64     `json:"branch_id"`
	Direction      Direction `json:"direction"`
	Quantity       int64     `json:"quantity"`
	QuantityBefore int64     `json:"quantity_before"`
	QuantityAfter  int64     `json:"quantity_after"`
	Note           string    `json:"note"`
	ImageRef       string    `json:"image_ref,omitempty"`
	TransactionID  int64     `json:"transaction_id,omitempty"`
	ActorID        int64     `json:"actor_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Signed returns the quantity with the direction's sign applied.
func (a Adjustment) Signed() int64 {
	if a.Direction == DirectionDecrease {
		return -a.Quantity
	}
	return a.Quantity
}

// Discrepancy is a stock row whose quantity disagrees with its ledger.
type Discrepancy struct {
	StockID        int64 `json:"stock_id"`
	ProductID      int64 `json:"product_id"`
	BranchID       int64 `json:"branch_id"`
	Quantity       int64 `json:"quantity"`
	LedgerQuantity int64 `json:"ledger_quantity"`
}

// StockFilter narrows stock listings.
type StockFilter struct {
	BranchID  int64
	ProductID int64
}

// InitializeInput creates the stock row for a product at a branch.
type InitializeInput struct {
	ProductID int64  `json:"product_id" validate:"gt=0"`
	BranchID  int64  `json:"branch_id" validate:"gt=0"`
	Quantity  int64  `json:"quantity" validate:"gte=0"`
	ImageRef  string `json:"image_ref" validate:"max=500"`
	ActorID   int64  `json:"-"`
}

// AdjustInput changes a stock row by a signed amount.
type AdjustInput struct {
	StockID       int64     `json:"stock_id" validate:"gt=0"`
	Direction     Direction `json:"direction" validate:"required,oneof=increase decrease"`
	Quantity      int64     `json:"quantity" validate:"gt=0"`
	Note          string    `json:"note" validate:"max=500"`
	ImageRef      string    `json:"image_ref" validate:"max=500"`
	TransactionID int64     `json:"-"`
	ActorID       int64     `json:"-"`
}

// CountInput sets a stock row to a physically counted quantity.
type CountInput struct {
	StockID  int64  `json:"stock_id" validate:"gt=0"`
	Quantity int64  `json:"quantity" validate:"gte=0"`
	Note     string `json:"note" validate:"max=500"`
	ImageRef string `json:"image_ref" validate:"max=500"`
	ActorID  int64  `json:"-"`
}

// Movement is a sale or refund line applied to a product at a branch.
type Movement struct {
	ProductID     int64
	BranchID      int64
	Quantity      int64
	Note          string
	TransactionID int64
	ActorID       int64
	// Field names the request field reported when the movement is rejected.
	Field string
}

// formatNote embeds the before and after quantities for audit readability.
func formatNote(note string, before, after int64) string {
	if note == "" {
		return fmt.Sprintf("(before: %d, after: %d)", before, after)
	}
	return fmt.Sprintf("%s (before: %d, after: %d)", note, before, after)
}
