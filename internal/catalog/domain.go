// Package catalog owns products and discounts: the price and discount terms a
// sale reads at the moment it is posted.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokoku/pos-core/internal/shared"
)

// Status is the lifecycle state shared by products and discounts.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusDeleted  Status = "deleted"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusDisabled, StatusDeleted:
		return true
	}
	return false
}

// Product is a sellable item with its current unit price.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Status    Status          `json:"status"`
	CreatedBy int64           `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Sellable reports whether the product may appear on a sale line.
func (p Product) Sellable() bool {
	return p.Status == StatusActive
}

// DiscountKind selects how a discount amount is interpreted.
type DiscountKind string

const (
	// DiscountFixed subtracts Amount from the base.
	DiscountFixed DiscountKind = "fixed"
	// DiscountPercent subtracts Amount percent of the base.
	DiscountPercent DiscountKind = "percent"
)

// Discount is a reusable price reduction.
type Discount struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Kind        DiscountKind    `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Status      Status          `json:"status"`
	CreatedBy   int64           `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Applicable reports whether the discount may be attached to a new sale.
func (d Discount) Applicable() bool {
	return d.Status == StatusActive
}

// Reduction computes the amount taken off base. A fixed discount never
// exceeds base.
func (d Discount) Reduction(base decimal.Decimal) decimal.Decimal {
	if base.IsNegative() || base.IsZero() {
		return decimal.Zero
	}
	switch d.Kind {
	case DiscountPercent:
		return shared.Percent(base, d.Amount)
	case DiscountFixed:
		return shared.RoundMoney(shared.MinDecimal(d.Amount, base))
	}
	return decimal.Zero
}

// ProductInput carries create/update fields for a product.
type ProductInput struct {
	Name    string          `json:"name" validate:"required,max=200"`
	Price   decimal.Decimal `json:"price" validate:"money_nonnegative"`
	Status  Status          `json:"status" validate:"omitempty,oneof=active disabled"`
	ActorID int64           `json:"-"`
}

// DiscountInput carries create/update fields for a discount.
type DiscountInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=1000"`
	Kind        DiscountKind    `json:"kind" validate:"required,oneof=fixed percent"`
	Amount      decimal.Decimal `json:"amount"`
	Status      Status          `json:"status" validate:"omitempty,oneof=active disabled"`
	ActorID     int64           `json:"-"`
}
