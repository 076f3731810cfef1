// Package pos posts sales and refunds: it prices the lines, moves stock for
// each of them and applies the cash effect to the shift in one unit of work.
package pos

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokoku/pos-core/internal/catalog"
	"github.com/tokoku/pos-core/internal/shared"
)

// ErrTransactionNotFound is returned when a transaction id does not resolve.
var ErrTransactionNotFound = fmt.Errorf("transaction %w", shared.ErrNotFound)

// PaymentMethod is how a transaction was settled.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodEWallet      PaymentMethod = "e_wallet"
	MethodQRIS         PaymentMethod = "qris"
	MethodCard         PaymentMethod = "card"
)

// PaymentStatus is the settlement state of a transaction.
type PaymentStatus string

const (
	StatusPending  PaymentStatus = "pending"
	StatusPaid     PaymentStatus = "paid"
	StatusFailed   PaymentStatus = "failed"
	StatusRefunded PaymentStatus = "refunded"
)

// IsRefund reports whether the status marks a refund transaction.
func (s PaymentStatus) IsRefund() bool {
	return s == StatusRefunded
}

// DiscountPolicy decides the base a percent discount is taken from.
type DiscountPolicy string

const (
	// PolicyPreTax applies discounts to the line subtotal.
	PolicyPreTax DiscountPolicy = "pre_tax"
	// PolicyPostTax applies discounts to subtotal plus tax.
	PolicyPostTax DiscountPolicy = "post_tax"
)

// ParseDiscountPolicy validates a configured policy name. Empty means pre_tax.
func ParseDiscountPolicy(v string) (DiscountPolicy, error) {
	switch DiscountPolicy(v) {
	case "", PolicyPreTax:
		return PolicyPreTax, nil
	case PolicyPostTax:
		return PolicyPostTax, nil
	}
	return "", fmt.Errorf("unknown discount policy %q", v)
}

// DiscountSnapshot freezes the discount terms at sale time.
type DiscountSnapshot struct {
	ID     int64                `json:"id"`
	Kind   catalog.DiscountKind `json:"kind"`
	Amount decimal.Decimal      `json:"amount"`
}

// Transaction is a persisted sale or refund header.
type Transaction struct {
	ID               int64             `json:"id"`
	BranchID         int64             `json:"branch_id"`
	ShiftID          int64             `json:"shift_id"`
	Discount         *DiscountSnapshot `json:"discount,omitempty"`
	DiscountValue    decimal.Decimal   `json:"discount_value"`
	PaymentMethod    PaymentMethod     `json:"payment_method"`
	PaymentStatus    PaymentStatus     `json:"payment_status"`
	TotalPrice       decimal.Decimal   `json:"total_price"`
	TotalTendered    decimal.Decimal   `json:"total_tendered"`
	TotalTax         decimal.Decimal   `json:"total_tax"`
	AmountDue        decimal.Decimal   `json:"amount_due"`
	RefundOf         int64             `json:"refund_of,omitempty"`
	RefundReasonCode *RefundReason     `json:"refund_reason_code,omitempty"`
	RefundReason     string            `json:"refund_reason,omitempty"`
	Deleted          bool              `json:"is_deleted"`
	DeletedBy        int64             `json:"deleted_by,omitempty"`
	DeletedAt        *time.Time        `json:"deleted_at,omitempty"`
	CreatedBy        int64             `json:"created_by,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	Lines            []Line            `json:"lines,omitempty"`
}

// Change is the cash handed back on a paid cash sale.
func (t Transaction) Change() decimal.Decimal {
	if t.PaymentMethod != MethodCash || t.PaymentStatus != StatusPaid || !t.TotalTendered.GreaterThan(t.AmountDue) {
		return decimal.Zero
	}
	return t.TotalTendered.Sub(t.AmountDue)
}

// Line is one product row of a transaction with its price snapshot.
type Line struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	ProductID     int64           `json:"product_id"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

// LineInput requests a quantity of one product.
type LineInput struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int64 `json:"quantity" validate:"gt=0"`
}

// CreateInput is a sale or refund request. TotalPrice is read only for
// refunds; sales always total their lines.
type CreateInput struct {
	BranchID         int64           `json:"branch_id" validate:"gt=0"`
	ShiftID          int64           `json:"shift_id" validate:"gt=0"`
	Lines            []LineInput     `json:"lines" validate:"required,min=1,dive"`
	PaymentMethod    PaymentMethod   `json:"payment_method" validate:"required,oneof=cash bank_transfer e_wallet qris card"`
	PaymentStatus    PaymentStatus   `json:"payment_status" validate:"required,oneof=pending paid failed refunded"`
	DiscountID       int64           `json:"discount_id" validate:"gte=0"`
	TotalTax         decimal.Decimal `json:"total_tax" validate:"money_nonnegative"`
	TotalTendered    decimal.Decimal `json:"total_tendered" validate:"money_nonnegative"`
	TotalPrice       decimal.Decimal `json:"total_price" validate:"money_nonnegative"`
	RefundOf         int64           `json:"refund_of" validate:"gte=0"`
	RefundReasonCode *RefundReason   `json:"refund_reason_code" validate:"omitempty,min=0,max=3"`
	RefundReasonText string          `json:"refund_reason_text" validate:"max=255"`
	IdempotencyKey   string          `json:"-"`
	ActorID          int64           `json:"-"`
}
