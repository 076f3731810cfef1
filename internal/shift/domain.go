// Package shift keeps the cash drawer of a cashier shift: the opening float,
// the running expected balance and the counted balance at close.
package shift

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokoku/pos-core/internal/shared"
)

// Shift is one cashier's open-to-close cash handling session.
type Shift struct {
	ID              int64            `json:"id"`
	CashierID       int64            `json:"cashier_id"`
	OpeningBalance  decimal.Decimal  `json:"opening_balance"`
	ExpectedBalance decimal.Decimal  `json:"expected_balance"`
	ClosingBalance  *decimal.Decimal `json:"closing_balance,omitempty"`
	OpenedBy        int64            `json:"opened_by,omitempty"`
	ClosedBy        int64            `json:"closed_by,omitempty"`
	OpenedAt        time.Time        `json:"opened_at"`
	ClosedAt        *time.Time       `json:"closed_at,omitempty"`
}

// Closed reports whether the shift has been closed.
func (s Shift) Closed() bool {
	return s.ClosedAt != nil
}

// CashDirection is the sign of a manual drawer entry.
type CashDirection string

const (
	// CashIn is a pay-in to the drawer.
	CashIn CashDirection = "in"
	// CashOut is a pay-out from the drawer.
	CashOut CashDirection = "out"
)

// CashEntry is a manual pay-in or pay-out, independent of sales.
type CashEntry struct {
	ID          int64           `json:"id"`
	ShiftID     int64           `json:"shift_id"`
	Direction   CashDirection   `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ActorID     int64           `json:"actor_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Signed returns the amount with the direction's sign applied.
func (e CashEntry) Signed() decimal.Decimal {
	if e.Direction == CashOut {
		return e.Amount.Neg()
	}
	return e.Amount
}

// EffectKind classifies how a transaction moves drawer cash.
type EffectKind int

const (
	// EffectNone leaves the drawer untouched (non-cash or unsettled).
	EffectNone EffectKind = iota
	// EffectSale adds the cash kept from a paid sale.
	EffectSale
	// EffectRefund removes the cash handed back for a refund.
	EffectRefund
)

// TransactionEffect is the drawer-relevant view of a posted transaction.
type TransactionEffect struct {
	Kind     EffectKind
	Price    decimal.Decimal
	Tendered decimal.Decimal
}

// Change is the cash returned to the customer on a sale.
func (e TransactionEffect) Change() decimal.Decimal {
	if e.Kind != EffectSale || !e.Tendered.GreaterThan(e.Price) {
		return decimal.Zero
	}
	return e.Tendered.Sub(e.Price)
}

// Delta is the signed change to the expected balance.
func (e TransactionEffect) Delta() decimal.Decimal {
	switch e.Kind {
	case EffectSale:
		return shared.RoundMoney(e.Tendered.Sub(e.Change()))
	case EffectRefund:
		return shared.RoundMoney(e.Price.Neg())
	}
	return decimal.Zero
}

// Summary reports a shift with its manual drawer totals.
type Summary struct {
	Shift      Shift            `json:"shift"`
	PaidIn     decimal.Decimal  `json:"paid_in"`
	PaidOut    decimal.Decimal  `json:"paid_out"`
	EntryCount int              `json:"entry_count"`
	Variance   *decimal.Decimal `json:"variance,omitempty"`
}

// OpenInput opens a shift.
type OpenInput struct {
	CashierID      int64           `json:"cashier_id" validate:"gt=0"`
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"money_nonnegative"`
	ActorID        int64           `json:"-"`
}

// CloseInput closes a shift with the physically counted balance.
type CloseInput struct {
	ShiftID        int64           `json:"-" validate:"gt=0"`
	CountedBalance decimal.Decimal `json:"counted_balance" validate:"money_nonnegative"`
	ActorID        int64           `json:"-"`
}

// CashEntryInput records a manual pay-in or pay-out.
type CashEntryInput struct {
	ShiftID     int64           `json:"-" validate:"gt=0"`
	Direction   CashDirection   `json:"direction" validate:"required,oneof=in out"`
	Amount      decimal.Decimal `json:"amount" validate:"money_positive"`
	Description string          `json:"description" validate:"max=500"`
	ActorID     int64           `json:"-"`
}
