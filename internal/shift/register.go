package shift

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokoku/pos-core/internal/shared"
)

// ErrShiftNotFound is returned when a shift id does not resolve.
var ErrShiftNotFound = fmt.Errorf("shift %w", shared.ErrNotFound)

// Store is the unit-of-work view of shift persistence. LockShift must hold a
// row lock on the shift until the surrounding transaction ends.
type Store interface {
	InsertShift(ctx context.Context, s Shift) (Shift, error)
	LockShift(ctx context.Context, id int64) (Shift, error)
	SetExpectedBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	CloseShift(ctx context.Context, id int64, closing decimal.Decimal, closedBy int64, at time.Time) error
	InsertCashEntry(ctx context.Context, e CashEntry) (CashEntry, error)
}

// Register applies cash movements to a shift's expected balance. Every
// mutation locks the shift row first and refuses closed shifts.
type Register struct {
	now func() time.Time
}

// NewRegister builds a Register using the UTC wall clock.
func NewRegister() *Register {
	return &Register{now: func() time.Time { return time.Now().UTC() }}
}

// Open starts a shift whose expected balance equals the opening float.
func (r *Register) Open(ctx context.Context, st Store, input OpenInput) (Shift, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Shift{}, err
	}
	opening := shared.RoundMoney(input.OpeningBalance)
	return st.InsertShift(ctx, Shift{
		CashierID:       input.CashierID,
		OpeningBalance:  opening,
		ExpectedBalance: opening,
		OpenedBy:        input.ActorID,
		OpenedAt:        r.now(),
	})
}

// Close records the counted balance and finalises the shift.
func (r *Register) Close(ctx context.Context, st Store, input CloseInput) (Shift, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Shift{}, err
	}
	s, err := r.lockOpen(ctx, st, input.ShiftID)
	if err != nil {
		return Shift{}, err
	}
	closing := shared.RoundMoney(input.CountedBalance)
	at := r.now()
	if err := st.CloseShift(ctx, s.ID, closing, input.ActorID, at); err != nil {
		return Shift{}, err
	}
	s.ClosingBalance = &closing
	s.ClosedBy = input.ActorID
	s.ClosedAt = &at
	return s, nil
}

// Post applies a transaction's cash effect to the shift. It must be called
// exactly once per transaction, after the shift's stock locks are held.
func (r *Register) Post(ctx context.Context, st Store, shiftID int64, effect TransactionEffect) (Shift, error) {
	s, err := r.lockOpen(ctx, st, shiftID)
	if err != nil {
		return Shift{}, err
	}
	delta := effect.Delta()
	if delta.IsZero() {
		return s, nil
	}
	return r.move(ctx, st, s, delta)
}

// RecordCashEntry applies a manual pay-in or pay-out.
func (r *Register) RecordCashEntry(ctx context.Context, st Store, input CashEntryInput) (CashEntry, Shift, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return CashEntry{}, Shift{}, err
	}
	s, err := r.lockOpen(ctx, st, input.ShiftID)
	if err != nil {
		return CashEntry{}, Shift{}, err
	}
	entry, err := st.InsertCashEntry(ctx, CashEntry{
		ShiftID:     s.ID,
		Direction:   input.Direction,
		Amount:      shared.RoundMoney(input.Amount),
		Description: input.Description,
		ActorID:     input.ActorID,
		CreatedAt:   r.now(),
	})
	if err != nil {
		return CashEntry{}, Shift{}, err
	}
	s, err = r.move(ctx, st, s, entry.Signed())
	if err != nil {
		return CashEntry{}, Shift{}, err
	}
	return entry, s, nil
}

// Variance is expected minus counted; positive means the drawer is short.
func Variance(s Shift) (decimal.Decimal, error) {
	if !s.Closed() || s.ClosingBalance == nil {
		return decimal.Zero, shared.InvalidState("shift %d is still open", s.ID)
	}
	return s.ExpectedBalance.Sub(*s.ClosingBalance), nil
}

func (r *Register) lockOpen(ctx context.Context, st Store, id int64) (Shift, error) {
	s, err := st.LockShift(ctx, id)
	if err != nil {
		return Shift{}, err
	}
	if s.Closed() {
		return Shift{}, shared.InvalidState("shift %d is closed", id)
	}
	return s, nil
}

func (r *Register) move(ctx context.Context, st Store, s Shift, delta decimal.Decimal) (Shift, error) {
	balance := shared.RoundMoney(s.ExpectedBalance.Add(delta))
	if err := st.SetExpectedBalance(ctx, s.ID, balance); err != nil {
		return Shift{}, err
	}
	s.ExpectedBalance = balance
	return s, nil
}
