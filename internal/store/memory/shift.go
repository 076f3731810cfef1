package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokoku/pos-core/internal/shift"
)

// ShiftRepository implements shift.RepositoryPort.
type ShiftRepository struct {
	store *Store
}

type shiftTx struct {
	st *state
}

func (t shiftTx) InsertShift(_ context.Context, s shift.Shift) (shift.Shift, error) {
	s.ID = t.st.next("shift")
	t.st.shifts[s.ID] = s
	return s, nil
}

func (t shiftTx) LockShift(_ context.Context, id int64) (shift.Shift, error) {
	s, ok := t.st.shifts[id]
	if !ok {
		return shift.Shift{}, shift.ErrShiftNotFound
	}
	return s, nil
}

func (t shiftTx) SetExpectedBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	s, ok := t.st.shifts[id]
	if !ok {
		return shift.ErrShiftNotFound
	}
	s.ExpectedBalance = balance
	t.st.shifts[id] = s
	return nil
}

func (t shiftTx) CloseShift(_ context.Context, id int64, closing decimal.Decimal, closedBy int64, at time.Time) error {
	s, ok := t.st.shifts[id]
	if !ok || s.Closed() {
		return shift.ErrShiftNotFound
	}
	s.ClosingBalance = &closing
	s.ClosedBy = closedBy
	s.ClosedAt = &at
	t.st.shifts[id] = s
	return nil
}

func (t shiftTx) InsertCashEntry(_ context.Context, e shift.CashEntry) (shift.CashEntry, error) {
	e.ID = t.st.next("cash_entry")
	t.st.cashEntries = append(t.st.cashEntries, e)
	return e, nil
}

// WithTx runs fn as one unit of work.
func (r *ShiftRepository) WithTx(ctx context.Context, fn func(context.Context, shift.Store) error) error {
	return r.store.run(ctx, func(st *state) error {
		return fn(ctx, shiftTx{st})
	})
}

// GetShift loads a shift.
func (r *ShiftRepository) GetShift(ctx context.Context, id int64) (shift.Shift, error) {
	var (
		s   shift.Shift
		err error
	)
	r.store.read(func(st *state) { s, err = shiftTx{st}.LockShift(ctx, id) })
	return s, err
}

// ListShifts lists shifts newest first.
func (r *ShiftRepository) ListShifts(_ context.Context, openOnly bool) ([]shift.Shift, error) {
	out := []shift.Shift{}
	r.store.read(func(st *state) {
		ids := sortedKeys(st.shifts)
		for i := len(ids) - 1; i >= 0; i-- {
			if s := st.shifts[ids[i]]; !openOnly || !s.Closed() {
				out = append(out, s)
			}
		}
	})
	return out, nil
}

// ListCashEntries returns the manual entries of a shift in insertion order.
func (r *ShiftRepository) ListCashEntries(_ context.Context, shiftID int64) ([]shift.CashEntry, error) {
	out := []shift.CashEntry{}
	r.store.read(func(st *state) {
		for _, e := range st.cashEntries {
			if e.ShiftID == shiftID {
				out = append(out, e)
			}
		}
	})
	return out, nil
}
