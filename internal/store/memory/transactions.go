package memory

import (
	"context"
	"time"

	"github.com/tokoku/pos-core/internal/catalog"
	"github.com/tokoku/pos-core/internal/inventory"
	"github.com/tokoku/pos-core/internal/pos"
	"github.com/tokoku/pos-core/internal/shift"
)

// TransactionRepository implements pos.RepositoryPort.
type TransactionRepository struct {
	store *Store
}

type posTx struct {
	st *state
}

func (t posTx) Ledger() inventory.Ledger { return ledgerTx{t.st} }
func (t posTx) Shifts() shift.Store      { return shiftTx{t.st} }
func (t posTx) Catalog() catalog.Reader  { return catalogTx{t.st} }

func (t posTx) InsertTransaction(_ context.Context, tr pos.Transaction) (pos.Transaction, error) {
	tr.ID = t.st.next("transaction")
	tr.Lines = nil
	t.st.transactions[tr.ID] = tr
	return tr, nil
}

func (t posTx) InsertLines(_ context.Context, lines []pos.Line) ([]pos.Line, error) {
	out := make([]pos.Line, len(lines))
	for i, l := range lines {
		if _, ok := t.st.transactions[l.TransactionID]; !ok {
			return nil, pos.ErrTransactionNotFound
		}
		l.ID = t.st.next("line")
		t.st.lines = append(t.st.lines, l)
		out[i] = l
	}
	return out, nil
}

func (t posTx) FindTransaction(_ context.Context, id int64) (pos.Transaction, error) {
	tr, ok := t.st.transactions[id]
	if !ok {
		return pos.Transaction{}, pos.ErrTransactionNotFound
	}
	return tr, nil
}

func (t posTx) LockTransaction(ctx context.Context, id int64) (pos.Transaction, error) {
	return t.FindTransaction(ctx, id)
}

func (t posTx) MarkDeleted(_ context.Context, id, actorID int64, at time.Time) error {
	tr, ok := t.st.transactions[id]
	if !ok || tr.Deleted {
		return pos.ErrTransactionNotFound
	}
	tr.Deleted = true
	tr.DeletedBy = actorID
	tr.DeletedAt = &at
	t.st.transactions[id] = tr
	return nil
}

// WithTx runs fn as one unit of work over every module's records.
func (r *TransactionRepository) WithTx(ctx context.Context, fn func(context.Context, pos.Tx) error) error {
	return r.store.run(ctx, func(st *state) error {
		return fn(ctx, posTx{st})
	})
}

// GetTransaction loads a header.
func (r *TransactionRepository) GetTransaction(ctx context.Context, id int64) (pos.Transaction, error) {
	var (
		tr  pos.Transaction
		err error
	)
	r.store.read(func(st *state) { tr, err = posTx{st}.FindTransaction(ctx, id) })
	return tr, err
}

// ListLines returns the lines of a transaction in entry order.
func (r *TransactionRepository) ListLines(_ context.Context, transactionID int64) ([]pos.Line, error) {
	out := []pos.Line{}
	r.store.read(func(st *state) {
		for _, l := range st.lines {
			if l.TransactionID == transactionID {
				out = append(out, l)
			}
		}
	})
	return out, nil
}

// ListByShift lists headers of a shift in posting order.
func (r *TransactionRepository) ListByShift(_ context.Context, shiftID int64, includeDeleted bool) ([]pos.Transaction, error) {
	out := []pos.Transaction{}
	r.store.read(func(st *state) {
		for _, id := range sortedKeys(st.transactions) {
			if tr := st.transactions[id]; tr.ShiftID == shiftID && (includeDeleted || !tr.Deleted) {
				out = append(out, tr)
			}
		}
	})
	return out, nil
}
