// Package memory implements every repository port in process. Units of work
// are serialised by one mutex and roll back by restoring a snapshot, which
// gives the same all-or-nothing behaviour as the PostgreSQL repositories.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tokoku/pos-core/internal/catalog"
	"github.com/tokoku/pos-core/internal/inventory"
	"github.com/tokoku/pos-core/internal/pos"
	"github.com/tokoku/pos-core/internal/shift"
)

type state struct {
	products     map[int64]catalog.Product
	discounts    map[int64]catalog.Discount
	stocks       map[int64]inventory.StockLevel
	adjustments  []inventory.Adjustment
	shifts       map[int64]shift.Shift
	cashEntries  []shift.CashEntry
	transactions map[int64]pos.Transaction
	lines        []pos.Line
	seq          map[string]int64
}

func newState() *state {
	return &state{
		products:     make(map[int64]catalog.Product),
		discounts:    make(map[int64]catalog.Discount),
		stocks:       make(map[int64]inventory.StockLevel),
		shifts:       make(map[int64]shift.Shift),
		transactions: make(map[int64]pos.Transaction),
		seq:          make(map[string]int64),
	}
}

func (s *state) clone() *state {
	cp := &state{
		products:     make(map[int64]catalog.Product, len(s.products)),
		discounts:    make(map[int64]catalog.Discount, len(s.discounts)),
		stocks:       make(map[int64]inventory.StockLevel, len(s.stocks)),
		adjustments:  append([]inventory.Adjustment(nil), s.adjustments...),
		shifts:       make(map[int64]shift.Shift, len(s.shifts)),
		cashEntries:  append([]shift.CashEntry(nil), s.cashEntries...),
		transactions: make(map[int64]pos.Transaction, len(s.transactions)),
		lines:        append([]pos.Line(nil), s.lines...),
		seq:          make(map[string]int64, len(s.seq)),
	}
	for k, v := range s.products {
		cp.products[k] = v
	}
	for k, v := range s.discounts {
		cp.discounts[k] = v
	}
	for k, v := range s.stocks {
		cp.stocks[k] = v
	}
	for k, v := range s.shifts {
		cp.shifts[k] = v
	}
	for k, v := range s.transactions {
		cp.transactions[k] = v
	}
	for k, v := range s.seq {
		cp.seq[k] = v
	}
	return cp
}

func (s *state) next(name string) int64 {
	s.seq[name]++
	return s.seq[name]
}

// Store holds all records of one process.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState()}
}

// run executes fn under the store lock and restores the prior state when fn
// fails.
func (s *Store) run(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := s.st.clone()
	if err := fn(s.st); err != nil {
		s.st = saved
		return err
	}
	return nil
}

func (s *Store) read(fn func(*state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

// Catalog returns the catalog repository view.
func (s *Store) Catalog() *CatalogRepository {
	return &CatalogRepository{store: s}
}

// Inventory returns the stock repository view.
func (s *Store) Inventory() *InventoryRepository {
	return &InventoryRepository{store: s}
}

// Shifts returns the shift repository view.
func (s *Store) Shifts() *ShiftRepository {
	return &ShiftRepository{store: s}
}

// Transactions returns the transaction repository view.
func (s *Store) Transactions() *TransactionRepository {
	return &TransactionRepository{store: s}
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

var (
	_ catalog.RepositoryPort   = (*CatalogRepository)(nil)
	_ inventory.RepositoryPort = (*InventoryRepository)(nil)
	_ shift.RepositoryPort     = (*ShiftRepository)(nil)
	_ pos.RepositoryPort       = (*TransactionRepository)(nil)
)
