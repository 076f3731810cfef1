package pos_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokoku/pos-core/internal/catalog"
	"github.com/tokoku/pos-core/internal/inventory"
	"github.com/tokoku/pos-core/internal/pos"
	"github.com/tokoku/pos-core/internal/shared"
	"github.com/tokoku/pos-core/internal/shift"
	"github.com/tokoku/pos-core/internal/store/memory"
)

const branch = int64(1)

type fixture struct {
	catalog   *catalog.Service
	inventory *inventory.Service
	shifts    *shift.Service
	pos       *pos.Service
	metrics   *countingMetrics
}

type countingMetrics struct {
	mu          sync.Mutex
	posted      map[string]int
	aborts      map[string]int
	adjustments int64
}

func (m *countingMetrics) ObserveTransaction(status, method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted[status+"/"+method]++
}

func (m *countingMetrics) ObserveTransactionAbort(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborts[reason]++
}

func (m *countingMetrics) ObserveAdjustment(_ string, quantity int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments += quantity
}

func newFixture(t *testing.T, opts pos.Options) *fixture {
	t.Helper()
	store := memory.New()
	metrics := &countingMetrics{posted: map[string]int{}, aborts: map[string]int{}}
	opts.Metrics = metrics
	return &fixture{
		catalog:   catalog.NewService(store.Catalog(), nil, nil),
		inventory: inventory.NewService(store.Inventory(), nil, nil),
		shifts:    shift.NewService(store.Shifts(), nil, nil),
		pos:       pos.NewService(store.Transactions(), opts, nil),
		metrics:   metrics,
	}
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, money(want).Equal(got), "want %s, got %s", want, got.String())
}

func (f *fixture) product(t *testing.T, name, price string, qty int64) (catalog.Product, inventory.StockLevel) {
	t.Helper()
	ctx := context.Background()
	p, err := f.catalog.CreateProduct(ctx, catalog.ProductInput{Name: name, Price: money(price)})
	require.NoError(t, err)
	s, err := f.inventory.Initialize(ctx, inventory.InitializeInput{ProductID: p.ID, BranchID: branch, Quantity: qty})
	require.NoError(t, err)
	return p, s
}

func (f *fixture) openShift(t *testing.T, opening string) shift.Shift {
	t.Helper()
	s, err := f.shifts.OpenShift(context.Background(), shift.OpenInput{CashierID: 5, OpeningBalance: money(opening)})
	require.NoError(t, err)
	return s
}

func (f *fixture) quantity(t *testing.T, productID int64) int64 {
	t.Helper()
	q, err := f.inventory.CurrentQuantity(context.Background(), productID, branch)
	require.NoError(t, err)
	return q
}

func (f *fixture) expected(t *testing.T, shiftID int64) decimal.Decimal {
	t.Helper()
	s, err := f.shifts.GetShift(context.Background(), shiftID)
	require.NoError(t, err)
	return s.ExpectedBalance
}

func cashSale(shiftID int64, tendered string, lines ...pos.LineInput) pos.CreateInput {
	return pos.CreateInput{
		BranchID:      branch,
		ShiftID:       shiftID,
		Lines:         lines,
		PaymentMethod: pos.MethodCash,
		PaymentStatus: pos.StatusPaid,
		TotalTendered: money(tendered),
	}
}

func reason(r pos.RefundReason) *pos.RefundReason {
	return &r
}

func TestSaleDecrementsStockAndRejectsOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, stock := f.product(t, "Kopi Susu", "5000", 10)
	sh := f.openShift(t, "0")

	tr, err := f.pos.Create(ctx, cashSale(sh.ID, "20000", pos.LineInput{ProductID: p.ID, Quantity: 4}))
	require.NoError(t, err)
	assert.Equal(t, int64(6), f.quantity(t, p.ID))
	require.Len(t, tr.Lines, 1)
	assertMoney(t, "5000", tr.Lines[0].UnitPrice)
	assertMoney(t, "20000", tr.Lines[0].Subtotal)
	assertMoney(t, "20000", tr.TotalPrice)

	adjustments, err := f.inventory.ListAdjustments(ctx, stock.ID, 0)
	require.NoError(t, err)
	require.Len(t, adjustments, 2)
	assert.Equal(t, inventory.DirectionDecrease, adjustments[0].Direction)
	assert.Equal(t, int64(4), adjustments[0].Quantity)
	assert.Equal(t, tr.ID, adjustments[0].TransactionID)
	assert.Equal(t, "Transaction #1 (before: 10, after: 6)", adjustments[0].Note)

	_, err = f.pos.Create(ctx, cashSale(sh.ID, "50000", pos.LineInput{ProductID: p.ID, Quantity: 10}))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	assert.Contains(t, shared.FieldErrors(err), "lines[0].quantity")
	assert.Equal(t, int64(6), f.quantity(t, p.ID))
	assert.Equal(t, 1, f.metrics.aborts["insufficient_stock"])
}

func TestFailingLineAbortsWholeSale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	a, stockA := f.product(t, "Roti", "3000", 5)
	b, _ := f.product(t, "Teh", "2000", 1)
	c, stockC := f.product(t, "Air", "1000", 5)
	sh := f.openShift(t, "10000")

	_, err := f.pos.Create(ctx, cashSale(sh.ID, "100000",
		pos.LineInput{ProductID: a.ID, Quantity: 2},
		pos.LineInput{ProductID: b.ID, Quantity: 2},
		pos.LineInput{ProductID: c.ID, Quantity: 2},
	))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	assert.Equal(t, map[string]string{"lines[1].quantity": "exceeds available stock (1 available)"}, shared.FieldErrors(err))

	assert.Equal(t, int64(5), f.quantity(t, a.ID))
	assert.Equal(t, int64(1), f.quantity(t, b.ID))
	assert.Equal(t, int64(5), f.quantity(t, c.ID))
	for _, id := range []int64{stockA.ID, stockC.ID} {
		adjustments, err := f.inventory.ListAdjustments(ctx, id, 0)
		require.NoError(t, err)
		assert.Len(t, adjustments, 1)
	}
	listed, err := f.pos.ListByShift(ctx, sh.ID, true)
	require.NoError(t, err)
	assert.Empty(t, listed)
	assertMoney(t, "10000", f.expected(t, sh.ID))
	_, err = f.pos.Get(ctx, 1)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRepeatedProductLinesShareAvailability(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Gula", "14000", 5)
	sh := f.openShift(t, "0")

	_, err := f.pos.Create(ctx, cashSale(sh.ID, "100000",
		pos.LineInput{ProductID: p.ID, Quantity: 3},
		pos.LineInput{ProductID: p.ID, Quantity: 3},
	))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	assert.Contains(t, shared.FieldErrors(err), "lines[1].quantity")
	assert.Equal(t, int64(5), f.quantity(t, p.ID))
}

func TestCashSaleAndRefundRestoreDrawer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Beras 5kg", "50000", 3)
	sh := f.openShift(t, "100000")

	sale, err := f.pos.Create(ctx, cashSale(sh.ID, "50000", pos.LineInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)
	assertMoney(t, "150000", f.expected(t, sh.ID))
	assert.Equal(t, int64(2), f.quantity(t, p.ID))

	refund, err := f.pos.Create(ctx, pos.CreateInput{
		BranchID:         branch,
		ShiftID:          sh.ID,
		Lines:            []pos.LineInput{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod:    pos.MethodCash,
		PaymentStatus:    pos.StatusRefunded,
		TotalPrice:       money("50000"),
		RefundOf:         sale.ID,
		RefundReasonCode: reason(pos.ReasonProductReturn),
	})
	require.NoError(t, err)
	assertMoney(t, "100000", f.expected(t, sh.ID))
	assert.Equal(t, int64(3), f.quantity(t, p.ID))
	assert.Equal(t, sale.ID, refund.RefundOf)
	assert.Equal(t, "Refund Transaction #1 (Product Return)", refund.RefundReason)
	assertMoney(t, "50000", refund.TotalPrice)
}

func TestRefundMayExceedStockOnHand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Sabun", "4000", 1)
	sh := f.openShift(t, "0")
	sale, err := f.pos.Create(ctx, cashSale(sh.ID, "4000", pos.LineInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)
	require.Equal(t, int64(0), f.quantity(t, p.ID))

	_, err = f.pos.Create(ctx, pos.CreateInput{
		BranchID:         branch,
		ShiftID:          sh.ID,
		Lines:            []pos.LineInput{{ProductID: p.ID, Quantity: 3}},
		PaymentMethod:    pos.MethodQRIS,
		PaymentStatus:    pos.StatusRefunded,
		TotalPrice:       money("12000"),
		RefundOf:         sale.ID,
		RefundReasonCode: reason(pos.ReasonOther),
		RefundReasonText: "damaged shelf stock",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.quantity(t, p.ID))
	assertMoney(t, "4000", f.expected(t, sh.ID))
}

func TestTaxedCashRefundRestoresDrawer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Minyak Goreng 2L", "50000", 2)
	sh := f.openShift(t, "100000")

	in := cashSale(sh.ID, "55000", pos.LineInput{ProductID: p.ID, Quantity: 1})
	in.TotalTax = money("5000")
	sale, err := f.pos.Create(ctx, in)
	require.NoError(t, err)
	assertMoney(t, "55000", sale.AmountDue)
	assertMoney(t, "155000", f.expected(t, sh.ID))

	refund, err := f.pos.Create(ctx, pos.CreateInput{
		BranchID:         branch,
		ShiftID:          sh.ID,
		Lines:            []pos.LineInput{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod:    pos.MethodCash,
		PaymentStatus:    pos.StatusRefunded,
		TotalPrice:       money("50000"),
		TotalTax:         money("5000"),
		TotalTendered:    money("55000"),
		RefundOf:         sale.ID,
		RefundReasonCode: reason(pos.ReasonProductReturn),
	})
	require.NoError(t, err)
	assertMoney(t, "55000", refund.AmountDue)
	assertMoney(t, "100000", f.expected(t, sh.ID))
}

func TestRefundQuantityOverflowRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Gula 1kg", "15000", 1)
	sh := f.openShift(t, "0")
	sale, err := f.pos.Create(ctx, cashSale(sh.ID, "15000", pos.LineInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.pos.Create(ctx, pos.CreateInput{
		BranchID:         branch,
		ShiftID:          sh.ID,
		Lines:            []pos.LineInput{{ProductID: p.ID, Quantity: 1}, {ProductID: p.ID, Quantity: math.MaxInt64}},
		PaymentMethod:    pos.MethodQRIS,
		PaymentStatus:    pos.StatusRefunded,
		TotalPrice:       money("15000"),
		RefundOf:         sale.ID,
		RefundReasonCode: reason(pos.ReasonProductReturn),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Contains(t, shared.FieldErrors(err), "lines[1].quantity")
	assert.Equal(t, int64(0), f.quantity(t, p.ID))

	discrepancies, err := f.inventory.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestSaleQuantityOverflowIsInsufficientStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Garam", "2000", 5)
	sh := f.openShift(t, "0")

	_, err := f.pos.Create(ctx, cashSale(sh.ID, "0",
		pos.LineInput{ProductID: p.ID, Quantity: math.MaxInt64},
		pos.LineInput{ProductID: p.ID, Quantity: math.MaxInt64},
	))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	assert.Equal(t, int64(5), f.quantity(t, p.ID))
}

func TestRefundValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Mie", "3500", 10)
	sh := f.openShift(t, "0")

	base := pos.CreateInput{
		BranchID:      branch,
		ShiftID:       sh.ID,
		Lines:         []pos.LineInput{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: pos.MethodCash,
		PaymentStatus: pos.StatusRefunded,
	}
	_, err := f.pos.Create(ctx, base)
	require.ErrorIs(t, err, shared.ErrValidation)
	fields := shared.FieldErrors(err)
	assert.Contains(t, fields, "refund_of")
	assert.Contains(t, fields, "refund_reason_code")
	assert.Contains(t, fields, "total_price")

	missing := base
	missing.RefundOf = 42
	missing.RefundReasonCode = reason(pos.ReasonProductReturn)
	missing.TotalPrice = money("3500")
	_, err = f.pos.Create(ctx, missing)
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Contains(t, shared.FieldErrors(err), "refund_of")

	pending, err := f.pos.Create(ctx, pos.CreateInput{
		BranchID:      branch,
		ShiftID:       sh.ID,
		Lines:         []pos.LineInput{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: pos.MethodEWallet,
		PaymentStatus: pos.StatusPending,
	})
	require.NoError(t, err)
	notPaid := missing
	notPaid.RefundOf = pending.ID
	_, err = f.pos.Create(ctx, notPaid)
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, "must refer to a paid transaction", shared.FieldErrors(err)["refund_of"])

	sale, err := f.pos.Create(ctx, cashSale(sh.ID, "3500", pos.LineInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)
	other := missing
	other.RefundOf = sale.ID
	other.RefundReasonCode = reason(pos.ReasonOther)
	_, err = f.pos.Create(ctx, other)
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Contains(t, shared.FieldErrors(err), "refund_reason_text")
}

func TestClosedShiftRejectsTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Susu", "8000", 4)
	sh := f.openShift(t, "20000")
	_, err := f.shifts.CloseShift(ctx, shift.CloseInput{ShiftID: sh.ID, CountedBalance: money("20000")})
	require.NoError(t, err)

	_, err = f.pos.Create(ctx, cashSale(sh.ID, "8000", pos.LineInput{ProductID: p.ID, Quantity: 1}))
	require.ErrorIs(t, err, shared.ErrInvalidState)
	assert.Equal(t, int64(4), f.quantity(t, p.ID))
	assertMoney(t, "20000", f.expected(t, sh.ID))

	_, err = f.pos.Create(ctx, cashSale(999, "8000", pos.LineInput{ProductID: p.ID, Quantity: 1}))
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Contains(t, shared.FieldErrors(err), "shift_id")
}

func TestUnknownStockRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, err := f.catalog.CreateProduct(ctx, catalog.ProductInput{Name: "Tanpa Stok", Price: money("1000")})
	require.NoError(t, err)
	sh := f.openShift(t, "0")

	_, err = f.pos.Create(ctx, cashSale(sh.ID, "1000", pos.LineInput{ProductID: p.ID, Quantity: 1}))
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Contains(t, shared.FieldErrors(err), "lines[0].product_id")
}

func TestDisabledProductCannotBeSold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Rokok", "25000", 10)
	_, err := f.catalog.UpdateProduct(ctx, p.ID, catalog.ProductInput{Name: p.Name, Price: p.Price, Status: catalog.StatusDisabled})
	require.NoError(t, err)
	sh := f.openShift(t, "0")

	_, err = f.pos.Create(ctx, cashSale(sh.ID, "25000", pos.LineInput{ProductID: p.ID, Quantity: 1}))
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Contains(t, shared.FieldErrors(err), "lines[0].product_id")
}

func TestNonCashSaleLeavesDrawerUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Kopi", "15000", 5)
	sh := f.openShift(t, "50000")

	in := cashSale(sh.ID, "15000", pos.LineInput{ProductID: p.ID, Quantity: 1})
	in.PaymentMethod = pos.MethodQRIS
	_, err := f.pos.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(4), f.quantity(t, p.ID))
	assertMoney(t, "50000", f.expected(t, sh.ID))
	assert.Equal(t, 1, f.metrics.posted["paid/qris"])
}

func TestChangeIsNotKeptInDrawer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Teh Botol", "50000", 5)
	sh := f.openShift(t, "0")

	tr, err := f.pos.Create(ctx, cashSale(sh.ID, "60000", pos.LineInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)
	assertMoney(t, "10000", tr.Change())
	assertMoney(t, "50000", f.expected(t, sh.ID))
}

func TestDiscountSnapshotAndPolicy(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		policy   pos.DiscountPolicy
		discount string
		due      string
	}{
		{pos.PolicyPreTax, "10000", "101000"},
		{pos.PolicyPostTax, "11100", "99900"},
	} {
		t.Run(string(tc.policy), func(t *testing.T) {
			f := newFixture(t, pos.Options{Policy: tc.policy})
			p, _ := f.product(t, "Minyak", "25000", 10)
			d, err := f.catalog.CreateDiscount(ctx, catalog.DiscountInput{Name: "Promo 10", Kind: catalog.DiscountPercent, Amount: money("10")})
			require.NoError(t, err)
			sh := f.openShift(t, "0")

			in := cashSale(sh.ID, "200000", pos.LineInput{ProductID: p.ID, Quantity: 4})
			in.DiscountID = d.ID
			in.TotalTax = money("11000")
			tr, err := f.pos.Create(ctx, in)
			require.NoError(t, err)
			assertMoney(t, "100000", tr.TotalPrice)
			assertMoney(t, tc.discount, tr.DiscountValue)
			assertMoney(t, tc.due, tr.AmountDue)
			assertMoney(t, tc.due, f.expected(t, sh.ID))
			require.NotNil(t, tr.Discount)
			assert.Equal(t, catalog.DiscountPercent, tr.Discount.Kind)

			_, err = f.catalog.UpdateDiscount(ctx, d.ID, catalog.DiscountInput{Name: "Promo 50", Kind: catalog.DiscountPercent, Amount: money("50")})
			require.NoError(t, err)
			stored, err := f.pos.GetWithLines(ctx, tr.ID)
			require.NoError(t, err)
			assertMoney(t, "10", stored.Discount.Amount)
			assertMoney(t, tc.discount, stored.DiscountValue)
			require.Len(t, stored.Lines, 1)
		})
	}
}

func TestInactiveDiscountRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Kecap", "9000", 10)
	d, err := f.catalog.CreateDiscount(ctx, catalog.DiscountInput{Name: "Lama", Kind: catalog.DiscountFixed, Amount: money("1000"), Status: catalog.StatusDisabled})
	require.NoError(t, err)
	sh := f.openShift(t, "0")

	in := cashSale(sh.ID, "9000", pos.LineInput{ProductID: p.ID, Quantity: 1})
	in.DiscountID = d.ID
	_, err = f.pos.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Contains(t, shared.FieldErrors(err), "discount_id")
	assert.Equal(t, int64(10), f.quantity(t, p.ID))
}

func TestProductPriceChangeKeepsLineSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Telur", "2000", 30)
	sh := f.openShift(t, "0")
	tr, err := f.pos.Create(ctx, cashSale(sh.ID, "20000", pos.LineInput{ProductID: p.ID, Quantity: 10}))
	require.NoError(t, err)

	_, err = f.catalog.UpdateProduct(ctx, p.ID, catalog.ProductInput{Name: p.Name, Price: money("2500")})
	require.NoError(t, err)

	stored, err := f.pos.GetWithLines(ctx, tr.ID)
	require.NoError(t, err)
	assertMoney(t, "20000", stored.TotalPrice)
	assertMoney(t, "2000", stored.Lines[0].UnitPrice)
}

func TestDeleteTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Garam", "3000", 5)
	sh := f.openShift(t, "0")
	tr, err := f.pos.Create(ctx, cashSale(sh.ID, "3000", pos.LineInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	deleted, err := f.pos.Delete(ctx, tr.ID, 77)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, int64(77), deleted.DeletedBy)

	_, err = f.pos.Delete(ctx, tr.ID, 77)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	visible, err := f.pos.ListByShift(ctx, sh.ID, false)
	require.NoError(t, err)
	assert.Empty(t, visible)
	all, err := f.pos.ListByShift(ctx, sh.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, int64(4), f.quantity(t, p.ID))
}

func TestIdempotencyKeyReturnsOriginal(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f := newFixture(t, pos.Options{Guard: shared.NewIdempotencyGuard(client, time.Hour)})
	p, _ := f.product(t, "Kopi Bubuk", "12000", 10)
	sh := f.openShift(t, "0")

	in := cashSale(sh.ID, "24000", pos.LineInput{ProductID: p.ID, Quantity: 2})
	in.IdempotencyKey = "till-1-0001"
	first, err := f.pos.Create(ctx, in)
	require.NoError(t, err)
	second, err := f.pos.Create(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Lines, 1)
	assert.Equal(t, int64(8), f.quantity(t, p.ID))
	assertMoney(t, "24000", f.expected(t, sh.ID))
	assert.Equal(t, 1, f.metrics.posted["paid/cash"])
}

func TestIdempotencyKeyReleasedOnFailure(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f := newFixture(t, pos.Options{Guard: shared.NewIdempotencyGuard(client, time.Hour)})
	p, _ := f.product(t, "Teh Celup", "6000", 1)
	sh := f.openShift(t, "0")

	in := cashSale(sh.ID, "12000", pos.LineInput{ProductID: p.ID, Quantity: 2})
	in.IdempotencyKey = "till-1-0002"
	_, err := f.pos.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	in.Lines[0].Quantity = 1
	tr, err := f.pos.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tr.ID)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pos.Options{})
	p, _ := f.product(t, "Es Krim", "7000", 10)
	sh := f.openShift(t, "0")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.pos.Create(ctx, cashSale(sh.ID, "7000", pos.LineInput{ProductID: p.ID, Quantity: 1}))
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, success)
	assert.Equal(t, int64(0), f.quantity(t, p.ID))
	assertMoney(t, "70000", f.expected(t, sh.ID))

	discrepancies, err := f.inventory.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}
