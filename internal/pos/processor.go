package pos

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokoku/pos-core/internal/catalog"
	"github.com/tokoku/pos-core/internal/inventory"
	"github.com/tokoku/pos-core/internal/shared"
	"github.com/tokoku/pos-core/internal/shift"
)

// Tx is the unit of work a transaction is posted in. Every accessor shares
// the same underlying database transaction.
type Tx interface {
	Ledger() inventory.Ledger
	Shifts() shift.Store
	Catalog() catalog.Reader
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	InsertLines(ctx context.Context, lines []Line) ([]Line, error)
	FindTransaction(ctx context.Context, id int64) (Transaction, error)
	LockTransaction(ctx context.Context, id int64) (Transaction, error)
	MarkDeleted(ctx context.Context, id, actorID int64, at time.Time) error
}

// Processor runs the posting sequence of one transaction inside a Tx. It
// never commits; the caller's unit of work does.
type Processor struct {
	reconciler *inventory.Reconciler
	register   *shift.Register
	policy     DiscountPolicy
	now        func() time.Time
}

// NewProcessor builds a Processor with the given discount policy.
func NewProcessor(policy DiscountPolicy) *Processor {
	if policy == "" {
		policy = PolicyPreTax
	}
	return &Processor{
		reconciler: inventory.NewReconciler(),
		register:   shift.NewRegister(),
		policy:     policy,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type pricedLine struct {
	input LineInput
	stock inventory.StockLevel
	line  Line
}

// Process validates, prices and posts input. Stock rows are locked in
// ascending id order before the shift row.
func (p *Processor) Process(ctx context.Context, tx Tx, input CreateInput) (Transaction, error) {
	if err := validateCreate(input); err != nil {
		return Transaction{}, err
	}
	refund := input.PaymentStatus.IsRefund()

	stocks, err := p.lockStocks(ctx, tx, input)
	if err != nil {
		return Transaction{}, err
	}
	if err := p.checkShift(ctx, tx, input.ShiftID); err != nil {
		return Transaction{}, err
	}
	priced, err := p.priceLines(ctx, tx, input, stocks)
	if err != nil {
		return Transaction{}, err
	}
	if !refund {
		if err := p.checkAvailability(priced); err != nil {
			return Transaction{}, err
		}
	}

	header := Transaction{
		BranchID:      input.BranchID,
		ShiftID:       input.ShiftID,
		PaymentMethod: input.PaymentMethod,
		PaymentStatus: input.PaymentStatus,
		TotalTendered: shared.RoundMoney(input.TotalTendered),
		TotalTax:      shared.RoundMoney(input.TotalTax),
		DiscountValue: decimal.Zero,
		CreatedBy:     input.ActorID,
		CreatedAt:     p.now(),
	}
	if refund {
		header.TotalPrice = shared.RoundMoney(input.TotalPrice)
		if err := p.attachRefund(ctx, tx, input, &header); err != nil {
			return Transaction{}, err
		}
	} else {
		header.TotalPrice = decimal.Zero
		for _, pl := range priced {
			header.TotalPrice = header.TotalPrice.Add(pl.line.Subtotal)
		}
	}
	if input.DiscountID > 0 {
		if err := p.attachDiscount(ctx, tx, input.DiscountID, &header); err != nil {
			return Transaction{}, err
		}
	}
	header.AmountDue = shared.RoundMoney(header.TotalPrice.Sub(header.DiscountValue).Add(header.TotalTax))

	created, err := tx.InsertTransaction(ctx, header)
	if err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	lines := make([]Line, len(priced))
	for i, pl := range priced {
		lines[i] = pl.line
		lines[i].TransactionID = created.ID
	}
	if created.Lines, err = tx.InsertLines(ctx, lines); err != nil {
		return Transaction{}, fmt.Errorf("insert transaction lines: %w", err)
	}

	note := fmt.Sprintf("Transaction #%d", created.ID)
	for i, pl := range priced {
		m := inventory.Movement{
			ProductID:     pl.line.ProductID,
			BranchID:      input.BranchID,
			Quantity:      pl.line.Quantity,
			Note:          note,
			TransactionID: created.ID,
			ActorID:       input.ActorID,
			Field:         fmt.Sprintf("lines[%d].quantity", i),
		}
		if refund {
			_, err = p.reconciler.ReconcileForRefund(ctx, tx.Ledger(), m)
		} else {
			_, err = p.reconciler.ReconcileForSale(ctx, tx.Ledger(), m)
		}
		if err != nil {
			return Transaction{}, err
		}
	}

	if _, err := p.register.Post(ctx, tx.Shifts(), created.ShiftID, cashEffect(created)); err != nil {
		return Transaction{}, err
	}
	return created, nil
}

// Delete soft-deletes a transaction. Stock and cash are left as posted.
func (p *Processor) Delete(ctx context.Context, tx Tx, id, actorID int64) (Transaction, error) {
	t, err := tx.LockTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if t.Deleted {
		return Transaction{}, shared.InvalidState("transaction %d is already deleted", id)
	}
	at := p.now()
	if err := tx.MarkDeleted(ctx, id, actorID, at); err != nil {
		return Transaction{}, err
	}
	t.Deleted = true
	t.DeletedBy = actorID
	t.DeletedAt = &at
	return t, nil
}

func validateCreate(input CreateInput) error {
	if err := shared.ValidateStruct(input); err != nil {
		return err
	}
	verr := &shared.ValidationError{}
	if input.PaymentStatus.IsRefund() {
		if input.RefundOf == 0 {
			verr.Add("refund_of", "is required for refunds")
		}
		if input.RefundReasonCode == nil {
			verr.Add("refund_reason_code", "is required for refunds")
		}
		if !input.TotalPrice.IsPositive() {
			verr.Add("total_price", "must be greater than zero for refunds")
		}
		if input.DiscountID > 0 {
			verr.Add("discount_id", "is not allowed on refunds")
		}
	} else if input.RefundOf != 0 || input.RefundReasonCode != nil {
		verr.Add("refund_of", "is only allowed when payment_status is refunded")
	}
	return verr.Err()
}

func (p *Processor) lockStocks(ctx context.Context, tx Tx, input CreateInput) (map[int64]inventory.StockLevel, error) {
	ids := make([]int64, 0, len(input.Lines))
	seen := make(map[int64]bool, len(input.Lines))
	for _, l := range input.Lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	rows, err := tx.Ledger().LockStocks(ctx, input.BranchID, ids)
	if err != nil {
		return nil, err
	}
	stocks := make(map[int64]inventory.StockLevel, len(rows))
	for _, s := range rows {
		stocks[s.ProductID] = s
	}
	for i, l := range input.Lines {
		if _, ok := stocks[l.ProductID]; !ok {
			return nil, &shared.NotFoundError{Entity: "stock level", Field: fmt.Sprintf("lines[%d].product_id", i)}
		}
	}
	return stocks, nil
}

func (p *Processor) checkShift(ctx context.Context, tx Tx, shiftID int64) error {
	s, err := tx.Shifts().LockShift(ctx, shiftID)
	if errors.Is(err, shared.ErrNotFound) {
		return &shared.NotFoundError{Entity: "shift", ID: shiftID, Field: "shift_id"}
	}
	if err != nil {
		return err
	}
	if s.Closed() {
		return shared.InvalidState("shift %d is closed", shiftID)
	}
	return nil
}

func (p *Processor) priceLines(ctx context.Context, tx Tx, input CreateInput, stocks map[int64]inventory.StockLevel) ([]pricedLine, error) {
	ids := make([]int64, 0, len(stocks))
	for id := range stocks {
		ids = append(ids, id)
	}
	products, err := tx.Catalog().ProductsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]pricedLine, len(input.Lines))
	for i, l := range input.Lines {
		product, ok := products[l.ProductID]
		if !ok {
			return nil, &shared.NotFoundError{Entity: "product", ID: l.ProductID, Field: fmt.Sprintf("lines[%d].product_id", i)}
		}
		if !input.PaymentStatus.IsRefund() && !product.Sellable() {
			return nil, shared.NewValidationError(fmt.Sprintf("lines[%d].product_id", i), "is not available for sale")
		}
		out[i] = pricedLine{
			input: l,
			stock: stocks[l.ProductID],
			line: Line{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				UnitPrice: product.Price,
				Subtotal:  shared.RoundMoney(product.Price.Mul(decimal.NewFromInt(l.Quantity))),
			},
		}
	}
	return out, nil
}

// checkAvailability rejects the first line whose running total for its
// product exceeds the locked quantity, before anything is written.
func (p *Processor) checkAvailability(lines []pricedLine) error {
	wanted := make(map[int64]int64, len(lines))
	for i, pl := range lines {
		if pl.input.Quantity > math.MaxInt64-wanted[pl.stock.ID] {
			wanted[pl.stock.ID] = math.MaxInt64
		} else {
			wanted[pl.stock.ID] += pl.input.Quantity
		}
		if err := p.reconciler.CheckAvailability(pl.stock, wanted[pl.stock.ID], fmt.Sprintf("lines[%d].quantity", i)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) attachDiscount(ctx context.Context, tx Tx, id int64, header *Transaction) error {
	d, err := tx.Catalog().GetDiscount(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return &shared.NotFoundError{Entity: "discount", ID: id, Field: "discount_id"}
	}
	if err != nil {
		return err
	}
	if !d.Applicable() {
		return shared.NewValidationError("discount_id", "is not active")
	}
	base := header.TotalPrice
	if p.policy == PolicyPostTax {
		base = base.Add(header.TotalTax)
	}
	header.Discount = &DiscountSnapshot{ID: d.ID, Kind: d.Kind, Amount: d.Amount}
	header.DiscountValue = d.Reduction(base)
	return nil
}

func (p *Processor) attachRefund(ctx context.Context, tx Tx, input CreateInput, header *Transaction) error {
	original, err := tx.FindTransaction(ctx, input.RefundOf)
	if errors.Is(err, shared.ErrNotFound) {
		return &shared.NotFoundError{Entity: "transaction", ID: input.RefundOf, Field: "refund_of"}
	}
	if err != nil {
		return err
	}
	switch {
	case original.Deleted:
		return shared.NewValidationError("refund_of", "refers to a deleted transaction")
	case original.PaymentStatus != StatusPaid:
		return shared.NewValidationError("refund_of", "must refer to a paid transaction")
	case original.BranchID != input.BranchID:
		return shared.NewValidationError("refund_of", "belongs to another branch")
	}
	reason, err := EncodeRefundReason(original.ID, *input.RefundReasonCode, input.RefundReasonText)
	if err != nil {
		return err
	}
	code := *input.RefundReasonCode
	header.RefundOf = original.ID
	header.RefundReasonCode = &code
	header.RefundReason = reason
	return nil
}

// cashEffect maps a transaction to its drawer movement. Only cash
// transactions that are paid or refunded touch the drawer, and both sides
// move by the amount due so a refund mirrors its sale.
func cashEffect(t Transaction) shift.TransactionEffect {
	if t.PaymentMethod != MethodCash {
		return shift.TransactionEffect{Kind: shift.EffectNone}
	}
	switch t.PaymentStatus {
	case StatusPaid:
		return shift.TransactionEffect{Kind: shift.EffectSale, Price: t.AmountDue, Tendered: t.TotalTendered}
	case StatusRefunded:
		return shift.TransactionEffect{Kind: shift.EffectRefund, Price: t.AmountDue}
	}
	return shift.TransactionEffect{Kind: shift.EffectNone}
}
