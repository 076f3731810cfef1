package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokoku/pos-core/internal/shared"
)

type memoryRepo struct {
	products  map[int64]Product
	discounts map[int64]Discount
	nextID    int64
	inserts   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: map[int64]Product{}, discounts: map[int64]Discount{}}
}

func (r *memoryRepo) InsertProduct(_ context.Context, p Product) (Product, error) {
	r.nextID++
	r.inserts++
	p.ID = r.nextID
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) UpdateProduct(_ context.Context, p Product) (Product, error) {
	if _, ok := r.products[p.ID]; !ok {
		return Product{}, shared.NewNotFound("product", p.ID)
	}
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) GetProduct(_ context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.NewNotFound("product", id)
	}
	return p, nil
}

func (r *memoryRepo) ProductsByID(_ context.Context, ids []int64) (map[int64]Product, error) {
	out := map[int64]Product{}
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *memoryRepo) ListProducts(_ context.Context, includeDeleted bool) ([]Product, error) {
	var out []Product
	for id := int64(1); id <= r.nextID; id++ {
		if p, ok := r.products[id]; ok && (includeDeleted || p.Status != StatusDeleted) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) InsertDiscount(_ context.Context, d Discount) (Discount, error) {
	r.nextID++
	r.inserts++
	d.ID = r.nextID
	r.discounts[d.ID] = d
	return d, nil
}

func (r *memoryRepo) UpdateDiscount(_ context.Context, d Discount) (Discount, error) {
	r.discounts[d.ID] = d
	return d, nil
}

func (r *memoryRepo) GetDiscount(_ context.Context, id int64) (Discount, error) {
	d, ok := r.discounts[id]
	if !ok {
		return Discount{}, shared.NewNotFound("discount", id)
	}
	return d, nil
}

func (r *memoryRepo) ListDiscounts(_ context.Context, includeDeleted bool) ([]Discount, error) {
	var out []Discount
	for id := int64(1); id <= r.nextID; id++ {
		if d, ok := r.discounts[id]; ok && (includeDeleted || d.Status != StatusDeleted) {
			out = append(out, d)
		}
	}
	return out, nil
}

func TestCreateDiscountRejectsPercentAboveHundred(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.CreateDiscount(context.Background(), DiscountInput{
		Name:   "Mega sale",
		Kind:   DiscountPercent,
		Amount: decimal.NewFromInt(150),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Contains(t, shared.FieldErrors(err), "amount")
	assert.Zero(t, repo.inserts)
}

func TestCreateDiscountBounds(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	full, err := svc.CreateDiscount(ctx, DiscountInput{Name: "All", Kind: DiscountPercent, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, full.Status)

	_, err = svc.CreateDiscount(ctx, DiscountInput{Name: "Neg", Kind: DiscountFixed, Amount: decimal.NewFromInt(-5)})
	require.ErrorIs(t, err, shared.ErrValidation)

	big, err := svc.CreateDiscount(ctx, DiscountInput{Name: "Big cut", Kind: DiscountFixed, Amount: decimal.NewFromInt(150000)})
	require.NoError(t, err)
	assert.True(t, big.Amount.Equal(decimal.NewFromInt(150000)))

	_, err = svc.CreateDiscount(ctx, DiscountInput{Name: "Odd", Kind: "bogo", Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Contains(t, shared.FieldErrors(err), "kind")
}

func TestUpdateDiscountValidatesBeforeWrite(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	d, err := svc.CreateDiscount(ctx, DiscountInput{Name: "Ten", Kind: DiscountPercent, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	_, err = svc.UpdateDiscount(ctx, d.ID, DiscountInput{Name: "Ten", Kind: DiscountPercent, Amount: decimal.NewFromInt(101)})
	require.ErrorIs(t, err, shared.ErrValidation)
	stored, _ := repo.GetDiscount(ctx, d.ID)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(10)))
}

func TestDiscountReduction(t *testing.T) {
	base := decimal.RequireFromString("50000")
	pct := Discount{Kind: DiscountPercent, Amount: decimal.RequireFromString("12.5")}
	assert.Equal(t, "6250", pct.Reduction(base).String())

	fixed := Discount{Kind: DiscountFixed, Amount: decimal.NewFromInt(70000)}
	assert.True(t, fixed.Reduction(base).Equal(base))
	assert.True(t, fixed.Reduction(decimal.Zero).IsZero())
}

func TestProductLifecycle(t *testing.T) {
	audit := &shared.MemoryAudit{}
	svc := NewService(newMemoryRepo(), audit, nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, ProductInput{Name: "  Kopi   Susu ", Price: decimal.RequireFromString("18000.455")})
	require.NoError(t, err)
	assert.Equal(t, "Kopi Susu", p.Name)
	assert.Equal(t, "18000.46", p.Price.StringFixed(2))
	assert.True(t, p.Sellable())

	p, err = svc.UpdateProduct(ctx, p.ID, ProductInput{Name: "Kopi Susu", Price: decimal.NewFromInt(20000), Status: StatusDisabled})
	require.NoError(t, err)
	assert.False(t, p.Sellable())

	require.NoError(t, svc.DeleteProduct(ctx, p.ID, 9))
	require.ErrorIs(t, svc.DeleteProduct(ctx, p.ID, 9), shared.ErrInvalidState)

	listed, err := svc.ListProducts(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, listed)
	listed, err = svc.ListProducts(ctx, true)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	entries := audit.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "product.delete", entries[1].Action)
	assert.Equal(t, int64(9), entries[1].ActorID)
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.CreateProduct(context.Background(), ProductInput{Name: "   ", Price: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, shared.ErrValidation)
	fields := shared.FieldErrors(err)
	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "must not be negative", fields["price"])
}
