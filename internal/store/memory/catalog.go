package memory

import (
	"context"

	"github.com/tokoku/pos-core/internal/catalog"
	"github.com/tokoku/pos-core/internal/shared"
)

// CatalogRepository implements catalog.RepositoryPort.
type CatalogRepository struct {
	store *Store
}

type catalogTx struct {
	st *state
}

func (t catalogTx) ProductsByID(_ context.Context, ids []int64) (map[int64]catalog.Product, error) {
	out := make(map[int64]catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t catalogTx) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return catalog.Product{}, shared.NewNotFound("product", id)
	}
	return p, nil
}

func (t catalogTx) GetDiscount(_ context.Context, id int64) (catalog.Discount, error) {
	d, ok := t.st.discounts[id]
	if !ok {
		return catalog.Discount{}, shared.NewNotFound("discount", id)
	}
	return d, nil
}

// ProductsByID resolves the products that exist among ids.
func (r *CatalogRepository) ProductsByID(ctx context.Context, ids []int64) (map[int64]catalog.Product, error) {
	var (
		out map[int64]catalog.Product
		err error
	)
	r.store.read(func(st *state) { out, err = catalogTx{st}.ProductsByID(ctx, ids) })
	return out, err
}

// GetProduct loads a product.
func (r *CatalogRepository) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	var (
		p   catalog.Product
		err error
	)
	r.store.read(func(st *state) { p, err = catalogTx{st}.GetProduct(ctx, id) })
	return p, err
}

// GetDiscount loads a discount.
func (r *CatalogRepository) GetDiscount(ctx context.Context, id int64) (catalog.Discount, error) {
	var (
		d   catalog.Discount
		err error
	)
	r.store.read(func(st *state) { d, err = catalogTx{st}.GetDiscount(ctx, id) })
	return d, err
}

// InsertProduct stores a new product.
func (r *CatalogRepository) InsertProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	err := r.store.run(ctx, func(st *state) error {
		p.ID = st.next("product")
		st.products[p.ID] = p
		return nil
	})
	return p, err
}

// UpdateProduct replaces a stored product.
func (r *CatalogRepository) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	err := r.store.run(ctx, func(st *state) error {
		existing, ok := st.products[p.ID]
		if !ok {
			return shared.NewNotFound("product", p.ID)
		}
		p.CreatedBy, p.CreatedAt = existing.CreatedBy, existing.CreatedAt
		st.products[p.ID] = p
		return nil
	})
	return p, err
}

// ListProducts lists products by id.
func (r *CatalogRepository) ListProducts(_ context.Context, includeDeleted bool) ([]catalog.Product, error) {
	out := []catalog.Product{}
	r.store.read(func(st *state) {
		for _, id := range sortedKeys(st.products) {
			if p := st.products[id]; includeDeleted || p.Status != catalog.StatusDeleted {
				out = append(out, p)
			}
		}
	})
	return out, nil
}

// InsertDiscount stores a new discount.
func (r *CatalogRepository) InsertDiscount(ctx context.Context, d catalog.Discount) (catalog.Discount, error) {
	err := r.store.run(ctx, func(st *state) error {
		d.ID = st.next("discount")
		st.discounts[d.ID] = d
		return nil
	})
	return d, err
}

// UpdateDiscount replaces a stored discount.
func (r *CatalogRepository) UpdateDiscount(ctx context.Context, d catalog.Discount) (catalog.Discount, error) {
	err := r.store.run(ctx, func(st *state) error {
		existing, ok := st.discounts[d.ID]
		if !ok {
			return shared.NewNotFound("discount", d.ID)
		}
		d.CreatedBy, d.CreatedAt = existing.CreatedBy, existing.CreatedAt
		st.discounts[d.ID] = d
		return nil
	})
	return d, err
}

// ListDiscounts lists discounts by id.
func (r *CatalogRepository) ListDiscounts(_ context.Context, includeDeleted bool) ([]catalog.Discount, error) {
	out := []catalog.Discount{}
	r.store.read(func(st *state) {
		for _, id := range sortedKeys(st.discounts) {
			if d := st.discounts[id]; includeDeleted || d.Status != catalog.StatusDeleted {
				out = append(out, d)
			}
		}
	})
	return out, nil
}
