package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoku/pos-core/internal/platform/db"
	"github.com/tokoku/pos-core/internal/shared"
)

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	queries
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{queries: queries{q: pool}}
}

// NewReader returns a Reader bound to q, typically an open transaction.
func NewReader(q db.Querier) Reader {
	return queries{q: q}
}

type queries struct {
	q db.Querier
}

const productColumns = `id, name, price, status, COALESCE(created_by, 0), created_at, updated_at`

const discountColumns = `id, name, description, kind, amount, status, COALESCE(created_by, 0), created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanDiscount(row pgx.Row) (Discount, error) {
	var d Discount
	err := row.Scan(&d.ID, &d.Name, &d.Description, &d.Kind, &d.Amount, &d.Status, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (r queries) InsertProduct(ctx context.Context, p Product) (Product, error) {
	return scanProduct(r.q.QueryRow(ctx, `INSERT INTO products (name, price, status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+productColumns, p.Name, p.Price, string(p.Status), nullInt(p.CreatedBy), p.CreatedAt, p.UpdatedAt))
}

func (r queries) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	updated, err := scanProduct(r.q.QueryRow(ctx, `UPDATE products SET name=$2, price=$3, status=$4, updated_at=$5 WHERE id=$1 RETURNING `+productColumns,
		p.ID, p.Name, p.Price, string(p.Status), p.UpdatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NewNotFound("product", p.ID)
	}
	return updated, err
}

func (r queries) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NewNotFound("product", id)
	}
	return p, err
}

func (r queries) ProductsByID(ctx context.Context, ids []int64) (map[int64]Product, error) {
	out := make(map[int64]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r queries) ListProducts(ctx context.Context, includeDeleted bool) ([]Product, error) {
	rows, err := r.q.Query(ctx, `SELECT `+productColumns+` FROM products WHERE $1 OR status <> 'deleted' ORDER BY id`, includeDeleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r queries) InsertDiscount(ctx context.Context, d Discount) (Discount, error) {
	return scanDiscount(r.q.QueryRow(ctx, `INSERT INTO discounts (name, description, kind, amount, status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+discountColumns, d.Name, d.Description, string(d.Kind), d.Amount, string(d.Status), nullInt(d.CreatedBy), d.CreatedAt, d.UpdatedAt))
}

func (r queries) UpdateDiscount(ctx context.Context, d Discount) (Discount, error) {
	updated, err := scanDiscount(r.q.QueryRow(ctx, `UPDATE discounts SET name=$2, description=$3, kind=$4, amount=$5, status=$6, updated_at=$7 WHERE id=$1 RETURNING `+discountColumns,
		d.ID, d.Name, d.Description, string(d.Kind), d.Amount, string(d.Status), d.UpdatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return Discount{}, shared.NewNotFound("discount", d.ID)
	}
	return updated, err
}

func (r queries) GetDiscount(ctx context.Context, id int64) (Discount, error) {
	d, err := scanDiscount(r.q.QueryRow(ctx, `SELECT `+discountColumns+` FROM discounts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Discount{}, shared.NewNotFound("discount", id)
	}
	return d, err
}

func (r queries) ListDiscounts(ctx context.Context, includeDeleted bool) ([]Discount, error) {
	rows, err := r.q.Query(ctx, `SELECT `+discountColumns+` FROM discounts WHERE $1 OR status <> 'deleted' ORDER BY id`, includeDeleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	discounts := []Discount{}
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		discounts = append(discounts, d)
	}
	return discounts, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
