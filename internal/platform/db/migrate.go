package db

import (
	"context"
	"fmt"
)

// schema creates the tables backing the POS core. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		price NUMERIC(14,2) NOT NULL CHECK (price >= 0),
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','disabled','deleted')),
		created_by BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS discounts (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL CHECK (kind IN ('fixed','percent')),
		amount NUMERIC(14,2) NOT NULL CHECK (amount >= 0),
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','disabled','deleted')),
		created_by BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (kind <> 'percent' OR amount <= 100)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_levels (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products(id),
		branch_id BIGINT NOT NULL,
		quantity BIGINT NOT NULL CHECK (quantity >= 0),
		created_by BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (product_id, branch_id)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_adjustments (
		id BIGSERIAL PRIMARY KEY,
		stock_id BIGINT NOT NULL REFERENCES stock_levels(id),
		product_id BIGINT NOT NULL REFERENCES products(id),
		branch_id BIGINT NOT NULL,
		direction TEXT NOT NULL CHECK (direction IN ('increase','decrease')),
		quantity BIGINT NOT NULL CHECK (quantity > 0),
		quantity_before BIGINT NOT NULL,
		quantity_after BIGINT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		image_ref TEXT,
		transaction_id BIGINT,
		actor_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS stock_adjustments_stock_idx ON stock_adjustments (stock_id, id)`,
	`CREATE TABLE IF NOT EXISTS shifts (
		id BIGSERIAL PRIMARY KEY,
		cashier_id BIGINT NOT NULL,
		opening_balance NUMERIC(14,2) NOT NULL CHECK (opening_balance >= 0),
		expected_balance NUMERIC(14,2) NOT NULL,
		closing_balance NUMERIC(14,2),
		opened_by BIGINT,
		closed_by BIGINT,
		opened_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		closed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS shift_cash_entries (
		id BIGSERIAL PRIMARY KEY,
		shift_id BIGINT NOT NULL REFERENCES shifts(id),
		direction TEXT NOT NULL CHECK (direction IN ('in','out')),
		amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
		description TEXT NOT NULL DEFAULT '',
		actor_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		branch_id BIGINT NOT NULL,
		shift_id BIGINT NOT NULL REFERENCES shifts(id),
		discount_id BIGINT REFERENCES discounts(id),
		discount_kind TEXT,
		discount_amount NUMERIC(14,2),
		discount_value NUMERIC(14,2) NOT NULL DEFAULT 0,
		payment_method TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		total_price NUMERIC(14,2) NOT NULL,
		total_tendered NUMERIC(14,2) NOT NULL,
		total_tax NUMERIC(14,2) NOT NULL,
		amount_due NUMERIC(14,2) NOT NULL,
		refund_of BIGINT REFERENCES transactions(id),
		refund_reason_code SMALLINT,
		refund_reason TEXT,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_by BIGINT,
		deleted_at TIMESTAMPTZ,
		created_by BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_shift_idx ON transactions (shift_id, id)`,
	`CREATE TABLE IF NOT EXISTS transaction_lines (
		id BIGSERIAL PRIMARY KEY,
		transaction_id BIGINT NOT NULL REFERENCES transactions(id),
		product_id BIGINT NOT NULL REFERENCES products(id),
		quantity BIGINT NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(14,2) NOT NULL,
		subtotal NUMERIC(14,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		actor_id BIGINT,
		action TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		meta JSONB,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, q Querier) error {
	for i, stmt := range schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("platform/db: migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
