package postgres

import (
	"context"
	"fmt"
	"log"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_owner ON users (owner_id)`,
	`CREATE TABLE IF NOT EXISTS branches (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_branches_owner ON branches (owner_id)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_categories_owner_name ON categories (owner_id, lower(name))`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		contact TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		is_default BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_suppliers_owner_name ON suppliers (owner_id, lower(name))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_suppliers_owner_default ON suppliers (owner_id) WHERE is_default`,
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		loyalty_points BIGINT NOT NULL DEFAULT 0 CHECK (loyalty_points >= 0),
		total_purchases NUMERIC(14,2) NOT NULL DEFAULT 0,
		last_visit TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_customers_owner ON customers (owner_id)`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		branch_id TEXT NOT NULL REFERENCES branches(id),
		category_id TEXT REFERENCES categories(id),
		supplier_id TEXT REFERENCES suppliers(id),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		barcode TEXT NOT NULL,
		cost_price NUMERIC(14,2) NOT NULL DEFAULT 0,
		selling_price NUMERIC(14,2) NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		min_stock INTEGER NOT NULL DEFAULT 0,
		max_stock INTEGER NOT NULL DEFAULT 0,
		unit_type TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_products_owner_barcode ON products (owner_id, barcode)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_products_branch_name ON products (owner_id, branch_id, lower(name))`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		product_id TEXT NOT NULL REFERENCES products(id),
		type TEXT NOT NULL CHECK (type IN ('IN','OUT','ADJUSTMENT','RETURN')),
		quantity INTEGER NOT NULL,
		delta INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		reference_type TEXT NOT NULL DEFAULT '',
		reference_id TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_product ON stock_movements (product_id, seq)`,
	`CREATE TABLE IF NOT EXISTS settings (
		owner_id TEXT PRIMARY KEY,
		default_tax NUMERIC(5,2) NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		branch_id TEXT NOT NULL REFERENCES branches(id),
		customer_id TEXT REFERENCES customers(id),
		cashier_id TEXT NOT NULL,
		subtotal NUMERIC(14,2) NOT NULL,
		tax_rate NUMERIC(5,2) NOT NULL,
		tax NUMERIC(14,2) NOT NULL,
		discount NUMERIC(14,2) NOT NULL DEFAULT 0,
		total NUMERIC(14,2) NOT NULL,
		payment_method TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_owner_created ON sales (owner_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL REFERENCES sales(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(14,2) NOT NULL,
		line_total NUMERIC(14,2) NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`ALTER TABLE sale_items ADD COLUMN IF NOT EXISTS position INTEGER NOT NULL DEFAULT 0`,
	`CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items (sale_id)`,
	`CREATE TABLE IF NOT EXISTS receipts (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL UNIQUE REFERENCES sales(id),
		receipt_number TEXT NOT NULL UNIQUE,
		generated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS refunds (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		sale_id TEXT NOT NULL REFERENCES sales(id),
		reason TEXT NOT NULL DEFAULT '',
		refunded_by TEXT NOT NULL DEFAULT '',
		refund_amount NUMERIC(14,2) NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refunds_sale ON refunds (sale_id)`,
	`CREATE TABLE IF NOT EXISTS refund_items (
		id TEXT PRIMARY KEY,
		refund_id TEXT NOT NULL REFERENCES refunds(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(14,2) NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	)`,
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	log.Printf("[postgres] schema ready (%d statements)", len(schema))
	return nil
}
