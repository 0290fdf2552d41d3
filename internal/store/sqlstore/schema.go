package sqlstore

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS medicines (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		generic_name TEXT NOT NULL DEFAULT '',
		manufacturer TEXT NOT NULL DEFAULT '',
		hsn_code TEXT NOT NULL DEFAULT '',
		gst_rate NUMERIC(5,2) NOT NULL DEFAULT 0,
		schedule TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS vendors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		gstin TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		gstin TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		medicine_id TEXT NOT NULL REFERENCES medicines(id),
		vendor_id TEXT NOT NULL REFERENCES vendors(id),
		lot_code TEXT NOT NULL,
		mfg_date DATE NOT NULL,
		exp_date DATE NOT NULL,
		purchase_rate NUMERIC(12,2) NOT NULL,
		mrp NUMERIC(12,2) NOT NULL,
		quantity_available INTEGER NOT NULL CHECK (quantity_available >= 0),
		rack_location TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT batches_medicine_lot_key UNIQUE (medicine_id, lot_code)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_ledger_entries (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		batch_id TEXT NOT NULL REFERENCES batches(id),
		kind TEXT NOT NULL CHECK (kind IN ('purchase','sale','return','adjustment')),
		reference_id TEXT NOT NULL,
		delta INTEGER NOT NULL CHECK (delta <> 0),
		balance_after INTEGER NOT NULL CHECK (balance_after >= 0),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_ledger_batch ON stock_ledger_entries (batch_id, seq)`,
	`CREATE TABLE IF NOT EXISTS invoice_sequences (
		fiscal_year TEXT PRIMARY KEY,
		last_number BIGINT NOT NULL CHECK (last_number >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		bill_number TEXT NOT NULL UNIQUE,
		fiscal_year TEXT NOT NULL,
		customer_id TEXT REFERENCES customers(id),
		customer_name TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		payment_mode TEXT NOT NULL CHECK (payment_mode IN ('cash','credit','upi')),
		tax_scope TEXT NOT NULL,
		taxable_amount NUMERIC(14,2) NOT NULL,
		tax_amount NUMERIC(14,2) NOT NULL,
		cgst NUMERIC(14,2) NOT NULL,
		sgst NUMERIC(14,2) NOT NULL,
		igst NUMERIC(14,2) NOT NULL,
		total_amount NUMERIC(14,2) NOT NULL,
		content_hash TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL REFERENCES sales(id),
		line_no INTEGER NOT NULL,
		batch_id TEXT NOT NULL REFERENCES batches(id),
		medicine_id TEXT NOT NULL REFERENCES medicines(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		selling_price NUMERIC(12,2) NOT NULL,
		mrp_at_sale NUMERIC(12,2) NOT NULL,
		line_total NUMERIC(14,2) NOT NULL,
		CONSTRAINT sale_items_price_within_mrp CHECK (selling_price <= mrp_at_sale)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items (sale_id, line_no)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		vendor_id TEXT NOT NULL REFERENCES vendors(id),
		invoice_number TEXT NOT NULL,
		invoice_date DATE NOT NULL,
		total_amount NUMERIC(14,2) NOT NULL,
		received_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_items (
		id TEXT PRIMARY KEY,
		purchase_id TEXT NOT NULL REFERENCES purchases(id),
		batch_id TEXT NOT NULL REFERENCES batches(id),
		medicine_id TEXT NOT NULL REFERENCES medicines(id),
		lot_code TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		purchase_rate NUMERIC(12,2) NOT NULL,
		mrp NUMERIC(12,2) NOT NULL,
		batch_created BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stock_adjustments (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL REFERENCES batches(id),
		delta INTEGER NOT NULL CHECK (delta <> 0),
		reason TEXT NOT NULL CHECK (reason IN ('damage','expired','theft','manual_correction','other')),
		note TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL,
		balance_after INTEGER NOT NULL CHECK (balance_after >= 0),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sales_returns (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL REFERENCES sales(id),
		reason TEXT NOT NULL,
		total_refund NUMERIC(14,2) NOT NULL,
		actor TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sales_return_items (
		id TEXT PRIMARY KEY,
		return_id TEXT NOT NULL REFERENCES sales_returns(id),
		sale_item_id TEXT NOT NULL REFERENCES sale_items(id),
		batch_id TEXT NOT NULL REFERENCES batches(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		refund_amount NUMERIC(14,2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_return_items_sale_item ON sales_return_items (sale_item_id)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		actor TEXT NOT NULL,
		actor_role TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		before_data TEXT NOT NULL DEFAULT '',
		after_data TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// SQLite keeps money as TEXT so amounts round-trip exactly; the price
// check casts to REAL for the comparison only.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS medicines (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		generic_name TEXT NOT NULL DEFAULT '',
		manufacturer TEXT NOT NULL DEFAULT '',
		hsn_code TEXT NOT NULL DEFAULT '',
		gst_rate TEXT NOT NULL DEFAULT '0',
		schedule TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS vendors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		gstin TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		gstin TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		medicine_id TEXT NOT NULL REFERENCES medicines(id),
		vendor_id TEXT NOT NULL REFERENCES vendors(id),
		lot_code TEXT NOT NULL,
		mfg_date DATE NOT NULL,
		exp_date DATE NOT NULL,
		purchase_rate TEXT NOT NULL,
		mrp TEXT NOT NULL,
		quantity_available INTEGER NOT NULL CHECK (quantity_available >= 0),
		rack_location TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (medicine_id, lot_code)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_ledger_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		batch_id TEXT NOT NULL REFERENCES batches(id),
		kind TEXT NOT NULL CHECK (kind IN ('purchase','sale','return','adjustment')),
		reference_id TEXT NOT NULL,
		delta INTEGER NOT NULL CHECK (delta <> 0),
		balance_after INTEGER NOT NULL CHECK (balance_after >= 0),
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_ledger_batch ON stock_ledger_entries (batch_id, seq)`,
	`CREATE TABLE IF NOT EXISTS invoice_sequences (
		fiscal_year TEXT PRIMARY KEY,
		last_number INTEGER NOT NULL CHECK (last_number >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		bill_number TEXT NOT NULL UNIQUE,
		fiscal_year TEXT NOT NULL,
		customer_id TEXT REFERENCES customers(id),
		customer_name TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		payment_mode TEXT NOT NULL CHECK (payment_mode IN ('cash','credit','upi')),
		tax_scope TEXT NOT NULL,
		taxable_amount TEXT NOT NULL,
		tax_amount TEXT NOT NULL,
		cgst TEXT NOT NULL,
		sgst TEXT NOT NULL,
		igst TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL REFERENCES sales(id),
		line_no INTEGER NOT NULL,
		batch_id TEXT NOT NULL REFERENCES batches(id),
		medicine_id TEXT NOT NULL REFERENCES medicines(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		selling_price TEXT NOT NULL,
		mrp_at_sale TEXT NOT NULL,
		line_total TEXT NOT NULL,
		CHECK (CAST(selling_price AS REAL) <= CAST(mrp_at_sale AS REAL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items (sale_id, line_no)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		vendor_id TEXT NOT NULL REFERENCES vendors(id),
		invoice_number TEXT NOT NULL,
		invoice_date DATE NOT NULL,
		total_amount TEXT NOT NULL,
		received_by TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_items (
		id TEXT PRIMARY KEY,
		purchase_id TEXT NOT NULL REFERENCES purchases(id),
		batch_id TEXT NOT NULL REFERENCES batches(id),
		medicine_id TEXT NOT NULL REFERENCES medicines(id),
		lot_code TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		purchase_rate TEXT NOT NULL,
		mrp TEXT NOT NULL,
		batch_created INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stock_adjustments (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL REFERENCES batches(id),
		delta INTEGER NOT NULL CHECK (delta <> 0),
		reason TEXT NOT NULL CHECK (reason IN ('damage','expired','theft','manual_correction','other')),
		note TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL,
		balance_after INTEGER NOT NULL CHECK (balance_after >= 0),
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sales_returns (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL REFERENCES sales(id),
		reason TEXT NOT NULL,
		total_refund TEXT NOT NULL,
		actor TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sales_return_items (
		id TEXT PRIMARY KEY,
		return_id TEXT NOT NULL REFERENCES sales_returns(id),
		sale_item_id TEXT NOT NULL REFERENCES sale_items(id),
		batch_id TEXT NOT NULL REFERENCES batches(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		refund_amount TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_return_items_sale_item ON sales_return_items (sale_item_id)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		actor TEXT NOT NULL,
		actor_role TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		before_data TEXT NOT NULL DEFAULT '',
		after_data TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
}

// Migrate creates any missing tables. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	statements := postgresSchema
	if s.dialect == DialectSQLite {
		statements = sqliteSchema
	}
	for i, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
