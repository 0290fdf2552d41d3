package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
)

type unitOfWork struct {
	tx      *sqlx.Tx
	dialect Dialect
}

// forUpdate is appended to row reads that must hold the row until the
// unit of work ends.
func (u *unitOfWork) forUpdate() string {
	if u.dialect == DialectPostgres {
		return ` FOR UPDATE`
	}
	return ``
}

func (u *unitOfWork) exec(ctx context.Context, query string, args ...any) error {
	_, err := u.tx.ExecContext(ctx, u.tx.Rebind(query), args...)
	return err
}

func (u *unitOfWork) NextInvoiceNumber(ctx context.Context, fiscalYear string) (int64, error) {
	if err := u.exec(ctx, `
		INSERT INTO invoice_sequences (fiscal_year, last_number)
		VALUES (?, 0)
		ON CONFLICT (fiscal_year) DO NOTHING
	`, fiscalYear); err != nil {
		return 0, err
	}

	var last int64
	err := u.tx.GetContext(ctx, &last, u.tx.Rebind(`
		SELECT last_number FROM invoice_sequences WHERE fiscal_year = ?`+u.forUpdate()), fiscalYear)
	if err != nil {
		return 0, err
	}

	next := last + 1
	if err := u.exec(ctx, `UPDATE invoice_sequences SET last_number = ? WHERE fiscal_year = ?`, next, fiscalYear); err != nil {
		return 0, err
	}
	return next, nil
}

func (u *unitOfWork) LockBatch(ctx context.Context, id string) (*domain.Batch, error) {
	var batch domain.Batch
	err := u.tx.GetContext(ctx, &batch, u.tx.Rebind(`SELECT `+batchColumns+` FROM batches WHERE id = ?`+u.forUpdate()), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (u *unitOfWork) LockBatchByLot(ctx context.Context, medicineID string, lotCode string) (*domain.Batch, error) {
	var batch domain.Batch
	err := u.tx.GetContext(ctx, &batch, u.tx.Rebind(`
		SELECT `+batchColumns+`
		FROM batches
		WHERE medicine_id = ? AND lot_code = ?`+u.forUpdate()), medicineID, lotCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (u *unitOfWork) CreateBatch(ctx context.Context, b domain.Batch) error {
	return u.exec(ctx, `
		INSERT INTO batches (
			id, medicine_id, vendor_id, lot_code, mfg_date, exp_date, purchase_rate, mrp,
			quantity_available, rack_location, active, created_at, updated_at
		)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, b.ID, b.MedicineID, b.VendorID, b.LotCode, b.MfgDate, b.ExpDate, b.PurchaseRate, b.MRP,
		b.QuantityAvailable, b.RackLocation, b.Active, b.CreatedAt, b.UpdatedAt)
}

func (u *unitOfWork) UpdateBatch(ctx context.Context, b domain.Batch) error {
	res, err := u.tx.ExecContext(ctx, u.tx.Rebind(`
		UPDATE batches
		SET quantity_available = ?, purchase_rate = ?, mrp = ?, rack_location = ?, active = ?, updated_at = ?
		WHERE id = ?
	`), b.QuantityAvailable, b.PurchaseRate, b.MRP, b.RackLocation, b.Active, b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (u *unitOfWork) AppendLedgerEntry(ctx context.Context, entry domain.StockLedgerEntry) (*domain.StockLedgerEntry, error) {
	err := u.tx.QueryRowxContext(ctx, u.tx.Rebind(`
		INSERT INTO stock_ledger_entries (id, batch_id, kind, reference_id, delta, balance_after, created_at)
		VALUES (?,?,?,?,?,?,?)
		RETURNING seq
	`), entry.ID, entry.BatchID, entry.Kind, entry.ReferenceID, entry.Delta, entry.BalanceAfter, entry.CreatedAt).Scan(&entry.Seq)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (u *unitOfWork) CreateSale(ctx context.Context, sale domain.Sale) error {
	err := u.exec(ctx, `
		INSERT INTO sales (
			id, bill_number, fiscal_year, customer_id, customer_name, customer_phone,
			payment_mode, tax_scope, taxable_amount, tax_amount, cgst, sgst, igst, total_amount,
			content_hash, created_by, created_at
		)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, sale.ID, sale.BillNumber, sale.FiscalYear, sale.CustomerID, sale.CustomerName, sale.CustomerPhone,
		sale.PaymentMode, sale.TaxScope, sale.TaxableAmount, sale.TaxAmount, sale.CGST, sale.SGST, sale.IGST,
		sale.TotalAmount, sale.ContentHash, sale.CreatedBy, sale.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range sale.Items {
		err := u.exec(ctx, `
			INSERT INTO sale_items (id, sale_id, line_no, batch_id, medicine_id, quantity, selling_price, mrp_at_sale, line_total)
			VALUES (?,?,?,?,?,?,?,?,?)
		`, item.ID, sale.ID, item.LineNo, item.BatchID, item.MedicineID, item.Quantity, item.SellingPrice, item.MRPAtSale, item.LineTotal)
		if err != nil {
			return fmt.Errorf("insert sale item %d: %w", item.LineNo, err)
		}
	}
	return nil
}

func (u *unitOfWork) LockSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := u.tx.GetContext(ctx, &sale, u.tx.Rebind(`SELECT `+saleColumns+` FROM sales WHERE id = ?`+u.forUpdate()), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := selectSaleItems(ctx, u.tx, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (u *unitOfWork) ReturnedQuantities(ctx context.Context, saleID string) (map[string]int, error) {
	rows, err := u.tx.QueryxContext(ctx, u.tx.Rebind(`
		SELECT ri.sale_item_id, SUM(ri.quantity)
		FROM sales_return_items ri
		JOIN sales_returns r ON r.id = ri.return_id
		WHERE r.sale_id = ?
		GROUP BY ri.sale_item_id
	`), saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var saleItemID string
		var qty int
		if err := rows.Scan(&saleItemID, &qty); err != nil {
			return nil, err
		}
		result[saleItemID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (u *unitOfWork) CreateSalesReturn(ctx context.Context, ret domain.SalesReturn) error {
	err := u.exec(ctx, `
		INSERT INTO sales_returns (id, sale_id, reason, total_refund, actor, created_at)
		VALUES (?,?,?,?,?,?)
	`, ret.ID, ret.SaleID, ret.Reason, ret.TotalRefund, ret.Actor, ret.CreatedAt)
	if err != nil {
		return err
	}
	for _, item := range ret.Items {
		err := u.exec(ctx, `
			INSERT INTO sales_return_items (id, return_id, sale_item_id, batch_id, quantity, refund_amount)
			VALUES (?,?,?,?,?,?)
		`, item.ID, ret.ID, item.SaleItemID, item.BatchID, item.Quantity, item.RefundAmount)
		if err != nil {
			return fmt.Errorf("insert return item %s: %w", item.SaleItemID, err)
		}
	}
	return nil
}

func (u *unitOfWork) CreatePurchase(ctx context.Context, p domain.Purchase) error {
	err := u.exec(ctx, `
		INSERT INTO purchases (id, vendor_id, invoice_number, invoice_date, total_amount, received_by, created_at)
		VALUES (?,?,?,?,?,?,?)
	`, p.ID, p.VendorID, p.InvoiceNumber, p.InvoiceDate, p.TotalAmount, p.ReceivedBy, p.CreatedAt)
	if err != nil {
		return err
	}
	for _, item := range p.Items {
		err := u.exec(ctx, `
			INSERT INTO purchase_items (id, purchase_id, batch_id, medicine_id, lot_code, quantity, purchase_rate, mrp, batch_created)
			VALUES (?,?,?,?,?,?,?,?,?)
		`, item.ID, p.ID, item.BatchID, item.MedicineID, item.LotCode, item.Quantity, item.PurchaseRate, item.MRP, item.BatchCreated)
		if err != nil {
			return fmt.Errorf("insert purchase item %s: %w", item.LotCode, err)
		}
	}
	return nil
}

func (u *unitOfWork) CreateStockAdjustment(ctx context.Context, a domain.StockAdjustment) error {
	return u.exec(ctx, `
		INSERT INTO stock_adjustments (id, batch_id, delta, reason, note, actor, balance_after, created_at)
		VALUES (?,?,?,?,?,?,?,?)
	`, a.ID, a.BatchID, a.Delta, a.Reason, a.Note, a.Actor, a.BalanceAfter, a.CreatedAt)
}

func (u *unitOfWork) AppendAuditLog(ctx context.Context, entry domain.AuditLog) error {
	return u.exec(ctx, `
		INSERT INTO audit_logs (id, actor, actor_role, action, table_name, record_id, before_data, after_data, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)
	`, entry.ID, entry.Actor, entry.ActorRole, entry.Action, entry.TableName, entry.RecordID, entry.Before, entry.After, entry.CreatedAt)
}

func (u *unitOfWork) GetMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	var m domain.Medicine
	err := u.tx.GetContext(ctx, &m, u.tx.Rebind(`
		SELECT id, name, generic_name, manufacturer, hsn_code, gst_rate, schedule, active, created_at, updated_at
		FROM medicines
		WHERE id = ?
	`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (u *unitOfWork) SaveMedicine(ctx context.Context, m domain.Medicine) error {
	return u.exec(ctx, `
		INSERT INTO medicines (id, name, generic_name, manufacturer, hsn_code, gst_rate, schedule, active, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			generic_name = excluded.generic_name,
			manufacturer = excluded.manufacturer,
			hsn_code = excluded.hsn_code,
			gst_rate = excluded.gst_rate,
			schedule = excluded.schedule,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, m.ID, m.Name, m.GenericName, m.Manufacturer, m.HSNCode, m.GSTRate, m.Schedule, m.Active, m.CreatedAt, m.UpdatedAt)
}

func (u *unitOfWork) GetVendor(ctx context.Context, id string) (*domain.Vendor, error) {
	var v domain.Vendor
	err := u.tx.GetContext(ctx, &v, u.tx.Rebind(`
		SELECT id, name, gstin, phone, active, created_at FROM vendors WHERE id = ?
	`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (u *unitOfWork) SaveVendor(ctx context.Context, v domain.Vendor) error {
	return u.exec(ctx, `
		INSERT INTO vendors (id, name, gstin, phone, active, created_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			gstin = excluded.gstin,
			phone = excluded.phone,
			active = excluded.active
	`, v.ID, v.Name, v.GSTIN, v.Phone, v.Active, v.CreatedAt)
}

func (u *unitOfWork) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := u.tx.GetContext(ctx, &c, u.tx.Rebind(`
		SELECT id, name, phone, gstin, created_at FROM customers WHERE id = ?
	`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (u *unitOfWork) SaveCustomer(ctx context.Context, c domain.Customer) error {
	return u.exec(ctx, `
		INSERT INTO customers (id, name, phone, gstin, created_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			gstin = excluded.gstin
	`, c.ID, c.Name, c.Phone, c.GSTIN, c.CreatedAt)
}
