package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Store is a store.Repository over PostgreSQL or SQLite. On PostgreSQL
// every unit of work runs at READ COMMITTED and takes row locks with
// SELECT ... FOR UPDATE. SQLite has no row locks; units of work there
// begin IMMEDIATE, which takes the database write lock up front.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

func OpenPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dialect: DialectPostgres}, nil
}

func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dialect: DialectSQLite}, nil
}

func sqliteDSN(path string) string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Set("_txlock", "immediate")
	params.Set("_time_format", "sqlite")
	return "file:" + path + "?" + params.Encode()
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, s.txOptions())
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&unitOfWork{tx: tx, dialect: s.dialect}); err != nil {
		return classify(err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) txOptions() *sql.TxOptions {
	if s.dialect == DialectPostgres {
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	var batch domain.Batch
	err := s.db.GetContext(ctx, &batch, s.db.Rebind(`SELECT `+batchColumns+` FROM batches WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (s *Store) ListBatches(ctx context.Context, medicineID string) ([]domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches`
	args := []any{}
	if medicineID != "" {
		query += ` WHERE medicine_id = ?`
		args = append(args, medicineID)
	}
	query += ` ORDER BY exp_date, lot_code`

	batches := make([]domain.Batch, 0, 32)
	if err := s.db.SelectContext(ctx, &batches, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, batchID string) ([]domain.StockLedgerEntry, error) {
	entries := make([]domain.StockLedgerEntry, 0, 16)
	err := s.db.SelectContext(ctx, &entries, s.db.Rebind(`
		SELECT seq, id, batch_id, kind, reference_id, delta, balance_after, created_at
		FROM stock_ledger_entries
		WHERE batch_id = ?
		ORDER BY seq
	`), batchID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.GetContext(ctx, &sale, s.db.Rebind(`SELECT `+saleColumns+` FROM sales WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := selectSaleItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (s *Store) ListSalesReturns(ctx context.Context, saleID string) ([]domain.SalesReturn, error) {
	returns := make([]domain.SalesReturn, 0, 4)
	err := s.db.SelectContext(ctx, &returns, s.db.Rebind(`
		SELECT id, sale_id, reason, total_refund, actor, created_at
		FROM sales_returns
		WHERE sale_id = ?
		ORDER BY created_at, id
	`), saleID)
	if err != nil {
		return nil, err
	}
	for i := range returns {
		items := make([]domain.SalesReturnItem, 0, 4)
		err := s.db.SelectContext(ctx, &items, s.db.Rebind(`
			SELECT id, return_id, sale_item_id, batch_id, quantity, refund_amount
			FROM sales_return_items
			WHERE return_id = ?
			ORDER BY id
		`), returns[i].ID)
		if err != nil {
			return nil, err
		}
		returns[i].Items = items
	}
	return returns, nil
}

func (s *Store) GetInvoiceCounter(ctx context.Context, fiscalYear string) (int64, error) {
	var last int64
	err := s.db.GetContext(ctx, &last, s.db.Rebind(`SELECT last_number FROM invoice_sequences WHERE fiscal_year = ?`), fiscalYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return last, nil
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	err := s.db.SelectContext(ctx, &logs, s.db.Rebind(`
		SELECT id, actor, actor_role, action, table_name, record_id, before_data, after_data, created_at
		FROM audit_logs
		ORDER BY seq DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

const batchColumns = `id, medicine_id, vendor_id, lot_code, mfg_date, exp_date, purchase_rate, mrp,
	quantity_available, rack_location, active, created_at, updated_at`

const saleColumns = `id, bill_number, fiscal_year, customer_id, customer_name, customer_phone,
	payment_mode, tax_scope, taxable_amount, tax_amount, cgst, sgst, igst, total_amount,
	content_hash, created_by, created_at`

type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func selectSaleItems(ctx context.Context, q queryer, saleID string) ([]domain.SaleItem, error) {
	items := make([]domain.SaleItem, 0, 8)
	err := sqlx.SelectContext(ctx, q, &items, q.Rebind(`
		SELECT id, sale_id, line_no, batch_id, medicine_id, quantity, selling_price, mrp_at_sale, line_total
		FROM sale_items
		WHERE sale_id = ?
		ORDER BY line_no
	`), saleID)
	if err != nil {
		return nil, fmt.Errorf("load sale items: %w", err)
	}
	return items, nil
}
