package sqlstore_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"pharmaledger/backend/internal/cache"
	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/service"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/store/sqlstore"
	"pharmaledger/backend/internal/xid"
)

var clock = time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

func openSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	s, err := sqlstore.OpenSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	seedMasters(t, s)
	return s
}

// openPostgres runs against a live database when
// PHARMALEDGER_TEST_DATABASE_URL is set.
func openPostgres(t *testing.T) *sqlstore.Store {
	t.Helper()
	databaseURL := os.Getenv("PHARMALEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("PHARMALEDGER_TEST_DATABASE_URL is not set")
	}
	ctx := context.Background()
	s, err := sqlstore.OpenPostgres(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	seedMasters(t, s)
	return s
}

func seedMasters(t *testing.T, s *sqlstore.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.SaveMedicine(ctx, domain.Medicine{ID: "med-paracetamol-500", Name: "Paracetamol 500mg", HSNCode: "3004", GSTRate: decimal.NewFromInt(12), Active: true, CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		if err := tx.SaveVendor(ctx, domain.Vendor{ID: "ven-medline", Name: "Medline Distributors", GSTIN: "33AABCM1234F1Z5", Active: true, CreatedAt: now}); err != nil {
			return err
		}
		return tx.SaveCustomer(ctx, domain.Customer{ID: "cus-interstate", Name: "Bengaluru Care", GSTIN: "29AABCB4321M1Z8", CreatedAt: now})
	})
	require.NoError(t, err)
}

func newService(repo store.Repository) *service.Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return service.New(repo, cache.NoopBatchCache{}, service.Options{
		Logger:       logger,
		RetryBackoff: time.Millisecond,
		Now:          func() time.Time { return clock },
	})
}

func receive(t *testing.T, svc *service.Service, lot string, qty int) string {
	t.Helper()
	purchase, err := svc.ReceivePurchase(context.Background(), domain.PurchaseRequest{
		VendorID:      "ven-medline",
		InvoiceNumber: "MD-" + lot,
		InvoiceDate:   clock,
		Items: []domain.PurchaseLineRequest{{
			MedicineID:   "med-paracetamol-500",
			LotCode:      lot,
			MfgDate:      time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			ExpDate:      time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
			PurchaseRate: decimal.RequireFromString("60.25"),
			MRP:          decimal.RequireFromString("100.50"),
			Quantity:     qty,
		}},
	})
	require.NoError(t, err)
	return purchase.Items[0].BatchID
}

func sell(svc *service.Service, batchID string, qty int, price string) (domain.Sale, error) {
	p := decimal.RequireFromString(price)
	taxable := p.Mul(decimal.NewFromInt(int64(qty)))
	return svc.CreateSale(context.Background(), domain.SaleRequest{
		PaymentMode:   domain.PaymentModeUPI,
		TaxableAmount: taxable,
		TaxAmount:     decimal.Zero,
		TotalAmount:   taxable,
		Items: []domain.SaleLineRequest{{
			BatchID:      batchID,
			Quantity:     qty,
			SellingPrice: p,
			MRPAtSale:    decimal.RequireFromString("100.50"),
		}},
	})
}

func uniqueLot(prefix string) string {
	return prefix + "-" + xid.New("lot")
}

func runLedgerLifecycle(t *testing.T, repo *sqlstore.Store) {
	svc := newService(repo)
	ctx := context.Background()
	batchID := receive(t, svc, uniqueLot("LIFE"), 10)

	// Repeat receipt of the same lot resolves to the same batch.
	batch, err := svc.GetBatch(ctx, batchID)
	require.NoError(t, err)
	require.True(t, batch.MRP.Equal(decimal.RequireFromString("100.50")))
	again := receive(t, svc, batch.LotCode, 5)
	require.Equal(t, batchID, again)

	before, err := svc.CurrentInvoiceNumber(ctx, "24-25")
	require.NoError(t, err)

	sale, err := sell(svc, batchID, 4, "99.75")
	require.NoError(t, err)
	require.Equal(t, service.FormatBillNumber("24-25", before+1), sale.BillNumber)
	require.Equal(t, 11, sale.Items[0].BalanceAfter)

	stored, err := svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	require.True(t, stored.Items[0].SellingPrice.Equal(decimal.RequireFromString("99.75")))

	_, err = sell(svc, batchID, 1, "101")
	require.ErrorIs(t, err, store.ErrPriceViolation)
	_, err = sell(svc, batchID, 50, "90")
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	after, err := svc.CurrentInvoiceNumber(ctx, "24-25")
	require.NoError(t, err)
	require.Equal(t, before+1, after, "failed sales must not consume bill numbers")

	ret, err := svc.ProcessReturn(ctx, domain.SalesReturnRequest{SaleID: sale.ID, Reason: "unopened", Items: []domain.ReturnLineRequest{{SaleItemID: sale.Items[0].ID, Quantity: 4}}})
	require.NoError(t, err)
	require.True(t, ret.TotalRefund.Equal(decimal.RequireFromString("399")))
	_, err = svc.ProcessReturn(ctx, domain.SalesReturnRequest{SaleID: sale.ID, Reason: "again", Items: []domain.ReturnLineRequest{{SaleItemID: sale.Items[0].ID, Quantity: 1}}})
	require.ErrorIs(t, err, store.ErrOverReturn)

	_, err = svc.AdjustStock(ctx, domain.StockAdjustmentRequest{BatchID: batchID, Delta: -2, Reason: domain.AdjustmentReasonExpired})
	require.NoError(t, err)

	entries, err := svc.BatchLedger(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		require.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}

	report, err := svc.ReconcileBatch(ctx, batchID)
	require.NoError(t, err)
	require.True(t, report.Consistent, "%+v", report)
	require.Equal(t, 13, report.QuantityAvailable)

	returns, err := svc.ListSalesReturns(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, returns, 1)
	require.Len(t, returns[0].Items, 1)
}

func runConcurrentSales(t *testing.T, repo *sqlstore.Store) {
	svc := newService(repo)
	batchID := receive(t, svc, uniqueLot("RACE"), 10)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sell(svc, batchID, 6, "90")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, errors.Is(err, store.ErrInsufficientStock), "unexpected error: %v", err)
	}
	require.Equal(t, 1, succeeded)

	batch, err := svc.GetBatch(context.Background(), batchID)
	require.NoError(t, err)
	require.Equal(t, 4, batch.QuantityAvailable)

	runConcurrentBillNumbering(t, svc)
}

// runConcurrentBillNumbering lets every sale succeed and checks that the
// bills took the next consecutive numbers exactly once each.
func runConcurrentBillNumbering(t *testing.T, svc *service.Service) {
	const sales = 12
	ctx := context.Background()
	batchID := receive(t, svc, uniqueLot("SEQ"), sales)
	before, err := svc.CurrentInvoiceNumber(ctx, "24-25")
	require.NoError(t, err)

	var wg sync.WaitGroup
	bills := make(chan string, sales)
	for i := 0; i < sales; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale, err := sell(svc, batchID, 1, "90")
			if err != nil {
				t.Errorf("sale: %v", err)
				return
			}
			bills <- sale.BillNumber
		}()
	}
	wg.Wait()
	close(bills)

	seen := make(map[string]bool, sales)
	for bill := range bills {
		require.False(t, seen[bill], "bill number %s issued twice", bill)
		seen[bill] = true
	}
	require.Len(t, seen, sales)
	for n := before + 1; n <= before+sales; n++ {
		require.True(t, seen[service.FormatBillNumber("24-25", n)], "missing bill %d", n)
	}

	after, err := svc.CurrentInvoiceNumber(ctx, "24-25")
	require.NoError(t, err)
	require.Equal(t, before+sales, after)

	report, err := svc.ReconcileBatch(ctx, batchID)
	require.NoError(t, err)
	require.True(t, report.Consistent, "%+v", report)
	require.Zero(t, report.QuantityAvailable)
}

func TestSQLiteLedgerLifecycle(t *testing.T) {
	runLedgerLifecycle(t, openSQLite(t))
}

func TestSQLiteConcurrentSales(t *testing.T) {
	runConcurrentSales(t, openSQLite(t))
}

func TestPostgresLedgerLifecycle(t *testing.T) {
	runLedgerLifecycle(t, openPostgres(t))
}

func TestPostgresConcurrentSales(t *testing.T) {
	runConcurrentSales(t, openPostgres(t))
}

func TestSQLiteRollsBackFailedUnit(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.NextInvoiceNumber(ctx, "24-25"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.GetInvoiceCounter(ctx, "24-25")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSQLiteConstraintErrorsAreClassified(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()
	batch := domain.Batch{
		ID:           "bat-1",
		MedicineID:   "med-paracetamol-500",
		VendorID:     "ven-medline",
		LotCode:      "L1",
		MfgDate:      now.AddDate(-1, 0, 0),
		ExpDate:      now.AddDate(1, 0, 0),
		PurchaseRate: decimal.NewFromInt(60),
		MRP:          decimal.NewFromInt(100),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error { return tx.CreateBatch(ctx, batch) }))

	dup := batch
	dup.ID = "bat-2"
	err := s.WithinTx(ctx, func(tx store.Tx) error { return tx.CreateBatch(ctx, dup) })
	require.ErrorIs(t, err, store.ErrConcurrencyConflict)

	orphan := batch
	orphan.ID = "bat-3"
	orphan.LotCode = "L3"
	orphan.MedicineID = "med-missing"
	err = s.WithinTx(ctx, func(tx store.Tx) error { return tx.CreateBatch(ctx, orphan) })
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		b, err := tx.LockBatch(ctx, "bat-1")
		if err != nil {
			return err
		}
		b.QuantityAvailable = -1
		return tx.UpdateBatch(ctx, *b)
	})
	require.ErrorIs(t, err, store.ErrIntegrityViolation)
}
