package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
)

func testBatch(id string, lot string, qty int) domain.Batch {
	now := time.Now().UTC()
	return domain.Batch{
		ID:                id,
		MedicineID:        "med-paracetamol-500",
		VendorID:          "ven-medline",
		LotCode:           lot,
		MfgDate:           now.AddDate(-1, 0, 0),
		ExpDate:           now.AddDate(1, 0, 0),
		PurchaseRate:      decimal.NewFromInt(60),
		MRP:               decimal.NewFromInt(100),
		QuantityAvailable: qty,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestFailedUnitLeavesNoWrites(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.NextInvoiceNumber(ctx, "24-25"); err != nil {
			return err
		}
		if err := tx.CreateBatch(ctx, testBatch("bat-1", "L1", 5)); err != nil {
			return err
		}
		if _, err := tx.AppendLedgerEntry(ctx, domain.StockLedgerEntry{ID: "led-1", BatchID: "bat-1", Kind: domain.LedgerKindPurchase, Delta: 5, BalanceAfter: 5}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetBatch(ctx, "bat-1")
	require.ErrorIs(t, err, store.ErrNotFound)
	counter, err := s.GetInvoiceCounter(ctx, "24-25")
	require.NoError(t, err)
	require.Zero(t, counter)
	entries, err := s.ListLedgerEntries(ctx, "bat-1")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCommittedUnitIsVisibleAndSequenced(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	for i, lot := range []string{"L1", "L2"} {
		id := "bat-" + lot
		err := s.WithinTx(ctx, func(tx store.Tx) error {
			if err := tx.CreateBatch(ctx, testBatch(id, lot, 5)); err != nil {
				return err
			}
			entry, err := tx.AppendLedgerEntry(ctx, domain.StockLedgerEntry{ID: "led-" + lot, BatchID: id, Kind: domain.LedgerKindPurchase, Delta: 5, BalanceAfter: 5})
			if err != nil {
				return err
			}
			require.Equal(t, int64(i+1), entry.Seq)
			return nil
		})
		require.NoError(t, err)
	}

	entries, err := s.ListLedgerEntries(ctx, "bat-L2")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(2), entries[0].Seq)
}

func TestStoreRejectsDuplicateLotAndNegativeStock(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CreateBatch(ctx, testBatch("bat-1", "L1", 5))
	}))

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CreateBatch(ctx, testBatch("bat-2", "L1", 5))
	})
	require.ErrorIs(t, err, store.ErrIntegrityViolation)

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		batch, err := tx.LockBatch(ctx, "bat-1")
		if err != nil {
			return err
		}
		batch.QuantityAvailable = -1
		return tx.UpdateBatch(ctx, *batch)
	})
	require.ErrorIs(t, err, store.ErrIntegrityViolation)

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		b := testBatch("bat-3", "L3", 5)
		b.MedicineID = "med-missing"
		return tx.CreateBatch(ctx, b)
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithinTxHonoursCancelledContext(t *testing.T) {
	s := NewSeeded()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateBatch(ctx, testBatch("bat-1", "L1", 5)); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.GetBatch(context.Background(), "bat-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestInvoiceCounterIsPerFiscalYear(t *testing.T) {
	s := New()
	ctx := context.Background()

	next := func(fy string) int64 {
		var n int64
		require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
			var err error
			n, err = tx.NextInvoiceNumber(ctx, fy)
			return err
		}))
		return n
	}

	require.Equal(t, int64(1), next("24-25"))
	require.Equal(t, int64(2), next("24-25"))
	require.Equal(t, int64(1), next("25-26"))
}
