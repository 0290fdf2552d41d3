package service

import (
	"context"
	"fmt"
	"time"

	"pharmaledger/backend/internal/store"
)

// FiscalYear returns the April-to-March fiscal year containing t, as
// "YY-YY" (for example "24-25" for any date from 2024-04-01 through
// 2025-03-31).
func FiscalYear(t time.Time) string {
	start := t.Year()
	if t.Month() < time.April {
		start--
	}
	return fmt.Sprintf("%02d-%02d", start%100, (start+1)%100)
}

func FormatBillNumber(fiscalYear string, n int64) string {
	return fmt.Sprintf("INV-%s-%04d", fiscalYear, n)
}

// allocateBillNumber must run inside the sale's unit of work so the
// counter row stays locked until the sale commits or rolls back.
func allocateBillNumber(ctx context.Context, tx store.Tx, at time.Time) (string, string, error) {
	fy := FiscalYear(at)
	n, err := tx.NextInvoiceNumber(ctx, fy)
	if err != nil {
		return "", "", fmt.Errorf("allocate bill number for %s: %w", fy, err)
	}
	return FormatBillNumber(fy, n), fy, nil
}

// CurrentInvoiceNumber reports the last committed sequence number of a
// fiscal year, 0 when no sale has been numbered in it yet.
func (s *Service) CurrentInvoiceNumber(ctx context.Context, fiscalYear string) (int64, error) {
	return s.repo.GetInvoiceCounter(ctx, fiscalYear)
}
