package service

import (
	"context"
	"strings"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
)

// GetBatch serves batch snapshots cache-aside. Engines never use it;
// they read batches under lock.
func (s *Service) GetBatch(ctx context.Context, batchID string) (domain.Batch, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return domain.Batch{}, store.ErrInvalidTransaction
	}

	cached, ok, err := s.batchCache.Get(ctx, batchID)
	if err != nil {
		s.log.WithError(err).WithField("batch_id", batchID).Warn("batch cache read failed")
	}
	if ok && cached != nil {
		return *cached, nil
	}

	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return domain.Batch{}, err
	}
	if err := s.batchCache.Add(ctx, batch, s.batchCacheTTL); err != nil {
		s.log.WithError(err).WithField("batch_id", batchID).Warn("batch cache write failed")
	}
	return *batch, nil
}

func (s *Service) ListBatches(ctx context.Context, medicineID string) ([]domain.Batch, error) {
	return s.repo.ListBatches(ctx, strings.TrimSpace(medicineID))
}

func (s *Service) BatchLedger(ctx context.Context, batchID string) ([]domain.StockLedgerEntry, error) {
	if _, err := s.repo.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.repo.ListLedgerEntries(ctx, batchID)
}

// ReconcileBatch replays a batch's ledger in creation order and checks it
// against the stored quantity.
func (s *Service) ReconcileBatch(ctx context.Context, batchID string) (domain.LedgerReconciliation, error) {
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return domain.LedgerReconciliation{}, err
	}
	entries, err := s.repo.ListLedgerEntries(ctx, batchID)
	if err != nil {
		return domain.LedgerReconciliation{}, err
	}

	report := domain.LedgerReconciliation{
		BatchID:           batch.ID,
		QuantityAvailable: batch.QuantityAvailable,
		Entries:           len(entries),
	}
	running := 0
	for _, entry := range entries {
		running += entry.Delta
		if report.FirstMismatchSeq == 0 && (entry.BalanceAfter != running || running < 0) {
			report.FirstMismatchSeq = entry.Seq
		}
	}
	report.LedgerSum = running
	report.Consistent = report.FirstMismatchSeq == 0 && running == batch.QuantityAvailable
	if !report.Consistent {
		s.log.WithField("batch_id", batch.ID).WithField("ledger_sum", running).Error("ledger does not reconcile with batch quantity")
	}
	return report, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSalesReturns(ctx context.Context, saleID string) ([]domain.SalesReturn, error) {
	if _, err := s.repo.GetSale(ctx, saleID); err != nil {
		return nil, err
	}
	return s.repo.ListSalesReturns(ctx, saleID)
}

func (s *Service) AuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	return s.repo.ListAuditLogs(ctx, limit)
}
