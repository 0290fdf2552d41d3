package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/xid"
)

// AdjustStock applies a signed manual correction to one batch. A delta
// that would take the batch below zero fails with a *store.StockError.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockAdjustment, error) {
	if err := validateRequest(req); err != nil {
		return domain.StockAdjustment{}, err
	}
	actor := actorOrSystem(ctx)
	if name := strings.TrimSpace(req.Actor); name != "" {
		actor.Username = name
	}

	var adjustment domain.StockAdjustment
	err := s.runInTx(ctx, "adjust_stock", func(tx store.Tx) error {
		now := s.now().UTC()
		batch, err := tx.LockBatch(ctx, req.BatchID)
		if err != nil {
			return fmt.Errorf("batch %s: %w", req.BatchID, err)
		}

		before := batch.QuantityAvailable
		newBalance := before + req.Delta
		if newBalance < 0 {
			return &store.StockError{BatchID: batch.ID, Requested: -req.Delta, Available: before}
		}
		if newBalance > domain.MaxBatchQuantity {
			return invalidf("batch %s would hold %d units, above the %d limit", batch.ID, newBalance, domain.MaxBatchQuantity)
		}

		batch.QuantityAvailable = newBalance
		batch.UpdatedAt = now
		if err := tx.UpdateBatch(ctx, *batch); err != nil {
			return fmt.Errorf("adjust batch %s: %w", batch.ID, err)
		}

		adjustment = domain.StockAdjustment{
			ID:           xid.New("adj"),
			BatchID:      batch.ID,
			Delta:        req.Delta,
			Reason:       req.Reason,
			Note:         strings.TrimSpace(req.Note),
			Actor:        actor.Username,
			BalanceAfter: newBalance,
			CreatedAt:    now,
		}
		if err := tx.CreateStockAdjustment(ctx, adjustment); err != nil {
			return fmt.Errorf("persist adjustment: %w", err)
		}

		if _, err := tx.AppendLedgerEntry(ctx, domain.StockLedgerEntry{
			ID:           xid.New("led"),
			BatchID:      batch.ID,
			Kind:         domain.LedgerKindAdjustment,
			ReferenceID:  adjustment.ID,
			Delta:        req.Delta,
			BalanceAfter: newBalance,
			CreatedAt:    now,
		}); err != nil {
			return fmt.Errorf("ledger for batch %s: %w", batch.ID, err)
		}

		return s.appendAudit(ctx, tx, actor, "stock_adjust", "batches", batch.ID,
			map[string]any{"quantity_available": before},
			map[string]any{"quantity_available": newBalance, "reason": req.Reason, "adjustment_id": adjustment.ID},
		)
	})
	if err != nil {
		return domain.StockAdjustment{}, err
	}

	s.refreshBatches(ctx, []string{adjustment.BatchID})
	s.log.WithFields(logrus.Fields{
		"batch_id": adjustment.BatchID,
		"delta":    adjustment.Delta,
		"reason":   adjustment.Reason,
	}).Info("stock adjusted")

	return adjustment, nil
}
