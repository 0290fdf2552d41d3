package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/xid"
)

// ProcessReturn reverses part of a committed sale. The sale row is locked
// first so two returns against the same sale cannot both pass the
// returnable check; the cumulative bound counts earlier returns and
// repeated lines within this request.
func (s *Service) ProcessReturn(ctx context.Context, req domain.SalesReturnRequest) (domain.SalesReturn, error) {
	if err := validateRequest(req); err != nil {
		return domain.SalesReturn{}, err
	}
	actor := actorOrSystem(ctx)
	if name := strings.TrimSpace(req.Actor); name != "" {
		actor.Username = name
	}

	var ret domain.SalesReturn
	err := s.runInTx(ctx, "process_return", func(tx store.Tx) error {
		now := s.now().UTC()
		sale, err := tx.LockSale(ctx, req.SaleID)
		if err != nil {
			return fmt.Errorf("sale %s: %w", req.SaleID, err)
		}
		saleItems := make(map[string]domain.SaleItem, len(sale.Items))
		for _, item := range sale.Items {
			saleItems[item.ID] = item
		}

		returned, err := tx.ReturnedQuantities(ctx, sale.ID)
		if err != nil {
			return fmt.Errorf("load returned quantities: %w", err)
		}

		ret = domain.SalesReturn{
			ID:          xid.New("ret"),
			SaleID:      sale.ID,
			Reason:      strings.TrimSpace(req.Reason),
			TotalRefund: decimal.Zero,
			Actor:       actor.Username,
			CreatedAt:   now,
			Items:       make([]domain.SalesReturnItem, 0, len(req.Items)),
		}

		for _, line := range req.Items {
			saleItem, ok := saleItems[line.SaleItemID]
			if !ok {
				return fmt.Errorf("sale item %s on sale %s: %w", line.SaleItemID, sale.ID, store.ErrNotFound)
			}
			returnable := saleItem.Quantity - returned[saleItem.ID]
			if line.Quantity > returnable {
				return &store.ReturnError{SaleItemID: saleItem.ID, Requested: line.Quantity, Returnable: returnable}
			}
			returned[saleItem.ID] += line.Quantity

			batch, err := tx.LockBatch(ctx, saleItem.BatchID)
			if err != nil {
				return fmt.Errorf("batch %s: %w", saleItem.BatchID, err)
			}
			batch.QuantityAvailable += line.Quantity
			batch.UpdatedAt = now
			if err := tx.UpdateBatch(ctx, *batch); err != nil {
				return fmt.Errorf("restock batch %s: %w", batch.ID, err)
			}

			if _, err := tx.AppendLedgerEntry(ctx, domain.StockLedgerEntry{
				ID:           xid.New("led"),
				BatchID:      batch.ID,
				Kind:         domain.LedgerKindReturn,
				ReferenceID:  ret.ID,
				Delta:        line.Quantity,
				BalanceAfter: batch.QuantityAvailable,
				CreatedAt:    now,
			}); err != nil {
				return fmt.Errorf("ledger for batch %s: %w", batch.ID, err)
			}

			refund := saleItem.SellingPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
			ret.TotalRefund = ret.TotalRefund.Add(refund)
			ret.Items = append(ret.Items, domain.SalesReturnItem{
				ID:           xid.New("rti"),
				ReturnID:     ret.ID,
				SaleItemID:   saleItem.ID,
				BatchID:      batch.ID,
				Quantity:     line.Quantity,
				RefundAmount: refund,
				BalanceAfter: batch.QuantityAvailable,
			})
		}

		if err := tx.CreateSalesReturn(ctx, ret); err != nil {
			return fmt.Errorf("persist return: %w", err)
		}

		return s.appendAudit(ctx, tx, actor, "sales_return", "sales_returns", ret.ID, nil, map[string]any{
			"sale_id":      sale.ID,
			"bill_number":  sale.BillNumber,
			"total_refund": ret.TotalRefund.StringFixed(2),
			"item_count":   len(ret.Items),
		})
	})
	if err != nil {
		return domain.SalesReturn{}, err
	}

	batchIDs := make([]string, 0, len(ret.Items))
	for _, item := range ret.Items {
		batchIDs = append(batchIDs, item.BatchID)
	}
	s.refreshBatches(ctx, uniqueIDs(batchIDs))

	s.log.WithFields(logrus.Fields{
		"return_id": ret.ID,
		"sale_id":   ret.SaleID,
		"refund":    ret.TotalRefund.StringFixed(2),
	}).Info("sales return committed")

	return ret, nil
}
