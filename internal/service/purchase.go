package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/xid"
)

// ReceivePurchase books a vendor invoice. Each line resolves to exactly
// one batch keyed by (medicine, lot code): an existing batch is topped up
// and takes the incoming cost, MRP and rack location; otherwise a new
// batch is created with the received quantity.
func (s *Service) ReceivePurchase(ctx context.Context, req domain.PurchaseRequest) (domain.Purchase, error) {
	if err := validatePurchaseRequest(req); err != nil {
		return domain.Purchase{}, err
	}
	actor := actorOrSystem(ctx)

	var purchase domain.Purchase
	err := s.runInTx(ctx, "receive_purchase", func(tx store.Tx) error {
		now := s.now().UTC()
		if _, err := tx.GetVendor(ctx, req.VendorID); err != nil {
			return fmt.Errorf("vendor %s: %w", req.VendorID, err)
		}

		purchase = domain.Purchase{
			ID:            xid.New("pur"),
			VendorID:      req.VendorID,
			InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
			InvoiceDate:   req.InvoiceDate.UTC(),
			TotalAmount:   decimal.Zero,
			ReceivedBy:    actor.Username,
			CreatedAt:     now,
			Items:         make([]domain.PurchaseItem, 0, len(req.Items)),
		}

		for _, line := range req.Items {
			item, err := s.receiveLine(ctx, tx, purchase, line, now)
			if err != nil {
				return err
			}
			purchase.Items = append(purchase.Items, item)
			purchase.TotalAmount = purchase.TotalAmount.Add(item.PurchaseRate.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		if err := tx.CreatePurchase(ctx, purchase); err != nil {
			return fmt.Errorf("persist purchase %s: %w", purchase.InvoiceNumber, err)
		}

		return s.appendAudit(ctx, tx, actor, "purchase_receive", "purchases", purchase.ID, nil, map[string]any{
			"vendor_id":      purchase.VendorID,
			"invoice_number": purchase.InvoiceNumber,
			"total_amount":   purchase.TotalAmount.StringFixed(2),
			"item_count":     len(purchase.Items),
		})
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	batchIDs := make([]string, 0, len(purchase.Items))
	for _, item := range purchase.Items {
		batchIDs = append(batchIDs, item.BatchID)
	}
	s.refreshBatches(ctx, uniqueIDs(batchIDs))

	s.log.WithFields(logrus.Fields{
		"purchase_id": purchase.ID,
		"vendor_id":   purchase.VendorID,
		"invoice":     purchase.InvoiceNumber,
		"items":       len(purchase.Items),
	}).Info("purchase received")

	return purchase, nil
}

func (s *Service) receiveLine(ctx context.Context, tx store.Tx, purchase domain.Purchase, line domain.PurchaseLineRequest, now time.Time) (domain.PurchaseItem, error) {
	lotCode := strings.TrimSpace(line.LotCode)
	if _, err := tx.GetMedicine(ctx, line.MedicineID); err != nil {
		return domain.PurchaseItem{}, fmt.Errorf("medicine %s: %w", line.MedicineID, err)
	}

	created := false
	batch, err := tx.LockBatchByLot(ctx, line.MedicineID, lotCode)
	switch {
	case err == nil:
		if batch.QuantityAvailable+line.Quantity > domain.MaxBatchQuantity {
			return domain.PurchaseItem{}, invalidf("batch %s would hold more than %d units", batch.ID, domain.MaxBatchQuantity)
		}
		// Receiving fresh stock into a deactivated lot puts it back on sale.
		batch.Active = true
		batch.QuantityAvailable += line.Quantity
		batch.PurchaseRate = line.PurchaseRate
		batch.MRP = line.MRP
		if rack := strings.TrimSpace(line.RackLocation); rack != "" {
			batch.RackLocation = rack
		}
		batch.UpdatedAt = now
		if err := tx.UpdateBatch(ctx, *batch); err != nil {
			return domain.PurchaseItem{}, fmt.Errorf("top up batch %s: %w", batch.ID, err)
		}
	case errors.Is(err, store.ErrNotFound):
		batch = &domain.Batch{
			ID:                xid.New("bat"),
			MedicineID:        line.MedicineID,
			VendorID:          purchase.VendorID,
			LotCode:           lotCode,
			MfgDate:           line.MfgDate.UTC(),
			ExpDate:           line.ExpDate.UTC(),
			PurchaseRate:      line.PurchaseRate,
			MRP:               line.MRP,
			QuantityAvailable: line.Quantity,
			RackLocation:      strings.TrimSpace(line.RackLocation),
			Active:            true,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.CreateBatch(ctx, *batch); err != nil {
			return domain.PurchaseItem{}, fmt.Errorf("create batch for lot %s: %w", lotCode, err)
		}
		created = true
	default:
		return domain.PurchaseItem{}, fmt.Errorf("lookup lot %s: %w", lotCode, err)
	}

	if _, err := tx.AppendLedgerEntry(ctx, domain.StockLedgerEntry{
		ID:           xid.New("led"),
		BatchID:      batch.ID,
		Kind:         domain.LedgerKindPurchase,
		ReferenceID:  purchase.ID,
		Delta:        line.Quantity,
		BalanceAfter: batch.QuantityAvailable,
		CreatedAt:    now,
	}); err != nil {
		return domain.PurchaseItem{}, fmt.Errorf("ledger for batch %s: %w", batch.ID, err)
	}

	return domain.PurchaseItem{
		ID:           xid.New("pui"),
		PurchaseID:   purchase.ID,
		BatchID:      batch.ID,
		MedicineID:   line.MedicineID,
		LotCode:      lotCode,
		Quantity:     line.Quantity,
		PurchaseRate: line.PurchaseRate,
		MRP:          line.MRP,
		BatchCreated: created,
		BalanceAfter: batch.QuantityAvailable,
	}, nil
}

func validatePurchaseRequest(req domain.PurchaseRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	for i, line := range req.Items {
		if !line.ExpDate.After(line.MfgDate) {
			return invalidf("line %d: expiry date must be after manufacture date", i+1)
		}
		if err := checkMoneyScale(fmt.Sprintf("line %d: purchase rate", i+1), line.PurchaseRate); err != nil {
			return err
		}
		if err := checkMoneyScale(fmt.Sprintf("line %d: mrp", i+1), line.MRP); err != nil {
			return err
		}
		if line.PurchaseRate.IsNegative() {
			return invalidf("line %d: purchase rate must not be negative", i+1)
		}
		if !line.MRP.GreaterThan(line.PurchaseRate) {
			return invalidf("line %d: mrp must exceed purchase rate", i+1)
		}
		if strings.TrimSpace(line.LotCode) == "" {
			return invalidf("line %d: lot code is required", i+1)
		}
	}
	return nil
}
