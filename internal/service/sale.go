package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/xid"
)

// CreateSale numbers, prices and commits a bill in one unit of work.
// Lines are locked in request order. Any failing line aborts the whole
// sale, including the bill number it allocated.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	if err := validateSaleRequest(req); err != nil {
		return domain.Sale{}, err
	}
	actor := actorOrSystem(ctx)

	var sale domain.Sale
	err := s.runInTx(ctx, "create_sale", func(tx store.Tx) error {
		now := s.now().UTC()
		billNumber, fiscalYear, err := allocateBillNumber(ctx, tx, now)
		if err != nil {
			return err
		}

		sale = domain.Sale{
			ID:            xid.New("sal"),
			BillNumber:    billNumber,
			FiscalYear:    fiscalYear,
			CustomerName:  strings.TrimSpace(req.CustomerName),
			CustomerPhone: strings.TrimSpace(req.CustomerPhone),
			PaymentMode:   req.PaymentMode,
			TaxableAmount: req.TaxableAmount,
			TaxAmount:     req.TaxAmount,
			TotalAmount:   req.TotalAmount,
			CreatedBy:     actor.Username,
			CreatedAt:     now,
			Items:         make([]domain.SaleItem, 0, len(req.Items)),
		}

		customerGSTIN := ""
		if req.CustomerID != nil && strings.TrimSpace(*req.CustomerID) != "" {
			customer, err := tx.GetCustomer(ctx, strings.TrimSpace(*req.CustomerID))
			if err != nil {
				return fmt.Errorf("customer %s: %w", *req.CustomerID, err)
			}
			customerID := customer.ID
			sale.CustomerID = &customerID
			customerGSTIN = customer.GSTIN
			if sale.CustomerName == "" {
				sale.CustomerName = customer.Name
			}
			if sale.CustomerPhone == "" {
				sale.CustomerPhone = customer.Phone
			}
		}

		split := splitTax(s.shopStateCode, customerGSTIN, req.TaxAmount)
		sale.TaxScope = split.Scope
		sale.CGST = split.CGST
		sale.SGST = split.SGST
		sale.IGST = split.IGST
		sale.ContentHash = saleFingerprint(billNumber, req.TotalAmount, req.Items)

		for i, line := range req.Items {
			item, err := s.sellLine(ctx, tx, sale.ID, i+1, line, now)
			if err != nil {
				return err
			}
			sale.Items = append(sale.Items, item)
		}

		if err := tx.CreateSale(ctx, sale); err != nil {
			return fmt.Errorf("persist sale %s: %w", billNumber, err)
		}

		return s.appendAudit(ctx, tx, actor, "sale_create", "sales", sale.ID, nil, map[string]any{
			"bill_number":  sale.BillNumber,
			"total_amount": sale.TotalAmount.StringFixed(2),
			"payment_mode": sale.PaymentMode,
			"item_count":   len(sale.Items),
		})
	})
	if err != nil {
		return domain.Sale{}, err
	}

	batchIDs := make([]string, 0, len(sale.Items))
	for _, item := range sale.Items {
		batchIDs = append(batchIDs, item.BatchID)
	}
	s.refreshBatches(ctx, uniqueIDs(batchIDs))

	s.log.WithFields(logrus.Fields{
		"sale_id":     sale.ID,
		"bill_number": sale.BillNumber,
		"items":       len(sale.Items),
		"total":       sale.TotalAmount.StringFixed(2),
	}).Info("sale committed")

	return sale, nil
}

func (s *Service) sellLine(ctx context.Context, tx store.Tx, saleID string, lineNo int, line domain.SaleLineRequest, now time.Time) (domain.SaleItem, error) {
	batch, err := tx.LockBatch(ctx, line.BatchID)
	if err != nil {
		return domain.SaleItem{}, fmt.Errorf("line %d batch %s: %w", lineNo, line.BatchID, err)
	}
	if !batch.Active {
		return domain.SaleItem{}, fmt.Errorf("line %d batch %s is inactive: %w", lineNo, line.BatchID, store.ErrNotFound)
	}
	if batch.QuantityAvailable < line.Quantity {
		return domain.SaleItem{}, &store.StockError{BatchID: batch.ID, Requested: line.Quantity, Available: batch.QuantityAvailable}
	}
	if line.SellingPrice.GreaterThan(line.MRPAtSale) {
		return domain.SaleItem{}, &store.PriceError{BatchID: batch.ID, SellingPrice: line.SellingPrice, MRP: line.MRPAtSale}
	}

	batch.QuantityAvailable -= line.Quantity
	batch.UpdatedAt = now
	if err := tx.UpdateBatch(ctx, *batch); err != nil {
		return domain.SaleItem{}, fmt.Errorf("decrement batch %s: %w", batch.ID, err)
	}

	if _, err := tx.AppendLedgerEntry(ctx, domain.StockLedgerEntry{
		ID:           xid.New("led"),
		BatchID:      batch.ID,
		Kind:         domain.LedgerKindSale,
		ReferenceID:  saleID,
		Delta:        -line.Quantity,
		BalanceAfter: batch.QuantityAvailable,
		CreatedAt:    now,
	}); err != nil {
		return domain.SaleItem{}, fmt.Errorf("ledger for batch %s: %w", batch.ID, err)
	}

	return domain.SaleItem{
		ID:           xid.New("sli"),
		SaleID:       saleID,
		LineNo:       lineNo,
		BatchID:      batch.ID,
		MedicineID:   batch.MedicineID,
		Quantity:     line.Quantity,
		SellingPrice: line.SellingPrice,
		MRPAtSale:    line.MRPAtSale,
		LineTotal:    line.SellingPrice.Mul(decimal.NewFromInt(int64(line.Quantity))),
		BalanceAfter: batch.QuantityAvailable,
	}, nil
}

// validateSaleRequest rejects malformed input before any unit of work
// opens. sellingPrice <= mrpAtSale is checked per line under lock
// instead, so it surfaces as a price violation.
func validateSaleRequest(req domain.SaleRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	if err := checkMoneyScale("taxable amount", req.TaxableAmount); err != nil {
		return err
	}
	if err := checkMoneyScale("tax amount", req.TaxAmount); err != nil {
		return err
	}
	if err := checkMoneyScale("total amount", req.TotalAmount); err != nil {
		return err
	}

	taxable := decimal.Zero
	for i, line := range req.Items {
		if err := checkMoneyScale(fmt.Sprintf("line %d: selling price", i+1), line.SellingPrice); err != nil {
			return err
		}
		if err := checkMoneyScale(fmt.Sprintf("line %d: mrp at sale", i+1), line.MRPAtSale); err != nil {
			return err
		}
		if !line.SellingPrice.IsPositive() {
			return invalidf("line %d: selling price must be greater than zero", i+1)
		}
		if !line.MRPAtSale.IsPositive() {
			return invalidf("line %d: mrp at sale must be greater than zero", i+1)
		}
		taxable = taxable.Add(line.SellingPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	if req.TaxAmount.IsNegative() {
		return invalidf("tax amount must not be negative")
	}
	if !req.TaxableAmount.Equal(taxable) {
		return invalidf("taxable amount %s does not match line total %s", req.TaxableAmount.StringFixed(2), taxable.StringFixed(2))
	}
	if !req.TotalAmount.Equal(req.TaxableAmount.Add(req.TaxAmount)) {
		return invalidf("total amount %s does not equal taxable plus tax", req.TotalAmount.StringFixed(2))
	}
	return nil
}
