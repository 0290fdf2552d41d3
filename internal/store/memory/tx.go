package memory

import (
	"context"
	"fmt"
	"slices"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
)

type unitOfWork struct {
	s *Store

	medicines    map[string]domain.Medicine
	vendors      map[string]domain.Vendor
	customers    map[string]domain.Customer
	batches      map[string]domain.Batch
	batchByLot   map[string]string
	ledger       []domain.StockLedgerEntry
	counters     map[string]int64
	sales        map[string]domain.Sale
	salesReturns []domain.SalesReturn
	purchases    map[string]domain.Purchase
	adjustments  map[string]domain.StockAdjustment
	auditLogs    []domain.AuditLog
}

func newUnitOfWork(s *Store) *unitOfWork {
	return &unitOfWork{
		s:           s,
		medicines:   make(map[string]domain.Medicine),
		vendors:     make(map[string]domain.Vendor),
		customers:   make(map[string]domain.Customer),
		batches:     make(map[string]domain.Batch),
		batchByLot:  make(map[string]string),
		counters:    make(map[string]int64),
		sales:       make(map[string]domain.Sale),
		purchases:   make(map[string]domain.Purchase),
		adjustments: make(map[string]domain.StockAdjustment),
	}
}

// commit merges staged writes. Caller holds s.mu.
func (u *unitOfWork) commit() {
	s := u.s
	for id, m := range u.medicines {
		s.medicines[id] = m
	}
	for id, v := range u.vendors {
		s.vendors[id] = v
	}
	for id, c := range u.customers {
		s.customers[id] = c
	}
	for id, b := range u.batches {
		s.batches[id] = b
	}
	for key, id := range u.batchByLot {
		s.batchByLot[key] = id
	}
	s.ledger = append(s.ledger, u.ledger...)
	s.nextLedgerSeq += int64(len(u.ledger))
	for fy, n := range u.counters {
		s.counters[fy] = n
	}
	for id, sale := range u.sales {
		s.sales[id] = sale
	}
	s.salesReturns = append(s.salesReturns, u.salesReturns...)
	for id, p := range u.purchases {
		s.purchases[id] = p
	}
	for id, a := range u.adjustments {
		s.adjustments[id] = a
	}
	s.auditLogs = append(s.auditLogs, u.auditLogs...)
}

func (u *unitOfWork) NextInvoiceNumber(_ context.Context, fiscalYear string) (int64, error) {
	last, ok := u.counters[fiscalYear]
	if !ok {
		u.s.mu.RLock()
		last = u.s.counters[fiscalYear]
		u.s.mu.RUnlock()
	}
	next := last + 1
	u.counters[fiscalYear] = next
	return next, nil
}

func (u *unitOfWork) LockBatch(_ context.Context, id string) (*domain.Batch, error) {
	if batch, ok := u.batches[id]; ok {
		return &batch, nil
	}
	u.s.mu.RLock()
	batch, ok := u.s.batches[id]
	u.s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return &batch, nil
}

func (u *unitOfWork) LockBatchByLot(ctx context.Context, medicineID string, lotCode string) (*domain.Batch, error) {
	key := lotKey(medicineID, lotCode)
	id, ok := u.batchByLot[key]
	if !ok {
		u.s.mu.RLock()
		id, ok = u.s.batchByLot[key]
		u.s.mu.RUnlock()
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	return u.LockBatch(ctx, id)
}

func (u *unitOfWork) CreateBatch(ctx context.Context, batch domain.Batch) error {
	if batch.QuantityAvailable < 0 {
		return fmt.Errorf("batch %s: negative quantity: %w", batch.ID, store.ErrIntegrityViolation)
	}
	if _, err := u.LockBatchByLot(ctx, batch.MedicineID, batch.LotCode); err == nil {
		return fmt.Errorf("batch lot %s already exists: %w", batch.LotCode, store.ErrIntegrityViolation)
	}
	if _, err := u.GetMedicine(ctx, batch.MedicineID); err != nil {
		return err
	}
	if _, err := u.GetVendor(ctx, batch.VendorID); err != nil {
		return err
	}
	u.batches[batch.ID] = batch
	u.batchByLot[lotKey(batch.MedicineID, batch.LotCode)] = batch.ID
	return nil
}

func (u *unitOfWork) UpdateBatch(ctx context.Context, batch domain.Batch) error {
	if batch.QuantityAvailable < 0 {
		return fmt.Errorf("batch %s: negative quantity: %w", batch.ID, store.ErrIntegrityViolation)
	}
	if _, err := u.LockBatch(ctx, batch.ID); err != nil {
		return err
	}
	u.batches[batch.ID] = batch
	return nil
}

func (u *unitOfWork) AppendLedgerEntry(ctx context.Context, entry domain.StockLedgerEntry) (*domain.StockLedgerEntry, error) {
	if _, err := u.LockBatch(ctx, entry.BatchID); err != nil {
		return nil, err
	}
	u.s.mu.RLock()
	entry.Seq = u.s.nextLedgerSeq + int64(len(u.ledger))
	u.s.mu.RUnlock()
	u.ledger = append(u.ledger, entry)
	return &entry, nil
}

func (u *unitOfWork) CreateSale(_ context.Context, sale domain.Sale) error {
	for _, item := range sale.Items {
		if item.SellingPrice.GreaterThan(item.MRPAtSale) {
			return fmt.Errorf("sale item %s: %w", item.ID, store.ErrIntegrityViolation)
		}
	}
	u.s.mu.RLock()
	for _, existing := range u.s.sales {
		if existing.BillNumber == sale.BillNumber {
			u.s.mu.RUnlock()
			return fmt.Errorf("bill number %s reused: %w", sale.BillNumber, store.ErrIntegrityViolation)
		}
	}
	u.s.mu.RUnlock()
	u.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (u *unitOfWork) LockSale(_ context.Context, id string) (*domain.Sale, error) {
	if sale, ok := u.sales[id]; ok {
		cloned := cloneSale(sale)
		return &cloned, nil
	}
	u.s.mu.RLock()
	sale, ok := u.s.sales[id]
	u.s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	cloned := cloneSale(sale)
	return &cloned, nil
}

func (u *unitOfWork) ReturnedQuantities(_ context.Context, saleID string) (map[string]int, error) {
	result := make(map[string]int)
	collect := func(returns []domain.SalesReturn) {
		for _, ret := range returns {
			if ret.SaleID != saleID {
				continue
			}
			for _, item := range ret.Items {
				result[item.SaleItemID] += item.Quantity
			}
		}
	}
	u.s.mu.RLock()
	collect(u.s.salesReturns)
	u.s.mu.RUnlock()
	collect(u.salesReturns)
	return result, nil
}

func (u *unitOfWork) CreateSalesReturn(_ context.Context, ret domain.SalesReturn) error {
	ret.Items = slices.Clone(ret.Items)
	u.salesReturns = append(u.salesReturns, ret)
	return nil
}

func (u *unitOfWork) CreatePurchase(ctx context.Context, purchase domain.Purchase) error {
	if _, err := u.GetVendor(ctx, purchase.VendorID); err != nil {
		return err
	}
	purchase.Items = slices.Clone(purchase.Items)
	u.purchases[purchase.ID] = purchase
	return nil
}

func (u *unitOfWork) CreateStockAdjustment(_ context.Context, adjustment domain.StockAdjustment) error {
	u.adjustments[adjustment.ID] = adjustment
	return nil
}

func (u *unitOfWork) AppendAuditLog(_ context.Context, entry domain.AuditLog) error {
	u.auditLogs = append(u.auditLogs, entry)
	return nil
}

func (u *unitOfWork) GetMedicine(_ context.Context, id string) (*domain.Medicine, error) {
	if m, ok := u.medicines[id]; ok {
		return &m, nil
	}
	u.s.mu.RLock()
	m, ok := u.s.medicines[id]
	u.s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (u *unitOfWork) SaveMedicine(_ context.Context, medicine domain.Medicine) error {
	u.medicines[medicine.ID] = medicine
	return nil
}

func (u *unitOfWork) GetVendor(_ context.Context, id string) (*domain.Vendor, error) {
	if v, ok := u.vendors[id]; ok {
		return &v, nil
	}
	u.s.mu.RLock()
	v, ok := u.s.vendors[id]
	u.s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func (u *unitOfWork) SaveVendor(_ context.Context, vendor domain.Vendor) error {
	u.vendors[vendor.ID] = vendor
	return nil
}

func (u *unitOfWork) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	if c, ok := u.customers[id]; ok {
		return &c, nil
	}
	u.s.mu.RLock()
	c, ok := u.s.customers[id]
	u.s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (u *unitOfWork) SaveCustomer(_ context.Context, customer domain.Customer) error {
	u.customers[customer.ID] = customer
	return nil
}
