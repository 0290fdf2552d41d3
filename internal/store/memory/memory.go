package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
)

// Store keeps committed state in maps. Units of work are serialized by a
// single writer slot, which stands in for the row locks of the SQL store;
// each unit stages its writes and merges them only on commit.
type Store struct {
	mu sync.RWMutex

	writer chan struct{}

	medicines     map[string]domain.Medicine
	vendors       map[string]domain.Vendor
	customers     map[string]domain.Customer
	batches       map[string]domain.Batch
	batchByLot    map[string]string
	ledger        []domain.StockLedgerEntry
	counters      map[string]int64
	sales         map[string]domain.Sale
	salesReturns  []domain.SalesReturn
	purchases     map[string]domain.Purchase
	adjustments   map[string]domain.StockAdjustment
	auditLogs     []domain.AuditLog
	nextLedgerSeq int64
}

func New() *Store {
	return &Store{
		writer:        make(chan struct{}, 1),
		medicines:     make(map[string]domain.Medicine),
		vendors:       make(map[string]domain.Vendor),
		customers:     make(map[string]domain.Customer),
		batches:       make(map[string]domain.Batch),
		batchByLot:    make(map[string]string),
		counters:      make(map[string]int64),
		sales:         make(map[string]domain.Sale),
		purchases:     make(map[string]domain.Purchase),
		adjustments:   make(map[string]domain.StockAdjustment),
		nextLedgerSeq: 1,
	}
}

// NewSeeded returns a store with demo masters: two medicines, one vendor
// and two customers (one in-state, one out-of-state for GST purposes).
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, m := range []domain.Medicine{
		{ID: "med-paracetamol-500", Name: "Paracetamol 500mg", GenericName: "Paracetamol", Manufacturer: "Cipla", HSNCode: "3004", GSTRate: decimal.NewFromInt(12), Schedule: "OTC"},
		{ID: "med-amoxicillin-250", Name: "Amoxicillin 250mg", GenericName: "Amoxicillin", Manufacturer: "Sun Pharma", HSNCode: "3004", GSTRate: decimal.NewFromInt(12), Schedule: "H"},
	} {
		m.Active = true
		m.CreatedAt = now
		m.UpdatedAt = now
		s.medicines[m.ID] = m
	}

	s.vendors["ven-medline"] = domain.Vendor{ID: "ven-medline", Name: "Medline Distributors", GSTIN: "33AABCM1234F1Z5", Phone: "044-2345678", Active: true, CreatedAt: now}

	s.customers["cus-local"] = domain.Customer{ID: "cus-local", Name: "Kavya Clinic", Phone: "9840012345", GSTIN: "33AAACK9876L1Z2", CreatedAt: now}
	s.customers["cus-interstate"] = domain.Customer{ID: "cus-interstate", Name: "Bengaluru Care", Phone: "9880054321", GSTIN: "29AABCB4321M1Z8", CreatedAt: now}

	return s
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.writer }()

	tx := newUnitOfWork(s)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	tx.commit()
	s.mu.Unlock()
	return nil
}

func (s *Store) GetBatch(_ context.Context, id string) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &batch, nil
}

func (s *Store) ListBatches(_ context.Context, medicineID string) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Batch, 0, len(s.batches))
	for _, batch := range s.batches {
		if medicineID != "" && batch.MedicineID != medicineID {
			continue
		}
		result = append(result, batch)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ExpDate.Equal(result[j].ExpDate) {
			return result[i].LotCode < result[j].LotCode
		}
		return result[i].ExpDate.Before(result[j].ExpDate)
	})
	return result, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, batchID string) ([]domain.StockLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockLedgerEntry, 0, 16)
	for _, entry := range s.ledger {
		if entry.BatchID == batchID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cloned := cloneSale(sale)
	return &cloned, nil
}

func (s *Store) ListSalesReturns(_ context.Context, saleID string) ([]domain.SalesReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SalesReturn, 0, 4)
	for _, ret := range s.salesReturns {
		if ret.SaleID == saleID {
			ret.Items = slices.Clone(ret.Items)
			result = append(result, ret)
		}
	}
	return result, nil
}

func (s *Store) GetInvoiceCounter(_ context.Context, fiscalYear string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[fiscalYear], nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.auditLogs) {
		limit = len(s.auditLogs)
	}
	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.auditLogs[i])
	}
	return result, nil
}

func cloneSale(sale domain.Sale) domain.Sale {
	sale.Items = slices.Clone(sale.Items)
	if sale.CustomerID != nil {
		id := *sale.CustomerID
		sale.CustomerID = &id
	}
	return sale
}

func lotKey(medicineID string, lotCode string) string {
	return medicineID + "\x00" + lotCode
}
