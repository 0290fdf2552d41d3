package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrPriceViolation      = errors.New("selling price exceeds mrp")
	ErrOverReturn          = errors.New("return exceeds returnable quantity")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrIntegrityViolation  = errors.New("integrity violation")
	ErrInvalidTransaction  = errors.New("invalid transaction")
)

// StockError reports a decrement that would drive a batch below zero.
type StockError struct {
	BatchID   string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock on batch %s: requested %d, available %d", e.BatchID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

type PriceError struct {
	BatchID      string
	SellingPrice decimal.Decimal
	MRP          decimal.Decimal
}

func (e *PriceError) Error() string {
	return fmt.Sprintf("selling price %s exceeds mrp %s on batch %s", e.SellingPrice.StringFixed(2), e.MRP.StringFixed(2), e.BatchID)
}

func (e *PriceError) Unwrap() error { return ErrPriceViolation }

type ReturnError struct {
	SaleItemID string
	Requested  int
	Returnable int
}

func (e *ReturnError) Error() string {
	return fmt.Sprintf("sale item %s: requested return of %d, returnable %d", e.SaleItemID, e.Requested, e.Returnable)
}

func (e *ReturnError) Unwrap() error { return ErrOverReturn }

// Repository is the durable home of batches, the ledger, counters and
// every aggregate the engines write. All mutations go through WithinTx.
type Repository interface {
	// WithinTx runs fn in one unit of work. The work commits only when fn
	// returns nil and ctx is still live; otherwise nothing fn wrote survives.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetBatch(ctx context.Context, id string) (*domain.Batch, error)
	ListBatches(ctx context.Context, medicineID string) ([]domain.Batch, error)
	ListLedgerEntries(ctx context.Context, batchID string) ([]domain.StockLedgerEntry, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSalesReturns(ctx context.Context, saleID string) ([]domain.SalesReturn, error)
	GetInvoiceCounter(ctx context.Context, fiscalYear string) (int64, error)
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
	Close() error
}

// Tx is the set of operations available inside a unit of work. Lock*
// methods hold an exclusive lock on the row until the unit ends.
type Tx interface {
	NextInvoiceNumber(ctx context.Context, fiscalYear string) (int64, error)

	LockBatch(ctx context.Context, id string) (*domain.Batch, error)
	LockBatchByLot(ctx context.Context, medicineID string, lotCode string) (*domain.Batch, error)
	CreateBatch(ctx context.Context, batch domain.Batch) error
	UpdateBatch(ctx context.Context, batch domain.Batch) error
	AppendLedgerEntry(ctx context.Context, entry domain.StockLedgerEntry) (*domain.StockLedgerEntry, error)

	CreateSale(ctx context.Context, sale domain.Sale) error
	LockSale(ctx context.Context, id string) (*domain.Sale, error)
	ReturnedQuantities(ctx context.Context, saleID string) (map[string]int, error)
	CreateSalesReturn(ctx context.Context, ret domain.SalesReturn) error
	CreatePurchase(ctx context.Context, purchase domain.Purchase) error
	CreateStockAdjustment(ctx context.Context, adjustment domain.StockAdjustment) error
	AppendAuditLog(ctx context.Context, entry domain.AuditLog) error

	GetMedicine(ctx context.Context, id string) (*domain.Medicine, error)
	SaveMedicine(ctx context.Context, medicine domain.Medicine) error
	GetVendor(ctx context.Context, id string) (*domain.Vendor, error)
	SaveVendor(ctx context.Context, vendor domain.Vendor) error
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	SaveCustomer(ctx context.Context, customer domain.Customer) error
}
