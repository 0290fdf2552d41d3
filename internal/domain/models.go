package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Medicine struct {
	ID           string          `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	GenericName  string          `json:"generic_name" db:"generic_name"`
	Manufacturer string          `json:"manufacturer" db:"manufacturer"`
	HSNCode      string          `json:"hsn_code" db:"hsn_code"`
	GSTRate      decimal.Decimal `json:"gst_rate" db:"gst_rate"`
	Schedule     string          `json:"schedule" db:"schedule"`
	Active       bool            `json:"active" db:"active"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

type MedicineSaveRequest struct {
	Name         string          `json:"name" validate:"required,max=200"`
	GenericName  string          `json:"generic_name" validate:"max=200"`
	Manufacturer string          `json:"manufacturer" validate:"max=200"`
	HSNCode      string          `json:"hsn_code" validate:"max=16"`
	GSTRate      decimal.Decimal `json:"gst_rate"`
	Schedule     string          `json:"schedule" validate:"max=8"`
	Active       *bool           `json:"active,omitempty"`
}

type Vendor struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	GSTIN     string    `json:"gstin" db:"gstin"`
	Phone     string    `json:"phone" db:"phone"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Customer struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone" db:"phone"`
	GSTIN     string    `json:"gstin" db:"gstin"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MaxBatchQuantity caps the on-hand balance of a single batch so it
// always fits the INTEGER column that stores it.
const MaxBatchQuantity = 1_000_000_000

type Batch struct {
	ID                string          `json:"id" db:"id"`
	MedicineID        string          `json:"medicine_id" db:"medicine_id"`
	VendorID          string          `json:"vendor_id" db:"vendor_id"`
	LotCode           string          `json:"lot_code" db:"lot_code"`
	MfgDate           time.Time       `json:"mfg_date" db:"mfg_date"`
	ExpDate           time.Time       `json:"exp_date" db:"exp_date"`
	PurchaseRate      decimal.Decimal `json:"purchase_rate" db:"purchase_rate"`
	MRP               decimal.Decimal `json:"mrp" db:"mrp"`
	QuantityAvailable int             `json:"quantity_available" db:"quantity_available"`
	RackLocation      string          `json:"rack_location" db:"rack_location"`
	Active            bool            `json:"active" db:"active"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

type StockLedgerEntry struct {
	Seq          int64     `json:"seq" db:"seq"`
	ID           string    `json:"id" db:"id"`
	BatchID      string    `json:"batch_id" db:"batch_id"`
	Kind         string    `json:"kind" db:"kind"`
	ReferenceID  string    `json:"reference_id" db:"reference_id"`
	Delta        int       `json:"delta" db:"delta"`
	BalanceAfter int       `json:"balance_after" db:"balance_after"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type Sale struct {
	ID            string          `json:"id" db:"id"`
	BillNumber    string          `json:"bill_number" db:"bill_number"`
	FiscalYear    string          `json:"fiscal_year" db:"fiscal_year"`
	CustomerID    *string         `json:"customer_id,omitempty" db:"customer_id"`
	CustomerName  string          `json:"customer_name" db:"customer_name"`
	CustomerPhone string          `json:"customer_phone" db:"customer_phone"`
	PaymentMode   string          `json:"payment_mode" db:"payment_mode"`
	TaxScope      string          `json:"tax_scope" db:"tax_scope"`
	TaxableAmount decimal.Decimal `json:"taxable_amount" db:"taxable_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	CGST          decimal.Decimal `json:"cgst" db:"cgst"`
	SGST          decimal.Decimal `json:"sgst" db:"sgst"`
	IGST          decimal.Decimal `json:"igst" db:"igst"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	ContentHash   string          `json:"content_hash" db:"content_hash"`
	CreatedBy     string          `json:"created_by" db:"created_by"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	Items         []SaleItem      `json:"items" db:"-"`
}

type SaleItem struct {
	ID           string          `json:"id" db:"id"`
	SaleID       string          `json:"sale_id" db:"sale_id"`
	LineNo       int             `json:"line_no" db:"line_no"`
	BatchID      string          `json:"batch_id" db:"batch_id"`
	MedicineID   string          `json:"medicine_id" db:"medicine_id"`
	Quantity     int             `json:"quantity" db:"quantity"`
	SellingPrice decimal.Decimal `json:"selling_price" db:"selling_price"`
	MRPAtSale    decimal.Decimal `json:"mrp_at_sale" db:"mrp_at_sale"`
	LineTotal    decimal.Decimal `json:"line_total" db:"line_total"`
	BalanceAfter int             `json:"balance_after" db:"-"`
}

type SaleLineRequest struct {
	BatchID      string          `json:"batch_id" validate:"required"`
	Quantity     int             `json:"quantity" validate:"gt=0,max=100000"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	MRPAtSale    decimal.Decimal `json:"mrp_at_sale"`
}

type SaleRequest struct {
	CustomerID    *string           `json:"customer_id,omitempty"`
	CustomerName  string            `json:"customer_name" validate:"max=200"`
	CustomerPhone string            `json:"customer_phone" validate:"max=32"`
	PaymentMode   string            `json:"payment_mode" validate:"required,oneof=cash credit upi"`
	TaxableAmount decimal.Decimal   `json:"taxable_amount"`
	TaxAmount     decimal.Decimal   `json:"tax_amount"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Items         []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
}

type Purchase struct {
	ID            string          `json:"id" db:"id"`
	VendorID      string          `json:"vendor_id" db:"vendor_id"`
	InvoiceNumber string          `json:"invoice_number" db:"invoice_number"`
	InvoiceDate   time.Time       `json:"invoice_date" db:"invoice_date"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	ReceivedBy    string          `json:"received_by" db:"received_by"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	Items         []PurchaseItem  `json:"items" db:"-"`
}

type PurchaseItem struct {
	ID           string          `json:"id" db:"id"`
	PurchaseID   string          `json:"purchase_id" db:"purchase_id"`
	BatchID      string          `json:"batch_id" db:"batch_id"`
	MedicineID   string          `json:"medicine_id" db:"medicine_id"`
	LotCode      string          `json:"lot_code" db:"lot_code"`
	Quantity     int             `json:"quantity" db:"quantity"`
	PurchaseRate decimal.Decimal `json:"purchase_rate" db:"purchase_rate"`
	MRP          decimal.Decimal `json:"mrp" db:"mrp"`
	BatchCreated bool            `json:"batch_created" db:"batch_created"`
	BalanceAfter int             `json:"balance_after" db:"-"`
}

type PurchaseLineRequest struct {
	MedicineID   string          `json:"medicine_id" validate:"required"`
	LotCode      string          `json:"lot_code" validate:"required,max=64"`
	MfgDate      time.Time       `json:"mfg_date" validate:"required"`
	ExpDate      time.Time       `json:"exp_date" validate:"required"`
	PurchaseRate decimal.Decimal `json:"purchase_rate"`
	MRP          decimal.Decimal `json:"mrp"`
	Quantity     int             `json:"quantity" validate:"min=1,max=100000"`
	RackLocation string          `json:"rack_location" validate:"max=32"`
}

type PurchaseRequest struct {
	VendorID      string                `json:"vendor_id" validate:"required"`
	InvoiceNumber string                `json:"invoice_number" validate:"required,max=64"`
	InvoiceDate   time.Time             `json:"invoice_date" validate:"required"`
	Items         []PurchaseLineRequest `json:"items" validate:"required,min=1,dive"`
}

type StockAdjustment struct {
	ID           string    `json:"id" db:"id"`
	BatchID      string    `json:"batch_id" db:"batch_id"`
	Delta        int       `json:"delta" db:"delta"`
	Reason       string    `json:"reason" db:"reason"`
	Note         string    `json:"note" db:"note"`
	Actor        string    `json:"actor" db:"actor"`
	BalanceAfter int       `json:"balance_after" db:"balance_after"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type StockAdjustmentRequest struct {
	BatchID string `json:"batch_id" validate:"required"`
	Delta   int    `json:"delta" validate:"ne=0,min=-100000,max=100000"`
	Reason  string `json:"reason" validate:"required,oneof=damage expired theft manual_correction other"`
	Note    string `json:"note" validate:"max=500"`
	Actor   string `json:"actor" validate:"max=64"`
}

type SalesReturn struct {
	ID          string            `json:"id" db:"id"`
	SaleID      string            `json:"sale_id" db:"sale_id"`
	Reason      string            `json:"reason" db:"reason"`
	TotalRefund decimal.Decimal   `json:"total_refund" db:"total_refund"`
	Actor       string            `json:"actor" db:"actor"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	Items       []SalesReturnItem `json:"items" db:"-"`
}

type SalesReturnItem struct {
	ID           string          `json:"id" db:"id"`
	ReturnID     string          `json:"return_id" db:"return_id"`
	SaleItemID   string          `json:"sale_item_id" db:"sale_item_id"`
	BatchID      string          `json:"batch_id" db:"batch_id"`
	Quantity     int             `json:"quantity" db:"quantity"`
	RefundAmount decimal.Decimal `json:"refund_amount" db:"refund_amount"`
	BalanceAfter int             `json:"balance_after" db:"-"`
}

type ReturnLineRequest struct {
	SaleItemID string `json:"sale_item_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"min=1,max=100000"`
}

type SalesReturnRequest struct {
	SaleID string              `json:"sale_id" validate:"required"`
	Reason string              `json:"reason" validate:"required,max=500"`
	Actor  string              `json:"actor" validate:"max=64"`
	Items  []ReturnLineRequest `json:"items" validate:"required,min=1,dive"`
}

type AuditLog struct {
	ID        string    `json:"id" db:"id"`
	Actor     string    `json:"actor" db:"actor"`
	ActorRole string    `json:"actor_role" db:"actor_role"`
	Action    string    `json:"action" db:"action"`
	TableName string    `json:"table_name" db:"table_name"`
	RecordID  string    `json:"record_id" db:"record_id"`
	Before    string    `json:"before,omitempty" db:"before_data"`
	After     string    `json:"after,omitempty" db:"after_data"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LedgerReconciliation struct {
	BatchID           string `json:"batch_id"`
	QuantityAvailable int    `json:"quantity_available"`
	LedgerSum         int    `json:"ledger_sum"`
	Entries           int    `json:"entries"`
	FirstMismatchSeq  int64  `json:"first_mismatch_seq,omitempty"`
	Consistent        bool   `json:"consistent"`
}

const (
	LedgerKindPurchase   = "purchase"
	LedgerKindSale       = "sale"
	LedgerKindReturn     = "return"
	LedgerKindAdjustment = "adjustment"
)

const (
	PaymentModeCash   = "cash"
	PaymentModeCredit = "credit"
	PaymentModeUPI    = "upi"
)

const (
	TaxScopeIntraState = "intra_state"
	TaxScopeInterState = "inter_state"
)

const (
	AdjustmentReasonDamage           = "damage"
	AdjustmentReasonExpired          = "expired"
	AdjustmentReasonTheft            = "theft"
	AdjustmentReasonManualCorrection = "manual_correction"
	AdjustmentReasonOther            = "other"
)

type VendorSaveRequest struct {
	Name   string `json:"name" validate:"required,max=200"`
	GSTIN  string `json:"gstin" validate:"omitempty,len=15"`
	Phone  string `json:"phone" validate:"max=32"`
	Active *bool  `json:"active,omitempty"`
}

type CustomerSaveRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"max=32"`
	GSTIN string `json:"gstin" validate:"omitempty,len=15"`
}
