package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/domain"
)

type taxSplit struct {
	Scope string
	CGST  decimal.Decimal
	SGST  decimal.Decimal
	IGST  decimal.Decimal
}

// splitTax places the declared tax total into GST buckets. Only the total
// is taken from the caller; the bucket choice depends on whether the
// customer's GSTIN state differs from the shop's.
func splitTax(shopStateCode string, customerGSTIN string, tax decimal.Decimal) taxSplit {
	customerState := gstStateCode(customerGSTIN)
	if customerState != "" && customerState != shopStateCode {
		return taxSplit{
			Scope: domain.TaxScopeInterState,
			CGST:  decimal.Zero,
			SGST:  decimal.Zero,
			IGST:  tax,
		}
	}

	cgst := tax.Div(decimal.NewFromInt(2)).Round(2)
	return taxSplit{
		Scope: domain.TaxScopeIntraState,
		CGST:  cgst,
		SGST:  tax.Sub(cgst),
		IGST:  decimal.Zero,
	}
}

// gstStateCode returns the two-digit state prefix of a GSTIN, or "" when
// the value does not start with one.
func gstStateCode(gstin string) string {
	gstin = strings.TrimSpace(gstin)
	if len(gstin) < 2 {
		return ""
	}
	for i := 0; i < 2; i++ {
		if gstin[i] < '0' || gstin[i] > '9' {
			return ""
		}
	}
	return gstin[:2]
}
