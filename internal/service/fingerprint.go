package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/domain"
)

// saleFingerprint hashes the bill number, total and ordered lines. It is
// stored with the sale and not used for deduplication.
func saleFingerprint(billNumber string, total decimal.Decimal, lines []domain.SaleLineRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s", billNumber, total.StringFixed(2))
	for _, line := range lines {
		fmt.Fprintf(h, "|%s:%d:%s", line.BatchID, line.Quantity, line.SellingPrice.StringFixed(2))
	}
	return hex.EncodeToString(h.Sum(nil))
}
