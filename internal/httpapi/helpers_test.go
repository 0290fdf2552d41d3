package httpapi

import (
	"strconv"

	"github.com/shopspring/decimal"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

func mulString(price string, qty int) string {
	return decimal.RequireFromString(price).Mul(decimal.NewFromInt(int64(qty))).String()
}
