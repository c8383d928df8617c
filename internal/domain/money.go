package domain

import "github.com/shopspring/decimal"

// PriceDecimals is the number of fractional digits shown for Bahraini dinar.
const PriceDecimals = 3

func init() {
	// Prices travel as JSON numbers, matching what the backend accepts.
	decimal.MarshalJSONWithoutQuotes = true
}

// FormatPrice rounds for display only; arithmetic stays on decimal.Decimal.
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(PriceDecimals)
}
