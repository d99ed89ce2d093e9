package shared

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LineTotal computes quantity*unitPrice - discount + tax rounded to two
// fraction digits. Discount and tax are absolute amounts, not percentages.
// Quote and order lines carry no tax; invoice lines may.
func LineTotal(quantity, unitPrice, discount, tax decimal.Decimal) (decimal.Decimal, error) {
	if quantity.IsNegative() || unitPrice.IsNegative() || discount.IsNegative() || tax.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: quantity, unit price, discount and tax must be non-negative", ErrValidation)
	}
	gross := quantity.Mul(unitPrice)
	if discount.GreaterThan(gross) {
		return decimal.Zero, fmt.Errorf("%w: discount exceeds line amount", ErrValidation)
	}
	return gross.Sub(discount).Add(tax).Round(2), nil
}

// SumLines adds already-rounded line totals into a document total. Totals are
// always recomputed from the full item set, never patched incrementally.
func SumLines(lineTotals []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, lt := range lineTotals {
		total = total.Add(lt)
	}
	return total.Round(2)
}
