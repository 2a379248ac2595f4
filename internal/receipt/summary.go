package receipt

import "github.com/shopspring/decimal"

// Summary holds receipt totals computed from line items
type Summary struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Deposit  float64 `json:"deposit"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
}

// Summarize totals price*quantity, tax, deposits and discounts, rounded to cents
func Summarize(items []LineItem) Summary {
	var subtotal, tax, deposit, discount decimal.Decimal

	for _, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromFloat(item.Quantity))
		subtotal = subtotal.Add(line)
		if item.TaxAmount != nil {
			tax = tax.Add(decimal.NewFromFloat(*item.TaxAmount))
		}
		if item.Deposit != nil {
			deposit = deposit.Add(decimal.NewFromFloat(*item.Deposit))
		}
		if item.Discount != nil {
			discount = discount.Add(decimal.NewFromFloat(*item.Discount))
		}
	}

	total := subtotal.Add(tax).Add(deposit).Add(discount)

	return Summary{
		Subtotal: subtotal.Round(2).InexactFloat64(),
		Tax:      tax.Round(2).InexactFloat64(),
		Deposit:  deposit.Round(2).InexactFloat64(),
		Discount: discount.Round(2).InexactFloat64(),
		Total:    total.Round(2).InexactFloat64(),
	}
}
