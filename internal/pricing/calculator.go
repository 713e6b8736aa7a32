// Package pricing computes sale totals: item discounts, a sale-level
// discount, and per-line tax on proportionally discounted amounts.
// All arithmetic is exact decimal; monetary results round half-up to 2 places.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ErrNegativeQuantity indicates a cart line with quantity below one.
var ErrNegativeQuantity = errors.New("pricing: line quantity must be at least 1")

// ErrNegativePrice indicates a cart line with a negative unit price.
var ErrNegativePrice = errors.New("pricing: unit price cannot be negative")

// Line is one cart entry as priced.
type Line struct {
	ProductID       int64
	Quantity        int64
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
	TaxRate         decimal.Decimal
}

// LineResult carries per-line computed amounts.
type LineResult struct {
	ProductID      int64
	Quantity       int64
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	Tax            decimal.Decimal
}

// Result aggregates the priced cart.
type Result struct {
	Lines          []LineResult
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

// Calculate prices a cart. saleDiscount is the sale-level discount amount
// applied after item-level discounts. Item discounts larger than the item
// price are passed through uncapped, so line totals can go negative.
func Calculate(lines []Line, saleDiscount decimal.Decimal) (Result, error) {
	results := make([]LineResult, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Quantity < 1 {
			return Result{}, ErrNegativeQuantity
		}
		if line.UnitPrice.IsNegative() {
			return Result{}, ErrNegativePrice
		}
		itemSubtotal := line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity))
		itemDiscount := itemSubtotal.Mul(line.DiscountPercent).Div(hundred).Add(line.DiscountAmount).Round(2)
		itemTotal := itemSubtotal.Sub(itemDiscount).Round(2)
		results = append(results, LineResult{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			DiscountAmount: itemDiscount,
			Total:          itemTotal,
		})
		subtotal = subtotal.Add(itemTotal)
	}
	subtotal = subtotal.Round(2)

	if saleDiscount.IsNegative() {
		return Result{}, errors.New("pricing: sale discount cannot be negative")
	}

	// Tax applies per line on the item total net of its proportional share of
	// the sale-level discount. A zero subtotal yields zero proportions.
	taxAmount := decimal.Zero
	for i, line := range lines {
		itemTotal := results[i].Total
		proportion := decimal.Zero
		if !subtotal.IsZero() {
			proportion = itemTotal.Div(subtotal)
		}
		share := saleDiscount.Mul(proportion)
		itemFinal := itemTotal.Sub(share)
		lineTax := itemFinal.Mul(line.TaxRate).Div(hundred).Round(2)
		results[i].Tax = lineTax
		taxAmount = taxAmount.Add(lineTax)
	}
	taxAmount = taxAmount.Round(2)

	afterGlobal := subtotal.Sub(saleDiscount).Round(2)
	return Result{
		Lines:          results,
		Subtotal:       subtotal,
		DiscountAmount: saleDiscount.Round(2),
		TaxAmount:      taxAmount,
		Total:          afterGlobal.Add(taxAmount).Round(2),
	}, nil
}
