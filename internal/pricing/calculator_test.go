package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculateSimpleTaxedLine(t *testing.T) {
	res, err := Calculate([]Line{
		{ProductID: 1, Quantity: 1, UnitPrice: dec("1000.00"), TaxRate: dec("10")},
	}, decimal.Zero)
	require.NoError(t, err)
	require.True(t, res.Subtotal.Equal(dec("1000.00")), "subtotal=%s", res.Subtotal)
	require.True(t, res.TaxAmount.Equal(dec("100.00")), "tax=%s", res.TaxAmount)
	require.True(t, res.Total.Equal(dec("1100.00")), "total=%s", res.Total)
}

func TestCalculateItemPercentDiscount(t *testing.T) {
	res, err := Calculate([]Line{
		{ProductID: 1, Quantity: 1, UnitPrice: dec("1000.00"), DiscountPercent: dec("20"), TaxRate: dec("10")},
	}, decimal.Zero)
	require.NoError(t, err)
	require.True(t, res.Subtotal.Equal(dec("800.00")))
	require.True(t, res.TaxAmount.Equal(dec("80.00")))
	require.True(t, res.Total.Equal(dec("880.00")))
}

func TestCalculateHalfUpRounding(t *testing.T) {
	// 3 x 33.33 = 99.99; 10% tax on 99.99 rounds to 10.00, not 9.99.
	res, err := Calculate([]Line{
		{ProductID: 1, Quantity: 3, UnitPrice: dec("33.33"), TaxRate: dec("10")},
	}, decimal.Zero)
	require.NoError(t, err)
	require.True(t, res.Subtotal.Equal(dec("99.99")), "subtotal=%s", res.Subtotal)
	require.True(t, res.TaxAmount.Equal(dec("10.00")), "tax=%s", res.TaxAmount)
	require.True(t, res.Total.Equal(dec("109.99")))
}

func TestCalculateGlobalDiscountProportionalTax(t *testing.T) {
	// Two lines, one taxed. The sale discount is allocated by each line's
	// share of the subtotal before tax applies.
	res, err := Calculate([]Line{
		{ProductID: 1, Quantity: 1, UnitPrice: dec("600.00"), TaxRate: dec("10")},
		{ProductID: 2, Quantity: 1, UnitPrice: dec("400.00")},
	}, dec("100.00"))
	require.NoError(t, err)
	require.True(t, res.Subtotal.Equal(dec("1000.00")))
	require.True(t, res.DiscountAmount.Equal(dec("100.00")))
	// line 1 share: 100 * 0.6 = 60 -> taxable 540 -> tax 54.00
	require.True(t, res.TaxAmount.Equal(dec("54.00")), "tax=%s", res.TaxAmount)
	require.True(t, res.Total.Equal(dec("954.00")), "total=%s", res.Total)
}

func TestCalculateZeroSubtotalNoDivide(t *testing.T) {
	res, err := Calculate([]Line{
		{ProductID: 1, Quantity: 1, UnitPrice: dec("0.00"), TaxRate: dec("10")},
	}, decimal.Zero)
	require.NoError(t, err)
	require.True(t, res.Subtotal.IsZero())
	require.True(t, res.TaxAmount.IsZero())
	require.True(t, res.Total.IsZero())
}

func TestCalculateUncappedItemDiscount(t *testing.T) {
	// Discounts above the item price are passed through as-is.
	res, err := Calculate([]Line{
		{ProductID: 1, Quantity: 1, UnitPrice: dec("50.00"), DiscountAmount: dec("80.00")},
	}, decimal.Zero)
	require.NoError(t, err)
	require.True(t, res.Subtotal.Equal(dec("-30.00")), "subtotal=%s", res.Subtotal)
	require.True(t, res.Total.Equal(dec("-30.00")))
}

func TestCalculateRejectsBadLines(t *testing.T) {
	_, err := Calculate([]Line{{ProductID: 1, Quantity: 0, UnitPrice: dec("10.00")}}, decimal.Zero)
	require.ErrorIs(t, err, ErrNegativeQuantity)

	_, err = Calculate([]Line{{ProductID: 1, Quantity: 1, UnitPrice: dec("-1.00")}}, decimal.Zero)
	require.ErrorIs(t, err, ErrNegativePrice)
}

func TestCalculateMixedCart(t *testing.T) {
	res, err := Calculate([]Line{
		{ProductID: 1, Quantity: 2, UnitPrice: dec("250.00"), DiscountPercent: dec("10"), TaxRate: dec("16")},
		{ProductID: 2, Quantity: 1, UnitPrice: dec("99.90"), TaxRate: dec("16")},
	}, decimal.Zero)
	require.NoError(t, err)
	// line 1: 500 - 50 = 450; line 2: 99.90 -> subtotal 549.90
	require.True(t, res.Subtotal.Equal(dec("549.90")), "subtotal=%s", res.Subtotal)
	// tax: 72.00 + 15.98 = 87.98
	require.True(t, res.TaxAmount.Equal(dec("87.98")), "tax=%s", res.TaxAmount)
	require.True(t, res.Total.Equal(dec("637.88")))
}
