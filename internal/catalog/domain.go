// Package catalog resolves products for pricing and owns physical stock
// levels. Service products carry no stock.
package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Product model.
type Product struct {
	ID           int64
	SKU          string
	Name         string
	Price        decimal.Decimal
	TaxRate      decimal.Decimal
	IsService    bool
	CurrentStock int64
	MinStock     int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ErrProductNotFound indicates an unknown or inactive product.
var ErrProductNotFound = errors.New("catalog: product not found")

// ErrStockUnderflow indicates a stock adjustment would go below zero.
var ErrStockUnderflow = errors.New("catalog: stock cannot go negative")
