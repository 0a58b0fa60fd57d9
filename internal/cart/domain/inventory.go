package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Currency struct {
	Code     string
	Symbol   string
	Decimals int32
}

// FormatAmount renders amount with the currency's precision, prefixed by the
// symbol when there is one and suffixed by the code otherwise.
func (c Currency) FormatAmount(amount decimal.Decimal) string {
	formatted := amount.StringFixed(c.Decimals)
	if c.Symbol != "" {
		return c.Symbol + formatted
	}
	return fmt.Sprintf("%s %s", formatted, c.Code)
}

// Inventory is the per-product stock and price snapshot the cart reads and
// locks. The cart never writes it.
type Inventory struct {
	ProductID        uuid.UUID
	IsActive         bool
	StockQuantity    int
	ReservedQuantity int
	BasePrice        decimal.Decimal
	SalePrice        decimal.NullDecimal
	Currency         Currency
}

func (i Inventory) AvailableQuantity() int {
	return i.StockQuantity - i.ReservedQuantity
}

func (i Inventory) InStock() bool {
	return i.AvailableQuantity() > 0
}

// Purchasable reports whether the product can currently be bought at all.
func (i Inventory) Purchasable() bool {
	return i.IsActive && i.InStock()
}

// CurrentPrice is the sale price when one is set, otherwise the base price.
func (i Inventory) CurrentPrice() decimal.Decimal {
	if i.SalePrice.Valid {
		return i.SalePrice.Decimal
	}
	return i.BasePrice
}

func (i Inventory) OnSale() bool {
	return i.SalePrice.Valid && i.SalePrice.Decimal.LessThan(i.BasePrice)
}

func (i Inventory) DiscountPercentage() decimal.Decimal {
	if !i.OnSale() || i.BasePrice.IsZero() {
		return decimal.Zero
	}
	return i.BasePrice.Sub(i.SalePrice.Decimal).
		Div(i.BasePrice).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}
