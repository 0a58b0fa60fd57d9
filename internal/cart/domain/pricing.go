package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const emptyAmount = "0.00"

// ItemView is a line item joined with its product's inventory snapshot.
type ItemView struct {
	Item      LineItem
	Inventory Inventory
}

func (v ItemView) Available() bool {
	return v.Inventory.Purchasable()
}

// LineTotal uses the current price, not the discount-aware split used by the
// cart aggregates.
func (v ItemView) LineTotal() decimal.Decimal {
	return v.Inventory.CurrentPrice().Mul(decimal.NewFromInt(int64(v.Item.Quantity)))
}

func (v ItemView) FormatLineTotal() string {
	return v.Inventory.Currency.FormatAmount(v.LineTotal())
}

// CartView is a read-only snapshot of a cart used for pricing. Aggregates are
// computed on demand and never cached.
type CartView struct {
	Cart  Cart
	Items []ItemView
}

func (v CartView) available() []ItemView {
	out := make([]ItemView, 0, len(v.Items))
	for _, it := range v.Items {
		if it.Available() {
			out = append(out, it)
		}
	}
	return out
}

func (v CartView) ItemsCount() int {
	return len(v.Items)
}

func (v CartView) TotalQuantity() int {
	n := 0
	for _, it := range v.Items {
		n += it.Item.Quantity
	}
	return n
}

func (v CartView) ItemsAvailableCount() int {
	return len(v.available())
}

func (v CartView) TotalQuantityAvailable() int {
	n := 0
	for _, it := range v.available() {
		n += it.Item.Quantity
	}
	return n
}

func (v CartView) SubtotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, it := range v.available() {
		total = total.Add(it.Inventory.BasePrice.Mul(decimal.NewFromInt(int64(it.Item.Quantity))))
	}
	return total
}

func (v CartView) DiscountAmount() decimal.Decimal {
	total := decimal.Zero
	for _, it := range v.available() {
		inv := it.Inventory
		if !inv.OnSale() {
			continue
		}
		diff := inv.BasePrice.Sub(inv.SalePrice.Decimal)
		total = total.Add(diff.Mul(decimal.NewFromInt(int64(it.Item.Quantity))))
	}
	return total
}

func (v CartView) TotalAmount() decimal.Decimal {
	return v.SubtotalAmount().Sub(v.DiscountAmount())
}

func (v CartView) SubtotalFormatted() string {
	return v.format(v.SubtotalAmount())
}

func (v CartView) DiscountFormatted() string {
	return v.format(v.DiscountAmount())
}

func (v CartView) TotalFormatted() string {
	return v.format(v.TotalAmount())
}

func (v CartView) format(amount decimal.Decimal) string {
	items := v.available()
	if len(items) == 0 {
		return emptyAmount
	}
	return items[0].Inventory.Currency.FormatAmount(amount)
}

// TotalValue sums the current price of every line item, purchasable or not.
// It is deliberately not the same number as TotalAmount.
func (v CartView) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, it := range v.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func (v CartView) HasProduct(productID uuid.UUID) bool {
	for _, it := range v.Items {
		if it.Item.ProductID == productID {
			return true
		}
	}
	return false
}

type Summary struct {
	TotalItems    int    `json:"total_items"`
	TotalQuantity int    `json:"total_quantity"`
	TotalSubtotal string `json:"total_subtotal"`
	TotalDiscount string `json:"total_discount"`
	TotalValue    string `json:"total_value"`
}

func (v CartView) Summary() Summary {
	return Summary{
		TotalItems:    v.ItemsCount(),
		TotalQuantity: v.TotalQuantityAvailable(),
		TotalSubtotal: v.SubtotalFormatted(),
		TotalDiscount: v.DiscountFormatted(),
		TotalValue:    v.TotalFormatted(),
	}
}

type ItemPrice struct {
	CurrentPrice       string  `json:"current_price"`
	BasePrice          string  `json:"base_price"`
	SalePrice          *string `json:"sale_price"`
	DiscountPercentage float64 `json:"discount_percentage"`
	TotalPrice         string  `json:"total_price"`
}

type ItemDetail struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Available bool      `json:"available"`
	Price     ItemPrice `json:"price"`
}

func (v ItemView) Detail() ItemDetail {
	inv := v.Inventory
	cur := inv.Currency

	var sale *string
	if inv.SalePrice.Valid {
		s := cur.FormatAmount(inv.SalePrice.Decimal)
		sale = &s
	}

	pct, _ := inv.DiscountPercentage().Float64()

	return ItemDetail{
		ID:        v.Item.ID,
		ProductID: v.Item.ProductID,
		Quantity:  v.Item.Quantity,
		Available: v.Available(),
		Price: ItemPrice{
			CurrentPrice:       cur.FormatAmount(inv.CurrentPrice()),
			BasePrice:          cur.FormatAmount(inv.BasePrice),
			SalePrice:          sale,
			DiscountPercentage: pct,
			TotalPrice:         v.FormatLineTotal(),
		},
	}
}

func (v CartView) Details() []ItemDetail {
	out := make([]ItemDetail, 0, len(v.Items))
	for _, it := range v.Items {
		out = append(out, it.Detail())
	}
	return out
}
