package cart

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrEmptyProductID   = errors.New("cart: product id is required")
	ErrInvalidQuantity  = errors.New("cart: quantity must be positive")
	ErrQuantityExceeded = errors.New("cart: quantity exceeds stock ceiling")
)

// Item is one line of the cart. Prices and stock are server-computed and
// cached locally; they are overwritten wholesale on every authoritative
// refetch and never modified by local mutations.
type Item struct {
	ProductID       string          `json:"product_id"`
	SKU             string          `json:"sku,omitempty"`
	Name            string          `json:"name,omitempty"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountedPrice decimal.Decimal `json:"discounted_price"`
	EffectivePrice  decimal.Decimal `json:"effective_price"`
	Stock           int             `json:"stock"`
}

// Validate checks the item invariants: a product id, a positive quantity,
// and a quantity within the last known stock ceiling.
func (i Item) Validate() error {
	if i.ProductID == "" {
		return ErrEmptyProductID
	}
	if i.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if i.Stock > 0 && i.Quantity > i.Stock {
		return ErrQuantityExceeded
	}
	return nil
}

// LineTotal returns the effective price multiplied by the quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.EffectivePrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// AtCeiling reports whether the quantity has reached the stock ceiling.
func (i Item) AtCeiling() bool {
	return i.Stock > 0 && i.Quantity >= i.Stock
}

// Items is an ordered cart line list. A product id appears at most once.
type Items []Item

// Subtotal sums the line totals of all items.
func (items Items) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Count returns the total unit count across all lines.
func (items Items) Count() int {
	var n int
	for _, item := range items {
		n += item.Quantity
	}
	return n
}

// Find returns the index of the item with the given product id, or -1.
func (items Items) Find(productID string) int {
	for i, item := range items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the item list. Callers that hand the list to
// another goroutine must clone first so later mutations cannot race the reader.
func (items Items) Clone() Items {
	if items == nil {
		return nil
	}
	out := make(Items, len(items))
	copy(out, items)
	return out
}
