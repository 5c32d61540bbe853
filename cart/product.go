// cart/product.go

package cart

import "github.com/shopspring/decimal"

// Product is one line of the cart: the catalog metadata of a product plus the
// amount the shopper wants. The JSON form is what gets persisted.
type Product struct {
	ID     int     `json:"id"`
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
	Image  string  `json:"image"`
	Amount int     `json:"amount"`
}

// Subtotal returns price * amount.
func (p Product) Subtotal() decimal.Decimal {
	return decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(int64(p.Amount)))
}

// Stock is the availability the stock service reports for a product.
type Stock struct {
	ID     int `json:"id"`
	Amount int `json:"amount"`
}

// UpdateProductAmount is the argument of Store.UpdateProductAmount.
type UpdateProductAmount struct {
	ProductID int
	Amount    int
}

// Summary aggregates a cart for display.
type Summary struct {
	Items int
	Total decimal.Decimal
}

// Totals sums the amounts and subtotals of products.
func Totals(products []Product) Summary {
	s := Summary{Total: decimal.Zero}
	for _, p := range products {
		s.Items += p.Amount
		s.Total = s.Total.Add(p.Subtotal())
	}
	return s
}

func indexOf(products []Product, productID int) int {
	for i, p := range products {
		if p.ID == productID {
			return i
		}
	}
	return -1
}

// repair drops entries with a non-positive amount and merges entries sharing
// an id into the first one, summing amounts. changed reports whether anything
// was dropped or merged.
func repair(products []Product) (repaired []Product, changed bool) {
	repaired = make([]Product, 0, len(products))
	for _, p := range products {
		if p.Amount <= 0 {
			changed = true
			continue
		}
		if i := indexOf(repaired, p.ID); i >= 0 {
			repaired[i].Amount += p.Amount
			changed = true
			continue
		}
		repaired = append(repaired, p)
	}
	return repaired, changed
}

func equalProducts(a, b []Product) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
