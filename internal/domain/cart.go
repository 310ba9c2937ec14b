package domain

import "github.com/shopspring/decimal"

// CartLine is one persisted (product, quantity) pairing for a user's
// in-progress purchase. RemoteID is assigned by the store on insert.
type CartLine struct {
	RemoteID  string          `json:"id,omitempty"`
	UserID    string          `json:"user_id"`
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	UnitCost  decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Subtotal is unit cost times quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Product carries the metadata needed to create a cart line.
type Product struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	UnitCost decimal.Decimal `json:"price"`
}

// Total sums the subtotals of the given lines.
func Total(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
