package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderDraft is the order header sent to the store exactly once.
// Orders are append-only: a draft is never mutated after submission.
type OrderDraft struct {
	ContactEmail string `json:"email"`
	ContactPhone string `json:"phone"`
	Address      string `json:"address"`
	UserID       string `json:"user_id"`
	PaymentID    string `json:"payment_id,omitempty"`
	DeliveryCost int    `json:"delivery_cost"`
	StatusID     string `json:"status_id"`
}

// OrderLineRequest is one order line to be inserted under a persisted order.
// OrderID stays empty until the server-assigned order id is resolved.
type OrderLineRequest struct {
	OrderID   string          `json:"order_id,omitempty"`
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	UnitCost  decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// PersistedOrder is the read model returned by the store for history display.
type PersistedOrder struct {
	ID           string               `json:"id"`
	CreatedAt    time.Time            `json:"created_at"`
	DeliveryCost int                  `json:"delivery_cost"`
	StatusID     string               `json:"status_id"`
	Lines        []PersistedOrderLine `json:"orders_items"`
}

// PersistedOrderLine is one stored order line.
type PersistedOrderLine struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	UnitCost  decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}
