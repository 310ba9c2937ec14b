// Package orders reads the persisted order history for display.
package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/session"
)

const collection = "orders"

// nestedProjection asks the store to embed each order's line rows.
// It is passed through the gateway unmodified.
const nestedProjection = "*,orders_items(*)"

// History lists persisted orders, newest first.
type History struct {
	store   gateway.Store
	session *session.Session
}

func New(store gateway.Store, sess *session.Session) *History {
	return &History{store: store, session: sess}
}

// List returns the current user's orders with their nested lines.
func (h *History) List(ctx context.Context) ([]domain.PersistedOrder, error) {
	userID, err := h.session.UserID()
	if err != nil {
		return nil, err
	}

	data, err := h.store.Select(ctx, collection, gateway.Query{
		Filters:    []gateway.Filter{gateway.Eq("user_id", userID)},
		Projection: nestedProjection,
		OrderBy:    "created_at",
		Descending: true,
	})
	if err != nil {
		return nil, err
	}

	var out []domain.PersistedOrder
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode order rows: %w", err)
	}
	return out, nil
}
