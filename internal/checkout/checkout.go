// Package checkout drives the multi-step write sequence that turns the cart
// aggregate into a persisted order plus order-line rows, then clears the
// cart. The sequence is best-effort across three remote collections with no
// server-side transaction; each step is gated on the previous one.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"storefront/internal/cart"
	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/session"
)

const (
	collectionOrders     = "orders"
	collectionOrderItems = "orders_items"
)

// ErrCheckoutInFlight is returned when a second PlaceOrder call arrives
// while one is still running. Calls are rejected, never queued.
var ErrCheckoutInFlight = errors.New("checkout: another checkout is in flight")

// PlaceOrderRequest carries the contact and payment details for one order.
type PlaceOrderRequest struct {
	ContactEmail string
	ContactPhone string
	Address      string
	PaymentID    string
	DeliveryCost int
	StatusID     string
}

// Result is the outcome of one checkout attempt. Err holds the cause of the
// failed step. CartClearErr is reported separately: once the order and its
// lines are durably persisted the checkout is successful even if clearing
// the remote cart failed, and stale cart rows are tolerated until the next
// load.
type Result struct {
	Status       Status
	OrderID      string
	Err          error
	CartClearErr error
}

// Succeeded reports whether the order and all its lines were persisted.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Orchestrator owns the checkout sequence and its single-flight guard.
type Orchestrator struct {
	store   gateway.Store
	cart    *cart.Aggregate
	session *session.Session
	log     zerolog.Logger
	saving  atomic.Bool
}

func New(store gateway.Store, agg *cart.Aggregate, sess *session.Session, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		cart:    agg,
		session: sess,
		log:     log,
	}
}

// PlaceOrder runs the checkout sequence:
//
//  1. snapshot the cart; an empty snapshot fails before any remote call
//  2. insert the order header
//  3. resolve the server-assigned order id (the insert ack does not carry it)
//  4. bulk-insert the order lines under that id
//  5. clear the remote cart; failure here does not downgrade the result
//
// The first failing step stops the sequence. No retries, no compensation:
// a step-4 failure leaves an orphan order header behind, which is logged
// and surfaced via the result status so a supervising layer can reconcile.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (Result, error) {
	if !o.saving.CompareAndSwap(false, true) {
		return Result{}, ErrCheckoutInFlight
	}
	defer o.saving.Store(false)

	userID, err := o.session.UserID()
	if err != nil {
		return Result{}, err
	}

	snapshot := o.cart.SnapshotForCheckout()
	if len(snapshot) == 0 {
		return Result{Status: StatusEmptyCart}, nil
	}

	draft := domain.OrderDraft{
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Address:      req.Address,
		UserID:       userID,
		PaymentID:    req.PaymentID,
		DeliveryCost: req.DeliveryCost,
		StatusID:     req.StatusID,
	}
	if err := o.store.Insert(ctx, collectionOrders, draft); err != nil {
		o.log.Error().Err(err).Msg("order header insert failed")
		return Result{Status: StatusOrderCreationFailed, Err: err}, nil
	}

	orderID, err := o.resolveOrderID(ctx, userID)
	if err != nil {
		// The header insert was acked, so an order may now exist with no
		// retrievable id. Not automatically retryable.
		o.log.Error().Err(err).Str("user_id", userID).Msg("order id unresolved after insert")
		return Result{Status: StatusOrderIDUnresolved, Err: err}, nil
	}

	lines := make([]domain.OrderLineRequest, len(snapshot))
	for i, l := range snapshot {
		l.OrderID = orderID
		lines[i] = l
	}
	if err := o.store.Insert(ctx, collectionOrderItems, lines); err != nil {
		o.log.Error().Err(err).Str("order_id", orderID).Msg("order lines insert failed, orphan order header left behind")
		return Result{Status: StatusOrderLinesFailed, OrderID: orderID, Err: err}, nil
	}

	result := Result{Status: StatusSuccess, OrderID: orderID}
	if err := o.cart.ClearRemote(ctx); err != nil {
		o.log.Warn().Err(err).Str("order_id", orderID).Msg("cart clear after checkout failed")
		result.CartClearErr = err
	}
	return result, nil
}

// resolveOrderID queries the newest order of the user to recover the
// server-assigned id.
func (o *Orchestrator) resolveOrderID(ctx context.Context, userID string) (string, error) {
	data, err := o.store.Select(ctx, collectionOrders, gateway.Query{
		Filters:    []gateway.Filter{gateway.Eq("user_id", userID)},
		Projection: "id",
		OrderBy:    "created_at",
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return "", err
	}

	var rows []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return "", fmt.Errorf("decode order id: %w", err)
	}
	if len(rows) == 0 || rows[0].ID == "" {
		return "", errors.New("no order row for user after insert")
	}
	return rows[0].ID, nil
}
