// Package cart holds the in-memory aggregate of the current user's cart and
// keeps it reconciled with the remote cart collection.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/session"
)

const collection = "cart"

// ErrLineNotFound is returned when a quantity change targets an unknown row.
var ErrLineNotFound = errors.New("cart: line not found")

// Aggregate is the session-owned cart state: the line collection plus a
// derived product-id membership set for O(1) "already in cart" checks.
// Local state is the presentation source of truth; remote writes for
// quantity changes and removals are fire-and-forget reconciliation.
type Aggregate struct {
	store   gateway.Store
	session *session.Session
	log     zerolog.Logger

	mu     sync.RWMutex
	lines  []domain.CartLine
	inCart map[string]struct{}

	sfg singleflight.Group // dedups concurrent full loads
	wg  sync.WaitGroup     // in-flight reconciliation tasks

	errMu   sync.Mutex
	lastErr error
}

func New(store gateway.Store, sess *session.Session, log zerolog.Logger) *Aggregate {
	return &Aggregate{
		store:   store,
		session: sess,
		log:     log,
		inCart:  map[string]struct{}{},
	}
}

// Load fetches all cart rows for the current user and replaces the local
// lines and membership set in a single swap, so readers never observe a
// half-updated cart.
func (a *Aggregate) Load(ctx context.Context) error {
	userID, err := a.session.UserID()
	if err != nil {
		return err
	}

	_, err, _ = a.sfg.Do(userID, func() (interface{}, error) {
		data, err := a.store.Select(ctx, collection, gateway.Query{
			Filters: []gateway.Filter{gateway.Eq("user_id", userID)},
		})
		if err != nil {
			return nil, err
		}

		var lines []domain.CartLine
		if err := json.Unmarshal(data, &lines); err != nil {
			return nil, fmt.Errorf("decode cart rows: %w", err)
		}

		inCart := make(map[string]struct{}, len(lines))
		for _, l := range lines {
			inCart[l.ProductID] = struct{}{}
		}

		a.mu.Lock()
		a.lines = lines
		a.inCart = inCart
		a.mu.Unlock()
		return nil, nil
	})
	return err
}

// Add inserts a new cart row with quantity 1. A product already in the
// membership set is a no-op, which keeps rapid double-taps from creating
// duplicate remote rows. The set is updated only after the insert succeeds;
// on failure the operation stays retryable and no local line appears without
// a confirmed remote id.
func (a *Aggregate) Add(ctx context.Context, p domain.Product) error {
	userID, err := a.session.UserID()
	if err != nil {
		return err
	}

	a.mu.RLock()
	_, present := a.inCart[p.ID]
	a.mu.RUnlock()
	if present {
		return nil
	}

	line := domain.CartLine{
		UserID:    userID,
		ProductID: p.ID,
		Title:     p.Title,
		UnitCost:  p.UnitCost,
		Quantity:  1,
	}
	if err := a.store.Insert(ctx, collection, line); err != nil {
		return err
	}

	a.mu.Lock()
	a.inCart[p.ID] = struct{}{}
	a.mu.Unlock()

	// Pick up the server-assigned row id. Failure here only delays the
	// line becoming visible until the next successful load.
	if err := a.Load(ctx); err != nil {
		a.log.Warn().Err(err).Str("product_id", p.ID).Msg("cart reload after add failed")
	}
	return nil
}

// Increase bumps the quantity of a line by one: local state first, remote
// patch in the background.
func (a *Aggregate) Increase(remoteID string) error {
	return a.changeQuantity(remoteID, +1)
}

// Decrease lowers the quantity of a line by one, clamped at 1. Decreasing a
// quantity-1 line is a no-op and issues no remote call.
func (a *Aggregate) Decrease(remoteID string) error {
	return a.changeQuantity(remoteID, -1)
}

func (a *Aggregate) changeQuantity(remoteID string, delta int) error {
	a.mu.Lock()
	idx := a.findLine(remoteID)
	if idx < 0 {
		a.mu.Unlock()
		return ErrLineNotFound
	}
	next := a.lines[idx].Quantity + delta
	if next < 1 {
		a.mu.Unlock()
		return nil
	}
	a.lines[idx].Quantity = next
	a.mu.Unlock()

	a.reconcile("patch quantity", func(ctx context.Context) error {
		return a.store.Patch(ctx, collection,
			[]gateway.Filter{gateway.Eq("id", remoteID)},
			map[string]int{"quantity": next})
	})
	return nil
}

// Remove drops the line locally, then deletes the remote row in the
// background. An unknown remote id is a no-op.
func (a *Aggregate) Remove(remoteID string) {
	a.mu.Lock()
	idx := a.findLine(remoteID)
	if idx < 0 {
		a.mu.Unlock()
		return
	}
	delete(a.inCart, a.lines[idx].ProductID)
	a.lines = append(a.lines[:idx], a.lines[idx+1:]...)
	a.mu.Unlock()

	a.reconcile("delete line", func(ctx context.Context) error {
		return a.store.Delete(ctx, collection,
			[]gateway.Filter{gateway.Eq("id", remoteID)})
	})
}

// SnapshotForCheckout returns an immutable copy of the current lines shaped
// as order-line requests (order id unresolved). The copy reflects exactly
// the lines visible at the moment of the call.
func (a *Aggregate) SnapshotForCheckout() []domain.OrderLineRequest {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snapshot := make([]domain.OrderLineRequest, 0, len(a.lines))
	for _, l := range a.lines {
		snapshot = append(snapshot, domain.OrderLineRequest{
			ProductID: l.ProductID,
			Title:     l.Title,
			UnitCost:  l.UnitCost,
			Quantity:  l.Quantity,
		})
	}
	return snapshot
}

// ClearRemote bulk-deletes all cart rows of the current user. Local state is
// reset only when the remote delete succeeds; on failure the cart stays
// visible and recoverable.
func (a *Aggregate) ClearRemote(ctx context.Context) error {
	userID, err := a.session.UserID()
	if err != nil {
		return err
	}
	if err := a.store.Delete(ctx, collection,
		[]gateway.Filter{gateway.Eq("user_id", userID)}); err != nil {
		return err
	}

	a.mu.Lock()
	a.lines = nil
	a.inCart = map[string]struct{}{}
	a.mu.Unlock()
	return nil
}

// Lines returns a copy of the current line collection.
func (a *Aggregate) Lines() []domain.CartLine {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.CartLine, len(a.lines))
	copy(out, a.lines)
	return out
}

// Contains reports membership of a product id in the cart.
func (a *Aggregate) Contains(productID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.inCart[productID]
	return ok
}

// LastReconcileError returns the most recent background reconciliation
// failure, if any. Drift is corrected by the next successful Load.
func (a *Aggregate) LastReconcileError() error {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.lastErr
}

// Wait blocks until all in-flight reconciliation tasks finish.
func (a *Aggregate) Wait() {
	a.wg.Wait()
}

func (a *Aggregate) findLine(remoteID string) int {
	for i := range a.lines {
		if a.lines[i].RemoteID == remoteID {
			return i
		}
	}
	return -1
}

func (a *Aggregate) reconcile(op string, fn func(ctx context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(context.Background()); err != nil {
			a.log.Error().Str("op", op).Err(err).Msg("cart reconciliation failed")
			a.errMu.Lock()
			a.lastErr = err
			a.errMu.Unlock()
		}
	}()
}
