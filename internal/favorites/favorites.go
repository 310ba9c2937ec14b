// Package favorites maintains the membership set of favorited products.
// The feature is non-critical: failures are logged, never surfaced.
package favorites

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"storefront/internal/gateway"
	"storefront/internal/session"
)

const collection = "favourite"

type row struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
}

// Set is the in-memory favorites membership set for the current user.
type Set struct {
	store   gateway.Store
	session *session.Session
	log     zerolog.Logger

	mu  sync.RWMutex
	ids map[string]struct{}
}

func New(store gateway.Store, sess *session.Session, log zerolog.Logger) *Set {
	return &Set{
		store:   store,
		session: sess,
		log:     log,
		ids:     map[string]struct{}{},
	}
}

// Load replaces the set with the remote state for the current user.
func (s *Set) Load(ctx context.Context) error {
	userID, err := s.session.UserID()
	if err != nil {
		return err
	}

	data, err := s.store.Select(ctx, collection, gateway.Query{
		Filters: []gateway.Filter{gateway.Eq("user_id", userID)},
	})
	if err != nil {
		return err
	}

	var rows []row
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("decode favourite rows: %w", err)
	}

	ids := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		ids[r.ProductID] = struct{}{}
	}

	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()
	return nil
}

// Toggle inserts or deletes the (user, product) row depending on the current
// state, then reloads the whole set from the server. Reloading instead of
// mutating locally is the simplest-correct choice at this interaction rate.
func (s *Set) Toggle(ctx context.Context, productID string, currentlyFavorited bool) {
	userID, err := s.session.UserID()
	if err != nil {
		s.log.Warn().Err(err).Msg("favorites toggle without user")
		return
	}

	if currentlyFavorited {
		err = s.store.Delete(ctx, collection, []gateway.Filter{
			gateway.Eq("user_id", userID),
			gateway.Eq("product_id", productID),
		})
	} else {
		err = s.store.Insert(ctx, collection, row{UserID: userID, ProductID: productID})
	}
	if err != nil {
		s.log.Error().Err(err).Str("product_id", productID).Msg("favorites toggle failed")
		return
	}

	if err := s.Load(ctx); err != nil {
		s.log.Error().Err(err).Msg("favorites reload after toggle failed")
	}
}

// Contains reports whether the product is currently favorited.
func (s *Set) Contains(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[productID]
	return ok
}

// Len returns the current set size.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
