package memory

import (
	"context"
	"time"

	"github.com/dwikikusuma/shoping-cart/internal/cart/app"
	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/google/uuid"
)

// Statements issued on the Store itself run in their own transaction, like
// autocommit statements on a pool.

func run[T any](s *Store, fn func(t *tx) (T, error)) (T, error) {
	var out T
	err := s.auto(func(t *tx) error {
		var err error
		out, err = fn(t)
		return err
	})
	return out, err
}

func (s *Store) LockInventory(ctx context.Context, productID uuid.UUID) (domain.Inventory, error) {
	return run(s, func(t *tx) (domain.Inventory, error) { return t.LockInventory(ctx, productID) })
}

func (s *Store) FindItem(ctx context.Context, cartID, productID uuid.UUID) (domain.LineItem, error) {
	return run(s, func(t *tx) (domain.LineItem, error) { return t.FindItem(ctx, cartID, productID) })
}

func (s *Store) LockItem(ctx context.Context, cartID, productID uuid.UUID) (domain.LineItem, error) {
	return run(s, func(t *tx) (domain.LineItem, error) { return t.LockItem(ctx, cartID, productID) })
}

func (s *Store) InsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (domain.LineItem, error) {
	return run(s, func(t *tx) (domain.LineItem, error) { return t.InsertItem(ctx, cartID, productID, quantity) })
}

func (s *Store) IncrementItem(ctx context.Context, itemID uuid.UUID, delta int) (domain.LineItem, error) {
	return run(s, func(t *tx) (domain.LineItem, error) { return t.IncrementItem(ctx, itemID, delta) })
}

func (s *Store) SetItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) (domain.LineItem, error) {
	return run(s, func(t *tx) (domain.LineItem, error) { return t.SetItemQuantity(ctx, itemID, quantity) })
}

func (s *Store) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error) {
	return run(s, func(t *tx) (bool, error) { return t.DeleteItem(ctx, cartID, productID) })
}

func (s *Store) DeleteItems(ctx context.Context, cartID uuid.UUID) (int64, error) {
	return run(s, func(t *tx) (int64, error) { return t.DeleteItems(ctx, cartID) })
}

func (s *Store) ListItems(ctx context.Context, cartID uuid.UUID) ([]domain.LineItem, error) {
	return run(s, func(t *tx) ([]domain.LineItem, error) { return t.ListItems(ctx, cartID) })
}

func (s *Store) SumQuantityForProduct(ctx context.Context, productID uuid.UUID) (int, error) {
	return run(s, func(t *tx) (int, error) { return t.SumQuantityForProduct(ctx, productID) })
}

func (s *Store) CountCartsWithProduct(ctx context.Context, productID uuid.UUID) (int, error) {
	return run(s, func(t *tx) (int, error) { return t.CountCartsWithProduct(ctx, productID) })
}

func (s *Store) GetCart(ctx context.Context, cartID uuid.UUID) (domain.Cart, error) {
	return run(s, func(t *tx) (domain.Cart, error) { return t.GetCart(ctx, cartID) })
}

func (s *Store) GetOrCreateCart(ctx context.Context, owner domain.Owner) (domain.Cart, error) {
	return run(s, func(t *tx) (domain.Cart, error) { return t.GetOrCreateCart(ctx, owner) })
}

func (s *Store) FindCartByToken(ctx context.Context, tokenID uuid.UUID) (domain.Cart, error) {
	return run(s, func(t *tx) (domain.Cart, error) { return t.FindCartByToken(ctx, tokenID) })
}

func (s *Store) ReassignCartToken(ctx context.Context, cartID, tokenID uuid.UUID) (domain.Cart, error) {
	return run(s, func(t *tx) (domain.Cart, error) { return t.ReassignCartToken(ctx, cartID, tokenID) })
}

func (s *Store) TouchCart(ctx context.Context, cartID uuid.UUID, at time.Time) error {
	return s.auto(func(t *tx) error { return t.TouchCart(ctx, cartID, at) })
}

func (s *Store) LoadCartView(ctx context.Context, cartID uuid.UUID) (domain.CartView, error) {
	return run(s, func(t *tx) (domain.CartView, error) { return t.LoadCartView(ctx, cartID) })
}

func (s *Store) FindToken(ctx context.Context, value string) (domain.CartToken, error) {
	return run(s, func(t *tx) (domain.CartToken, error) { return t.FindToken(ctx, value) })
}

func (s *Store) LockToken(ctx context.Context, value string) (domain.CartToken, error) {
	return run(s, func(t *tx) (domain.CartToken, error) { return t.LockToken(ctx, value) })
}

func (s *Store) CreateToken(ctx context.Context, value string, expiresAt time.Time) (domain.CartToken, error) {
	return run(s, func(t *tx) (domain.CartToken, error) { return t.CreateToken(ctx, value, expiresAt) })
}

func (s *Store) DeleteToken(ctx context.Context, tokenID uuid.UUID) error {
	return s.auto(func(t *tx) error { return t.DeleteToken(ctx, tokenID) })
}

// PurgeExpiredTokens mirrors the Postgres janitor query.
func (s *Store) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	var expired []uuid.UUID
	for _, tok := range s.Tokens() {
		if tok.IsExpired(now) {
			expired = append(expired, tok.ID)
		}
	}
	for _, id := range expired {
		if err := s.DeleteToken(ctx, id); err != nil {
			return 0, err
		}
	}
	return int64(len(expired)), nil
}

// DeleteCartsExcept mirrors the Postgres janitor query.
func (s *Store) DeleteCartsExcept(ctx context.Context, keep app.Auth) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.carts {
		if keep.IsAuthenticated() && c.Owner.UserID == keep.UserID {
			continue
		}
		delete(s.carts, id)
		for itemID, it := range s.items {
			if it.CartID == id {
				delete(s.items, itemID)
			}
		}
		n++
	}
	for id := range s.tokens {
		owned := false
		for _, c := range s.carts {
			if c.Owner.TokenID == id {
				owned = true
				break
			}
		}
		if !owned {
			delete(s.tokens, id)
		}
	}
	return n, nil
}

var _ app.Store = (*Store)(nil)
