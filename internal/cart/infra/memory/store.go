// Package memory is an in-process cart store for tests. It emulates
// Postgres row locks with one mutex per row, held until the surrounding
// transaction ends, and undoes writes when the transaction fails. It does
// not coordinate across processes and must not back a deployed service.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dwikikusuma/shoping-cart/internal/cart/app"
	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/google/uuid"
)

var ErrDuplicate = errors.New("duplicate key")

type Store struct {
	mu        sync.Mutex
	rows      map[string]*sync.Mutex
	inventory map[uuid.UUID]domain.Inventory
	carts     map[uuid.UUID]domain.Cart
	tokens    map[uuid.UUID]domain.CartToken
	items     map[uuid.UUID]domain.LineItem

	// FailNext, when set, is returned by the next write and then cleared.
	FailNext error
}

func NewStore() *Store {
	return &Store{
		rows:      make(map[string]*sync.Mutex),
		inventory: make(map[uuid.UUID]domain.Inventory),
		carts:     make(map[uuid.UUID]domain.Cart),
		tokens:    make(map[uuid.UUID]domain.CartToken),
		items:     make(map[uuid.UUID]domain.LineItem),
	}
}

// PutInventory inserts or replaces a product's inventory snapshot.
func (s *Store) PutInventory(inv domain.Inventory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[inv.ProductID] = inv
}

// Items returns the cart's line items keyed by product.
func (s *Store) Items(cartID uuid.UUID) map[uuid.UUID]domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]domain.LineItem)
	for _, it := range s.items {
		if it.CartID == cartID {
			out[it.ProductID] = it
		}
	}
	return out
}

func (s *Store) Carts() []domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Cart, 0, len(s.carts))
	for _, c := range s.carts {
		out = append(out, c)
	}
	return out
}

func (s *Store) Tokens() []domain.CartToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CartToken, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t)
	}
	return out
}

func (s *Store) WithinTx(ctx context.Context, fn func(q app.Queries) error) error {
	t := &tx{s: s, held: make(map[string]*sync.Mutex)}
	err := fn(t)
	if err != nil {
		t.rollback()
	}
	t.release()
	return err
}

// auto runs a single statement outside an explicit transaction.
func (s *Store) auto(fn func(t *tx) error) error {
	t := &tx{s: s, held: make(map[string]*sync.Mutex)}
	err := fn(t)
	if err != nil {
		t.rollback()
	}
	t.release()
	return err
}

type tx struct {
	s    *Store
	held map[string]*sync.Mutex
	undo []func()
}

func (t *tx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	t.s.mu.Lock()
	m, ok := t.s.rows[key]
	if !ok {
		m = &sync.Mutex{}
		t.s.rows[key] = m
	}
	t.s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	m.Lock()
	t.held[key] = m
	return nil
}

func (t *tx) release() {
	for k, m := range t.held {
		m.Unlock()
		delete(t.held, k)
	}
}

func (t *tx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// write runs fn under the data mutex after consuming FailNext.
func (t *tx) write(fn func() error) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if err := t.s.FailNext; err != nil {
		t.s.FailNext = nil
		return err
	}
	return fn()
}

func itemKey(cartID, productID uuid.UUID) string {
	return fmt.Sprintf("item:%s:%s", cartID, productID)
}

// inventory

func (t *tx) LockInventory(ctx context.Context, productID uuid.UUID) (domain.Inventory, error) {
	if err := t.lock(ctx, "inventory:"+productID.String()); err != nil {
		return domain.Inventory{}, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	inv, ok := t.s.inventory[productID]
	if !ok {
		return domain.Inventory{}, app.ErrInventoryAbsent
	}
	return inv, nil
}

// line items

func (t *tx) findItem(cartID, productID uuid.UUID) (domain.LineItem, bool) {
	for _, it := range t.s.items {
		if it.CartID == cartID && it.ProductID == productID {
			return it, true
		}
	}
	return domain.LineItem{}, false
}

func (t *tx) FindItem(ctx context.Context, cartID, productID uuid.UUID) (domain.LineItem, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	it, ok := t.findItem(cartID, productID)
	if !ok {
		return domain.LineItem{}, app.ErrNotFound
	}
	return it, nil
}

// LockItem locks an existing line. Like SELECT ... FOR UPDATE, a missing row
// leaves nothing locked.
func (t *tx) LockItem(ctx context.Context, cartID, productID uuid.UUID) (domain.LineItem, error) {
	key := itemKey(cartID, productID)
	_, alreadyHeld := t.held[key]
	if err := t.lock(ctx, key); err != nil {
		return domain.LineItem{}, err
	}
	it, err := t.FindItem(ctx, cartID, productID)
	if errors.Is(err, app.ErrNotFound) && !alreadyHeld {
		t.held[key].Unlock()
		delete(t.held, key)
	}
	return it, err
}

func (t *tx) InsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (domain.LineItem, error) {
	var it domain.LineItem
	err := t.write(func() error {
		if _, ok := t.findItem(cartID, productID); ok {
			return fmt.Errorf("cart item (%s, %s): %w", cartID, productID, ErrDuplicate)
		}
		if quantity <= 0 {
			return fmt.Errorf("cart item quantity %d violates check", quantity)
		}
		now := time.Now()
		it = domain.LineItem{
			ID:        uuid.New(),
			CartID:    cartID,
			ProductID: productID,
			Quantity:  quantity,
			CreatedAt: now,
			UpdatedAt: now,
		}
		t.s.items[it.ID] = it
		t.undo = append(t.undo, func() { delete(t.s.items, it.ID) })
		return nil
	})
	return it, err
}

func (t *tx) updateItem(itemID uuid.UUID, fn func(q int) int) (domain.LineItem, error) {
	var it domain.LineItem
	err := t.write(func() error {
		prev, ok := t.s.items[itemID]
		if !ok {
			return app.ErrNotFound
		}
		it = prev
		it.Quantity = fn(prev.Quantity)
		if it.Quantity <= 0 {
			return fmt.Errorf("cart item quantity %d violates check", it.Quantity)
		}
		it.UpdatedAt = time.Now()
		t.s.items[itemID] = it
		t.undo = append(t.undo, func() { t.s.items[itemID] = prev })
		return nil
	})
	return it, err
}

func (t *tx) IncrementItem(ctx context.Context, itemID uuid.UUID, delta int) (domain.LineItem, error) {
	return t.updateItem(itemID, func(q int) int { return q + delta })
}

func (t *tx) SetItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) (domain.LineItem, error) {
	return t.updateItem(itemID, func(int) int { return quantity })
}

func (t *tx) deleteItemsWhere(match func(domain.LineItem) bool) int64 {
	var n int64
	for id, it := range t.s.items {
		if !match(it) {
			continue
		}
		prev := it
		delete(t.s.items, id)
		t.undo = append(t.undo, func() { t.s.items[prev.ID] = prev })
		n++
	}
	return n
}

func (t *tx) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error) {
	var n int64
	err := t.write(func() error {
		n = t.deleteItemsWhere(func(it domain.LineItem) bool {
			return it.CartID == cartID && it.ProductID == productID
		})
		return nil
	})
	return n > 0, err
}

func (t *tx) DeleteItems(ctx context.Context, cartID uuid.UUID) (int64, error) {
	var n int64
	err := t.write(func() error {
		n = t.deleteItemsWhere(func(it domain.LineItem) bool { return it.CartID == cartID })
		return nil
	})
	return n, err
}

func (t *tx) ListItems(ctx context.Context, cartID uuid.UUID) ([]domain.LineItem, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []domain.LineItem
	for _, it := range t.s.items {
		if it.CartID == cartID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) SumQuantityForProduct(ctx context.Context, productID uuid.UUID) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	total := 0
	for _, it := range t.s.items {
		if it.ProductID == productID {
			total += it.Quantity
		}
	}
	return total, nil
}

func (t *tx) CountCartsWithProduct(ctx context.Context, productID uuid.UUID) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	carts := make(map[uuid.UUID]struct{})
	for _, it := range t.s.items {
		if it.ProductID == productID {
			carts[it.CartID] = struct{}{}
		}
	}
	return len(carts), nil
}

// carts

func (t *tx) GetCart(ctx context.Context, cartID uuid.UUID) (domain.Cart, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	c, ok := t.s.carts[cartID]
	if !ok {
		return domain.Cart{}, app.ErrNotFound
	}
	return c, nil
}

func (t *tx) cartWhere(match func(domain.Cart) bool) (domain.Cart, bool) {
	for _, c := range t.s.carts {
		if match(c) {
			return c, true
		}
	}
	return domain.Cart{}, false
}

func (t *tx) GetOrCreateCart(ctx context.Context, owner domain.Owner) (domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return domain.Cart{}, err
	}
	sameOwner := func(c domain.Cart) bool { return c.Owner == owner }

	t.s.mu.Lock()
	existing, ok := t.cartWhere(sameOwner)
	t.s.mu.Unlock()
	if ok {
		return existing, nil
	}

	var c domain.Cart
	err := t.write(func() error {
		if existing, ok := t.cartWhere(sameOwner); ok {
			c = existing
			return nil
		}
		if owner.Kind() == domain.OwnerToken {
			if _, ok := t.s.tokens[owner.TokenID]; !ok {
				return fmt.Errorf("cart token %s does not exist", owner.TokenID)
			}
		}
		now := time.Now()
		c = domain.Cart{ID: uuid.New(), Owner: owner, CreatedAt: now, UpdatedAt: now}
		t.s.carts[c.ID] = c
		id := c.ID
		t.undo = append(t.undo, func() { delete(t.s.carts, id) })
		return nil
	})
	return c, err
}

func (t *tx) FindCartByToken(ctx context.Context, tokenID uuid.UUID) (domain.Cart, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	c, ok := t.cartWhere(func(c domain.Cart) bool { return c.Owner.TokenID == tokenID })
	if !ok {
		return domain.Cart{}, app.ErrNotFound
	}
	return c, nil
}

func (t *tx) ReassignCartToken(ctx context.Context, cartID, tokenID uuid.UUID) (domain.Cart, error) {
	owner := domain.TokenOwner(tokenID)
	if err := owner.Validate(); err != nil {
		return domain.Cart{}, err
	}
	var c domain.Cart
	err := t.write(func() error {
		prev, ok := t.s.carts[cartID]
		if !ok {
			return app.ErrNotFound
		}
		if _, taken := t.cartWhere(func(c domain.Cart) bool { return c.Owner == owner }); taken {
			return fmt.Errorf("cart for token %s: %w", tokenID, ErrDuplicate)
		}
		c = prev
		c.Owner = owner
		c.UpdatedAt = time.Now()
		t.s.carts[cartID] = c
		t.undo = append(t.undo, func() { t.s.carts[cartID] = prev })
		return nil
	})
	return c, err
}

func (t *tx) TouchCart(ctx context.Context, cartID uuid.UUID, at time.Time) error {
	return t.write(func() error {
		prev, ok := t.s.carts[cartID]
		if !ok {
			return nil
		}
		c := prev
		c.UpdatedAt = at
		t.s.carts[cartID] = c
		t.undo = append(t.undo, func() { t.s.carts[cartID] = prev })
		return nil
	})
}

func (t *tx) LoadCartView(ctx context.Context, cartID uuid.UUID) (domain.CartView, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	c, ok := t.s.carts[cartID]
	if !ok {
		return domain.CartView{}, app.ErrNotFound
	}
	view := domain.CartView{Cart: c}
	for _, it := range t.s.items {
		if it.CartID != cartID {
			continue
		}
		inv, ok := t.s.inventory[it.ProductID]
		if !ok {
			inv = domain.Inventory{ProductID: it.ProductID, Currency: domain.Currency{Decimals: 2}}
		}
		view.Items = append(view.Items, domain.ItemView{Item: it, Inventory: inv})
	}
	sort.Slice(view.Items, func(i, j int) bool {
		a, b := view.Items[i].Item, view.Items[j].Item
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return view, nil
}

// tokens

func (t *tx) tokenByValue(value string) (domain.CartToken, bool) {
	for _, tok := range t.s.tokens {
		if tok.Token == value {
			return tok, true
		}
	}
	return domain.CartToken{}, false
}

func (t *tx) FindToken(ctx context.Context, value string) (domain.CartToken, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tok, ok := t.tokenByValue(value)
	if !ok {
		return domain.CartToken{}, app.ErrNotFound
	}
	return tok, nil
}

func (t *tx) LockToken(ctx context.Context, value string) (domain.CartToken, error) {
	if err := t.lock(ctx, "token:"+value); err != nil {
		return domain.CartToken{}, err
	}
	return t.FindToken(ctx, value)
}

func (t *tx) CreateToken(ctx context.Context, value string, expiresAt time.Time) (domain.CartToken, error) {
	var tok domain.CartToken
	err := t.write(func() error {
		if _, ok := t.tokenByValue(value); ok {
			return fmt.Errorf("cart token: %w", ErrDuplicate)
		}
		now := time.Now()
		tok = domain.CartToken{ID: uuid.New(), Token: value, ExpiresAt: expiresAt, CreatedAt: now, UpdatedAt: now}
		t.s.tokens[tok.ID] = tok
		id := tok.ID
		t.undo = append(t.undo, func() { delete(t.s.tokens, id) })
		return nil
	})
	return tok, err
}

// DeleteToken cascades to the token's cart and line items.
func (t *tx) DeleteToken(ctx context.Context, tokenID uuid.UUID) error {
	return t.write(func() error {
		prev, ok := t.s.tokens[tokenID]
		if !ok {
			return nil
		}
		delete(t.s.tokens, tokenID)
		t.undo = append(t.undo, func() { t.s.tokens[tokenID] = prev })

		for id, c := range t.s.carts {
			if c.Owner.TokenID != tokenID {
				continue
			}
			cart := c
			delete(t.s.carts, id)
			t.undo = append(t.undo, func() { t.s.carts[cart.ID] = cart })
			t.deleteItemsWhere(func(it domain.LineItem) bool { return it.CartID == cart.ID })
		}
		return nil
	})
}

var _ app.Queries = (*tx)(nil)
