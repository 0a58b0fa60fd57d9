package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/google/uuid"
)

type Service struct {
	store  Store
	events EventPublisher
	now    Clock
	log    *slog.Logger
}

type Option func(*Service)

func WithEvents(p EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.now = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		events: nopPublisher{},
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) GetCart(ctx context.Context, cartID uuid.UUID) (domain.Cart, error) {
	return s.store.GetCart(ctx, cartID)
}

func (s *Service) GetOrCreateForUser(ctx context.Context, userID uuid.UUID) (domain.Cart, error) {
	return s.store.GetOrCreateCart(ctx, domain.UserOwner(userID))
}

func (s *Service) GetOrCreateForToken(ctx context.Context, token domain.CartToken) (domain.Cart, error) {
	return s.store.GetOrCreateCart(ctx, domain.TokenOwner(token.ID))
}

// AddProduct adds quantity units of a product to the cart. The product's
// inventory row stays locked until the line item is written, so concurrent
// adds of the same product are serialized across all carts.
func (s *Service) AddProduct(ctx context.Context, cart domain.Cart, productID uuid.UUID, quantity int) (domain.LineItem, error) {
	if quantity <= 0 {
		return domain.LineItem{}, domain.ErrInvalidQuantity
	}

	var item domain.LineItem
	err := s.store.WithinTx(ctx, func(q Queries) error {
		var err error
		item, err = s.addProduct(ctx, q, cart.ID, productID, quantity)
		return err
	})
	if err != nil {
		return domain.LineItem{}, err
	}

	s.publish(ctx, domain.Event{Type: domain.EventItemAdded, CartID: cart.ID, ProductID: productID, Quantity: item.Quantity})
	return item, nil
}

func (s *Service) addProduct(ctx context.Context, q Queries, cartID, productID uuid.UUID, quantity int) (domain.LineItem, error) {
	inv, err := q.LockInventory(ctx, productID)
	if errors.Is(err, ErrInventoryAbsent) {
		return domain.LineItem{}, domain.ErrProductUnavailable
	}
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("lock inventory: %w", err)
	}

	if !inv.Purchasable() {
		return domain.LineItem{}, domain.ErrProductUnavailable
	}

	// Lock order is inventory then item. A line deleted by a concurrent
	// decrease reads as not found and is inserted again.
	existing, err := q.LockItem(ctx, cartID, productID)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return domain.LineItem{}, fmt.Errorf("lock cart item: %w", err)
	}

	current := 0
	if found {
		current = existing.Quantity
	}
	newQuantity := current + quantity

	// held covers every cart, this one included, so other carts' lines count
	// against the same available stock.
	held, err := q.SumQuantityForProduct(ctx, productID)
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("sum product quantity: %w", err)
	}
	if held-current+newQuantity > inv.AvailableQuantity() {
		return domain.LineItem{}, domain.ErrNotEnoughStock
	}

	var item domain.LineItem
	if found {
		item, err = q.IncrementItem(ctx, existing.ID, quantity)
	} else {
		item, err = q.InsertItem(ctx, cartID, productID, quantity)
	}
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("write cart item: %w", err)
	}

	if err := q.TouchCart(ctx, cartID, s.now()); err != nil {
		return domain.LineItem{}, fmt.Errorf("touch cart: %w", err)
	}
	return item, nil
}

// DecreaseProduct lowers a line item's quantity by step. When the quantity
// would reach zero or below, the line item is deleted and committed, and
// ErrNotEnoughStock is returned together with the removed item (quantity 0)
// to tell the caller that no further decrease is possible.
func (s *Service) DecreaseProduct(ctx context.Context, cart domain.Cart, productID uuid.UUID, step int) (domain.LineItem, error) {
	if step <= 0 {
		return domain.LineItem{}, domain.ErrInvalidStep
	}

	var (
		item      domain.LineItem
		exhausted bool
	)
	err := s.store.WithinTx(ctx, func(q Queries) error {
		locked, err := q.LockItem(ctx, cart.ID, productID)
		if errors.Is(err, ErrNotFound) {
			return domain.ErrCartItemNotFound
		}
		if err != nil {
			return fmt.Errorf("lock cart item: %w", err)
		}

		if locked.Quantity <= step {
			if _, err := q.DeleteItem(ctx, cart.ID, productID); err != nil {
				return fmt.Errorf("delete cart item: %w", err)
			}
			exhausted = true
			item = locked
			item.Quantity = 0
		} else {
			item, err = q.IncrementItem(ctx, locked.ID, -step)
			if err != nil {
				return fmt.Errorf("decrement cart item: %w", err)
			}
		}

		if err := q.TouchCart(ctx, cart.ID, s.now()); err != nil {
			return fmt.Errorf("touch cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.LineItem{}, err
	}

	if exhausted {
		s.publish(ctx, domain.Event{Type: domain.EventItemRemoved, CartID: cart.ID, ProductID: productID})
		return item, domain.ErrNotEnoughStock
	}

	s.publish(ctx, domain.Event{Type: domain.EventItemDecreased, CartID: cart.ID, ProductID: productID, Quantity: item.Quantity})
	return item, nil
}

// RemoveProduct deletes the product's line item if there is one and reports
// whether a row was deleted. Calling it again is a no-op.
func (s *Service) RemoveProduct(ctx context.Context, cart domain.Cart, productID uuid.UUID) (bool, error) {
	var deleted bool
	err := s.store.WithinTx(ctx, func(q Queries) error {
		var err error
		deleted, err = q.DeleteItem(ctx, cart.ID, productID)
		if err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		if !deleted {
			return nil
		}
		return q.TouchCart(ctx, cart.ID, s.now())
	})
	if err != nil {
		return false, err
	}

	if deleted {
		s.publish(ctx, domain.Event{Type: domain.EventItemRemoved, CartID: cart.ID, ProductID: productID})
	}
	return deleted, nil
}

// SetItemQuantity overwrites a line item's quantity. A non-positive quantity
// removes the line. A missing line is created through AddProduct's stock
// checks, but an existing line is overwritten without re-checking stock;
// this path is meant for internal and administrative callers.
//
// The returned item has Quantity 0 when the line was removed or never existed.
func (s *Service) SetItemQuantity(ctx context.Context, cart domain.Cart, productID uuid.UUID, quantity int) (domain.LineItem, error) {
	var (
		item    domain.LineItem
		changed bool
	)
	err := s.store.WithinTx(ctx, func(q Queries) error {
		existing, err := q.LockItem(ctx, cart.ID, productID)
		if errors.Is(err, ErrNotFound) {
			if quantity <= 0 {
				return nil
			}
			item, err = s.addProduct(ctx, q, cart.ID, productID, quantity)
			changed = err == nil
			return err
		}
		if err != nil {
			return fmt.Errorf("lock cart item: %w", err)
		}

		if quantity <= 0 {
			if _, err := q.DeleteItem(ctx, cart.ID, productID); err != nil {
				return fmt.Errorf("delete cart item: %w", err)
			}
			item = existing
			item.Quantity = 0
		} else {
			item, err = q.SetItemQuantity(ctx, existing.ID, quantity)
			if err != nil {
				return fmt.Errorf("set cart item quantity: %w", err)
			}
		}
		changed = true
		return q.TouchCart(ctx, cart.ID, s.now())
	})
	if err != nil {
		return domain.LineItem{}, err
	}

	if changed {
		s.publish(ctx, domain.Event{Type: domain.EventItemSet, CartID: cart.ID, ProductID: productID, Quantity: item.Quantity})
	}
	return item, nil
}

func (s *Service) Clear(ctx context.Context, cart domain.Cart) error {
	err := s.store.WithinTx(ctx, func(q Queries) error {
		if _, err := q.DeleteItems(ctx, cart.ID); err != nil {
			return fmt.Errorf("delete cart items: %w", err)
		}
		return q.TouchCart(ctx, cart.ID, s.now())
	})
	if err != nil {
		return err
	}

	s.publish(ctx, domain.Event{Type: domain.EventCartCleared, CartID: cart.ID})
	return nil
}

type SkippedItem struct {
	ProductID uuid.UUID
	Quantity  int
	Err       error
}

type MergeResult struct {
	Merged  []domain.LineItem
	Skipped []SkippedItem
}

// MergeFrom moves every line item of source into target. Each line moves in
// its own transaction: the source line is deleted and its quantity added to
// target under the product's inventory lock, so the units are never counted
// twice against stock. A line rejected for a domain reason (stock,
// availability) is recorded in Skipped and the merge goes on. Storage errors
// abort the merge; lines not yet moved stay in source. Source is cleared once
// every line has been attempted.
func (s *Service) MergeFrom(ctx context.Context, target, source domain.Cart) (MergeResult, error) {
	var res MergeResult
	if target.ID == source.ID {
		return res, nil
	}

	items, err := s.store.ListItems(ctx, source.ID)
	if err != nil {
		return res, fmt.Errorf("list source items: %w", err)
	}

	for _, it := range items {
		merged, err := s.moveItem(ctx, target, source, it)
		if err != nil {
			if _, ok := domain.AsError(err); ok {
				res.Skipped = append(res.Skipped, SkippedItem{ProductID: it.ProductID, Quantity: it.Quantity, Err: err})
				continue
			}
			return res, err
		}
		res.Merged = append(res.Merged, merged)
		s.publish(ctx, domain.Event{Type: domain.EventItemAdded, CartID: target.ID, ProductID: it.ProductID, Quantity: merged.Quantity})
	}

	if err := s.Clear(ctx, source); err != nil {
		return res, fmt.Errorf("clear source cart: %w", err)
	}

	s.publish(ctx, domain.Event{Type: domain.EventCartMerged, CartID: target.ID, SourceCart: source.ID})
	return res, nil
}

func (s *Service) moveItem(ctx context.Context, target, source domain.Cart, it domain.LineItem) (domain.LineItem, error) {
	var merged domain.LineItem
	err := s.store.WithinTx(ctx, func(q Queries) error {
		// inventory first, matching the lock order of AddProduct
		if _, err := q.LockInventory(ctx, it.ProductID); err != nil && !errors.Is(err, ErrInventoryAbsent) {
			return fmt.Errorf("lock inventory: %w", err)
		}
		if _, err := q.DeleteItem(ctx, source.ID, it.ProductID); err != nil {
			return fmt.Errorf("delete source item: %w", err)
		}
		var err error
		merged, err = s.addProduct(ctx, q, target.ID, it.ProductID, it.Quantity)
		return err
	})
	return merged, err
}

func (s *Service) HasProduct(ctx context.Context, cart domain.Cart, productID uuid.UUID) (bool, error) {
	_, err := s.store.FindItem(ctx, cart.ID, productID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UsersWithProductCount is the number of distinct carts holding the product.
func (s *Service) UsersWithProductCount(ctx context.Context, productID uuid.UUID) (int, error) {
	return s.store.CountCartsWithProduct(ctx, productID)
}

type ToggleAction string

const (
	ActionAdded   ToggleAction = "added"
	ActionRemoved ToggleAction = "removed"
)

type ToggleResult struct {
	Action    ToggleAction `json:"action"`
	InCart    bool         `json:"in_cart"`
	CartCount int          `json:"cart_count"`
}

// Toggle removes the product when it is in the cart and adds one unit
// otherwise.
func (s *Service) Toggle(ctx context.Context, cart domain.Cart, productID uuid.UUID) (ToggleResult, error) {
	has, err := s.HasProduct(ctx, cart, productID)
	if err != nil {
		return ToggleResult{}, err
	}

	res := ToggleResult{Action: ActionAdded, InCart: true}
	if has {
		if _, err := s.RemoveProduct(ctx, cart, productID); err != nil {
			return ToggleResult{}, err
		}
		res = ToggleResult{Action: ActionRemoved, InCart: false}
	} else if _, err := s.AddProduct(ctx, cart, productID, 1); err != nil {
		return ToggleResult{}, err
	}

	res.CartCount, err = s.UsersWithProductCount(ctx, productID)
	if err != nil {
		return ToggleResult{}, err
	}
	return res, nil
}

func (s *Service) View(ctx context.Context, cart domain.Cart) (domain.CartView, error) {
	return s.store.LoadCartView(ctx, cart.ID)
}

func (s *Service) Summary(ctx context.Context, cart domain.Cart) (domain.Summary, error) {
	v, err := s.View(ctx, cart)
	if err != nil {
		return domain.Summary{}, err
	}
	return v.Summary(), nil
}

func (s *Service) publish(ctx context.Context, ev domain.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("cart event publish failed",
			slog.Any("err", err),
			slog.String("type", string(ev.Type)),
			slog.String("cart_id", ev.CartID.String()))
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) error { return nil }
