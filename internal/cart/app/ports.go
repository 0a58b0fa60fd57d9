package app

import (
	"context"
	"errors"
	"time"

	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInventoryAbsent = errors.New("inventory not found")
)

// Queries is the storage surface the cart needs. The Lock* methods take a
// row-level exclusive lock and are only meaningful inside Store.WithinTx.
type Queries interface {
	// inventory
	LockInventory(ctx context.Context, productID uuid.UUID) (domain.Inventory, error)

	// line items
	FindItem(ctx context.Context, cartID, productID uuid.UUID) (domain.LineItem, error)
	LockItem(ctx context.Context, cartID, productID uuid.UUID) (domain.LineItem, error)
	InsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (domain.LineItem, error)
	IncrementItem(ctx context.Context, itemID uuid.UUID, delta int) (domain.LineItem, error)
	SetItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) (domain.LineItem, error)
	DeleteItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error)
	DeleteItems(ctx context.Context, cartID uuid.UUID) (int64, error)
	ListItems(ctx context.Context, cartID uuid.UUID) ([]domain.LineItem, error)
	SumQuantityForProduct(ctx context.Context, productID uuid.UUID) (int, error)
	CountCartsWithProduct(ctx context.Context, productID uuid.UUID) (int, error)

	// carts
	GetCart(ctx context.Context, cartID uuid.UUID) (domain.Cart, error)
	GetOrCreateCart(ctx context.Context, owner domain.Owner) (domain.Cart, error)
	FindCartByToken(ctx context.Context, tokenID uuid.UUID) (domain.Cart, error)
	ReassignCartToken(ctx context.Context, cartID, tokenID uuid.UUID) (domain.Cart, error)
	TouchCart(ctx context.Context, cartID uuid.UUID, at time.Time) error
	LoadCartView(ctx context.Context, cartID uuid.UUID) (domain.CartView, error)

	// tokens
	FindToken(ctx context.Context, value string) (domain.CartToken, error)
	LockToken(ctx context.Context, value string) (domain.CartToken, error)
	CreateToken(ctx context.Context, value string, expiresAt time.Time) (domain.CartToken, error)
	DeleteToken(ctx context.Context, tokenID uuid.UUID) error
}

// Store runs fn inside one transaction. Any error returned by fn rolls the
// transaction back and is returned unchanged.
type Store interface {
	Queries
	WithinTx(ctx context.Context, fn func(q Queries) error) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

type TokenGenerator interface {
	NewToken() (string, error)
}

type Clock func() time.Time
