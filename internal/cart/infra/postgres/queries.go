package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dwikikusuma/shoping-cart/internal/cart/app"
	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

const (
	itemColumns   = `id, cart_id, product_id, quantity, created_at, updated_at`
	cartColumns   = `id, user_id, token_id, created_at, updated_at`
	tokenColumns  = `id, token, expires_at, created_at, updated_at`
	inventoryJoin = `
		i.product_id, i.is_active, i.stock_quantity, i.reserved_quantity,
		i.base_price::text, i.sale_price::text,
		c.code, c.symbol, c.decimals`
)

func notFound(err error, as error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return as
	}
	return err
}

// inventory

func (q *Queries) LockInventory(ctx context.Context, productID uuid.UUID) (domain.Inventory, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+inventoryJoin+`
		FROM product_inventories i
		JOIN currencies c ON c.code = i.currency_code
		WHERE i.product_id = $1
		FOR UPDATE OF i`, productID)

	inv, err := scanInventory(row)
	if err != nil {
		return domain.Inventory{}, notFound(err, app.ErrInventoryAbsent)
	}
	return inv, nil
}

func scanInventory(row pgx.Row, extra ...any) (domain.Inventory, error) {
	var (
		inv  domain.Inventory
		base string
		sale *string
	)
	dest := append(extra,
		&inv.ProductID, &inv.IsActive, &inv.StockQuantity, &inv.ReservedQuantity,
		&base, &sale,
		&inv.Currency.Code, &inv.Currency.Symbol, &inv.Currency.Decimals,
	)
	if err := row.Scan(dest...); err != nil {
		return domain.Inventory{}, err
	}
	if err := fillPrices(&inv, base, sale); err != nil {
		return domain.Inventory{}, err
	}
	return inv, nil
}

func fillPrices(inv *domain.Inventory, base string, sale *string) error {
	var err error
	inv.BasePrice, err = decimal.NewFromString(base)
	if err != nil {
		return fmt.Errorf("parse base price %q: %w", base, err)
	}
	if sale != nil {
		d, err := decimal.NewFromString(*sale)
		if err != nil {
			return fmt.Errorf("parse sale price %q: %w", *sale, err)
		}
		inv.SalePrice = decimal.NewNullDecimal(d)
	}
	return nil
}

// line items

func scanItem(row pgx.Row) (domain.LineItem, error) {
	var it domain.LineItem
	err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (q *Queries) FindItem(ctx context.Context, cartID, productID uuid.UUID) (domain.LineItem, error) {
	it, err := scanItem(q.db.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM cart_items
		WHERE cart_id = $1 AND product_id = $2`, cartID, productID))
	return it, notFound(err, app.ErrNotFound)
}

func (q *Queries) LockItem(ctx context.Context, cartID, productID uuid.UUID) (domain.LineItem, error) {
	it, err := scanItem(q.db.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM cart_items
		WHERE cart_id = $1 AND product_id = $2
		FOR UPDATE`, cartID, productID))
	return it, notFound(err, app.ErrNotFound)
}

func (q *Queries) InsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (domain.LineItem, error) {
	return scanItem(q.db.QueryRow(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING `+itemColumns, cartID, productID, quantity))
}

func (q *Queries) IncrementItem(ctx context.Context, itemID uuid.UUID, delta int) (domain.LineItem, error) {
	it, err := scanItem(q.db.QueryRow(ctx, `
		UPDATE cart_items
		SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+itemColumns, itemID, delta))
	return it, notFound(err, app.ErrNotFound)
}

func (q *Queries) SetItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) (domain.LineItem, error) {
	it, err := scanItem(q.db.QueryRow(ctx, `
		UPDATE cart_items
		SET quantity = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+itemColumns, itemID, quantity))
	return it, notFound(err, app.ErrNotFound)
}

func (q *Queries) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) DeleteItems(ctx context.Context, cartID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListItems(ctx context.Context, cartID uuid.UUID) ([]domain.LineItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at DESC`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.LineItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (q *Queries) SumQuantityForProduct(ctx context.Context, productID uuid.UUID) (int, error) {
	var total int64
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM cart_items
		WHERE product_id = $1`, productID).Scan(&total)
	return int(total), err
}

func (q *Queries) CountCartsWithProduct(ctx context.Context, productID uuid.UUID) (int, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT cart_id)
		FROM cart_items
		WHERE product_id = $1`, productID).Scan(&n)
	return int(n), err
}

// carts

func scanCart(row pgx.Row) (domain.Cart, error) {
	var (
		c     domain.Cart
		user  uuid.NullUUID
		token uuid.NullUUID
	)
	if err := row.Scan(&c.ID, &user, &token, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Cart{}, err
	}
	if user.Valid {
		c.Owner.UserID = user.UUID
	}
	if token.Valid {
		c.Owner.TokenID = token.UUID
	}
	return c, nil
}

func nullable(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func (q *Queries) GetCart(ctx context.Context, cartID uuid.UUID) (domain.Cart, error) {
	c, err := scanCart(q.db.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, cartID))
	return c, notFound(err, app.ErrNotFound)
}

// GetOrCreateCart relies on the partial unique indexes on user_id and
// token_id: a concurrent insert for the same owner turns into a no-op and
// both callers read the same row.
func (q *Queries) GetOrCreateCart(ctx context.Context, owner domain.Owner) (domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return domain.Cart{}, err
	}

	var insert, sel string
	var key uuid.UUID
	switch owner.Kind() {
	case domain.OwnerUser:
		key = owner.UserID
		insert = `INSERT INTO carts (user_id) VALUES ($1)
			ON CONFLICT (user_id) WHERE user_id IS NOT NULL DO NOTHING`
		sel = `SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1`
	default:
		key = owner.TokenID
		insert = `INSERT INTO carts (token_id) VALUES ($1)
			ON CONFLICT (token_id) WHERE token_id IS NOT NULL DO NOTHING`
		sel = `SELECT ` + cartColumns + ` FROM carts WHERE token_id = $1`
	}

	if _, err := q.db.Exec(ctx, insert, key); err != nil {
		return domain.Cart{}, fmt.Errorf("insert cart for %s: %w", owner, err)
	}
	return scanCart(q.db.QueryRow(ctx, sel, key))
}

func (q *Queries) FindCartByToken(ctx context.Context, tokenID uuid.UUID) (domain.Cart, error) {
	c, err := scanCart(q.db.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE token_id = $1`, tokenID))
	return c, notFound(err, app.ErrNotFound)
}

func (q *Queries) ReassignCartToken(ctx context.Context, cartID, tokenID uuid.UUID) (domain.Cart, error) {
	if err := domain.TokenOwner(tokenID).Validate(); err != nil {
		return domain.Cart{}, err
	}
	c, err := scanCart(q.db.QueryRow(ctx, `
		UPDATE carts
		SET token_id = $2, user_id = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING `+cartColumns, cartID, nullable(tokenID)))
	return c, notFound(err, app.ErrNotFound)
}

func (q *Queries) TouchCart(ctx context.Context, cartID uuid.UUID, at time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, at)
	return err
}

func (q *Queries) LoadCartView(ctx context.Context, cartID uuid.UUID) (domain.CartView, error) {
	cart, err := q.GetCart(ctx, cartID)
	if err != nil {
		return domain.CartView{}, err
	}

	// A line whose inventory row is gone still counts; it reads as inactive
	// with no stock.
	rows, err := q.db.Query(ctx, `
		SELECT ci.id, ci.cart_id, ci.quantity, ci.created_at, ci.updated_at,
			ci.product_id, COALESCE(i.is_active, false),
			COALESCE(i.stock_quantity, 0), COALESCE(i.reserved_quantity, 0),
			COALESCE(i.base_price, 0)::text, i.sale_price::text,
			COALESCE(c.code, ''), COALESCE(c.symbol, ''), COALESCE(c.decimals, 2)
		FROM cart_items ci
		LEFT JOIN product_inventories i ON i.product_id = ci.product_id
		LEFT JOIN currencies c ON c.code = i.currency_code
		WHERE ci.cart_id = $1
		ORDER BY ci.updated_at DESC, ci.created_at DESC`, cartID)
	if err != nil {
		return domain.CartView{}, err
	}
	defer rows.Close()

	view := domain.CartView{Cart: cart}
	for rows.Next() {
		var it domain.LineItem
		inv, err := scanInventory(rows, &it.ID, &it.CartID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt)
		if err != nil {
			return domain.CartView{}, fmt.Errorf("scan cart view row: %w", err)
		}
		it.ProductID = inv.ProductID
		view.Items = append(view.Items, domain.ItemView{Item: it, Inventory: inv})
	}
	if err := rows.Err(); err != nil {
		return domain.CartView{}, err
	}
	return view, nil
}

// tokens

func scanToken(row pgx.Row) (domain.CartToken, error) {
	var t domain.CartToken
	err := row.Scan(&t.ID, &t.Token, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (q *Queries) FindToken(ctx context.Context, value string) (domain.CartToken, error) {
	t, err := scanToken(q.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM cart_tokens WHERE token = $1`, value))
	return t, notFound(err, app.ErrNotFound)
}

func (q *Queries) LockToken(ctx context.Context, value string) (domain.CartToken, error) {
	t, err := scanToken(q.db.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM cart_tokens
		WHERE token = $1
		FOR UPDATE`, value))
	return t, notFound(err, app.ErrNotFound)
}

func (q *Queries) CreateToken(ctx context.Context, value string, expiresAt time.Time) (domain.CartToken, error) {
	return scanToken(q.db.QueryRow(ctx, `
		INSERT INTO cart_tokens (token, expires_at)
		VALUES ($1, $2)
		RETURNING `+tokenColumns, value, expiresAt))
}

func (q *Queries) DeleteToken(ctx context.Context, tokenID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM cart_tokens WHERE id = $1`, tokenID)
	return err
}

var _ app.Queries = (*Queries)(nil)
