package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dwikikusuma/shoping-cart/internal/catalog/app"
	"github.com/dwikikusuma/shoping-cart/internal/catalog/domain"
	"github.com/dwikikusuma/shoping-cart/pkg/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type ProductRepo struct {
	pool *pgxpool.Pool
}

func NewProductRepo(pool *pgxpool.Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

func (r *ProductRepo) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO products (name, slug, description)
			VALUES ($1, $2, $3)
			RETURNING id, created_at, updated_at`,
			p.Name, p.Slug, p.Description,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if postgres.IsUniqueViolation(err) {
			return app.ErrSlugTaken
		}
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO product_inventories (product_id, base_price, currency_code, stock_quantity)
			VALUES ($1, $2::numeric, $3, $4)`,
			p.ID, p.Price.Amount.String(), p.Price.Currency, p.Stock,
		)
		if err != nil {
			return fmt.Errorf("insert inventory: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (r *ProductRepo) Get(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT p.id, p.name, p.slug, p.description, p.created_at, p.updated_at,
		       i.base_price::text, i.currency_code, i.stock_quantity
		FROM products p
		JOIN product_inventories i ON i.product_id = p.id
		WHERE p.id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.CreatedAt, &p.UpdatedAt,
		&price, &p.Price.Currency, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, app.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, err
	}

	p.Price.Amount, err = decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("parse base price %q: %w", price, err)
	}
	return p, nil
}
