package app

import (
	"context"

	"github.com/dwikikusuma/shoping-cart/internal/catalog/domain"
	"github.com/google/uuid"
)

type ProductRepo interface {
	Create(ctx context.Context, p domain.Product) (domain.Product, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Product, error)
}
