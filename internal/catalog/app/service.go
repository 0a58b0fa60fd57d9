package app

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/dwikikusuma/shoping-cart/internal/catalog/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrSlugTaken    = errors.New("slug already taken")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type Service struct {
	repo ProductRepo
}

func NewService(repo ProductRepo) *Service {
	return &Service{
		repo: repo,
	}
}

type NewProduct struct {
	Name        string
	Slug        string
	Description string
	Currency    string
	Price       decimal.Decimal
	Stock       int
}

// CreateProduct registers a product together with its inventory row.
func (s *Service) CreateProduct(ctx context.Context, in NewProduct) (domain.Product, error) {
	name := strings.TrimSpace(in.Name)
	slug := strings.TrimSpace(in.Slug)
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "USD"
	}

	if name == "" || !slugPattern.MatchString(slug) || len(currency) != 3 {
		return domain.Product{}, ErrInvalidInput
	}
	if in.Price.IsNegative() || in.Stock < 0 {
		return domain.Product{}, ErrInvalidInput
	}

	p := domain.Product{
		Name:        name,
		Slug:        slug,
		Description: in.Description,
		Price: domain.Money{
			Currency: currency,
			Amount:   in.Price,
		},
		Stock: in.Stock,
	}

	product, err := s.repo.Create(ctx, p)
	if err != nil {
		return domain.Product{}, err
	}

	return product, nil
}

func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	if id == uuid.Nil {
		return domain.Product{}, ErrInvalidInput
	}
	return s.repo.Get(ctx, id)
}

// Exists reports whether the catalog knows the product.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.GetProduct(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput):
		return false, nil
	default:
		return false, err
	}
}
