// Package carttest holds fixtures shared by the cart's tests.
package carttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var USD = domain.Currency{Code: "USD", Symbol: "$", Decimals: 2}

// Inventory builds an active USD inventory row. An empty sale means no sale
// price.
func Inventory(stock int, base, sale string) domain.Inventory {
	inv := domain.Inventory{
		ProductID:     uuid.New(),
		IsActive:      true,
		StockQuantity: stock,
		BasePrice:     decimal.RequireFromString(base),
		Currency:      USD,
	}
	if sale != "" {
		inv.SalePrice = decimal.NewNullDecimal(decimal.RequireFromString(sale))
	}
	return inv
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SeqTokens issues tok-1, tok-2, ...
type SeqTokens struct {
	mu sync.Mutex
	n  int
}

func (s *SeqTokens) NewToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("tok-%d", s.n), nil
}

// Events records published events.
type Events struct {
	mu     sync.Mutex
	events []domain.Event
}

func (e *Events) Publish(_ context.Context, ev domain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *Events) Types() []domain.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.EventType, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}
