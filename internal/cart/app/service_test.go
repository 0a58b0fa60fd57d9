package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dwikikusuma/shoping-cart/internal/cart/app"
	"github.com/dwikikusuma/shoping-cart/internal/cart/carttest"
	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/dwikikusuma/shoping-cart/internal/cart/infra/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fixture struct {
	store  *memory.Store
	svc    *app.Service
	clock  *carttest.Clock
	events *carttest.Events
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		clock:  carttest.NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		events: &carttest.Events{},
	}
	f.svc = app.NewService(f.store, app.WithClock(f.clock.Now), app.WithEvents(f.events))
	return f
}

func (f *fixture) product(stock int, base, sale string) uuid.UUID {
	inv := carttest.Inventory(stock, base, sale)
	f.store.PutInventory(inv)
	return inv.ProductID
}

func (f *fixture) userCart(t *testing.T) domain.Cart {
	t.Helper()
	c, err := f.svc.GetOrCreateForUser(context.Background(), uuid.New())
	require.NoError(t, err)
	return c
}

func (f *fixture) quantity(cart domain.Cart, productID uuid.UUID) (int, bool) {
	it, ok := f.store.Items(cart.ID)[productID]
	return it.Quantity, ok
}

func TestAddProduct_emptyCartPricesSubtotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(5, "12.50", "")
	cart := f.userCart(t)

	item, err := f.svc.AddProduct(ctx, cart, p, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)

	view, err := f.svc.View(ctx, cart)
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalQuantityAvailable())
	assert.True(t, decimal.RequireFromString("25.00").Equal(view.SubtotalAmount()))
}

func TestAddProduct_saleShowsDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(5, "100", "80")
	cart := f.userCart(t)

	_, err := f.svc.AddProduct(ctx, cart, p, 1)
	require.NoError(t, err)

	view, err := f.svc.View(ctx, cart)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20).Equal(view.DiscountAmount()))
	assert.True(t, decimal.NewFromInt(80).Equal(view.TotalAmount()))
	assert.Equal(t, "$80.00", view.TotalFormatted())
}

func TestAddProduct_incrementsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(5, "1", "")
	cart := f.userCart(t)

	_, err := f.svc.AddProduct(ctx, cart, p, 2)
	require.NoError(t, err)
	item, err := f.svc.AddProduct(ctx, cart, p, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity)
	assert.Len(t, f.store.Items(cart.ID), 1)

	_, err = f.svc.AddProduct(ctx, cart, p, 1)
	assert.ErrorIs(t, err, domain.ErrNotEnoughStock)
	q, _ := f.quantity(cart, p)
	assert.Equal(t, 5, q)
}

func TestAddProduct_errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart := f.userCart(t)

	inactive := carttest.Inventory(5, "1", "")
	inactive.IsActive = false
	f.store.PutInventory(inactive)

	reserved := carttest.Inventory(3, "1", "")
	reserved.ReservedQuantity = 3
	f.store.PutInventory(reserved)

	limited := f.product(2, "1", "")

	cases := []struct {
		name      string
		productID uuid.UUID
		qty       int
		want      error
		kind      domain.ErrorKind
	}{
		{"zero quantity", limited, 0, domain.ErrInvalidQuantity, domain.KindInvalidQuantity},
		{"negative quantity", limited, -2, domain.ErrInvalidQuantity, domain.KindInvalidQuantity},
		{"inactive product", inactive.ProductID, 1, domain.ErrProductUnavailable, domain.KindProductUnavailable},
		{"fully reserved", reserved.ProductID, 1, domain.ErrProductUnavailable, domain.KindProductUnavailable},
		{"unknown inventory", uuid.New(), 1, domain.ErrProductUnavailable, domain.KindProductUnavailable},
		{"over stock", limited, 3, domain.ErrNotEnoughStock, domain.KindNotEnoughStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AddProduct(ctx, cart, tc.productID, tc.qty)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.kind, domain.KindOf(err))
		})
	}
	assert.Empty(t, f.store.Items(cart.ID))
}

func TestAddProduct_stockSharedAcrossCarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(3, "1", "")
	a, b := f.userCart(t), f.userCart(t)

	_, err := f.svc.AddProduct(ctx, a, p, 2)
	require.NoError(t, err)

	_, err = f.svc.AddProduct(ctx, b, p, 2)
	assert.ErrorIs(t, err, domain.ErrNotEnoughStock)

	_, err = f.svc.AddProduct(ctx, b, p, 1)
	assert.NoError(t, err)
}

func TestAddProduct_lastUnitRace(t *testing.T) {
	for run := 0; run < 20; run++ {
		f := newFixture(t)
		p := f.product(1, "5", "")
		a, b := f.userCart(t), f.userCart(t)

		errs := make([]error, 2)
		var g errgroup.Group
		for i, cart := range []domain.Cart{a, b} {
			i, cart := i, cart
			g.Go(func() error {
				_, errs[i] = f.svc.AddProduct(context.Background(), cart, p, 1)
				return nil
			})
		}
		require.NoError(t, g.Wait())

		succeeded, rejected := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrNotEnoughStock):
				rejected++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, rejected)
	}
}

func TestAddProduct_concurrentNeverOversells(t *testing.T) {
	f := newFixture(t)
	p := f.product(10, "1", "")

	const workers = 40
	carts := make([]domain.Cart, workers)
	for i := range carts {
		carts[i] = f.userCart(t)
	}

	var g errgroup.Group
	for _, cart := range carts {
		cart := cart
		g.Go(func() error {
			_, err := f.svc.AddProduct(context.Background(), cart, p, 1)
			if err != nil && !errors.Is(err, domain.ErrNotEnoughStock) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	held := 0
	for _, cart := range carts {
		q, _ := f.quantity(cart, p)
		held += q
	}
	assert.Equal(t, 10, held)
}

// pausingStore runs pause once, inside the transaction, right after the
// first LockItem returns.
type pausingStore struct {
	*memory.Store
	once  sync.Once
	pause func()
}

func (s *pausingStore) WithinTx(ctx context.Context, fn func(q app.Queries) error) error {
	return s.Store.WithinTx(ctx, func(q app.Queries) error {
		return fn(pausingQueries{Queries: q, store: s})
	})
}

type pausingQueries struct {
	app.Queries
	store *pausingStore
}

func (q pausingQueries) LockItem(ctx context.Context, cartID, productID uuid.UUID) (domain.LineItem, error) {
	it, err := q.Queries.LockItem(ctx, cartID, productID)
	q.store.once.Do(q.store.pause)
	return it, err
}

func TestAddProduct_concurrentDecreaseCannotDeleteLockedLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(5, "3", "")
	cart := f.userCart(t)
	_, err := f.svc.AddProduct(ctx, cart, p, 1)
	require.NoError(t, err)

	decreased := make(chan error, 1)
	paused := &pausingStore{Store: f.store}
	paused.pause = func() {
		go func() {
			_, err := f.svc.DecreaseProduct(ctx, cart, p, 1)
			decreased <- err
		}()
		// The decrease must wait for this transaction; give it the chance
		// to run ahead if the line were left unlocked.
		select {
		case err := <-decreased:
			decreased <- err
		case <-time.After(50 * time.Millisecond):
		}
	}
	adder := app.NewService(paused, app.WithClock(f.clock.Now))

	item, err := adder.AddProduct(ctx, cart, p, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)

	require.NoError(t, <-decreased)
	q, ok := f.quantity(cart, p)
	require.True(t, ok)
	assert.Equal(t, 1, q)
}

func TestDecreaseProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(10, "1", "")
	cart := f.userCart(t)

	_, err := f.svc.AddProduct(ctx, cart, p, 5)
	require.NoError(t, err)

	item, err := f.svc.DecreaseProduct(ctx, cart, p, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)

	_, err = f.svc.DecreaseProduct(ctx, cart, p, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidStep)
	assert.Equal(t, domain.KindInvalidQuantity, domain.KindOf(err))

	_, err = f.svc.DecreaseProduct(ctx, cart, uuid.New(), 1)
	assert.ErrorIs(t, err, domain.ErrCartItemNotFound)

	item, err = f.svc.DecreaseProduct(ctx, cart, p, 10)
	assert.ErrorIs(t, err, domain.ErrNotEnoughStock)
	assert.Equal(t, 0, item.Quantity)
	_, ok := f.quantity(cart, p)
	assert.False(t, ok, "line should be deleted even though an error is reported")
}

func TestAddThenDecrease_roundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(5, "1", "")
	cart := f.userCart(t)

	_, err := f.svc.AddProduct(ctx, cart, p, 3)
	require.NoError(t, err)

	_, err = f.svc.DecreaseProduct(ctx, cart, p, 3)
	assert.ErrorIs(t, err, domain.ErrNotEnoughStock)
	assert.Empty(t, f.store.Items(cart.ID))
}

func TestRemoveProduct_idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(5, "1", "")
	cart := f.userCart(t)

	_, err := f.svc.AddProduct(ctx, cart, p, 1)
	require.NoError(t, err)

	removed, err := f.svc.RemoveProduct(ctx, cart, p)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.svc.RemoveProduct(ctx, cart, p)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Empty(t, f.store.Items(cart.ID))
}

func TestSetItemQuantity_zeroDeletesLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(5, "1", "")
	cart := f.userCart(t)

	_, err := f.svc.AddProduct(ctx, cart, p, 2)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	item, err := f.svc.SetItemQuantity(ctx, cart, p, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, item.Quantity)
	assert.Empty(t, f.store.Items(cart.ID))

	got, err := f.svc.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(f.clock.Now()))
}

func TestSetItemQuantity_paths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(5, "1", "")
	cart := f.userCart(t)

	item, err := f.svc.SetItemQuantity(ctx, cart, p, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, item.Quantity)
	assert.Empty(t, f.store.Items(cart.ID))

	_, err = f.svc.SetItemQuantity(ctx, cart, p, 6)
	assert.ErrorIs(t, err, domain.ErrNotEnoughStock)

	item, err = f.svc.SetItemQuantity(ctx, cart, p, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, item.Quantity)

	// overwriting an existing line skips the stock check
	item, err = f.svc.SetItemQuantity(ctx, cart, p, 9)
	require.NoError(t, err)
	assert.Equal(t, 9, item.Quantity)
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart := f.userCart(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.AddProduct(ctx, cart, f.product(5, "1", ""), 1)
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.Clear(ctx, cart))
	assert.Empty(t, f.store.Items(cart.ID))
	assert.Contains(t, f.events.Types(), domain.EventCartCleared)
}

func TestMergeFrom_combinesQuantitiesAndEmptiesSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.product(5, "1", "")
	a, b := f.userCart(t), f.userCart(t)

	_, err := f.svc.AddProduct(ctx, a, x, 2)
	require.NoError(t, err)
	_, err = f.svc.AddProduct(ctx, b, x, 1)
	require.NoError(t, err)

	res, err := f.svc.MergeFrom(ctx, b, a)
	require.NoError(t, err)
	assert.Len(t, res.Merged, 1)
	assert.Empty(t, res.Skipped)

	q, _ := f.quantity(b, x)
	assert.Equal(t, 3, q)
	assert.Empty(t, f.store.Items(a.ID))
}

func TestMergeFrom_skipsDomainFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ok := f.product(5, "1", "")
	gone := carttest.Inventory(5, "1", "")
	f.store.PutInventory(gone)
	src, dst := f.userCart(t), f.userCart(t)

	_, err := f.svc.AddProduct(ctx, src, ok, 1)
	require.NoError(t, err)
	_, err = f.svc.AddProduct(ctx, src, gone.ProductID, 1)
	require.NoError(t, err)

	gone.IsActive = false
	f.store.PutInventory(gone)

	res, err := f.svc.MergeFrom(ctx, dst, src)
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, gone.ProductID, res.Skipped[0].ProductID)
	assert.ErrorIs(t, res.Skipped[0].Err, domain.ErrProductUnavailable)
	assert.Len(t, f.store.Items(dst.ID), 1)
	assert.Empty(t, f.store.Items(src.ID))
}

func TestMergeFrom_abortsOnStorageError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(5, "1", "")
	src, dst := f.userCart(t), f.userCart(t)
	_, err := f.svc.AddProduct(ctx, src, p, 1)
	require.NoError(t, err)

	boom := errors.New("connection reset")
	f.store.FailNext = boom

	_, err = f.svc.MergeFrom(ctx, dst, src)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, f.store.Items(src.ID), 1, "source must stay intact")
	assert.Empty(t, f.store.Items(dst.ID))
}

func TestMergeFrom_sameCart(t *testing.T) {
	f := newFixture(t)
	cart := f.userCart(t)
	res, err := f.svc.MergeFrom(context.Background(), cart, cart)
	require.NoError(t, err)
	assert.Empty(t, res.Merged)
	assert.Empty(t, f.events.Types())
}

func TestToggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(5, "1", "")
	a, b := f.userCart(t), f.userCart(t)

	_, err := f.svc.AddProduct(ctx, b, p, 1)
	require.NoError(t, err)

	res, err := f.svc.Toggle(ctx, a, p)
	require.NoError(t, err)
	assert.Equal(t, app.ToggleResult{Action: app.ActionAdded, InCart: true, CartCount: 2}, res)

	res, err = f.svc.Toggle(ctx, a, p)
	require.NoError(t, err)
	assert.Equal(t, app.ToggleResult{Action: app.ActionRemoved, InCart: false, CartCount: 1}, res)
}

func TestWithinTx_rollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(5, "1", "")
	cart := f.userCart(t)

	boom := errors.New("boom")
	err := f.store.WithinTx(ctx, func(q app.Queries) error {
		if _, err := q.InsertItem(ctx, cart.ID, p, 1); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.store.Items(cart.ID))
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(5, "1", "")
	cart := f.userCart(t)

	_, err := f.svc.AddProduct(ctx, cart, p, 2)
	require.NoError(t, err)
	_, err = f.svc.DecreaseProduct(ctx, cart, p, 1)
	require.NoError(t, err)
	_, err = f.svc.SetItemQuantity(ctx, cart, p, 4)
	require.NoError(t, err)
	_, err = f.svc.RemoveProduct(ctx, cart, p)
	require.NoError(t, err)
	_, err = f.svc.AddProduct(ctx, cart, p, 9)
	require.Error(t, err)

	assert.Equal(t, []domain.EventType{
		domain.EventItemAdded,
		domain.EventItemDecreased,
		domain.EventItemSet,
		domain.EventItemRemoved,
	}, f.events.Types())
}
