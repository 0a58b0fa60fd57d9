package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dwikikusuma/shoping-cart/internal/auth"
	"github.com/dwikikusuma/shoping-cart/internal/cart/app"
	"github.com/dwikikusuma/shoping-cart/internal/cart/carttest"
	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/dwikikusuma/shoping-cart/internal/cart/infra/memory"
	"github.com/dwikikusuma/shoping-cart/pkg/config"
	"github.com/dwikikusuma/shoping-cart/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type catalog map[uuid.UUID]bool

func (c catalog) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return c[id], nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type server struct {
	t       *testing.T
	router  *gin.Engine
	store   *memory.Store
	clock   *carttest.Clock
	keys    *auth.Keys
	catalog catalog
}

var cookieCfg = config.Cookie{
	Name:     "cart_token",
	MaxAge:   3600,
	HTTPOnly: true,
	SameSite: http.SameSiteLaxMode,
}

func newServer(t *testing.T) *server {
	t.Helper()
	keys, err := auth.NewKeys("test-secret")
	require.NoError(t, err)

	s := &server{
		t:       t,
		store:   memory.NewStore(),
		clock:   carttest.NewClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
		keys:    keys,
		catalog: catalog{},
	}
	svc := app.NewService(s.store, app.WithClock(s.clock.Now))
	s.router = NewRouter(Deps{
		Service:  svc,
		Resolver: app.NewResolver(svc, s.store, &carttest.SeqTokens{}, time.Hour),
		Products: s.catalog,
		Verifier: keys,
		Cookie:   cookieCfg,
		Ready:    pinger{},
		Log:      logger.Nop(),
	})
	return s
}

func (s *server) product(stock int, base, sale string) uuid.UUID {
	inv := carttest.Inventory(stock, base, sale)
	s.store.PutInventory(inv)
	s.catalog[inv.ProductID] = true
	return inv.ProductID
}

type call struct {
	method string
	path   string
	body   any
	cookie string
	bearer string
}

func (s *server) do(c call) *httptest.ResponseRecorder {
	s.t.Helper()
	var body io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		require.NoError(s.t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != "" {
		req.AddCookie(&http.Cookie{Name: cookieCfg.Name, Value: c.cookie})
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func cartCookies(rec *httptest.ResponseRecorder) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieCfg.Name {
			out = append(out, c)
		}
	}
	return out
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func itemPath(id uuid.UUID, suffix string) string {
	return Prefix + "/cart/items/" + id.String() + suffix
}

func TestAnonymousVisitorGetsCookie(t *testing.T) {
	s := newServer(t)

	rec := s.do(call{method: http.MethodGet, path: Prefix + "/cart"})
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := cartCookies(rec)
	require.Len(t, cookies, 1)
	assert.Equal(t, "tok-1", cookies[0].Value)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.True(t, cookies[0].HttpOnly)

	body := decode[cartResponse](t, rec)
	assert.Empty(t, body.Items)
	assert.Equal(t, "0.00", body.Summary.TotalValue)

	rec = s.do(call{method: http.MethodGet, path: Prefix + "/cart/summary", cookie: "tok-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, cartCookies(rec))
}

func TestExpiredCookieIsRotated(t *testing.T) {
	s := newServer(t)
	p := s.product(5, "10", "")

	rec := s.do(call{method: http.MethodPost, path: itemPath(p, "/increase"), body: map[string]int{"quantity": 2}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	s.clock.Advance(2 * time.Hour)
	rec = s.do(call{method: http.MethodGet, path: Prefix + "/cart", cookie: "tok-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := cartCookies(rec)
	require.Len(t, cookies, 2)
	assert.Equal(t, "", cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
	assert.Equal(t, "tok-2", cookies[1].Value)

	body := decode[cartResponse](t, rec)
	require.Len(t, body.Items, 1)
	assert.Equal(t, 2, body.Items[0].Quantity)
}

func TestItemLifecycle(t *testing.T) {
	s := newServer(t)
	p := s.product(5, "100", "80")

	rec := s.do(call{method: http.MethodPost, path: itemPath(p, "/increase")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item := decode[itemResponse](t, rec)
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, "$20.00", item.Summary.TotalDiscount)

	rec = s.do(call{method: http.MethodPost, path: itemPath(p, "/increase"), body: map[string]int{"quantity": 3}, cookie: "tok-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decode[itemResponse](t, rec).Quantity)

	rec = s.do(call{method: http.MethodPost, path: itemPath(p, "/decrease"), body: map[string]int{"step": 2}, cookie: "tok-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[itemResponse](t, rec).Quantity)

	rec = s.do(call{method: http.MethodPut, path: itemPath(p, ""), body: map[string]int{"quantity": 5}, cookie: "tok-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	item = decode[itemResponse](t, rec)
	assert.Equal(t, 5, item.Quantity)
	assert.Equal(t, "$400.00", item.Summary.TotalValue)

	rec = s.do(call{method: http.MethodDelete, path: itemPath(p, ""), cookie: "tok-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[itemResponse](t, rec).Removed)

	rec = s.do(call{method: http.MethodDelete, path: itemPath(p, ""), cookie: "tok-1"})
	require.Equal(t, http.StatusOK, rec.Code, "removing twice is not an error")
}

func TestDecreaseToZeroReportsNotEnoughStock(t *testing.T) {
	s := newServer(t)
	p := s.product(5, "1", "")

	s.do(call{method: http.MethodPost, path: itemPath(p, "/increase")})
	rec := s.do(call{method: http.MethodPost, path: itemPath(p, "/decrease"), cookie: "tok-1"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_enough_stock", decode[errorResponse](t, rec).ErrorKey)

	rec = s.do(call{method: http.MethodGet, path: Prefix + "/cart", cookie: "tok-1"})
	assert.Empty(t, decode[cartResponse](t, rec).Items)
}

func TestErrorMapping(t *testing.T) {
	s := newServer(t)
	p := s.product(1, "1", "")
	inactive := carttest.Inventory(5, "1", "")
	inactive.IsActive = false
	s.store.PutInventory(inactive)
	s.catalog[inactive.ProductID] = true

	cases := []struct {
		name   string
		call   call
		status int
		key    string
	}{
		{"not enough stock", call{method: http.MethodPost, path: itemPath(p, "/increase"), body: map[string]int{"quantity": 2}}, http.StatusConflict, "not_enough_stock"},
		{"unavailable", call{method: http.MethodPost, path: itemPath(inactive.ProductID, "/increase")}, http.StatusConflict, "product_unavailable"},
		{"item not found", call{method: http.MethodPost, path: itemPath(p, "/decrease")}, http.StatusNotFound, "cart_item_not_found"},
		{"invalid quantity", call{method: http.MethodPost, path: itemPath(p, "/increase"), body: map[string]int{"quantity": 0}}, http.StatusBadRequest, "invalid_quantity"},
		{"invalid step", call{method: http.MethodPost, path: itemPath(p, "/decrease"), body: map[string]int{"step": -1}}, http.StatusBadRequest, "invalid_step"},
		{"unknown product", call{method: http.MethodPost, path: itemPath(uuid.New(), "/increase")}, http.StatusNotFound, errKeyProductNotFound},
		{"malformed product id", call{method: http.MethodPost, path: Prefix + "/products/42/cart"}, http.StatusNotFound, errKeyProductNotFound},
		{"missing quantity", call{method: http.MethodPut, path: itemPath(p, ""), body: map[string]string{}}, http.StatusBadRequest, errKeyBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(tc.call)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			body := decode[errorResponse](t, rec)
			assert.False(t, body.Success)
			assert.Equal(t, tc.key, body.ErrorKey)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestStorageErrorIs500(t *testing.T) {
	s := newServer(t)
	p := s.product(5, "1", "")
	s.do(call{method: http.MethodGet, path: Prefix + "/cart"})

	s.store.FailNext = errors.New("connection reset")
	rec := s.do(call{method: http.MethodPost, path: itemPath(p, "/increase"), cookie: "tok-1"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decode[errorResponse](t, rec)
	assert.Equal(t, errKeyInternal, body.ErrorKey)
	assert.NotContains(t, body.Message, "connection reset")
}

func TestToggle(t *testing.T) {
	s := newServer(t)
	p := s.product(5, "1", "")
	path := Prefix + "/products/" + p.String() + "/cart"

	rec := s.do(call{method: http.MethodPost, path: path})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, app.ToggleResult{Action: app.ActionAdded, InCart: true, CartCount: 1}, decode[app.ToggleResult](t, rec))

	rec = s.do(call{method: http.MethodPost, path: path, cookie: "tok-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, app.ToggleResult{Action: app.ActionRemoved, InCart: false, CartCount: 0}, decode[app.ToggleResult](t, rec))
}

func TestAuthenticatedUserCart(t *testing.T) {
	s := newServer(t)
	p := s.product(5, "1", "")
	userID := uuid.New()
	tok, err := s.keys.Sign(userID, time.Hour)
	require.NoError(t, err)

	rec := s.do(call{method: http.MethodPost, path: itemPath(p, "/increase"), bearer: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, cartCookies(rec))

	carts := s.store.Carts()
	require.Len(t, carts, 1)
	assert.Equal(t, domain.UserOwner(userID), carts[0].Owner)

	rec = s.do(call{method: http.MethodGet, path: Prefix + "/cart", bearer: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMerge(t *testing.T) {
	s := newServer(t)
	x := s.product(5, "1", "")
	y := s.product(1, "1", "")
	userID := uuid.New()
	tok, err := s.keys.Sign(userID, time.Hour)
	require.NoError(t, err)

	// the user already holds the only unit of y
	s.do(call{method: http.MethodPost, path: itemPath(y, "/increase"), bearer: tok})

	s.do(call{method: http.MethodPost, path: itemPath(x, "/increase"), body: map[string]int{"quantity": 2}})
	s.do(call{method: http.MethodPost, path: itemPath(x, "/increase"), cookie: "tok-1"})

	rec := s.do(call{method: http.MethodPost, path: Prefix + "/cart/merge", bearer: tok, cookie: "tok-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[mergeResponse](t, rec)
	assert.Equal(t, 1, body.Merged)
	assert.Empty(t, body.Skipped)
	assert.Equal(t, 4, body.Summary.TotalQuantity)

	cookies := cartCookies(rec)
	require.Len(t, cookies, 1)
	assert.Negative(t, cookies[0].MaxAge)
	assert.Empty(t, s.store.Tokens())

	rec = s.do(call{method: http.MethodPost, path: Prefix + "/cart/merge"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec := s.do(call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(call{method: http.MethodGet, path: "/readyz"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestReadyzReportsDatabase(t *testing.T) {
	store := memory.NewStore()
	svc := app.NewService(store)
	r := NewRouter(Deps{
		Service:  svc,
		Resolver: app.NewResolver(svc, store, &carttest.SeqTokens{}, time.Hour),
		Ready:    pinger{err: errors.New("db down")},
		Log:      logger.Nop(),
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "unavailable"))
}

func TestStatusFromKind(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFromKind(domain.KindProductUnavailable))
	assert.Equal(t, http.StatusConflict, statusFromKind(domain.KindNotEnoughStock))
	assert.Equal(t, http.StatusNotFound, statusFromKind(domain.KindCartItemNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFromKind(domain.KindInvalidQuantity))
	assert.Equal(t, http.StatusInternalServerError, statusFromKind(domain.KindUnknown))
}
