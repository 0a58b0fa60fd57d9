// Package httpapi is the cart's HTTP boundary. Every cart route resolves the
// caller's cart once, applies the resulting cookie directive, and hands the
// cart to the handler as an argument.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dwikikusuma/shoping-cart/internal/auth"
	"github.com/dwikikusuma/shoping-cart/internal/cart/app"
	"github.com/dwikikusuma/shoping-cart/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const Prefix = "/api/v1"

type ProductLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Service  *app.Service
	Resolver *app.Resolver
	Products ProductLookup
	Verifier TokenVerifier
	Cookie   config.Cookie
	Ready    Pinger
	Log      *slog.Logger
}

type Handler struct {
	svc      *app.Service
	resolver *app.Resolver
	products ProductLookup
	cookie   config.Cookie
	ready    Pinger
	log      *slog.Logger
}

func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	h := &Handler{
		svc:      d.Service,
		resolver: d.Resolver,
		products: d.Products,
		cookie:   d.Cookie,
		ready:    d.Ready,
		log:      d.Log,
	}

	r := gin.New()
	r.Use(RequestLogger(d.Log), gin.Recovery())
	r.GET("/healthz", h.healthz)
	r.GET("/readyz", h.readyz)

	v1 := r.Group(Prefix)
	v1.Use(Authentication(d.Verifier))
	{
		v1.GET("/cart", h.withCart(h.getCart))
		v1.GET("/cart/summary", h.withCart(h.getSummary))
		v1.DELETE("/cart", h.withCart(h.clearCart))
		v1.POST("/cart/merge", RequireUser(), h.mergeCart)

		v1.POST("/products/:product_id/cart", h.withCart(h.withProduct(h.toggle)))

		items := v1.Group("/cart/items/:product_id")
		items.POST("/increase", h.withCart(h.withProduct(h.increase)))
		items.POST("/decrease", h.withCart(h.withProduct(h.decrease)))
		items.PUT("", h.withCart(h.withProduct(h.setQuantity)))
		items.DELETE("", h.withCart(h.withProduct(h.remove)))
	}
	return r
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) readyz(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready.Ping(c.Request.Context()); err != nil {
			h.log.Warn("readiness check failed", slog.Any("err", err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
