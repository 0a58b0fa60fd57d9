package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dwikikusuma/shoping-cart/internal/cart/app"
	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"

	authKey      = "cart.auth"
	requestIDKey = "cart.request_id"
)

func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDKey, reqID)
		c.Header(RequestIDHeader, reqID)

		c.Next()

		attrs := []any{
			slog.String("request_id", reqID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("err", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("http request", attrs...)
		default:
			log.Info("http request", attrs...)
		}
	}
}

// Authentication reads an optional bearer token. Requests without one are
// anonymous; requests with an invalid one are rejected.
func Authentication(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(authKey, app.Anonymous())

		header := c.GetHeader("Authorization")
		if header == "" || v == nil {
			c.Next()
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "expected a bearer token")
			return
		}
		claims, err := v.Verify(strings.TrimSpace(raw))
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "invalid token subject")
			return
		}

		c.Set(authKey, app.Authenticated(userID))
		c.Next()
	}
}

func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authFrom(c).IsAuthenticated() {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		c.Next()
	}
}

func authFrom(c *gin.Context) app.Auth {
	if v, ok := c.Get(authKey); ok {
		if a, ok := v.(app.Auth); ok {
			return a
		}
	}
	return app.Anonymous()
}

// withCart resolves the caller's cart, writes any cookie directive, and then
// calls next with the cart.
func (h *Handler) withCart(next func(c *gin.Context, cart domain.Cart)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(h.cookie.Name)

		res, err := h.resolver.Resolve(c.Request.Context(), authFrom(c), token)
		if err != nil {
			h.fail(c, err)
			return
		}
		h.applyCookie(c, res.Cookie)

		next(c, res.Cart)
	}
}

// applyCookie writes the directive. On rotation the clearing header comes
// first so the new value is the one the client keeps.
func (h *Handler) applyCookie(c *gin.Context, d app.CookieDirective) {
	if d.IsZero() {
		return
	}
	c.SetSameSite(h.cookie.SameSite)
	if d.Clear {
		c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, h.cookie.HTTPOnly)
	}
	if d.Set != "" {
		c.SetCookie(h.cookie.Name, d.Set, h.cookie.MaxAge, "/", "", h.cookie.Secure, h.cookie.HTTPOnly)
	}
}

// withProduct parses :product_id and answers 404 for products the catalog
// does not know.
func (h *Handler) withProduct(next func(c *gin.Context, cart domain.Cart, productID uuid.UUID)) func(*gin.Context, domain.Cart) {
	return func(c *gin.Context, cart domain.Cart) {
		productID, err := uuid.Parse(c.Param("product_id"))
		if err != nil {
			abortWithError(c, http.StatusNotFound, errKeyProductNotFound, "product not found")
			return
		}
		if h.products != nil {
			ok, err := h.products.Exists(c.Request.Context(), productID)
			if err != nil {
				h.fail(c, err)
				return
			}
			if !ok {
				abortWithError(c, http.StatusNotFound, errKeyProductNotFound, "product not found")
				return
			}
		}
		next(c, cart, productID)
	}
}
