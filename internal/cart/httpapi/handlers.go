package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type cartResponse struct {
	Summary domain.Summary      `json:"summary"`
	Items   []domain.ItemDetail `json:"items"`
}

type itemResponse struct {
	ProductID uuid.UUID      `json:"product_id"`
	Quantity  int            `json:"quantity"`
	Removed   bool           `json:"removed"`
	Summary   domain.Summary `json:"summary"`
}

type skippedItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	ErrorKey  string    `json:"error_key"`
}

type mergeResponse struct {
	Merged  int            `json:"merged"`
	Skipped []skippedItem  `json:"skipped"`
	Summary domain.Summary `json:"summary"`
}

func (h *Handler) getCart(c *gin.Context, cart domain.Cart) {
	view, err := h.svc.View(c.Request.Context(), cart)
	if err != nil {
		h.fail(c, err)
		return
	}
	items := view.Details()
	if items == nil {
		items = []domain.ItemDetail{}
	}
	c.JSON(http.StatusOK, cartResponse{Summary: view.Summary(), Items: items})
}

func (h *Handler) getSummary(c *gin.Context, cart domain.Cart) {
	sum, err := h.svc.Summary(c.Request.Context(), cart)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) toggle(c *gin.Context, cart domain.Cart, productID uuid.UUID) {
	res, err := h.svc.Toggle(c.Request.Context(), cart, productID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type increaseRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) increase(c *gin.Context, cart domain.Cart, productID uuid.UUID) {
	var req increaseRequest
	if !bindOptional(c, &req) {
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	item, err := h.svc.AddProduct(c.Request.Context(), cart, productID, qty)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondItem(c, cart, productID, item.Quantity)
}

type decreaseRequest struct {
	Step *int `json:"step"`
}

// decrease answers 409 not_enough_stock when the step consumed the whole
// line. The line is deleted all the same.
func (h *Handler) decrease(c *gin.Context, cart domain.Cart, productID uuid.UUID) {
	var req decreaseRequest
	if !bindOptional(c, &req) {
		return
	}
	step := 1
	if req.Step != nil {
		step = *req.Step
	}

	item, err := h.svc.DecreaseProduct(c.Request.Context(), cart, productID, step)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondItem(c, cart, productID, item.Quantity)
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *Handler) setQuantity(c *gin.Context, cart domain.Cart, productID uuid.UUID) {
	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, errKeyBadRequest, "quantity is required")
		return
	}

	item, err := h.svc.SetItemQuantity(c.Request.Context(), cart, productID, *req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondItem(c, cart, productID, item.Quantity)
}

func (h *Handler) remove(c *gin.Context, cart domain.Cart, productID uuid.UUID) {
	if _, err := h.svc.RemoveProduct(c.Request.Context(), cart, productID); err != nil {
		h.fail(c, err)
		return
	}
	h.respondItem(c, cart, productID, 0)
}

func (h *Handler) clearCart(c *gin.Context, cart domain.Cart) {
	if err := h.svc.Clear(c.Request.Context(), cart); err != nil {
		h.fail(c, err)
		return
	}
	h.getSummary(c, cart)
}

// mergeCart adopts the anonymous cart named by the cookie into the signed-in
// user's cart.
func (h *Handler) mergeCart(c *gin.Context) {
	token, _ := c.Cookie(h.cookie.Name)

	res, err := h.resolver.AdoptAnonymousCart(c.Request.Context(), authFrom(c).UserID, token)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.applyCookie(c, res.Cookie)

	sum, err := h.svc.Summary(c.Request.Context(), res.Cart)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := mergeResponse{Merged: len(res.Merge.Merged), Skipped: []skippedItem{}, Summary: sum}
	for _, s := range res.Merge.Skipped {
		key := ""
		if de, ok := domain.AsError(s.Err); ok {
			key = de.Key
		}
		out.Skipped = append(out.Skipped, skippedItem{ProductID: s.ProductID, Quantity: s.Quantity, ErrorKey: key})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) respondItem(c *gin.Context, cart domain.Cart, productID uuid.UUID, quantity int) {
	sum, err := h.svc.Summary(c.Request.Context(), cart)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, itemResponse{
		ProductID: productID,
		Quantity:  quantity,
		Removed:   quantity == 0,
		Summary:   sum,
	})
}

// bindOptional binds a JSON body when one was sent. An empty body is fine.
func bindOptional(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	abortWithError(c, http.StatusBadRequest, errKeyBadRequest, "malformed request body")
	return false
}
