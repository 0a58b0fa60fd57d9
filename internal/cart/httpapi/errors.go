package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/gin-gonic/gin"
)

const (
	errKeyProductNotFound = "product_not_found"
	errKeyBadRequest      = "bad_request"
	errKeyInternal        = "internal_error"
)

type errorResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ErrorKey string `json:"error_key,omitempty"`
}

func abortWithError(c *gin.Context, status int, key, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Success: false, Message: message, ErrorKey: key})
}

func statusFromKind(k domain.ErrorKind) int {
	switch k {
	case domain.KindProductUnavailable, domain.KindNotEnoughStock:
		return http.StatusConflict
	case domain.KindCartItemNotFound:
		return http.StatusNotFound
	case domain.KindInvalidQuantity:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail answers with the domain error's status and key, or 500 for anything
// else. Internal details are logged, not returned.
func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)

	if de, ok := domain.AsError(err); ok {
		abortWithError(c, statusFromKind(de.Kind), de.Key, de.Message)
		return
	}

	h.log.Error("cart request failed",
		slog.Any("err", err),
		slog.String("path", c.FullPath()))
	abortWithError(c, http.StatusInternalServerError, errKeyInternal, "internal error")
}
