package domain

import "errors"

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindProductUnavailable
	KindNotEnoughStock
	KindCartItemNotFound
	KindInvalidQuantity
)

func (k ErrorKind) String() string {
	switch k {
	case KindProductUnavailable:
		return "PRODUCT_UNAVAILABLE"
	case KindNotEnoughStock:
		return "NOT_ENOUGH_STOCK"
	case KindCartItemNotFound:
		return "CART_ITEM_NOT_FOUND"
	case KindInvalidQuantity:
		return "INVALID_QUANTITY"
	default:
		return "UNKNOWN"
	}
}

// Error is an expected cart outcome the caller can recover from. Key is
// stable and safe to send to clients.
type Error struct {
	Kind    ErrorKind
	Key     string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Key so a copy with a custom message still satisfies
// errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Key == t.Key
}

// WithMessage returns a copy of e carrying msg.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Kind: e.Kind, Key: e.Key, Message: msg}
}

var (
	ErrProductUnavailable = &Error{Kind: KindProductUnavailable, Key: "product_unavailable", Message: "Product is not available."}
	ErrNotEnoughStock     = &Error{Kind: KindNotEnoughStock, Key: "not_enough_stock", Message: "Not enough stock available."}
	ErrCartItemNotFound   = &Error{Kind: KindCartItemNotFound, Key: "cart_item_not_found", Message: "Cart item not found."}
	ErrInvalidQuantity    = &Error{Kind: KindInvalidQuantity, Key: "invalid_quantity", Message: "Quantity must be positive."}
	ErrInvalidStep        = &Error{Kind: KindInvalidQuantity, Key: "invalid_step", Message: "Step must be positive."}
)

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// AsError extracts the domain error from err's chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
