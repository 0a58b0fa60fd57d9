package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OwnerKind int

const (
	OwnerNone OwnerKind = iota
	OwnerUser
	OwnerToken
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerUser:
		return "user"
	case OwnerToken:
		return "token"
	default:
		return "none"
	}
}

var ErrInvalidOwner = errors.New("cart must have exactly one owner: user or token")

// Owner identifies who a cart belongs to. Exactly one of UserID and TokenID
// is set; the zero value is invalid.
type Owner struct {
	UserID  uuid.UUID
	TokenID uuid.UUID
}

func UserOwner(userID uuid.UUID) Owner {
	return Owner{UserID: userID}
}

func TokenOwner(tokenID uuid.UUID) Owner {
	return Owner{TokenID: tokenID}
}

func (o Owner) Kind() OwnerKind {
	switch {
	case o.UserID != uuid.Nil && o.TokenID == uuid.Nil:
		return OwnerUser
	case o.UserID == uuid.Nil && o.TokenID != uuid.Nil:
		return OwnerToken
	default:
		return OwnerNone
	}
}

func (o Owner) Validate() error {
	if o.Kind() == OwnerNone {
		return ErrInvalidOwner
	}
	return nil
}

func (o Owner) String() string {
	switch o.Kind() {
	case OwnerUser:
		return fmt.Sprintf("user:%s", o.UserID)
	case OwnerToken:
		return fmt.Sprintf("token:%s", o.TokenID)
	default:
		return "unknown"
	}
}

type Cart struct {
	ID        uuid.UUID
	Owner     Owner
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Cart) IsAnonymous() bool {
	return c.Owner.Kind() == OwnerToken
}

// CartToken is the server-side record behind the anonymous cart cookie.
type CartToken struct {
	ID        uuid.UUID
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t CartToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

type LineItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}
