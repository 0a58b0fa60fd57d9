package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventItemAdded     EventType = "item_added"
	EventItemDecreased EventType = "item_decreased"
	EventItemRemoved   EventType = "item_removed"
	EventItemSet       EventType = "item_quantity_set"
	EventCartCleared   EventType = "cart_cleared"
	EventCartMerged    EventType = "cart_merged"
	EventTokenRotated  EventType = "token_rotated"
)

// Event is emitted after a cart change has been committed.
type Event struct {
	Type       EventType `json:"type"`
	CartID     uuid.UUID `json:"cart_id"`
	ProductID  uuid.UUID `json:"product_id"`
	Quantity   int       `json:"quantity,omitempty"`
	SourceCart uuid.UUID `json:"source_cart_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
