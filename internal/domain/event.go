package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventRoleGranted     EventType = "role.granted"
	EventProductCreated  EventType = "product.created"
	EventProductStatus   EventType = "product.status_changed"
	EventLCCreated       EventType = "lc.created"
	EventLCStatusChanged EventType = "lc.status_changed"
	EventPaymentReleased EventType = "lc.payment_released"
)

// Event is a notification for dashboards and indexers. Sequence is assigned
// inside the serialized section, so it orders events across all components.
type Event struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       EventType         `json:"type"`
	Attributes map[string]string `json:"attributes"`
	OccurredAt time.Time         `json:"occurred_at"`
}

func NewEvent(t EventType, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		Attributes: make(map[string]string),
		OccurredAt: at,
	}
}

func (e Event) With(key, value string) Event {
	e.Attributes[key] = value
	return e
}

// PartitionKey groups events of one LC or product together for ordered
// consumers.
func (e Event) PartitionKey() string {
	if id, ok := e.Attributes["lc_id"]; ok {
		return "lc-" + id
	}
	if id, ok := e.Attributes["product_id"]; ok {
		return "product-" + id
	}
	return e.Attributes["account"]
}
