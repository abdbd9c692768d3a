package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	OrderCreated           = "order.created"
	OrderQuoted            = "order.quoted"
	OrderQuotationAccepted = "order.quotation_accepted"
	OrderStatusChanged     = "order.status_changed"
	OrderDelivered         = "order.delivered"
	OrderCancelled         = "order.cancelled"
	PaymentCreated         = "payment.created"
	PaymentConfirmed       = "payment.confirmed"
	PaymentFailed          = "payment.failed"
)

// Event is the envelope every sink receives. OrderID doubles as partition key.
type Event struct {
	ID         string         `json:"event_id"`
	Type       string         `json:"event_type"`
	Version    int            `json:"event_version"`
	OccurredAt time.Time      `json:"occurred_at"`
	Producer   string         `json:"producer"`
	OrderID    string         `json:"order_id"`
	CustomerID string         `json:"customer_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func NewEvent(typ, orderID, customerID string, at time.Time, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Version:    1,
		OccurredAt: at.UTC(),
		Producer:   "crossbuy",
		OrderID:    orderID,
		CustomerID: customerID,
		Payload:    payload,
	}
}

// Dispatcher delivers notifications without blocking the caller and without reporting failures:
// a state transition never fails because a notification could not be sent.
type Dispatcher interface {
	Notify(ctx context.Context, e Event)
}

// Sink is the delivery end behind a Dispatcher.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

type discard struct{}

func (discard) Notify(context.Context, Event) {}

// Discard drops every event.
var Discard Dispatcher = discard{}
