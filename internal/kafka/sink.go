package kafka

import (
	"context"
	"encoding/json"
	"strconv"

	"crossbuy/internal/notify"

	"github.com/segmentio/kafka-go"
)

// Publisher is the part of Producer the sink needs.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// Sink publishes order notifications as JSON envelopes keyed by order id.
type Sink struct {
	P Publisher
}

func NewSink(p Publisher) *Sink { return &Sink{P: p} }

func (s *Sink) Send(ctx context.Context, e notify.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.P.Publish(ctx, PartitionKey(e.OrderID), b, Headers(e)...)
}

func PartitionKey(orderID string) []byte { return []byte(orderID) }

func Headers(e notify.Event) []kafka.Header {
	return []kafka.Header{
		{Key: "x-event-type", Value: []byte(e.Type)},
		{Key: "x-event-version", Value: []byte(strconv.Itoa(e.Version))},
		{Key: "x-event-id", Value: []byte(e.ID)},
	}
}
