package notify

import (
	"context"
	"sync"

	"crossbuy/internal/log"
)

// LogSink writes each event as an info line. It is the default when no broker is configured.
type LogSink struct{}

func (LogSink) Send(_ context.Context, e Event) error {
	log.Info(nil, "notify."+e.Type, map[string]any{
		"event_id":    e.ID,
		"order_id":    e.OrderID,
		"customer_id": e.CustomerID,
		"payload":     e.Payload,
	})
	return nil
}

// Recorder keeps every event in memory. Used in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Send(ctx context.Context, e Event) error {
	r.Notify(ctx, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of type typ were recorded for orderID ("" matches any order).
func (r *Recorder) Count(typ, orderID string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Type == typ && (orderID == "" || e.OrderID == orderID) {
			n++
		}
	}
	return n
}
