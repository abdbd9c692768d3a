package notify

import (
	"context"
	"sync"
	"time"

	"crossbuy/internal/log"
)

// Async queues events on a buffered inbox drained by a single goroutine. A full inbox drops the
// event with a warning instead of blocking the request that produced it.
type Async struct {
	sink    Sink
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	inbox  chan Event
	done   chan struct{}
}

func NewAsync(sink Sink, buf int) *Async {
	if buf <= 0 {
		buf = 1
	}
	a := &Async{
		sink:    sink,
		timeout: 5 * time.Second,
		inbox:   make(chan Event, buf),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.sink.Send(ctx, e); err != nil {
			log.Warn(nil, "notify.send_failed", err, map[string]any{"event_id": e.ID, "type": e.Type, "order_id": e.OrderID})
		}
		cancel()
	}
}

func (a *Async) Notify(_ context.Context, e Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		log.Warn(nil, "notify.dropped", nil, map[string]any{"event_id": e.ID, "type": e.Type, "reason": "closed"})
		return
	}
	select {
	case a.inbox <- e:
	default:
		log.Warn(nil, "notify.dropped", nil, map[string]any{"event_id": e.ID, "type": e.Type, "reason": "inbox_full"})
	}
}

// Close stops accepting events and waits until the queued ones were handed to the sink.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.inbox)
	}
	a.mu.Unlock()
	<-a.done
}
