package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crossbuy/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingSink holds every Send until release is closed.
type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []string
}

func (s *blockingSink) Send(_ context.Context, e notify.Event) error {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e.Type)
	s.mu.Unlock()
	return nil
}

type failingSink struct{ calls int }

func (s *failingSink) Send(context.Context, notify.Event) error {
	s.calls++
	return errors.New("broker down")
}

func TestAsyncDeliversInOrder(t *testing.T) {
	rec := &notify.Recorder{}
	a := notify.NewAsync(rec, 8)

	ctx := context.Background()
	a.Notify(ctx, notify.NewEvent(notify.OrderCreated, "o-1", "u-1", time.Now(), nil))
	a.Notify(ctx, notify.NewEvent(notify.OrderQuoted, "o-1", "u-1", time.Now(), nil))
	a.Close()

	evs := rec.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, notify.OrderCreated, evs[0].Type)
	assert.Equal(t, notify.OrderQuoted, evs[1].Type)
	assert.Equal(t, 1, rec.Count(notify.OrderQuoted, "o-1"))
}

func TestAsyncNeverBlocksWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	a := notify.NewAsync(sink, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			a.Notify(context.Background(), notify.NewEvent(notify.OrderStatusChanged, "o-1", "", time.Now(), nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full inbox")
	}

	close(sink.release)
	a.Close()
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.NotEmpty(t, sink.got)
	assert.Less(t, len(sink.got), 50)
}

func TestAsyncSwallowsSinkErrors(t *testing.T) {
	sink := &failingSink{}
	a := notify.NewAsync(sink, 4)
	a.Notify(context.Background(), notify.NewEvent(notify.PaymentFailed, "o-9", "", time.Now(), nil))
	a.Close()
	assert.Equal(t, 1, sink.calls)

	// after Close, Notify is a logged no-op
	a.Notify(context.Background(), notify.NewEvent(notify.PaymentFailed, "o-9", "", time.Now(), nil))
	assert.Equal(t, 1, sink.calls)
}
