package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crossbuy/internal/notify"

	"github.com/redis/go-redis/v9"
)

// streamClient is the subset of *redis.Client the sink uses.
type streamClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// StreamSink appends notifications to a Redis stream. A SETNX marker per dedup key makes a
// retried transition publish once.
type StreamSink struct {
	rdb    streamClient
	stream string
	maxLen int64
}

func NewStreamSink(rdb streamClient, stream string) *StreamSink {
	return &StreamSink{rdb: rdb, stream: stream, maxLen: 100000}
}

func (s *StreamSink) Send(ctx context.Context, e notify.Event) error {
	key := DedupKey(dedupKey(e))
	first, err := s.rdb.SetNX(ctx, key, e.ID, TTLDedup).Result()
	if err != nil {
		return fmt.Errorf("dedup marker: %w", err)
	}
	if !first {
		return nil
	}

	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":   e.ID,
			"event_type": e.Type,
			"order_id":   e.OrderID,
			"body":       string(body),
		},
	}).Err(); err != nil {
		// let a later retry publish it
		_ = s.rdb.Del(ctx, key).Err()
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}

	if st, ok := e.Payload["status"].(string); ok && e.OrderID != "" {
		sk := OrderStatusKey(e.OrderID)
		if err := s.rdb.HSet(ctx, sk, "status", st, "updated_at", e.OccurredAt.Format(time.RFC3339)).Err(); err != nil {
			return fmt.Errorf("status cache: %w", err)
		}
		_ = s.rdb.Expire(ctx, sk, TTLStatusCache).Err()
	}
	return nil
}

// dedupKey identifies a transition rather than a delivery attempt: order events carry the order
// version they produced.
func dedupKey(e notify.Event) string {
	if v, ok := e.Payload["version"]; ok && e.OrderID != "" {
		return fmt.Sprintf("%s:%s:%v", e.OrderID, e.Type, v)
	}
	return e.ID
}
