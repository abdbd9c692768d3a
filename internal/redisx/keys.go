package redisx

import (
	"fmt"
	"time"
)

const (
	// Dedup notification delivery: dedup:notify:{dedup_key}
	KeyDedup = "dedup:notify:%s"

	// Last known status per order: order_status:{order_id} -> {"status","updated_at"}
	KeyOrderStatus = "order_status:%s"
)

var (
	TTLDedup       = 48 * time.Hour
	TTLStatusCache = 24 * time.Hour
)

func DedupKey(k string) string { return fmt.Sprintf(KeyDedup, k) }

func OrderStatusKey(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }
