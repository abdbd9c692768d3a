package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `db:"id" json:"id"`
	SKU       string          `db:"sku" json:"sku"`
	Name      string          `db:"name" json:"name"`
	Cost      decimal.Decimal `db:"cost" json:"cost"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Active    bool            `db:"active" json:"active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// InventoryRecord is one lot: a product held at a location inside a warehouse.
type InventoryRecord struct {
	ID              string     `db:"id" json:"id"`
	ProductID       string     `db:"product_id" json:"product_id"`
	Location        string     `db:"location" json:"location"`
	Warehouse       string     `db:"warehouse" json:"warehouse"`
	Quantity        int        `db:"quantity" json:"quantity"`
	MinQuantity     int        `db:"min_quantity" json:"min_quantity"`
	MaxQuantity     int        `db:"max_quantity" json:"max_quantity"`
	LastRestockedAt *time.Time `db:"last_restocked_at" json:"last_restocked_at,omitempty"`
	Version         int64      `db:"version" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

func (r *InventoryRecord) IsLow() bool { return r.Quantity <= r.MinQuantity }

type MovementKind string

const (
	MovementIn         MovementKind = "in"
	MovementOut        MovementKind = "out"
	MovementAdjustment MovementKind = "adjustment"
	MovementReturn     MovementKind = "return"
	MovementDamaged    MovementKind = "damaged"
	MovementExpired    MovementKind = "expired"
	MovementTransfer   MovementKind = "transfer"
)

func ParseMovementKind(s string) (MovementKind, error) {
	k := MovementKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case MovementIn, MovementOut, MovementAdjustment, MovementReturn, MovementDamaged, MovementExpired, MovementTransfer:
		return k, nil
	}
	return "", Invalid("kind", fmt.Sprintf("unknown movement kind %q", s))
}

// SignedDelta converts a magnitude into the ledger delta for the kind. Inbound and outbound kinds
// take a positive magnitude; adjustment takes the caller's sign.
func (k MovementKind) SignedDelta(magnitude int) (int, error) {
	switch k {
	case MovementIn, MovementReturn:
		if magnitude <= 0 {
			return 0, Invalid("quantity", "must be positive")
		}
		return magnitude, nil
	case MovementOut, MovementDamaged, MovementExpired:
		if magnitude <= 0 {
			return 0, Invalid("quantity", "must be positive")
		}
		return -magnitude, nil
	case MovementAdjustment:
		if magnitude == 0 {
			return 0, Invalid("quantity", "must not be zero")
		}
		return magnitude, nil
	case MovementTransfer:
		return 0, ErrTransferNotAllowed
	}
	return 0, Invalid("kind", fmt.Sprintf("unknown movement kind %q", string(k)))
}

type Movement struct {
	ID          string       `db:"id" json:"id"`
	RecordID    string       `db:"record_id" json:"record_id"`
	ProductID   string       `db:"product_id" json:"product_id"`
	Kind        MovementKind `db:"kind" json:"kind"`
	Delta       int          `db:"delta" json:"delta"`
	ReferenceID *string      `db:"reference_id" json:"reference_id,omitempty"`
	Reason      string       `db:"reason" json:"reason"`
	Source      string       `db:"source" json:"source"`
	ActorID     string       `db:"actor_id" json:"actor_id"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// Movement sources: fulfillment marks stock taken for a delivered order, everything else is manual.
const (
	SourceManual      = "manual"
	SourceFulfillment = "fulfillment"
)
