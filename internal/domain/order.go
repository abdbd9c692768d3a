package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusCreated                OrderStatus = "created"
	StatusRequested              OrderStatus = "requested"
	StatusQuoted                 OrderStatus = "quoted"
	StatusPaymentPending         OrderStatus = "payment_pending"
	StatusPaid                   OrderStatus = "paid"
	StatusPurchasedFromStore     OrderStatus = "purchased_from_store"
	StatusArrivedAtForeignLocker OrderStatus = "arrived_at_foreign_locker"
	StatusInTransitToCR          OrderStatus = "in_transit_to_cr"
	StatusArrivedInCR            OrderStatus = "arrived_in_cr"
	StatusInCustoms              OrderStatus = "in_customs"
	StatusReleasedFromCustoms    OrderStatus = "released_from_customs"
	StatusInNationalLocker       OrderStatus = "in_national_locker"
	StatusOutForDelivery         OrderStatus = "out_for_delivery"
	StatusDelivered              OrderStatus = "delivered"
	StatusCancelled              OrderStatus = "cancelled"
)

// Progression lists the non-cancel states in fulfillment order.
var Progression = []OrderStatus{
	StatusCreated, StatusRequested, StatusQuoted, StatusPaymentPending, StatusPaid,
	StatusPurchasedFromStore, StatusArrivedAtForeignLocker, StatusInTransitToCR, StatusArrivedInCR,
	StatusInCustoms, StatusReleasedFromCustoms, StatusInNationalLocker, StatusOutForDelivery,
	StatusDelivered,
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusCreated, StatusRequested, StatusQuoted, StatusPaymentPending, StatusPaid,
		StatusPurchasedFromStore, StatusArrivedAtForeignLocker, StatusInTransitToCR, StatusArrivedInCR,
		StatusInCustoms, StatusReleasedFromCustoms, StatusInNationalLocker, StatusOutForDelivery,
		StatusDelivered, StatusCancelled:
		return st, nil
	}
	return "", Invalid("status", fmt.Sprintf("unknown order status %q", s))
}

func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Next returns the linear successor; terminal states have none.
func (s OrderStatus) Next() (OrderStatus, bool) {
	if s.Terminal() {
		return "", false
	}
	for i, st := range Progression {
		if st == s && i+1 < len(Progression) {
			return Progression[i+1], true
		}
	}
	return "", false
}

// Quotable reports whether setting a price promotes the order to quoted.
func (s OrderStatus) Quotable() bool {
	return s == StatusCreated || s == StatusRequested
}

// CustomerCancellable: once money is confirmed only an admin can cancel.
func (s OrderStatus) CustomerCancellable() bool {
	switch s {
	case StatusCreated, StatusRequested, StatusQuoted, StatusPaymentPending:
		return true
	}
	return false
}

// Tags is a free-form label set persisted as a JSON array.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	return string(b), err
}

func (t *Tags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("tags: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*t = Tags{}
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(t))
}

func (t Tags) Has(tag string) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

type Order struct {
	ID                 string          `db:"id" json:"id"`
	CustomerID         string          `db:"customer_id" json:"customer_id"`
	Link               string          `db:"link" json:"link"`
	ItemName           string          `db:"item_name" json:"item_name"`
	Quantity           int             `db:"quantity" json:"quantity"`
	AddressID          *string         `db:"address_id" json:"address_id,omitempty"`
	LockerID           *string         `db:"locker_id" json:"locker_id,omitempty"`
	Notes              string          `db:"notes" json:"notes"`
	ItemPrice          decimal.Decimal `db:"item_price" json:"item_price"`
	ShippingCost       decimal.Decimal `db:"shipping_cost" json:"shipping_cost"`
	Taxes              decimal.Decimal `db:"taxes" json:"taxes"`
	ServiceFee         decimal.Decimal `db:"service_fee" json:"service_fee"`
	Total              decimal.Decimal `db:"total" json:"total"`
	Status             OrderStatus     `db:"status" json:"status"`
	TrackingNumber     string          `db:"tracking_number" json:"tracking_number"`
	QuotedAt           *time.Time      `db:"quoted_at" json:"quoted_at,omitempty"`
	QuotationExpiresAt *time.Time      `db:"quotation_expires_at" json:"quotation_expires_at,omitempty"`
	AcceptedAt         *time.Time      `db:"accepted_at" json:"accepted_at,omitempty"`
	Tags               Tags            `db:"tags" json:"tags"`
	HasIssue           bool            `db:"has_issue" json:"has_issue"`
	IssueDescription   string          `db:"issue_description" json:"issue_description"`
	ProductID          *string         `db:"product_id" json:"product_id,omitempty"`
	PaymentMethod      string          `db:"payment_method" json:"payment_method"`
	PaymentStatus      string          `db:"payment_status" json:"payment_status"`
	Version            int64           `db:"version" json:"-"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// ComputeTotal is the only way a total is derived.
func (o *Order) ComputeTotal() decimal.Decimal {
	return o.ItemPrice.Add(o.ShippingCost).Add(o.Taxes).Add(o.ServiceFee).Round(2)
}

func (o *Order) OwnedBy(userID string) bool { return userID != "" && o.CustomerID == userID }

type StatusHistory struct {
	ID        string      `db:"id" json:"id"`
	OrderID   string      `db:"order_id" json:"order_id"`
	Status    OrderStatus `db:"status" json:"status"`
	Note      string      `db:"note" json:"note"`
	ActorID   *string     `db:"actor_id" json:"actor_id,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}
