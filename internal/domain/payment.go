package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// MethodSINPE is the manual mobile transfer confirmed by an operator.
const MethodSINPE = "sinpe"

type Payment struct {
	ID            string          `db:"id" json:"id"`
	OrderID       string          `db:"order_id" json:"order_id"`
	Method        string          `db:"method" json:"method"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Currency      string          `db:"currency" json:"currency"`
	Status        PaymentStatus   `db:"status" json:"status"`
	Code          string          `db:"code" json:"code"`
	Reference     string          `db:"reference" json:"reference"`
	FailureReason string          `db:"failure_reason" json:"failure_reason"`
	ConfirmedAt   *time.Time      `db:"confirmed_at" json:"confirmed_at,omitempty"`
	FailedAt      *time.Time      `db:"failed_at" json:"failed_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
