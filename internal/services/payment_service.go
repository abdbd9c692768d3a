package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crossbuy/internal/domain"
	"crossbuy/internal/log"
	"crossbuy/internal/notify"
	"crossbuy/internal/repos"
	"crossbuy/internal/validate"

	"github.com/google/uuid"
)

// PaymentService reconciles manual SINPE transfers against orders awaiting payment.
type PaymentService struct {
	Payments *repos.PaymentRepo
	Orders   *OrderService
	Audit    *AuditTrail
	Notify   notify.Dispatcher
	Currency string
	Now      func() time.Time
}

func NewPaymentService(payments *repos.PaymentRepo, orders *OrderService, audit *AuditTrail, n notify.Dispatcher, currency string) *PaymentService {
	if n == nil {
		n = notify.Discard
	}
	if currency == "" {
		currency = "CRC"
	}
	return &PaymentService{Payments: payments, Orders: orders, Audit: audit, Notify: n, Currency: currency}
}

func (s *PaymentService) now() time.Time { return clock(s.Now).now() }

// paymentCode is the short reference the customer quotes in the transfer description.
func paymentCode() string {
	return "PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Create opens the single pending payment of an order awaiting payment. The amount is the order
// total at this moment.
func (s *PaymentService) Create(ctx context.Context, orderID string, actor Actor) (domain.Payment, error) {
	o, err := s.Orders.Get(ctx, orderID, actor)
	if err != nil {
		return domain.Payment{}, err
	}
	if o.Status != domain.StatusPaymentPending {
		return domain.Payment{}, fmt.Errorf("%w: order is %s, not payment_pending", domain.ErrIllegalTransition, o.Status)
	}

	p := domain.Payment{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		Method:    domain.MethodSINPE,
		Amount:    o.Total,
		Currency:  s.Currency,
		Status:    domain.PaymentPending,
		CreatedAt: s.now(),
	}
	for attempt := 0; attempt < 5; attempt++ {
		p.Code = paymentCode()
		err = s.Payments.CreatePending(ctx, &p)
		if !errors.Is(err, repos.ErrCodeTaken) {
			break
		}
	}
	if err != nil {
		return domain.Payment{}, err
	}

	log.Info(nil, "payment.created", map[string]any{"payment_id": p.ID, "order_id": o.ID, "code": p.Code})
	s.notify(ctx, notify.PaymentCreated, &p, o.CustomerID)
	return p, nil
}

// Confirm marks a pending payment confirmed and moves the order to paid.
func (s *PaymentService) Confirm(ctx context.Context, paymentID, adminID, reference string) (domain.Payment, error) {
	ref, ok := validate.Text(reference, 120)
	if !ok {
		return domain.Payment{}, domain.Invalid("reference", "too long")
	}
	p, err := s.Payments.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.Status != domain.PaymentPending {
		return domain.Payment{}, domain.ErrPaymentNotPending
	}
	o, err := s.Orders.Orders.Get(ctx, p.OrderID)
	if err != nil {
		return domain.Payment{}, err
	}
	if o.Status.Terminal() {
		return domain.Payment{}, fmt.Errorf("%w: order is %s", domain.ErrIllegalTransition, o.Status)
	}

	before := p
	now := s.now()
	p.Status = domain.PaymentConfirmed
	p.Reference = ref
	p.ConfirmedAt = &now
	if err := s.Payments.Resolve(ctx, &p, now); err != nil {
		return domain.Payment{}, err
	}
	s.Audit.Log(ctx, AuditInput{
		ActorID: adminID, EntityType: "payment", EntityID: p.ID,
		Action: "payment.confirmed", Before: before, After: p, Notes: ref,
	})

	note := fmt.Sprintf("payment %s confirmed", p.Code)
	if ref != "" {
		note += " (ref " + ref + ")"
	}
	if _, err := s.Orders.markPaid(ctx, p.OrderID, adminID, note); err != nil {
		// the money is in; the order needs an operator to look at it
		log.Error(nil, "payment.confirm.order_not_paid", err, map[string]any{"payment_id": p.ID, "order_id": p.OrderID})
		return p, fmt.Errorf("payment confirmed but order not marked paid: %w", err)
	}
	s.notify(ctx, notify.PaymentConfirmed, &p, o.CustomerID)
	return p, nil
}

// Fail records a rejected transfer. The order keeps its status so the customer can pay again.
func (s *PaymentService) Fail(ctx context.Context, paymentID, adminID, reason string) (domain.Payment, error) {
	reason, ok := validate.Text(reason, 500)
	if !ok || reason == "" {
		return domain.Payment{}, domain.Invalid("reason", "required, at most 500 characters")
	}
	p, err := s.Payments.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.Status != domain.PaymentPending {
		return domain.Payment{}, domain.ErrPaymentNotPending
	}

	before := p
	now := s.now()
	p.Status = domain.PaymentFailed
	p.FailureReason = reason
	p.FailedAt = &now
	if err := s.Payments.Resolve(ctx, &p, now); err != nil {
		return domain.Payment{}, err
	}

	s.Audit.Log(ctx, AuditInput{
		ActorID: adminID, EntityType: "payment", EntityID: p.ID,
		Action: "payment.failed", Before: before, After: p, Notes: reason,
	})
	customerID := ""
	if o, err := s.Orders.Orders.Get(ctx, p.OrderID); err == nil {
		customerID = o.CustomerID
	}
	s.notify(ctx, notify.PaymentFailed, &p, customerID)
	return p, nil
}

func (s *PaymentService) Get(ctx context.Context, paymentID string, actor Actor) (domain.Payment, error) {
	p, err := s.Payments.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if _, err := s.Orders.Get(ctx, p.OrderID, actor); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

func (s *PaymentService) ListForOrder(ctx context.Context, orderID string, actor Actor) ([]domain.Payment, error) {
	if _, err := s.Orders.Get(ctx, orderID, actor); err != nil {
		return nil, err
	}
	return s.Payments.ListByOrder(ctx, orderID)
}

func (s *PaymentService) notify(ctx context.Context, typ string, p *domain.Payment, customerID string) {
	s.Notify.Notify(ctx, notify.NewEvent(typ, p.OrderID, customerID, s.now(), map[string]any{
		"payment_id": p.ID,
		"code":       p.Code,
		"amount":     p.Amount.StringFixed(2),
		"currency":   p.Currency,
		"payment":    string(p.Status),
	}))
}
