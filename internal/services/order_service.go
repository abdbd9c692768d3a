package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crossbuy/internal/domain"
	"crossbuy/internal/log"
	"crossbuy/internal/notify"
	"crossbuy/internal/repos"
	"crossbuy/internal/validate"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuotationValidity is how long a customer has to accept a quotation.
const QuotationValidity = 7 * 24 * time.Hour

// OrderService owns the order state machine. Every write is a compare-and-set on the order version,
// so two concurrent transitions cannot both succeed.
type OrderService struct {
	Orders  *repos.OrderRepo
	Lockers *repos.LockerRepo
	Inv     *InventoryService
	Audit   *AuditTrail
	Notify  notify.Dispatcher
	Now     func() time.Time
}

func NewOrderService(orders *repos.OrderRepo, lockers *repos.LockerRepo, inv *InventoryService, audit *AuditTrail, n notify.Dispatcher) *OrderService {
	if n == nil {
		n = notify.Discard
	}
	return &OrderService{Orders: orders, Lockers: lockers, Inv: inv, Audit: audit, Notify: n}
}

func (s *OrderService) now() time.Time { return clock(s.Now).now() }

type CreateOrderInput struct {
	CustomerID string  `json:"-"`
	Link       string  `json:"link"`
	ItemName   string  `json:"item_name"`
	Quantity   int     `json:"quantity"`
	AddressID  *string `json:"address_id"`
	LockerID   *string `json:"locker_id"`
	Notes      string  `json:"notes"`
}

func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	if in.CustomerID == "" {
		return domain.Order{}, domain.Invalid("customer_id", "required")
	}
	link, ok := validate.Link(in.Link)
	if !ok {
		return domain.Order{}, domain.Invalid("link", "must be an absolute http(s) URL")
	}
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}
	if !validate.QtyOK(qty) {
		return domain.Order{}, domain.Invalid("quantity", "must be between 1 and 100")
	}
	name, ok := validate.Text(in.ItemName, 200)
	if !ok {
		return domain.Order{}, domain.Invalid("item_name", "too long")
	}
	notes, ok := validate.Text(in.Notes, 2000)
	if !ok {
		return domain.Order{}, domain.Invalid("notes", "too long")
	}

	addressID, lockerID := emptyToNil(in.AddressID), emptyToNil(in.LockerID)
	if addressID == nil && lockerID == nil {
		l, err := s.Lockers.DefaultActive(ctx)
		switch {
		case err == nil:
			lockerID = &l.ID
		case errors.Is(err, domain.ErrNotFound):
			// no default configured; the order ships once a destination is set
		default:
			return domain.Order{}, err
		}
	}

	now := s.now()
	o := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: in.CustomerID,
		Link:       link,
		ItemName:   name,
		Quantity:   qty,
		AddressID:  addressID,
		LockerID:   lockerID,
		Notes:      notes,
		Status:     domain.StatusCreated,
		Tags:       domain.Tags{},
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	actor := in.CustomerID
	h := domain.StatusHistory{OrderID: o.ID, Status: o.Status, Note: "order created", ActorID: &actor, CreatedAt: now}
	if err := s.Orders.Create(ctx, &o, &h); err != nil {
		return domain.Order{}, err
	}

	log.Info(nil, "order.created", map[string]any{"order_id": o.ID, "customer_id": o.CustomerID})
	s.notify(ctx, notify.OrderCreated, &o, nil)
	return o, nil
}

// OrderPatch is a partial update; nil fields are left alone.
type OrderPatch struct {
	ItemPrice    *decimal.Decimal `json:"item_price"`
	ShippingCost *decimal.Decimal `json:"shipping_cost"`
	Taxes        *decimal.Decimal `json:"taxes"`
	ServiceFee   *decimal.Decimal `json:"service_fee"`

	Status         *string `json:"status"`
	TrackingNumber *string `json:"tracking_number"`
	Note           string  `json:"note"`

	ItemName *string `json:"item_name"`
	Notes    *string `json:"notes"`
	Quantity *int    `json:"quantity"`

	Tags             *[]string `json:"tags"`
	HasIssue         *bool     `json:"has_issue"`
	IssueDescription *string   `json:"issue_description"`
	ProductID        *string   `json:"product_id"`
}

func (p OrderPatch) pricing() bool {
	return p.ItemPrice != nil || p.ShippingCost != nil || p.Taxes != nil || p.ServiceFee != nil
}

// adminOnly reports whether the patch touches anything a customer may not change.
func (p OrderPatch) adminOnly() bool {
	return p.pricing() || p.Status != nil || p.TrackingNumber != nil || p.Tags != nil ||
		p.HasIssue != nil || p.IssueDescription != nil || p.ProductID != nil
}

// UpdateResult reports side effects of an update alongside the stored order.
type UpdateResult struct {
	Order      domain.Order       `json:"order"`
	PrevStatus domain.OrderStatus `json:"previous_status"`
	// AutoQuoted is set when pricing a created/requested order moved it to quoted.
	AutoQuoted    bool              `json:"auto_quoted"`
	StatusChanged bool              `json:"status_changed"`
	Deducted      []domain.Movement `json:"deducted,omitempty"`
	DeductionErr  error             `json:"-"`
}

// Update applies a partial update. Totals are always recomputed from the four price components.
func (s *OrderService) Update(ctx context.Context, orderID string, actor Actor, p OrderPatch) (UpdateResult, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return UpdateResult{}, err
	}
	if !actor.canSee(&o) {
		return UpdateResult{}, domain.ErrForbidden
	}
	if !actor.Admin {
		if p.adminOnly() {
			return UpdateResult{}, domain.ErrForbidden
		}
		if !o.Status.Quotable() {
			return UpdateResult{}, domain.ErrNotEditable
		}
	}

	before := o
	expected := o.Version
	now := s.now()
	res := UpdateResult{PrevStatus: o.Status}
	var hist []domain.StatusHistory
	actorID := actor.ID

	if p.ProductID != nil && *p.ProductID != "" {
		if _, err := s.Inv.Products.Get(ctx, *p.ProductID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return UpdateResult{}, domain.Invalid("product_id", "unknown product")
			}
			return UpdateResult{}, err
		}
	}
	if err := applyDetails(&o, p); err != nil {
		return UpdateResult{}, err
	}

	if p.pricing() {
		if o.Status.Terminal() {
			return UpdateResult{}, domain.ErrNotEditable
		}
		changed, err := applyPrices(&o, p)
		if err != nil {
			return UpdateResult{}, err
		}
		// only the first price opens a quotation window; repricing keeps the existing one
		if changed && o.Status.Quotable() {
			expires := now.Add(QuotationValidity)
			o.QuotedAt, o.QuotationExpiresAt = &now, &expires
			o.Status = domain.StatusQuoted
			res.AutoQuoted = true
			hist = append(hist, domain.StatusHistory{
				OrderID: o.ID, Status: o.Status, Note: "quotation issued", ActorID: &actorID, CreatedAt: now,
			})
		}
	}

	if p.Status != nil {
		target, err := domain.ParseOrderStatus(*p.Status)
		if err != nil {
			return UpdateResult{}, err
		}
		// re-setting the current status still records a history row
		if err := moveTo(&o, target, now); err != nil {
			return UpdateResult{}, err
		}
		note, _ := validate.Text(p.Note, 500)
		hist = append(hist, domain.StatusHistory{
			OrderID: o.ID, Status: target, Note: note, ActorID: &actorID, CreatedAt: now,
		})
	}

	o.Total = o.ComputeTotal()
	o.UpdatedAt = now
	if err := s.Orders.CompareAndSwap(ctx, &o, expected, hist...); err != nil {
		return UpdateResult{}, err
	}
	res.Order = o
	res.StatusChanged = o.Status != before.Status

	if actor.Admin {
		s.Audit.Log(ctx, AuditInput{
			ActorID: actor.ID, EntityType: "order", EntityID: o.ID,
			Action: "order.updated", Before: before, After: o, Notes: p.Note,
		})
	}
	if res.AutoQuoted {
		s.notify(ctx, notify.OrderQuoted, &o, map[string]any{"total": o.Total.StringFixed(2)})
	}
	if res.StatusChanged {
		s.afterStatusChange(ctx, &res, before.Status, actor.ID)
	}
	return res, nil
}

// AdvanceStatus is the administrative override: any valid status from any non-terminal one.
func (s *OrderService) AdvanceStatus(ctx context.Context, orderID, adminID, target, tracking, note string) (UpdateResult, error) {
	p := OrderPatch{Status: &target, Note: note}
	if tracking != "" {
		p.TrackingNumber = &tracking
	}
	return s.Update(ctx, orderID, Actor{ID: adminID, Admin: true}, p)
}

// AcceptQuotation lets the owner accept a quotation that has not expired yet. Expiry is checked
// here, at acceptance time; nothing sweeps expired quotations.
func (s *OrderService) AcceptQuotation(ctx context.Context, orderID, customerID string) (domain.Order, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !o.OwnedBy(customerID) {
		return domain.Order{}, domain.ErrForbidden
	}
	if o.Status != domain.StatusQuoted {
		return domain.Order{}, fmt.Errorf("%w: order is %s, not quoted", domain.ErrIllegalTransition, o.Status)
	}
	now := s.now()
	if o.QuotationExpiresAt == nil || now.After(*o.QuotationExpiresAt) {
		return domain.Order{}, domain.ErrQuotationExpired
	}

	prev, expected := o.Status, o.Version
	o.Status = domain.StatusPaymentPending
	o.AcceptedAt = &now
	o.UpdatedAt = now
	h := domain.StatusHistory{OrderID: o.ID, Status: o.Status, Note: "quotation accepted", ActorID: &customerID, CreatedAt: now}
	if err := s.Orders.CompareAndSwap(ctx, &o, expected, h); err != nil {
		return domain.Order{}, err
	}

	log.Info(nil, "order.quotation_accepted", map[string]any{"order_id": o.ID, "from": string(prev)})
	s.notify(ctx, notify.OrderQuotationAccepted, &o, map[string]any{"total": o.Total.StringFixed(2)})
	return o, nil
}

// Cancel: customers may cancel until the payment is confirmed; admins until the order is terminal.
func (s *OrderService) Cancel(ctx context.Context, orderID string, actor Actor, reason string) (domain.Order, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.canSee(&o) {
		return domain.Order{}, domain.ErrForbidden
	}
	if o.Status.Terminal() {
		return domain.Order{}, domain.ErrIllegalTransition
	}
	if !actor.Admin && !o.Status.CustomerCancellable() {
		return domain.Order{}, fmt.Errorf("%w: order is %s", domain.ErrIllegalTransition, o.Status)
	}
	reason, ok := validate.Text(reason, 500)
	if !ok {
		return domain.Order{}, domain.Invalid("reason", "too long")
	}

	before := o
	now := s.now()
	actorID := actor.ID
	o.Status = domain.StatusCancelled
	o.UpdatedAt = now
	h := domain.StatusHistory{OrderID: o.ID, Status: o.Status, Note: reason, ActorID: &actorID, CreatedAt: now}
	if err := s.Orders.CompareAndSwap(ctx, &o, before.Version, h); err != nil {
		return domain.Order{}, err
	}

	if actor.Admin {
		s.Audit.Log(ctx, AuditInput{
			ActorID: actor.ID, EntityType: "order", EntityID: o.ID,
			Action: "order.cancelled", Before: before, After: o, Notes: reason,
		})
	}
	res := UpdateResult{Order: o, StatusChanged: true, PrevStatus: before.Status}
	s.afterStatusChange(ctx, &res, before.Status, actor.ID)
	return o, nil
}

func (s *OrderService) Get(ctx context.Context, orderID string, actor Actor) (domain.Order, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.canSee(&o) {
		return domain.Order{}, domain.ErrForbidden
	}
	return o, nil
}

func (s *OrderService) History(ctx context.Context, orderID string, actor Actor) ([]domain.StatusHistory, error) {
	if _, err := s.Get(ctx, orderID, actor); err != nil {
		return nil, err
	}
	return s.Orders.History(ctx, orderID)
}

// List is scoped to the caller's own orders unless the caller is an admin.
func (s *OrderService) List(ctx context.Context, actor Actor, f repos.OrderFilter) ([]domain.Order, error) {
	if !actor.Admin {
		f.CustomerID = actor.ID
	}
	return s.Orders.List(ctx, f)
}

// Delete removes an order that nothing references yet.
func (s *OrderService) Delete(ctx context.Context, orderID string, actor Actor) error {
	if !actor.Admin {
		return domain.ErrForbidden
	}
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.Orders.Delete(ctx, orderID); err != nil {
		return err
	}
	s.Audit.Log(ctx, AuditInput{
		ActorID: actor.ID, EntityType: "order", EntityID: orderID, Action: "order.deleted", Before: o,
	})
	return nil
}

// RetryDeduction re-runs the stock deduction of a delivered order, taking only what an earlier
// partial deduction left missing.
func (s *OrderService) RetryDeduction(ctx context.Context, orderID string, actor Actor) ([]domain.Movement, error) {
	if !actor.Admin {
		return nil, domain.ErrForbidden
	}
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.StatusDelivered {
		return nil, fmt.Errorf("%w: order is %s, not delivered", domain.ErrIllegalTransition, o.Status)
	}
	if o.ProductID == nil {
		return nil, domain.Invalid("product_id", "order is not linked to a product")
	}
	return s.Inv.DeductForOrder(ctx, o.ID, *o.ProductID, o.Quantity, actor.ID)
}

// markPaid is called once a payment for the order is confirmed. A concurrent edit of unrelated
// fields must not make a confirmed payment bounce, so lost races are retried on fresh state.
func (s *OrderService) markPaid(ctx context.Context, orderID, actorID, note string) (domain.Order, error) {
	for attempt := 0; attempt < 3; attempt++ {
		o, err := s.Orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		if o.Status == domain.StatusPaid {
			return o, nil
		}
		if o.Status.Terminal() {
			return domain.Order{}, domain.ErrIllegalTransition
		}
		prev := o.Status
		now := s.now()
		o.Status = domain.StatusPaid
		o.UpdatedAt = now
		h := domain.StatusHistory{OrderID: o.ID, Status: o.Status, Note: note, ActorID: &actorID, CreatedAt: now}
		err = s.Orders.CompareAndSwap(ctx, &o, o.Version, h)
		if errors.Is(err, domain.ErrStaleWrite) {
			continue
		}
		if err != nil {
			return domain.Order{}, err
		}
		res := UpdateResult{Order: o, StatusChanged: true, PrevStatus: prev}
		s.afterStatusChange(ctx, &res, prev, actorID)
		return o, nil
	}
	return domain.Order{}, domain.ErrStaleWrite
}

// afterStatusChange runs once per committed transition: notifications, and the stock deduction
// when the order has just been delivered. A deduction failure is reported on res and logged; it
// never reverts the status.
func (s *OrderService) afterStatusChange(ctx context.Context, res *UpdateResult, prev domain.OrderStatus, actorID string) {
	o := &res.Order
	log.Info(nil, "order.status_changed", map[string]any{
		"order_id": o.ID, "from": string(prev), "to": string(o.Status), "actor_id": actorID,
	})
	s.notify(ctx, notify.OrderStatusChanged, o, map[string]any{"from": string(prev)})

	switch o.Status {
	case domain.StatusCancelled:
		s.notify(ctx, notify.OrderCancelled, o, nil)
	case domain.StatusDelivered:
		s.notify(ctx, notify.OrderDelivered, o, nil)
		if prev == domain.StatusDelivered || o.ProductID == nil || s.Inv == nil {
			return
		}
		moves, err := s.Inv.DeductForOrder(ctx, o.ID, *o.ProductID, o.Quantity, actorID)
		res.Deducted = moves
		if err != nil {
			res.DeductionErr = err
			log.Error(nil, "order.delivered.deduction_failed", err, map[string]any{
				"order_id": o.ID, "product_id": *o.ProductID, "qty": o.Quantity, "movements": len(moves),
			})
		}
	}
}

func (s *OrderService) notify(ctx context.Context, typ string, o *domain.Order, extra map[string]any) {
	payload := map[string]any{"status": string(o.Status), "version": o.Version}
	for k, v := range extra {
		payload[k] = v
	}
	s.Notify.Notify(ctx, notify.NewEvent(typ, o.ID, o.CustomerID, s.now(), payload))
}

// moveTo applies an administrative status change. Terminal orders never move.
func moveTo(o *domain.Order, target domain.OrderStatus, now time.Time) error {
	if o.Status.Terminal() {
		return fmt.Errorf("%w: order is %s", domain.ErrIllegalTransition, o.Status)
	}
	switch target {
	case domain.StatusQuoted:
		if o.QuotedAt == nil || o.QuotationExpiresAt == nil {
			expires := now.Add(QuotationValidity)
			o.QuotedAt, o.QuotationExpiresAt = &now, &expires
		}
	case domain.StatusPaymentPending:
		if o.AcceptedAt == nil {
			o.AcceptedAt = &now
		}
	}
	o.Status = target
	return nil
}

func applyPrices(o *domain.Order, p OrderPatch) (bool, error) {
	changed := false
	fields := []struct {
		name string
		dst  *decimal.Decimal
		v    *decimal.Decimal
	}{
		{"item_price", &o.ItemPrice, p.ItemPrice},
		{"shipping_cost", &o.ShippingCost, p.ShippingCost},
		{"taxes", &o.Taxes, p.Taxes},
		{"service_fee", &o.ServiceFee, p.ServiceFee},
	}
	for _, f := range fields {
		if f.v == nil {
			continue
		}
		if f.v.IsNegative() {
			return false, domain.Invalid(f.name, "must not be negative")
		}
		v := f.v.Round(2)
		if !f.dst.Equal(v) {
			*f.dst = v
			changed = true
		}
	}
	return changed, nil
}

func applyDetails(o *domain.Order, p OrderPatch) error {
	if p.ItemName != nil {
		v, ok := validate.Text(*p.ItemName, 200)
		if !ok {
			return domain.Invalid("item_name", "too long")
		}
		o.ItemName = v
	}
	if p.Notes != nil {
		v, ok := validate.Text(*p.Notes, 2000)
		if !ok {
			return domain.Invalid("notes", "too long")
		}
		o.Notes = v
	}
	if p.Quantity != nil {
		if !validate.QtyOK(*p.Quantity) {
			return domain.Invalid("quantity", "must be between 1 and 100")
		}
		o.Quantity = *p.Quantity
	}
	if p.TrackingNumber != nil {
		v, ok := validate.Tracking(*p.TrackingNumber)
		if !ok {
			return domain.Invalid("tracking_number", "letters, digits and dashes only")
		}
		o.TrackingNumber = v
	}
	if p.Tags != nil {
		tags, ok := validate.Tags(*p.Tags)
		if !ok {
			return domain.Invalid("tags", "lowercase words, at most 20")
		}
		o.Tags = tags
	}
	if p.HasIssue != nil {
		o.HasIssue = *p.HasIssue
	}
	if p.IssueDescription != nil {
		v, ok := validate.Text(*p.IssueDescription, 1000)
		if !ok {
			return domain.Invalid("issue_description", "too long")
		}
		o.IssueDescription = v
	}
	if p.ProductID != nil {
		o.ProductID = emptyToNil(p.ProductID)
	}
	return nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
