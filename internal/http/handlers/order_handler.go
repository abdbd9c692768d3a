package handlers

import (
	"strconv"
	"strings"

	"crossbuy/internal/domain"
	applog "crossbuy/internal/log"
	"crossbuy/internal/repos"
	"crossbuy/internal/services"
	"crossbuy/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type OrderHandler struct {
	Orders   *services.OrderService
	Payments *services.PaymentService
}

// POST /api/v1/orders
func (h *OrderHandler) Create(c *fiber.Ctx) error {
	var in services.CreateOrderInput
	if err := bind(c, &in); err != nil {
		return fail(c, "order.create", err)
	}
	in.CustomerID = actor(c).ID
	o, err := h.Orders.Create(c.UserContext(), in)
	if err != nil {
		return fail(c, "order.create", err)
	}
	applog.Audit(c, "order.create", map[string]any{"order_id": o.ID})
	return render(c, fiber.StatusCreated, o)
}

// GET /api/v1/orders
func (h *OrderHandler) List(c *fiber.Ctx) error {
	f, err := orderFilter(c)
	if err != nil {
		return fail(c, "order.list", err)
	}
	orders, err := h.Orders.List(c.UserContext(), actor(c), f)
	if err != nil {
		return fail(c, "order.list", err)
	}
	return render(c, fiber.StatusOK, fiber.Map{"orders": orders})
}

func orderFilter(c *fiber.Ctx) (repos.OrderFilter, error) {
	var f repos.OrderFilter
	if s := c.Query("status"); s != "" {
		st, err := domain.ParseOrderStatus(s)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	if s := c.Query("customer_id"); s != "" {
		id, ok := validate.ID(s)
		if !ok {
			return f, domain.Invalid("customer_id", "malformed id")
		}
		f.CustomerID = id
	}
	if s := c.Query("from"); s != "" {
		t, ok := validate.Date(s)
		if !ok {
			return f, domain.Invalid("from", "expected RFC3339 or YYYY-MM-DD")
		}
		f.From = &t
	}
	if s := c.Query("to"); s != "" {
		t, ok := validate.Date(s)
		if !ok {
			return f, domain.Invalid("to", "expected RFC3339 or YYYY-MM-DD")
		}
		f.To = &t
	}
	if s := c.Query("has_issue"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return f, domain.Invalid("has_issue", "expected true or false")
		}
		f.HasIssue = &b
	}
	if s := c.Query("tags"); s != "" {
		tags, ok := validate.Tags(strings.Split(s, ","))
		if !ok {
			return f, domain.Invalid("tags", "malformed tag list")
		}
		f.Tags = tags
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, domain.Invalid("limit", "expected a positive number")
		}
		f.Limit = n
	}
	return f, nil
}

// GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	o, err := h.Orders.Get(c.UserContext(), c.Params("id"), actor(c))
	if err != nil {
		return fail(c, "order.get", err)
	}
	return render(c, fiber.StatusOK, o)
}

// PATCH /api/v1/orders/:id
func (h *OrderHandler) Update(c *fiber.Ctx) error {
	var p services.OrderPatch
	if err := bind(c, &p); err != nil {
		return fail(c, "order.update", err)
	}
	res, err := h.Orders.Update(c.UserContext(), c.Params("id"), actor(c), p)
	if err != nil {
		return fail(c, "order.update", err)
	}
	body := fiber.Map{"order": res.Order, "auto_quoted": res.AutoQuoted, "status_changed": res.StatusChanged}
	if res.StatusChanged {
		body["previous_status"] = res.PrevStatus
	}
	if len(res.Deducted) > 0 {
		body["deducted"] = res.Deducted
	}
	if res.DeductionErr != nil {
		// the status change stands; stock needs a retry through /deduct
		body["deduction_error"] = res.DeductionErr.Error()
	}
	applog.Audit(c, "order.update", map[string]any{"order_id": res.Order.ID, "status": string(res.Order.Status)})
	return render(c, fiber.StatusOK, body)
}

// POST /api/v1/orders/:id/accept
func (h *OrderHandler) Accept(c *fiber.Ctx) error {
	o, err := h.Orders.AcceptQuotation(c.UserContext(), c.Params("id"), actor(c).ID)
	if err != nil {
		return fail(c, "order.accept", err)
	}
	applog.Audit(c, "order.accept", map[string]any{"order_id": o.ID, "total": o.Total.StringFixed(2)})
	return render(c, fiber.StatusOK, o)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// POST /api/v1/orders/:id/cancel
func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	var req cancelRequest
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return fail(c, "order.cancel", err)
		}
	}
	o, err := h.Orders.Cancel(c.UserContext(), c.Params("id"), actor(c), req.Reason)
	if err != nil {
		return fail(c, "order.cancel", err)
	}
	applog.Audit(c, "order.cancel", map[string]any{"order_id": o.ID})
	return render(c, fiber.StatusOK, o)
}

// GET /api/v1/orders/:id/history
func (h *OrderHandler) History(c *fiber.Ctx) error {
	hist, err := h.Orders.History(c.UserContext(), c.Params("id"), actor(c))
	if err != nil {
		return fail(c, "order.history", err)
	}
	return render(c, fiber.StatusOK, fiber.Map{"history": hist})
}

// DELETE /api/v1/orders/:id
func (h *OrderHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.Orders.Delete(c.UserContext(), id, actor(c)); err != nil {
		return fail(c, "order.delete", err)
	}
	applog.Audit(c, "order.delete", map[string]any{"order_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}

// POST /api/v1/orders/:id/payments
func (h *OrderHandler) CreatePayment(c *fiber.Ctx) error {
	p, err := h.Payments.Create(c.UserContext(), c.Params("id"), actor(c))
	if err != nil {
		return fail(c, "payment.create", err)
	}
	applog.Audit(c, "payment.create", map[string]any{"order_id": p.OrderID, "payment_id": p.ID})
	return render(c, fiber.StatusCreated, p)
}

// GET /api/v1/orders/:id/payments
func (h *OrderHandler) ListPayments(c *fiber.Ctx) error {
	ps, err := h.Payments.ListForOrder(c.UserContext(), c.Params("id"), actor(c))
	if err != nil {
		return fail(c, "payment.list", err)
	}
	return render(c, fiber.StatusOK, fiber.Map{"payments": ps})
}
