package handlers

import (
	applog "crossbuy/internal/log"
	"crossbuy/internal/services"

	"github.com/gofiber/fiber/v2"
)

type PaymentHandler struct {
	Payments *services.PaymentService
}

type resolveRequest struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// GET /api/v1/payments/:id
func (h *PaymentHandler) Get(c *fiber.Ctx) error {
	p, err := h.Payments.Get(c.UserContext(), c.Params("id"), actor(c))
	if err != nil {
		return fail(c, "payment.get", err)
	}
	return render(c, fiber.StatusOK, p)
}

// POST /api/v1/payments/:id/confirm
func (h *PaymentHandler) Confirm(c *fiber.Ctx) error {
	var req resolveRequest
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return fail(c, "payment.confirm", err)
		}
	}
	p, err := h.Payments.Confirm(c.UserContext(), c.Params("id"), actor(c).ID, req.Reference)
	if err != nil {
		return fail(c, "payment.confirm", err)
	}
	applog.Audit(c, "payment.confirm", map[string]any{"payment_id": p.ID, "order_id": p.OrderID})
	return render(c, fiber.StatusOK, p)
}

// POST /api/v1/payments/:id/fail
func (h *PaymentHandler) Fail(c *fiber.Ctx) error {
	var req resolveRequest
	if err := bind(c, &req); err != nil {
		return fail(c, "payment.fail", err)
	}
	p, err := h.Payments.Fail(c.UserContext(), c.Params("id"), actor(c).ID, req.Reason)
	if err != nil {
		return fail(c, "payment.fail", err)
	}
	applog.Audit(c, "payment.fail", map[string]any{"payment_id": p.ID, "order_id": p.OrderID})
	return render(c, fiber.StatusOK, p)
}
