package handlers

import (
	"strings"

	applog "crossbuy/internal/log"
	"crossbuy/internal/services"

	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	Orders *services.OrderService
	Audit  *services.AuditTrail
}

// POST /api/v1/orders/:id/deduct
func (h *AdminHandler) Deduct(c *fiber.Ctx) error {
	id := c.Params("id")
	moves, err := h.Orders.RetryDeduction(c.UserContext(), id, actor(c))
	if err != nil {
		return fail(c, "admin.orders.deduct", err)
	}
	applog.Audit(c, "admin.orders.deduct", map[string]any{"order_id": id, "movements": len(moves)})
	return render(c, fiber.StatusOK, fiber.Map{"deducted": moves})
}

// GET /api/v1/audit?entity_type=&entity_id=
func (h *AdminHandler) AuditLog(c *fiber.Ctx) error {
	entries, err := h.Audit.List(c.UserContext(), strings.TrimSpace(c.Query("entity_type")), strings.TrimSpace(c.Query("entity_id")))
	if err != nil {
		return fail(c, "admin.audit.list", err)
	}
	return render(c, fiber.StatusOK, fiber.Map{"entries": entries})
}
