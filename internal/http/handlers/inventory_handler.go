package handlers

import (
	"strings"

	applog "crossbuy/internal/log"
	"crossbuy/internal/services"

	"github.com/gofiber/fiber/v2"
)

type InventoryHandler struct {
	Inv *services.InventoryService
}

// POST /api/v1/inventory
func (h *InventoryHandler) Create(c *fiber.Ctx) error {
	var in services.NewRecord
	if err := bind(c, &in); err != nil {
		return fail(c, "inventory.create", err)
	}
	rec, err := h.Inv.CreateRecord(c.UserContext(), in, actor(c).ID)
	if err != nil {
		return fail(c, "inventory.create", err)
	}
	applog.Audit(c, "inventory.create", map[string]any{"record_id": rec.ID, "product_id": rec.ProductID, "qty": rec.Quantity})
	return render(c, fiber.StatusCreated, rec)
}

// GET /api/v1/inventory?product_id=
func (h *InventoryHandler) List(c *fiber.Ctx) error {
	recs, err := h.Inv.ListRecords(c.UserContext(), strings.TrimSpace(c.Query("product_id")))
	if err != nil {
		return fail(c, "inventory.list", err)
	}
	return render(c, fiber.StatusOK, fiber.Map{"records": recs})
}

// GET /api/v1/inventory/low
func (h *InventoryHandler) Low(c *fiber.Ctx) error {
	recs, err := h.Inv.LowStock(c.UserContext())
	if err != nil {
		return fail(c, "inventory.low", err)
	}
	return render(c, fiber.StatusOK, fiber.Map{"records": recs})
}

// POST /api/v1/inventory/:id/movements
func (h *InventoryHandler) Move(c *fiber.Ctx) error {
	var in services.MovementInput
	if err := bind(c, &in); err != nil {
		return fail(c, "inventory.move", err)
	}
	in.RecordID = c.Params("id")
	in.ActorID = actor(c).ID
	m, err := h.Inv.RecordMovement(c.UserContext(), in)
	if err != nil {
		return fail(c, "inventory.move", err)
	}
	applog.Audit(c, "inventory.move", map[string]any{"record_id": m.RecordID, "kind": string(m.Kind), "delta": m.Delta})
	return render(c, fiber.StatusCreated, m)
}

// GET /api/v1/inventory/:id/movements
func (h *InventoryHandler) Movements(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.Inv.GetRecord(c.UserContext(), id); err != nil {
		return fail(c, "inventory.movements", err)
	}
	ms, err := h.Inv.Movements(c.UserContext(), id)
	if err != nil {
		return fail(c, "inventory.movements", err)
	}
	return render(c, fiber.StatusOK, fiber.Map{"movements": ms})
}

// GET /api/v1/inventory/:id/reconcile
func (h *InventoryHandler) Reconcile(c *fiber.Ctx) error {
	r, err := h.Inv.Reconcile(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, "inventory.reconcile", err)
	}
	return render(c, fiber.StatusOK, r)
}

// DELETE /api/v1/inventory/:id
func (h *InventoryHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.Inv.DeleteRecord(c.UserContext(), id, actor(c).ID); err != nil {
		return fail(c, "inventory.delete", err)
	}
	applog.Audit(c, "inventory.delete", map[string]any{"record_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}

// POST /api/v1/products
func (h *InventoryHandler) CreateProduct(c *fiber.Ctx) error {
	var in services.NewProduct
	if err := bind(c, &in); err != nil {
		return fail(c, "product.create", err)
	}
	p, err := h.Inv.CreateProduct(c.UserContext(), in, actor(c).ID)
	if err != nil {
		return fail(c, "product.create", err)
	}
	applog.Audit(c, "product.create", map[string]any{"product_id": p.ID, "sku": p.SKU})
	return render(c, fiber.StatusCreated, p)
}

// GET /api/v1/products
func (h *InventoryHandler) Products(c *fiber.Ctx) error {
	ps, err := h.Inv.ListProducts(c.UserContext())
	if err != nil {
		return fail(c, "product.list", err)
	}
	return render(c, fiber.StatusOK, fiber.Map{"products": ps})
}
