package handlers

import (
	"time"

	applog "crossbuy/internal/log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// LoginWindow is the throttling window for POST /api/v1/auth/login.
const LoginWindow = 10 * time.Minute

// Mount registers the JSON API and the health check on app.
func (d *Deps) Mount(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Post("/auth/login", limiter.New(limiter.Config{
		Max:        d.LoginMax,
		Expiration: LoginWindow,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			return render(c, fiber.StatusTooManyRequests, fiber.Map{"error": "Too many attempts. Please try again later."})
		},
	}), d.AuthHandler.Login)
	api.Post("/auth/logout", d.AuthHandler.Logout)

	api.Get("/quotations/estimate", limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|estimate"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.estimate.hit", nil)
			return render(c, fiber.StatusTooManyRequests, fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}), d.QuotationHandler.Estimate)

	user := RequireUser(d.Auth)
	admin := RequireAdmin(d.Auth)

	// Orders & payments
	api.Post("/orders", user, d.OrderHandler.Create)
	api.Get("/orders", user, d.OrderHandler.List)
	api.Get("/orders/:id", user, d.OrderHandler.Get)
	api.Patch("/orders/:id", user, d.OrderHandler.Update)
	api.Delete("/orders/:id", admin, d.OrderHandler.Delete)
	api.Post("/orders/:id/accept", user, d.OrderHandler.Accept)
	api.Post("/orders/:id/cancel", user, d.OrderHandler.Cancel)
	api.Get("/orders/:id/history", user, d.OrderHandler.History)
	api.Post("/orders/:id/payments", user, d.OrderHandler.CreatePayment)
	api.Get("/orders/:id/payments", user, d.OrderHandler.ListPayments)
	api.Post("/orders/:id/deduct", admin, d.AdminHandler.Deduct)

	api.Get("/payments/:id", user, d.PaymentHandler.Get)
	api.Post("/payments/:id/confirm", admin, d.PaymentHandler.Confirm)
	api.Post("/payments/:id/fail", admin, d.PaymentHandler.Fail)

	// Catalog & stock (admin)
	api.Get("/products", admin, d.InventoryHandler.Products)
	api.Post("/products", admin, d.InventoryHandler.CreateProduct)
	api.Get("/inventory", admin, d.InventoryHandler.List)
	api.Post("/inventory", admin, d.InventoryHandler.Create)
	api.Get("/inventory/low", admin, d.InventoryHandler.Low)
	api.Get("/inventory/:id/movements", admin, d.InventoryHandler.Movements)
	api.Post("/inventory/:id/movements", admin, d.InventoryHandler.Move)
	api.Get("/inventory/:id/reconcile", admin, d.InventoryHandler.Reconcile)
	api.Delete("/inventory/:id", admin, d.InventoryHandler.Delete)

	api.Get("/audit", admin, d.AdminHandler.AuditLog)

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
}

// ErrorHandler logs and answers with a generic message; internals are never sent to the client.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		return render(c, fe.Code, fiber.Map{"error": fe.Message})
	}
	applog.Error(c, "server.error", err, nil)
	return render(c, fiber.StatusInternalServerError, fiber.Map{"error": "Something went wrong. Please try again."})
}

// NotFound is the catch-all for unknown routes.
func NotFound(c *fiber.Ctx) error {
	return render(c, fiber.StatusNotFound, fiber.Map{"error": "not found"})
}
