package handlers

import (
	"errors"

	"crossbuy/internal/domain"
	applog "crossbuy/internal/log"
	"crossbuy/internal/services"

	"github.com/gofiber/fiber/v2"
)

func render(c *fiber.Ctx, status int, v any) error {
	return c.Status(status).JSON(v)
}

// fail turns a service error into a response. Anything unclassified is a 500 with a generic
// message; the cause only goes to the log.
func fail(c *fiber.Ctx, action string, err error) error {
	var ve *domain.ValidationError
	var short *domain.InsufficientStockError
	switch {
	case errors.As(err, &ve):
		applog.Security(c, "validation.fail", map[string]any{"action": action, "field": ve.Field})
		return render(c, fiber.StatusBadRequest, fiber.Map{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, domain.ErrForbidden):
		applog.Security(c, "access.denied", map[string]any{"action": action})
		return render(c, fiber.StatusForbidden, fiber.Map{"error": "forbidden"})
	case errors.Is(err, domain.ErrNotFound):
		return render(c, fiber.StatusNotFound, fiber.Map{"error": "not found"})
	case errors.As(err, &short):
		applog.Warn(c, action+".conflict", err, nil)
		return render(c, fiber.StatusConflict, fiber.Map{
			"error": short.Error(), "required": short.Required, "allocated": short.Allocated,
		})
	case errors.Is(err, domain.ErrConflict):
		applog.Warn(c, action+".conflict", err, nil)
		return render(c, fiber.StatusConflict, fiber.Map{"error": err.Error()})
	}
	applog.Error(c, action+".fail", err, nil)
	return render(c, fiber.StatusInternalServerError, fiber.Map{"error": "Something went wrong. Please try again."})
}

// bind decodes the JSON body into v.
func bind(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return domain.Invalid("", "malformed request body")
	}
	return nil
}

// actor is set by RequireUser/RequireAdmin.
func actor(c *fiber.Ctx) services.Actor {
	a, _ := c.Locals("actor").(services.Actor)
	return a
}
