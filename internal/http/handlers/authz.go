package handlers

import (
	"crossbuy/internal/domain"
	applog "crossbuy/internal/log"
	"crossbuy/internal/services"

	"github.com/gofiber/fiber/v2"
)

// sessionUser resolves the "sid" cookie; nil when absent or not logged in.
func sessionUser(c *fiber.Ctx, auth *services.AuthService) *domain.User {
	if u, ok := c.Locals("user").(*domain.User); ok && u != nil {
		return u
	}
	sid := c.Cookies("sid")
	if sid == "" {
		return nil
	}
	u, err := auth.CurrentUser(c.UserContext(), sid)
	if err != nil {
		return nil
	}
	return u
}

func attach(c *fiber.Ctx, u *domain.User) {
	c.Locals("user", u)
	c.Locals("user_id", u.ID)
	c.Locals("actor", services.ActorFromUser(u))
}

func RequireAdmin(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := sessionUser(c, auth)
		if u == nil {
			applog.Security(c, "access.denied.anonymous", nil)
			return render(c, fiber.StatusUnauthorized, fiber.Map{"error": "login required"})
		}
		if !u.IsAdmin() {
			c.Locals("user_id", u.ID)
			applog.Security(c, "access.denied.admin", map[string]any{"user_id": u.ID})
			return render(c, fiber.StatusForbidden, fiber.Map{"error": "forbidden"})
		}
		attach(c, u)
		return c.Next()
	}
}

// RequireUser enforces that a user is logged in.
func RequireUser(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := sessionUser(c, auth)
		if u == nil {
			applog.Security(c, "access.denied.anonymous", nil)
			return render(c, fiber.StatusUnauthorized, fiber.Map{"error": "login required"})
		}
		attach(c, u)
		return c.Next()
	}
}
