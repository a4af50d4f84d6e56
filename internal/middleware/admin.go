package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kriptapay/payout-engine/internal/repository"
)

const AdminKey = "is_admin"

// AdminAuth gates the admin surface (§6 "Admin:") behind the admins table,
// checked after TelegramAuth has already resolved the caller's user id.
func AdminAuth(repo *repository.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		isAdmin, err := repo.IsAdmin(c.Context(), userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to check admin status"})
		}
		if !isAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "access denied"})
		}

		c.Locals(AdminKey, true)
		return c.Next()
	}
}
