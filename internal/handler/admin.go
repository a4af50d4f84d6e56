package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type markSuccessRequest struct {
	TxHash string `json:"txHash"`
}

// RetryPayout implements POST /admin/orders/:id/retry (§6).
func (h *Handler) RetryPayout(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}
	if err := h.admin.RetryPayout(c.Context(), orderID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}

// MarkSuccess implements POST /admin/orders/:id/mark-success (§6).
func (h *Handler) MarkSuccess(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}

	var req markSuccessRequest
	if err := c.BodyParser(&req); err != nil || req.TxHash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "txHash is required"})
	}

	if err := h.admin.MarkSuccess(c.Context(), orderID, req.TxHash); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}
