package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kriptapay/payout-engine/internal/service"
)

// Webhook implements POST /payments/webhook (§6, §4.10). Only a signature
// mismatch is rejected with a non-200; every other outcome — unknown
// order, amount mismatch, internal error — returns 200 so the gateway
// never retries (§4.10 step 6).
func (h *Handler) Webhook(c *fiber.Ctx) error {
	var n service.WebhookNotification
	if err := c.BodyParser(&n); err != nil {
		return c.SendStatus(fiber.StatusOK)
	}

	if !h.webhook.VerifySignature(n) {
		h.log.Warn("webhook: signature mismatch", zap.String("order_id", n.OrderID))
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid signature"})
	}

	if err := h.webhook.Handle(c.Context(), n); err != nil {
		h.log.Error("webhook: handle failed", zap.Error(err))
	}
	return c.SendStatus(fiber.StatusOK)
}
