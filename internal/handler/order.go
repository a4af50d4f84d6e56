package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kriptapay/payout-engine/internal/httputil"
	"github.com/kriptapay/payout-engine/internal/middleware"
	"github.com/kriptapay/payout-engine/internal/model"
	"github.com/kriptapay/payout-engine/internal/repository"
	"github.com/kriptapay/payout-engine/internal/service"
)

type createOrderRequest struct {
	Chain         string `json:"chain"`
	AmountIDR     string `json:"amountIdr"`
	WalletAddress string `json:"walletAddress"`
	VoucherCode   string `json:"voucherCode,omitempty"`
}

// CreateOrder implements POST /orders (§6).
func (h *Handler) CreateOrder(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	amountIDR, err := httputil.ParseIDR(req.AmountIDR)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid amountIdr"})
	}

	chain, err := h.repo.GetChainBySlug(c.Context(), req.Chain)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown chain"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to resolve chain"})
	}

	order, err := h.orders.CreateOrder(c.Context(), *chain, userID, decimal.NewFromInt(amountIDR), req.WalletAddress, req.VoucherCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderPendingExists):
			pending, _ := h.repo.GetPendingOrderForUser(c.Context(), h.repo.DB(), userID)
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "PENDING_ORDER_EXISTS", "pendingOrder": pending})
		case errors.Is(err, service.ErrInventoryExhausted):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "INVENTORY_EXHAUSTED"})
		case errors.Is(err, service.ErrBelowMinimumAmount):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "BELOW_MINIMUM_AMOUNT", "message": err.Error()})
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"order": order})
}

type createPaymentRequest struct {
	Method string `json:"method"`
}

// Pay implements POST /orders/:id/pay (§6).
func (h *Handler) Pay(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}

	var req createPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	var method model.PaymentMethod
	switch req.Method {
	case string(model.PaymentMethodQRIS):
		method = model.PaymentMethodQRIS
	case string(model.PaymentMethodVA):
		method = model.PaymentMethodVA
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "method must be QRIS or VA"})
	}

	order, err := h.orders.CreatePayment(c.Context(), orderID, method)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
		case errors.Is(err, service.ErrOrderNotPending):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "order is not pending"})
		default:
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
	}

	resp := fiber.Map{
		"orderId":  order.ID,
		"fee":      order.FeeIDR,
		"totalPay": order.TotalPay,
	}
	if order.PaymentURL != nil {
		resp["paymentUrl"] = *order.PaymentURL
	}
	return c.JSON(resp)
}

// Sync implements POST /orders/:id/sync (§6).
func (h *Handler) Sync(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}

	order, err := h.orders.SyncOrder(c.Context(), orderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": order.Status})
}

// Cancel implements POST /orders/:id/cancel (§6).
func (h *Handler) Cancel(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}

	if err := h.orders.CancelOrder(c.Context(), orderID); err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
		case errors.Is(err, service.ErrCancelNotAllowed):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "order can no longer be cancelled"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}
	return c.JSON(fiber.Map{"success": true, "message": "order cancelled"})
}
