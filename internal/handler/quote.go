package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/kriptapay/payout-engine/internal/httputil"
	"github.com/kriptapay/payout-engine/internal/repository"
)

// GetQuote implements GET /pricing/quote (§6), the only unauthenticated
// read on the Order Engine's own numbers.
func (h *Handler) GetQuote(c *fiber.Ctx) error {
	slug := c.Query("chain")
	if slug == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing chain"})
	}

	amountIDR, err := httputil.ParseIDR(c.Query("amountIdr"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid amountIdr"})
	}

	chain, err := h.repo.GetChainBySlug(c.Context(), slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown chain"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to resolve chain"})
	}

	q, err := h.quote.Quote(c.Context(), *chain, decimal.NewFromInt(amountIDR))
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "failed to build quote"})
	}

	effectivePriceIDR := decimal.Zero
	if q.TokenAmount.IsPositive() {
		effectivePriceIDR = q.AmountIDR.Div(q.TokenAmount)
	}

	return c.JSON(fiber.Map{
		"symbol":            q.Symbol,
		"tokenAmount":       q.TokenAmount,
		"tokenPriceUsd":     q.PriceUSD,
		"usdIdrRate":        q.FXRate,
		"markupPercent":     q.MarkupPercent,
		"effectivePriceIdr": effectivePriceIDR,
		"inventoryStatus":   q.InventoryStatus,
		"maxBuyIdr":         q.MaxBuyIDR,
	})
}
