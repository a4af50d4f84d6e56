package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kriptapay/payout-engine/internal/config"
	"github.com/kriptapay/payout-engine/internal/repository"
	"github.com/kriptapay/payout-engine/internal/service"
)

// Handler groups the fiber route handlers for the HTTP surface of §6, one
// struct with many methods rather than one handler type per resource.
type Handler struct {
	cfg      *config.Config
	repo     *repository.Repository
	orders   *service.OrderService
	quote    *service.QuoteService
	webhook  *service.WebhookService
	admin    *service.AdminService
	referral *service.ReferralService
	log      *zap.Logger
}

func New(
	cfg *config.Config,
	repo *repository.Repository,
	orders *service.OrderService,
	quote *service.QuoteService,
	webhook *service.WebhookService,
	admin *service.AdminService,
	referral *service.ReferralService,
	log *zap.Logger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		repo:     repo,
		orders:   orders,
		quote:    quote,
		webhook:  webhook,
		admin:    admin,
		referral: referral,
		log:      log,
	}
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
