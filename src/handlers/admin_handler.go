package handlers

import (
	"crypto/subtle"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"market-engine/src/models"
	"market-engine/src/settlement"
)

// AdminTokenHeader carries the operator token for resolution endpoints.
const AdminTokenHeader = "X-Admin-Token"

type AdminHandler struct {
	Service    *settlement.Service
	adminToken string
	orders     *OrderHandler
}

// NewAdminHandler guards resolution with token. An empty token disables the
// admin endpoints entirely.
func NewAdminHandler(svc *settlement.Service, token string, orders *OrderHandler) *AdminHandler {
	if token == "" {
		log.Warn().Msg("No admin token configured - market resolution is disabled")
	}
	return &AdminHandler{Service: svc, adminToken: token, orders: orders}
}

func (h *AdminHandler) isAdmin(c *fiber.Ctx) bool {
	if h.adminToken == "" {
		return false
	}
	given := c.Get(AdminTokenHeader)
	return subtle.ConstantTimeCompare([]byte(given), []byte(h.adminToken)) == 1
}

func (h *AdminHandler) ResolveMarket(c *fiber.Ctx) error {
	var req models.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return badRequest(c, "Invalid request: malformed JSON")
	}

	report, err := h.Service.ResolveMarket(c.UserContext(), c.Params("marketId"), req.Outcome, h.isAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	if h.orders != nil {
		atomic.AddInt64(&h.orders.MarketsResolved, 1)
	}
	return c.Status(fiber.StatusOK).JSON(settlementResponse(report))
}

// SettleMarket re-runs the payout sweep of a resolved market.
func (h *AdminHandler) SettleMarket(c *fiber.Ctx) error {
	report, err := h.Service.SettleMarket(c.UserContext(), c.Params("marketId"), h.isAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(settlementResponse(report))
}

func settlementResponse(report *settlement.SettlementReport) models.SettlementResponse {
	return models.SettlementResponse{
		MarketID:       report.MarketID,
		Outcome:        string(report.Outcome),
		UsersSettled:   report.UsersSettled,
		EntriesSettled: report.EntriesSettled,
		PayoutCents:    report.PayoutCents,
		OrdersReleased: report.OrdersReleased,
	}
}
