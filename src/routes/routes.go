package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"market-engine/src/config"
	"market-engine/src/handlers"
	"market-engine/src/middleware"
)

func SetupRoutes(app *fiber.App, cfg config.ServerConfig, orderHandler *handlers.OrderHandler, adminHandler *handlers.AdminHandler) *middleware.ServiceAvailability {
	serviceAvailability := middleware.ServiceAvailabilityFromConfig(cfg)
	app.Use(middleware.RequestID())
	app.Use(serviceAvailability.Middleware())
	app.Use(middleware.RequestLogger(cfg.RequestLogDisabled))

	api := app.Group("/api/v1")

	if !cfg.RateLimit.Disabled {
		api.Use(middleware.RateLimiter(cfg.RateLimit))
	}

	markets := api.Group("/markets/:marketId")
	markets.Post("/orders", orderHandler.SubmitOrder)
	markets.Delete("/orders/:orderId", orderHandler.CancelOrder)
	markets.Get("/orderbook", orderHandler.GetOrderBook)
	markets.Post("/resolve", adminHandler.ResolveMarket)
	markets.Post("/settle", adminHandler.SettleMarket)

	app.Get("/health", orderHandler.HealthCheck)
	app.Get("/metrics", orderHandler.Metrics)
	app.Get("/metrics/prometheus", adaptor.HTTPHandler(promhttp.Handler()))

	return serviceAvailability
}

// Endpoints lists the registered API for the startup log.
func Endpoints() []string {
	return []string{
		"POST   /api/v1/markets/:marketId/orders",
		"DELETE /api/v1/markets/:marketId/orders/:orderId",
		"GET    /api/v1/markets/:marketId/orderbook",
		"POST   /api/v1/markets/:marketId/resolve",
		"POST   /api/v1/markets/:marketId/settle",
		"GET    /health",
		"GET    /metrics",
		"GET    /metrics/prometheus",
	}
}
