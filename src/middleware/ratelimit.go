package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/rs/zerolog/log"

	"market-engine/src/config"
)

// ClientID identifies the caller for rate limiting, preferring the proxy
// headers over the socket address.
func ClientID(c *fiber.Ctx) string {
	ip := c.Get("X-Forwarded-For")
	if ip == "" {
		ip = c.Get("X-Real-IP")
	}
	if ip == "" {
		ip = c.IP()
	}
	return ip
}

// RateLimiter allows cfg.Max requests per client in each fixed window.
func RateLimiter(cfg config.RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          cfg.Max,
		Expiration:   cfg.Window,
		KeyGenerator: ClientID,
		LimitReached: func(c *fiber.Ctx) error {
			log.Warn().
				Str("client_ip", ClientID(c)).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("max_requests", cfg.Max).
				Msg("Rate limit exceeded")
			c.Set("X-RateLimit-Window", cfg.Window.String())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
			})
		},
	})
}

// RetryAfter sets the Retry-After header in whole seconds, at least one.
func RetryAfter(c *fiber.Ctx, d time.Duration) {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
}
