package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"market-engine/src/middleware"
	"market-engine/src/models"
	"market-engine/src/settlement"
)

// retryAfter is suggested to clients whose request lost every retry.
const retryAfter = time.Second

// StatusFor maps a settlement error onto an HTTP status code.
func StatusFor(err error) int {
	var (
		validation *settlement.ValidationError
		notFound   *settlement.NotFoundError
		funds      *settlement.InsufficientFundsError
		shares     *settlement.InsufficientSharesError
		resolved   *settlement.AlreadyResolvedError
		auth       *settlement.NotAuthorizedError
		transient  *settlement.TransientFailure
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &funds), errors.As(err, &shares):
		return fiber.StatusBadRequest
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &resolved):
		return fiber.StatusConflict
	case errors.As(err, &auth):
		return fiber.StatusForbidden
	case errors.As(err, &transient):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse. Internal errors are logged and
// their text withheld from the client.
func respondError(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	body := models.ErrorResponse{Error: err.Error(), Code: settlement.ErrorKind(err)}

	switch status {
	case fiber.StatusServiceUnavailable:
		middleware.RetryAfter(c, retryAfter)
	case fiber.StatusInternalServerError:
		log.Error().
			Err(err).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("Internal error")
		body.Error = "Internal server error"
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
		Error: message,
		Code:  "validation",
	})
}
