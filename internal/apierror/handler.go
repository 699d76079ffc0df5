// Package apierror turns handler errors into the JSON error envelope.
package apierror

import (
	"errors"

	"cardsite-backend/internal/logging"
	"cardsite-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// Handler is the fiber ErrorHandler. Only *fiber.Error and validation
// messages reach the client; anything else is logged and answered with 500.
func Handler(c *fiber.Ctx, err error) error {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  verr.Message,
			"fields": verr.Fields,
		})
	}

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return c.Status(ferr.Code).JSON(fiber.Map{
			"error": ferr.Message,
		})
	}

	logging.L.WithError(err).WithField("path", c.Path()).Error("unexpected error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Unexpected server error",
	})
}
