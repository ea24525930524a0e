package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/obafemi/settlecore/internal/pkg/apperrors"
)

// respondError translates the error taxonomy into a JSON error response.
// Internal details never leak to the client; they are logged instead.
func respondError(c *fiber.Ctx, err error) error {
	status := apperrors.HTTPStatus(err)
	message := "something went wrong"

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		if appErr == nil {
			message = "something went wrong"
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   codeForStatus(status),
		"message": message,
	})
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusUnprocessableEntity:
		return "validation_failed"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusConflict:
		return "conflict"
	case fiber.StatusPaymentRequired:
		return "payment_failed"
	case fiber.StatusServiceUnavailable:
		return "service_unavailable"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	default:
		return "internal_server_error"
	}
}
