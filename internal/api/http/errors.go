package httpapi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/sensor-aggregation/internal/sensor"
	"github.com/i474232898/sensor-aggregation/internal/store"
)

// ErrorHandler maps service errors to status codes and a {msg} body.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx, err error) error {
		code, msg := statusFor(err)
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed", "method", c.Method(), "path", c.Path(), "status", code, "error", err)
		}
		return c.Status(code).JSON(fiber.Map{"msg": msg})
	}
}

func statusFor(err error) (int, string) {
	var fe *fiber.Error
	var ve *sensor.ValidationError
	switch {
	case errors.As(err, &fe):
		if fe.Code == fiber.StatusNotFound {
			return fe.Code, "Not Found"
		}
		return fe.Code, fe.Message
	case errors.As(err, &ve):
		return fiber.StatusBadRequest, ve.Error()
	case errors.Is(err, sensor.ErrAuth):
		return fiber.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, sensor.ErrNotFound):
		return fiber.StatusNotFound, "Not Found"
	case errors.Is(err, sensor.ErrUnsupported):
		return fiber.StatusNotImplemented, "Atomic ingestion is not supported by the configured store"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "Request timed out"
	case errors.Is(err, store.ErrCircuitOpen):
		return fiber.StatusServiceUnavailable, "Service Unavailable"
	default:
		return fiber.StatusInternalServerError, "Internal Server Error"
	}
}
