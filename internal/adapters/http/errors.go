package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/locus/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, conflict, bad_gateway, ...
	Message   string `json:"message"` // Human-readable message
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errConflict returns a 409 error.
func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusConflict, "conflict", msg)
}

// errFromDomain maps an engine error onto the API error envelope.
func errFromDomain(c *fiber.Ctx, err error) error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		reqID, _ := c.Locals("requestid").(string)
		return c.Status(fiber.StatusBadRequest).JSON(APIError{
			Status:    fiber.StatusBadRequest,
			Code:      "validation_failed",
			Message:   ve.Message,
			Field:     ve.Field,
			RequestID: reqID,
		})
	case errors.Is(err, domain.ErrValidation):
		return newError(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, err.Error())
	case errors.Is(err, domain.ErrBusy):
		return errConflict(c, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return newError(c, fiber.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrNoSelection):
		return newError(c, fiber.StatusConflict, "no_selection", err.Error())
	case errors.Is(err, domain.ErrNotConfirmed):
		return newError(c, fiber.StatusPreconditionFailed, "not_confirmed", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return newError(c, fiber.StatusGatewayTimeout, "timeout", "backend did not answer in time")
	case errors.Is(err, domain.ErrBackend):
		return newError(c, fiber.StatusBadGateway, "bad_gateway", err.Error())
	}
	LoggerFromCtx(c.UserContext()).Error("unhandled engine error", "path", c.Path(), "error", err)
	return errInternal(c, err.Error())
}
