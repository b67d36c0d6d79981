package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"docregistry/internal/http/middleware"
	"docregistry/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: middleware.RequestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

var serviceStatus = map[string]int{
	service.CodeNotFound:            fiber.StatusNotFound,
	service.CodeOwnershipRequired:   fiber.StatusForbidden,
	service.CodeUnauthorized:        fiber.StatusForbidden,
	service.CodeAdminOnly:           fiber.StatusForbidden,
	service.CodeInvalidTitle:        fiber.StatusBadRequest,
	service.CodeInvalidVolume:       fiber.StatusBadRequest,
	service.CodeTagValidationFailed: fiber.StatusBadRequest,
}

// writeServiceError translates a registry failure into its status and code.
// The message of a known failure kind is safe to return; anything else is reported as internal.
func writeServiceError(c *fiber.Ctx, err error) error {
	code := service.Code(err)
	status, ok := serviceStatus[code]
	if !ok {
		return writeError(c, fiber.StatusInternalServerError, service.CodeInternal, "internal server error")
	}
	return writeError(c, status, code, err.Error())
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var e *fiber.Error
		if errors.As(err, &e) {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusUnauthorized:
			return writeError(c, status, "UNAUTHENTICATED", e.Message)
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
