// Package http provides the fiber helpers shared by the inbound routes:
// correlation and access-log middleware, error rendering, request
// validation and health handlers.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	constant "github.com/LerianStudio/beneficiary-pay/pkg/constants"
	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the error body returned by every endpoint.
type ErrorResponse struct {
	Status        int            `json:"-"`
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	CorrelationID string         `json:"correlationId"`
	Timestamp     time.Time      `json:"timestamp"`
	Details       map[string]any `json:"details,omitempty"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

// NewErrorResponse builds an ErrorResponse; status outside the HTTP range becomes 500.
func NewErrorResponse(status int, code, message string, details map[string]any) *ErrorResponse {
	if status < http.StatusContinue || status > 599 {
		status = http.StatusInternalServerError
	}

	if message == "" {
		message = http.StatusText(status)
	}

	return &ErrorResponse{Status: status, Code: code, Message: message, Details: details}
}

// WriteError renders resp, stamping the request correlation id and the current time.
func WriteError(c *fiber.Ctx, resp *ErrorResponse) error {
	out := *resp

	if out.CorrelationID == "" {
		out.CorrelationID = commons.CorrelationIDFromContext(c.UserContext())
	}

	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}

	return c.Status(out.Status).JSON(out)
}

// RenderError writes err through the ErrorResponse contract. Anything that
// is neither an *ErrorResponse nor a *fiber.Error becomes an opaque 500.
func RenderError(c *fiber.Ctx, err error) error {
	if err == nil {
		return nil
	}

	var resp *ErrorResponse
	if errors.As(err, &resp) {
		return WriteError(c, resp)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return WriteError(c, NewErrorResponse(fiberErr.Code, constant.DefaultErrorTitle, fiberErr.Message, nil))
	}

	return WriteError(c, NewErrorResponse(fiber.StatusInternalServerError, constant.CodeInternalError, constant.DefaultInternalErrorMessage, nil))
}
