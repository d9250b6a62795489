package api

import (
	stderrors "errors"

	"github.com/gofiber/fiber/v2"

	"bank-transfer-reconciler/pkg/errors"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error      string         `json:"error"`
	Category   string         `json:"category,omitempty"`
	Message    string         `json:"message"`
	Suggestion string         `json:"suggestion,omitempty"`
	Context    errors.Context `json:"context,omitempty"`
}

// handleError renders err as an ErrorResponse with a status derived from the
// error category.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if stderrors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{Error: "http_error", Message: fe.Message})
	}

	code := fiber.StatusInternalServerError
	body := ErrorResponse{Error: string(errors.CodeUnexpectedError), Message: "internal error"}
	if re, ok := errors.AsReconcilerError(err); ok {
		code = httpStatus(re)
		body = ErrorResponse{
			Error:      string(re.Code),
			Category:   string(re.Category),
			Message:    re.Message,
			Suggestion: re.Suggestion,
			Context:    re.Context,
		}
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Path()).Error("Request failed")
	}
	return c.Status(code).JSON(body)
}

func httpStatus(err *errors.ReconcilerError) int {
	switch err.Category {
	case errors.CategoryValidation:
		return fiber.StatusBadRequest
	case errors.CategoryExtraction:
		return fiber.StatusUnprocessableEntity
	case errors.CategoryNotFound:
		return fiber.StatusNotFound
	case errors.CategoryDuplicate:
		return fiber.StatusConflict
	case errors.CategoryPersistence:
		if err.Code == errors.CodeStateConflict || err.Code == errors.CodeLockFailed {
			return fiber.StatusConflict
		}
		return fiber.StatusServiceUnavailable
	case errors.CategoryNotification:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
