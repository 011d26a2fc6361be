package httpapi

import (
	"errors"

	"prodtrack/internal/domain"

	"github.com/gofiber/fiber/v2"
)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorBody struct {
	Error  string       `json:"error"`
	Code   int          `json:"code"`
	Fields []fieldError `json:"fields,omitempty"`
}

// StatusFor maps a service error onto its HTTP status.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrLocked):
		return fiber.StatusLocked
	case errors.Is(err, domain.ErrState):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := StatusFor(err)
	body := errorBody{Error: err.Error(), Code: code}
	if code == fiber.StatusInternalServerError {
		body.Error = "internal error"
	}
	for _, ve := range domain.ValidationErrors(err) {
		body.Fields = append(body.Fields, fieldError{Field: ve.Field, Message: ve.Message})
	}
	return c.Status(code).JSON(body)
}
