package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

var errInvalidBody = errors.New("invalid request body")

// bind decodes the request body into v and validates it.
func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return errInvalidBody
	}
	return c.Validate(v)
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: validationMessage(err), Code: "invalid_request"})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid field " + fe.Field() + ": failed " + fe.Tag()
	}
	return err.Error()
}

// errorStatus maps a service error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound, "document_not_found"
	case errors.Is(err, domain.ErrRequestBlocked):
		return http.StatusForbidden, "request_blocked"
	case domain.IsBackendFailure(err):
		return http.StatusBadGateway, "backend_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError answers with the JSON error body for err.
func writeError(c echo.Context, err error) error {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", c.Request().Method, c.Path(), err)
		msg = "internal server error"
	}
	return c.JSON(status, domain.ErrorResponse{Error: msg, Code: code})
}
