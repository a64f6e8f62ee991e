package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"cirvee_lms/internal/apperrors"
)

// errorResponse is the JSON envelope every failed request gets.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CustomErrorHandler maps domain errors to their HTTP status and renders the
// JSON error envelope. Echo HTTPErrors pass through with their own status.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	kind := string(apperrors.KindInternal)
	message := "something went wrong"

	var appErr *apperrors.Error
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = apperrors.HTTPStatus(appErr)
		kind = string(appErr.Kind)
		message = appErr.Message
	case errors.As(err, &httpErr):
		code = httpErr.Code
		kind = kindForStatus(code)
		if msg, ok := httpErr.Message.(string); ok && msg != "" {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	}

	if code >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	if err := c.JSON(code, errorResponse{Error: errorBody{Kind: kind, Message: message}}); err != nil {
		c.Logger().Error(err)
	}
}

func kindForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return string(apperrors.KindValidation)
	case http.StatusUnauthorized, http.StatusForbidden:
		return string(apperrors.KindForbidden)
	case http.StatusNotFound:
		return string(apperrors.KindNotFound)
	case http.StatusConflict:
		return string(apperrors.KindConflict)
	default:
		return string(apperrors.KindInternal)
	}
}
