package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cliptube/cliptube/internal/common"
)

// httpError translates a service error into an echo HTTP error. Invalid
// credentials and every token failure map to 401 with a generic message;
// the caller learns nothing about which check failed.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, common.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrDuplicateUser):
		return echo.NewHTTPError(http.StatusConflict, "username or email already taken")
	case errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrStaleToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrTokenInvalidSignature),
		errors.Is(err, common.ErrTokenMalformed),
		errors.Is(err, common.ErrTokenPurposeMismatch):
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, common.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrUpload):
		return echo.NewHTTPError(http.StatusInternalServerError, "media upload failed")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
