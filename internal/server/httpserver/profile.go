package httpserver

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cliptube/cliptube/internal/common"
	"github.com/cliptube/cliptube/internal/logging"
	"github.com/cliptube/cliptube/internal/server/models"
)

// ProfileManager is the service surface the profile handlers depend on.
type ProfileManager interface {
	CurrentUser(ctx context.Context, userID string) (*models.SanitizedUser, error)
	UpdateAccount(ctx context.Context, userID, fullName, email string) (*models.SanitizedUser, error)
	UpdateAvatar(ctx context.Context, userID string, body io.Reader, contentType string) (*models.SanitizedUser, error)
	UpdateCover(ctx context.Context, userID string, body io.Reader, contentType string) (*models.SanitizedUser, error)
}

// ProfileHTTP holds the handlers for the authenticated account endpoints.
type ProfileHTTP struct {
	Svc    ProfileManager
	Logger logging.Logger
}

// CurrentUser returns the authenticated user's profile.
func (h *ProfileHTTP) CurrentUser(c echo.Context) error {
	user, err := h.Svc.CurrentUser(c.Request().Context(), currentUserID(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, envelope(user, "current user"))
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// UpdateAccount changes the full name and email.
func (h *ProfileHTTP) UpdateAccount(c echo.Context) error {
	var req updateAccountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Svc.UpdateAccount(c.Request().Context(), currentUserID(c), req.FullName, req.Email)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, envelope(user, "account updated"))
}

// UpdateAvatar replaces the avatar image from the multipart "avatar" part.
func (h *ProfileHTTP) UpdateAvatar(c echo.Context) error {
	return h.updateImage(c, "avatar", h.Svc.UpdateAvatar)
}

// UpdateCover replaces the cover image from the multipart "coverImage" part.
func (h *ProfileHTTP) UpdateCover(c echo.Context) error {
	return h.updateImage(c, "coverImage", h.Svc.UpdateCover)
}

func (h *ProfileHTTP) updateImage(
	c echo.Context,
	field string,
	update func(ctx context.Context, userID string, body io.Reader, contentType string) (*models.SanitizedUser, error),
) error {
	fh, err := c.FormFile(field)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, field+" file is required")
	}
	src, err := fh.Open()
	if err != nil {
		h.Logger.Error(c.Request().Context(), "opening multipart file failed", "field", field, "error", err)
		return httpError(common.ErrUpload)
	}
	defer src.Close()

	user, err := update(c.Request().Context(), currentUserID(c), src, formContentType(fh))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, envelope(user, "image updated"))
}
