// Package httpserver exposes the authentication and profile services over
// a cookie-based REST API.
package httpserver

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cliptube/cliptube/internal/common"
	"github.com/cliptube/cliptube/internal/logging"
	"github.com/cliptube/cliptube/internal/server/models"
	"github.com/cliptube/cliptube/internal/server/services"
	"github.com/cliptube/cliptube/internal/server/storage"
)

// Authenticator is the service surface the auth handlers depend on.
type Authenticator interface {
	Register(ctx context.Context, p services.RegisterParams) (*models.SanitizedUser, error)
	Login(ctx context.Context, identifier, password string) (*models.SanitizedUser, *services.TokenPair, error)
	Refresh(ctx context.Context, presented string) (*services.TokenPair, error)
	Logout(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

// AuthHTTP holds the handlers for registration, login, refresh, logout,
// and password change.
type AuthHTTP struct {
	Svc        Authenticator
	Media      storage.MediaStore
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Logger     logging.Logger
}

// Register handles multipart registration: text fields plus an avatar file
// (required) and a cover image (optional). Files are uploaded to the media
// store before the user record is created.
func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()

	p := services.RegisterParams{
		FullName: c.FormValue("fullName"),
		Email:    c.FormValue("email"),
		Username: c.FormValue("username"),
		Password: c.FormValue("password"),
	}

	// Check the text fields before uploading anything, so a rejected
	// request never leaves an orphaned media object behind.
	for _, field := range []string{p.FullName, p.Email, p.Username, p.Password} {
		if strings.TrimSpace(field) == "" {
			return httpError(fmt.Errorf("%w: all fields are required", common.ErrValidation))
		}
	}

	avatarURL, err := h.uploadFormFile(c, "avatar", services.SlotAvatars)
	if err != nil {
		return err
	}
	if avatarURL == "" {
		return httpError(common.ErrValidation)
	}
	p.AvatarURL = avatarURL

	coverURL, err := h.uploadFormFile(c, "coverImage", services.SlotCovers)
	if err != nil {
		return err
	}
	p.CoverURL = coverURL

	user, err := h.Svc.Register(ctx, p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, envelope(user, "user registered"))
}

// uploadFormFile uploads the named multipart file, returning "" when the
// part is absent.
func (h *AuthHTTP) uploadFormFile(c echo.Context, field, slot string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return "", nil
	}
	src, err := fh.Open()
	if err != nil {
		h.Logger.Error(c.Request().Context(), "opening multipart file failed", "field", field, "error", err)
		return "", httpError(common.ErrUpload)
	}
	defer src.Close()

	url, err := h.Media.Upload(c.Request().Context(), slot, src, formContentType(fh))
	if err != nil {
		return "", httpError(common.ErrUpload)
	}
	return url, nil
}

func formContentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and establishes the cookie session. The token
// pair is also returned in the body for non-browser clients.
func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}

	user, pair, err := h.Svc.Login(ctx, identifier, req.Password)
	if err != nil {
		return httpError(err)
	}

	h.setSessionCookies(c, pair)
	return c.JSON(http.StatusOK, envelope(echo.Map{
		"user":         user,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "login successful"))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh rotates the session. The incoming refresh token is read from the
// cookie, falling back to the body for non-browser clients.
func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	presented := ""
	if cookie, err := c.Cookie(common.RefreshTokenCookieName); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		var req refreshRequest
		if err := c.Bind(&req); err == nil {
			presented = req.RefreshToken
		}
	}
	if presented == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
	}

	pair, err := h.Svc.Refresh(ctx, presented)
	if err != nil {
		c.SetCookie(deleteCookie(common.AccessTokenCookieName))
		c.SetCookie(deleteCookie(common.RefreshTokenCookieName))
		return httpError(err)
	}

	h.setSessionCookies(c, pair)
	return c.JSON(http.StatusOK, envelope(echo.Map{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "token refreshed"))
}

// Logout revokes the session and clears the cookies. The cookies are
// cleared even when revocation fails, so the browser session always ends.
func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()

	err := h.Svc.Logout(ctx, currentUserID(c))
	c.SetCookie(deleteCookie(common.AccessTokenCookieName))
	c.SetCookie(deleteCookie(common.RefreshTokenCookieName))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, envelope(nil, "logged out"))
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword replaces the password for the authenticated user. The
// session is revoked server-side, so the cookies are cleared too.
func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.ChangePassword(ctx, currentUserID(c), req.OldPassword, req.NewPassword); err != nil {
		return httpError(err)
	}

	c.SetCookie(deleteCookie(common.AccessTokenCookieName))
	c.SetCookie(deleteCookie(common.RefreshTokenCookieName))
	return c.JSON(http.StatusOK, envelope(nil, "password changed"))
}

func (h *AuthHTTP) setSessionCookies(c echo.Context, pair *services.TokenPair) {
	c.SetCookie(createCookie(common.AccessTokenCookieName, pair.AccessToken, h.AccessTTL))
	c.SetCookie(createCookie(common.RefreshTokenCookieName, pair.RefreshToken, h.RefreshTTL))
}
