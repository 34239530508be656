package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cliptube/cliptube/internal/common"
	"github.com/cliptube/cliptube/internal/server/auth"
)

// userIDKey is the echo context key under which RequireAuth stores the
// authenticated user's id.
const userIDKey = "user_id"

// RequireAuth verifies the access token from the accessToken cookie or the
// Authorization: Bearer header and stores the subject on the context. Any
// failure clears the session cookies and answers 401.
func RequireAuth(codec *auth.TokenCodec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				if cookie, err := c.Cookie(common.AccessTokenCookieName); err == nil {
					token = cookie.Value
				}
			}
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}

			claims, err := codec.Verify(token, auth.PurposeAccess)
			if err != nil {
				c.SetCookie(deleteCookie(common.AccessTokenCookieName))
				c.SetCookie(deleteCookie(common.RefreshTokenCookieName))
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set(userIDKey, claims.Subject)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// currentUserID returns the id RequireAuth stored on the context.
func currentUserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}
