package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cliptube/cliptube/internal/server/auth"
)

// Deps bundles everything the router needs.
type Deps struct {
	Auth    *AuthHTTP
	Profile *ProfileHTTP
	Codec   *auth.TokenCodec
}

// Register wires all routes onto the echo instance.
func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	api := e.Group("/api/v1/users")
	api.POST("/register", d.Auth.Register)
	api.POST("/login", d.Auth.Login)
	api.POST("/refresh-token", d.Auth.Refresh)

	private := api.Group("")
	private.Use(RequireAuth(d.Codec))
	private.POST("/logout", d.Auth.Logout)
	private.POST("/change-password", d.Auth.ChangePassword)
	private.GET("/current-user", d.Profile.CurrentUser)
	private.PATCH("/update-account", d.Profile.UpdateAccount)
	private.PATCH("/avatar", d.Profile.UpdateAvatar)
	private.PATCH("/cover-image", d.Profile.UpdateCover)
}
