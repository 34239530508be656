package users

import (
	"context"

	"github.com/cliptube/cliptube/internal/server/models"
)

// Repository is the persistence interface consumed by the auth service.
//
// UpdateRefreshTokenIfMatches is the atomic conditional update that refresh
// rotation depends on: it must replace the stored refresh token only when
// the current value equals expected, as a single statement, and report
// whether the swap happened.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByLogin(ctx context.Context, identifier string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetRefreshToken(ctx context.Context, id, token string) error
	UpdateRefreshTokenIfMatches(ctx context.Context, id, expected, newToken string) (bool, error)
	ClearRefreshToken(ctx context.Context, id string) error
	UpdateProfile(ctx context.Context, id, fullName, email string) error
	UpdateAvatar(ctx context.Context, id, url string) error
	UpdateCover(ctx context.Context, id, url string) error
}
