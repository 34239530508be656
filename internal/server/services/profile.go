package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cliptube/cliptube/internal/common"
	"github.com/cliptube/cliptube/internal/logging"
	"github.com/cliptube/cliptube/internal/server/models"
	"github.com/cliptube/cliptube/internal/server/repositories/repomanager"
	"github.com/cliptube/cliptube/internal/server/storage"
)

// Media slot names under which profile images are stored.
const (
	SlotAvatars = "avatars"
	SlotCovers  = "covers"
)

// ProfileService serves the account-facing read and update operations:
// fetching the current user, editing full name and email, and replacing
// the avatar or cover image. Image replacement uploads the new object
// first and only then swaps the stored URL, so a failed upload never
// leaves a dangling reference.
type ProfileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	media       storage.MediaStore
	logger      logging.Logger
}

// NewProfileService constructs a ProfileService from its collaborators.
func NewProfileService(db *sql.DB, m repomanager.RepositoryManager, media storage.MediaStore, logger logging.Logger) *ProfileService {
	return &ProfileService{
		db:          db,
		repomanager: m,
		media:       media,
		logger:      logger.With("svc", "profile"),
	}
}

// CurrentUser returns the sanitized profile of the authenticated user.
func (s *ProfileService) CurrentUser(ctx context.Context, userID string) (*models.SanitizedUser, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		s.logger.Error(ctx, "fetching user failed", "user_id", userID, "error", err)
		return nil, common.ErrInternal
	}
	return user.Sanitize(), nil
}

// UpdateAccount replaces the user's full name and email. Both fields are
// required; the email unique constraint surfaces as common.ErrDuplicateUser.
func (s *ProfileService) UpdateAccount(ctx context.Context, userID, fullName, email string) (*models.SanitizedUser, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullName == "" || email == "" {
		return nil, fmt.Errorf("%w: full name and email are required", common.ErrValidation)
	}

	repo := s.repomanager.Users(s.db)
	if err := repo.UpdateProfile(ctx, userID, fullName, email); err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound):
			return nil, common.ErrNotFound
		case errors.Is(err, common.ErrDuplicateUser):
			return nil, common.ErrDuplicateUser
		}
		s.logger.Error(ctx, "updating account failed", "user_id", userID, "error", err)
		return nil, common.ErrInternal
	}

	s.logger.Info(ctx, "account updated", "user_id", userID)
	return s.CurrentUser(ctx, userID)
}

// UpdateAvatar uploads the new avatar image and stores its URL.
func (s *ProfileService) UpdateAvatar(ctx context.Context, userID string, body io.Reader, contentType string) (*models.SanitizedUser, error) {
	return s.updateImage(ctx, userID, SlotAvatars, body, contentType)
}

// UpdateCover uploads the new cover image and stores its URL.
func (s *ProfileService) UpdateCover(ctx context.Context, userID string, body io.Reader, contentType string) (*models.SanitizedUser, error) {
	return s.updateImage(ctx, userID, SlotCovers, body, contentType)
}

func (s *ProfileService) updateImage(ctx context.Context, userID, slot string, body io.Reader, contentType string) (*models.SanitizedUser, error) {
	if body == nil {
		return nil, fmt.Errorf("%w: image file is required", common.ErrValidation)
	}

	url, err := s.media.Upload(ctx, slot, body, contentType)
	if err != nil {
		s.logger.Error(ctx, "media upload failed", "user_id", userID, "slot", slot, "error", err)
		return nil, common.ErrUpload
	}

	repo := s.repomanager.Users(s.db)
	var updateErr error
	switch slot {
	case SlotAvatars:
		updateErr = repo.UpdateAvatar(ctx, userID, url)
	case SlotCovers:
		updateErr = repo.UpdateCover(ctx, userID, url)
	}
	if updateErr != nil {
		if errors.Is(updateErr, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		s.logger.Error(ctx, "storing image url failed", "user_id", userID, "slot", slot, "error", updateErr)
		return nil, common.ErrInternal
	}

	s.logger.Info(ctx, "profile image updated", "user_id", userID, "slot", slot)
	return s.CurrentUser(ctx, userID)
}
