// Package services contains the server-side business logic. This file
// implements AuthService, which orchestrates registration, login, refresh
// rotation, logout, and password changes over the user repository, the
// password hasher, and the token codec.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cliptube/cliptube/internal/common"
	"github.com/cliptube/cliptube/internal/dbx"
	"github.com/cliptube/cliptube/internal/logging"
	"github.com/cliptube/cliptube/internal/server/auth"
	"github.com/cliptube/cliptube/internal/server/models"
	"github.com/cliptube/cliptube/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh
// token. It is an ephemeral value, never persisted as such: only the
// refresh token string is stored on the user row.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegisterParams carries the registration input. AvatarURL must already be
// a resolved media URL; uploading is the transport layer's concern.
type RegisterParams struct {
	FullName  string
	Email     string
	Username  string
	Password  string
	AvatarURL string
	CoverURL  string
}

// AuthService provides authentication-related operations:
//   - Register: create users after validation and uniqueness checks
//   - Login: verify credentials and mint a token pair
//   - Refresh: rotate the stored refresh token and mint a new pair
//   - Logout: revoke the stored refresh token
//   - ChangePassword: re-hash credentials (and revoke the session)
//
// All operations are request-scoped; the only cross-request state is the
// user row in the repository.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *auth.PasswordHasher
	codec       *auth.TokenCodec
	logger      logging.Logger
}

// NewAuthService constructs an AuthService from its collaborators.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, hasher *auth.PasswordHasher, codec *auth.TokenCodec, logger logging.Logger) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		codec:       codec,
		logger:      logger.With("svc", "auth"),
	}
}

// Register validates the input, checks username/email uniqueness, and
// persists a new user with no active session. The uniqueness check and the
// insert run in one transaction; the unique constraints on the table catch
// the remaining race and also surface as common.ErrDuplicateUser.
func (s *AuthService) Register(ctx context.Context, p RegisterParams) (*models.SanitizedUser, error) {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Username = strings.ToLower(strings.TrimSpace(p.Username))

	if p.FullName == "" || p.Email == "" || p.Username == "" || strings.TrimSpace(p.Password) == "" {
		return nil, fmt.Errorf("%w: all fields are required", common.ErrValidation)
	}
	if p.AvatarURL == "" {
		return nil, fmt.Errorf("%w: avatar is required", common.ErrValidation)
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "error", err)
		return nil, common.ErrInternal
	}

	user := &models.User{
		Username:     p.Username,
		Email:        p.Email,
		PasswordHash: hash,
		FullName:     p.FullName,
		AvatarURL:    p.AvatarURL,
		CoverURL:     p.CoverURL,
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		for _, identifier := range []string{p.Username, p.Email} {
			if _, err := repo.FindByLogin(ctx, identifier); err == nil {
				return common.ErrDuplicateUser
			} else if !errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("error checking uniqueness: %w", err)
			}
		}
		_, err := repo.Create(ctx, user)
		return err
	}); err != nil {
		if errors.Is(err, common.ErrDuplicateUser) {
			return nil, common.ErrDuplicateUser
		}
		s.logger.Error(ctx, "user creation failed", "error", err)
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID, "username", user.Username)
	return user.Sanitize(), nil
}

// Login verifies the password for the user identified by username or email
// and, on success, issues a fresh token pair, overwriting the stored
// refresh token. A missing user and a wrong password are indistinguishable
// to the caller.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*models.SanitizedUser, *TokenPair, error) {
	if strings.TrimSpace(identifier) == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: identifier and password are required", common.ErrValidation)
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.FindByLogin(ctx, strings.ToLower(strings.TrimSpace(identifier)))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Warn(ctx, "login failed", "reason", "unknown identifier")
			return nil, nil, common.ErrInvalidCredentials
		}
		s.logger.Error(ctx, "login failed", "error", err)
		return nil, nil, common.ErrInternal
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error(ctx, "password verification failed", "user_id", user.ID, "error", err)
		return nil, nil, common.ErrInternal
	}
	if !ok {
		s.logger.Warn(ctx, "login failed", "reason", "password mismatch", "user_id", user.ID)
		return nil, nil, common.ErrInvalidCredentials
	}

	pair, err := s.issueTokenPair(user.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		s.logger.Error(ctx, "storing refresh token failed", "user_id", user.ID, "error", err)
		return nil, nil, common.ErrInternal
	}

	s.logger.Info(ctx, "login successful", "user_id", user.ID)
	return user.Sanitize(), pair, nil
}

// Refresh validates the presented refresh token, rotates the stored value,
// and returns a fresh token pair. The compare-then-overwrite is a single
// conditional update: of any number of concurrent calls presenting the same
// valid token, exactly one succeeds and every other fails with
// common.ErrStaleToken.
func (s *AuthService) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	claims, err := s.codec.Verify(presented, auth.PurposeRefresh)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Warn(ctx, "refresh failed", "reason", "subject not found", "user_id", claims.Subject)
			return nil, common.ErrInvalidCredentials
		}
		s.logger.Error(ctx, "refresh failed", "error", err)
		return nil, common.ErrInternal
	}

	pair, err := s.issueTokenPair(user.ID)
	if err != nil {
		return nil, err
	}

	swapped, err := repo.UpdateRefreshTokenIfMatches(ctx, user.ID, presented, pair.RefreshToken)
	if err != nil {
		s.logger.Error(ctx, "rotating refresh token failed", "user_id", user.ID, "error", err)
		return nil, common.ErrInternal
	}
	if !swapped {
		s.logger.Warn(ctx, "refresh failed", "reason", "stale token", "user_id", user.ID)
		return nil, common.ErrStaleToken
	}

	return pair, nil
}

// Logout revokes the stored refresh token. It is idempotent: logging out an
// already-logged-out (or unknown) user is a no-op success.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	repo := s.repomanager.Users(s.db)
	if err := repo.ClearRefreshToken(ctx, userID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		s.logger.Error(ctx, "logout failed", "user_id", userID, "error", err)
		return common.ErrInternal
	}
	return nil
}

// ChangePassword verifies the old password and replaces the stored digest.
// It also clears the stored refresh token: a password change revokes the
// existing session and forces re-authentication.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: new password is required", common.ErrValidation)
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrInvalidCredentials
		}
		s.logger.Error(ctx, "change password failed", "user_id", userID, "error", err)
		return common.ErrInternal
	}

	ok, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		s.logger.Error(ctx, "password verification failed", "user_id", userID, "error", err)
		return common.ErrInternal
	}
	if !ok {
		s.logger.Warn(ctx, "change password failed", "reason", "old password mismatch", "user_id", userID)
		return common.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "user_id", userID, "error", err)
		return common.ErrInternal
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repoTx := s.repomanager.Users(tx)
		if err := repoTx.UpdatePasswordHash(ctx, userID, hash); err != nil {
			return err
		}
		return repoTx.ClearRefreshToken(ctx, userID)
	}); err != nil {
		s.logger.Error(ctx, "persisting new password failed", "user_id", userID, "error", err)
		return common.ErrInternal
	}

	s.logger.Info(ctx, "password changed", "user_id", userID)
	return nil
}

func (s *AuthService) issueTokenPair(userID string) (*TokenPair, error) {
	access, err := s.codec.Issue(auth.PurposeAccess, userID)
	if err != nil {
		return nil, common.ErrInternal
	}
	refresh, err := s.codec.Issue(auth.PurposeRefresh, userID)
	if err != nil {
		return nil, common.ErrInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
