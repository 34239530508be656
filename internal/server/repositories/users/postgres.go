// Package users provides a PostgreSQL-backed repository for the user
// identity and credential records, including the conditional refresh-token
// update used for rotation.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cliptube/cliptube/internal/common"
	"github.com/cliptube/cliptube/internal/dbx"
	"github.com/cliptube/cliptube/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// both *sql.DB and *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, username, email, password_hash, full_name, avatar_url, cover_url, refresh_token, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var coverURL, refreshToken sql.NullString
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FullName, &user.AvatarURL, &coverURL, &refreshToken,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	user.CoverURL = coverURL.String
	user.RefreshToken = refreshToken.String
	return user, nil
}

// nullable maps "" to SQL NULL so an empty cover or cleared refresh token
// is stored as NULL, not an empty string.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a new user row. A username or email collision surfaces as
// common.ErrDuplicateUser.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash, full_name, avatar_url, cover_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.PasswordHash,
		user.FullName, user.AvatarURL, nullable(user.CoverURL)).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, common.ErrDuplicateUser
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// FindByID returns the user with the given id or common.ErrNotFound.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// FindByLogin returns the user whose username or email equals identifier.
func (r *PostgresRepository) FindByLogin(ctx context.Context, identifier string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, identifier))
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// UpdatePasswordHash replaces the stored password digest.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, hash)
}

// SetRefreshToken unconditionally overwrites the stored refresh token
// (login path).
func (r *PostgresRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	query := `UPDATE users SET refresh_token = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, token)
}

// UpdateRefreshTokenIfMatches swaps the stored refresh token for newToken
// only if the current value equals expected. The single conditional UPDATE
// makes the compare-and-swap atomic: of two concurrent rotations presenting
// the same token, exactly one observes an affected row.
func (r *PostgresRepository) UpdateRefreshTokenIfMatches(ctx context.Context, id, expected, newToken string) (bool, error) {
	query := `UPDATE users SET refresh_token = $3, updated_at = now() WHERE id = $1 AND refresh_token = $2`
	res, err := r.db.ExecContext(ctx, query, id, expected, newToken)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// ClearRefreshToken removes the stored refresh token. Clearing an already
// cleared token is not an error (logout is idempotent).
func (r *PostgresRepository) ClearRefreshToken(ctx context.Context, id string) error {
	query := `UPDATE users SET refresh_token = NULL, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id)
}

// UpdateProfile sets the display fields of the account.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id, fullName, email string) error {
	query := `UPDATE users SET full_name = $2, email = $3, updated_at = now() WHERE id = $1`
	err := r.exec(ctx, query, id, fullName, email)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return common.ErrDuplicateUser
		}
	}
	return err
}

// UpdateAvatar replaces the avatar media reference.
func (r *PostgresRepository) UpdateAvatar(ctx context.Context, id, url string) error {
	query := `UPDATE users SET avatar_url = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, url)
}

// UpdateCover replaces the cover media reference.
func (r *PostgresRepository) UpdateCover(ctx context.Context, id, url string) error {
	query := `UPDATE users SET cover_url = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, url)
}
