// Package common defines shared constants and sentinel errors used across
// the service, repository, and transport layers. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrDuplicateUser = errors.New("user with this username or email already exists")

	// Validation errors (client input, not retriable as-is).
	ErrValidation = errors.New("validation error")

	// Credential errors. A missing user and a wrong password both surface
	// as ErrInvalidCredentials so that callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrStaleToken marks a structurally valid refresh token that no longer
	// matches the stored value: it was already rotated or revoked.
	ErrStaleToken = errors.New("stale refresh token")

	// Token verification errors. All of them present to clients as a single
	// unauthorized outcome; the distinction exists for logs and tests.
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenPurposeMismatch  = errors.New("token purpose mismatch")

	// Infrastructure errors (safe for the caller to retry, detail is
	// logged server-side and never exposed).
	ErrHashing = errors.New("hashing error")
	ErrUpload  = errors.New("media upload error")

	ErrInternal = errors.New("internal error")
)
