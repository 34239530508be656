package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cliptube/cliptube/internal/common"
)

// TokenPurpose distinguishes access tokens from refresh tokens. The purpose
// is embedded in the claims, so a refresh token can never be presented where
// an access token is expected and vice versa.
type TokenPurpose string

const (
	PurposeAccess  TokenPurpose = "access"
	PurposeRefresh TokenPurpose = "refresh"
)

// Claims are the verified contents of a token.
type Claims struct {
	Purpose TokenPurpose `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies signed HS256 tokens. Access and refresh
// tokens are signed with independent secrets, so possession of one secret
// never allows forging the other kind.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenCodec(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (c *TokenCodec) secretFor(purpose TokenPurpose) ([]byte, error) {
	switch purpose {
	case PurposeAccess:
		return c.accessSecret, nil
	case PurposeRefresh:
		return c.refreshSecret, nil
	default:
		return nil, fmt.Errorf("unknown token purpose %q", purpose)
	}
}

func (c *TokenCodec) ttlFor(purpose TokenPurpose) time.Duration {
	if purpose == PurposeRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Issue creates a signed token for subjectID with the configured TTL for
// the given purpose.
func (c *TokenCodec) Issue(purpose TokenPurpose, subjectID string) (string, error) {
	secret, err := c.secretFor(purpose)
	if err != nil {
		return "", err
	}

	// The random JTI makes every issued token unique even within the same
	// second, so a rotated refresh token never collides with its
	// predecessor.
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttlFor(purpose))),
		},
	})

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString against the secret of expectedPurpose and
// returns its claims. Failures map onto the common token error taxonomy:
// ErrTokenExpired, ErrTokenInvalidSignature, ErrTokenMalformed, and
// ErrTokenPurposeMismatch.
func (c *TokenCodec) Verify(tokenString string, expectedPurpose TokenPurpose) (*Claims, error) {
	secret, err := c.secretFor(expectedPurpose)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, common.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, common.ErrTokenInvalidSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, common.ErrTokenMalformed
		default:
			return nil, fmt.Errorf("%w: %v", common.ErrTokenMalformed, err)
		}
	}
	if !token.Valid {
		return nil, common.ErrTokenInvalidSignature
	}
	if claims.Purpose != expectedPurpose {
		return nil, common.ErrTokenPurposeMismatch
	}
	return claims, nil
}
