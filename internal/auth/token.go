// Package auth verifies access tokens issued by the hosted identity provider.
//
// The backend never mints tokens: the dashboard obtains an HS256-signed JWT
// from the provider, and this package verifies the signature and expiry and
// extracts the actor. User rows are provisioned lazily on the first
// successfully authenticated request.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"scoutpup/internal/types"
)

// UserProvisioner creates the local user row for an authenticated actor if it
// does not exist yet. Satisfied by db.UserRepository.
type UserProvisioner interface {
	EnsureUser(ctx context.Context, userID string, email string) error
}

// TokenService verifies identity provider access tokens.
type TokenService struct {
	secret []byte
	users  UserProvisioner
}

// NewTokenService creates a TokenService with the given shared signing secret.
// The secret must match the one configured at the identity provider.
func NewTokenService(secret string, users UserProvisioner) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), users: users}, nil
}

// claims is the JWT payload. The provider stores the user ID in the standard
// "sub" claim and the account email in a custom "email" claim.
type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Resolve parses and verifies a JWT string, provisions the local user row,
// and returns the authenticated actor.
//
// Verification checks (performed by the jwt library):
//   - Signature is valid
//   - Token is not expired (expiry claim is required)
//   - Algorithm is HS256; jwt.WithValidMethods prevents algorithm
//     confusion attacks ("none" or an RSA public key used as HMAC secret)
//
// Errors are always *types.AppError with an auth_ code, so the middleware can
// map them straight to 401 responses.
func (s *TokenService) Resolve(ctx context.Context, tokenStr string) (*types.Actor, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "access token has expired", err)
		}
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "access token is invalid", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "access token claims are invalid", nil)
	}
	if c.Subject == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "access token has no subject", nil)
	}

	// First authenticated request creates the local account mirror.
	if err := s.users.EnsureUser(ctx, c.Subject, c.Email); err != nil {
		return nil, err
	}

	return &types.Actor{ID: c.Subject, Email: c.Email}, nil
}
