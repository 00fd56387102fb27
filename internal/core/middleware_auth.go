package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"scoutpup/internal/types"
)

// authPublicPaths lists URL paths that are exempt from authentication.
// The webhook endpoint authenticates via Stripe signature verification
// instead of a bearer token.
var authPublicPaths = map[string]bool{
	"/health":          true,
	"/metrics":         true,
	"/billing/webhook": true,
}

// AuthMiddleware enforces bearer-token authentication on all non-public paths.
//
//  1. Extracts the Bearer token from the Authorization header.
//  2. Calls Authenticator.Resolve to verify the token and provision the user.
//  3. Injects the Actor into the request context via types.WithActor.
//  4. Returns 401 Unauthorized on failure with distinct error codes:
//     - auth_token_missing: No Authorization header or empty Bearer token.
//     - auth_token_invalid: Token is malformed or its signature is wrong.
//     - auth_token_expired: Token is well-formed but expired.
//
// If the Authenticator field on Server is nil (e.g., during tests that don't
// inject one), the middleware passes through without authentication.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		if authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, "authorization header is required")
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, "bearer token is required")
			return
		}

		actor, err := s.Authenticator.Resolve(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil {
			s.writeAuthError(w, r, "invalid authentication token")
			return
		}

		ctx := types.WithActor(r.Context(), *actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken parses the Authorization header value and returns the
// token string. It expects the format "Bearer <token>" (case-insensitive
// scheme per RFC 7235). Returns empty string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// handleAuthError inspects the error from Authenticator.Resolve and writes
// the appropriate 401 response.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) && strings.HasPrefix(string(appErr.Code), "auth_") {
		s.Logger.Warn("authentication failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error_code", string(appErr.Code)),
		)
		Error(w, r, appErr)
		return
	}

	// Provisioning failure or other unexpected error: log it but don't leak
	// internal details, and don't mislabel it as a credential problem.
	s.Logger.Error("authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	Error(w, r, err)
}

// writeAuthError writes a 401 response for a missing or malformed credential.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, message, nil))
}
