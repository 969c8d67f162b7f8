// Package middleware holds the chi middleware of the API: the session
// gate, request logging and recovery, HTTP metrics, CORS and security
// headers.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/internal/services"
	"github.com/WencesJ/Speer-Tweeter/pkg/utils"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// PrincipalKey is the context key for the authenticated principal.
	PrincipalKey contextKey = "principal"

	// SessionKey is the context key for the session the request rides on.
	SessionKey contextKey = "session"
)

// unauthorizedMessage is the single message every gate rejection carries.
const unauthorizedMessage = "Authentication failed. Please log in!"

// Authenticator validates a session token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Principal, *models.Session, error)
}

// RequireSession creates the session gate for protected routes.
//
// Token sources (checked in order):
//  1. Cookie: <cookieName>=<token>
//  2. Authorization header: "Bearer <token>"
//
// A rejected request gets 401 with code UNAUTHORIZED; the cause is only
// logged. On success the principal and session are stored in the request
// context.
//
// Usage:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(middleware.RequireSession(authenticator, cfg.Session.CookieName))
//	    r.Get("/api/v1/users/me", userHandler.Me)
//	})
func RequireSession(auth Authenticator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r, cookieName)
			if token == "" {
				log.Debug().Str("path", r.URL.Path).Msg("Missing session token")
				utils.RespondWithErrorCode(w, r, http.StatusUnauthorized, string(services.CodeUnauthorized), unauthorizedMessage)
				return
			}

			principal, session, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				log.Warn().
					Err(err).
					Str("request_id", utils.GetRequestID(r.Context())).
					Msg("Session rejected")
				utils.RespondWithErrorCode(w, r, http.StatusUnauthorized, string(services.CodeUnauthorized), unauthorizedMessage)
				return
			}

			noteUser(r.Context(), principal.ID.Hex())
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), principal, session)))
		})
	}
}

// TokenFromRequest returns the session token carried by r, preferring the
// cookie. It returns "" when there is none.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// WithIdentity stores the principal and session in ctx.
func WithIdentity(ctx context.Context, principal *models.Principal, session *models.Session) context.Context {
	ctx = context.WithValue(ctx, PrincipalKey, principal)
	return context.WithValue(ctx, SessionKey, session)
}

// GetPrincipal extracts the authenticated principal from the request context.
//
// Example:
//
//	principal, ok := middleware.GetPrincipal(r.Context())
//	if !ok {
//	    utils.RespondWithError(w, r, http.StatusUnauthorized, "Unauthorized")
//	    return
//	}
func GetPrincipal(ctx context.Context) (*models.Principal, bool) {
	principal, ok := ctx.Value(PrincipalKey).(*models.Principal)
	return principal, ok && principal != nil
}

// GetSession extracts the current session from the request context.
func GetSession(ctx context.Context) (*models.Session, bool) {
	session, ok := ctx.Value(SessionKey).(*models.Session)
	return session, ok && session != nil
}
