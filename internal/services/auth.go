package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/database"
	"github.com/WencesJ/Speer-Tweeter/internal/metrics"
	"github.com/WencesJ/Speer-Tweeter/internal/models"
)

// IdentityKey is the query key AttachIdentity sets to the caller's id.
const IdentityKey = "user"

// UserLookup resolves the live user record for the revocation check.
// It may be served from cache; cached users never carry the digest.
type UserLookup interface {
	GetUserByID(ctx context.Context, userID bson.ObjectID) (*models.User, error)
}

// LoginInput carries the credentials and request metadata of a login.
type LoginInput struct {
	Username  string
	Password  string
	UserAgent string
	IPAddress string

	// PreviousToken is the token the client already held, if any. Its
	// session is destroyed once the new one exists.
	PreviousToken string
}

// LoginResult is what a successful login hands back to the transport.
type LoginResult struct {
	Principal *models.Principal `json:"user"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	SessionID string            `json:"sessionId"`
}

// SessionAuthenticator governs login, the per-request gate, logout and
// password changes.
//
// A token only asserts that a user was verified at some time. Every gated
// request also checks that the session record is still alive and that the
// user still exists with the password version the session was opened
// with, so logout, password changes and account deletion take effect on
// the next request.
type SessionAuthenticator struct {
	creds    *CredentialStore
	sessions *SessionService
	tokens   *TokenService
	users    UserLookup
}

// NewSessionAuthenticator wires an authenticator.
func NewSessionAuthenticator(creds *CredentialStore, sessions *SessionService, tokens *TokenService, users UserLookup) *SessionAuthenticator {
	return &SessionAuthenticator{
		creds:    creds,
		sessions: sessions,
		tokens:   tokens,
		users:    users,
	}
}

// Login verifies credentials and opens a new session. Wrong credentials
// return an INVALID_CREDENTIALS AuthError and leave no session behind.
func (a *SessionAuthenticator) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	user, err := a.creds.Verify(ctx, in.Username, in.Password)
	if err != nil {
		if _, ok := IsAuthError(err); ok {
			metrics.IncrementAuthAttempts("invalid_credentials")
			log.Warn().
				Str("username", models.NormalizeUsername(in.Username)).
				Str("ip", in.IPAddress).
				Msg("Login failed: invalid credentials")
		}
		return nil, err
	}

	session, err := a.sessions.Create(ctx, user, ExtractDeviceInfo(in.UserAgent), in.IPAddress)
	if err != nil {
		return nil, err
	}

	token, err := a.tokens.Issue(session)
	if err != nil {
		if _, derr := a.sessions.Destroy(ctx, session.UserID, session.ID, ReasonRevoked); derr != nil {
			log.Error().Err(derr).Str("session_id", session.ID).Msg("Failed to roll back session")
		}
		return nil, err
	}

	if in.PreviousToken != "" {
		a.destroyByToken(ctx, in.PreviousToken, ReasonReplaced)
	}

	metrics.IncrementAuthAttempts("success")
	log.Info().
		Str("user_id", user.ID.Hex()).
		Str("session_id", session.ID).
		Msg("User logged in")

	return &LoginResult{
		Principal: user.Principal(),
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		SessionID: session.ID,
	}, nil
}

// Authenticate is the request gate. Any failure is an UNAUTHORIZED
// AuthError. A session whose user was deleted or whose password changed is
// destroyed on the spot; a store outage denies access but keeps the session.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, token string) (*models.Principal, *models.Session, error) {
	principal, session, err := a.authenticate(ctx, token)
	if err != nil {
		metrics.IncrementAuthAttempts("unauthorized")
		return nil, nil, err
	}
	return principal, session, nil
}

func (a *SessionAuthenticator) authenticate(ctx context.Context, token string) (*models.Principal, *models.Session, error) {
	if token == "" {
		return nil, nil, unauthorized(errors.New("missing token"))
	}

	claims, err := a.tokens.Parse(token)
	if err != nil {
		return nil, nil, unauthorized(err)
	}

	userID, err := bson.ObjectIDFromHex(claims.Subject)
	if err != nil {
		return nil, nil, unauthorized(fmt.Errorf("invalid subject: %w", err))
	}

	session, err := a.sessions.Get(ctx, userID, claims.ID)
	if err != nil {
		if !errors.Is(err, database.ErrSessionNotFound) {
			log.Error().Err(err).Str("session_id", claims.ID).Msg("Failed to load session")
		}
		return nil, nil, unauthorized(err)
	}

	if session.Username == "" ||
		session.Username != claims.Username ||
		session.PasswordVersion != claims.PasswordVersion {
		a.revoke(ctx, session, ReasonRevoked)
		return nil, nil, unauthorized(errors.New("token does not match session"))
	}

	user, err := a.users.GetUserByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		a.revoke(ctx, session, ReasonUserDeleted)
		return nil, nil, unauthorized(err)
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.Hex()).Msg("Failed to load user for session check")
		return nil, nil, unauthorized(err)
	}

	if user.Username != session.Username || user.PasswordVersion != session.PasswordVersion {
		a.revoke(ctx, session, ReasonRevoked)
		return nil, nil, unauthorized(errors.New("credentials changed since login"))
	}

	return user.Principal(), session, nil
}

// Logout destroys the session behind token. It never fails: unreadable
// tokens and store errors are logged only.
func (a *SessionAuthenticator) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	a.destroyByToken(ctx, token, ReasonLogout)
}

// ChangePassword changes the password of the session's user and destroys
// the session, forcing a fresh login. Every other session of the user is
// revoked too. A wrong current password is an INVALID_CREDENTIALS
// AuthError, as for login.
func (a *SessionAuthenticator) ChangePassword(ctx context.Context, session *models.Session, currentPassword, newPassword string) (*models.Principal, error) {
	if session == nil || session.Username == "" {
		return nil, unauthorized(errors.New("no session"))
	}

	user, err := a.creds.ChangePassword(ctx, session.Username, currentPassword, newPassword)
	if err != nil {
		return nil, err
	}

	if _, err := a.sessions.Destroy(ctx, session.UserID, session.ID, ReasonPasswordChange); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("Failed to destroy session after password change")
	}
	if _, err := a.sessions.RevokeAll(ctx, session.UserID, session.ID, ReasonPasswordChange); err != nil {
		log.Warn().Err(err).Str("user_id", session.UserID.Hex()).Msg("Failed to revoke other sessions")
	}

	log.Info().Str("user_id", user.ID.Hex()).Msg("Password changed")
	return user.Principal(), nil
}

// ListSessions returns the caller's live sessions, flagging the current one.
func (a *SessionAuthenticator) ListSessions(ctx context.Context, session *models.Session) ([]models.SessionInfo, error) {
	return a.sessions.List(ctx, session.UserID, session.ID)
}

// RevokeSession destroys one of the user's sessions. Returns
// database.ErrNotFound when no such session is alive.
func (a *SessionAuthenticator) RevokeSession(ctx context.Context, userID bson.ObjectID, sessionID string) error {
	destroyed, err := a.sessions.Destroy(ctx, userID, sessionID, ReasonRevoked)
	if err != nil {
		return err
	}
	if !destroyed {
		return database.ErrNotFound
	}
	return nil
}

// RevokeOtherSessions destroys every session of the user except the
// current one and returns how many were destroyed.
func (a *SessionAuthenticator) RevokeOtherSessions(ctx context.Context, session *models.Session) (int, error) {
	return a.sessions.RevokeAll(ctx, session.UserID, session.ID, ReasonRevoked)
}

func (a *SessionAuthenticator) revoke(ctx context.Context, session *models.Session, reason string) {
	metrics.IncrementAuthAttempts("revoked")
	if _, err := a.sessions.Destroy(ctx, session.UserID, session.ID, reason); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("Failed to destroy revoked session")
	}
}

func (a *SessionAuthenticator) destroyByToken(ctx context.Context, token, reason string) {
	claims, err := a.tokens.ParseIgnoringExpiry(token)
	if err != nil {
		log.Debug().Err(err).Str("reason", reason).Msg("Ignoring unreadable session token")
		return
	}

	userID, err := bson.ObjectIDFromHex(claims.Subject)
	if err != nil {
		log.Debug().Err(err).Msg("Ignoring token with invalid subject")
		return
	}

	if _, err := a.sessions.Destroy(ctx, userID, claims.ID, reason); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID.Hex()).
			Str("session_id", claims.ID).
			Msg("Failed to destroy session")
	}
}

// AttachIdentity returns a copy of params with the principal's id under
// the "user" key, replacing whatever the client sent there. Without a
// principal params is returned as is.
func AttachIdentity(principal *models.Principal, params url.Values) url.Values {
	if principal == nil {
		return params
	}

	out := make(url.Values, len(params)+1)
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}
	out.Set(IdentityKey, principal.ID.Hex())
	return out
}
