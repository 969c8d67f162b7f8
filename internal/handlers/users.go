package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/middleware"
	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/internal/services"
	"github.com/WencesJ/Speer-Tweeter/pkg/utils"
)

// Authenticator defines the session operations the user endpoints need.
type Authenticator interface {
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	Logout(ctx context.Context, token string)
	ChangePassword(ctx context.Context, session *models.Session, currentPassword, newPassword string) (*models.Principal, error)
	ListSessions(ctx context.Context, session *models.Session) ([]models.SessionInfo, error)
	RevokeSession(ctx context.Context, userID bson.ObjectID, sessionID string) error
	RevokeOtherSessions(ctx context.Context, session *models.Session) (int, error)
}

// Registrar creates accounts.
type Registrar interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
}

// UserService defines the user lookups and account deletion.
type UserService interface {
	List(ctx context.Context, params url.Values) (*services.Page[models.User], error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Me(ctx context.Context, principal *models.Principal) (*models.User, error)
	DeleteAccount(ctx context.Context, principal *models.Principal) error
}

// TweetLister lists tweets for the caller's own timeline.
type TweetLister interface {
	List(ctx context.Context, params url.Values) (*services.Page[models.Tweet], error)
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// UserHandler handles signup, login, logout, the caller's account and
// session management, and public profiles.
type UserHandler struct {
	auth   Authenticator
	creds  Registrar
	users  UserService
	tweets TweetLister
	cookie CookieConfig
}

// NewUserHandler creates a user handler.
//
// Example:
//
//	userHandler := handlers.NewUserHandler(authenticator, credentialStore, userService, tweetService,
//	    handlers.CookieConfig{Name: cfg.Session.CookieName, Secure: cfg.Session.SecureCookie})
func NewUserHandler(auth Authenticator, creds Registrar, users UserService, tweets TweetLister, cookie CookieConfig) *UserHandler {
	return &UserHandler{
		auth:   auth,
		creds:  creds,
		users:  users,
		tweets: tweets,
		cookie: cookie,
	}
}

// SignupRequest is the body of POST /users/signup.
type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Password string `json:"password" validate:"required,min=6,max=30"`
}

// LoginRequest is the body of POST /users/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=30"`
}

// ChangePasswordRequest is the body of PATCH /users/me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,min=6,max=30"`
	Password        string `json:"password" validate:"required,min=6,max=30"`
}

// Signup creates an account. It does not log the user in.
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.creds.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusCreated, "User created successfully", user)
}

// Login verifies credentials, opens a session and sets the session cookie.
// The token is also returned in the body for clients that send it as a
// bearer token. A session the client already held is replaced.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), services.LoginInput{
		Username:      req.Username,
		Password:      req.Password,
		UserAgent:     r.UserAgent(),
		IPAddress:     utils.ExtractClientIP(r),
		PreviousToken: middleware.TokenFromRequest(r, h.cookie.Name),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.SetAuthCookie(w, h.cookie.Name, result.Token, result.ExpiresAt, h.cookie.Secure)
	utils.RespondWithSuccess(w, r, http.StatusOK, "Logged in successfully", result)
}

// Logout destroys the session, if any, and clears the cookie. It always
// succeeds.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(r.Context(), middleware.TokenFromRequest(r, h.cookie.Name))
	utils.ClearAuthCookie(w, h.cookie.Name)
	utils.RespondWithMessage(w, r, http.StatusOK, "Logged out successfully")
}

// Me returns the caller's user record.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	user, err := h.users.Me(r.Context(), principal)
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "", user)
}

// DeleteMe deletes the caller's account and every session it holds.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	if err := h.users.DeleteAccount(r.Context(), principal); err != nil {
		respondError(w, r, err)
		return
	}

	utils.ClearAuthCookie(w, h.cookie.Name)
	utils.RespondWithMessage(w, r, http.StatusOK, "Account deleted successfully")
}

// ChangePassword changes the caller's password. The current session is
// destroyed, so the cookie is cleared and the client must log in again.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		respondError(w, r, &services.AuthError{Code: services.CodeUnauthorized})
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	principal, err := h.auth.ChangePassword(r.Context(), session, req.CurrentPassword, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.ClearAuthCookie(w, h.cookie.Name)
	utils.RespondWithSuccess(w, r, http.StatusOK, "Password changed successfully. Please log in again", principal)
}

// ListSessions lists the caller's live sessions, marking the current one.
func (h *UserHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		respondError(w, r, &services.AuthError{Code: services.CodeUnauthorized})
		return
	}

	sessions, err := h.auth.ListSessions(r.Context(), session)
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "", map[string]interface{}{
		"sessions": sessions,
	})
}

// RevokeSession destroys one of the caller's sessions by id.
func (h *UserHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		utils.RespondWithError(w, r, http.StatusBadRequest, "Missing session ID")
		return
	}

	if err := h.auth.RevokeSession(r.Context(), principal.ID, sessionID); err != nil {
		respondError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", principal.ID.Hex()).
		Str("session_id", sessionID).
		Msg("Session revoked")

	utils.RespondWithMessage(w, r, http.StatusOK, "Session revoked successfully")
}

// RevokeOtherSessions destroys every session of the caller except the
// current one.
func (h *UserHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		respondError(w, r, &services.AuthError{Code: services.CodeUnauthorized})
		return
	}

	revoked, err := h.auth.RevokeOtherSessions(r.Context(), session)
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "Other sessions revoked", map[string]int{
		"revoked": revoked,
	})
}

// MyTweets lists the caller's own tweets. The query string supports the
// usual filter, sort, fields and pagination keys.
func (h *UserHandler) MyTweets(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	page, err := h.tweets.List(r.Context(), services.AttachIdentity(principal, r.URL.Query()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "", page.Response())
}

// List lists users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.users.List(r.Context(), r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "", page.Response())
}

// Profile returns the public profile of a user by username.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "", user)
}
