package services

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WencesJ/Speer-Tweeter/internal/database"
	"github.com/WencesJ/Speer-Tweeter/internal/events"
	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/internal/testutil"
)

func registerAndLogin(t *testing.T, f *authFixture, username, password string) (*models.User, *LoginResult) {
	t.Helper()
	ctx := context.Background()

	user, err := f.creds.Register(ctx, username, password)
	require.NoError(t, err)

	result, err := f.auth.Login(ctx, LoginInput{
		Username:  username,
		Password:  password,
		UserAgent: testutil.UserAgents.Chrome,
		IPAddress: testutil.IPAddresses.Public,
	})
	require.NoError(t, err)
	return user, result
}

func assertAuthCode(t *testing.T, err error, code AuthCode) {
	t.Helper()
	ae, ok := IsAuthError(err)
	require.True(t, ok, "expected AuthError, got %v", err)
	assert.Equal(t, code, ae.Code)
}

func TestLogin(t *testing.T) {
	f := setupAuth(t, time.Hour, 100*time.Millisecond)
	ctx := context.Background()

	t.Run("successful login authenticates immediately", func(t *testing.T) {
		user, result := registerAndLogin(t, f, "Alice", "secret1")
		assert.Equal(t, "alice", result.Principal.Username)
		assert.Equal(t, user.ID, result.Principal.ID)
		assert.NotEmpty(t, result.Token)
		assert.True(t, result.ExpiresAt.After(time.Now()))

		principal, session, err := f.auth.Authenticate(ctx, result.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, principal.ID)
		assert.Equal(t, result.SessionID, session.ID)
		assert.Contains(t, session.DeviceInfo, "Chrome")
	})

	t.Run("wrong password creates no session", func(t *testing.T) {
		user, err := f.creds.Register(ctx, "bob", "secret1")
		require.NoError(t, err)

		_, err = f.auth.Login(ctx, LoginInput{Username: "bob", Password: "wrong"})
		assertAuthCode(t, err, CodeInvalidCredentials)

		ids, err := f.sessions.store.ListUserSessions(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("unknown username is indistinguishable", func(t *testing.T) {
		_, err := f.auth.Login(ctx, LoginInput{Username: "nobody", Password: "secret1"})
		assertAuthCode(t, err, CodeInvalidCredentials)
	})

	t.Run("previous token is replaced", func(t *testing.T) {
		_, first := registerAndLogin(t, f, "carol", "secret1")

		second, err := f.auth.Login(ctx, LoginInput{
			Username:      "carol",
			Password:      "secret1",
			PreviousToken: first.Token,
		})
		require.NoError(t, err)

		_, _, err = f.auth.Authenticate(ctx, first.Token)
		assertAuthCode(t, err, CodeUnauthorized)
		_, _, err = f.auth.Authenticate(ctx, second.Token)
		assert.NoError(t, err)
	})
}

func TestAuthenticate(t *testing.T) {
	f := setupAuth(t, time.Hour, 100*time.Millisecond)
	ctx := context.Background()

	t.Run("rejects missing and garbage tokens", func(t *testing.T) {
		_, _, err := f.auth.Authenticate(ctx, "")
		assertAuthCode(t, err, CodeUnauthorized)

		_, _, err = f.auth.Authenticate(ctx, "not-a-token")
		assertAuthCode(t, err, CodeUnauthorized)
	})

	t.Run("destroyed session stays destroyed", func(t *testing.T) {
		_, result := registerAndLogin(t, f, "dave", "secret1")

		f.auth.Logout(ctx, result.Token)

		for i := 0; i < 3; i++ {
			_, _, err := f.auth.Authenticate(ctx, result.Token)
			assertAuthCode(t, err, CodeUnauthorized)
		}
	})

	t.Run("deleted user destroys the session", func(t *testing.T) {
		user, result := registerAndLogin(t, f, "erin", "secret1")
		require.NoError(t, f.store.DeleteUser(ctx, user.ID))

		_, _, err := f.auth.Authenticate(ctx, result.Token)
		assertAuthCode(t, err, CodeUnauthorized)

		_, err = f.sessions.Get(ctx, user.ID, result.SessionID)
		assert.ErrorIs(t, err, database.ErrSessionNotFound)
		assert.Equal(t, ReasonUserDeleted, f.events.last().Detail)
	})

	t.Run("password version change destroys the session", func(t *testing.T) {
		user, result := registerAndLogin(t, f, "frank", "secret1")
		_, err := f.store.UpdatePassword(ctx, user.ID, "new-digest")
		require.NoError(t, err)

		_, _, err = f.auth.Authenticate(ctx, result.Token)
		assertAuthCode(t, err, CodeUnauthorized)

		_, err = f.sessions.Get(ctx, user.ID, result.SessionID)
		assert.ErrorIs(t, err, database.ErrSessionNotFound)
		assert.Equal(t, ReasonRevoked, f.events.last().Detail)
	})

	t.Run("store outage denies without destroying", func(t *testing.T) {
		user, result := registerAndLogin(t, f, "grace", "secret1")

		f.store.Fail("GetUserByID", errors.New("connection refused"))
		_, _, err := f.auth.Authenticate(ctx, result.Token)
		f.store.Fail("GetUserByID", nil)
		assertAuthCode(t, err, CodeUnauthorized)

		_, err = f.sessions.Get(ctx, user.ID, result.SessionID)
		assert.NoError(t, err)

		_, _, err = f.auth.Authenticate(ctx, result.Token)
		assert.NoError(t, err)
	})

	t.Run("token from another secret is rejected", func(t *testing.T) {
		user := testutil.TestUser()
		session := testutil.TestSession(user)
		forged, err := NewTokenService([]byte("another-secret-key-min-32-bytes-long")).Issue(session)
		require.NoError(t, err)

		_, _, err = f.auth.Authenticate(ctx, forged)
		assertAuthCode(t, err, CodeUnauthorized)
	})
}

func TestLogout(t *testing.T) {
	f := setupAuth(t, time.Hour, 100*time.Millisecond)
	ctx := context.Background()

	t.Run("logout always succeeds", func(t *testing.T) {
		assert.NotPanics(t, func() {
			f.auth.Logout(ctx, "")
			f.auth.Logout(ctx, "garbage")
		})
	})

	t.Run("logout twice destroys once", func(t *testing.T) {
		_, result := registerAndLogin(t, f, "heidi", "secret1")
		before := f.events.count(events.EntitySession, events.KindDestroyed)

		f.auth.Logout(ctx, result.Token)
		f.auth.Logout(ctx, result.Token)

		assert.Equal(t, before+1, f.events.count(events.EntitySession, events.KindDestroyed))
	})

	t.Run("expired token still logs out", func(t *testing.T) {
		user, result := registerAndLogin(t, f, "ivan", "secret1")
		session, err := f.sessions.Get(ctx, user.ID, result.SessionID)
		require.NoError(t, err)

		session.VerifiedAt = time.Now().Add(-2 * time.Hour)
		session.ExpiresAt = time.Now().Add(-time.Hour)
		expired, err := f.tokens.Issue(session)
		require.NoError(t, err)

		f.auth.Logout(ctx, expired)
		_, err = f.sessions.Get(ctx, user.ID, result.SessionID)
		assert.ErrorIs(t, err, database.ErrSessionNotFound)
	})
}

func TestChangePassword(t *testing.T) {
	f := setupAuth(t, time.Hour, 100*time.Millisecond)
	ctx := context.Background()

	t.Run("wrong current password keeps the session", func(t *testing.T) {
		_, result := registerAndLogin(t, f, "judy", "secret1")
		_, session, err := f.auth.Authenticate(ctx, result.Token)
		require.NoError(t, err)

		_, err = f.auth.ChangePassword(ctx, session, "wrong", "secret2")
		assertAuthCode(t, err, CodeInvalidCredentials)

		_, _, err = f.auth.Authenticate(ctx, result.Token)
		assert.NoError(t, err)
	})

	t.Run("success destroys the session and revokes the others", func(t *testing.T) {
		user, result := registerAndLogin(t, f, "mallory", "secret1")
		other, err := f.auth.Login(ctx, LoginInput{Username: "mallory", Password: "secret1"})
		require.NoError(t, err)

		_, session, err := f.auth.Authenticate(ctx, result.Token)
		require.NoError(t, err)

		principal, err := f.auth.ChangePassword(ctx, session, "secret1", "secret2")
		require.NoError(t, err)
		assert.Equal(t, user.ID, principal.ID)

		_, _, err = f.auth.Authenticate(ctx, result.Token)
		assertAuthCode(t, err, CodeUnauthorized)
		_, _, err = f.auth.Authenticate(ctx, other.Token)
		assertAuthCode(t, err, CodeUnauthorized)

		_, err = f.auth.Login(ctx, LoginInput{Username: "mallory", Password: "secret1"})
		assertAuthCode(t, err, CodeInvalidCredentials)
		_, err = f.auth.Login(ctx, LoginInput{Username: "mallory", Password: "secret2"})
		assert.NoError(t, err)
	})

	t.Run("a session missed by the sweep fails its next check", func(t *testing.T) {
		user, result := registerAndLogin(t, f, "niaj", "secret1")
		_, session, err := f.auth.Authenticate(ctx, result.Token)
		require.NoError(t, err)

		stale, err := f.auth.Login(ctx, LoginInput{Username: "niaj", Password: "secret1"})
		require.NoError(t, err)

		_, err = f.creds.ChangePassword(ctx, session.Username, "secret1", "secret2")
		require.NoError(t, err)

		_, _, err = f.auth.Authenticate(ctx, stale.Token)
		assertAuthCode(t, err, CodeUnauthorized)
		_, err = f.sessions.Get(ctx, user.ID, stale.SessionID)
		assert.ErrorIs(t, err, database.ErrSessionNotFound)
	})
}

func TestRevokeSessions(t *testing.T) {
	f := setupAuth(t, time.Hour, 100*time.Millisecond)
	ctx := context.Background()

	user, first := registerAndLogin(t, f, "olivia", "secret1")
	second, err := f.auth.Login(ctx, LoginInput{Username: "olivia", Password: "secret1"})
	require.NoError(t, err)
	third, err := f.auth.Login(ctx, LoginInput{Username: "olivia", Password: "secret1"})
	require.NoError(t, err)

	_, current, err := f.auth.Authenticate(ctx, first.Token)
	require.NoError(t, err)

	infos, err := f.auth.ListSessions(ctx, current)
	require.NoError(t, err)
	assert.Len(t, infos, 3)

	require.NoError(t, f.auth.RevokeSession(ctx, user.ID, second.SessionID))
	assert.ErrorIs(t, f.auth.RevokeSession(ctx, user.ID, second.SessionID), database.ErrNotFound)

	n, err := f.auth.RevokeOtherSessions(ctx, current)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, err = f.auth.Authenticate(ctx, third.Token)
	assertAuthCode(t, err, CodeUnauthorized)
	_, _, err = f.auth.Authenticate(ctx, first.Token)
	assert.NoError(t, err)
}

func TestAttachIdentity(t *testing.T) {
	principal := testutil.TestPrincipal()

	t.Run("injects the principal id", func(t *testing.T) {
		params := url.Values{"sort": {"-likes"}, "user": {"spoofed"}}
		out := AttachIdentity(principal, params)

		assert.Equal(t, principal.ID.Hex(), out.Get("user"))
		assert.Equal(t, "-likes", out.Get("sort"))
		assert.Equal(t, "spoofed", params.Get("user"), "input is not modified")
	})

	t.Run("no principal leaves params unchanged", func(t *testing.T) {
		params := url.Values{"page": {"2"}}
		out := AttachIdentity(nil, params)
		assert.Equal(t, params, out)
	})
}
