package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WencesJ/Speer-Tweeter/internal/database"
	"github.com/WencesJ/Speer-Tweeter/internal/events"
	"github.com/WencesJ/Speer-Tweeter/internal/testutil"
)

func TestCreateSession(t *testing.T) {
	f := setupAuth(t, time.Hour, 100*time.Millisecond)
	ctx := context.Background()
	user := testutil.TestUser()

	t.Run("creates session with unique ID", func(t *testing.T) {
		session, err := f.sessions.Create(ctx, user, "Chrome 120 · Windows 11 · Desktop", testutil.IPAddresses.Public)
		require.NoError(t, err)

		_, err = uuid.Parse(session.ID)
		assert.NoError(t, err)
		assert.Equal(t, user.ID, session.UserID)
		assert.Equal(t, user.Username, session.Username)
		assert.WithinDuration(t, session.CreatedAt.Add(time.Hour), session.ExpiresAt, time.Millisecond)
	})

	t.Run("stores session data in Redis", func(t *testing.T) {
		session, err := f.sessions.Create(ctx, user, "Safari 17 · macOS 14 · Desktop", testutil.IPAddresses.Private)
		require.NoError(t, err)

		stored, err := f.sessions.Get(ctx, user.ID, session.ID)
		require.NoError(t, err)
		assert.Equal(t, "Safari 17 · macOS 14 · Desktop", stored.DeviceInfo)
		assert.Equal(t, testutil.IPAddresses.Private, stored.IPAddress)
		assert.Equal(t, user.PasswordVersion, stored.PasswordVersion)

		ttl := f.mr.TTL("session:" + user.ID.Hex() + ":" + session.ID)
		assert.Equal(t, time.Hour, ttl)
	})

	t.Run("arms a timer per session", func(t *testing.T) {
		before := f.sessions.pendingTimers()
		_, err := f.sessions.Create(ctx, user, "Device", testutil.IPAddresses.Public)
		require.NoError(t, err)
		assert.Equal(t, before+1, f.sessions.pendingTimers())
	})

	assert.GreaterOrEqual(t, f.events.count(events.EntitySession, events.KindCreated), 3)
}

func TestDestroySession(t *testing.T) {
	f := setupAuth(t, time.Hour, 100*time.Millisecond)
	ctx := context.Background()
	user := testutil.TestUser()

	t.Run("destroys once and stops the timer", func(t *testing.T) {
		session, err := f.sessions.Create(ctx, user, "Device", testutil.IPAddresses.Public)
		require.NoError(t, err)

		destroyed, err := f.sessions.Destroy(ctx, user.ID, session.ID, ReasonLogout)
		require.NoError(t, err)
		assert.True(t, destroyed)
		assert.Equal(t, 0, f.sessions.pendingTimers())

		destroyed, err = f.sessions.Destroy(ctx, user.ID, session.ID, ReasonLogout)
		require.NoError(t, err)
		assert.False(t, destroyed)

		_, err = f.sessions.Get(ctx, user.ID, session.ID)
		assert.ErrorIs(t, err, database.ErrSessionNotFound)

		last := f.events.last()
		assert.Equal(t, events.KindDestroyed, last.Kind)
		assert.Equal(t, ReasonLogout, last.Detail)
	})

	t.Run("unknown session is a no-op", func(t *testing.T) {
		destroyed, err := f.sessions.Destroy(ctx, user.ID, uuid.New().String(), ReasonLogout)
		require.NoError(t, err)
		assert.False(t, destroyed)
	})
}

func TestSessionSelfDestructs(t *testing.T) {
	f := setupAuth(t, 150*time.Millisecond, 100*time.Millisecond)
	ctx := context.Background()
	user := testutil.TestUser()

	session, err := f.sessions.Create(ctx, user, "Device", testutil.IPAddresses.Public)
	require.NoError(t, err)

	// miniredis never expires keys on its own, so only the timer can remove it.
	assert.Eventually(t, func() bool {
		_, err := f.sessions.Get(ctx, user.ID, session.ID)
		return err == database.ErrSessionNotFound
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, f.sessions.pendingTimers())
	assert.Equal(t, 1, f.events.count(events.EntitySession, events.KindDestroyed))
	assert.Equal(t, ReasonExpired, f.events.last().Detail)
}

func TestSessionTimerRacesLogout(t *testing.T) {
	const sessions = 20
	f := setupAuth(t, 30*time.Millisecond, 0)
	ctx := context.Background()
	user := testutil.TestUser()

	var wg sync.WaitGroup
	var logoutWins atomic.Int64

	for i := 0; i < sessions; i++ {
		session, err := f.sessions.Create(ctx, user, "Device", testutil.IPAddresses.Public)
		require.NoError(t, err)

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			time.Sleep(30 * time.Millisecond)
			destroyed, err := f.sessions.Destroy(ctx, user.ID, id, ReasonLogout)
			assert.NoError(t, err)
			if destroyed {
				logoutWins.Add(1)
			}
		}(session.ID)
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		ids, err := f.sessions.store.ListUserSessions(ctx, user.ID)
		return err == nil && len(ids) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Give late timers a chance to fire into the void.
	time.Sleep(50 * time.Millisecond)

	destroyedEvents := f.events.count(events.EntitySession, events.KindDestroyed)
	assert.Equal(t, sessions, destroyedEvents)
	assert.LessOrEqual(t, int(logoutWins.Load()), sessions)
}

func TestListAndRevokeSessions(t *testing.T) {
	f := setupAuth(t, time.Hour, 100*time.Millisecond)
	ctx := context.Background()
	user := testutil.TestUser()
	other := testutil.TestUserNamed("other")

	current, err := f.sessions.Create(ctx, user, "Device 1", testutil.IPAddresses.Public)
	require.NoError(t, err)
	_, err = f.sessions.Create(ctx, user, "Device 2", testutil.IPAddresses.Private)
	require.NoError(t, err)
	_, err = f.sessions.Create(ctx, user, "Device 3", testutil.IPAddresses.Localhost)
	require.NoError(t, err)
	foreign, err := f.sessions.Create(ctx, other, "Device", testutil.IPAddresses.Public)
	require.NoError(t, err)

	t.Run("lists only the user's sessions and flags the current one", func(t *testing.T) {
		infos, err := f.sessions.List(ctx, user.ID, current.ID)
		require.NoError(t, err)
		require.Len(t, infos, 3)

		currentCount := 0
		for _, info := range infos {
			if info.Current {
				currentCount++
				assert.Equal(t, current.ID, info.ID)
			}
		}
		assert.Equal(t, 1, currentCount)
	})

	t.Run("revokes all but the current session", func(t *testing.T) {
		n, err := f.sessions.RevokeAll(ctx, user.ID, current.ID, ReasonRevoked)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		infos, err := f.sessions.List(ctx, user.ID, current.ID)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, current.ID, infos[0].ID)

		_, err = f.sessions.Get(ctx, other.ID, foreign.ID)
		assert.NoError(t, err)
	})
}

func TestSessionShutdown(t *testing.T) {
	f := setupAuth(t, 50*time.Millisecond, 0)
	ctx := context.Background()
	user := testutil.TestUser()

	session, err := f.sessions.Create(ctx, user, "Device", testutil.IPAddresses.Public)
	require.NoError(t, err)

	f.sessions.Shutdown()
	assert.Equal(t, 0, f.sessions.pendingTimers())

	time.Sleep(100 * time.Millisecond)
	_, err = f.sessions.Get(ctx, user.ID, session.ID)
	assert.NoError(t, err, "record stays until its TTL after shutdown")

	_, err = f.sessions.Create(ctx, user, "Device", testutil.IPAddresses.Public)
	require.NoError(t, err)
	assert.Equal(t, 0, f.sessions.pendingTimers())
}

func TestExtractDeviceInfo(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		expected  string
	}{
		{
			name:      "Chrome on Windows",
			userAgent: testutil.UserAgents.Chrome,
			expected:  "Chrome",
		},
		{
			name:      "Safari on macOS",
			userAgent: testutil.UserAgents.Safari,
			expected:  "Safari",
		},
		{
			name:      "Firefox on Windows",
			userAgent: testutil.UserAgents.Firefox,
			expected:  "Firefox",
		},
		{
			name:      "Mobile Chrome",
			userAgent: testutil.UserAgents.MobileChrome,
			expected:  "Mobile",
		},
		{
			name:      "Empty user agent",
			userAgent: "",
			expected:  "Unknown Device",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, ExtractDeviceInfo(tt.userAgent), tt.expected)
		})
	}
}

func BenchmarkExtractDeviceInfo(b *testing.B) {
	userAgent := testutil.UserAgents.Chrome

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ExtractDeviceInfo(userAgent)
	}
}
