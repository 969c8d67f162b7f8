package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/WencesJ/Speer-Tweeter/internal/credentials"
	"github.com/WencesJ/Speer-Tweeter/internal/middleware"
	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/internal/services"
	"github.com/WencesJ/Speer-Tweeter/internal/testutil"
	"github.com/WencesJ/Speer-Tweeter/pkg/utils"
)

const testCookie = "session"

// apiFixture serves the full /api/v1 router over an in-memory document
// store and miniredis.
type apiFixture struct {
	router http.Handler
	store  *testutil.MemoryStore
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	mr, cleanup := testutil.SetupMiniRedis(t)
	t.Cleanup(cleanup)
	redisDB := testutil.NewTestRedisDB(t, mr)
	store := testutil.NewMemoryStore()

	creds := services.NewCredentialStore(store, credentials.NewHasher(bcrypt.MinCost), nil, nil)
	sessions := services.NewSessionService(redisDB, time.Hour, time.Second, nil)
	t.Cleanup(sessions.Shutdown)
	auth := services.NewSessionAuthenticator(creds, sessions, services.NewTokenService([]byte("test-secret-key-min-32-bytes-long!!")), store)

	tweets := services.NewTweetService(store, nil)
	api := &API{
		Users:    NewUserHandler(auth, creds, services.NewUserService(store, store, nil, sessions, nil), tweets, CookieConfig{Name: testCookie}),
		Tweets:   NewTweetHandler(tweets),
		Chats:    NewChatHandler(services.NewChatService(store, store, nil)),
		Messages: NewMessageHandler(services.NewMessageService(store, nil)),
	}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		api.Mount(r, middleware.RequireSession(auth, testCookie))
	})

	return &apiFixture{router: r, store: store}
}

// do sends a request, authenticated with token when it is not empty.
func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.MakeRequest(t, method, "/api/v1"+path, body)
	if token != "" {
		testutil.SetCookie(req, testCookie, token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) signupAndLogin(t *testing.T, username, password string) *services.LoginResult {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/users/signup", "", map[string]string{"username": username, "password": password})
	testutil.AssertStatusCode(t, rec, http.StatusCreated)

	rec = f.do(t, http.MethodPost, "/users/login", "", map[string]string{"username": username, "password": password})
	testutil.AssertStatusCode(t, rec, http.StatusOK)
	testutil.AssertCookie(t, rec, testCookie)

	var result services.LoginResult
	testutil.ParseEnvelope(t, rec, &result)
	require.NotEmpty(t, result.Token)
	return &result
}

func tweetBody(text string) map[string]interface{} {
	return map[string]interface{}{
		"text": text,
		"date": "2024-03-01T00:00:00Z",
		"time": map[string]int{"hour": 9, "min": 30, "sec": 0},
	}
}

type pageBody[T any] struct {
	Data       []T            `json:"data"`
	Pagination utils.PageMeta `json:"pagination"`
}

func TestAPI_SignupAndLogin(t *testing.T) {
	f := setupAPI(t)

	t.Run("signup validates the body", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/users/signup", "", map[string]string{"username": "al", "password": "123"})
		testutil.AssertStatusCode(t, rec, http.StatusBadRequest)
		body := testutil.ParseErrorResponse(t, rec)
		assert.Equal(t, CodeValidation, body.Code)
		assert.Contains(t, body.Message, "username")
		assert.Contains(t, body.Message, "password")
	})

	t.Run("blank or padded short usernames are rejected", func(t *testing.T) {
		for _, name := range []string{"      ", "  a  "} {
			rec := f.do(t, http.MethodPost, "/users/signup", "", map[string]string{"username": name, "password": "secret1"})
			testutil.AssertStatusCode(t, rec, http.StatusBadRequest)
			assert.Contains(t, testutil.ParseErrorResponse(t, rec).Message, "username")
		}
	})

	t.Run("duplicate username is a conflict", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/users/signup", "", map[string]string{"username": "dup", "password": "secret1"})
		testutil.AssertStatusCode(t, rec, http.StatusCreated)

		rec = f.do(t, http.MethodPost, "/users/signup", "", map[string]string{"username": " DUP ", "password": "secret1"})
		testutil.AssertStatusCode(t, rec, http.StatusConflict)
	})

	t.Run("wrong password is INVALID_CREDENTIALS", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/users/login", "", map[string]string{"username": "dup", "password": "wrong-password"})
		testutil.AssertStatusCode(t, rec, http.StatusUnauthorized)
		assert.Equal(t, string(services.CodeInvalidCredentials), testutil.ParseErrorResponse(t, rec).Code)
	})

	t.Run("signup response never carries the digest", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/users/signup", "", map[string]string{"username": "clean", "password": "secret1"})
		testutil.AssertStatusCode(t, rec, http.StatusCreated)
		assert.NotContains(t, rec.Body.String(), "$2a$")
		assert.NotContains(t, rec.Body.String(), "secret1")
	})

	t.Run("login opens a session the gate accepts", func(t *testing.T) {
		login := f.signupAndLogin(t, "ada", "secret1")

		rec := f.do(t, http.MethodGet, "/users/me", login.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusOK)

		var me models.User
		testutil.ParseEnvelope(t, rec, &me)
		assert.Equal(t, "ada", me.Username)
		assert.Equal(t, login.Principal.ID, me.ID)
	})
}

func TestAPI_Gate(t *testing.T) {
	f := setupAPI(t)

	for _, path := range []string{"/users/me", "/tweets", "/chats", "/users/me/sessions"} {
		t.Run(path, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, path, "", nil)
			testutil.AssertStatusCode(t, rec, http.StatusUnauthorized)
			assert.Equal(t, "UNAUTHORIZED", testutil.ParseErrorResponse(t, rec).Code)
		})
	}

	t.Run("public routes stay open", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/users", "", nil)
		testutil.AssertStatusCode(t, rec, http.StatusOK)
	})
}

func TestAPI_LogoutAndPasswordChange(t *testing.T) {
	f := setupAPI(t)

	t.Run("logout always succeeds and kills the session", func(t *testing.T) {
		login := f.signupAndLogin(t, "ada", "secret1")

		rec := f.do(t, http.MethodPost, "/users/logout", login.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusOK)
		cookie := testutil.AssertCookie(t, rec, testCookie, "")
		require.NotNil(t, cookie)
		assert.Negative(t, cookie.MaxAge)

		rec = f.do(t, http.MethodGet, "/users/me", login.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusUnauthorized)

		rec = f.do(t, http.MethodPost, "/users/logout", "", nil)
		testutil.AssertStatusCode(t, rec, http.StatusOK)
	})

	t.Run("password change revokes every session", func(t *testing.T) {
		first := f.signupAndLogin(t, "bob", "secret1")

		rec := f.do(t, http.MethodPost, "/users/login", "", map[string]string{"username": "bob", "password": "secret1"})
		testutil.AssertStatusCode(t, rec, http.StatusOK)
		var second services.LoginResult
		testutil.ParseEnvelope(t, rec, &second)

		rec = f.do(t, http.MethodPatch, "/users/me/password", first.Token,
			map[string]string{"currentPassword": "wrong-one", "password": "secret2"})
		testutil.AssertStatusCode(t, rec, http.StatusUnauthorized)
		assert.Equal(t, string(services.CodeInvalidCredentials), testutil.ParseErrorResponse(t, rec).Code)

		rec = f.do(t, http.MethodPatch, "/users/me/password", first.Token,
			map[string]string{"currentPassword": "secret1", "password": "secret2"})
		testutil.AssertStatusCode(t, rec, http.StatusOK)

		for _, token := range []string{first.Token, second.Token} {
			rec = f.do(t, http.MethodGet, "/users/me", token, nil)
			testutil.AssertStatusCode(t, rec, http.StatusUnauthorized)
		}

		rec = f.do(t, http.MethodPost, "/users/login", "", map[string]string{"username": "bob", "password": "secret2"})
		testutil.AssertStatusCode(t, rec, http.StatusOK)
	})
}

func TestAPI_Sessions(t *testing.T) {
	f := setupAPI(t)
	first := f.signupAndLogin(t, "ada", "secret1")

	rec := f.do(t, http.MethodPost, "/users/login", "", map[string]string{"username": "ada", "password": "secret1"})
	var second services.LoginResult
	testutil.ParseEnvelope(t, rec, &second)

	rec = f.do(t, http.MethodGet, "/users/me/sessions", first.Token, nil)
	testutil.AssertStatusCode(t, rec, http.StatusOK)
	var listed struct {
		Sessions []models.SessionInfo `json:"sessions"`
	}
	testutil.ParseEnvelope(t, rec, &listed)
	assert.Len(t, listed.Sessions, 2)

	rec = f.do(t, http.MethodDelete, "/users/me/sessions/"+second.SessionID, first.Token, nil)
	testutil.AssertStatusCode(t, rec, http.StatusOK)

	rec = f.do(t, http.MethodDelete, "/users/me/sessions/"+second.SessionID, first.Token, nil)
	testutil.AssertStatusCode(t, rec, http.StatusNotFound)

	rec = f.do(t, http.MethodGet, "/users/me", second.Token, nil)
	testutil.AssertStatusCode(t, rec, http.StatusUnauthorized)

	rec = f.do(t, http.MethodPost, "/users/me/sessions/revoke-others", first.Token, nil)
	testutil.AssertStatusCode(t, rec, http.StatusOK)
	var revoked struct {
		Revoked int `json:"revoked"`
	}
	testutil.ParseEnvelope(t, rec, &revoked)
	assert.Zero(t, revoked.Revoked)
}

func TestAPI_Tweets(t *testing.T) {
	f := setupAPI(t)
	ada := f.signupAndLogin(t, "ada", "secret1")
	bob := f.signupAndLogin(t, "bob", "secret1")

	rec := f.do(t, http.MethodPost, "/tweets", ada.Token, tweetBody("  Hello World "))
	testutil.AssertStatusCode(t, rec, http.StatusCreated)
	var tweet models.Tweet
	testutil.ParseEnvelope(t, rec, &tweet)
	assert.Equal(t, "hello world", tweet.Text)
	assert.Equal(t, ada.Principal.ID, tweet.Author)
	path := "/tweets/" + tweet.ID.Hex()

	t.Run("rejects invalid clock time", func(t *testing.T) {
		body := tweetBody("late")
		body["time"] = map[string]int{"hour": 24, "min": 0, "sec": 0}
		rec := f.do(t, http.MethodPost, "/tweets", ada.Token, body)
		testutil.AssertStatusCode(t, rec, http.StatusBadRequest)
	})

	t.Run("malformed id is a bad request", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/tweets/not-an-id", ada.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusBadRequest)
	})

	t.Run("only the author edits", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, path, bob.Token, map[string]string{"text": "hijacked"})
		testutil.AssertStatusCode(t, rec, http.StatusForbidden)

		rec = f.do(t, http.MethodPatch, path, ada.Token, map[string]string{"text": "Edited"})
		testutil.AssertStatusCode(t, rec, http.StatusOK)
		var updated models.Tweet
		testutil.ParseEnvelope(t, rec, &updated)
		assert.Equal(t, "edited", updated.Text)
	})

	t.Run("likes never drop below zero", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, path+"/like", bob.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusOK)

		for i := 0; i < 2; i++ {
			rec = f.do(t, http.MethodPatch, path+"/unlike", bob.Token, nil)
			testutil.AssertStatusCode(t, rec, http.StatusOK)
		}
		var liked models.Tweet
		testutil.ParseEnvelope(t, rec, &liked)
		assert.Zero(t, liked.Likes)
	})

	t.Run("retweet copies the original", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/tweets/retweet", bob.Token, map[string]string{"tweet": tweet.ID.Hex()})
		testutil.AssertStatusCode(t, rec, http.StatusCreated)
		var retweet models.Tweet
		testutil.ParseEnvelope(t, rec, &retweet)
		assert.True(t, retweet.Thread)
		assert.Equal(t, bob.Principal.ID, retweet.Author)
		require.NotNil(t, retweet.RetweetOf)
		assert.Equal(t, tweet.ID, *retweet.RetweetOf)
	})

	t.Run("my tweets are scoped to the caller", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/users/me/tweets", bob.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusOK)
		var page pageBody[models.Tweet]
		testutil.ParseEnvelope(t, rec, &page)
		require.Len(t, page.Data, 1)
		assert.Equal(t, bob.Principal.ID, page.Data[0].Author)
		assert.Equal(t, int64(1), page.Pagination.TotalItems)
	})

	t.Run("bad filter is a tagged 400", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/tweets?likes[near]=3", ada.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusBadRequest)
		assert.Equal(t, "BAD_FILTER", testutil.ParseErrorResponse(t, rec).Code)
	})

	t.Run("only the author deletes", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, path, bob.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusForbidden)

		rec = f.do(t, http.MethodDelete, path, ada.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusOK)

		rec = f.do(t, http.MethodGet, path, ada.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusNotFound)
	})
}

func TestAPI_ChatsAndMessages(t *testing.T) {
	f := setupAPI(t)
	ada := f.signupAndLogin(t, "ada", "secret1")
	bob := f.signupAndLogin(t, "bob", "secret1")
	eve := f.signupAndLogin(t, "eve", "secret1")

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/chats/%s/recipient", bob.Principal.ID.Hex()), ada.Token, nil)
	testutil.AssertStatusCode(t, rec, http.StatusOK)
	var chat models.Chat
	testutil.ParseEnvelope(t, rec, &chat)
	assert.True(t, chat.HasMember(ada.Principal.ID))

	send := func(token, to, text string) *httptest.ResponseRecorder {
		body := tweetBody(text)
		body["recipient"] = to
		return f.do(t, http.MethodPost, "/msgs/"+chat.ID.Hex()+"/msg", token, body)
	}

	t.Run("cannot chat with yourself", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, fmt.Sprintf("/chats/%s/recipient", ada.Principal.ID.Hex()), ada.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusBadRequest)
	})

	t.Run("members exchange messages", func(t *testing.T) {
		testutil.AssertStatusCode(t, send(ada.Token, bob.Principal.ID.Hex(), "hi bob"), http.StatusCreated)
		testutil.AssertStatusCode(t, send(bob.Token, ada.Principal.ID.Hex(), "hi ada"), http.StatusCreated)
		testutil.AssertStatusCode(t, send(ada.Token, eve.Principal.ID.Hex(), "wrong recipient"), http.StatusBadRequest)
		testutil.AssertStatusCode(t, send(eve.Token, bob.Principal.ID.Hex(), "intruder"), http.StatusNotFound)

		rec := f.do(t, http.MethodGet, "/msgs/"+chat.ID.Hex()+"/chat", bob.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusOK)
		var page pageBody[models.Message]
		testutil.ParseEnvelope(t, rec, &page)
		require.Len(t, page.Data, 2)
		assert.Equal(t, "hi bob", page.Data[0].Text)
	})

	t.Run("outsiders cannot read", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/msgs/"+chat.ID.Hex()+"/chat", eve.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusNotFound)
	})

	t.Run("chat list is scoped to the caller", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/chats", eve.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusOK)
		var page pageBody[models.Chat]
		testutil.ParseEnvelope(t, rec, &page)
		assert.Empty(t, page.Data)
	})

	t.Run("deleting a chat removes its messages", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/chats/"+chat.ID.Hex(), eve.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusOK)
		var noop models.ChatDeletion
		testutil.ParseEnvelope(t, rec, &noop)
		assert.False(t, noop.Deleted)

		rec = f.do(t, http.MethodDelete, "/chats/"+chat.ID.Hex(), ada.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusOK)
		var result models.ChatDeletion
		testutil.ParseEnvelope(t, rec, &result)
		assert.True(t, result.Deleted)
		assert.Equal(t, int64(2), result.MessagesDeleted)

		chats, msgs := f.store.Counts()
		assert.Zero(t, chats)
		assert.Zero(t, msgs)

		rec = f.do(t, http.MethodDelete, "/chats/"+chat.ID.Hex(), ada.Token, nil)
		testutil.AssertStatusCode(t, rec, http.StatusOK)
	})
}

func TestAPI_DeleteAccount(t *testing.T) {
	f := setupAPI(t)
	ada := f.signupAndLogin(t, "ada", "secret1")

	rec := f.do(t, http.MethodDelete, "/users/me", ada.Token, nil)
	testutil.AssertStatusCode(t, rec, http.StatusOK)

	rec = f.do(t, http.MethodGet, "/users/me", ada.Token, nil)
	testutil.AssertStatusCode(t, rec, http.StatusUnauthorized)

	rec = f.do(t, http.MethodGet, "/users/ada", "", nil)
	testutil.AssertStatusCode(t, rec, http.StatusNotFound)
}
