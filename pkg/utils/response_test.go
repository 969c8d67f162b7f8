package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithID(id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(WithRequestID(req.Context(), id))
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Equal(t, "", GetRequestID(context.Background()))
}

func TestRespondWithErrorCode(t *testing.T) {
	t.Run("client errors are FAIL", func(t *testing.T) {
		rec := httptest.NewRecorder()

		RespondWithErrorCode(rec, requestWithID("req-1"), http.StatusUnauthorized, "UNAUTHORIZED", "Please log in")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, StatusFail, body.Status)
		assert.Equal(t, "Unauthorized", body.Error)
		assert.Equal(t, "UNAUTHORIZED", body.Code)
		assert.Equal(t, "Please log in", body.Message)
		assert.Equal(t, "req-1", body.RequestID)
	})

	t.Run("server errors are ERROR", func(t *testing.T) {
		rec := httptest.NewRecorder()

		RespondWithError(rec, requestWithID("req-2"), http.StatusInternalServerError, "boom")

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, StatusError, body.Status)
		assert.Empty(t, body.Code)
	})
}

func TestRespondWithSuccess(t *testing.T) {
	rec := httptest.NewRecorder()

	RespondWithSuccess(rec, requestWithID("req-3"), http.StatusCreated, "Created", map[string]string{"id": "1"})

	assert.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusSuccess, body["status"])
	assert.Equal(t, "Created", body["message"])
	assert.Equal(t, "1", body["data"].(map[string]interface{})["id"])
}

func TestRespondWithMessage(t *testing.T) {
	rec := httptest.NewRecorder()

	RespondWithMessage(rec, requestWithID(""), http.StatusOK, "Logged out successfully")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Logged out successfully", body["message"])
	assert.NotContains(t, body, "data")
	assert.NotContains(t, body, "request_id")
}

func TestAuthCookies(t *testing.T) {
	t.Run("sets http only cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		expires := time.Now().Add(time.Hour)

		SetAuthCookie(rec, "session", "token-value", expires, true)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "session", cookies[0].Name)
		assert.Equal(t, "token-value", cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	})

	t.Run("clears cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()

		ClearAuthCookie(rec, "session")

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "", cookies[0].Value)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})
}
