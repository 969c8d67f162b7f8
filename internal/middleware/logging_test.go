package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/internal/testutil"
	"github.com/WencesJ/Speer-Tweeter/pkg/utils"
)

// captureLogs redirects the global logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()

	buf := &bytes.Buffer{}
	prev := log.Logger
	log.Logger = zerolog.New(buf)
	t.Cleanup(func() { log.Logger = prev })
	return buf
}

// logLines decodes every JSON line written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &line))
		lines = append(lines, line)
	}
	return lines
}

func TestLogger(t *testing.T) {
	t.Run("generates a request id", func(t *testing.T) {
		captureLogs(t)
		var seen string
		handler := Logger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = utils.GetRequestID(r.Context())
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tweets", nil))

		id := rec.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, seen)
	})

	t.Run("upstream ids", func(t *testing.T) {
		tests := []struct {
			name string
			id   string
			keep bool
		}{
			{name: "usable", id: "lb-7f3a9c", keep: true},
			{name: "control characters", id: "abc\n{\"level\":\"fatal\"}", keep: false},
			{name: "too long", id: strings.Repeat("a", maxRequestIDLen+1), keep: false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				captureLogs(t)
				handler := Logger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

				req := httptest.NewRequest(http.MethodGet, "/tweets", nil)
				req.Header.Set(RequestIDHeader, tt.id)
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)

				if tt.keep {
					assert.Equal(t, tt.id, rec.Header().Get(RequestIDHeader))
				} else {
					assert.NotEqual(t, tt.id, rec.Header().Get(RequestIDHeader))
					assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
				}
			})
		}
	})

	t.Run("writes one access line with route and user", func(t *testing.T) {
		buf := captureLogs(t)
		principal := testutil.TestPrincipal()

		r := chi.NewRouter()
		r.Use(Logger())
		auth := new(mockAuthenticator)
		auth.On("Authenticate", mock.Anything, "token").Return(principal, &models.Session{}, nil)
		r.Use(RequireSession(auth, "sid"))
		r.Delete("/chats/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"SUCCESS"}`))
		})

		req := httptest.NewRequest(http.MethodDelete, "/chats/65a5c0e2f1d2a3b4c5d6e7f8", nil)
		req.Header.Set("Authorization", "Bearer token")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		lines := logLines(t, buf)
		require.Len(t, lines, 1)
		line := lines[0]
		assert.Equal(t, "info", line["level"])
		assert.Equal(t, "/chats/{id}", line["route"])
		assert.Equal(t, principal.ID.Hex(), line["user_id"])
		assert.Equal(t, float64(http.StatusOK), line["status"])
		assert.Equal(t, rec.Header().Get(RequestIDHeader), line["request_id"])
		assert.NotContains(t, buf.String(), "65a5c0e2f1d2a3b4c5d6e7f8")
	})

	t.Run("server errors log at error level", func(t *testing.T) {
		buf := captureLogs(t)
		handler := Logger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ready", nil))

		lines := logLines(t, buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "error", lines[0]["level"])
		assert.NotContains(t, lines[0], "user_id")
	})

	t.Run("binds a request logger to the context", func(t *testing.T) {
		buf := captureLogs(t)
		handler := Logger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			zerolog.Ctx(r.Context()).Info().Msg("inside handler")
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tweets", nil))

		lines := logLines(t, buf)
		require.Len(t, lines, 2)
		assert.Equal(t, "inside handler", lines[0]["message"])
		assert.Equal(t, rec.Header().Get(RequestIDHeader), lines[0]["request_id"])
	})
}

func TestRecoverer(t *testing.T) {
	t.Run("answers 500 without leaking the panic", func(t *testing.T) {
		buf := captureLogs(t)
		handler := Logger()(Recoverer()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("nil map write in tweet handler")
		})))

		rec := httptest.NewRecorder()
		assert.NotPanics(t, func() {
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tweets", nil))
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := testutil.ParseErrorResponse(t, rec)
		assert.Equal(t, utils.StatusError, body.Status)
		assert.Equal(t, "Internal Server Error", body.Message)
		assert.Equal(t, rec.Header().Get(RequestIDHeader), body.RequestID)
		assert.NotContains(t, rec.Body.String(), "nil map write")

		lines := logLines(t, buf)
		require.Len(t, lines, 2)
		assert.Equal(t, "Panic recovered", lines[0]["message"])
		assert.Equal(t, body.RequestID, lines[0]["request_id"])
		assert.Contains(t, lines[0]["stack"], "runtime/debug.Stack")
		assert.Equal(t, float64(http.StatusInternalServerError), lines[1]["status"])
	})

	t.Run("works without a request logger", func(t *testing.T) {
		buf := captureLogs(t)
		handler := Recoverer()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(assert.AnError)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, buf.String(), "Panic recovered")
	})

	t.Run("re-panics http.ErrAbortHandler", func(t *testing.T) {
		handler := Recoverer()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))

		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/abort", nil))
		})
	})

	t.Run("passes through normal requests", func(t *testing.T) {
		handler := Recoverer()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tweets", nil))

		assert.Equal(t, http.StatusCreated, rec.Code)
	})
}

func BenchmarkLogger(b *testing.B) {
	prev := log.Logger
	log.Logger = zerolog.Nop()
	defer func() { log.Logger = prev }()

	handler := Logger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/tweets", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}
