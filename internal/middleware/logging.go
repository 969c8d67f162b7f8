package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/WencesJ/Speer-Tweeter/pkg/utils"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds ids accepted from upstream proxies.
const maxRequestIDLen = 64

type accessLogKey struct{}

// accessLog collects fields discovered while the request is served, such
// as the user the session gate resolved. Handlers deeper in the chain see
// a derived context, so they write through this pointer.
type accessLog struct {
	userID string
}

// noteUser records the authenticated user on the access log line.
func noteUser(ctx context.Context, userID string) {
	if entry, ok := ctx.Value(accessLogKey{}).(*accessLog); ok {
		entry.userID = userID
	}
}

// Logger assigns every request a correlation id and writes one access log
// line when it completes.
//
// The id is taken from X-Request-ID when the caller sent a usable one and
// generated otherwise. It is echoed in the response header, stored in the
// context for the JSON envelopes, and bound to a request-scoped zerolog
// logger reachable through zerolog.Ctx.
//
// The line carries the chi route pattern rather than the raw path, plus the
// user id once the session gate has run. 5xx responses log at error level.
//
//	{"level":"info","request_id":"…","method":"DELETE","route":"/api/v1/chats/{id}","user_id":"65a5…","status":200,"bytes":74,"duration":3.1,"message":"Request completed"}
func Logger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := requestIDFrom(r)
			entry := &accessLog{}

			logger := log.With().Str("request_id", requestID).Logger()
			ctx := utils.WithRequestID(r.Context(), requestID)
			ctx = context.WithValue(ctx, accessLogKey{}, entry)
			ctx = logger.WithContext(ctx)
			r = r.WithContext(ctx)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(ww, r)

			event := logger.Info()
			if ww.Status() >= http.StatusInternalServerError {
				event = logger.Error()
			}
			if entry.userID != "" {
				event = event.Str("user_id", entry.userID)
			}
			event.
				Str("method", r.Method).
				Str("route", routePattern(r)).
				Str("remote_ip", utils.ExtractClientIP(r)).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("Request completed")
		})
	}
}

// requestIDFrom reuses the caller's id when it is short and printable, so
// a forged header cannot inject content into log lines.
func requestIDFrom(r *http.Request) string {
	id := r.Header.Get(RequestIDHeader)
	if id == "" || len(id) > maxRequestIDLen {
		return uuid.NewString()
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '!' || id[i] > '~' {
			return uuid.NewString()
		}
	}
	return id
}

// Recoverer turns a panic into the standard 500 envelope. The panic value
// and stack are logged and never sent to the client. http.ErrAbortHandler
// is re-panicked so net/http still aborts the connection.
//
// Mount it inside Logger so the recovered request keeps its id:
//
//	r.Use(middleware.Logger())
//	r.Use(middleware.Recoverer())
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger := zerolog.Ctx(r.Context())
				if logger.GetLevel() == zerolog.Disabled {
					logger = &log.Logger
				}
				logger.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("Panic recovered")

				utils.RespondWithError(w, r, http.StatusInternalServerError, "Internal Server Error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
