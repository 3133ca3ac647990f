package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/caresync/telehealth-ivr/pkg/logging"
)

// requestID prefers the caller's header, then chi's generated ID.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	if id := chimw.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RequestLogger writes one access line per request. Webhook requests are
// tagged with the call SID and a masked caller number once the handler has
// parsed the form.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			id := requestID(r)
			rec := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rec, r)

			status := rec.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []slog.Attr{
				slog.String("request_id", id),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", rec.BytesWritten()),
				slog.Int64("duration_ms", time.Since(began).Milliseconds()),
			}
			if sid := r.PostForm.Get("CallSid"); sid != "" {
				attrs = append(attrs, slog.String("call_sid", sid))
			}
			if from := r.PostForm.Get("From"); from != "" {
				attrs = append(attrs, slog.String("from", logging.MaskPhone(from)))
			}
			logger.LogAttrs(r.Context(), levelFor(status), "http: request served", attrs...)
		})
	}
}
