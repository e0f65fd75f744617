package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

type loggedResponse struct {
	http.ResponseWriter
	status  int
	written int64
}

func (lr *loggedResponse) WriteHeader(code int) {
	if lr.status == 0 {
		lr.status = code
	}
	lr.ResponseWriter.WriteHeader(code)
}

func (lr *loggedResponse) Write(p []byte) (int, error) {
	if lr.status == 0 {
		lr.status = http.StatusOK
	}
	n, err := lr.ResponseWriter.Write(p)
	lr.written += int64(n)
	return n, err
}

// WithAccessLog emits one structured line per request. Server errors log at
// error level so they stand out without a separate alerting pipeline.
func WithAccessLog(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			lr := &loggedResponse{ResponseWriter: w}
			next.ServeHTTP(lr, r)

			level := slog.LevelInfo
			if lr.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", lr.status,
				"bytes", lr.written,
				"duration_ms", time.Since(began).Milliseconds(),
			)
		})
	}
}
