package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Metrics returns middleware that records Prometheus metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(duration)
	})
}

// normalizePath collapses ids out of paths to keep label cardinality low.
// Room sub-resources (messages, live, unread, read, join) stay distinct
// because they are the interesting traffic split.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/users/"):
		return "/users/:id"
	case strings.HasPrefix(path, "/attachments/"):
		return "/attachments/:id/variant"
	case strings.HasPrefix(path, "/blobs/"):
		return "/blobs/:ref"
	case strings.HasPrefix(path, "/rooms/"):
		rest := strings.SplitN(strings.TrimPrefix(path, "/rooms/"), "/", 3)
		if len(rest) < 2 {
			return "/rooms/:id"
		}
		if rest[1] == "messages" && len(rest) > 2 {
			return "/rooms/:id/messages/:mid"
		}
		return "/rooms/:id/" + rest[1]
	}
	return path
}
