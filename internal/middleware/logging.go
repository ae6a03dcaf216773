package middleware

import (
	"net/http"
	"time"

	"clipbot/internal/logging"
)

// responseWriter wrapper to capture status code and bytes written
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Logger logs each admin request with method, path, status, size, and
// duration. Scrape traffic is frequent, so requests log at debug level
// and only error statuses are promoted to warn.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		if rw.statusCode >= 400 {
			logging.Warn("%s %s -> %d (%d bytes, %s)", r.Method, r.URL.Path, rw.statusCode, rw.bytesWritten, elapsed.Round(time.Microsecond))
			return
		}
		logging.Debug("%s %s -> %d (%d bytes, %s)", r.Method, r.URL.Path, rw.statusCode, rw.bytesWritten, elapsed.Round(time.Microsecond))
	})
}
