package middleware

import (
	"bufio"
	"log"
	"net"
	"net/http"
	"time"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade pass through the logger.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// LoggerMiddleware logs each request once it completes. The device comes from
// the auth context when the route is authenticated, or the X-Device-ID header.
func LoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			// Auth runs inside this handler, so the device it resolves is
			// written back through the shared pointer.
			var seen requestInfo
			next.ServeHTTP(rw, r.WithContext(withRequestInfo(r.Context(), &seen)))

			device := seen.deviceID
			if device == "" {
				device = r.Header.Get(DeviceHeader)
			}
			if device == "" {
				device = "-"
			}

			log.Printf("[HTTP] %s %s %s - Status: %d - Duration: %v - Device: %s",
				r.Method,
				r.URL.Path,
				r.RemoteAddr,
				rw.statusCode,
				time.Since(start),
				device,
			)
		})
	}
}
