package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smart-mcp-proxy/connresult/internal/reqcontext"
)

// correlationIDMiddleware injects correlation ID and request source into context.
// A client-supplied X-Correlation-ID is kept only when it is well formed.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := reqcontext.GetOrNewCorrelationID(r.Header.Get(reqcontext.CorrelationIDHeader))

		ctx := reqcontext.WithCorrelationID(r.Context(), correlationID)
		ctx = reqcontext.WithRequestSource(ctx, reqcontext.SourceRESTAPI)

		// Set before calling next so the header survives a panic
		w.Header().Set(reqcontext.CorrelationIDHeader, correlationID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// httpLoggingMiddleware logs every request once it has been served
func (s *Server) httpLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(ww, r)

		s.logger.Debugw("HTTP API Request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"status", ww.statusCode,
			"duration", time.Since(start),
			"correlation_id", reqcontext.GetCorrelationID(r.Context()))
	})
}

// metricsMiddleware records request counts and latency. The path label is the
// matched route pattern so tokens never become label values.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		s.observability.Metrics().RecordHTTPRequest(r.Method, path, ww.statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
