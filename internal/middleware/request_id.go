package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"healthboard/pkg/logger"
)

// ContextKey is a type for context keys used by middleware
type ContextKey string

// RequestIDContextKey is the key for the request ID in context
const RequestIDContextKey ContextKey = "request_id"

// RequestID creates a middleware that adds a unique request ID to each request
func RequestID(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()

			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
			r = r.WithContext(ctx)

			// Add to response header
			w.Header().Set("X-Request-ID", requestID)

			logger.WithField("request_id", requestID).Debug("Request received")

			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDFromContext returns the request ID stored by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDContextKey).(string); ok {
		return id
	}
	return ""
}
