package timeout

import (
	"context"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// WithTimeout creates a context with timeout. A non-positive timeout uses 30s.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Middleware bounds every request context by timeout. Handlers observe the
// deadline through r.Context() and report it themselves.
func Middleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
