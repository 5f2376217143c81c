package recovery

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"

	apperrors "github.com/quangdang46/DeFi-Wallet/shared/errors"
	"github.com/quangdang46/DeFi-Wallet/shared/logging"
)

// PanicHandler handles panic recovery
type PanicHandler struct {
	logger  *logging.Logger
	onPanic func(recovered interface{}, stack []byte)
}

// Option configures PanicHandler
type Option func(*PanicHandler)

// WithPanicCallback sets a callback for when panic occurs
func WithPanicCallback(fn func(recovered interface{}, stack []byte)) Option {
	return func(ph *PanicHandler) {
		ph.onPanic = fn
	}
}

// NewPanicHandler creates a new panic handler
func NewPanicHandler(logger *logging.Logger, opts ...Option) *PanicHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	ph := &PanicHandler{logger: logger}
	for _, opt := range opts {
		opt(ph)
	}
	return ph
}

// HTTPMiddleware returns an HTTP middleware for panic recovery
func (ph *PanicHandler) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				ph.handleHTTPPanic(w, r, rec)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (ph *PanicHandler) handleHTTPPanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	stack := debug.Stack()

	ph.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
		"method":    r.Method,
		"path":      r.URL.Path,
		"recovered": fmt.Sprint(recovered),
		"stack":     string(stack),
	}).Error("http panic recovered")

	if ph.onPanic != nil {
		ph.onPanic(recovered, stack)
	}

	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetContext("panic", map[string]interface{}{
			"path":   r.URL.Path,
			"method": r.Method,
		})
		hub.CaptureException(fmt.Errorf("http panic: %v", recovered))
	})

	apperrors.WriteJSON(w, apperrors.Internal("internal server error"))
}
