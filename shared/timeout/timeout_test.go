package timeout

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMiddlewareSetsDeadline(t *testing.T) {
	var remaining time.Duration
	h := Middleware(time.Second)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		assert.True(t, ok)
		remaining = time.Until(deadline)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, time.Second)
}

func TestWithTimeoutDefault(t *testing.T) {
	ctx, cancel := WithTimeout(t.Context(), 0)
	defer cancel()

	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.InDelta(t, defaultTimeout.Seconds(), time.Until(deadline).Seconds(), 1)
}
