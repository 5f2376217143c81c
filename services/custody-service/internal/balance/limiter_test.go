package balance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_PerEndpoint(t *testing.T) {
	l := NewLimiter(time.Hour)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "endpoints are limited independently")
}

func TestLimiter_IntervalElapses(t *testing.T) {
	l := NewLimiter(20 * time.Millisecond)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	time.Sleep(30 * time.Millisecond)
	assert.True(t, l.Allow("a"))
}
