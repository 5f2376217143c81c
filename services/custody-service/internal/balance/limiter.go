package balance

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinInterval spaces calls to one explorer endpoint
const DefaultMinInterval = 2 * time.Second

// Limiter hands out one token bucket per endpoint name
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

func NewLimiter(minInterval time.Duration) *Limiter {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		interval: minInterval,
	}
}

// Allow reports whether endpoint may be called now. It never waits.
func (l *Limiter) Allow(endpoint string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[endpoint]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limiters[endpoint] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
