package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling fn while a breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name          string
	MaxFailures   uint32
	ResetTimeout  time.Duration
	OnStateChange func(name string, from, to State)
}

// DefaultCircuitBreakerConfig trips after five consecutive failures and probes again after a minute
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:         "default",
		MaxFailures:  5,
		ResetTimeout: time.Minute,
	}
}

// CircuitBreaker stops calling a failing dependency until ResetTimeout has
// passed, then lets a single probe through.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu          sync.Mutex
	state       State
	failures    uint32
	openedAt    time.Time
	probeActive bool
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	cfg := *config
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn if the breaker allows it and records the outcome
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.acquire() {
		return fmt.Errorf("%s: %w", cb.cfg.Name, ErrCircuitOpen)
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) acquire() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.probeActive = true
		return true
	default:
		if cb.probeActive {
			return false
		}
		cb.probeActive = true
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		if cb.state != StateClosed {
			cb.transition(StateClosed)
		}
		cb.probeActive = false
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
		cb.openedAt = cb.now()
		cb.transition(StateOpen)
	}
	cb.probeActive = false
}

// transition must be called with mu held
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CircuitBreakerGroup manages one breaker per dependency name
type CircuitBreakerGroup struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	template CircuitBreakerConfig
}

// NewCircuitBreakerGroup creates a group whose breakers share template's settings
func NewCircuitBreakerGroup(template *CircuitBreakerConfig) *CircuitBreakerGroup {
	if template == nil {
		template = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreakerGroup{
		breakers: make(map[string]*CircuitBreaker),
		template: *template,
	}
}

// Get returns a circuit breaker by name, creating it if it doesn't exist
func (g *CircuitBreakerGroup) Get(name string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, ok := g.breakers[name]; ok {
		return cb
	}
	cfg := g.template
	cfg.Name = name
	cb := NewCircuitBreaker(&cfg)
	g.breakers[name] = cb
	return cb
}
