package model

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is rejecting requests.
var ErrCircuitOpen = errors.New("model circuit breaker is open")

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig configures the model-call circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // half-open successes required to close
	Cooldown         time.Duration // open duration before probing
}

// DefaultBreakerConfig returns the defaults used in production.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// breaker is a minimal circuit breaker guarding the model service.
// It keeps a storm of doomed requests from hammering a failing backend.
type breaker struct {
	mu          sync.Mutex
	state       circuitState
	failures    int
	successes   int
	lastFailure time.Time
	cfg         BreakerConfig
}

func newBreaker(cfg BreakerConfig) *breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultBreakerConfig().SuccessThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &breaker{state: circuitClosed, cfg: cfg}
}

// allow reports whether a request may proceed, transitioning
// open → half-open once the cooldown has elapsed.
func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == circuitOpen {
		if time.Since(b.lastFailure) <= b.cfg.Cooldown {
			return ErrCircuitOpen
		}
		b.state = circuitHalfOpen
		b.successes = 0
	}
	return nil
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = circuitClosed
			b.failures = 0
		}
	case circuitClosed:
		b.failures = 0
	}
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case circuitClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.state = circuitOpen
		}
	case circuitHalfOpen:
		b.state = circuitOpen
	}
}
