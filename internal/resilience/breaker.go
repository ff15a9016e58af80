// Package resilience classifies downstream failures and guards each external
// data source with its own circuit breaker.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the reset timeout elapses.
	CircuitOpen
	// CircuitHalfOpen lets a probe through to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the source's circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures before
	// the circuit opens. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a probe is
	// allowed. Default: 30s.
	ResetTimeout time.Duration
}

// FromBreakerConfig converts config values to a BreakerConfig, keeping
// defaults for non-positive inputs.
func FromBreakerConfig(failureThreshold, resetTimeoutSecs int) BreakerConfig {
	cfg := BreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}

type breaker struct {
	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
}

// SourceBreakers keeps one circuit per catalog entry so that a provider that
// keeps failing stops receiving test traffic without affecting other sources.
type SourceBreakers struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*breaker

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewSourceBreakers creates an empty breaker registry.
func NewSourceBreakers(cfg BreakerConfig) *SourceBreakers {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &SourceBreakers{
		cfg:      cfg,
		breakers: make(map[string]*breaker),
		nowFunc:  time.Now,
	}
}

// Allow returns ErrCircuitOpen if calls to source are currently rejected. An
// open circuit whose reset timeout has elapsed moves to half-open and admits
// the caller as its probe.
func (sb *SourceBreakers) Allow(source string) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	b := sb.get(source)
	if b.state != CircuitOpen {
		return nil
	}
	if sb.nowFunc().Sub(b.openedAt) >= sb.cfg.ResetTimeout {
		sb.transition(source, b, CircuitHalfOpen)
		return nil
	}
	return eris.Wrapf(ErrCircuitOpen, "source %s", source)
}

// Record feeds the outcome of a call back into the source's circuit. Only
// transient errors count as failures; a validation-style rejection from the
// provider says nothing about its health.
func (sb *SourceBreakers) Record(source string, err error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	b := sb.get(source)
	if err == nil || !IsTransient(err) {
		b.consecutiveFailures = 0
		if b.state == CircuitHalfOpen {
			sb.transition(source, b, CircuitClosed)
		}
		return
	}

	b.consecutiveFailures++
	switch b.state {
	case CircuitClosed:
		if b.consecutiveFailures >= sb.cfg.FailureThreshold {
			b.openedAt = sb.nowFunc()
			sb.transition(source, b, CircuitOpen)
		}
	case CircuitHalfOpen:
		b.openedAt = sb.nowFunc()
		sb.transition(source, b, CircuitOpen)
	}
}

// State returns the current state of the source's circuit.
func (sb *SourceBreakers) State(source string) CircuitState {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	b, ok := sb.breakers[source]
	if !ok {
		return CircuitClosed
	}
	if b.state == CircuitOpen && sb.nowFunc().Sub(b.openedAt) >= sb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return b.state
}

// Reset closes the source's circuit.
func (sb *SourceBreakers) Reset(source string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	delete(sb.breakers, source)
}

func (sb *SourceBreakers) get(source string) *breaker {
	b, ok := sb.breakers[source]
	if !ok {
		b = &breaker{state: CircuitClosed}
		sb.breakers[source] = b
	}
	return b
}

func (sb *SourceBreakers) transition(source string, b *breaker, to CircuitState) {
	from := b.state
	b.state = to
	zap.L().Info("source circuit state change",
		zap.String("source", source),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}
