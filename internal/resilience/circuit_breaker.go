// Package resilience provides a small per-resource circuit breaker used to
// stop retrying an operation that keeps failing until it has had time to
// recover.
package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/matchcam/core/internal/logging"
)

// State is the circuit breaker's lifecycle state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config controls when a breaker trips and how long it stays open.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// CircuitBreaker guards a single resource (e.g. one camera) against
// repeated failing attempts. After FailureThreshold consecutive failures it
// opens and short-circuits calls until RecoveryTimeout elapses, then lets a
// single half-open probe through before closing again.
type CircuitBreaker struct {
	name   string
	config Config
	logger *logging.Logger

	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
}

// New creates a closed circuit breaker identified by name for logging.
func New(name string, config Config, logger *logging.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	return &CircuitBreaker{name: name, config: config, logger: logger, state: StateClosed}
}

// Call runs op if the breaker allows it, recording the outcome. It returns
// *OpenError without invoking op when the breaker is open and the recovery
// timeout has not yet elapsed.
func (cb *CircuitBreaker) Call(op func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := op()
	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if time.Since(cb.lastFailureTime) <= cb.config.RecoveryTimeout {
		return &OpenError{Name: cb.name, FailureCount: cb.failureCount}
	}
	cb.state = StateHalfOpen
	cb.logger.WithFields(logging.Fields{"breaker": cb.name}).Info("circuit breaker probing half-open")
	return nil
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()
	if cb.failureCount >= cb.config.FailureThreshold {
		if cb.state != StateOpen {
			cb.logger.WithFields(logging.Fields{
				"breaker": cb.name, "failure_count": cb.failureCount,
			}).Warn("circuit breaker opened")
		}
		cb.state = StateOpen
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state != StateClosed {
		cb.logger.WithFields(logging.Fields{"breaker": cb.name}).Info("circuit breaker closed")
	}
	cb.state = StateClosed
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to closed, discarding its failure history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
	cb.lastFailureTime = time.Time{}
}

// OpenError is returned by Call when the breaker is open.
type OpenError struct {
	Name         string
	FailureCount int
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q open after %d failures", e.Name, e.FailureCount)
}
