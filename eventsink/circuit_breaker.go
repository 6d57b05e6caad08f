package eventsink

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// circuitState is the state of a circuitBreaker.
type circuitState int32

const (
	stateClosed   circuitState = iota // normal operation, calls pass through
	stateHalfOpen                     // testing whether the sink has recovered
	stateOpen                         // failing fast, calls are not attempted
)

func (s circuitState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateHalfOpen:
		return "half-open"
	case stateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by circuitBreaker.call when the circuit
// is open and the call was skipped rather than attempted.
var ErrCircuitOpen = errors.New("eventsink: circuit breaker is open")

// circuitBreaker guards a single failing-prone operation (here,
// publishing an event to Kafka) so a broker outage degrades to
// fail-fast drops instead of blocking every tick on a dead network
// call.
type circuitBreaker struct {
	name            string
	maxFailures     int32
	resetTimeout    time.Duration
	halfOpenSuccess int32

	state             int32 // atomic circuitState
	failures          int32 // atomic
	lastFailureTime   int64 // atomic, UnixNano
	halfOpenSuccesses int32 // atomic
}

func newCircuitBreaker(name string, maxFailures int32, resetTimeout time.Duration, halfOpenSuccess int32) *circuitBreaker {
	return &circuitBreaker{
		name:            name,
		maxFailures:     maxFailures,
		resetTimeout:    resetTimeout,
		halfOpenSuccess: halfOpenSuccess,
		state:           int32(stateClosed),
	}
}

func (cb *circuitBreaker) call(fn func() error) error {
	if !cb.canExecute() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

func (cb *circuitBreaker) canExecute() bool {
	switch circuitState(atomic.LoadInt32(&cb.state)) {
	case stateClosed:
		return true
	case stateOpen:
		last := atomic.LoadInt64(&cb.lastFailureTime)
		if time.Since(time.Unix(0, last)) > cb.resetTimeout {
			if atomic.CompareAndSwapInt32(&cb.state, int32(stateOpen), int32(stateHalfOpen)) {
				atomic.StoreInt32(&cb.halfOpenSuccesses, 0)
				log.Info().Str("breaker", cb.name).Msg("circuit breaker half-open")
			}
			return true
		}
		return false
	case stateHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *circuitBreaker) recordFailure() {
	atomic.StoreInt64(&cb.lastFailureTime, time.Now().UnixNano())
	state := circuitState(atomic.LoadInt32(&cb.state))
	failures := atomic.AddInt32(&cb.failures, 1)

	switch state {
	case stateClosed:
		if failures >= cb.maxFailures {
			if atomic.CompareAndSwapInt32(&cb.state, int32(stateClosed), int32(stateOpen)) {
				log.Warn().Str("breaker", cb.name).Int32("failures", failures).Msg("circuit breaker open")
			}
		}
	case stateHalfOpen:
		if atomic.CompareAndSwapInt32(&cb.state, int32(stateHalfOpen), int32(stateOpen)) {
			atomic.StoreInt32(&cb.failures, 0)
			log.Warn().Str("breaker", cb.name).Msg("circuit breaker reopened")
		}
	}
}

func (cb *circuitBreaker) recordSuccess() {
	switch circuitState(atomic.LoadInt32(&cb.state)) {
	case stateClosed:
		atomic.StoreInt32(&cb.failures, 0)
	case stateHalfOpen:
		successes := atomic.AddInt32(&cb.halfOpenSuccesses, 1)
		if successes >= cb.halfOpenSuccess {
			if atomic.CompareAndSwapInt32(&cb.state, int32(stateHalfOpen), int32(stateClosed)) {
				atomic.StoreInt32(&cb.failures, 0)
				atomic.StoreInt32(&cb.halfOpenSuccesses, 0)
				log.Info().Str("breaker", cb.name).Msg("circuit breaker closed")
			}
		}
	}
}

func (cb *circuitBreaker) State() string {
	return circuitState(atomic.LoadInt32(&cb.state)).String()
}

// retryConfig controls retryWithBackoff.
type retryConfig struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	breaker      *circuitBreaker
}

func defaultRetryConfig(name string) retryConfig {
	return retryConfig{
		maxAttempts:  3,
		initialDelay: 50 * time.Millisecond,
		maxDelay:     500 * time.Millisecond,
		multiplier:   2.0,
		breaker:      newCircuitBreaker(name, 5, 30*time.Second, 2),
	}
}

// retryWithBackoff calls fn, retrying with exponential backoff and
// honoring cfg.breaker, up to cfg.maxAttempts.
func retryWithBackoff(ctx context.Context, cfg retryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.initialDelay

	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		if cfg.breaker != nil && !cfg.breaker.canExecute() {
			return fmt.Errorf("%w", ErrCircuitOpen)
		}

		err := fn()
		if err == nil {
			if cfg.breaker != nil {
				cfg.breaker.recordSuccess()
			}
			return nil
		}
		lastErr = err
		if cfg.breaker != nil {
			cfg.breaker.recordFailure()
		}
		if attempt >= cfg.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("eventsink: retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.multiplier)
		if delay > cfg.maxDelay {
			delay = cfg.maxDelay
		}
	}
	return fmt.Errorf("eventsink: max retries (%d) exceeded: %w", cfg.maxAttempts, lastErr)
}
