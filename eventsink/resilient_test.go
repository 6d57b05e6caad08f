package eventsink

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paynet/simcash/event"
	"github.com/paynet/simcash/ids"
)

// flakySink fails its first failUntil calls then succeeds, recording
// every attempt it sees.
type flakySink struct {
	mu        sync.Mutex
	failUntil int
	attempts  int
	received  []event.Event
}

func (f *flakySink) TryAppend(e event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failUntil {
		return errors.New("flaky sink: simulated failure")
	}
	f.received = append(f.received, e)
	return nil
}

func TestResilientRetriesThenSucceeds(t *testing.T) {
	sink := &flakySink{failUntil: 2}
	r := NewResilient(sink, "test")

	r.Append(event.Event{Tick: ids.Tick(1), Kind: event.KindArrival})

	require.Equal(t, 3, sink.attempts)
	require.Len(t, sink.received, 1)
}

func TestResilientDropsAfterExhaustingRetries(t *testing.T) {
	sink := &flakySink{failUntil: 100}
	r := NewResilient(sink, "test")

	r.Append(event.Event{Tick: ids.Tick(1), Kind: event.KindArrival})

	require.Equal(t, 3, sink.attempts)
	require.Empty(t, sink.received)
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := newCircuitBreaker("test", 2, 0, 1)
	err1 := cb.call(func() error { return errors.New("boom") })
	err2 := cb.call(func() error { return errors.New("boom") })
	require.Error(t, err1)
	require.Error(t, err2)
	require.Equal(t, "open", cb.State())

	err3 := cb.call(func() error { return nil })
	require.NoError(t, err3, "resetTimeout is 0 so the breaker should immediately allow a half-open probe")
}
