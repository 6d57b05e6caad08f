package eventsink

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/paynet/simcash/event"
)

// FallibleSink is an event.Sink whose publish step can fail and report
// why. KafkaSink implements it via TryAppend.
type FallibleSink interface {
	TryAppend(e event.Event) error
}

// Resilient wraps a FallibleSink with retry-with-backoff and a circuit
// breaker, so a struggling downstream (a slow or unreachable Kafka
// broker) degrades to dropped events instead of stalling the
// Orchestrator's tick loop, which always calls Sink.Append
// synchronously and cannot tolerate it blocking.
type Resilient struct {
	inner FallibleSink
	cfg   retryConfig
	name  string
}

// NewResilient wraps inner with the given breaker name (used only in
// log lines) and the package's default retry/backoff schedule: 3
// attempts, 50ms initial delay doubling up to 500ms, circuit opens
// after 5 consecutive failures and probes again after 30s.
func NewResilient(inner FallibleSink, name string) *Resilient {
	return &Resilient{inner: inner, cfg: defaultRetryConfig(name), name: name}
}

// Append implements event.Sink. A publish failure, after exhausting
// retries or while the circuit is open, is logged and swallowed: the
// in-memory event.Log the Orchestrator also writes to remains the
// authoritative record regardless of what happens downstream.
func (r *Resilient) Append(e event.Event) {
	err := retryWithBackoff(context.Background(), r.cfg, func() error {
		return r.inner.TryAppend(e)
	})
	if err != nil {
		log.Error().Err(err).Str("sink", r.name).Str("kind", string(e.Kind)).
			Str("circuit_state", r.cfg.breaker.State()).
			Msg("dropping event after exhausting retries")
	}
}
