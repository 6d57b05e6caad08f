// Package event implements SimCash's append-only event log, the
// single source of truth for post-hoc state. Every observable state
// change in the engine is recorded as a typed Event tagged with the
// tick it occurred on; consumers may read the whole stream, filter by
// tick, or filter by kind. Producers must not remove existing payload
// fields from an event once emitted; consumers must tolerate unknown
// ones.
package event

import (
	"github.com/paynet/simcash/ids"
)

// Kind enumerates every observable event type the engine can emit.
type Kind string

const (
	KindArrival                Kind = "Arrival"
	KindPolicyHold             Kind = "PolicyHold"
	KindPolicySplit            Kind = "PolicySplit"
	KindPostCollateral         Kind = "PostCollateral"
	KindReleaseCollateral      Kind = "ReleaseCollateral"
	KindRtgsImmediateSettle    Kind = "RtgsImmediateSettlement"
	KindQueuedRtgs             Kind = "QueuedRtgs"
	KindQueue2Enqueue          Kind = "Queue2Enqueue"
	KindQueue2LiquidityRelease Kind = "Queue2LiquidityRelease"
	KindLsmBilateralOffset     Kind = "LsmBilateralOffset"
	KindLsmCycleSettlement     Kind = "LsmCycleSettlement"
	KindSettlement             Kind = "Settlement"
	KindCostAccrual            Kind = "CostAccrual"
	KindTransactionOverdue     Kind = "TransactionWentOverdue"
	KindOverdueSettlement      Kind = "OverdueSettlement"
	KindStateRegisterSet       Kind = "StateRegisterSet"
	KindEndOfDay               Kind = "EndOfDay"
	KindScenarioEventExecuted  Kind = "ScenarioEventExecuted"
	KindSimulationStart        Kind = "SimulationStart"
	KindSimulationEnd          Kind = "SimulationEnd"
)

// Event is a single typed, immutable log record. Payload fields are
// populated according to Kind; consumers must tolerate fields being
// absent (zero-valued) for kinds that don't use them.
type Event struct {
	Tick ids.Tick `json:"tick"`
	Kind Kind     `json:"event_type"`

	// Transaction identity.
	TxID     ids.TxID   `json:"tx_id,omitempty"`
	TxIDs    []ids.TxID `json:"tx_ids,omitempty"`
	ParentID ids.TxID   `json:"parent_id,omitempty"`
	ChildIDs []ids.TxID `json:"child_ids,omitempty"`

	// Parties.
	SenderID   ids.AgentID   `json:"sender_id,omitempty"`
	ReceiverID ids.AgentID   `json:"receiver_id,omitempty"`
	AgentID    ids.AgentID   `json:"agent_id,omitempty"`
	Agents     []ids.AgentID `json:"agents,omitempty"`

	// Monetary fields (integer cents).
	Amount       int64            `json:"amount,omitempty"`
	Amounts      []int64          `json:"amounts,omitempty"`
	NetPositions map[ids.AgentID]int64 `json:"net_positions,omitempty"`

	// Cost/penalty fields.
	CostType string `json:"cost_type,omitempty"`
	Reason   string `json:"reason,omitempty"`

	// Queue fields.
	ReleaseReason  string `json:"release_reason,omitempty"`
	QueueWaitTicks int64  `json:"queue_wait_ticks,omitempty"`

	// State-register fields.
	RegisterKey string  `json:"register_key,omitempty"`
	OldValue    float64 `json:"old_value,omitempty"`
	NewValue    float64 `json:"new_value,omitempty"`

	// Free-form label for scenario/diagnostic events.
	Label string `json:"label,omitempty"`
}

// Sink receives events as they're emitted. The default in-memory Log
// implements Sink; drivers may supply their own (e.g. streaming to
// Kafka) so the engine never needs to retain a full in-memory history
// itself when an external sink is attached.
type Sink interface {
	Append(e Event)
}

// Log is an in-memory, append-only Sink and also the default reference
// implementation consumers query against.
type Log struct {
	events []Event
	byTick map[ids.Tick][]int
	byKind map[Kind][]int
}

// NewLog returns an empty Log ready to accept events.
func NewLog() *Log {
	return &Log{
		byTick: make(map[ids.Tick][]int),
		byKind: make(map[Kind][]int),
	}
}

// Append records e as the next entry in the log. An append-order
// violation (out-of-order tick) is an invariant failure; Log itself
// doesn't enforce ordering (the scheduler does, by never appending out
// of order), but it does track index-by-tick for O(1) range reads.
func (l *Log) Append(e Event) {
	idx := len(l.events)
	l.events = append(l.events, e)
	l.byTick[e.Tick] = append(l.byTick[e.Tick], idx)
	l.byKind[e.Kind] = append(l.byKind[e.Kind], idx)
}

// Truncate discards every event appended from index n onward,
// rebuilding byTick/byKind to match. Only a caller rolling back a
// failed tick (which needs the log itself to look as if the tick
// never ran) should call this — Log otherwise only ever grows.
func (l *Log) Truncate(n int) {
	if n >= len(l.events) {
		return
	}
	l.events = l.events[:n]
	for tick, idxs := range l.byTick {
		kept := idxs[:0:0]
		for _, i := range idxs {
			if i < n {
				kept = append(kept, i)
			}
		}
		if len(kept) == 0 {
			delete(l.byTick, tick)
		} else {
			l.byTick[tick] = kept
		}
	}
	for kind, idxs := range l.byKind {
		kept := idxs[:0:0]
		for _, i := range idxs {
			if i < n {
				kept = append(kept, i)
			}
		}
		if len(kept) == 0 {
			delete(l.byKind, kind)
		} else {
			l.byKind[kind] = kept
		}
	}
}

// All returns every event recorded so far, in append order. The
// returned slice is owned by the caller's view only — callers must not
// mutate it.
func (l *Log) All() []Event {
	return l.events
}

// ForTick returns every event recorded for a given tick, in append
// order.
func (l *Log) ForTick(t ids.Tick) []Event {
	idxs := l.byTick[t]
	out := make([]Event, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, l.events[i])
	}
	return out
}

// ForKind returns every event of a given kind, in append order.
func (l *Log) ForKind(k Kind) []Event {
	idxs := l.byKind[k]
	out := make([]Event, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, l.events[i])
	}
	return out
}

// Len returns the total number of events recorded.
func (l *Log) Len() int {
	return len(l.events)
}

// MultiSink fans an Append out to several Sinks, so the engine can feed
// both its own in-memory Log and an external driver-supplied sink (e.g.
// a Kafka-backed one) without knowing about either concretely.
type MultiSink struct {
	Sinks []Sink
}

// Append forwards e to every configured sink in order.
func (m MultiSink) Append(e Event) {
	for _, s := range m.Sinks {
		s.Append(e)
	}
}
