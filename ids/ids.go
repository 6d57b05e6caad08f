// Package ids defines SimCash's opaque identifier types. Transaction
// IDs are backed by UUIDs for global uniqueness, but no control-flow
// decision or sort order may depend on UUID byte values — every
// ordering in the engine sorts on structural fields first and falls
// back to lexicographic string comparison of an ID only as the very
// last tie-breaker.
package ids

import "github.com/google/uuid"

// TxID opaquely identifies a transaction.
type TxID string

// AgentID opaquely identifies an agent (bank).
type AgentID string

// Tick is the simulation's discrete time unit, counted from zero.
type Tick int64

// NewTxID returns a freshly generated, globally unique transaction ID.
// Its value must never be used for ordering or branching decisions —
// only for identity and lookup.
func NewTxID() TxID {
	return TxID(uuid.NewString())
}

// Day returns the zero-based day index containing tick t, given the
// number of ticks per day.
func (t Tick) Day(ticksPerDay int64) int64 {
	return int64(t) / ticksPerDay
}
