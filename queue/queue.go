// Package queue implements SimCash's two queue types: the per-agent
// Q1 (obligations awaiting a policy decision) and the central Q2
// (obligations awaiting liquidity or an LSM pass).
package queue

import (
	"sort"

	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/txn"
)

// Q1 orders a single agent's pending transactions. Scan order is
// (priority desc, arrival_tick asc, tx_id asc), where the priority
// comes from the caller's PriorityFunc; policies do not reorder Q1.
type Q1 struct {
	items []*txn.Transaction
}

// NewQ1 returns an empty Q1.
func NewQ1() *Q1 {
	return &Q1{}
}

// Push appends t, preserving insertion order until Sorted is called.
func (q *Q1) Push(t *txn.Transaction) {
	q.items = append(q.items, t)
}

// Remove deletes the transaction with the given ID, if present.
func (q *Q1) Remove(id ids.TxID) {
	for i, t := range q.items {
		if t.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// Len reports the number of entries currently queued.
func (q *Q1) Len() int {
	return len(q.items)
}

// Items returns the raw, unsorted backing slice. Callers must not
// retain it across a Push/Remove.
func (q *Q1) Items() []*txn.Transaction {
	return q.items
}

// PriorityFunc computes a transaction's priority after optional
// escalation: the function is supplied by the caller (the
// settlement pipeline, which knows the escalation config); Sorted
// itself only orders by whatever priority function it is given.
type PriorityFunc func(t *txn.Transaction) int

// Sorted returns a new slice of the queued transactions ordered by
// (priorityFn desc, arrival_tick asc, tx_id asc). The queue itself is
// left untouched.
func (q *Q1) Sorted(priorityFn PriorityFunc) []*txn.Transaction {
	out := make([]*txn.Transaction, len(q.items))
	copy(out, q.items)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priorityFn(out[i]), priorityFn(out[j])
		if pi != pj {
			return pi > pj
		}
		if out[i].ArrivalTick != out[j].ArrivalTick {
			return out[i].ArrivalTick < out[j].ArrivalTick
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Q2Entry is one obligation resident in the central queue, carrying
// the tick it was enqueued on so a later release can report
// queue_wait_ticks.
type Q2Entry struct {
	Tx         *txn.Transaction
	AgentID    ids.AgentID // sender, for agent-indexed lookup
	EnqueuedAt ids.Tick
}

// Q2 is the central FIFO queue of obligations awaiting liquidity or
// an LSM pass, indexed by sender agent for fast per-agent contents
// queries.
type Q2 struct {
	entries []*Q2Entry
	byAgent map[ids.AgentID][]*Q2Entry
	byTx    map[ids.TxID]*Q2Entry
}

// NewQ2 returns an empty Q2.
func NewQ2() *Q2 {
	return &Q2{
		byAgent: make(map[ids.AgentID][]*Q2Entry),
		byTx:    make(map[ids.TxID]*Q2Entry),
	}
}

// Enqueue appends t (sent by senderID) to the tail of Q2 at enqueuedAt.
func (q *Q2) Enqueue(t *txn.Transaction, senderID ids.AgentID, enqueuedAt ids.Tick) {
	e := &Q2Entry{Tx: t, AgentID: senderID, EnqueuedAt: enqueuedAt}
	q.entries = append(q.entries, e)
	q.byAgent[senderID] = append(q.byAgent[senderID], e)
	q.byTx[t.ID] = e
}

// Remove deletes the entry for the given transaction ID from Q2, if
// present, and reports its enqueue tick (for queue_wait_ticks).
func (q *Q2) Remove(id ids.TxID) (ids.Tick, bool) {
	e, ok := q.byTx[id]
	if !ok {
		return 0, false
	}
	delete(q.byTx, id)

	for i, cur := range q.entries {
		if cur == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	agentEntries := q.byAgent[e.AgentID]
	for i, cur := range agentEntries {
		if cur == e {
			q.byAgent[e.AgentID] = append(agentEntries[:i], agentEntries[i+1:]...)
			break
		}
	}
	return e.EnqueuedAt, true
}

// Contains reports whether id is currently resident in Q2.
func (q *Q2) Contains(id ids.TxID) bool {
	_, ok := q.byTx[id]
	return ok
}

// EnqueuedAt returns the tick id was enqueued on, if present.
func (q *Q2) EnqueuedAt(id ids.TxID) (ids.Tick, bool) {
	e, ok := q.byTx[id]
	if !ok {
		return 0, false
	}
	return e.EnqueuedAt, true
}

// Len reports the total number of entries in Q2.
func (q *Q2) Len() int {
	return len(q.entries)
}

// FIFOOrder returns the entries in FIFO (enqueue) order, for the
// liquidity-release scan. The returned slice is a copy.
func (q *Q2) FIFOOrder() []*Q2Entry {
	out := make([]*Q2Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// ForAgent returns agentID's entries, oldest first. The returned slice
// is a copy.
func (q *Q2) ForAgent(agentID ids.AgentID) []*Q2Entry {
	src := q.byAgent[agentID]
	out := make([]*Q2Entry, len(src))
	copy(out, src)
	return out
}
