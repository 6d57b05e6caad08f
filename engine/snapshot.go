package engine

import (
	"github.com/paynet/simcash/agent"
	"github.com/paynet/simcash/arrival"
	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/queue"
	"github.com/paynet/simcash/txn"
)

// agentSnapshot captures one agent's full mutable state before a tick
// begins, so a fatal mid-tick error can roll the agent back to exactly
// where it was.
type agentSnapshot struct {
	balance          int64
	postedCollateral int64
	registerNames    []string
	registerValues   map[string]float64
	accumulated      map[agent.CostKind]int64
	q1Order          []ids.TxID
	stochastic       *arrival.StochasticConfig
}

// txSnapshot captures a transaction's mutable fields.
type txSnapshot struct {
	amountSettled     int64
	status            txn.Status
	settlementTick    ids.Tick
	settledAtTick     bool
	isOverdue         bool
	wentOverdueAtTick ids.Tick
}

type q2Snapshot struct {
	tx         *txn.Transaction
	agentID    ids.AgentID
	enqueuedAt ids.Tick
}

// tickSnapshot is a full pre-tick capture of everything Tick may
// mutate, letting a fatal error unwind the tick as if it never ran.
type tickSnapshot struct {
	agents     map[ids.AgentID]*agentSnapshot
	txs        map[ids.TxID]*txSnapshot
	q2         []q2Snapshot
	knownTxIDs map[ids.TxID]bool
	logLen     int
}

func (o *Orchestrator) snapshot() *tickSnapshot {
	snap := &tickSnapshot{
		agents:     make(map[ids.AgentID]*agentSnapshot, len(o.agents)),
		txs:        make(map[ids.TxID]*txSnapshot, len(o.txIndex)),
		knownTxIDs: make(map[ids.TxID]bool, len(o.txIndex)),
		logLen:     o.log.Len(),
	}

	for id, a := range o.agents {
		as := &agentSnapshot{
			balance:          a.Balance,
			postedCollateral: a.PostedCollateral,
			registerNames:    a.Registers.Names(),
			registerValues:   make(map[string]float64),
			accumulated:      a.AllAccumulatedCosts(),
		}
		for _, name := range as.registerNames {
			v, _ := a.Registers.Get(name)
			as.registerValues[name] = v
		}
		for _, t := range a.Q1.Items() {
			as.q1Order = append(as.q1Order, t.ID)
		}
		if cfg, ok := o.arrivalGen.StochasticConfig(id); ok {
			cfgCopy := cfg
			as.stochastic = &cfgCopy
		}
		snap.agents[id] = as
	}

	for id, t := range o.txIndex {
		snap.knownTxIDs[id] = true
		snap.txs[id] = &txSnapshot{
			amountSettled:     t.AmountSettled,
			status:            t.Status,
			settlementTick:    t.SettlementTick,
			settledAtTick:     t.SettledAtTick,
			isOverdue:         t.IsOverdue,
			wentOverdueAtTick: t.WentOverdueAtTick,
		}
	}

	for _, e := range o.pipeline.Q2.FIFOOrder() {
		snap.q2 = append(snap.q2, q2Snapshot{tx: e.Tx, agentID: e.AgentID, enqueuedAt: e.EnqueuedAt})
	}

	return snap
}

// restore reverts the Orchestrator's live state to exactly what snap
// captured, including purging any transaction created (by a split or
// an arrival) after the snapshot was taken, and truncates the
// in-memory event log back to its pre-tick length. An external sink
// attached via New already received any events the failed tick
// emitted before the error; Log itself is the only piece this engine
// can make consistent after the fact.
func (o *Orchestrator) restore(snap *tickSnapshot) {
	o.log.Truncate(snap.logLen)
	for id, a := range o.agents {
		as, ok := snap.agents[id]
		if !ok {
			continue
		}
		a.Balance = as.balance
		a.PostedCollateral = as.postedCollateral

		a.Registers.ResetDaily(nil)
		for _, name := range as.registerNames {
			a.Registers.Set(name, as.registerValues[name])
		}

		a.ReplaceAccumulated(as.accumulated)

		if as.stochastic != nil {
			o.arrivalGen.SetStochasticConfig(id, *as.stochastic)
		}

		a.Q1 = queue.NewQ1()
		for _, txID := range as.q1Order {
			if t, ok := o.txIndex[txID]; ok {
				a.Q1.Push(t)
			}
		}
		for txID := range a.Q2Refs {
			delete(a.Q2Refs, txID)
		}
	}

	for id, t := range o.txIndex {
		if ts, ok := snap.txs[id]; ok {
			t.AmountSettled = ts.amountSettled
			t.Status = ts.status
			t.SettlementTick = ts.settlementTick
			t.SettledAtTick = ts.settledAtTick
			t.IsOverdue = ts.isOverdue
			t.WentOverdueAtTick = ts.wentOverdueAtTick
		}
	}

	newQ2 := queue.NewQ2()
	for _, e := range snap.q2 {
		newQ2.Enqueue(e.tx, e.agentID, e.enqueuedAt)
		if a, ok := o.agents[e.agentID]; ok {
			a.Q2Refs[e.tx.ID] = true
		}
	}
	o.pipeline.Q2 = newQ2
	o.lsmEngine.Q2 = newQ2

	for id := range o.txIndex {
		if !snap.knownTxIDs[id] {
			delete(o.txIndex, id)
		}
	}
	o.rebuildSecondaryIndexes()
}

// rebuildSecondaryIndexes recomputes deadlineIndex and dayIndex from
// the current txIndex, since a rollback may have removed entries that
// those indexes still reference.
func (o *Orchestrator) rebuildSecondaryIndexes() {
	o.deadlineIndex = make(map[ids.Tick][]*txn.Transaction)
	o.dayIndex = make(map[int64][]*txn.Transaction)
	ids2 := make([]ids.TxID, 0, len(o.txIndex))
	for id := range o.txIndex {
		ids2 = append(ids2, id)
	}
	sortTxIDs(ids2)
	for _, id := range ids2 {
		t := o.txIndex[id]
		o.deadlineIndex[t.DeadlineTick] = append(o.deadlineIndex[t.DeadlineTick], t)
		day := t.ArrivalTick.Day(o.ticksPerDay)
		o.dayIndex[day] = append(o.dayIndex[day], t)
	}
}

func sortTxIDs(ids []ids.TxID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
