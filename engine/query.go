package engine

import (
	"fmt"
	"sort"

	"github.com/paynet/simcash/agent"
	"github.com/paynet/simcash/event"
	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/txn"
)

// GetAgentIDs returns every configured agent ID in stable sorted order.
func (o *Orchestrator) GetAgentIDs() []ids.AgentID {
	out := make([]ids.AgentID, len(o.agentOrder))
	copy(out, o.agentOrder)
	return out
}

func (o *Orchestrator) mustAgent(id ids.AgentID) (*agent.Agent, error) {
	a, ok := o.agents[id]
	if !ok {
		return nil, fmt.Errorf("engine: unknown agent %s", id)
	}
	return a, nil
}

// GetAgentBalance returns id's current cash balance.
func (o *Orchestrator) GetAgentBalance(id ids.AgentID) (int64, error) {
	a, err := o.mustAgent(id)
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

// GetAgentUnsecuredCap returns id's configured unsecured overdraft cap.
func (o *Orchestrator) GetAgentUnsecuredCap(id ids.AgentID) (int64, error) {
	a, err := o.mustAgent(id)
	if err != nil {
		return 0, err
	}
	return a.UnsecuredCap, nil
}

// GetAgentAccumulatedCosts returns id's full per-kind cost accumulator
// snapshot.
func (o *Orchestrator) GetAgentAccumulatedCosts(id ids.AgentID) (map[agent.CostKind]int64, error) {
	a, err := o.mustAgent(id)
	if err != nil {
		return nil, err
	}
	return a.AllAccumulatedCosts(), nil
}

// GetAgentCollateralPosted returns id's currently posted collateral.
func (o *Orchestrator) GetAgentCollateralPosted(id ids.AgentID) (int64, error) {
	a, err := o.mustAgent(id)
	if err != nil {
		return 0, err
	}
	return a.PostedCollateral, nil
}

// GetQueue1Size returns the number of transactions currently queued in
// id's Q1.
func (o *Orchestrator) GetQueue1Size(id ids.AgentID) (int, error) {
	a, err := o.mustAgent(id)
	if err != nil {
		return 0, err
	}
	return a.Q1.Len(), nil
}

// GetQueue1Contents returns id's Q1 contents in default scan order
// (priority desc, arrival_tick asc, tx_id asc), with no escalation
// boost applied (escalation is a settlement-pass-only concern, not a
// queryable reordering).
func (o *Orchestrator) GetQueue1Contents(id ids.AgentID) ([]*txn.Transaction, error) {
	a, err := o.mustAgent(id)
	if err != nil {
		return nil, err
	}
	return a.Q1.Sorted(func(t *txn.Transaction) int { return t.Priority }), nil
}

// GetQueue2Size returns the total number of entries resident in the
// central Q2.
func (o *Orchestrator) GetQueue2Size() int {
	return o.pipeline.Q2.Len()
}

// GetRTGSQueueContents returns every Q2 entry's transaction in FIFO
// (enqueue) order.
func (o *Orchestrator) GetRTGSQueueContents() []*txn.Transaction {
	entries := o.pipeline.Q2.FIFOOrder()
	out := make([]*txn.Transaction, len(entries))
	for i, e := range entries {
		out[i] = e.Tx
	}
	return out
}

// GetTransactionDetails returns the full, current state of a single
// transaction by ID.
func (o *Orchestrator) GetTransactionDetails(id ids.TxID) (*txn.Transaction, error) {
	t, ok := o.txIndex[id]
	if !ok {
		return nil, fmt.Errorf("engine: unknown transaction %s", id)
	}
	return t, nil
}

// GetTransactionsForDay returns every transaction that arrived during
// the given zero-based day index, sorted by transaction ID.
func (o *Orchestrator) GetTransactionsForDay(day int64) []*txn.Transaction {
	out := make([]*txn.Transaction, len(o.dayIndex[day]))
	copy(out, o.dayIndex[day])
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetTransactionsNearDeadline returns every non-terminal transaction
// whose deadline falls within [currentTick, currentTick+window],
// sorted by (deadline asc, tx_id asc).
func (o *Orchestrator) GetTransactionsNearDeadline(window int64) []*txn.Transaction {
	var out []*txn.Transaction
	upper := ids.Tick(int64(o.currentTick) + window)
	for deadline, txs := range o.deadlineIndex {
		if deadline < o.currentTick || deadline > upper {
			continue
		}
		for _, t := range txs {
			if !t.IsTerminal() {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeadlineTick != out[j].DeadlineTick {
			return out[i].DeadlineTick < out[j].DeadlineTick
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetTickEvents returns every event recorded for a single tick, in
// the order they were emitted.
func (o *Orchestrator) GetTickEvents(tick ids.Tick) []event.Event {
	return o.log.ForTick(tick)
}

// GetAllEvents returns the complete event log in append order.
func (o *Orchestrator) GetAllEvents() []event.Event {
	return o.log.All()
}

// GetSystemMetrics reconstructs whole-run totals purely by replaying
// the event log: it never consults any incrementally-maintained
// counter, so it agrees with what an external consumer computing the
// same quantities from GetAllEvents would get.
func (o *Orchestrator) GetSystemMetrics() SystemMetrics {
	type lineage struct {
		rootAmount int64
		settled    int64
	}
	roots := make(map[ids.TxID]*lineage)
	childToRoot := make(map[ids.TxID]ids.TxID)
	var totalArrivals, totalSettlements int
	var totalCost int64

	for _, e := range o.log.All() {
		switch e.Kind {
		case event.KindArrival:
			roots[e.TxID] = &lineage{rootAmount: e.Amount}
			totalArrivals++
		case event.KindPolicySplit:
			if root, ok := childToRoot[e.ParentID]; ok {
				for _, c := range e.ChildIDs {
					childToRoot[c] = root
				}
			} else if _, ok := roots[e.ParentID]; ok {
				for _, c := range e.ChildIDs {
					childToRoot[c] = e.ParentID
				}
			}
		case event.KindSettlement:
			root := e.TxID
			if r, ok := childToRoot[e.TxID]; ok {
				root = r
			}
			if l, ok := roots[root]; ok {
				l.settled += e.Amount
			}
		case event.KindCostAccrual:
			totalCost += e.Amount
		}
	}

	// A parent arrival counts as settled once its own settlements plus
	// those of its split descendants cover its full amount.
	for _, l := range roots {
		if l.settled >= l.rootAmount {
			totalSettlements++
		}
	}

	rate := 0.0
	if totalArrivals > 0 {
		rate = float64(totalSettlements) / float64(totalArrivals)
	}

	return SystemMetrics{
		TotalArrivals:    totalArrivals,
		TotalSettlements: totalSettlements,
		SettlementRate:   rate,
		TotalCostAccrued: totalCost,
	}
}
