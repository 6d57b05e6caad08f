// Package cost implements SimCash's per-tick cost accruals and
// event-triggered penalties: overdraft interest, delay cost,
// collateral-holding cost, deadline and split-friction penalties, and
// the end-of-day sweep. Every charge routes through accrue, which
// both updates the agent's accumulator and emits a CostAccrual event.
package cost

import (
	"github.com/paynet/simcash/agent"
	"github.com/paynet/simcash/event"
	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/money"
	"github.com/paynet/simcash/queue"
	"github.com/paynet/simcash/txn"
)

// RateTable holds every rate and fixed penalty the cost engine charges
// against, loaded once at construction.
type RateTable struct {
	OverdraftBps           int64 `yaml:"overdraft_bps,omitempty" json:"overdraft_bps,omitempty"`
	DelayBpsPerTick        int64 `yaml:"delay_bps_per_tick,omitempty" json:"delay_bps_per_tick,omitempty"`
	CollateralBpsPerTick   int64 `yaml:"collateral_bps_per_tick,omitempty" json:"collateral_bps_per_tick,omitempty"`
	OverdueDelayMultiplier int64 `yaml:"overdue_delay_multiplier,omitempty" json:"overdue_delay_multiplier,omitempty"` // expressed as a bps multiplier (10_000 == 1x)
	DeadlinePenalty        int64 `yaml:"deadline_penalty,omitempty" json:"deadline_penalty,omitempty"`
	SplitFrictionCost      int64 `yaml:"split_friction_cost,omitempty" json:"split_friction_cost,omitempty"`
	EODPenalty             int64 `yaml:"eod_penalty,omitempty" json:"eod_penalty,omitempty"`
}

// Engine applies RateTable charges against agents and their live
// transactions, emitting a CostAccrual event for every charge.
type Engine struct {
	Rates RateTable
	Sink  event.Sink
}

// accrue adds delta (if positive) to agent a's kind accumulator and
// emits the corresponding CostAccrual event.
func (e *Engine) accrue(a *agent.Agent, kind agent.CostKind, delta int64, currentTick ids.Tick, reason string) {
	if delta <= 0 {
		return
	}
	a.AccrueCost(kind, delta)
	e.emit(event.Event{
		Tick: currentTick, Kind: event.KindCostAccrual,
		AgentID: a.ID, CostType: string(kind), Amount: delta, Reason: reason,
	})
}

// AccruePerTick charges overdraft, delay, and collateral-holding costs
// for every agent and its live (non-terminal) Q1/Q2 transactions.
// q2 supplies every agent's current Q2 entries (settlement owns
// Q2 itself; the cost engine only reads it).
func (e *Engine) AccruePerTick(agents map[ids.AgentID]*agent.Agent, q2 *queue.Q2, currentTick ids.Tick) {
	for _, id := range sortedAgentIDs(agents) {
		a := agents[id]

		if a.Balance < 0 {
			overdraft := money.BpsOf(money.Cents(-a.Balance), e.Rates.OverdraftBps)
			e.accrue(a, agent.CostOverdraft, int64(overdraft), currentTick, "overdraft_interest")
		}

		collateral := money.BpsOf(money.Cents(a.PostedCollateral), e.Rates.CollateralBpsPerTick)
		e.accrue(a, agent.CostCollateralHold, int64(collateral), currentTick, "collateral_holding")

		for _, t := range a.Q1.Items() {
			e.accrueDelay(a, t, currentTick)
		}
		for _, entry := range q2.ForAgent(id) {
			e.accrueDelay(a, entry.Tx, currentTick)
		}
	}
}

func (e *Engine) accrueDelay(a *agent.Agent, t *txn.Transaction, currentTick ids.Tick) {
	if t.IsTerminal() {
		return
	}
	rateBps := e.Rates.DelayBpsPerTick
	if t.IsOverdue {
		rateBps = int64(money.BpsOf(money.Cents(rateBps), e.Rates.OverdueDelayMultiplier))
	}
	delay := money.BpsOf(money.Cents(t.Remaining()), rateBps)
	e.accrue(a, agent.CostDelay, int64(delay), currentTick, "delay")
}

// MarkOverdue transitions every live transaction whose deadline has
// passed into Overdue, charging the one-time deadline penalty on the
// transition tick only.
func (e *Engine) MarkOverdue(agents map[ids.AgentID]*agent.Agent, live []*txn.Transaction, currentTick ids.Tick) {
	for _, t := range live {
		if t.IsTerminal() || t.IsOverdue {
			continue
		}
		if currentTick <= t.DeadlineTick {
			continue
		}
		t.IsOverdue = true
		t.WentOverdueAtTick = currentTick
		t.Status = txn.StatusOverdue

		sender, ok := agents[t.SenderID]
		if !ok {
			continue
		}
		e.emit(event.Event{Tick: currentTick, Kind: event.KindTransactionOverdue, TxID: t.ID, SenderID: t.SenderID, ReceiverID: t.ReceiverID})
		e.accrue(sender, agent.CostDeadlinePenalty, e.Rates.DeadlinePenalty, currentTick, "deadline_penalty")
	}
}

// AccrueSplitFriction charges the one-time split friction cost to the
// agent that performed a split.
func (e *Engine) AccrueSplitFriction(a *agent.Agent, currentTick ids.Tick) {
	e.accrue(a, agent.CostSplitFriction, e.Rates.SplitFrictionCost, currentTick, "split_friction")
}

// AccrueEOD charges the end-of-day penalty to the sender of every
// transaction still not fully settled at the simulation's final tick.
func (e *Engine) AccrueEOD(agents map[ids.AgentID]*agent.Agent, live []*txn.Transaction, currentTick ids.Tick) {
	for _, t := range live {
		if t.IsTerminal() {
			continue
		}
		sender, ok := agents[t.SenderID]
		if !ok {
			continue
		}
		e.accrue(sender, agent.CostEODPenalty, e.Rates.EODPenalty, currentTick, "eod_penalty")
	}
}

func (e *Engine) emit(ev event.Event) {
	if e.Sink != nil {
		e.Sink.Append(ev)
	}
}

func sortedAgentIDs(agents map[ids.AgentID]*agent.Agent) []ids.AgentID {
	out := make([]ids.AgentID, 0, len(agents))
	for id := range agents {
		out = append(out, id)
	}
	sortAgentIDs(out)
	return out
}

func sortAgentIDs(ids []ids.AgentID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
