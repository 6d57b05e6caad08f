// Package agent implements SimCash's bank/agent state: balance,
// unsecured cap, collateral, Q1, accumulated costs, and state
// registers. Mutations only ever happen through the methods here,
// called by the settlement pipeline, LSM, or cost engine — never
// directly from a policy, which only requests actions via its Eval
// result.
package agent

import (
	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/policy"
	"github.com/paynet/simcash/queue"
)

// CostKind identifies one of the cost accumulator buckets an agent
// tracks.
type CostKind string

const (
	CostOverdraft       CostKind = "overdraft"
	CostDelay           CostKind = "delay"
	CostCollateralHold  CostKind = "collateral_holding"
	CostDeadlinePenalty CostKind = "deadline_penalty"
	CostSplitFriction   CostKind = "split_friction"
	CostEODPenalty      CostKind = "eod_penalty"
)

// Agent is a single bank participating in the simulation.
type Agent struct {
	ID ids.AgentID

	Balance             int64
	UnsecuredCap        int64
	PostedCollateral    int64
	MaxCollateralCap    int64 // meaningful only if HasMaxCollateralCap
	HasMaxCollateralCap bool
	LiquidityPool       int64 // optional informational field, unused by settlement math

	Policy policy.Policy

	Q1 *queue.Q1
	// Q2Refs lists the IDs of this agent's transactions currently
	// resident in the central Q2, for O(1) per-agent membership
	// queries without scanning Q2 itself.
	Q2Refs map[ids.TxID]bool

	Registers *Registers

	accumulated map[CostKind]int64
}

// New constructs an Agent with the given opening balance and limits.
// Registers, Q1 and Q2Refs start empty.
func New(id ids.AgentID, openingBalance, unsecuredCap int64) *Agent {
	return &Agent{
		ID:           id,
		Balance:      openingBalance,
		UnsecuredCap: unsecuredCap,
		Q1:           queue.NewQ1(),
		Q2Refs:       make(map[ids.TxID]bool),
		Registers:    NewRegisters(),
		accumulated:  make(map[CostKind]int64),
	}
}

// UnsecuredCapRemaining returns how much further the agent may go
// negative before hitting its unsecured cap, i.e.
// max(0, balance + unsecured_cap).
func (a *Agent) UnsecuredCapRemaining() int64 {
	r := a.Balance + a.UnsecuredCap
	if r < 0 {
		return 0
	}
	return r
}

// AccrueCost adds delta to the named cost accumulator. Accumulators
// are strictly monotonic; delta must be >= 0.
func (a *Agent) AccrueCost(kind CostKind, delta int64) {
	if delta < 0 {
		panic("agent: cost accrual delta must be non-negative")
	}
	a.accumulated[kind] += delta
}

// AccumulatedCost returns the running total for a cost kind.
func (a *Agent) AccumulatedCost(kind CostKind) int64 {
	return a.accumulated[kind]
}

// AllAccumulatedCosts returns a snapshot copy of every cost bucket.
func (a *Agent) AllAccumulatedCosts() map[CostKind]int64 {
	out := make(map[CostKind]int64, len(a.accumulated))
	for k, v := range a.accumulated {
		out[k] = v
	}
	return out
}

// TotalAccumulatedCosts sums every cost bucket.
func (a *Agent) TotalAccumulatedCosts() int64 {
	var total int64
	for _, v := range a.accumulated {
		total += v
	}
	return total
}

// ReplaceAccumulated overwrites every cost accumulator with want,
// bypassing AccrueCost's monotonic-increase rule. Only a tick rollback
// may call this: it exists to undo accruals from a tick that failed
// partway through, never to let ordinary cost accrual decrease a
// bucket.
func (a *Agent) ReplaceAccumulated(want map[CostKind]int64) {
	a.accumulated = make(map[CostKind]int64, len(want))
	for k, v := range want {
		a.accumulated[k] = v
	}
}
