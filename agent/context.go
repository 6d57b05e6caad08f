package agent

import (
	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/policy"
	"github.com/paynet/simcash/txn"
)

// PaymentContext builds the policy.Context the payment_tree is
// evaluated against for a single transaction, given the agent's
// current snapshot, the simulation clock, and an incoming-liquidity
// estimate (the remaining amount of every live obligation addressed
// to the agent, computed by the engine and passed through by the
// settlement pipeline).
func (a *Agent) PaymentContext(t *txn.Transaction, currentTick ids.Tick, tickOfDay, incomingLiquidity int64, effectivePriority int, params map[string]float64) *policy.Context {
	ticksToDeadline := int64(t.DeadlineTick) - int64(currentTick)
	return &policy.Context{
		Balance:               a.Balance,
		UnsecuredCapRemaining: a.UnsecuredCapRemaining(),
		PostedCollateral:      a.PostedCollateral,
		Q1Size:                a.Q1.Len(),
		TicksToDeadline:       ticksToDeadline,
		Priority:              effectivePriority,
		Amount:                t.Remaining(),
		IncomingLiquidity:     incomingLiquidity,
		TickOfDay:             tickOfDay,
		Params:                params,
		Registers:             a.Registers,
	}
}

// AgentContext builds the policy.Context an agent-level tree
// (strategic/end-of-tick collateral, bank) is evaluated against: the
// per-transaction fields (TicksToDeadline, Priority, Amount) are left
// at their zero value since these trees never reference them — a
// policy that does so hits an "undefined field" evaluation error only
// if it actually reads a genuinely unsupported field; the per-tx
// fields are always in AllFields, so reading them here simply yields 0.
func (a *Agent) AgentContext(tickOfDay int64, params map[string]float64) *policy.Context {
	return &policy.Context{
		Balance:               a.Balance,
		UnsecuredCapRemaining: a.UnsecuredCapRemaining(),
		PostedCollateral:      a.PostedCollateral,
		Q1Size:                a.Q1.Len(),
		TickOfDay:             tickOfDay,
		Params:                params,
		Registers:             a.Registers,
	}
}
