// Package settlement implements the per-tick pipeline that routes
// policy decisions over an agent's Q1 into RTGS-immediate settlement
// or the central Q2, including splits and the Q2 liquidity-release
// scan.
package settlement

import (
	"fmt"

	"github.com/paynet/simcash/agent"
	"github.com/paynet/simcash/event"
	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/policy"
	"github.com/paynet/simcash/queue"
	"github.com/paynet/simcash/txn"
)

// EscalationConfig optionally boosts a transaction's effective
// priority as its deadline approaches, purely as an input to Q1
// ordering and policy context — never persisted on the transaction.
type EscalationConfig struct {
	Enabled        bool  `yaml:"enabled" json:"enabled"`
	ThresholdTicks int64 `yaml:"threshold_ticks,omitempty" json:"threshold_ticks,omitempty"` // escalate once ticks-to-deadline falls below this
	MaxBoost       int   `yaml:"max_boost,omitempty" json:"max_boost,omitempty"`
	Step           bool  `yaml:"step,omitempty" json:"step,omitempty"` // true: flat MaxBoost once under threshold; false: linear ramp
}

// EffectivePriority computes t's escalated priority at currentTick.
func (c EscalationConfig) EffectivePriority(t *txn.Transaction, currentTick ids.Tick) int {
	if !c.Enabled {
		return t.Priority
	}
	ticksToDeadline := int64(t.DeadlineTick) - int64(currentTick)
	if ticksToDeadline >= c.ThresholdTicks || c.ThresholdTicks <= 0 {
		return t.Priority
	}
	if ticksToDeadline < 0 {
		ticksToDeadline = 0
	}
	if c.Step {
		return t.Priority + c.MaxBoost
	}
	frac := float64(c.ThresholdTicks-ticksToDeadline) / float64(c.ThresholdTicks)
	boost := int(frac * float64(c.MaxBoost))
	return t.Priority + boost
}

// Pipeline processes one agent's Q1 against its payment_tree and
// manages the central Q2's liquidity-release scan. It holds no state
// of its own beyond configuration; all mutable state lives on the
// agents and the shared Q2 it is given.
type Pipeline struct {
	Agents     map[ids.AgentID]*agent.Agent
	Q2         *queue.Q2
	Sink       event.Sink
	Escalation EscalationConfig

	// OnSplit, if set, is called with a split's parent and freshly
	// created children right after they're pushed into the sender's
	// Q1, so a caller tracking every live transaction (not just what
	// currently sits in a queue) can index them.
	OnSplit func(parent *txn.Transaction, children []*txn.Transaction)
}

// InvariantError reports a fatal settlement-pipeline invariant
// violation: money conservation broken, or an LSM/settlement event
// referencing a transaction ID that isn't where it claims to be.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "settlement: invariant violation: " + e.Reason
}

// ProcessAgent runs the policy-decision loop over agentID's Q1 at
// currentTick: Release attempts RTGS (full or partial, falling back
// to Q2), Hold leaves the transaction queued, Split replaces the
// parent with its children and continues the loop against them
// immediately, mirroring "processed as if freshly released, next loop
// iteration". tickOfDay and incomingLiquidity feed the policy context;
// params supplies the agent's payment-tree parameters.
func (p *Pipeline) ProcessAgent(agentID ids.AgentID, currentTick ids.Tick, tickOfDay, incomingLiquidity int64, params map[string]float64) error {
	a, ok := p.Agents[agentID]
	if !ok {
		return fmt.Errorf("settlement: unknown agent %s", agentID)
	}
	if a.Policy.PaymentTree == nil {
		return nil
	}

	priorityFn := func(t *txn.Transaction) int {
		return p.Escalation.EffectivePriority(t, currentTick)
	}
	work := a.Q1.Sorted(priorityFn)

	for idx := 0; idx < len(work); idx++ {
		t := work[idx]
		if t.IsTerminal() {
			continue
		}

		ctx := a.PaymentContext(t, currentTick, tickOfDay, incomingLiquidity, priorityFn(t), params)
		action, err := policy.Eval(a.Policy.PaymentTree, ctx)
		if err != nil {
			return fmt.Errorf("settlement: agent %s tx %s: %w", agentID, t.ID, err)
		}

		switch action.Kind {
		case policy.ActionRelease:
			if err := p.attemptRTGS(a, t, currentTick); err != nil {
				return err
			}

		case policy.ActionHold:
			p.emit(event.Event{Tick: currentTick, Kind: event.KindPolicyHold, TxID: t.ID, SenderID: agentID})

		case policy.ActionSplit:
			children, err := p.applySplit(a, t, action, currentTick)
			if err != nil {
				return err
			}
			work = append(work[:idx], append(children, work[idx+1:]...)...)
			idx--

		default:
			return fmt.Errorf("settlement: agent %s tx %s: action %s not legal for payment tree", agentID, t.ID, action.Kind)
		}
	}
	return nil
}

// attemptRTGS performs one RTGS attempt for t, fully settling,
// partially settling (divisible only) with the remainder enqueued in
// Q2, or enqueuing the whole transaction in Q2 if indivisible and
// unfunded.
func (p *Pipeline) attemptRTGS(sender *agent.Agent, t *txn.Transaction, currentTick ids.Tick) error {
	remaining := t.Remaining()
	capacity := sender.UnsecuredCapRemaining()
	delta := remaining
	if capacity < delta {
		delta = capacity
	}
	if delta < 0 {
		delta = 0
	}

	receiver, ok := p.Agents[t.ReceiverID]
	if !ok {
		return fmt.Errorf("settlement: tx %s receiver %s is not a known agent", t.ID, t.ReceiverID)
	}

	if delta == remaining {
		p.transfer(sender, receiver, delta)
		t.ApplySettlement(delta, currentTick)
		sender.Q1.Remove(t.ID)
		p.emit(event.Event{
			Tick: currentTick, Kind: event.KindRtgsImmediateSettle,
			TxID: t.ID, SenderID: sender.ID, ReceiverID: t.ReceiverID, Amount: delta,
		})
		p.emit(event.Event{
			Tick: currentTick, Kind: event.KindSettlement,
			TxID: t.ID, SenderID: sender.ID, ReceiverID: t.ReceiverID, Amount: delta,
		})
		return nil
	}

	if delta > 0 && t.Divisible {
		p.transfer(sender, receiver, delta)
		t.ApplySettlement(delta, currentTick)
		p.emit(event.Event{
			Tick: currentTick, Kind: event.KindRtgsImmediateSettle,
			TxID: t.ID, SenderID: sender.ID, ReceiverID: t.ReceiverID, Amount: delta,
		})
		p.emit(event.Event{
			Tick: currentTick, Kind: event.KindSettlement,
			TxID: t.ID, SenderID: sender.ID, ReceiverID: t.ReceiverID, Amount: delta,
		})
	}

	sender.Q1.Remove(t.ID)
	p.Q2.Enqueue(t, sender.ID, currentTick)
	sender.Q2Refs[t.ID] = true
	p.emit(event.Event{Tick: currentTick, Kind: event.KindQueuedRtgs, TxID: t.ID, SenderID: sender.ID, ReceiverID: t.ReceiverID, Amount: t.Remaining()})
	p.emit(event.Event{Tick: currentTick, Kind: event.KindQueue2Enqueue, TxID: t.ID, SenderID: sender.ID, ReceiverID: t.ReceiverID, Amount: t.Remaining()})
	return nil
}

// transfer performs the atomic pairwise cash movement: decrement
// sender, increment receiver, by exactly delta cents.
func (p *Pipeline) transfer(sender, receiver *agent.Agent, delta int64) {
	sender.Balance -= delta
	receiver.Balance += delta
}

// applySplit validates and applies a Split action: divisible must be
// true, every part positive, parts summing to the remaining unsettled
// amount, at least two parts. Children inherit sender/receiver/
// priority/deadline and are enqueued into the sender's Q1.
func (p *Pipeline) applySplit(sender *agent.Agent, parent *txn.Transaction, action policy.ActionSpec, currentTick ids.Tick) ([]*txn.Transaction, error) {
	if !parent.Divisible {
		return nil, &policy.EvalError{NodeID: "", Reason: fmt.Sprintf("split requested on indivisible transaction %s", parent.ID)}
	}
	if len(action.SplitAmounts) < 2 {
		return nil, &policy.EvalError{Reason: fmt.Sprintf("split requires at least two parts, got %d", len(action.SplitAmounts))}
	}
	var sum int64
	for _, part := range action.SplitAmounts {
		if part <= 0 {
			return nil, &policy.EvalError{Reason: "split part must be positive"}
		}
		sum += part
	}
	remaining := parent.Remaining()
	if sum != remaining {
		return nil, &policy.EvalError{Reason: fmt.Sprintf("split parts sum to %d, want %d", sum, remaining)}
	}

	children := make([]*txn.Transaction, 0, len(action.SplitAmounts))
	childIDs := make([]ids.TxID, 0, len(action.SplitAmounts))
	for _, amount := range action.SplitAmounts {
		child := &txn.Transaction{
			ID:           ids.NewTxID(),
			ParentID:     parent.ID,
			SenderID:     parent.SenderID,
			ReceiverID:   parent.ReceiverID,
			Amount:       amount,
			Priority:     parent.Priority,
			Divisible:    parent.Divisible,
			ArrivalTick:  parent.ArrivalTick,
			DeadlineTick: parent.DeadlineTick,
			Status:       txn.StatusPending,
		}
		children = append(children, child)
		childIDs = append(childIDs, child.ID)
		sender.Q1.Push(child)
	}

	sender.Q1.Remove(parent.ID)
	parent.Status = txn.StatusSettled
	if parent.AmountSettled == 0 {
		parent.Status = txn.StatusDropped // superseded entirely by children; nothing further settles against it directly
	}

	p.emit(event.Event{
		Tick: currentTick, Kind: event.KindPolicySplit,
		TxID: parent.ID, ParentID: parent.ID, ChildIDs: childIDs,
		SenderID: sender.ID, ReceiverID: parent.ReceiverID, Amounts: action.SplitAmounts,
	})
	if p.OnSplit != nil {
		p.OnSplit(parent, children)
	}
	return children, nil
}

// ReleaseScan scans Q2 in FIFO order and attempts RTGS settlement of
// each entry against current balances; every successful release emits
// Queue2LiquidityRelease (carrying queue_wait_ticks) and the generic
// Settlement event.
func (p *Pipeline) ReleaseScan(currentTick ids.Tick) error {
	for _, e := range p.Q2.FIFOOrder() {
		sender, ok := p.Agents[e.AgentID]
		if !ok {
			return fmt.Errorf("settlement: Q2 entry %s has unknown sender %s", e.Tx.ID, e.AgentID)
		}
		receiver, ok := p.Agents[e.Tx.ReceiverID]
		if !ok {
			return fmt.Errorf("settlement: Q2 entry %s has unknown receiver %s", e.Tx.ID, e.Tx.ReceiverID)
		}

		remaining := e.Tx.Remaining()
		capacity := sender.UnsecuredCapRemaining()
		delta := remaining
		if capacity < delta {
			delta = capacity
		}
		if delta <= 0 {
			continue
		}
		if delta < remaining && !e.Tx.Divisible {
			continue
		}

		enqueuedAt, found := p.Q2.EnqueuedAt(e.Tx.ID)
		if !found {
			return &InvariantError{Reason: fmt.Sprintf("Q2 liquidity release could not find enqueued entry for tx %s", e.Tx.ID)}
		}
		waitTicks := int64(currentTick) - int64(enqueuedAt)

		p.transfer(sender, receiver, delta)
		e.Tx.ApplySettlement(delta, currentTick)

		releaseReason := "liquidity_available"
		if !e.Tx.IsTerminal() {
			releaseReason = "partial_liquidity_available"
		}
		p.emit(event.Event{
			Tick: currentTick, Kind: event.KindQueue2LiquidityRelease,
			TxID: e.Tx.ID, SenderID: sender.ID, ReceiverID: receiver.ID, Amount: delta,
			ReleaseReason: releaseReason, QueueWaitTicks: waitTicks,
		})
		p.emit(event.Event{
			Tick: currentTick, Kind: event.KindSettlement,
			TxID: e.Tx.ID, SenderID: sender.ID, ReceiverID: receiver.ID, Amount: delta,
		})

		if e.Tx.IsTerminal() {
			if _, found := p.Q2.Remove(e.Tx.ID); !found {
				return &InvariantError{Reason: fmt.Sprintf("Q2 liquidity release could not remove settled entry for tx %s", e.Tx.ID)}
			}
			delete(sender.Q2Refs, e.Tx.ID)
		}
	}
	return nil
}

func (p *Pipeline) emit(e event.Event) {
	if p.Sink != nil {
		p.Sink.Append(e)
	}
}
