// Package engine implements the Orchestrator: the per-tick scheduler
// that runs the fixed ten-phase pipeline over arrivals, policy
// decisions, settlement, LSM, cost accrual, and end-of-day
// finalization, plus the read-only query surface external callers
// (CLI, service, dashboard) consume.
package engine

import (
	"fmt"
	"sort"

	"github.com/paynet/simcash/agent"
	"github.com/paynet/simcash/arrival"
	"github.com/paynet/simcash/cost"
	"github.com/paynet/simcash/event"
	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/lsm"
	"github.com/paynet/simcash/policy"
	"github.com/paynet/simcash/queue"
	"github.com/paynet/simcash/rng"
	"github.com/paynet/simcash/scenario"
	"github.com/paynet/simcash/settlement"
	"github.com/paynet/simcash/txn"
)

// InvariantError is a fatal, panic-equivalent failure: money
// conservation broken, an event-log append-order violation, or an
// overflow in integer arithmetic.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "engine: invariant violation: " + e.Reason
}

// TotalSystemMoney sums every agent's balance plus posted collateral,
// the quantity that must stay invariant across a tick: settlement and
// LSM only move cash between agents, and collateral posting/release
// only moves it between Balance and PostedCollateral on the same
// agent.
func (o *Orchestrator) TotalSystemMoney() int64 {
	var total int64
	for _, a := range o.agents {
		total += a.Balance + a.PostedCollateral
	}
	return total
}

// CheckConservation reports an InvariantError if TotalSystemMoney has
// drifted from want, e.g. the total captured right after New.
func (o *Orchestrator) CheckConservation(want int64) error {
	got := o.TotalSystemMoney()
	if got != want {
		return &InvariantError{Reason: fmt.Sprintf("total system money drifted: want %d, got %d", want, got)}
	}
	return nil
}

// Orchestrator owns every piece of live simulation state and drives
// the tick loop. It is not safe for concurrent use by multiple
// goroutines; independent Monte-Carlo runs should each own their own
// Orchestrator instance.
type Orchestrator struct {
	cfg         Config
	ticksPerDay int64
	totalTicks  int64
	lastTick    ids.Tick
	currentTick ids.Tick
	done        bool

	agents      map[ids.AgentID]*agent.Agent
	agentOrder  []ids.AgentID
	agentParams map[ids.AgentID]map[string]float64

	log  *event.Log
	sink event.Sink

	arrivalGen       *arrival.Generator
	pipeline         *settlement.Pipeline
	lsmEngine        *lsm.Engine
	costEngine       *cost.Engine
	scenarioSchedule *scenario.Schedule
	scenarioExecutor *scenario.Executor

	txIndex       map[ids.TxID]*txn.Transaction
	deadlineIndex map[ids.Tick][]*txn.Transaction
	dayIndex      map[int64][]*txn.Transaction
}

// New validates cfg and constructs an Orchestrator ready to tick.
// externalSink, if non-nil, receives every event in addition to the
// Orchestrator's own in-memory log (e.g. a Kafka-backed sink).
func New(cfg Config, externalSink event.Sink) (*Orchestrator, error) {
	errs, lastTick := cfg.validate()
	if errs != nil {
		return nil, errs
	}

	o := &Orchestrator{
		cfg:           cfg,
		ticksPerDay:   cfg.TicksPerDay,
		totalTicks:    cfg.TicksPerDay * cfg.NumDays,
		lastTick:      lastTick,
		agents:        make(map[ids.AgentID]*agent.Agent, len(cfg.Agents)),
		agentParams:   make(map[ids.AgentID]map[string]float64, len(cfg.Agents)),
		txIndex:       make(map[ids.TxID]*txn.Transaction),
		deadlineIndex: make(map[ids.Tick][]*txn.Transaction),
		dayIndex:      make(map[int64][]*txn.Transaction),
	}

	stochastic := make(map[ids.AgentID]arrival.StochasticConfig)
	for _, ac := range cfg.Agents {
		a := agent.New(ac.ID, ac.OpeningBalance, ac.UnsecuredCap)
		a.HasMaxCollateralCap = ac.HasMaxCollateralCap
		a.MaxCollateralCap = ac.MaxCollateralCap
		a.LiquidityPool = ac.LiquidityPool
		a.Policy = ac.Policy
		o.agents[ac.ID] = a
		o.agentParams[ac.ID] = ac.Params
		o.agentOrder = append(o.agentOrder, ac.ID)
		if ac.Arrival != nil {
			stochastic[ac.ID] = *ac.Arrival
		}
	}
	sort.Slice(o.agentOrder, func(i, j int) bool { return o.agentOrder[i] < o.agentOrder[j] })

	o.arrivalGen = arrival.NewGenerator(stochastic, cfg.ScriptedArrivals, lastTick)

	o.log = event.NewLog()
	if externalSink != nil {
		o.sink = event.MultiSink{Sinks: []event.Sink{o.log, externalSink}}
	} else {
		o.sink = o.log
	}

	q2 := queue.NewQ2()
	o.pipeline = &settlement.Pipeline{Agents: o.agents, Q2: q2, Sink: o.sink, OnSplit: o.registerSplit}
	if cfg.Escalation != nil {
		o.pipeline.Escalation = *cfg.Escalation
	}

	lsmConfig := lsm.Config{}
	if cfg.LSM != nil {
		lsmConfig = *cfg.LSM
	}
	o.lsmEngine = &lsm.Engine{Agents: o.agents, Q2: q2, Sink: o.sink, Config: lsmConfig}

	costRates := cost.RateTable{}
	if cfg.CostRates != nil {
		costRates = *cfg.CostRates
	}
	o.costEngine = &cost.Engine{Rates: costRates, Sink: o.sink}

	schedule, err := scenario.NewSchedule(cfg.ScenarioEvents, lastTick)
	if err != nil {
		return nil, ConfigErrors{{Field: "scenario_events", Reason: err.Error()}}
	}
	o.scenarioSchedule = schedule
	o.scenarioExecutor = &scenario.Executor{Agents: o.agents, Generator: o.arrivalGen, Sink: o.sink}

	o.emit(event.Event{Tick: 0, Kind: event.KindSimulationStart})

	for _, id := range o.agentOrder {
		a := o.agents[id]
		if a.Policy.StrategicCollateralTree != nil {
			if err := o.evalCollateralTree(a, a.Policy.StrategicCollateralTree, 0); err != nil {
				return nil, err
			}
		}
	}

	return o, nil
}

func (o *Orchestrator) emit(e event.Event) {
	o.sink.Append(e)
}

func (o *Orchestrator) registerSplit(parent *txn.Transaction, children []*txn.Transaction) {
	for _, c := range children {
		o.registerTransaction(c)
	}
}

func (o *Orchestrator) registerTransaction(t *txn.Transaction) {
	o.txIndex[t.ID] = t
	o.deadlineIndex[t.DeadlineTick] = append(o.deadlineIndex[t.DeadlineTick], t)
	day := t.ArrivalTick.Day(o.ticksPerDay)
	o.dayIndex[day] = append(o.dayIndex[day], t)
}

// evalCollateralTree evaluates a strategic or end-of-tick collateral
// tree against a and applies the resulting PostCollateral /
// ReleaseCollateral / HoldCollateral action directly to the agent's
// ledger.
func (o *Orchestrator) evalCollateralTree(a *agent.Agent, tree *policy.Tree, tickOfDay int64) error {
	ctx := a.AgentContext(tickOfDay, o.agentParams[a.ID])
	action, err := policy.Eval(tree, ctx)
	if err != nil {
		return fmt.Errorf("engine: agent %s collateral tree: %w", a.ID, err)
	}
	switch action.Kind {
	case policy.ActionPostCollateral:
		if a.HasMaxCollateralCap && a.PostedCollateral+action.CollateralAmount > a.MaxCollateralCap {
			return &policy.EvalError{Reason: fmt.Sprintf("agent %s: PostCollateral %d exceeds max_collateral_capacity %d", a.ID, action.CollateralAmount, a.MaxCollateralCap)}
		}
		a.PostedCollateral += action.CollateralAmount
		a.Balance -= action.CollateralAmount
		o.emit(event.Event{Tick: o.currentTick, Kind: event.KindPostCollateral, AgentID: a.ID, Amount: action.CollateralAmount})
	case policy.ActionReleaseCollateral:
		amount := action.CollateralAmount
		if amount > a.PostedCollateral {
			amount = a.PostedCollateral
		}
		a.PostedCollateral -= amount
		a.Balance += amount
		o.emit(event.Event{Tick: o.currentTick, Kind: event.KindReleaseCollateral, AgentID: a.ID, Amount: amount})
	case policy.ActionHoldCollateral:
		// no-op by construction
	default:
		return fmt.Errorf("engine: agent %s collateral tree emitted illegal action %s", a.ID, action.Kind)
	}
	return nil
}

// evalBankTree evaluates a's bank tree and applies SetStateRegister /
// NoOp.
func (o *Orchestrator) evalBankTree(a *agent.Agent, tickOfDay int64) error {
	ctx := a.AgentContext(tickOfDay, o.agentParams[a.ID])
	action, err := policy.Eval(a.Policy.BankTree, ctx)
	if err != nil {
		return fmt.Errorf("engine: agent %s bank tree: %w", a.ID, err)
	}
	switch action.Kind {
	case policy.ActionSetStateRegister:
		old, _ := a.Registers.Get(action.RegisterKey)
		a.Registers.Set(action.RegisterKey, action.RegisterValue)
		o.emit(event.Event{
			Tick: o.currentTick, Kind: event.KindStateRegisterSet, AgentID: a.ID,
			RegisterKey: action.RegisterKey, OldValue: old, NewValue: action.RegisterValue, Reason: action.Reason,
		})
	case policy.ActionNoOp:
	default:
		return fmt.Errorf("engine: agent %s bank tree emitted illegal action %s", a.ID, action.Kind)
	}
	return nil
}

// estimateIncomingLiquidity sums the remaining amount of every live
// obligation (in any agent's Q1, or in Q2) addressed to each agent, as
// the incoming-liquidity estimate the payment tree's context exposes.
func (o *Orchestrator) estimateIncomingLiquidity() map[ids.AgentID]int64 {
	out := make(map[ids.AgentID]int64, len(o.agents))
	for _, a := range o.agents {
		for _, t := range a.Q1.Items() {
			if !t.IsTerminal() {
				out[t.ReceiverID] += t.Remaining()
			}
		}
	}
	for _, e := range o.pipeline.Q2.FIFOOrder() {
		if !e.Tx.IsTerminal() {
			out[e.Tx.ReceiverID] += e.Tx.Remaining()
		}
	}
	return out
}

func (o *Orchestrator) liveTransactions() []*txn.Transaction {
	out := make([]*txn.Transaction, 0, len(o.txIndex))
	for _, t := range o.txIndex {
		if !t.IsTerminal() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CurrentTick returns the next tick Tick() will execute.
func (o *Orchestrator) CurrentTick() ids.Tick { return o.currentTick }

// CurrentDay returns the day index containing CurrentTick.
func (o *Orchestrator) CurrentDay() int64 { return o.currentTick.Day(o.ticksPerDay) }

// Done reports whether every configured tick has executed.
func (o *Orchestrator) Done() bool { return o.done }

// Tick executes one full scheduler pass: scripted scenario events,
// arrivals, collateral/bank policy, the per-agent settlement pass,
// LSM, the Q2 liquidity-release scan, overdue marking, cost accrual,
// and end-of-day finalization. If any phase returns a fatal error, all
// of this tick's mutations are rolled back before the error is
// returned, so CurrentTick and every queryable quantity reflect the
// simulation exactly as it stood before the call.
func (o *Orchestrator) Tick() (TickSummary, error) {
	if o.done {
		return TickSummary{}, fmt.Errorf("engine: simulation already complete at tick %d", o.currentTick)
	}
	tick := o.currentTick
	tickOfDay := int64(tick) % o.ticksPerDay
	summary := TickSummary{Tick: tick}

	snap := o.snapshot()
	if err := o.runTick(tick, tickOfDay, &summary); err != nil {
		o.restore(snap)
		return TickSummary{}, err
	}

	o.currentTick++
	if int64(tick) == o.totalTicks-1 {
		o.done = true
	}
	return summary, nil
}

func (o *Orchestrator) runTick(tick ids.Tick, tickOfDay int64, summary *TickSummary) error {
	// Phase 1: scripted scenario events.
	due := o.scenarioSchedule.DueAt(tick)
	injected, err := o.scenarioExecutor.Execute(tick, due)
	if err != nil {
		return err
	}

	// Phase 2: arrivals (stochastic plus scripted, then scenario-injected).
	arrivalRNG := rng.Derive(o.cfg.RNGSeed, "arrivals", int(tick))
	arrivals, err := o.arrivalGen.Generate(tick, arrivalRNG, o.agentOrder)
	if err != nil {
		return err
	}
	for _, e := range injected {
		arrivals = append(arrivals, &txn.Transaction{
			ID:           ids.NewTxID(),
			SenderID:     e.Sender,
			ReceiverID:   e.Receiver,
			Amount:       e.Amount,
			Priority:     e.Priority,
			Divisible:    e.Divisible,
			ArrivalTick:  tick,
			DeadlineTick: e.Deadline,
			Status:       txn.StatusPending,
		})
	}
	for _, t := range arrivals {
		sender, ok := o.agents[t.SenderID]
		if !ok {
			return fmt.Errorf("engine: arrival tx %s has unknown sender %s", t.ID, t.SenderID)
		}
		sender.Q1.Push(t)
		o.registerTransaction(t)
		o.emit(event.Event{
			Tick: tick, Kind: event.KindArrival, TxID: t.ID,
			SenderID: t.SenderID, ReceiverID: t.ReceiverID, Amount: t.Amount,
		})
	}
	summary.NumArrivals = len(arrivals)

	// Phase 3: bank tree, per agent in stable order. The strategic
	// collateral tree only evaluates once, at tick 0 (see New).
	for _, id := range o.agentOrder {
		a := o.agents[id]
		if a.Policy.BankTree != nil {
			if err := o.evalBankTree(a, tickOfDay); err != nil {
				return err
			}
		}
	}

	// Phase 4: per-agent settlement pass in stable agent-ID order.
	incoming := o.estimateIncomingLiquidity()
	for _, id := range o.agentOrder {
		before := o.log.Len()
		if err := o.pipeline.ProcessAgent(id, tick, tickOfDay, incoming[id], o.agentParams[id]); err != nil {
			return err
		}
		for _, e := range o.log.All()[before:] {
			if e.Kind == event.KindPolicySplit {
				if sender, ok := o.agents[e.SenderID]; ok {
					o.costEngine.AccrueSplitFriction(sender, tick)
				}
			}
			if e.Kind == event.KindSettlement {
				summary.NumSettlements++
			}
		}
	}

	// Phase 5: LSM, if due this tick.
	if o.lsmEngine.Config.DueAt(tick) {
		before := o.log.Len()
		if err := o.lsmEngine.Run(tick, o.cfg.RNGSeed); err != nil {
			return err
		}
		for _, e := range o.log.All()[before:] {
			if e.Kind == event.KindSettlement {
				summary.NumSettlements++
			}
		}
	}

	// Phase 6: Q2 liquidity-release scan.
	beforeRelease := o.log.Len()
	if err := o.pipeline.ReleaseScan(tick); err != nil {
		return err
	}
	for _, e := range o.log.All()[beforeRelease:] {
		switch e.Kind {
		case event.KindQueue2LiquidityRelease:
			summary.NumLSMReleases++
		case event.KindSettlement:
			summary.NumSettlements++
		}
	}

	// Phase 7: overdue marking and deadline penalty.
	live := o.liveTransactions()
	o.costEngine.MarkOverdue(o.agents, live, tick)

	// Phase 8: per-tick cost accrual (overdraft, delay, collateral holding).
	beforeCost := o.log.Len()
	o.costEngine.AccruePerTick(o.agents, o.pipeline.Q2, tick)
	for _, e := range o.log.All()[beforeCost:] {
		if e.Kind == event.KindCostAccrual {
			summary.TotalCostThisTick += e.Amount
		}
	}

	// Phase 9: end-of-tick collateral tree and, on the last tick of the
	// day, register reset.
	for _, id := range o.agentOrder {
		a := o.agents[id]
		if a.Policy.EndOfTickCollateralTree != nil {
			if err := o.evalCollateralTree(a, a.Policy.EndOfTickCollateralTree, tickOfDay); err != nil {
				return err
			}
		}
	}
	if tickOfDay == o.ticksPerDay-1 {
		for _, a := range o.agents {
			a.Registers.ResetDaily(o.cfg.PersistentRegisters)
		}
		o.emit(event.Event{Tick: tick, Kind: event.KindEndOfDay})
	}

	// Phase 10: on the simulation's final tick, charge the end-of-day
	// penalty against every still-unsettled obligation and close out.
	if int64(tick) == o.totalTicks-1 {
		o.costEngine.AccrueEOD(o.agents, o.liveTransactions(), tick)
		o.emit(event.Event{Tick: tick, Kind: event.KindSimulationEnd})
	}

	return nil
}
