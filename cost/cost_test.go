package cost

import (
	"testing"

	"github.com/paynet/simcash/agent"
	"github.com/paynet/simcash/event"
	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/queue"
	"github.com/paynet/simcash/txn"
)

func TestAccruePerTickOverdraftAndDelay(t *testing.T) {
	a := agent.New("A", -10_000, 50_000) // overdrawn by 100.00
	log := event.NewLog()
	eng := &Engine{Rates: RateTable{OverdraftBps: 100, DelayBpsPerTick: 10}, Sink: log}

	tx := &txn.Transaction{ID: "tx1", SenderID: "A", ReceiverID: "B", Amount: 100_000, AmountSettled: 0, Status: txn.StatusPending}
	a.Q1.Push(tx)

	eng.AccruePerTick(map[ids.AgentID]*agent.Agent{"A": a}, queue.NewQ2(), 1)

	if got := a.AccumulatedCost(agent.CostOverdraft); got != 100 {
		t.Fatalf("want overdraft cost 100, got %d", got)
	}
	if got := a.AccumulatedCost(agent.CostDelay); got != 100 {
		t.Fatalf("want delay cost 100, got %d", got)
	}
	if n := len(log.ForKind(event.KindCostAccrual)); n != 2 {
		t.Fatalf("want 2 CostAccrual events, got %d", n)
	}
}

func TestAccrueDelayDoubledWhenOverdue(t *testing.T) {
	a := agent.New("A", 0, 0)
	eng := &Engine{Rates: RateTable{DelayBpsPerTick: 10, OverdueDelayMultiplier: 20_000}}

	tx := &txn.Transaction{ID: "tx1", SenderID: "A", ReceiverID: "B", Amount: 100_000, Status: txn.StatusOverdue, IsOverdue: true}
	eng.accrueDelay(a, tx, 5)

	if got := a.AccumulatedCost(agent.CostDelay); got != 200 {
		t.Fatalf("want doubled delay cost 200, got %d", got)
	}
}

func TestMarkOverdueChargesPenaltyOnce(t *testing.T) {
	a := agent.New("A", 0, 0)
	log := event.NewLog()
	eng := &Engine{Rates: RateTable{DeadlinePenalty: 500}, Sink: log}

	tx := &txn.Transaction{ID: "tx1", SenderID: "A", ReceiverID: "B", Amount: 1000, DeadlineTick: 5, Status: txn.StatusPending}
	agents := map[ids.AgentID]*agent.Agent{"A": a}

	eng.MarkOverdue(agents, []*txn.Transaction{tx}, 6)
	if !tx.IsOverdue || tx.Status != txn.StatusOverdue {
		t.Fatal("want transaction marked overdue")
	}
	if got := a.AccumulatedCost(agent.CostDeadlinePenalty); got != 500 {
		t.Fatalf("want deadline penalty 500, got %d", got)
	}

	eng.MarkOverdue(agents, []*txn.Transaction{tx}, 7)
	if got := a.AccumulatedCost(agent.CostDeadlinePenalty); got != 500 {
		t.Fatalf("want penalty charged only once, got %d", got)
	}
}

func TestAccrueEODChargesEveryUnsettledTransaction(t *testing.T) {
	a := agent.New("A", 0, 0)
	eng := &Engine{Rates: RateTable{EODPenalty: 1000}}

	tx1 := &txn.Transaction{ID: "tx1", SenderID: "A", ReceiverID: "B", Amount: 1000, Status: txn.StatusPending}
	tx2 := &txn.Transaction{ID: "tx2", SenderID: "A", ReceiverID: "B", Amount: 1000, Status: txn.StatusSettled}

	eng.AccrueEOD(map[ids.AgentID]*agent.Agent{"A": a}, []*txn.Transaction{tx1, tx2}, 100)
	if got := a.AccumulatedCost(agent.CostEODPenalty); got != 1000 {
		t.Fatalf("want EOD penalty charged once for the unsettled tx, got %d", got)
	}
}

func TestAccrueSplitFriction(t *testing.T) {
	a := agent.New("A", 0, 0)
	eng := &Engine{Rates: RateTable{SplitFrictionCost: 250}}
	eng.AccrueSplitFriction(a, 3)
	if got := a.AccumulatedCost(agent.CostSplitFriction); got != 250 {
		t.Fatalf("want split friction cost 250, got %d", got)
	}
}
