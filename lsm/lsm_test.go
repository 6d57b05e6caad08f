package lsm

import (
	"testing"

	"github.com/paynet/simcash/agent"
	"github.com/paynet/simcash/event"
	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/queue"
	"github.com/paynet/simcash/txn"
)

// TestBilateralOffset mirrors scenario S3: A owes B 80.00, B owes A
// 100.00; bilateral offsetting nets the 20.00 residual from B to A.
func TestBilateralOffset(t *testing.T) {
	a := agent.New("A", 0, 0)
	b := agent.New("B", 2000, 0) // B seeds 20.00 so the net residual clears

	q2 := queue.NewQ2()
	log := event.NewLog()

	txAB := &txn.Transaction{ID: "ab", SenderID: "A", ReceiverID: "B", Amount: 8000, Divisible: true, Status: txn.StatusPending, DeadlineTick: 100}
	txBA := &txn.Transaction{ID: "ba", SenderID: "B", ReceiverID: "A", Amount: 10000, Divisible: true, Status: txn.StatusPending, DeadlineTick: 100}
	q2.Enqueue(txAB, "A", 0)
	q2.Enqueue(txBA, "B", 0)
	a.Q2Refs["ab"] = true
	b.Q2Refs["ba"] = true

	eng := &Engine{
		Agents: map[ids.AgentID]*agent.Agent{"A": a, "B": b},
		Q2:     q2,
		Sink:   log,
		Config: Config{BilateralOffsetting: true},
	}
	if err := eng.Run(0, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if txAB.Status != txn.StatusSettled || txBA.Status != txn.StatusSettled {
		t.Fatalf("want both settled, got %s %s", txAB.Status, txBA.Status)
	}
	if a.Balance != 2000 || b.Balance != 0 {
		t.Fatalf("want A=2000 B=0 after net transfer, got A=%d B=%d", a.Balance, b.Balance)
	}
	if q2.Len() != 0 {
		t.Fatalf("want Q2 empty after offset, got %d", q2.Len())
	}

	offsets := log.ForKind(event.KindLsmBilateralOffset)
	if len(offsets) != 1 {
		t.Fatalf("want 1 LsmBilateralOffset event, got %d", len(offsets))
	}
	if len(offsets[0].TxIDs) != 2 {
		t.Fatalf("want 2 tx_ids in offset event, got %d", len(offsets[0].TxIDs))
	}
}

// TestBilateralOffsetSkippedWhenUnfunded confirms an unaffordable net
// residual leaves the pair untouched rather than partially applied.
func TestBilateralOffsetSkippedWhenUnfunded(t *testing.T) {
	a := agent.New("A", 0, 0)
	b := agent.New("B", 0, 0) // no seed balance: can't afford the 20.00 net

	q2 := queue.NewQ2()
	txAB := &txn.Transaction{ID: "ab", SenderID: "A", ReceiverID: "B", Amount: 8000, Divisible: true, Status: txn.StatusPending, DeadlineTick: 100}
	txBA := &txn.Transaction{ID: "ba", SenderID: "B", ReceiverID: "A", Amount: 10000, Divisible: true, Status: txn.StatusPending, DeadlineTick: 100}
	q2.Enqueue(txAB, "A", 0)
	q2.Enqueue(txBA, "B", 0)

	eng := &Engine{
		Agents: map[ids.AgentID]*agent.Agent{"A": a, "B": b},
		Q2:     q2,
		Sink:   event.NewLog(),
		Config: Config{BilateralOffsetting: true},
	}
	if err := eng.Run(0, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txAB.Status == txn.StatusSettled || txBA.Status == txn.StatusSettled {
		t.Fatal("expected pair to be skipped when net payer is unfunded")
	}
	if q2.Len() != 2 {
		t.Fatalf("want both transactions still queued, got %d", q2.Len())
	}
}

// TestThreeCycle mirrors scenario S4: A->B, B->C, C->A all 100.00, all
// balances and caps zero; cycle detection discharges all three at
// once with no net balance change.
func TestThreeCycle(t *testing.T) {
	a := agent.New("A", 0, 0)
	b := agent.New("B", 0, 0)
	c := agent.New("C", 0, 0)

	q2 := queue.NewQ2()
	log := event.NewLog()
	txAB := &txn.Transaction{ID: "ab", SenderID: "A", ReceiverID: "B", Amount: 10000, Divisible: true, Status: txn.StatusPending, DeadlineTick: 100}
	txBC := &txn.Transaction{ID: "bc", SenderID: "B", ReceiverID: "C", Amount: 10000, Divisible: true, Status: txn.StatusPending, DeadlineTick: 100}
	txCA := &txn.Transaction{ID: "ca", SenderID: "C", ReceiverID: "A", Amount: 10000, Divisible: true, Status: txn.StatusPending, DeadlineTick: 100}
	q2.Enqueue(txAB, "A", 0)
	q2.Enqueue(txBC, "B", 0)
	q2.Enqueue(txCA, "C", 0)

	eng := &Engine{
		Agents: map[ids.AgentID]*agent.Agent{"A": a, "B": b, "C": c},
		Q2:     q2,
		Sink:   log,
		Config: Config{CycleDetection: true, MaxIterations: 5, MaxCycleLength: 5},
	}
	if err := eng.Run(0, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, tx := range []*txn.Transaction{txAB, txBC, txCA} {
		if tx.Status != txn.StatusSettled {
			t.Fatalf("want tx %s settled, got %s", tx.ID, tx.Status)
		}
	}
	if a.Balance != 0 || b.Balance != 0 || c.Balance != 0 {
		t.Fatalf("want unchanged balances, got A=%d B=%d C=%d", a.Balance, b.Balance, c.Balance)
	}
	if q2.Len() != 0 {
		t.Fatalf("want Q2 empty after cycle settlement, got %d", q2.Len())
	}

	cycles := log.ForKind(event.KindLsmCycleSettlement)
	if len(cycles) != 1 {
		t.Fatalf("want 1 LsmCycleSettlement event, got %d", len(cycles))
	}
	if len(cycles[0].TxIDs) != 3 || len(cycles[0].Agents) != 3 {
		t.Fatalf("want 3 tx_ids and 3 agents in cycle event, got %+v", cycles[0])
	}
}
