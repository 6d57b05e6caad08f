package arrival

import (
	"testing"

	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/rng"
)

func TestGenerateScriptedEntry(t *testing.T) {
	entries := []ScriptedEntry{
		{Tick: 0, Sender: "A", Receiver: "B", Amount: 1000, Deadline: 10, Priority: 5, Divisible: true},
	}
	g := NewGenerator(nil, entries, 100)
	s := rng.Derive(1, "arrivals", 0)

	txs, err := g.Generate(0, s, []ids.AgentID{"A", "B"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("want 1 tx, got %d", len(txs))
	}
	if txs[0].SenderID != "A" || txs[0].ReceiverID != "B" || txs[0].Amount != 1000 {
		t.Fatalf("unexpected tx: %+v", txs[0])
	}
}

func TestGenerateScriptedDeadlineBeyondHorizonErrors(t *testing.T) {
	entries := []ScriptedEntry{
		{Tick: 0, Sender: "A", Receiver: "B", Amount: 1000, Deadline: 999, Priority: 1},
	}
	g := NewGenerator(nil, entries, 10)
	s := rng.Derive(1, "arrivals", 0)
	if _, err := g.Generate(0, s, nil); err == nil {
		t.Fatal("expected error for deadline beyond horizon")
	}
}

func TestGenerateStochasticDeterministic(t *testing.T) {
	cfg := StochasticConfig{
		RatePerTick:  3.0,
		Amount:       AmountDist{Kind: DistUniform, Min: 100, Max: 200},
		Counterparty: []ids.AgentID{"B"},
		Weights:      []float64{1},
		DeadlineLo:   1,
		DeadlineHi:   5,
		Priority:     1,
		Divisible:    true,
	}
	m := map[ids.AgentID]StochasticConfig{"A": cfg}
	g := NewGenerator(m, nil, 1000)

	run := func() []string {
		s := rng.Derive(42, "arrivals", 7)
		txs, err := g.Generate(7, s, []ids.AgentID{"A"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids := make([]string, len(txs))
		for i, tx := range txs {
			ids[i] = string(tx.SenderID) + ">" + string(tx.ReceiverID)
		}
		return ids
	}

	a := run()
	b := run()
	if len(a) != len(b) {
		t.Fatalf("non-deterministic arrival counts: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic arrival at %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestGenerateDeadlineNeverExceedsHorizon(t *testing.T) {
	cfg := StochasticConfig{
		RatePerTick:  5.0,
		Amount:       AmountDist{Kind: DistUniform, Min: 100, Max: 200},
		Counterparty: []ids.AgentID{"B"},
		Weights:      []float64{1},
		DeadlineLo:   1,
		DeadlineHi:   50,
		Priority:     1,
	}
	m := map[ids.AgentID]StochasticConfig{"A": cfg}
	g := NewGenerator(m, nil, 10)
	s := rng.Derive(1, "arrivals", 9)

	txs, err := g.Generate(9, s, []ids.AgentID{"A"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tx := range txs {
		if tx.DeadlineTick > 10 {
			t.Fatalf("deadline %d exceeds horizon 10", tx.DeadlineTick)
		}
	}
}

func TestSelfCounterpartyRejected(t *testing.T) {
	cfg := StochasticConfig{
		RatePerTick:  1.0,
		Amount:       AmountDist{Kind: DistUniform, Min: 1, Max: 1},
		Counterparty: []ids.AgentID{"A"},
		Weights:      []float64{1},
		DeadlineLo:   1,
		DeadlineHi:   1,
	}
	m := map[ids.AgentID]StochasticConfig{"A": cfg}
	g := NewGenerator(m, nil, 100)
	s := rng.Derive(1, "arrivals", 0)
	if _, err := g.Generate(0, s, []ids.AgentID{"A"}); err == nil {
		t.Fatal("expected error when counterparty distribution only contains self")
	}
}
