package scenario

import (
	"testing"

	"github.com/paynet/simcash/agent"
	"github.com/paynet/simcash/arrival"
	"github.com/paynet/simcash/event"
	"github.com/paynet/simcash/ids"
)

func TestScheduleRejectsEventBeyondHorizon(t *testing.T) {
	_, err := NewSchedule([]Event{{Tick: 11, Kind: KindRateChange, Agent: "A", NewRate: 0.5}}, 10)
	if err == nil {
		t.Fatal("expected error for event beyond horizon")
	}
}

func TestScheduleRejectsMismatchedWeights(t *testing.T) {
	_, err := NewSchedule([]Event{{
		Tick: 1, Kind: KindWeightChange, Agent: "A",
		NewCounterparty: []ids.AgentID{"B", "C"}, NewWeights: []float64{1},
	}}, 10)
	if err == nil {
		t.Fatal("expected error for mismatched counterparty/weight lengths")
	}
}

func TestExecuteRateChangeUpdatesGenerator(t *testing.T) {
	gen := arrival.NewGenerator(map[ids.AgentID]arrival.StochasticConfig{
		"A": {RatePerTick: 0.1},
	}, nil, 10)
	x := &Executor{Agents: map[ids.AgentID]*agent.Agent{}, Generator: gen, Sink: event.NewLog()}

	sched, err := NewSchedule([]Event{{Tick: 5, Kind: KindRateChange, Agent: "A", NewRate: 0.9}}, 10)
	if err != nil {
		t.Fatalf("unexpected schedule error: %v", err)
	}
	if _, err := x.Execute(5, sched.DueAt(5)); err != nil {
		t.Fatalf("unexpected execute error: %v", err)
	}
	cfg, ok := gen.StochasticConfig("A")
	if !ok || cfg.RatePerTick != 0.9 {
		t.Fatalf("want rate updated to 0.9, got %+v ok=%v", cfg, ok)
	}
}

func TestExecuteCollateralAdjustment(t *testing.T) {
	a := agent.New("A", 0, 0)
	a.PostedCollateral = 1000
	x := &Executor{Agents: map[ids.AgentID]*agent.Agent{"A": a}, Sink: event.NewLog()}

	sched, err := NewSchedule([]Event{{Tick: 1, Kind: KindCollateralAdjustment, Agent: "A", CollateralDelta: -500}}, 10)
	if err != nil {
		t.Fatalf("unexpected schedule error: %v", err)
	}
	if _, err := x.Execute(1, sched.DueAt(1)); err != nil {
		t.Fatalf("unexpected execute error: %v", err)
	}
	if a.PostedCollateral != 500 {
		t.Fatalf("want posted collateral 500, got %d", a.PostedCollateral)
	}
}

func TestExecuteOverReleaseRejected(t *testing.T) {
	a := agent.New("A", 0, 0)
	a.PostedCollateral = 100
	x := &Executor{Agents: map[ids.AgentID]*agent.Agent{"A": a}, Sink: event.NewLog()}

	sched, err := NewSchedule([]Event{{Tick: 1, Kind: KindCollateralAdjustment, Agent: "A", CollateralDelta: -500}}, 10)
	if err != nil {
		t.Fatalf("unexpected schedule error: %v", err)
	}
	if _, err := x.Execute(1, sched.DueAt(1)); err == nil {
		t.Fatal("expected error releasing more collateral than posted")
	}
}

func TestExecuteCustomInjection(t *testing.T) {
	x := &Executor{Agents: map[ids.AgentID]*agent.Agent{}, Sink: event.NewLog()}
	sched, err := NewSchedule([]Event{{
		Tick: 2, Kind: KindCustomInjection,
		Injection: arrival.ScriptedEntry{Sender: "A", Receiver: "B", Amount: 1000, Deadline: 9},
	}}, 10)
	if err != nil {
		t.Fatalf("unexpected schedule error: %v", err)
	}
	injected, err := x.Execute(2, sched.DueAt(2))
	if err != nil {
		t.Fatalf("unexpected execute error: %v", err)
	}
	if len(injected) != 1 || injected[0].Tick != 2 {
		t.Fatalf("want 1 injected entry stamped at tick 2, got %+v", injected)
	}
}
