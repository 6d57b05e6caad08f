// Package scenario implements scripted mutations to a running
// simulation: arrival-rate changes, counterparty-weight changes,
// collateral adjustments, and custom transaction injections, each
// scheduled for a specific tick and validated against the simulation
// horizon when the scenario is constructed.
package scenario

import (
	"fmt"

	"github.com/paynet/simcash/agent"
	"github.com/paynet/simcash/arrival"
	"github.com/paynet/simcash/event"
	"github.com/paynet/simcash/ids"
)

// Kind identifies the mutation a scripted event performs.
type Kind string

const (
	KindRateChange           Kind = "rate_change"
	KindWeightChange         Kind = "weight_change"
	KindCollateralAdjustment Kind = "collateral_adjustment"
	KindCustomInjection      Kind = "custom_injection"
)

// Event is one scripted mutation, due at Tick. Only the fields
// relevant to Kind are read.
type Event struct {
	Tick   ids.Tick    `yaml:"tick" json:"tick"`
	Kind   Kind        `yaml:"kind" json:"kind"`
	Label  string      `yaml:"label,omitempty" json:"label,omitempty"`
	Agent  ids.AgentID `yaml:"agent,omitempty" json:"agent,omitempty"` // subject agent for rate/weight/collateral changes
	Reason string      `yaml:"reason,omitempty" json:"reason,omitempty"`

	// KindRateChange
	NewRate float64 `yaml:"new_rate,omitempty" json:"new_rate,omitempty"`

	// KindWeightChange
	NewCounterparty []ids.AgentID `yaml:"new_counterparty,omitempty" json:"new_counterparty,omitempty"`
	NewWeights      []float64     `yaml:"new_weights,omitempty" json:"new_weights,omitempty"`

	// KindCollateralAdjustment: positive posts collateral, negative
	// releases it.
	CollateralDelta int64 `yaml:"collateral_delta,omitempty" json:"collateral_delta,omitempty"`

	// KindCustomInjection
	Injection arrival.ScriptedEntry `yaml:"injection,omitempty" json:"injection,omitempty"`
}

// Schedule holds every scripted event, bucketed by the tick it fires
// on, validated against the simulation horizon at construction.
type Schedule struct {
	byTick   map[ids.Tick][]Event
	lastTick ids.Tick
}

// NewSchedule validates events (tick in range, kind-specific required
// fields present) and returns a Schedule ready to execute.
func NewSchedule(events []Event, lastTick ids.Tick) (*Schedule, error) {
	byTick := make(map[ids.Tick][]Event)
	for i, e := range events {
		if e.Tick < 0 || e.Tick > lastTick {
			return nil, fmt.Errorf("scenario: event %d at tick %d is outside simulation horizon [0,%d]", i, e.Tick, lastTick)
		}
		if e.Agent == "" && e.Kind != KindCustomInjection {
			return nil, fmt.Errorf("scenario: event %d (%s) missing agent", i, e.Kind)
		}
		switch e.Kind {
		case KindRateChange:
			if e.NewRate < 0 {
				return nil, fmt.Errorf("scenario: event %d rate_change has negative rate", i)
			}
		case KindWeightChange:
			if len(e.NewCounterparty) == 0 || len(e.NewCounterparty) != len(e.NewWeights) {
				return nil, fmt.Errorf("scenario: event %d weight_change has mismatched counterparty/weight lengths", i)
			}
		case KindCollateralAdjustment:
			if e.CollateralDelta == 0 {
				return nil, fmt.Errorf("scenario: event %d collateral_adjustment has zero delta", i)
			}
		case KindCustomInjection:
			if e.Injection.Sender == "" || e.Injection.Receiver == "" {
				return nil, fmt.Errorf("scenario: event %d custom_injection missing sender/receiver", i)
			}
			if e.Injection.Sender == e.Injection.Receiver {
				return nil, fmt.Errorf("scenario: event %d custom_injection has sender == receiver", i)
			}
			if e.Injection.Deadline > lastTick {
				return nil, fmt.Errorf("scenario: event %d custom_injection deadline %d beyond horizon %d", i, e.Injection.Deadline, lastTick)
			}
		default:
			return nil, fmt.Errorf("scenario: event %d has unknown kind %q", i, e.Kind)
		}
		byTick[e.Tick] = append(byTick[e.Tick], e)
	}
	return &Schedule{byTick: byTick, lastTick: lastTick}, nil
}

// DueAt returns the scripted events, if any, for tick t.
func (s *Schedule) DueAt(t ids.Tick) []Event {
	return s.byTick[t]
}

// Executor applies scripted events against live engine state.
type Executor struct {
	Agents    map[ids.AgentID]*agent.Agent
	Generator *arrival.Generator
	Sink      event.Sink
}

// Execute applies every event due at currentTick, mutating agent
// collateral/arrival configuration and injecting custom transactions,
// emitting a ScenarioEventExecuted event for each.
func (x *Executor) Execute(currentTick ids.Tick, events []Event) ([]*arrival.ScriptedEntry, error) {
	var injected []*arrival.ScriptedEntry
	for _, e := range events {
		switch e.Kind {
		case KindRateChange:
			cfg, _ := x.Generator.StochasticConfig(e.Agent)
			cfg.RatePerTick = e.NewRate
			x.Generator.SetStochasticConfig(e.Agent, cfg)

		case KindWeightChange:
			cfg, _ := x.Generator.StochasticConfig(e.Agent)
			cfg.Counterparty = e.NewCounterparty
			cfg.Weights = e.NewWeights
			x.Generator.SetStochasticConfig(e.Agent, cfg)

		case KindCollateralAdjustment:
			a, ok := x.Agents[e.Agent]
			if !ok {
				return nil, fmt.Errorf("scenario: collateral_adjustment references unknown agent %s", e.Agent)
			}
			if e.CollateralDelta < 0 && a.PostedCollateral+e.CollateralDelta < 0 {
				return nil, fmt.Errorf("scenario: collateral_adjustment would release more collateral than agent %s has posted", e.Agent)
			}
			a.PostedCollateral += e.CollateralDelta
			a.Balance -= e.CollateralDelta

		case KindCustomInjection:
			entry := e.Injection
			entry.Tick = currentTick
			injected = append(injected, &entry)
		}

		x.emit(event.Event{
			Tick: currentTick, Kind: event.KindScenarioEventExecuted,
			AgentID: e.Agent, Reason: string(e.Kind), Label: e.Label,
		})
	}
	return injected, nil
}

func (x *Executor) emit(ev event.Event) {
	if x.Sink != nil {
		x.Sink.Append(ev)
	}
}
