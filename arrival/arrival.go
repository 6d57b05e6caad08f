// Package arrival generates payment obligations: stochastically, from
// a per-agent rate/amount/counterparty configuration, or from a
// scripted list of literal entries.
package arrival

import (
	"fmt"

	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/rng"
	"github.com/paynet/simcash/txn"
)

// AmountDistKind selects the shape of the stochastic amount sampler.
type AmountDistKind string

const (
	DistUniform   AmountDistKind = "uniform"
	DistNormal    AmountDistKind = "normal"
	DistLogNormal AmountDistKind = "log_normal"
)

// AmountDist parameterizes one of the three supported amount
// distributions. Fields not used by Kind are ignored.
type AmountDist struct {
	Kind AmountDistKind `yaml:"kind" json:"kind"`

	// Uniform
	Min int64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max int64 `yaml:"max,omitempty" json:"max,omitempty"`

	// Normal (truncated to >= 1 cent)
	Mean   float64 `yaml:"mean,omitempty" json:"mean,omitempty"`
	StdDev float64 `yaml:"std_dev,omitempty" json:"std_dev,omitempty"`

	// LogNormal
	Mu    float64 `yaml:"mu,omitempty" json:"mu,omitempty"`
	Sigma float64 `yaml:"sigma,omitempty" json:"sigma,omitempty"`
}

// Sample draws one amount in integer cents, minimum 1.
func (d AmountDist) Sample(s *rng.Stream) int64 {
	switch d.Kind {
	case DistUniform:
		v := s.UniformCents(d.Min, d.Max)
		if v < 1 {
			return 1
		}
		return v
	case DistNormal:
		v := s.NormalTruncated(d.Mean, d.StdDev, 1)
		return int64(v + 0.5)
	case DistLogNormal:
		v := s.LogNormal(d.Mu, d.Sigma)
		rounded := int64(v + 0.5)
		if rounded < 1 {
			return 1
		}
		return rounded
	default:
		return 1
	}
}

// StochasticConfig is one agent's stochastic arrival configuration.
type StochasticConfig struct {
	RatePerTick  float64       `yaml:"rate_per_tick" json:"rate_per_tick"`
	Amount       AmountDist    `yaml:"amount" json:"amount"`
	Counterparty []ids.AgentID `yaml:"counterparty" json:"counterparty"`
	Weights      []float64     `yaml:"weights,omitempty" json:"weights,omitempty"`
	DeadlineLo   int64         `yaml:"deadline_lo" json:"deadline_lo"`
	DeadlineHi   int64         `yaml:"deadline_hi" json:"deadline_hi"`
	Priority     int           `yaml:"priority" json:"priority"`
	Divisible    bool          `yaml:"divisible" json:"divisible"`
}

// ScriptedEntry is one literal, pre-authored arrival.
type ScriptedEntry struct {
	Tick      ids.Tick    `yaml:"tick" json:"tick"`
	Sender    ids.AgentID `yaml:"sender" json:"sender"`
	Receiver  ids.AgentID `yaml:"receiver" json:"receiver"`
	Amount    int64       `yaml:"amount" json:"amount"`
	Deadline  ids.Tick    `yaml:"deadline" json:"deadline"`
	Priority  int         `yaml:"priority,omitempty" json:"priority,omitempty"`
	Divisible bool        `yaml:"divisible,omitempty" json:"divisible,omitempty"`
}

// Generator produces Arrival transactions for a tick, either from a
// per-agent StochasticConfig or from a ScriptedEntry list.
type Generator struct {
	stochastic map[ids.AgentID]StochasticConfig
	scripted   map[ids.Tick][]ScriptedEntry
	lastTick   ids.Tick
}

// NewGenerator builds a Generator from per-agent stochastic configs
// and a flat scripted-entry list (bucketed internally by tick).
func NewGenerator(stochastic map[ids.AgentID]StochasticConfig, scripted []ScriptedEntry, lastTick ids.Tick) *Generator {
	byTick := make(map[ids.Tick][]ScriptedEntry)
	for _, e := range scripted {
		byTick[e.Tick] = append(byTick[e.Tick], e)
	}
	return &Generator{stochastic: stochastic, scripted: byTick, lastTick: lastTick}
}

// SetStochasticConfig installs or replaces agentID's stochastic
// config, for scripted scenario events that mutate arrival rates or
// counterparty weights mid-run.
func (g *Generator) SetStochasticConfig(agentID ids.AgentID, cfg StochasticConfig) {
	if g.stochastic == nil {
		g.stochastic = make(map[ids.AgentID]StochasticConfig)
	}
	g.stochastic[agentID] = cfg
}

// StochasticConfig returns agentID's current stochastic config, if any.
func (g *Generator) StochasticConfig(agentID ids.AgentID) (StochasticConfig, bool) {
	cfg, ok := g.stochastic[agentID]
	return cfg, ok
}

// Generate returns every transaction arriving at currentTick: the
// scripted entries due this tick, then one Poisson-sampled batch per
// agent with a stochastic config, in stable agent-ID order. arrivalRNG
// is a per-tick Stream the caller derives (e.g. via
// rng.Derive(seed, "arrivals", int(currentTick))) so repeated calls at
// the same tick with a freshly-derived stream are reproducible.
func (g *Generator) Generate(currentTick ids.Tick, arrivalRNG *rng.Stream, agentOrder []ids.AgentID) ([]*txn.Transaction, error) {
	var out []*txn.Transaction

	for _, e := range g.scripted[currentTick] {
		if e.Sender == e.Receiver {
			return nil, fmt.Errorf("arrival: scripted entry at tick %d has sender == receiver (%s)", currentTick, e.Sender)
		}
		if e.Deadline > g.lastTick {
			return nil, fmt.Errorf("arrival: scripted entry at tick %d has deadline %d beyond simulation horizon %d", currentTick, e.Deadline, g.lastTick)
		}
		out = append(out, &txn.Transaction{
			ID:           ids.NewTxID(),
			SenderID:     e.Sender,
			ReceiverID:   e.Receiver,
			Amount:       e.Amount,
			Priority:     e.Priority,
			Divisible:    e.Divisible,
			ArrivalTick:  currentTick,
			DeadlineTick: e.Deadline,
			Status:       txn.StatusPending,
		})
	}

	for _, agentID := range agentOrder {
		cfg, ok := g.stochastic[agentID]
		if !ok || cfg.RatePerTick <= 0 {
			continue
		}
		n := arrivalRNG.Poisson(cfg.RatePerTick)
		for i := 0; i < n; i++ {
			tx, err := g.sampleOne(agentID, cfg, currentTick, arrivalRNG)
			if err != nil {
				return nil, err
			}
			out = append(out, tx)
		}
	}

	return out, nil
}

func (g *Generator) sampleOne(sender ids.AgentID, cfg StochasticConfig, currentTick ids.Tick, s *rng.Stream) (*txn.Transaction, error) {
	if len(cfg.Counterparty) == 0 || len(cfg.Weights) != len(cfg.Counterparty) {
		return nil, fmt.Errorf("arrival: agent %s has no valid counterparty distribution configured", sender)
	}
	idx := s.WeightedChoice(cfg.Weights)
	receiver := cfg.Counterparty[idx]
	if receiver == sender {
		return nil, fmt.Errorf("arrival: agent %s sampled itself as counterparty", sender)
	}

	amount := cfg.Amount.Sample(s)
	offset := s.UniformInt(cfg.DeadlineLo, cfg.DeadlineHi)
	deadline := ids.Tick(int64(currentTick) + offset)
	if deadline > g.lastTick {
		deadline = g.lastTick
	}

	return &txn.Transaction{
		ID:           ids.NewTxID(),
		SenderID:     sender,
		ReceiverID:   receiver,
		Amount:       amount,
		Priority:     cfg.Priority,
		Divisible:    cfg.Divisible,
		ArrivalTick:  currentTick,
		DeadlineTick: deadline,
		Status:       txn.StatusPending,
	}, nil
}
