package engine

import (
	"fmt"

	"github.com/paynet/simcash/arrival"
	"github.com/paynet/simcash/cost"
	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/lsm"
	"github.com/paynet/simcash/policy"
	"github.com/paynet/simcash/scenario"
	"github.com/paynet/simcash/settlement"
)

// AgentConfig is one bank's complete configuration at construction
// time. Policy is required; every other field is optional and takes
// its zero value when absent.
type AgentConfig struct {
	ID                  ids.AgentID `yaml:"id" json:"id"`
	OpeningBalance      int64       `yaml:"opening_balance" json:"opening_balance"`
	UnsecuredCap        int64       `yaml:"unsecured_cap,omitempty" json:"unsecured_cap,omitempty"`
	HasMaxCollateralCap bool        `yaml:"has_max_collateral_cap,omitempty" json:"has_max_collateral_cap,omitempty"`
	MaxCollateralCap    int64       `yaml:"max_collateral_cap,omitempty" json:"max_collateral_cap,omitempty"`
	LiquidityPool       int64       `yaml:"liquidity_pool,omitempty" json:"liquidity_pool,omitempty"`

	Policy policy.Policy      `yaml:"policy" json:"policy"`
	Params map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`

	Arrival *arrival.StochasticConfig `yaml:"arrival,omitempty" json:"arrival,omitempty"`
}

// Config is the full structured configuration an Orchestrator is
// built from. Unknown fields have no representation here (configio's
// YAML and JSON decoders reject them at the document boundary); this
// struct enforces only the semantic constraints that make a scenario
// constructible at all, as config errors.
type Config struct {
	TicksPerDay int64 `yaml:"ticks_per_day" json:"ticks_per_day"`
	NumDays     int64 `yaml:"num_days" json:"num_days"`
	RNGSeed     int64 `yaml:"rng_seed" json:"rng_seed"`

	Agents           []AgentConfig           `yaml:"agents" json:"agents"`
	ScriptedArrivals []arrival.ScriptedEntry `yaml:"scripted_arrivals,omitempty" json:"scripted_arrivals,omitempty"`

	LSM        *lsm.Config                  `yaml:"lsm,omitempty" json:"lsm,omitempty"`
	Escalation *settlement.EscalationConfig `yaml:"escalation,omitempty" json:"escalation,omitempty"`
	CostRates  *cost.RateTable              `yaml:"cost_rates,omitempty" json:"cost_rates,omitempty"`

	ScenarioEvents []scenario.Event `yaml:"scenario_events,omitempty" json:"scenario_events,omitempty"`

	// PersistentRegisters names state registers that survive the
	// daily reset, shared across every agent's register store.
	PersistentRegisters map[string]bool `yaml:"persistent_registers,omitempty" json:"persistent_registers,omitempty"`
}

// ConfigError is a single structured, fatal-at-construction validation
// failure.
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("engine: config: %s: %s", e.Field, e.Reason)
}

// ConfigErrors aggregates every ConfigError found during validation.
type ConfigErrors []ConfigError

func (es ConfigErrors) Error() string {
	if len(es) == 1 {
		return es[0].Error()
	}
	return fmt.Sprintf("engine: %d config errors, first: %s", len(es), es[0].Error())
}

// validate checks every config-time constraint and returns the
// aggregated list of errors, or nil if the config is sound. It also
// returns lastTick (the simulation's final tick index), needed by
// downstream validation and construction.
func (c *Config) validate() (ConfigErrors, ids.Tick) {
	var errs ConfigErrors

	if c.TicksPerDay < 1 {
		errs = append(errs, ConfigError{"ticks_per_day", "must be >= 1"})
	}
	if c.NumDays < 1 {
		errs = append(errs, ConfigError{"num_days", "must be >= 1"})
	}
	if c.TicksPerDay < 1 || c.NumDays < 1 {
		return errs, 0
	}
	totalTicks := c.TicksPerDay * c.NumDays
	lastTick := ids.Tick(totalTicks - 1)

	if len(c.Agents) == 0 {
		errs = append(errs, ConfigError{"agents", "at least one agent is required"})
	}
	seen := make(map[ids.AgentID]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			errs = append(errs, ConfigError{"agents", "agent with empty id"})
			continue
		}
		if seen[a.ID] {
			errs = append(errs, ConfigError{"agents", fmt.Sprintf("duplicate agent id %s", a.ID)})
		}
		seen[a.ID] = true
		if a.UnsecuredCap < 0 {
			errs = append(errs, ConfigError{"agents." + string(a.ID) + ".unsecured_cap", "must be >= 0"})
		}
		if a.Policy.PaymentTree == nil {
			errs = append(errs, ConfigError{"agents." + string(a.ID) + ".policy.payment_tree", "required"})
		}

		declaredParams := make(map[string]bool, len(a.Params))
		for k := range a.Params {
			declaredParams[k] = true
		}
		for _, tree := range []*policy.Tree{a.Policy.PaymentTree, a.Policy.StrategicCollateralTree, a.Policy.EndOfTickCollateralTree, a.Policy.BankTree} {
			if tree == nil {
				continue
			}
			for _, verr := range policy.Validate(tree, declaredParams) {
				errs = append(errs, ConfigError{fmt.Sprintf("agents.%s.policy.%s", a.ID, tree.Kind), verr.Error()})
			}
		}
	}

	for i, e := range c.ScriptedArrivals {
		if e.Sender == e.Receiver {
			errs = append(errs, ConfigError{fmt.Sprintf("scripted_arrivals[%d]", i), "sender equals receiver"})
		}
		if e.Deadline > lastTick {
			errs = append(errs, ConfigError{fmt.Sprintf("scripted_arrivals[%d]", i), fmt.Sprintf("deadline %d beyond simulation horizon %d", e.Deadline, lastTick)})
		}
		if !seen[e.Sender] {
			errs = append(errs, ConfigError{fmt.Sprintf("scripted_arrivals[%d]", i), fmt.Sprintf("unknown sender %s", e.Sender)})
		}
		if !seen[e.Receiver] {
			errs = append(errs, ConfigError{fmt.Sprintf("scripted_arrivals[%d]", i), fmt.Sprintf("unknown receiver %s", e.Receiver)})
		}
	}

	if c.LSM != nil && c.LSM.MaxIterations < 1 && (c.LSM.BilateralOffsetting || c.LSM.CycleDetection) {
		errs = append(errs, ConfigError{"lsm.max_iterations", "must be >= 1 when LSM is enabled"})
	}

	if len(errs) > 0 {
		return errs, lastTick
	}
	return nil, lastTick
}
